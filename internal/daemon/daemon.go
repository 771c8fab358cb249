// Package daemon wires configuration into a running wallet agent: logging,
// the node gateway, nonce strategy, event journal, keystore and the JSON-RPC
// server. Binaries embed a Daemon rather than assembling these themselves.
package daemon

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/vite-agent/config"
	"github.com/Klingon-tech/vite-agent/internal/agent"
	"github.com/Klingon-tech/vite-agent/internal/events"
	"github.com/Klingon-tech/vite-agent/internal/gateway"
	klog "github.com/Klingon-tech/vite-agent/internal/log"
	"github.com/Klingon-tech/vite-agent/internal/pow"
	"github.com/Klingon-tech/vite-agent/internal/receive"
	"github.com/Klingon-tech/vite-agent/internal/rpc"
	"github.com/Klingon-tech/vite-agent/internal/storage"
	"github.com/Klingon-tech/vite-agent/internal/wallet"
)

// Daemon is a fully-initialized wallet agent.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger
	logs   io.Closer

	gw      *gateway.RPC
	db      storage.DB
	journal *events.Store
	ks      *wallet.Keystore
	agent   *agent.Agent

	rpcServer *rpc.Server
}

// New creates and initializes a Daemon. It performs all setup steps but
// does not listen. Call Start for that.
func New(cfg *config.Config) (*Daemon, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "vite-agent.log")
	}
	logs, err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	d := &Daemon{
		cfg:    cfg,
		logger: klog.WithComponent("daemon"),
		logs:   logs,
	}

	d.logger.Info().
		Str("node", cfg.Node.URL).
		Str("pow", cfg.PoW.Strategy).
		Bool("receive_pow", cfg.Receive.PoW).
		Msg("Starting vite agent")

	// ── 2. Node gateway ─────────────────────────────────────────────
	d.gw, err = gateway.Dial(cfg.Node.URL, gateway.Options{
		Timeout:         cfg.Node.Timeout,
		RateLimit:       cfg.Node.RateLimit,
		BreakerFailures: cfg.Node.BreakerFailures,
		BreakerCooldown: cfg.Node.BreakerCooldown,
		Logger:          klog.Gateway,
	})
	if err != nil {
		d.close()
		return nil, fmt.Errorf("dial node: %w", err)
	}

	// ── 3. Nonce strategy ───────────────────────────────────────────
	strategy, err := pow.New(cfg.PoW.Strategy, d.gw, cfg.PoW.Threads)
	if err != nil {
		d.close()
		return nil, err
	}

	// ── 4. Event journal ────────────────────────────────────────────
	if cfg.Store.Enabled {
		path := expandHome(cfg.JournalDir())
		d.db, err = storage.Open(cfg.Store.Backend, path)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("open journal at %s: %w", path, err)
		}
		d.journal, err = events.NewStore(d.db)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("load journal: %w", err)
		}
		d.logger.Info().
			Str("backend", cfg.Store.Backend).
			Uint64("events", d.journal.Len()).
			Msg("Event journal opened")
	}

	// ── 5. Keystore ─────────────────────────────────────────────────
	d.ks, err = wallet.NewKeystore(expandHome(cfg.KeystoreDir()))
	if err != nil {
		d.close()
		return nil, err
	}

	// ── 6. Agent ────────────────────────────────────────────────────
	d.agent = agent.New(agent.Config{
		Gateway:    d.gw,
		PoW:        strategy,
		ReceivePoW: cfg.Receive.PoW,
		Receive: receive.Options{
			Interval:               cfg.Receive.Interval,
			MaxConsecutiveFailures: cfg.Receive.MaxFailures,
			Logger:                 klog.Receive,
		},
		Journal: d.journal,
		Logger:  klog.Agent,
	})

	// ── 7. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		addr := net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port))
		d.rpcServer = rpc.New(addr, d.agent, cfg.RPC)
		d.rpcServer.SetKeystore(d.ks, wallet.DefaultParams())
	}

	return d, nil
}

// Start begins serving RPC requests, if enabled.
func (d *Daemon) Start() error {
	if d.rpcServer == nil {
		d.logger.Info().Msg("RPC server disabled")
		return nil
	}
	return d.rpcServer.Start()
}

// Stop shuts the RPC server down and releases the node connection, the
// journal and the log file.
func (d *Daemon) Stop() {
	if d.rpcServer != nil {
		if err := d.rpcServer.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("RPC shutdown")
		}
	}
	d.logger.Info().Msg("Goodbye!")
	d.close()
}

func (d *Daemon) close() {
	if d.gw != nil {
		d.gw.Close()
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Close journal")
		}
	}
	if d.logs != nil {
		d.logs.Close()
	}
}

// Agent returns the wired agent.
func (d *Daemon) Agent() *agent.Agent {
	return d.agent
}

// Keystore returns the keystore.
func (d *Daemon) Keystore() *wallet.Keystore {
	return d.ks
}

// RPCAddr returns the address the RPC server is listening on.
func (d *Daemon) RPCAddr() string {
	if d.rpcServer == nil {
		return ""
	}
	return d.rpcServer.Addr()
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
