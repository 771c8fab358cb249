// vite-agent-cli runs single wallet operations against a Vite node and
// prints the {ok, message, data, error} result as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/vite-agent/config"
	"github.com/Klingon-tech/vite-agent/internal/agent"
	"github.com/Klingon-tech/vite-agent/internal/gateway"
	klog "github.com/Klingon-tech/vite-agent/internal/log"
	"github.com/Klingon-tech/vite-agent/internal/pow"
	"github.com/Klingon-tech/vite-agent/internal/receive"
	"github.com/Klingon-tech/vite-agent/internal/wallet"
)

// env is what every command needs.
type env struct {
	cfg   *config.Config
	agent *agent.Agent
	ks    *wallet.Keystore
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Default()
	logLevel := "error"

	// Scan global flags before the subcommand.
	args := os.Args[1:]
	var overrides []func()
	for len(args) > 0 {
		name, value, rest, ok := globalFlag(args)
		if !ok {
			break
		}
		args = rest
		switch name {
		case "node":
			overrides = append(overrides, func() { cfg.Node.URL = value })
		case "datadir":
			cfg.DataDir = value
		case "pow":
			overrides = append(overrides, func() { cfg.PoW.Strategy = strings.ToLower(value) })
		case "log-level":
			logLevel = value
		}
	}

	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	// The daemon's config file supplies node and PoW settings.
	values, err := config.LoadFile(cfg.ConfigFile())
	if err != nil {
		fatal("loading config file: %v", err)
	}
	if err := config.ApplyFileConfig(cfg, values); err != nil {
		fatal("applying config file: %v", err)
	}
	for _, o := range overrides {
		o()
	}
	if err := config.Validate(cfg); err != nil {
		fatal("invalid config: %v", err)
	}
	if _, err := klog.Init(logLevel, false, ""); err != nil {
		fatal("init logger: %v", err)
	}

	cmd := args[0]
	cmdArgs := args[1:]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		usage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, closeEnv := newEnv(cfg)
	defer closeEnv()

	var res agent.Result
	switch cmd {
	case "create":
		res = cmdCreate(ctx, e, cmdArgs)
	case "balance":
		res = cmdBalance(ctx, e, cmdArgs)
	case "transactions":
		res = cmdTransactions(ctx, e, cmdArgs)
	case "send":
		res = cmdSend(ctx, e, cmdArgs)
	case "receive":
		res = cmdReceive(ctx, e, cmdArgs)
	case "keystore":
		res = cmdKeystore(e, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	printResult(res)
	if !res.OK {
		closeEnv()
		os.Exit(1)
	}
}

// globalFlag recognises --name value and --name=value for the global flags.
func globalFlag(args []string) (name, value string, rest []string, ok bool) {
	for _, g := range []string{"node", "datadir", "pow", "log-level"} {
		flagName := "--" + g
		switch {
		case args[0] == flagName && len(args) > 1:
			return g, args[1], args[2:], true
		case strings.HasPrefix(args[0], flagName+"="):
			return g, args[0][len(flagName)+1:], args[1:], true
		}
	}
	return "", "", args, false
}

func newEnv(cfg *config.Config) (*env, func()) {
	gw, err := gateway.Dial(cfg.Node.URL, gateway.Options{
		Timeout:   cfg.Node.Timeout,
		RateLimit: cfg.Node.RateLimit,
		Logger:    klog.Gateway,
	})
	if err != nil {
		fatal("dial node: %v", err)
	}
	strategy, err := pow.New(cfg.PoW.Strategy, gw, cfg.PoW.Threads)
	if err != nil {
		fatal("%v", err)
	}
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		fatal("%v", err)
	}

	a := agent.New(agent.Config{
		Gateway:    gw,
		PoW:        strategy,
		ReceivePoW: cfg.Receive.PoW,
		Receive: receive.Options{
			Interval:               cfg.Receive.Interval,
			MaxConsecutiveFailures: cfg.Receive.MaxFailures,
			Progress:               progress,
			Logger:                 klog.Receive,
		},
		Logger: klog.Agent,
	})

	var once bool
	return &env{cfg: cfg, agent: a, ks: ks}, func() {
		if !once {
			once = true
			gw.Close()
		}
	}
}

// progress reports receive sessions on stderr so stdout stays pure JSON.
func progress(s receive.Session) {
	fmt.Fprintf(os.Stderr, "[%s] %s claimed=%d remaining~%d\n",
		time.Now().Format("15:04:05"), s.Status, len(s.Claimed), s.RemainingEstimate)
}

func printResult(res agent.Result) {
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fatal("encode result: %v", err)
	}
	fmt.Println(string(out))
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: vite-agent-cli [global flags] <command> [flags]

Global flags:
  --node <url>        Node JSON-RPC URL (default: from config, else %s)
  --datadir <path>    Data directory (default: ~/.vite-agent)
  --pow <strategy>    node (default) or local
  --log-level <lvl>   Log level on stderr (default: error)

Commands:
  create [--save <name>]          Create a mnemonic; optionally encrypt it into the keystore
  balance <address>               Show balances and unreceived count
  transactions <address> [--size n] [--index n]
                                  List account blocks, newest first
  send --to <addr> --amount <raw> [--token <tti>] [--index n] <seed>
                                  Send tokens (amount in smallest units)
  receive [--index n | --indices 0,1,2] <seed>
                                  Receive every pending transfer

  keystore save --name <n>        Encrypt a mnemonic read from the terminal
  keystore list                   List keystore wallets
  keystore show --name <n>        Show recorded accounts of a wallet

Seed (send, receive):
  --mnemonics "<words>"           Inline mnemonic
  --wallet <name>                 Keystore wallet (prompts for password)
`, config.DefaultNodeURL)
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
