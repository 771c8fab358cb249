// Package config handles vite-agent runtime configuration.
//
// Settings come from three layers, later layers winning:
//   - built-in defaults (Default)
//   - a key = value file in the data directory
//   - command-line flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config holds the agent daemon's runtime configuration.
type Config struct {
	DataDir string `conf:"datadir"`

	// Remote node
	Node NodeConfig

	// Receive polling
	Receive ReceiveConfig

	// Nonce search
	PoW PoWConfig

	// Event journal
	Store StoreConfig

	// JSON-RPC server
	RPC RPCConfig

	// Keystore
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// NodeConfig holds the connection settings for the Vite node.
type NodeConfig struct {
	URL             string        `conf:"node.url"` // http(s):// or ws(s)://
	Timeout         time.Duration `conf:"node.timeout"`
	RateLimit       int           `conf:"node.ratelimit"`        // calls per second, 0 = unlimited
	BreakerFailures uint32        `conf:"node.breaker_failures"` // 0 disables the circuit breaker
	BreakerCooldown time.Duration `conf:"node.breaker_cooldown"`
}

// ReceiveConfig holds receive poller settings.
type ReceiveConfig struct {
	Interval    time.Duration `conf:"receive.interval"`
	MaxFailures int           `conf:"receive.max_failures"`
	PoW         bool          `conf:"receive.pow"` // solve PoW for receive blocks too
}

// PoW strategies.
const (
	PoWNode  = "node"
	PoWLocal = "local"
)

// PoWConfig selects where nonces are computed.
type PoWConfig struct {
	Strategy string `conf:"pow.strategy"`
	Threads  int    `conf:"pow.threads"` // local only, 0 = all CPUs
}

// Journal backends.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// StoreConfig holds event journal settings.
type StoreConfig struct {
	Enabled bool   `conf:"store.enabled"`
	Backend string `conf:"store.backend"`
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// WalletConfig holds keystore settings.
type WalletConfig struct {
	KeystoreDir string `conf:"wallet.keystore"` // empty = <datadir>/keystore
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.vite-agent
//	macOS:   ~/Library/Application Support/ViteAgent
//	Windows: %APPDATA%\ViteAgent
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vite-agent"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "ViteAgent")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "ViteAgent")
		}
		return filepath.Join(home, "AppData", "Roaming", "ViteAgent")
	default:
		return filepath.Join(home, ".vite-agent")
	}
}

// JournalDir returns the event journal database directory.
func (c *Config) JournalDir() string {
	return filepath.Join(c.DataDir, "journal")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	if c.Wallet.KeystoreDir != "" {
		return c.Wallet.KeystoreDir
	}
	return filepath.Join(c.DataDir, "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "vite-agent.conf")
}
