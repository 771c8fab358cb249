package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Version is reported by --version.
const Version = "0.1.0"

// ErrHelp is returned by Load when --help or --version was handled.
var ErrHelp = errors.New("help requested")

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	DataDir string
	Config  string

	// Node
	NodeURL       string
	NodeTimeout   time.Duration
	NodeRateLimit int

	// Receive
	ReceiveInterval    time.Duration
	ReceiveMaxFailures int
	ReceivePoW         bool

	// PoW
	PoWStrategy string
	PoWThreads  int

	// Journal
	Store        bool
	StoreBackend string

	// RPC
	RPC        bool
	RPCAddr    string
	RPCPort    int
	RPCAllowed string
	RPCCORS    string

	// Wallet
	Keystore string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool and numeric flags (for true/false/zero overrides).
	SetReceivePoW bool
	SetStore      bool
	SetRPC        bool
	SetLogJSON    bool
	SetRateLimit  bool
	SetThreads    bool
}

// ParseFlags parses command-line flags (without the program name).
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("vite-agentd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Node
	fs.StringVar(&f.NodeURL, "node", "", "Node JSON-RPC URL (http, https, ws or wss)")
	fs.DurationVar(&f.NodeTimeout, "node-timeout", 0, "Per-call node timeout")
	fs.IntVar(&f.NodeRateLimit, "node-ratelimit", 0, "Maximum node calls per second (0 = unlimited)")

	// Receive
	fs.DurationVar(&f.ReceiveInterval, "receive-interval", 0, "Pause between receive claims")
	fs.IntVar(&f.ReceiveMaxFailures, "receive-max-failures", 0, "Consecutive claim failures before giving up")
	fs.BoolVar(&f.ReceivePoW, "receive-pow", true, "Compute PoW for receive blocks")

	// PoW
	fs.StringVar(&f.PoWStrategy, "pow", "", "Nonce strategy: node or local")
	fs.IntVar(&f.PoWThreads, "pow-threads", 0, "Local PoW threads (0 = all CPUs)")

	// Journal
	fs.BoolVar(&f.Store, "store", true, "Record sent and received blocks")
	fs.StringVar(&f.StoreBackend, "store-backend", "", "Journal backend: badger or memory")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	// Wallet
	fs.StringVar(&f.Keystore, "keystore", "", "Keystore directory")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			f.Help = true
			return f, nil
		}
		return nil, err
	}

	f.SetReceivePoW = isFlagSet(fs, "receive-pow")
	f.SetStore = isFlagSet(fs, "store")
	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.SetRateLimit = isFlagSet(fs, "node-ratelimit")
	f.SetThreads = isFlagSet(fs, "pow-threads")
	f.Args = fs.Args()

	// A positional argument stops the parser; anything flag-like after it
	// was silently dropped.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Node
	if f.NodeURL != "" {
		cfg.Node.URL = f.NodeURL
	}
	if f.NodeTimeout != 0 {
		cfg.Node.Timeout = f.NodeTimeout
	}
	if f.SetRateLimit {
		cfg.Node.RateLimit = f.NodeRateLimit
	}

	// Receive
	if f.ReceiveInterval != 0 {
		cfg.Receive.Interval = f.ReceiveInterval
	}
	if f.ReceiveMaxFailures != 0 {
		cfg.Receive.MaxFailures = f.ReceiveMaxFailures
	}
	if f.SetReceivePoW {
		cfg.Receive.PoW = f.ReceivePoW
	}

	// PoW
	if f.PoWStrategy != "" {
		cfg.PoW.Strategy = strings.ToLower(f.PoWStrategy)
	}
	if f.SetThreads {
		cfg.PoW.Threads = f.PoWThreads
	}

	// Journal
	if f.SetStore {
		cfg.Store.Enabled = f.Store
	}
	if f.StoreBackend != "" {
		cfg.Store.Backend = strings.ToLower(f.StoreBackend)
	}

	// RPC
	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}

	if f.Keystore != "" {
		cfg.Wallet.KeystoreDir = f.Keystore
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the daemon's help text to w.
func PrintUsage(w io.Writer) {
	usage := `vite-agentd - Vite wallet agent

Usage:
  vite-agentd [options]
  vite-agentd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --datadir       Data directory (default: ~/.vite-agent)
  --config, -c    Config file path (default: <datadir>/vite-agent.conf)

Node Options:
  --node            Node JSON-RPC URL (default: ` + DefaultNodeURL + `)
  --node-timeout    Per-call timeout (default: 10s)
  --node-ratelimit  Maximum calls per second, 0 = unlimited (default: 20)

Receive Options:
  --receive-interval      Pause between claims (default: 2.5s)
  --receive-max-failures  Consecutive claim failures before giving up (default: 3)
  --receive-pow           Compute PoW for receive blocks (default: true)

PoW Options:
  --pow           Nonce strategy: node (default) or local
  --pow-threads   Local search threads (default: all CPUs)

Journal Options:
  --store          Record sent and received blocks (default: true)
  --store-backend  badger (default) or memory

RPC Options:
  --rpc           Enable RPC server (default: true)
  --rpc-addr      RPC listen address (default: 127.0.0.1)
  --rpc-port      RPC port (default: 8490)
  --rpc-allowed   Allowed IPs for RPC (comma-separated)
  --rpc-cors      Allowed CORS origins for RPC (comma-separated)

Wallet Options:
  --keystore      Keystore directory (default: <datadir>/keystore)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Start against the public node
  vite-agentd

  # Use a local node over WebSocket and compute nonces locally
  vite-agentd --node=ws://127.0.0.1:41420 --pow=local
`
	fmt.Fprint(w, usage)
}

// Load loads configuration from args with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
//
// Load returns ErrHelp after printing usage or version to stdout.
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}

	if flags.Help {
		PrintUsage(os.Stdout)
		return nil, flags, ErrHelp
	}
	if flags.Version {
		fmt.Println("vite-agentd version " + Version)
		return nil, flags, ErrHelp
	}

	cfg := Default()
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Flags win over the file, including a file-set datadir.
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
