package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads agent configuration from a .conf file.
// Format: key = value (one per line, # for comments). A missing file
// yields an empty map.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key. Unknown keys are ignored.
func setConfigValue(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "datadir":
		cfg.DataDir = value

	// Node
	case "node.url", "node":
		cfg.Node.URL = value
	case "node.timeout":
		cfg.Node.Timeout, err = time.ParseDuration(value)
	case "node.ratelimit":
		cfg.Node.RateLimit, err = strconv.Atoi(value)
	case "node.breaker_failures":
		var n uint64
		n, err = strconv.ParseUint(value, 10, 32)
		cfg.Node.BreakerFailures = uint32(n)
	case "node.breaker_cooldown":
		cfg.Node.BreakerCooldown, err = time.ParseDuration(value)

	// Receive
	case "receive.interval":
		cfg.Receive.Interval, err = time.ParseDuration(value)
	case "receive.max_failures":
		cfg.Receive.MaxFailures, err = strconv.Atoi(value)
	case "receive.pow":
		cfg.Receive.PoW = parseBool(value)

	// PoW
	case "pow.strategy", "pow":
		cfg.PoW.Strategy = strings.ToLower(value)
	case "pow.threads":
		cfg.PoW.Threads, err = strconv.Atoi(value)

	// Journal
	case "store.enabled", "store":
		cfg.Store.Enabled = parseBool(value)
	case "store.backend":
		cfg.Store.Backend = strings.ToLower(value)

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		cfg.RPC.Port, err = strconv.Atoi(value)
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Wallet
	case "wallet.keystore":
		cfg.Wallet.KeystoreDir = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)
	}
	return err
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default agent configuration file.
func WriteDefaultConfig(path string) error {
	content := `# vite-agent configuration
#
# key = value, one per line. Command-line flags override these values.

# Data directory (default: ~/.vite-agent)
# datadir = ~/.vite-agent

# ============================================================================
# Node
# ============================================================================

# JSON-RPC endpoint of a Vite node: http(s):// or ws(s)://
node.url = ` + DefaultNodeURL + `
node.timeout = 10s

# Maximum node calls per second (0 = unlimited)
node.ratelimit = 20

# Open the circuit after this many consecutive transport failures (0 = off)
node.breaker_failures = 5
node.breaker_cooldown = 30s

# ============================================================================
# Receiving
# ============================================================================

receive.interval = 2.5s
receive.max_failures = 3

# Compute PoW for receive blocks when the account lacks quota
receive.pow = true

# ============================================================================
# Proof of work
# ============================================================================

# node: ask the node for nonces, local: search on this machine
pow.strategy = node
# pow.threads = 0

# ============================================================================
# Event journal
# ============================================================================

store.enabled = true
# badger or memory
store.backend = badger

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + strconv.Itoa(DefaultRPCPort) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

# ============================================================================
# Wallet
# ============================================================================

# wallet.keystore = ~/.vite-agent/keystore

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
