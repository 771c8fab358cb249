package config

import (
	"fmt"
	"net/url"

	klog "github.com/Klingon-tech/vite-agent/internal/log"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	u, err := url.Parse(cfg.Node.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("node.url %q is not a valid URL", cfg.Node.URL)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("node.url scheme must be http, https, ws or wss")
	}
	if cfg.Node.Timeout <= 0 {
		return fmt.Errorf("node.timeout must be positive")
	}
	if cfg.Node.RateLimit < 0 {
		return fmt.Errorf("node.ratelimit must not be negative")
	}
	if cfg.Node.BreakerFailures > 0 && cfg.Node.BreakerCooldown <= 0 {
		return fmt.Errorf("node.breaker_cooldown must be positive when the breaker is enabled")
	}

	if cfg.Receive.Interval < 0 {
		return fmt.Errorf("receive.interval must not be negative")
	}
	if cfg.Receive.MaxFailures < 1 {
		return fmt.Errorf("receive.max_failures must be at least 1")
	}

	switch cfg.PoW.Strategy {
	case "":
		cfg.PoW.Strategy = PoWNode
	case PoWNode, PoWLocal:
	default:
		return fmt.Errorf("pow.strategy must be %q or %q", PoWNode, PoWLocal)
	}
	if cfg.PoW.Threads < 0 {
		return fmt.Errorf("pow.threads must not be negative")
	}

	switch cfg.Store.Backend {
	case "":
		cfg.Store.Backend = BackendBadger
	case BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("store.backend must be %q or %q", BackendBadger, BackendMemory)
	}

	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Log.Level != "" && !klog.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}
	return nil
}
