package config

import "time"

// Default node endpoint and RPC port.
const (
	DefaultNodeURL = "https://node.vite.net/gvite"
	DefaultRPCPort = 8490
)

// Default returns the default agent configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Node: NodeConfig{
			URL:             DefaultNodeURL,
			Timeout:         10 * time.Second,
			RateLimit:       20,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Receive: ReceiveConfig{
			Interval:    2500 * time.Millisecond,
			MaxFailures: 3,
			PoW:         true,
		},
		PoW: PoWConfig{
			Strategy: PoWNode,
		},
		Store: StoreConfig{
			Enabled: true,
			Backend: BackendBadger,
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       DefaultRPCPort,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
