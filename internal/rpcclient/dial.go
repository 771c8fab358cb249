package rpcclient

import (
	"fmt"
	"net/url"
	"time"
)

// Dial returns a client for endpoint, choosing the transport from the URL
// scheme: http/https use Client, ws/wss use WSClient. No connection is
// opened until the first call.
func Dial(endpoint string, timeout time.Duration) (Caller, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse node url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewWithTimeout(endpoint, timeout), nil
	case "ws", "wss":
		return NewWS(endpoint, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported node url scheme %q", u.Scheme)
	}
}
