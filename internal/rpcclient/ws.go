package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is a JSON-RPC 2.0 client over a single WebSocket connection.
// Requests are serialized: one call is in flight at a time. The connection
// is dialed lazily and redialed after a transport failure.
type WSClient struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID atomic.Uint64
}

// NewWS creates a WebSocket client for url (ws:// or wss://).
func NewWS(url string, timeout time.Duration) *WSClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = timeout
	return &WSClient{url: url, timeout: timeout, dialer: &d}
}

// Endpoint returns the WebSocket URL.
func (c *WSClient) Endpoint() string { return c.url }

// Call sends one request and waits for the response with the matching id.
// Messages with other ids (such as subscription pushes) are skipped.
func (c *WSClient) Call(ctx context.Context, method string, params, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID.Add(1)
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return fmt.Errorf("%w: marshal request: %w", ErrNotSent, err)
	}

	if c.conn == nil {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			return fmt.Errorf("%w: %w: dial %s: %w", ErrTransport, ErrNotSent, c.url, err)
		}
		c.conn = conn
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// Unblock the read if ctx is cancelled before the deadline.
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		c.dropLocked()
		return fmt.Errorf("%w: write %s: %w", ErrTransport, method, err)
	}

	c.conn.SetReadDeadline(deadline)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.dropLocked()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %s: %w", ErrTransport, method, ctxErr)
			}
			return fmt.Errorf("%w: read %s: %w", ErrTransport, method, err)
		}

		var probe struct {
			ID *uint64 `json:"id"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrDecode, err)
		}
		if probe.ID == nil || *probe.ID != id {
			continue
		}
		resp, err := decodeResponse(data, id)
		if err != nil {
			return err
		}
		return resp.into(result)
	}
}

// Close closes the underlying connection, if any.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *WSClient) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
