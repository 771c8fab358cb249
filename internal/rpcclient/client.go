// Package rpcclient provides JSON-RPC 2.0 clients for Vite nodes over HTTP
// and WebSocket.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Error classes. Every error returned by Call is either an *RPCError or
// wraps ErrTransport, ErrDecode or ErrNotSent. A dial failure wraps both
// ErrTransport and ErrNotSent.
var (
	// ErrTransport means the request could not be delivered or the
	// response could not be read (network failure, timeout, bad status).
	ErrTransport = errors.New("rpc transport failure")

	// ErrDecode means a response arrived but was not valid JSON-RPC or the
	// result did not match the expected shape.
	ErrDecode = errors.New("rpc response malformed")

	// ErrNotSent means the request failed before any of it was written to
	// the connection.
	ErrNotSent = errors.New("rpc request not sent")
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 16 << 20

// DefaultTimeout applies when no per-client timeout is configured.
const DefaultTimeout = 10 * time.Second

// Caller is the transport-neutral JSON-RPC interface.
type Caller interface {
	// Call invokes method with params and decodes the result into result.
	// A nil result discards the response value.
	Call(ctx context.Context, method string, params, result interface{}) error
	Close() error
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      uint64      `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      *uint64         `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Uint64
}

// New creates a new RPC client targeting the given endpoint URL.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, DefaultTimeout)
}

// NewWithTimeout creates a new RPC client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	id := c.nextID.Add(1)
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return fmt.Errorf("%w: marshal request: %w", ErrNotSent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrNotSent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	rpcResp, decErr := decodeResponse(data, id)
	if resp.StatusCode != http.StatusOK && (decErr != nil || rpcResp.Error == nil) {
		return fmt.Errorf("%w: %s: http status %d", ErrTransport, method, resp.StatusCode)
	}
	if decErr != nil {
		return decErr
	}
	return rpcResp.into(result)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func decodeResponse(data []byte, id uint64) (*response, error) {
	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrDecode, err)
	}
	if rpcResp.ID == nil || *rpcResp.ID != id {
		// Servers answer parse errors with a null id.
		if rpcResp.Error != nil && rpcResp.ID == nil {
			return &rpcResp, nil
		}
		return nil, fmt.Errorf("%w: response id does not match request %d", ErrDecode, id)
	}
	return &rpcResp, nil
}

func (r *response) into(result interface{}) error {
	if r.Error != nil {
		return &RPCError{
			Code:    r.Error.Code,
			Message: r.Error.Message,
		}
	}
	if result != nil && r.Result != nil {
		if err := json.Unmarshal(r.Result, result); err != nil {
			return fmt.Errorf("%w: decode result: %v", ErrDecode, err)
		}
	}
	return nil
}
