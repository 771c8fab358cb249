package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// handlerFunc answers a decoded request with a result or an error.
type handlerFunc func(method string, params json.RawMessage) (interface{}, *rpcError)

// rpcServer starts an HTTP JSON-RPC server driven by h.
func rpcServer(t *testing.T, h handlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     uint64          `json:"id"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
			return
		}
		result, rerr := h(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rerr != nil {
			resp["error"] = rerr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Call(t *testing.T) {
	srv := rpcServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		if method != "ledger_getAccountInfoByAddress" {
			return nil, &rpcError{Code: -32601, Message: "method not found"}
		}
		var args []string
		json.Unmarshal(params, &args)
		return map[string]string{"address": args[0], "blockCount": "12"}, nil
	})

	c := New(srv.URL)
	var out struct {
		Address    string `json:"address"`
		BlockCount string `json:"blockCount"`
	}
	err := c.Call(context.Background(), "ledger_getAccountInfoByAddress", []interface{}{"vite_abc"}, &out)
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if out.Address != "vite_abc" || out.BlockCount != "12" {
		t.Errorf("result = %+v", out)
	}
}

func TestClient_RPCError(t *testing.T) {
	srv := rpcServer(t, func(string, json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -35002, Message: "verify prevBlock failed"}
	})

	err := New(srv.URL).Call(context.Background(), "ledger_sendRawTransaction", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *RPCError", err)
	}
	if rpcErr.Code != -35002 || rpcErr.Message != "verify prevBlock failed" {
		t.Errorf("RPCError = %+v", rpcErr)
	}
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrDecode) {
		t.Error("node rejection must not be classified as transport or decode failure")
	}
}

func TestClient_NullResult(t *testing.T) {
	srv := rpcServer(t, func(string, json.RawMessage) (interface{}, *rpcError) {
		return nil, nil
	})

	out := &struct{ X int }{X: 1}
	if err := New(srv.URL).Call(context.Background(), "ledger_getLatestAccountBlock", nil, &out); err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if out != nil {
		t.Errorf("null result should clear pointer, got %+v", out)
	}
}

func TestClient_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"wrong id", `{"jsonrpc":"2.0","id":999,"result":1}`},
		{"bad result shape", `{"jsonrpc":"2.0","id":1,"result":"text"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			var n int
			err := New(srv.URL).Call(context.Background(), "m", nil, &n)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("err = %v, want ErrDecode", err)
			}
		})
	}
}

func TestClient_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).Call(context.Background(), "m", nil, nil)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want ErrTransport", err)
	}
	if errors.Is(err, ErrNotSent) {
		t.Errorf("err = %v, request was delivered", err)
	}
}

func TestClient_MarshalFailureNotSent(t *testing.T) {
	hits := 0
	srv := rpcServer(t, func(string, json.RawMessage) (interface{}, *rpcError) {
		hits++
		return nil, nil
	})

	err := New(srv.URL).Call(context.Background(), "m", []interface{}{make(chan int)}, nil)
	if !errors.Is(err, ErrNotSent) || errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrNotSent only", err)
	}
	if hits != 0 {
		t.Error("unencodable request reached the server")
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewWithTimeout(url, time.Second).Call(context.Background(), "m", nil, nil)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want ErrTransport", err)
	}
}

func TestClient_ContextTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := New(srv.URL).Call(ctx, "m", nil, nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped DeadlineExceeded", err)
	}
}

func TestDial_Scheme(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"http://127.0.0.1:48132", "*rpcclient.Client", true},
		{"https://node.vite.net/gvite", "*rpcclient.Client", true},
		{"wss://node.vite.net/gvite/ws", "*rpcclient.WSClient", true},
		{"ftp://node", "", false},
	}
	for _, tt := range tests {
		c, err := Dial(tt.url, time.Second)
		if (err == nil) != tt.ok {
			t.Errorf("Dial(%s) err = %v", tt.url, err)
			continue
		}
		if !tt.ok {
			continue
		}
		switch c.(type) {
		case *Client:
			if tt.want != "*rpcclient.Client" {
				t.Errorf("Dial(%s) = %T", tt.url, c)
			}
		case *WSClient:
			if tt.want != "*rpcclient.WSClient" {
				t.Errorf("Dial(%s) = %T", tt.url, c)
			}
		}
	}
}
