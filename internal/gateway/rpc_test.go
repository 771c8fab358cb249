package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/vite-agent/internal/rpcclient"
	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

var (
	testAddr = types.MustParseAddress("vite_74bec955630f7c11fd9d2c24c91b5c37c0cf58a3c4ee2931fa")
	peerAddr = types.MustParseAddress("vite_328b70af67e20abd39e5fd3ae826a32670e5497754f2a8ed22")
)

// reply is a scripted response: raw JSON result or an error.
type reply struct {
	result string
	err    error
}

// scriptedCaller is an rpcclient.Caller that answers from a method table
// and records the params it was called with.
type scriptedCaller struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   map[string][]string
}

func newScripted(replies map[string]reply) *scriptedCaller {
	return &scriptedCaller{replies: replies, calls: make(map[string][]string)}
}

func (s *scriptedCaller) Call(ctx context.Context, method string, params, result interface{}) error {
	p, _ := json.Marshal(params)
	s.mu.Lock()
	s.calls[method] = append(s.calls[method], string(p))
	r, ok := s.replies[method]
	s.mu.Unlock()
	if !ok {
		return &rpcclient.RPCError{Code: -32601, Message: "method not found"}
	}
	if r.err != nil {
		return r.err
	}
	if result != nil {
		if err := json.Unmarshal([]byte(r.result), result); err != nil {
			return rpcclient.ErrDecode
		}
	}
	return nil
}

func (s *scriptedCaller) Close() error { return nil }

func (s *scriptedCaller) params(method string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func newTestRPC(c rpcclient.Caller) *RPC {
	return NewRPC(c, Options{Timeout: time.Second, Logger: zerolog.Nop()})
}

func TestGetAccountInfo(t *testing.T) {
	c := newScripted(map[string]reply{
		MethodAccountInfo: {result: `{
			"address": "vite_74bec955630f7c11fd9d2c24c91b5c37c0cf58a3c4ee2931fa",
			"blockCount": "4",
			"balanceInfoMap": {
				"tti_f370fadb275bc2a1a839c753": {
					"tokenInfo": {"tokenSymbol": "EPIC", "decimals": 8, "index": 1, "tokenId": "tti_f370fadb275bc2a1a839c753"},
					"balance": "250000000"
				},
				"tti_5649544520544f4b454e6e40": {
					"tokenInfo": {"tokenSymbol": "VITE", "decimals": 18, "index": 0, "tokenId": "tti_5649544520544f4b454e6e40"},
					"balance": "1000000000000000000"
				}
			}
		}`},
	})
	g := newTestRPC(c)

	info, err := g.GetAccountInfo(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("GetAccountInfo() error: %v", err)
	}
	if info.BlockCount != 4 {
		t.Errorf("BlockCount = %d, want 4", info.BlockCount)
	}
	if len(info.Balances) != 2 || info.Balances[0].TokenInfo.TokenSymbol != "VITE" {
		t.Fatalf("Balances = %+v", info.Balances)
	}
	if got := info.Balance(types.ViteTokenID).String(); got != "1000000000000000000" {
		t.Errorf("VITE balance = %s", got)
	}
	if got := info.Balance(types.MustParseTokenID("tti_f370fadb275bc2a1a839c753")).Display(8); got != "2.5" {
		t.Errorf("EPIC display = %s, want 2.5", got)
	}

	if p := c.params(MethodAccountInfo); len(p) != 1 || p[0] != `["`+testAddr.String()+`"]` {
		t.Errorf("params = %v", p)
	}
}

func TestGetAccountInfo_LegacyShapeAndEmpty(t *testing.T) {
	c := newScripted(map[string]reply{
		MethodAccountInfo: {result: `{"totalNumber":"2","tokenBalanceInfoMap":{"tti_5649544520544f4b454e6e40":{"totalAmount":"7"}}}`},
	})
	info, err := newTestRPC(c).GetAccountInfo(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("GetAccountInfo() error: %v", err)
	}
	if info.BlockCount != 2 || info.Balance(types.ViteTokenID).String() != "7" {
		t.Errorf("info = %+v", info)
	}

	c = newScripted(map[string]reply{MethodAccountInfo: {result: `null`}})
	info, err = newTestRPC(c).GetAccountInfo(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("GetAccountInfo(null) error: %v", err)
	}
	if info.BlockCount != 0 || len(info.Balances) != 0 {
		t.Errorf("empty account info = %+v", info)
	}
}

func TestGetUnreceivedCount(t *testing.T) {
	tests := []struct {
		name    string
		result  string
		want    uint64
		wantErr bool
	}{
		{"string count", `{"blockCount":"5"}`, 5, false},
		{"numeric count", `{"blockCount":3}`, 3, false},
		{"null", `null`, 0, false},
		{"garbage count", `{"blockCount":"lots"}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newScripted(map[string]reply{MethodUnreceivedSummary: {result: tt.result}})
			n, err := newTestRPC(c).GetUnreceivedCount(context.Background(), testAddr)
			if tt.wantErr {
				if !IsMalformed(err) {
					t.Errorf("err = %v, want MalformedResponseError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetUnreceivedCount() error: %v", err)
			}
			if n != tt.want {
				t.Errorf("count = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestGetLatestBlock(t *testing.T) {
	c := newScripted(map[string]reply{MethodLatestBlock: {result: `null`}})
	b, err := newTestRPC(c).GetLatestBlock(context.Background(), testAddr)
	if err != nil || b != nil {
		t.Fatalf("fresh account: block = %v, err = %v", b, err)
	}

	c = newScripted(map[string]reply{MethodLatestBlock: {result: `{
		"blockType": 4, "height": "9",
		"hash": "b405ac3f46485864ac1302db21c84c6506c7c0d4c038612665f663c22ec6c11b",
		"address": "vite_74bec955630f7c11fd9d2c24c91b5c37c0cf58a3c4ee2931fa"
	}`}})
	b, err = newTestRPC(c).GetLatestBlock(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("GetLatestBlock() error: %v", err)
	}
	if b.Height != 9 || b.Hash.String() != "b405ac3f46485864ac1302db21c84c6506c7c0d4c038612665f663c22ec6c11b" {
		t.Errorf("block = %+v", b)
	}

	c = newScripted(map[string]reply{MethodLatestBlock: {result: `{
		"blockType": 4, "height": "9",
		"hash": "b405ac3f46485864ac1302db21c84c6506c7c0d4c038612665f663c22ec6c11b",
		"address": "vite_328b70af67e20abd39e5fd3ae826a32670e5497754f2a8ed22"
	}`}})
	if _, err := newTestRPC(c).GetLatestBlock(context.Background(), testAddr); !IsMalformed(err) {
		t.Errorf("foreign latest block: err = %v, want MalformedResponseError", err)
	}
}

func TestGetUnreceivedBlocks(t *testing.T) {
	send := `{"blockType":2,"height":"3","hash":"b405ac3f46485864ac1302db21c84c6506c7c0d4c038612665f663c22ec6c11b",
		"address":"vite_328b70af67e20abd39e5fd3ae826a32670e5497754f2a8ed22",
		"toAddress":"vite_74bec955630f7c11fd9d2c24c91b5c37c0cf58a3c4ee2931fa",
		"tokenId":"tti_5649544520544f4b454e6e40","amount":"100000000"}`
	c := newScripted(map[string]reply{MethodUnreceivedBlocks: {result: "[" + send + "]"}})
	g := newTestRPC(c)

	blocks, err := g.GetUnreceivedBlocks(context.Background(), testAddr, 0, 1)
	if err != nil {
		t.Fatalf("GetUnreceivedBlocks() error: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Amount.String() != "100000000" {
		t.Errorf("blocks = %+v", blocks)
	}
	if p := c.params(MethodUnreceivedBlocks); p[0] != `["`+testAddr.String()+`",0,1]` {
		t.Errorf("params = %s", p[0])
	}

	// A block addressed to someone else is a schema violation.
	if _, err := g.GetUnreceivedBlocks(context.Background(), peerAddr, 0, 1); !IsMalformed(err) {
		t.Errorf("err = %v, want MalformedResponseError", err)
	}

	c = newScripted(map[string]reply{MethodUnreceivedBlocks: {result: `null`}})
	blocks, err = newTestRPC(c).GetUnreceivedBlocks(context.Background(), testAddr, 0, 1)
	if err != nil || len(blocks) != 0 {
		t.Errorf("empty page: blocks = %v, err = %v", blocks, err)
	}
}

func TestGetTransactionList_PageBounds(t *testing.T) {
	c := newScripted(map[string]reply{MethodAccountBlocks: {result: `[]`}})
	g := newTestRPC(c)
	g.GetTransactionList(context.Background(), testAddr, -1, 0)
	g.GetTransactionList(context.Background(), testAddr, 2, 20)
	p := c.params(MethodAccountBlocks)
	if p[0] != `["`+testAddr.String()+`",0,1000]` || p[1] != `["`+testAddr.String()+`",2,20]` {
		t.Errorf("params = %v", p)
	}
}

func TestGetPoWDifficulty(t *testing.T) {
	tests := []struct {
		name    string
		result  string
		want    string
		wantErr bool
	}{
		{"enough quota", `{"requiredQuota":"21000","difficulty":"","qc":"0","isCongestion":false}`, "", false},
		{"null difficulty", `{"requiredQuota":"21000","difficulty":null}`, "", false},
		{"needs work", `{"requiredQuota":"21000","difficulty":"67108863","isCongestion":false}`, "67108863", false},
		{"bad difficulty", `{"difficulty":"0x10"}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newScripted(map[string]reply{MethodPoWDifficulty: {result: tt.result}})
			got, err := newTestRPC(c).GetPoWDifficulty(context.Background(), PoWRequest{
				Address:   testAddr,
				BlockType: block.Send,
				ToAddress: peerAddr,
			})
			if tt.wantErr {
				if !IsMalformed(err) {
					t.Errorf("err = %v, want MalformedResponseError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetPoWDifficulty() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("difficulty = %q, want %q", got, tt.want)
			}
			p := c.params(MethodPoWDifficulty)[0]
			if !strings.Contains(p, `"blockType":2`) || !strings.Contains(p, `"toAddress":"`+peerAddr.String()) {
				t.Errorf("params = %s", p)
			}
		})
	}
}

func TestSolvePoWNonce(t *testing.T) {
	c := newScripted(map[string]reply{MethodPoWNonce: {result: `"AQIDBAUGBwg="`}})
	nonce, err := newTestRPC(c).SolvePoWNonce(context.Background(), "67108863", types.Hash{1})
	if err != nil {
		t.Fatalf("SolvePoWNonce() error: %v", err)
	}
	if string(nonce) != "\x01\x02\x03\x04\x05\x06\x07\x08" {
		t.Errorf("nonce = %x", nonce)
	}

	c = newScripted(map[string]reply{MethodPoWNonce: {result: `"AQI="`}})
	if _, err := newTestRPC(c).SolvePoWNonce(context.Background(), "1", types.Hash{}); !IsMalformed(err) {
		t.Errorf("short nonce: err = %v, want MalformedResponseError", err)
	}
}

func TestSubmitBlock_ErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"node rejection", &rpcclient.RPCError{Code: -35002, Message: "verify prevBlock failed"}, IsRPCError},
		{"transport", rpcclient.ErrTransport, IsUnreachable},
		{"timeout", context.DeadlineExceeded, IsUnreachable},
		{"decode", rpcclient.ErrDecode, IsMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newScripted(map[string]reply{MethodSendRawTx: {err: tt.err}})
			err := newTestRPC(c).SubmitBlock(context.Background(), &block.AccountBlock{BlockType: block.Send})
			if !tt.check(err) {
				t.Errorf("err = %v (%T)", err, err)
			}
		})
	}

	c := newScripted(map[string]reply{MethodSendRawTx: {err: &rpcclient.RPCError{Code: -35002, Message: "verify prevBlock failed"}}})
	err := newTestRPC(c).SubmitBlock(context.Background(), &block.AccountBlock{BlockType: block.Send})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -35002 || rpcErr.Message != "verify prevBlock failed" || rpcErr.Method != MethodSendRawTx {
		t.Errorf("RPCError = %+v, want verbatim node error", rpcErr)
	}
}

func TestRPC_TimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	g := NewRPC(rpcclient.New(srv.URL), Options{Timeout: 50 * time.Millisecond, Logger: zerolog.Nop()})
	start := time.Now()
	_, err := g.GetUnreceivedCount(context.Background(), testAddr)
	if !IsUnreachable(err) {
		t.Fatalf("err = %v, want UnreachableError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped DeadlineExceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("call was not bounded by the gateway timeout")
	}
}

func TestRPC_CircuitBreaker(t *testing.T) {
	c := newScripted(map[string]reply{
		MethodLatestBlock:   {err: rpcclient.ErrTransport},
		MethodPoWDifficulty: {err: &rpcclient.RPCError{Code: -1, Message: "no"}},
	})
	g := NewRPC(c, Options{
		Timeout:         time.Second,
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
		Logger:          zerolog.Nop(),
	})

	// Node rejections do not count toward tripping.
	for i := 0; i < 3; i++ {
		if _, err := g.GetPoWDifficulty(context.Background(), PoWRequest{}); !IsRPCError(err) {
			t.Fatalf("err = %v, want RPCError", err)
		}
	}

	for i := 0; i < 2; i++ {
		g.GetLatestBlock(context.Background(), testAddr)
	}
	before := len(c.params(MethodLatestBlock))

	_, err := g.GetLatestBlock(context.Background(), testAddr)
	if !IsUnreachable(err) {
		t.Fatalf("err = %v, want UnreachableError", err)
	}
	if len(c.params(MethodLatestBlock)) != before {
		t.Error("open circuit still reached the node")
	}
}

func TestRPC_OpenBreakerIsNotSent(t *testing.T) {
	c := newScripted(map[string]reply{
		MethodLatestBlock: {err: rpcclient.ErrTransport},
		MethodSendRawTx:   {result: "null"},
	})
	g := NewRPC(c, Options{
		Timeout:         time.Second,
		BreakerFailures: 1,
		BreakerCooldown: time.Hour,
		Logger:          zerolog.Nop(),
	})

	_, err := g.GetLatestBlock(context.Background(), testAddr)
	if !IsUnreachable(err) || IsNotSent(err) {
		t.Fatalf("err = %v, want a sent request that went unanswered", err)
	}

	err = g.SubmitBlock(context.Background(), &block.AccountBlock{BlockType: block.Send})
	if !IsNotSent(err) {
		t.Fatalf("err = %v, want not sent", err)
	}
	if !IsUnreachable(err) {
		t.Errorf("err = %v, want UnreachableError", err)
	}
	if n := len(c.params(MethodSendRawTx)); n != 0 {
		t.Errorf("node saw %d submissions through an open circuit", n)
	}
}

func TestRPC_NotSentClassification(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		notSent bool
	}{
		{"transport", rpcclient.ErrTransport, false},
		{"timeout", context.DeadlineExceeded, false},
		{"dial", fmt.Errorf("%w: %w: dial: refused", rpcclient.ErrTransport, rpcclient.ErrNotSent), true},
		{"encode", fmt.Errorf("%w: marshal request: bad", rpcclient.ErrNotSent), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newScripted(map[string]reply{MethodSendRawTx: {err: tt.err}})
			err := newTestRPC(c).SubmitBlock(context.Background(), &block.AccountBlock{BlockType: block.Send})
			if !IsUnreachable(err) {
				t.Fatalf("err = %v, want UnreachableError", err)
			}
			if IsNotSent(err) != tt.notSent {
				t.Errorf("IsNotSent(%v) = %v, want %v", err, IsNotSent(err), tt.notSent)
			}
		})
	}
}

func TestRPC_EncodeFailureKeepsBreakerClosed(t *testing.T) {
	c := newScripted(map[string]reply{
		MethodSendRawTx:   {err: fmt.Errorf("%w: marshal request: bad", rpcclient.ErrNotSent)},
		MethodLatestBlock: {result: "null"},
	})
	g := NewRPC(c, Options{
		Timeout:         time.Second,
		BreakerFailures: 1,
		BreakerCooldown: time.Hour,
		Logger:          zerolog.Nop(),
	})
	for i := 0; i < 3; i++ {
		g.SubmitBlock(context.Background(), &block.AccountBlock{BlockType: block.Send})
	}
	if _, err := g.GetLatestBlock(context.Background(), testAddr); err != nil {
		t.Fatalf("local encode failures tripped the breaker: %v", err)
	}
}

func TestPoWRequestFor(t *testing.T) {
	send := &block.AccountBlock{BlockType: block.Send, Address: testAddr, ToAddress: peerAddr, Data: []byte{1}}
	if req := PoWRequestFor(send); req.ToAddress != peerAddr || req.BlockType != block.Send {
		t.Errorf("send request = %+v", req)
	}
	recv := &block.AccountBlock{BlockType: block.Receive, Address: testAddr, ToAddress: peerAddr}
	if req := PoWRequestFor(recv); !req.ToAddress.IsZero() {
		t.Errorf("receive request carries toAddress: %+v", req)
	}
}
