package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/vite-agent/internal/events"
	"github.com/Klingon-tech/vite-agent/internal/gateway"
	"github.com/Klingon-tech/vite-agent/internal/gateway/gatewaytest"
	"github.com/Klingon-tech/vite-agent/internal/receive"
	"github.com/Klingon-tech/vite-agent/internal/storage"
	"github.com/Klingon-tech/vite-agent/internal/txn"
	"github.com/Klingon-tech/vite-agent/internal/wallet"
	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/types"
	"github.com/rs/zerolog"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const (
	addr0 = "vite_74bec955630f7c11fd9d2c24c91b5c37c0cf58a3c4ee2931fa"
	addr1 = "vite_328b70af67e20abd39e5fd3ae826a32670e5497754f2a8ed22"
	vite  = "tti_5649544520544f4b454e6e40"
)

func newAgent(t *testing.T, node *gatewaytest.Node, journal bool) *Agent {
	t.Helper()
	cfg := Config{
		Gateway:    node,
		ReceivePoW: true,
		Receive:    receive.Options{Interval: time.Millisecond},
		Logger:     zerolog.Nop(),
	}
	if journal {
		store, err := events.NewStore(storage.NewMemory())
		if err != nil {
			t.Fatal(err)
		}
		cfg.Journal = store
	}
	return New(cfg)
}

func wantError(t *testing.T, res Result, kind string) *ErrorInfo {
	t.Helper()
	if res.OK {
		t.Fatalf("result OK, want %s error", kind)
	}
	if res.Error == nil {
		t.Fatalf("failed result without error: %+v", res)
	}
	if res.Error.Kind != kind {
		t.Fatalf("error kind = %s (%s), want %s", res.Error.Kind, res.Error.Message, kind)
	}
	return res.Error
}

func wantOK(t *testing.T, res Result) {
	t.Helper()
	if !res.OK {
		t.Fatalf("result failed: %+v", res.Error)
	}
}

func TestCreateWallet(t *testing.T) {
	a := newAgent(t, gatewaytest.NewNode(), false)
	res := a.CreateWallet(context.Background())
	wantOK(t, res)
	if res.Message != "create success" {
		t.Fatalf("message = %q", res.Message)
	}
	data := res.Data.(WalletData)
	if n := len(strings.Fields(data.Mnemonics)); n != 24 {
		t.Fatalf("mnemonic has %d words, want 24", n)
	}
	kp, err := wallet.Keyring{}.Derive(data.Mnemonics, 0)
	if err != nil {
		t.Fatal(err)
	}
	if kp.Address != data.Address {
		t.Fatalf("address %s does not match mnemonic (%s)", data.Address, kp.Address)
	}
}

func TestGetBalance(t *testing.T) {
	node := gatewaytest.NewNode()
	addr := types.MustParseAddress(addr0)
	node.SetBalance(addr, types.ViteTokenID, types.MustParseAmount("1500000000000000000"))
	node.Fund(addr, types.ViteTokenID, types.NewAmount(1))
	node.Fund(addr, types.ViteTokenID, types.NewAmount(2))

	res := newAgent(t, node, false).GetBalance(context.Background(), " "+addr0+" ")
	wantOK(t, res)
	data := res.Data.(BalanceData)
	if data.UnreceivedCount != 2 {
		t.Fatalf("unreceived = %d, want 2", data.UnreceivedCount)
	}
	if len(data.Balances) != 1 {
		t.Fatalf("balances = %+v", data.Balances)
	}
	b := data.Balances[0]
	if b.Balance.String() != "1500000000000000000" || b.Display != "1.5" || b.Symbol != "VITE" {
		t.Fatalf("balance = %+v", b)
	}
}

func TestGetBalance_Errors(t *testing.T) {
	node := gatewaytest.NewNode()
	a := newAgent(t, node, false)

	info := wantError(t, a.GetBalance(context.Background(), "vite_nope"), KindInvalidArgument)
	if !info.RetrySafe {
		t.Fatal("invalid argument should be retry-safe")
	}

	node.Inject(gateway.MethodAccountInfo, &gateway.UnreachableError{Method: gateway.MethodAccountInfo, Err: context.DeadlineExceeded})
	wantError(t, a.GetBalance(context.Background(), addr0), KindUnreachable)

	node.Inject(gateway.MethodUnreceivedSummary, &gateway.MalformedResponseError{Method: gateway.MethodUnreceivedSummary, Err: errors.New("bad count")})
	wantError(t, a.GetBalance(context.Background(), addr0), KindMalformedResponse)
}

func TestGetTransactions(t *testing.T) {
	node := gatewaytest.NewNode()
	node.SetBalance(types.MustParseAddress(addr0), types.ViteTokenID, types.NewAmount(100))
	a := newAgent(t, node, false)
	for i := 0; i < 3; i++ {
		wantOK(t, a.Send(context.Background(), testMnemonic, 0, addr1, vite, "10"))
	}

	res := a.GetTransactions(context.Background(), addr0, 2, 0)
	wantOK(t, res)
	blocks := res.Data.([]*block.AccountBlock)
	if len(blocks) != 2 || blocks[0].Height != 3 || blocks[1].Height != 2 {
		t.Fatalf("first page = %d blocks", len(blocks))
	}
	res = a.GetTransactions(context.Background(), addr0, 2, 1)
	wantOK(t, res)
	if blocks := res.Data.([]*block.AccountBlock); len(blocks) != 1 || blocks[0].Height != 1 {
		t.Fatalf("second page = %+v", blocks)
	}
	res = a.GetTransactions(context.Background(), addr0, 0, 5)
	wantOK(t, res)
	if blocks := res.Data.([]*block.AccountBlock); len(blocks) != 0 {
		t.Fatalf("past the end = %d blocks", len(blocks))
	}

	wantError(t, a.GetTransactions(context.Background(), addr0, gateway.MaxPageSize+1, 0), KindInvalidArgument)
	wantError(t, a.GetTransactions(context.Background(), addr0, 10, -1), KindInvalidArgument)
}

func TestSend(t *testing.T) {
	node := gatewaytest.NewNode()
	node.SetBalance(types.MustParseAddress(addr0), types.ViteTokenID, types.MustParseAmount("1000000000"))
	a := newAgent(t, node, true)

	res := a.Send(context.Background(), testMnemonic, 0, addr1, vite, "100000000")
	wantOK(t, res)
	if res.Message != "send success" {
		t.Fatalf("message = %q", res.Message)
	}
	data := res.Data.(SendData)
	if data.Amount.String() != "100000000" || data.To.String() != addr1 || data.From.String() != addr0 {
		t.Fatalf("send data = %+v", data)
	}
	if data.ExplorerURL != types.ExplorerTxURL(data.Hash) {
		t.Fatalf("explorer url = %s", data.ExplorerURL)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var env map[string]json.RawMessage
	json.Unmarshal(raw, &env)
	if string(env["ok"]) != "true" || env["data"] == nil || env["error"] != nil {
		t.Fatalf("envelope = %s", raw)
	}
	var wire struct {
		Amount string `json:"amount"`
	}
	json.Unmarshal(env["data"], &wire)
	if wire.Amount != "100000000" {
		t.Fatalf("wire amount = %q", wire.Amount)
	}

	hist := a.History(context.Background(), addr0, 0)
	wantOK(t, hist)
	evs := hist.Data.([]events.Event)
	if len(evs) != 1 || evs[0].Status != events.StatusAccepted || evs[0].Hash != data.Hash {
		t.Fatalf("history = %+v", evs)
	}
}

func TestSend_Errors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*gatewaytest.Node)
		mnemonic  string
		to, token string
		amount    string
		kind      string
		stage     string
		retrySafe bool
	}{
		{"bad address", nil, testMnemonic, "vite_123", vite, "1", KindInvalidArgument, "", true},
		{"bad token", nil, testMnemonic, addr1, "tti_00", "1", KindInvalidArgument, "", true},
		{"fractional amount", nil, testMnemonic, addr1, vite, "1.5", KindInvalidArgument, "", true},
		{"negative amount", nil, testMnemonic, addr1, vite, "-1", KindInvalidArgument, "", true},
		{"bad seed", nil, "abandon abandon", addr1, vite, "1", KindInvalidSeed, "keys", true},
		{"chain state", func(n *gatewaytest.Node) {
			n.Inject(gateway.MethodLatestBlock, &gateway.UnreachableError{Method: gateway.MethodLatestBlock, Err: context.DeadlineExceeded})
		}, testMnemonic, addr1, vite, "1", KindChainStateUnavailable, "chain-state", true},
		{"difficulty", func(n *gatewaytest.Node) {
			n.Inject(gateway.MethodPoWDifficulty, &gateway.RPCError{Method: gateway.MethodPoWDifficulty, Code: -32000, Message: "busy"})
		}, testMnemonic, addr1, vite, "1", KindDifficultyQuery, "difficulty", true},
		{"nonce", func(n *gatewaytest.Node) {
			n.Difficulty = "100"
			n.Inject(gateway.MethodPoWNonce, &gateway.UnreachableError{Method: gateway.MethodPoWNonce, Err: context.DeadlineExceeded})
		}, testMnemonic, addr1, vite, "1", KindNonce, "nonce", true},
		{"insufficient balance", nil, testMnemonic, addr1, vite, "1000000001", KindRPCError, "submit", true},
		{"ambiguous", func(n *gatewaytest.Node) { n.LoseSubmitReplies(1) }, testMnemonic, addr1, vite, "1", KindSubmissionAmbiguous, "submit", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := gatewaytest.NewNode()
			node.SetBalance(types.MustParseAddress(addr0), types.ViteTokenID, types.MustParseAmount("1000000000"))
			if tt.setup != nil {
				tt.setup(node)
			}
			res := newAgent(t, node, false).Send(context.Background(), tt.mnemonic, 0, tt.to, tt.token, tt.amount)
			info := wantError(t, res, tt.kind)
			if info.Stage != tt.stage {
				t.Fatalf("stage = %q, want %q", info.Stage, tt.stage)
			}
			if info.RetrySafe != tt.retrySafe {
				t.Fatalf("retrySafe = %v, want %v", info.RetrySafe, tt.retrySafe)
			}
			if res.Message != "send failed" {
				t.Fatalf("message = %q", res.Message)
			}
		})
	}
}

func TestSend_RejectionKeepsNodeCode(t *testing.T) {
	node := gatewaytest.NewNode()
	a := newAgent(t, node, true)
	info := wantError(t, a.Send(context.Background(), testMnemonic, 0, addr1, vite, "5"), KindRPCError)
	if info.Code != gatewaytest.CodeInsufficientBalance || !strings.Contains(info.Message, "insufficient balance") {
		t.Fatalf("error = %+v", info)
	}
	evs := a.History(context.Background(), addr0, 0).Data.([]events.Event)
	if len(evs) != 1 || evs[0].Status != events.StatusRejected {
		t.Fatalf("history = %+v", evs)
	}
}

func TestSend_AmbiguousIsJournalled(t *testing.T) {
	node := gatewaytest.NewNode()
	node.SetBalance(types.MustParseAddress(addr0), types.ViteTokenID, types.NewAmount(10))
	node.LoseSubmitReplies(1)
	a := newAgent(t, node, true)

	wantError(t, a.Send(context.Background(), testMnemonic, 0, addr1, vite, "5"), KindSubmissionAmbiguous)
	evs := a.History(context.Background(), addr0, 0).Data.([]events.Event)
	if len(evs) != 1 || evs[0].Status != events.StatusAmbiguous {
		t.Fatalf("history = %+v", evs)
	}
	if chain := node.Chain(types.MustParseAddress(addr0)); len(chain) != 1 || chain[0].Hash != evs[0].Hash {
		t.Fatal("journal should name the block the node accepted")
	}
}

func TestSend_UnsentIsJournalled(t *testing.T) {
	node := gatewaytest.NewNode()
	node.SetBalance(types.MustParseAddress(addr0), types.ViteTokenID, types.NewAmount(10))
	node.Inject(gateway.MethodSendRawTx, &gateway.UnreachableError{
		Method:  gateway.MethodSendRawTx,
		Err:     errors.New("circuit breaker is open"),
		NotSent: true,
	})
	a := newAgent(t, node, true)

	info := wantError(t, a.Send(context.Background(), testMnemonic, 0, addr1, vite, "5"), KindUnreachable)
	if info.Stage != "submit" || !info.RetrySafe {
		t.Fatalf("error = %+v, want retry-safe submit failure", info)
	}
	evs := a.History(context.Background(), addr0, 0).Data.([]events.Event)
	if len(evs) != 1 || evs[0].Status != events.StatusNotSent {
		t.Fatalf("history = %+v", evs)
	}
	if len(node.Chain(types.MustParseAddress(addr0))) != 0 {
		t.Fatal("ledger changed for an unsent block")
	}
}

func TestSend_IndexOutOfRange(t *testing.T) {
	node := gatewaytest.NewNode()
	a := newAgent(t, node, false)
	info := wantError(t, a.Send(context.Background(), testMnemonic, 1<<31, addr1, vite, "1"), KindInvalidArgument)
	if info.Stage != "keys" || !info.RetrySafe {
		t.Fatalf("error = %+v", info)
	}
	wantError(t, a.ReceiveAll(context.Background(), testMnemonic, 1<<31), KindInvalidArgument)
}

func TestReceiveAll(t *testing.T) {
	node := gatewaytest.NewNode()
	addr := types.MustParseAddress(addr0)
	for i := uint64(1); i <= 3; i++ {
		node.Fund(addr, types.ViteTokenID, types.NewAmount(i*100))
	}
	a := newAgent(t, node, true)

	res := a.ReceiveAll(context.Background(), testMnemonic, 0)
	wantOK(t, res)
	data := res.Data.(*ReceiveData)
	if data.Status != receive.StatusSuccess || len(data.Claimed) != 3 {
		t.Fatalf("session = %+v", data)
	}
	if data.Claimed[0].Amount.String() != "100" || data.Claimed[2].Amount.String() != "300" {
		t.Fatalf("claimed = %+v", data.Claimed)
	}
	if node.Pending(addr) != 0 {
		t.Fatalf("pending = %d, want 0", node.Pending(addr))
	}
	if n := node.Calls(gateway.MethodUnreceivedBlocks); n != 4 {
		t.Fatalf("claim queries = %d, want 4", n)
	}
	evs := a.History(context.Background(), addr0, 0).Data.([]events.Event)
	if len(evs) != 3 || evs[0].Kind != events.KindReceive {
		t.Fatalf("history = %+v", evs)
	}
}

func TestReceiveAll_NoPending(t *testing.T) {
	node := gatewaytest.NewNode()
	res := newAgent(t, node, false).ReceiveAll(context.Background(), testMnemonic, 0)
	wantError(t, res, KindNoPending)
	data := res.Data.(*ReceiveData)
	if data.Status != receive.StatusFailed || len(data.Claimed) != 0 {
		t.Fatalf("session = %+v", data)
	}
	if node.Calls(gateway.MethodUnreceivedBlocks) != 0 {
		t.Fatal("claim attempted with nothing pending")
	}
}

func TestReceiveAll_ClaimFailures(t *testing.T) {
	node := gatewaytest.NewNode()
	node.Fund(types.MustParseAddress(addr0), types.ViteTokenID, types.NewAmount(1))
	fail := &gateway.UnreachableError{Method: gateway.MethodLatestBlock, Err: context.DeadlineExceeded}
	node.Inject(gateway.MethodLatestBlock, fail, fail, fail)

	res := newAgent(t, node, false).ReceiveAll(context.Background(), testMnemonic, 0)
	wantError(t, res, KindTooManyClaimFailures)
	if data := res.Data.(*ReceiveData); len(data.Failed) != 3 {
		t.Fatalf("failed = %v", data.Failed)
	}
}

func TestReceiveAll_Cancelled(t *testing.T) {
	node := gatewaytest.NewNode()
	node.Fund(types.MustParseAddress(addr0), types.ViteTokenID, types.NewAmount(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newAgent(t, node, false).ReceiveAll(ctx, testMnemonic, 0)
	wantError(t, res, KindCancelled)
	if data := res.Data.(*ReceiveData); !data.Cancelled {
		t.Fatalf("session = %+v", data)
	}
}

func TestReceiveAll_InvalidSeed(t *testing.T) {
	res := newAgent(t, gatewaytest.NewNode(), false).ReceiveAll(context.Background(), "zzz", 0)
	wantError(t, res, KindInvalidSeed)
}

func TestReceiveAllMany(t *testing.T) {
	node := gatewaytest.NewNode()
	node.Fund(types.MustParseAddress(addr0), types.ViteTokenID, types.NewAmount(5))
	node.Fund(types.MustParseAddress(addr1), types.ViteTokenID, types.NewAmount(6))
	node.Fund(types.MustParseAddress(addr1), types.ViteTokenID, types.NewAmount(7))
	a := newAgent(t, node, false)

	res := a.ReceiveAllMany(context.Background(), testMnemonic, []uint32{1, 0})
	wantOK(t, res)
	out := res.Data.([]*ReceiveData)
	if len(out) != 2 || out[0].Address.String() != addr1 || out[1].Address.String() != addr0 {
		t.Fatalf("results out of order: %+v", out)
	}
	if len(out[0].Claimed) != 2 || len(out[1].Claimed) != 1 {
		t.Fatalf("claimed %d and %d", len(out[0].Claimed), len(out[1].Claimed))
	}

	// Index 2 has nothing pending, so the batch is not OK but keeps every session.
	res = a.ReceiveAllMany(context.Background(), testMnemonic, []uint32{0, 2})
	info := wantError(t, res, KindNoPending)
	if !strings.Contains(info.Message, "address index 0") {
		t.Fatalf("message = %q", info.Message)
	}
	if out := res.Data.([]*ReceiveData); len(out) != 2 {
		t.Fatalf("data = %+v", out)
	}

	wantError(t, a.ReceiveAllMany(context.Background(), testMnemonic, nil), KindInvalidArgument)
	wantError(t, a.ReceiveAllMany(context.Background(), testMnemonic, []uint32{3, 3}), KindInvalidArgument)
}

func TestHistory_Disabled(t *testing.T) {
	a := newAgent(t, gatewaytest.NewNode(), false)
	wantError(t, a.History(context.Background(), addr0, 10), KindJournalDisabled)
}

// panicGateway fails every call by panicking.
type panicGateway struct{ gateway.Gateway }

func (panicGateway) GetAccountInfo(context.Context, types.Address) (*gateway.AccountInfo, error) {
	panic("boom")
}

func TestAgent_RecoversPanics(t *testing.T) {
	a := New(Config{Gateway: panicGateway{}, Logger: zerolog.Nop()})
	res := a.GetBalance(context.Background(), addr0)
	info := wantError(t, res, KindInternal)
	if info.Message != "boom" || res.Message != "balance failed" {
		t.Fatalf("result = %+v", res)
	}
}

func TestClassify(t *testing.T) {
	ambiguous := &txn.StageError{Stage: txn.StageSubmit, Err: errors.Join(txn.ErrSubmissionAmbiguous, errors.New("eof"))}
	tests := []struct {
		err       error
		kind      string
		retrySafe bool
	}{
		{wallet.ErrInvalidSeed, KindInvalidSeed, true},
		{&txn.StageError{Stage: txn.StageKeys, Err: wallet.ErrIndexOutOfRange}, KindInvalidArgument, true},
		{&gateway.RPCError{Code: -35002}, KindRPCError, true},
		{ambiguous, KindSubmissionAmbiguous, false},
		{&receive.ClaimError{Attempt: 1, Err: ambiguous}, KindSubmissionAmbiguous, false},
		{receive.ErrCancelled, KindCancelled, true},
		{errors.New("disk on fire"), KindInternal, true},
	}
	for _, tt := range tests {
		info := Classify(tt.err)
		if info.Kind != tt.kind || info.RetrySafe != tt.retrySafe {
			t.Errorf("Classify(%v) = %s/%v, want %s/%v", tt.err, info.Kind, info.RetrySafe, tt.kind, tt.retrySafe)
		}
	}
}
