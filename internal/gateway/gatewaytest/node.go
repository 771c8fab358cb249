// Package gatewaytest provides an in-memory Vite node for tests.
package gatewaytest

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/Klingon-tech/vite-agent/internal/gateway"
	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/crypto"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// Node error codes, mirroring gvite's.
const (
	CodeVerifyFailed        = -35002
	CodeInsufficientBalance = -35001
	CodeUnknownSendBlock    = -36004
)

// Node is a single-process ledger that implements gateway.Gateway. It
// checks heights, previous hashes and signatures on submit, and moves
// balances between accounts it knows about. Safe for concurrent use.
type Node struct {
	// Difficulty is returned by GetPoWDifficulty; "" means enough quota.
	Difficulty string

	// TokenInfo supplies metadata for balances. Missing tokens get zero decimals.
	TokenInfo map[types.TokenID]types.TokenInfo

	mu       sync.Mutex
	accounts map[types.Address]*account
	inject   map[string][]error
	lost     int
	calls    map[string]int
	seq      uint64
}

type account struct {
	chain      []*block.AccountBlock
	balances   map[types.TokenID]types.Amount
	unreceived []*block.AccountBlock
}

var _ gateway.Gateway = (*Node)(nil)

// NewNode returns an empty node with VITE token metadata.
func NewNode() *Node {
	return &Node{
		TokenInfo: map[types.TokenID]types.TokenInfo{
			types.ViteTokenID: {TokenName: "Vite Token", TokenSymbol: "VITE", TokenID: types.ViteTokenID, Decimals: 18},
		},
		accounts: make(map[types.Address]*account),
		inject:   make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (n *Node) acct(a types.Address) *account {
	ac, ok := n.accounts[a]
	if !ok {
		ac = &account{balances: make(map[types.TokenID]types.Amount)}
		n.accounts[a] = ac
	}
	return ac
}

// Fund queues an inbound send block of amount tok to addr, as if an
// external account had sent it. Returns the send block.
func (n *Node) Fund(addr types.Address, tok types.TokenID, amount types.Amount) *block.AccountBlock {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	from := types.Address{0xfe}
	binary.BigEndian.PutUint64(from[8:], n.seq)
	send := &block.AccountBlock{
		BlockType: block.Send,
		Height:    n.seq,
		Address:   from,
		ToAddress: addr,
		TokenID:   tok,
		Amount:    amount,
	}
	send.Hash = send.ComputeHash()
	n.acct(addr).unreceived = append(n.acct(addr).unreceived, send)
	return send
}

// SetBalance sets addr's confirmed balance of tok.
func (n *Node) SetBalance(addr types.Address, tok types.TokenID, amount types.Amount) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.acct(addr).balances[tok] = amount
}

// Inject queues errors for method (a gateway.Method* name). Each call pops
// one entry; a nil entry lets that call through.
func (n *Node) Inject(method string, errs ...error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inject[method] = append(n.inject[method], errs...)
}

// LoseSubmitReplies makes the next k submissions take effect on the ledger
// but report a transport failure to the caller.
func (n *Node) LoseSubmitReplies(k int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lost += k
}

// Calls returns how many times method was invoked.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// Chain returns a copy of addr's account chain, oldest first.
func (n *Node) Chain(addr types.Address) []*block.AccountBlock {
	n.mu.Lock()
	defer n.mu.Unlock()
	ac, ok := n.accounts[addr]
	if !ok {
		return nil
	}
	out := make([]*block.AccountBlock, len(ac.chain))
	for i, b := range ac.chain {
		out[i] = b.Clone()
	}
	return out
}

// Pending returns how many inbound blocks addr has not received.
func (n *Node) Pending(addr types.Address) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ac, ok := n.accounts[addr]; ok {
		return len(ac.unreceived)
	}
	return 0
}

// enter records a call and returns an injected error, if any. Caller holds mu.
func (n *Node) enter(ctx context.Context, method string) error {
	n.calls[method]++
	if err := ctx.Err(); err != nil {
		return &gateway.UnreachableError{Method: method, Err: err}
	}
	if q := n.inject[method]; len(q) > 0 {
		n.inject[method] = q[1:]
		return q[0]
	}
	return nil
}

// GetAccountInfo implements gateway.Gateway.
func (n *Node) GetAccountInfo(ctx context.Context, addr types.Address) (*gateway.AccountInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(ctx, gateway.MethodAccountInfo); err != nil {
		return nil, err
	}
	ac := n.acct(addr)
	info := &gateway.AccountInfo{Address: addr, BlockCount: uint64(len(ac.chain))}
	for tok, amt := range ac.balances {
		ti, ok := n.TokenInfo[tok]
		if !ok {
			ti = types.TokenInfo{TokenID: tok}
		}
		info.Balances = append(info.Balances, gateway.TokenBalance{TokenInfo: ti, Balance: amt})
	}
	return info, nil
}

// GetUnreceivedCount implements gateway.Gateway.
func (n *Node) GetUnreceivedCount(ctx context.Context, addr types.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(ctx, gateway.MethodUnreceivedSummary); err != nil {
		return 0, err
	}
	return uint64(len(n.acct(addr).unreceived)), nil
}

// GetTransactionList implements gateway.Gateway.
func (n *Node) GetTransactionList(ctx context.Context, addr types.Address, pageIndex, pageSize int) ([]*block.AccountBlock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(ctx, gateway.MethodAccountBlocks); err != nil {
		return nil, err
	}
	chain := n.acct(addr).chain
	newest := make([]*block.AccountBlock, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		newest = append(newest, chain[i].Clone())
	}
	return page(newest, pageIndex, pageSize), nil
}

// GetLatestBlock implements gateway.Gateway.
func (n *Node) GetLatestBlock(ctx context.Context, addr types.Address) (*block.AccountBlock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(ctx, gateway.MethodLatestBlock); err != nil {
		return nil, err
	}
	chain := n.acct(addr).chain
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1].Clone(), nil
}

// GetUnreceivedBlocks implements gateway.Gateway.
func (n *Node) GetUnreceivedBlocks(ctx context.Context, addr types.Address, pageIndex, pageSize int) ([]*block.AccountBlock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(ctx, gateway.MethodUnreceivedBlocks); err != nil {
		return nil, err
	}
	pending := n.acct(addr).unreceived
	out := make([]*block.AccountBlock, len(pending))
	for i, b := range pending {
		out[i] = b.Clone()
	}
	return page(out, pageIndex, pageSize), nil
}

// GetPoWDifficulty implements gateway.Gateway.
func (n *Node) GetPoWDifficulty(ctx context.Context, req gateway.PoWRequest) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(ctx, gateway.MethodPoWDifficulty); err != nil {
		return "", err
	}
	return n.Difficulty, nil
}

// SolvePoWNonce implements gateway.Gateway. The nonce is derived from hash
// so repeated requests agree.
func (n *Node) SolvePoWNonce(ctx context.Context, difficulty string, hash types.Hash) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(ctx, gateway.MethodPoWNonce); err != nil {
		return nil, err
	}
	h := crypto.Hash(hash[:], []byte(difficulty))
	return h[:block.NonceSize], nil
}

// SubmitBlock implements gateway.Gateway.
func (n *Node) SubmitBlock(ctx context.Context, b *block.AccountBlock) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enter(ctx, gateway.MethodSendRawTx); err != nil {
		return err
	}
	if err := n.apply(b.Clone()); err != nil {
		return err
	}
	if n.lost > 0 {
		n.lost--
		return &gateway.UnreachableError{Method: gateway.MethodSendRawTx, Err: errors.New("connection reset by peer")}
	}
	return nil
}

func reject(code int, msg string) error {
	return &gateway.RPCError{Method: gateway.MethodSendRawTx, Code: code, Message: msg}
}

func (n *Node) apply(b *block.AccountBlock) error {
	if err := b.Validate(); err != nil {
		return reject(CodeVerifyFailed, err.Error())
	}
	if err := b.VerifySignature(); err != nil {
		return reject(CodeVerifyFailed, err.Error())
	}
	if n.Difficulty != "" && !b.HasPoW() {
		return reject(CodeVerifyFailed, "verify pow failed")
	}

	ac := n.acct(b.Address)
	var wantPrev types.Hash
	wantHeight := uint64(1)
	if len(ac.chain) > 0 {
		head := ac.chain[len(ac.chain)-1]
		wantPrev, wantHeight = head.Hash, head.Height+1
	}
	if b.Height != wantHeight || b.PreviousHash != wantPrev {
		return reject(CodeVerifyFailed, "verify prevBlock failed")
	}

	switch b.BlockType {
	case block.Send:
		bal := ac.balances[b.TokenID]
		if bal.Cmp(b.Amount) < 0 {
			return reject(CodeInsufficientBalance, "insufficient balance for transfer")
		}
		ac.balances[b.TokenID], _ = bal.Sub(b.Amount)
		to := n.acct(b.ToAddress)
		to.unreceived = append(to.unreceived, b)
	case block.Receive:
		idx := -1
		for i, s := range ac.unreceived {
			if s.Hash == b.SendBlockHash {
				idx = i
				break
			}
		}
		if idx < 0 {
			return reject(CodeUnknownSendBlock, "send block not found or already received")
		}
		send := ac.unreceived[idx]
		ac.unreceived = append(ac.unreceived[:idx:idx], ac.unreceived[idx+1:]...)
		sum, err := ac.balances[send.TokenID].Add(send.Amount)
		if err != nil {
			return reject(CodeVerifyFailed, err.Error())
		}
		ac.balances[send.TokenID] = sum
		b.TokenID, b.Amount, b.FromAddress = send.TokenID, send.Amount, send.Address
	}
	ac.chain = append(ac.chain, b)
	return nil
}

func page(blocks []*block.AccountBlock, index, size int) []*block.AccountBlock {
	if size <= 0 {
		size = gateway.MaxPageSize
	}
	start := index * size
	if index < 0 || start >= len(blocks) {
		return nil
	}
	end := start + size
	if end > len(blocks) {
		end = len(blocks)
	}
	return blocks[start:end]
}

