// Package agent is the wallet facade: every operation returns a Result
// envelope and never an error or panic.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/vite-agent/internal/events"
	"github.com/Klingon-tech/vite-agent/internal/gateway"
	"github.com/Klingon-tech/vite-agent/internal/pow"
	"github.com/Klingon-tech/vite-agent/internal/receive"
	"github.com/Klingon-tech/vite-agent/internal/txn"
	"github.com/Klingon-tech/vite-agent/internal/wallet"
	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Operation names, used in result messages.
const (
	OpCreate       = "create"
	OpBalance      = "balance"
	OpTransactions = "transactions"
	OpSend         = "send"
	OpReceive      = "receive"
	OpHistory      = "history"
)

// Paging defaults for GetTransactions.
const (
	DefaultPageSize = 10

	// MaxParallelReceives bounds ReceiveAllMany.
	MaxParallelReceives = 8
)

// Config wires an Agent.
type Config struct {
	Gateway gateway.Gateway

	// PoW solves nonces; nil uses the node.
	PoW pow.Strategy

	Keyring wallet.Keyring

	// ReceivePoW asks for a difficulty on receive blocks too.
	ReceivePoW bool

	Receive receive.Options

	// Journal, if set, records every signed block the agent submits.
	Journal *events.Store

	Logger zerolog.Logger
}

// Agent runs wallet operations against one node.
type Agent struct {
	gw        gateway.Gateway
	keyring   wallet.Keyring
	submitter *txn.Submitter
	receive   receive.Options
	journal   *events.Store
	logger    zerolog.Logger
}

// New returns an agent for cfg.
func New(cfg Config) *Agent {
	strategy := cfg.PoW
	if strategy == nil {
		strategy = &pow.Node{Gateway: cfg.Gateway}
	}
	builder := txn.NewBuilder(cfg.Gateway, strategy, cfg.Logger)
	builder.ReceivePoW = cfg.ReceivePoW
	return &Agent{
		gw:        cfg.Gateway,
		keyring:   cfg.Keyring,
		submitter: txn.NewSubmitter(cfg.Keyring, builder, cfg.Logger),
		receive:   cfg.Receive,
		journal:   cfg.Journal,
		logger:    cfg.Logger,
	}
}

// WalletData is returned by CreateWallet.
type WalletData struct {
	Mnemonics string        `json:"mnemonics"`
	Address   types.Address `json:"address"`
}

// BalanceData is a point-in-time view of an account.
type BalanceData struct {
	Address         types.Address  `json:"address"`
	Balances        []TokenBalance `json:"balances"`
	UnreceivedCount uint64         `json:"unreceivedCount"`
}

// TokenBalance is one token's balance in raw units and for display.
type TokenBalance struct {
	TokenID  types.TokenID `json:"tokenId"`
	Symbol   string        `json:"symbol"`
	Name     string        `json:"name"`
	Decimals int32         `json:"decimals"`
	Balance  types.Amount  `json:"balance"`
	Display  string        `json:"display"`
}

// SendData describes an accepted send.
type SendData struct {
	Hash        types.Hash          `json:"hash"`
	Height      uint64              `json:"height"`
	From        types.Address       `json:"from"`
	To          types.Address       `json:"to"`
	TokenID     types.TokenID       `json:"tokenId"`
	Amount      types.Amount        `json:"amount"`
	ExplorerURL string              `json:"explorerUrl"`
	Block       *block.AccountBlock `json:"block"`
}

// ReceiveData is the final state of a receive session.
type ReceiveData struct {
	Session   string         `json:"session"`
	Address   types.Address  `json:"address"`
	Status    receive.Status `json:"status"`
	Claimed   []ClaimedBlock `json:"claimed"`
	Failed    []string       `json:"failed"`
	Remaining uint64         `json:"remaining"`
	Cancelled bool           `json:"cancelled"`
	Reason    string         `json:"reason,omitempty"`
	Error     *ErrorInfo     `json:"error,omitempty"`
}

// ClaimedBlock is one received block.
type ClaimedBlock struct {
	Hash          types.Hash    `json:"hash"`
	Height        uint64        `json:"height"`
	SendBlockHash types.Hash    `json:"sendBlockHash"`
	From          types.Address `json:"from"`
	TokenID       types.TokenID `json:"tokenId"`
	Amount        types.Amount  `json:"amount"`
}

// CreateWallet generates a new mnemonic and returns it with its first address.
func (a *Agent) CreateWallet(ctx context.Context) (res Result) {
	defer a.guard(OpCreate, &res)

	mnemonic, kp, err := a.keyring.Create()
	if err != nil {
		return failure(OpCreate, err)
	}
	defer kp.Zero()
	a.logger.Info().Str("address", kp.Address.String()).Msg("Created wallet")
	return success(OpCreate, WalletData{Mnemonics: mnemonic, Address: kp.Address})
}

// GetBalance returns confirmed balances and the unreceived count for address.
func (a *Agent) GetBalance(ctx context.Context, address string) (res Result) {
	defer a.guard(OpBalance, &res)

	addr, err := parseAddress(address)
	if err != nil {
		return failure(OpBalance, err)
	}
	info, err := a.gw.GetAccountInfo(ctx, addr)
	if err != nil {
		return failure(OpBalance, err)
	}
	count, err := a.gw.GetUnreceivedCount(ctx, addr)
	if err != nil {
		return failure(OpBalance, err)
	}

	data := BalanceData{Address: addr, Balances: make([]TokenBalance, 0, len(info.Balances)), UnreceivedCount: count}
	for _, b := range info.Balances {
		data.Balances = append(data.Balances, TokenBalance{
			TokenID:  b.TokenInfo.TokenID,
			Symbol:   b.TokenInfo.TokenSymbol,
			Name:     b.TokenInfo.TokenName,
			Decimals: b.TokenInfo.Decimals,
			Balance:  b.Balance,
			Display:  b.Balance.Display(b.TokenInfo.Decimals),
		})
	}
	return success(OpBalance, data)
}

// GetTransactions returns page index of address's blocks, size per page,
// newest first. size 0 means DefaultPageSize.
func (a *Agent) GetTransactions(ctx context.Context, address string, size, index int) (res Result) {
	defer a.guard(OpTransactions, &res)

	addr, err := parseAddress(address)
	if err != nil {
		return failure(OpTransactions, err)
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if size < 0 || size > gateway.MaxPageSize {
		return failure(OpTransactions, invalid("page size must be 1..%d, got %d", gateway.MaxPageSize, size))
	}
	if index < 0 {
		return failure(OpTransactions, invalid("page index must be >= 0, got %d", index))
	}
	blocks, err := a.gw.GetTransactionList(ctx, addr, index, size)
	if err != nil {
		return failure(OpTransactions, err)
	}
	if blocks == nil {
		blocks = []*block.AccountBlock{}
	}
	return success(OpTransactions, blocks)
}

// Send transfers amount (smallest units, decimal string) of tokenID from
// the account at index to toAddress.
func (a *Agent) Send(ctx context.Context, mnemonics string, index uint32, toAddress, tokenID, amount string) (res Result) {
	defer a.guard(OpSend, &res)

	to, err := parseAddress(toAddress)
	if err != nil {
		return failure(OpSend, err)
	}
	tok, err := types.ParseTokenID(strings.TrimSpace(tokenID))
	if err != nil {
		return failure(OpSend, invalid("token id: %v", err))
	}
	amt, err := types.ParseAmount(strings.TrimSpace(amount))
	if err != nil {
		return failure(OpSend, invalid("amount: %v", err))
	}

	sub, err := a.submitter.Send(ctx, mnemonics, index, to, tok, amt)
	if err != nil {
		var se *txn.StageError
		if errors.As(err, &se) && se.Block != nil {
			a.record(se.Block, err)
		}
		return failure(OpSend, err)
	}
	a.record(sub.Block, nil)

	return success(OpSend, SendData{
		Hash:        sub.Hash,
		Height:      sub.Block.Height,
		From:        sub.Block.Address,
		To:          sub.Block.ToAddress,
		TokenID:     sub.Block.TokenID,
		Amount:      sub.Block.Amount,
		ExplorerURL: sub.ExplorerURL,
		Block:       sub.Block,
	})
}

// ReceiveAll claims every unreceived block of the account at index, one at
// a time. Cancelling ctx stops the session between claims.
func (a *Agent) ReceiveAll(ctx context.Context, mnemonics string, index uint32) (res Result) {
	defer a.guard(OpReceive, &res)

	data, err := a.receiveOne(ctx, mnemonics, index)
	if err != nil {
		r := failure(OpReceive, err)
		if data != nil {
			r.Data = data
		}
		return r
	}
	return success(OpReceive, data)
}

// ReceiveAllMany runs ReceiveAll for several accounts of one mnemonic
// concurrently. Data lists one ReceiveData per index, in order. The result
// is OK only when every session succeeded.
func (a *Agent) ReceiveAllMany(ctx context.Context, mnemonics string, indices []uint32) (res Result) {
	defer a.guard(OpReceive, &res)

	if len(indices) == 0 {
		return failure(OpReceive, invalid("no address indices"))
	}
	seen := make(map[uint32]bool, len(indices))
	for _, i := range indices {
		if seen[i] {
			return failure(OpReceive, invalid("duplicate address index %d", i))
		}
		seen[i] = true
	}

	out := make([]*ReceiveData, len(indices))
	errs := make([]error, len(indices))
	var g errgroup.Group
	g.SetLimit(MaxParallelReceives)
	for i, idx := range indices {
		g.Go(func() error {
			out[i], errs[i] = a.receiveOne(ctx, mnemonics, idx)
			return nil
		})
	}
	g.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		r := failure(OpReceive, fmt.Errorf("address index %d: %w", indices[i], err))
		r.Data = out
		return r
	}
	return success(OpReceive, out)
}

// History returns the journalled events of address, newest first.
func (a *Agent) History(ctx context.Context, address string, limit int) (res Result) {
	defer a.guard(OpHistory, &res)

	if a.journal == nil {
		return failure(OpHistory, ErrJournalDisabled)
	}
	addr, err := parseAddress(address)
	if err != nil {
		return failure(OpHistory, err)
	}
	if limit < 0 {
		return failure(OpHistory, invalid("limit must be >= 0, got %d", limit))
	}
	evs, err := a.journal.List(addr, limit)
	if err != nil {
		return failure(OpHistory, err)
	}
	return success(OpHistory, evs)
}

func (a *Agent) receiveOne(ctx context.Context, mnemonics string, index uint32) (*ReceiveData, error) {
	kp, err := a.keyring.Derive(mnemonics, index)
	if err != nil {
		return nil, err
	}
	defer kp.Zero()

	p, err := receive.New(kp.Address, a.submitter.Account(kp), a.receive)
	if err != nil {
		return nil, invalid("%v", err)
	}
	s, runErr := p.Run(ctx)

	for _, b := range s.Claimed {
		a.record(b, nil)
	}
	for _, f := range s.Failed {
		var se *txn.StageError
		if errors.As(f, &se) && se.Block != nil {
			a.record(se.Block, f)
		}
	}
	return sessionData(s), runErr
}

// record journals a signed block. Journal failures are logged, not returned:
// the block is already on its way to the node.
func (a *Agent) record(b *block.AccountBlock, err error) {
	if a.journal == nil || b == nil {
		return
	}
	status := events.StatusAccepted
	switch {
	case errors.Is(err, txn.ErrSubmissionAmbiguous):
		status = events.StatusAmbiguous
	case gateway.IsNotSent(err):
		status = events.StatusNotSent
	case err != nil:
		status = events.StatusRejected
	}
	if jerr := a.journal.Append(events.FromBlock(b, status, err)); jerr != nil {
		a.logger.Error().Err(jerr).Str("hash", b.Hash.String()).Msg("Failed to journal block")
	}
}

func (a *Agent) guard(op string, res *Result) {
	if r := recover(); r != nil {
		a.logger.Error().Interface("panic", r).Str("op", op).Msg("Recovered from panic")
		*res = Result{Message: op + " failed", Error: &ErrorInfo{
			Kind:    KindInternal,
			Message: fmt.Sprint(r),
		}}
	}
}

func sessionData(s receive.Session) *ReceiveData {
	d := &ReceiveData{
		Session:   s.ID,
		Address:   s.Address,
		Status:    s.Status,
		Claimed:   make([]ClaimedBlock, 0, len(s.Claimed)),
		Failed:    make([]string, 0, len(s.Failed)),
		Remaining: s.RemainingEstimate,
		Cancelled: s.Cancelled,
	}
	for _, b := range s.Claimed {
		d.Claimed = append(d.Claimed, ClaimedBlock{
			Hash:          b.Hash,
			Height:        b.Height,
			SendBlockHash: b.SendBlockHash,
			From:          b.FromAddress,
			TokenID:       b.TokenID,
			Amount:        b.Amount,
		})
	}
	for _, f := range s.Failed {
		d.Failed = append(d.Failed, f.Error())
	}
	if s.Reason != nil {
		d.Reason = s.Reason.Error()
		d.Error = Classify(s.Reason)
	}
	return d
}

func parseAddress(s string) (types.Address, error) {
	addr, err := types.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return types.Address{}, invalid("address %q: %v", s, err)
	}
	return addr, nil
}
