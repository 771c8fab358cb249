package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	"github.com/Klingon-tech/vite-agent/internal/rpcclient"
	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// Node JSON-RPC methods.
const (
	MethodAccountInfo       = "ledger_getAccountInfoByAddress"
	MethodUnreceivedSummary = "ledger_getUnreceivedTransactionSummaryByAddress"
	MethodAccountBlocks     = "ledger_getAccountBlocksByAddress"
	MethodLatestBlock       = "ledger_getLatestAccountBlock"
	MethodUnreceivedBlocks  = "ledger_getUnreceivedBlocksByAddress"
	MethodPoWDifficulty     = "ledger_getPoWDifficulty"
	MethodPoWNonce          = "util_getPoWNonce"
	MethodSendRawTx         = "ledger_sendRawTransaction"
)

// MaxPageSize bounds list queries.
const MaxPageSize = 1000

// Options configures an RPC gateway.
type Options struct {
	// Timeout bounds every call. Defaults to 10s.
	Timeout time.Duration

	// RateLimit is the maximum number of calls per second. Zero disables pacing.
	RateLimit int

	// BreakerFailures is the number of consecutive transport failures that
	// opens the circuit. Zero disables the breaker.
	BreakerFailures uint32

	// BreakerCooldown is how long the circuit stays open before probing.
	BreakerCooldown time.Duration

	Logger zerolog.Logger
}

// RPC implements Gateway over a JSON-RPC caller.
type RPC struct {
	caller  rpcclient.Caller
	timeout time.Duration
	limiter ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// Dial creates an RPC gateway for a node URL (http, https, ws or wss).
func Dial(url string, opts Options) (*RPC, error) {
	caller, err := rpcclient.Dial(url, opts.Timeout)
	if err != nil {
		return nil, err
	}
	return NewRPC(caller, opts), nil
}

// NewRPC wraps an existing caller.
func NewRPC(caller rpcclient.Caller, opts Options) *RPC {
	if opts.Timeout <= 0 {
		opts.Timeout = rpcclient.DefaultTimeout
	}
	g := &RPC{
		caller:  caller,
		timeout: opts.Timeout,
		limiter: ratelimit.NewUnlimited(),
		logger:  opts.Logger,
	}
	if opts.RateLimit > 0 {
		g.limiter = ratelimit.New(opts.RateLimit)
	}
	if opts.BreakerFailures > 0 {
		g.breaker = newCircuitBreaker(opts, g.logger)
	}
	return g
}

func newCircuitBreaker(opts Options, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "node",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		// Node rejections and bad payloads prove the node is up.
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransport(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Warn().Msg("node seems down, stop allowing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				logger.Info().Msg("checking node status")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				logger.Info().Msg("node seems ok, restart allowing requests")
			}
		},
	})
}

// Close releases the underlying transport.
func (g *RPC) Close() error {
	return g.caller.Close()
}

// isTransport reports whether err says something about the node's health.
// Requests that failed locally before dialing do not.
func isTransport(err error) bool {
	var rpcErr *rpcclient.RPCError
	switch {
	case errors.As(err, &rpcErr), errors.Is(err, rpcclient.ErrDecode):
		return false
	case errors.Is(err, rpcclient.ErrNotSent):
		return errors.Is(err, rpcclient.ErrTransport)
	}
	return true
}

func notSent(err error) bool {
	return errors.Is(err, rpcclient.ErrNotSent) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

// call performs one bounded request and maps the failure to a gateway error.
func (g *RPC) call(ctx context.Context, method string, params, result interface{}) error {
	g.limiter.Take()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	do := func() (interface{}, error) {
		return nil, g.caller.Call(ctx, method, params, result)
	}
	var err error
	if g.breaker != nil {
		_, err = g.breaker.Execute(do)
	} else {
		_, err = do()
	}
	g.logger.Trace().Str("method", method).Dur("took", time.Since(start)).Err(err).Msg("node call")
	if err == nil {
		return nil
	}

	var rpcErr *rpcclient.RPCError
	switch {
	case errors.As(err, &rpcErr):
		return &RPCError{Method: method, Code: rpcErr.Code, Message: rpcErr.Message}
	case errors.Is(err, rpcclient.ErrDecode):
		return &MalformedResponseError{Method: method, Err: err}
	default:
		// Transport failures, timeouts and an open breaker.
		return &UnreachableError{Method: method, Err: err, NotSent: notSent(err)}
	}
}

type balanceEntry struct {
	TokenInfo   *types.TokenInfo `json:"tokenInfo"`
	Balance     *types.Amount    `json:"balance"`
	TotalAmount *types.Amount    `json:"totalAmount"`
}

type accountInfoJSON struct {
	Address             types.Address           `json:"address"`
	BlockCount          json.RawMessage         `json:"blockCount"`
	TotalNumber         json.RawMessage         `json:"totalNumber"`
	BalanceInfoMap      map[string]balanceEntry `json:"balanceInfoMap"`
	TokenBalanceInfoMap map[string]balanceEntry `json:"tokenBalanceInfoMap"`
}

func (j *accountInfoJSON) count() (uint64, error) {
	raw := j.BlockCount
	if len(raw) == 0 || string(raw) == "null" {
		raw = j.TotalNumber
	}
	return parseCount(raw)
}

func parseCount(raw json.RawMessage) (uint64, error) {
	s := string(raw)
	if s == "" || s == "null" {
		return 0, nil
	}
	if s[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	}
	return strconv.ParseUint(s, 10, 64)
}

// GetAccountInfo implements Gateway.
func (g *RPC) GetAccountInfo(ctx context.Context, addr types.Address) (*AccountInfo, error) {
	var raw *accountInfoJSON
	if err := g.call(ctx, MethodAccountInfo, []interface{}{addr}, &raw); err != nil {
		return nil, err
	}
	info := &AccountInfo{Address: addr}
	if raw == nil {
		return info, nil
	}
	n, err := raw.count()
	if err != nil {
		return nil, malformed(MethodAccountInfo, "block count: %v", err)
	}
	info.BlockCount = n

	entries := raw.BalanceInfoMap
	if entries == nil {
		entries = raw.TokenBalanceInfoMap
	}
	for key, e := range entries {
		tb, err := e.toBalance(key)
		if err != nil {
			return nil, malformed(MethodAccountInfo, "%v", err)
		}
		info.Balances = append(info.Balances, tb)
	}
	sortBalances(info.Balances)
	return info, nil
}

func (e balanceEntry) toBalance(key string) (TokenBalance, error) {
	tok, err := types.ParseTokenID(key)
	if err != nil {
		return TokenBalance{}, err
	}
	tb := TokenBalance{TokenInfo: types.TokenInfo{TokenID: tok}}
	if e.TokenInfo != nil {
		tb.TokenInfo = *e.TokenInfo
		tb.TokenInfo.TokenID = tok
	}
	switch {
	case e.Balance != nil:
		tb.Balance = *e.Balance
	case e.TotalAmount != nil:
		tb.Balance = *e.TotalAmount
	}
	return tb, nil
}

// sortBalances orders by token index, then token id, so output is stable.
func sortBalances(bs []TokenBalance) {
	sort.Slice(bs, func(i, j int) bool {
		a, b := bs[i].TokenInfo, bs[j].TokenInfo
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.TokenID.String() < b.TokenID.String()
	})
}

// GetUnreceivedCount implements Gateway.
func (g *RPC) GetUnreceivedCount(ctx context.Context, addr types.Address) (uint64, error) {
	var raw *accountInfoJSON
	if err := g.call(ctx, MethodUnreceivedSummary, []interface{}{addr}, &raw); err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	n, err := raw.count()
	if err != nil {
		return 0, malformed(MethodUnreceivedSummary, "block count: %v", err)
	}
	return n, nil
}

// GetTransactionList implements Gateway.
func (g *RPC) GetTransactionList(ctx context.Context, addr types.Address, pageIndex, pageSize int) ([]*block.AccountBlock, error) {
	return g.blockPage(ctx, MethodAccountBlocks, addr, pageIndex, pageSize)
}

// GetUnreceivedBlocks implements Gateway.
func (g *RPC) GetUnreceivedBlocks(ctx context.Context, addr types.Address, pageIndex, pageSize int) ([]*block.AccountBlock, error) {
	blocks, err := g.blockPage(ctx, MethodUnreceivedBlocks, addr, pageIndex, pageSize)
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		if !b.IsSend() || b.ToAddress != addr {
			return nil, malformed(MethodUnreceivedBlocks, "block %s is not a send to %s", b.Hash, addr)
		}
	}
	return blocks, nil
}

func (g *RPC) blockPage(ctx context.Context, method string, addr types.Address, pageIndex, pageSize int) ([]*block.AccountBlock, error) {
	if pageIndex < 0 {
		pageIndex = 0
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	var blocks []*block.AccountBlock
	if err := g.call(ctx, method, []interface{}{addr, pageIndex, pageSize}, &blocks); err != nil {
		return nil, err
	}
	out := blocks[:0]
	for _, b := range blocks {
		if b != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetLatestBlock implements Gateway.
func (g *RPC) GetLatestBlock(ctx context.Context, addr types.Address) (*block.AccountBlock, error) {
	var b *block.AccountBlock
	if err := g.call(ctx, MethodLatestBlock, []interface{}{addr}, &b); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	if b.Address != addr {
		return nil, malformed(MethodLatestBlock, "latest block belongs to %s, want %s", b.Address, addr)
	}
	if b.Height == 0 || b.Hash.IsZero() {
		return nil, malformed(MethodLatestBlock, "latest block has height %d and hash %s", b.Height, b.Hash)
	}
	return b, nil
}

type powDifficultyParams struct {
	Address      types.Address  `json:"address"`
	PreviousHash types.Hash     `json:"previousHash"`
	BlockType    block.Kind     `json:"blockType"`
	ToAddress    *types.Address `json:"toAddress,omitempty"`
	Data         []byte         `json:"data"`
}

type powDifficultyResult struct {
	RequiredQuota string  `json:"requiredQuota"`
	Difficulty    *string `json:"difficulty"`
	IsCongestion  bool    `json:"isCongestion"`
}

// GetPoWDifficulty implements Gateway.
func (g *RPC) GetPoWDifficulty(ctx context.Context, req PoWRequest) (string, error) {
	p := powDifficultyParams{
		Address:      req.Address,
		PreviousHash: req.PreviousHash,
		BlockType:    req.BlockType,
		Data:         req.Data,
	}
	if !req.ToAddress.IsZero() {
		to := req.ToAddress
		p.ToAddress = &to
	}
	var res *powDifficultyResult
	if err := g.call(ctx, MethodPoWDifficulty, []interface{}{p}, &res); err != nil {
		return "", err
	}
	if res == nil || res.Difficulty == nil || *res.Difficulty == "" {
		return "", nil
	}
	d, ok := new(big.Int).SetString(*res.Difficulty, 10)
	if !ok || d.Sign() < 0 {
		return "", malformed(MethodPoWDifficulty, "difficulty %q is not a decimal integer", *res.Difficulty)
	}
	if d.Sign() == 0 {
		return "", nil
	}
	if res.IsCongestion {
		g.logger.Debug().Str("difficulty", *res.Difficulty).Msg("network congested")
	}
	return d.String(), nil
}

// SolvePoWNonce implements Gateway.
func (g *RPC) SolvePoWNonce(ctx context.Context, difficulty string, hash types.Hash) ([]byte, error) {
	var encoded string
	if err := g.call(ctx, MethodPoWNonce, []interface{}{difficulty, hash}, &encoded); err != nil {
		return nil, err
	}
	nonce, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, malformed(MethodPoWNonce, "nonce is not base64: %v", err)
	}
	if len(nonce) != block.NonceSize {
		return nil, malformed(MethodPoWNonce, "nonce is %d bytes, want %d", len(nonce), block.NonceSize)
	}
	return nonce, nil
}

// SubmitBlock implements Gateway.
func (g *RPC) SubmitBlock(ctx context.Context, b *block.AccountBlock) error {
	return g.call(ctx, MethodSendRawTx, []interface{}{b}, nil)
}
