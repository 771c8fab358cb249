package agent

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/vite-agent/internal/gateway"
	"github.com/Klingon-tech/vite-agent/internal/receive"
	"github.com/Klingon-tech/vite-agent/internal/txn"
	"github.com/Klingon-tech/vite-agent/internal/wallet"
)

// ErrInvalidArgument wraps caller input the agent refuses before doing any work.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrJournalDisabled is returned by History when no journal is configured.
var ErrJournalDisabled = errors.New("event journal is disabled")

// Error kinds. They are stable and safe to match on.
const (
	KindInvalidArgument       = "invalid_argument"
	KindInvalidSeed           = "invalid_seed"
	KindUnreachable           = "unreachable"
	KindRPCError              = "rpc_error"
	KindMalformedResponse     = "malformed_response"
	KindChainStateUnavailable = "chain_state_unavailable"
	KindDifficultyQuery       = "difficulty_query"
	KindNonce                 = "nonce"
	KindSubmissionAmbiguous   = "submission_ambiguous"
	KindNoPending             = "no_pending_transactions"
	KindTooManyClaimFailures  = "too_many_claim_failures"
	KindCancelled             = "cancelled"
	KindJournalDisabled       = "journal_disabled"
	KindInternal              = "internal"
)

// Result is the envelope every agent operation returns.
type Result struct {
	OK      bool       `json:"ok"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo describes a failed operation.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`

	// Code is the node's error code for rpc_error.
	Code int `json:"code,omitempty"`

	// RetrySafe is false only when repeating the call could duplicate a
	// transfer.
	RetrySafe bool `json:"retrySafe"`
}

func (e *ErrorInfo) Error() string {
	return e.Kind + ": " + e.Message
}

func success(op string, data any) Result {
	return Result{OK: true, Message: op + " success", Data: data}
}

func failure(op string, err error) Result {
	return Result{Message: op + " failed", Error: Classify(err)}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Classify maps an error from any layer to an ErrorInfo. Read-only failures
// are retry-safe; lifecycle failures defer to txn.StageError.
func Classify(err error) *ErrorInfo {
	info := &ErrorInfo{Kind: KindInternal, Message: err.Error(), RetrySafe: true}

	var se *txn.StageError
	if errors.As(err, &se) {
		info.Stage = string(se.Stage)
		info.RetrySafe = se.RetrySafe()
	}
	var rpcErr *gateway.RPCError
	if errors.As(err, &rpcErr) {
		info.Code = rpcErr.Code
	}

	switch {
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, wallet.ErrIndexOutOfRange):
		info.Kind = KindInvalidArgument
	case errors.Is(err, ErrJournalDisabled):
		info.Kind = KindJournalDisabled
	case errors.Is(err, wallet.ErrInvalidSeed):
		info.Kind = KindInvalidSeed
	case errors.Is(err, receive.ErrNoPendingTransactions):
		info.Kind = KindNoPending
	case errors.Is(err, receive.ErrTooManyClaimFailures):
		info.Kind = KindTooManyClaimFailures
	case errors.Is(err, receive.ErrCancelled):
		info.Kind = KindCancelled
	case errors.Is(err, txn.ErrSubmissionAmbiguous):
		info.Kind = KindSubmissionAmbiguous
		info.RetrySafe = false
	case errors.Is(err, txn.ErrChainStateUnavailable):
		info.Kind = KindChainStateUnavailable
	case errors.Is(err, txn.ErrDifficultyQuery):
		info.Kind = KindDifficultyQuery
	case errors.Is(err, txn.ErrNonce):
		info.Kind = KindNonce
	case rpcErr != nil:
		info.Kind = KindRPCError
	case gateway.IsUnreachable(err):
		info.Kind = KindUnreachable
	case gateway.IsMalformed(err):
		info.Kind = KindMalformedResponse
	}
	return info
}
