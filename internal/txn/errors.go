package txn

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/vite-agent/internal/gateway"
	"github.com/Klingon-tech/vite-agent/pkg/block"
)

// Stage names the step of the transaction lifecycle that failed.
type Stage string

// Lifecycle stages, in order.
const (
	StageKeys       Stage = "keys"
	StageChainState Stage = "chain-state"
	StageDifficulty Stage = "difficulty"
	StageNonce      Stage = "nonce"
	StageSign       Stage = "sign"
	StageSubmit     Stage = "submit"
)

// Lifecycle errors.
var (
	ErrChainStateUnavailable = errors.New("account chain state unavailable")
	ErrDifficultyQuery       = errors.New("pow difficulty query failed")
	ErrNonce                 = errors.New("pow nonce computation failed")
	ErrSubmissionAmbiguous   = errors.New("block was sent but the node did not confirm it")

	// ErrNothingToClaim means the account has no unreceived blocks left.
	ErrNothingToClaim = errors.New("no unreceived blocks to claim")
)

// StageError reports where a send or claim stopped.
type StageError struct {
	Stage Stage
	Err   error

	// Block is the signed block for sign and submit failures, nil before.
	Block *block.AccountBlock
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// RetrySafe reports whether the whole operation can be repeated without
// risking a duplicate transfer. Everything before submission is safe, and so
// is a submission the node explicitly rejected or never received. A
// submission whose outcome is unknown is not.
func (e *StageError) RetrySafe() bool {
	if e.Stage != StageSubmit {
		return true
	}
	if errors.Is(e.Err, ErrSubmissionAmbiguous) {
		return false
	}
	return gateway.IsRPCError(e.Err) || gateway.IsNotSent(e.Err)
}

func stageErr(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// RetrySafe reports whether err leaves the account in a state where the
// operation can be repeated. Errors that are not StageErrors are treated as
// unsafe.
func RetrySafe(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.RetrySafe()
	}
	return errors.Is(err, ErrNothingToClaim)
}

// StageOf returns the stage recorded in err, or "" when there is none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
