// Package receive claims an account's unreceived blocks one at a time until
// none are left.
package receive

import (
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/vite-agent/internal/txn"
	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// Status is the phase of a receive session.
type Status string

// Session phases. Success and Failed are terminal.
const (
	StatusIdle      Status = "idle"
	StatusChecking  Status = "checking"
	StatusReceiving Status = "receiving"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// Terminal failure reasons.
var (
	ErrNoPendingTransactions = errors.New("no pending transactions")
	ErrTooManyClaimFailures  = errors.New("too many consecutive claim failures")
	ErrCancelled             = errors.New("receive cancelled")
)

// ClaimError records one failed claim attempt.
type ClaimError struct {
	Attempt int
	Err     error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim attempt %d: %v", e.Attempt, e.Err)
}

func (e *ClaimError) Unwrap() error { return e.Err }

// Session is the state of one receive run. Values handed out by the poller
// are copies.
type Session struct {
	ID                  string
	Address             types.Address
	Status              Status
	RemainingEstimate   uint64
	Claimed             []*block.AccountBlock
	Failed              []error
	ConsecutiveFailures int
	Attempts            int

	// Reason is set when Status is StatusFailed.
	Reason    error
	Cancelled bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// Done reports whether the session reached a terminal status.
func (s Session) Done() bool {
	return s.Status == StatusSuccess || s.Status == StatusFailed
}

// Clone returns a copy that shares no slices with s.
func (s Session) Clone() Session {
	c := s
	c.Claimed = append([]*block.AccountBlock(nil), s.Claimed...)
	c.Failed = append([]error(nil), s.Failed...)
	return c
}

// Event drives a session from one status to the next.
type Event interface{ event() }

// Started begins the pending-count check.
type Started struct{}

// Counted carries the result of the pending-count query.
type Counted struct {
	Count uint64
	Err   error
}

// Claimed carries the result of one claim attempt.
type Claimed struct {
	Block *block.AccountBlock
	Err   error
}

// Stopped reports that the caller cancelled the run.
type Stopped struct{}

func (Started) event() {}
func (Counted) event() {}
func (Claimed) event() {}
func (Stopped) event() {}

// Policy bounds a session.
type Policy struct {
	MaxConsecutiveFailures int
}

// Transition returns the session that follows s after ev. It has no side
// effects; s is not modified. Events that do not apply to the current status
// leave it unchanged.
func Transition(s Session, ev Event, p Policy) Session {
	if s.Done() {
		return s
	}
	s = s.Clone()

	switch ev := ev.(type) {
	case Started:
		if s.Status == StatusIdle {
			s.Status = StatusChecking
		}

	case Counted:
		if s.Status != StatusChecking {
			return s
		}
		switch {
		case ev.Err != nil:
			s = fail(s, ev.Err)
		case ev.Count == 0:
			s = fail(s, ErrNoPendingTransactions)
		default:
			s.Status = StatusReceiving
			s.RemainingEstimate = ev.Count
		}

	case Claimed:
		if s.Status != StatusReceiving {
			return s
		}
		s.Attempts++
		switch {
		case ev.Err == nil:
			s.Claimed = append(s.Claimed, ev.Block)
			if s.RemainingEstimate > 0 {
				s.RemainingEstimate--
			}
			s.ConsecutiveFailures = 0
		case errors.Is(ev.Err, txn.ErrNothingToClaim):
			s.Status = StatusSuccess
			s.RemainingEstimate = 0
		default:
			s.Failed = append(s.Failed, &ClaimError{Attempt: s.Attempts, Err: ev.Err})
			s.ConsecutiveFailures++
			if limit := p.MaxConsecutiveFailures; limit > 0 && s.ConsecutiveFailures >= limit {
				s = fail(s, fmt.Errorf("%w (%d): %w", ErrTooManyClaimFailures, s.ConsecutiveFailures, ev.Err))
			}
		}

	case Stopped:
		s = fail(s, ErrCancelled)
		s.Cancelled = true
	}
	return s
}

func fail(s Session, reason error) Session {
	s.Status = StatusFailed
	s.Reason = reason
	return s
}
