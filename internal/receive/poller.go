package receive

import (
	"context"
	"errors"
	"time"

	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Defaults for Options.
const (
	DefaultInterval               = 2500 * time.Millisecond
	DefaultMaxConsecutiveFailures = 3
)

// ErrBadInterval is returned for a negative polling interval.
var ErrBadInterval = errors.New("receive interval must be positive")

// Source is the account a poller works on. txn.Account implements it.
type Source interface {
	UnreceivedCount(ctx context.Context) (uint64, error)
	ClaimNext(ctx context.Context) (*block.AccountBlock, error)
}

// Options configures a Poller.
type Options struct {
	// Interval is the pause between claims. Zero means DefaultInterval.
	Interval time.Duration

	// MaxConsecutiveFailures ends the run after that many failed claims in a
	// row. Zero means DefaultMaxConsecutiveFailures.
	MaxConsecutiveFailures int

	// Progress, if set, receives a copy of the session after every transition.
	Progress func(Session)

	Logger zerolog.Logger
}

// Poller runs receive sessions for one account.
type Poller struct {
	addr types.Address
	src  Source
	opts Options
}

// New returns a poller for addr backed by src.
func New(addr types.Address, src Source, opts Options) (*Poller, error) {
	if opts.Interval < 0 {
		return nil, ErrBadInterval
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	return &Poller{addr: addr, src: src, opts: opts}, nil
}

// Run checks for pending blocks and claims them one at a time until the
// node reports none left, too many claims fail in a row, or ctx is
// cancelled. A claim already in flight when ctx is cancelled is allowed to
// finish. The returned error is the session's Reason, nil on success.
func (p *Poller) Run(ctx context.Context) (Session, error) {
	s := Session{
		ID:        uuid.NewString(),
		Address:   p.addr,
		Status:    StatusIdle,
		StartedAt: time.Now(),
	}
	logger := p.opts.Logger.With().Str("session", s.ID).Str("address", p.addr.String()).Logger()

	s = p.step(s, Started{})
	if ctx.Err() != nil {
		return p.finish(logger, p.step(s, Stopped{}))
	}

	count, err := p.src.UnreceivedCount(ctx)
	if err != nil && ctx.Err() != nil {
		return p.finish(logger, p.step(s, Stopped{}))
	}
	s = p.step(s, Counted{Count: count, Err: err})
	if s.Status == StatusReceiving {
		logger.Info().Uint64("pending", count).Msg("Receiving pending blocks")
	}

	timer := time.NewTimer(p.opts.Interval)
	defer timer.Stop()

	for s.Status == StatusReceiving {
		if ctx.Err() != nil {
			s = p.step(s, Stopped{})
			break
		}

		blk, err := p.src.ClaimNext(context.WithoutCancel(ctx))
		if err != nil {
			logger.Debug().Err(err).Int("attempt", s.Attempts+1).Msg("Claim attempt finished without a block")
		}
		s = p.step(s, Claimed{Block: blk, Err: err})
		if s.Done() {
			break
		}

		timer.Reset(p.opts.Interval)
		select {
		case <-ctx.Done():
			s = p.step(s, Stopped{})
		case <-timer.C:
		}
	}
	return p.finish(logger, s)
}

func (p *Poller) step(s Session, ev Event) Session {
	s = Transition(s, ev, Policy{MaxConsecutiveFailures: p.opts.MaxConsecutiveFailures})
	if s.Done() && s.FinishedAt.IsZero() {
		s.FinishedAt = time.Now()
	}
	if p.opts.Progress != nil {
		p.opts.Progress(s.Clone())
	}
	return s
}

func (p *Poller) finish(logger zerolog.Logger, s Session) (Session, error) {
	ev := logger.Info()
	if s.Status == StatusFailed {
		ev = logger.Warn().Err(s.Reason)
	}
	ev.Str("status", string(s.Status)).
		Int("claimed", len(s.Claimed)).
		Int("failed", len(s.Failed)).
		Bool("cancelled", s.Cancelled).
		Dur("elapsed", s.FinishedAt.Sub(s.StartedAt)).
		Msg("Receive session finished")
	if s.Status == StatusFailed {
		return s, s.Reason
	}
	return s, nil
}
