package txn

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/vite-agent/internal/wallet"
	"github.com/Klingon-tech/vite-agent/pkg/block"
)

// ClaimNext receives the oldest unreceived block of kp's account. It returns
// ErrNothingToClaim when none is pending.
func (s *Submitter) ClaimNext(ctx context.Context, kp *wallet.KeyPair) (*block.AccountBlock, error) {
	pending, err := s.Gateway.GetUnreceivedBlocks(ctx, kp.Address, 0, 1)
	if err != nil {
		return nil, stageErr(StageChainState, fmt.Errorf("%w: %w", ErrChainStateUnavailable, err))
	}
	if len(pending) == 0 {
		return nil, ErrNothingToClaim
	}
	send := pending[0]

	blk, err := s.Builder.Build(ctx, block.Receive, kp.Address, Params{SendBlockHash: send.Hash})
	if err != nil {
		return nil, err
	}
	if err := s.signAndSubmit(ctx, kp, blk); err != nil {
		return nil, err
	}

	// Not hashed; filled in for reporting.
	blk.FromAddress, blk.TokenID, blk.Amount = send.Address, send.TokenID, send.Amount
	blk.TokenInfo = send.TokenInfo

	s.Logger.Info().
		Str("address", kp.Address.String()).
		Str("from", send.Address.String()).
		Str("amount", send.Amount.String()).
		Str("send_hash", send.Hash.String()).
		Str("hash", blk.Hash.String()).
		Msg("Receive block accepted")
	return blk, nil
}

// Account binds a submitter to one key pair.
type Account struct {
	s  *Submitter
	kp *wallet.KeyPair
}

// Account returns a view of the submitter bound to kp.
func (s *Submitter) Account(kp *wallet.KeyPair) *Account {
	return &Account{s: s, kp: kp}
}

// UnreceivedCount returns the node's count of pending inbound blocks.
func (a *Account) UnreceivedCount(ctx context.Context) (uint64, error) {
	return a.s.Gateway.GetUnreceivedCount(ctx, a.kp.Address)
}

// ClaimNext receives one pending block.
func (a *Account) ClaimNext(ctx context.Context) (*block.AccountBlock, error) {
	return a.s.ClaimNext(ctx, a.kp)
}
