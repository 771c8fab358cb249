// Package txn builds, signs and submits account blocks.
package txn

import (
	"context"
	"fmt"
	"time"

	"github.com/Klingon-tech/vite-agent/internal/gateway"
	"github.com/Klingon-tech/vite-agent/internal/pow"
	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/crypto"
	"github.com/Klingon-tech/vite-agent/pkg/types"
	"github.com/rs/zerolog"
)

// Params carries the kind-specific fields of a block to build.
type Params struct {
	// Send.
	ToAddress types.Address
	TokenID   types.TokenID
	Amount    types.Amount

	// Receive.
	SendBlockHash types.Hash

	Data []byte
}

// Builder assembles unsigned blocks on top of an account's current head.
type Builder struct {
	Gateway gateway.Gateway
	PoW     pow.Strategy

	// ReceivePoW makes receive blocks ask for a difficulty too. Send blocks
	// always do.
	ReceivePoW bool

	Logger zerolog.Logger
}

// NewBuilder returns a builder that queries PoW for both block kinds.
func NewBuilder(gw gateway.Gateway, strategy pow.Strategy, logger zerolog.Logger) *Builder {
	return &Builder{Gateway: gw, PoW: strategy, ReceivePoW: true, Logger: logger}
}

// Build returns the next unsigned block of kind for account. An unsupported
// kind fails with block.ErrBadKind before any query; other failures are
// *StageErrors. No block is returned on failure.
func (b *Builder) Build(ctx context.Context, kind block.Kind, account types.Address, p Params) (*block.AccountBlock, error) {
	blk := &block.AccountBlock{
		BlockType: kind,
		Address:   account,
		Height:    1,
		Data:      p.Data,
	}
	switch kind {
	case block.Send:
		blk.ToAddress, blk.TokenID, blk.Amount = p.ToAddress, p.TokenID, p.Amount
	case block.Receive:
		blk.SendBlockHash = p.SendBlockHash
	default:
		return nil, fmt.Errorf("build: %w: %d", block.ErrBadKind, kind)
	}

	head, err := b.Gateway.GetLatestBlock(ctx, account)
	if err != nil {
		return nil, stageErr(StageChainState, fmt.Errorf("%w: %w", ErrChainStateUnavailable, err))
	}
	if head != nil {
		blk.Height = head.Height + 1
		blk.PreviousHash = head.Hash
	}

	if kind == block.Receive && !b.ReceivePoW {
		return blk, nil
	}

	difficulty, err := b.Gateway.GetPoWDifficulty(ctx, gateway.PoWRequestFor(blk))
	if err != nil {
		return nil, stageErr(StageDifficulty, fmt.Errorf("%w: %w", ErrDifficultyQuery, err))
	}
	if difficulty == "" {
		return blk, nil
	}

	if b.PoW == nil {
		return nil, stageErr(StageNonce, fmt.Errorf("%w: no strategy configured", ErrNonce))
	}
	start := time.Now()
	nonce, err := b.PoW.Solve(ctx, difficulty, crypto.PoWHashInput(blk.Address, blk.PreviousHash))
	if err != nil {
		return nil, stageErr(StageNonce, fmt.Errorf("%w: %w", ErrNonce, err))
	}
	if len(nonce) != block.NonceSize {
		return nil, stageErr(StageNonce, fmt.Errorf("%w: %w", ErrNonce, block.ErrBadNonce))
	}
	blk.Difficulty, blk.Nonce = difficulty, nonce

	b.Logger.Debug().
		Str("address", account.String()).
		Str("kind", kind.String()).
		Str("difficulty", difficulty).
		Dur("elapsed", time.Since(start)).
		Msg("Computed PoW nonce")
	return blk, nil
}
