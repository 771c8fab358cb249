package txn

import (
	"context"
	"fmt"

	"github.com/Klingon-tech/vite-agent/internal/gateway"
	"github.com/Klingon-tech/vite-agent/internal/wallet"
	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/types"
	"github.com/rs/zerolog"
)

// Submission is an accepted block.
type Submission struct {
	Hash        types.Hash
	Block       *block.AccountBlock
	ExplorerURL string
}

// Submitter runs the derive, build, sign and submit pipeline.
type Submitter struct {
	Keyring wallet.Keyring
	Builder *Builder
	Gateway gateway.Gateway
	Logger  zerolog.Logger
}

// NewSubmitter wires a submitter to gw. The builder shares the gateway.
func NewSubmitter(kr wallet.Keyring, builder *Builder, logger zerolog.Logger) *Submitter {
	return &Submitter{Keyring: kr, Builder: builder, Gateway: builder.Gateway, Logger: logger}
}

// Send transfers amount of token from the account at index to to.
func (s *Submitter) Send(ctx context.Context, mnemonic string, index uint32, to types.Address, token types.TokenID, amount types.Amount) (*Submission, error) {
	kp, err := s.Keyring.Derive(mnemonic, index)
	if err != nil {
		return nil, stageErr(StageKeys, err)
	}
	defer kp.Zero()
	return s.SendFrom(ctx, kp, Params{ToAddress: to, TokenID: token, Amount: amount})
}

// SendFrom builds, signs and submits a send block for an already derived key.
func (s *Submitter) SendFrom(ctx context.Context, kp *wallet.KeyPair, p Params) (*Submission, error) {
	blk, err := s.Builder.Build(ctx, block.Send, kp.Address, p)
	if err != nil {
		return nil, err
	}
	if err := s.signAndSubmit(ctx, kp, blk); err != nil {
		return nil, err
	}

	s.Logger.Info().
		Str("from", kp.Address.String()).
		Str("to", blk.ToAddress.String()).
		Str("token", blk.TokenID.String()).
		Str("amount", blk.Amount.String()).
		Str("hash", blk.Hash.String()).
		Uint64("height", blk.Height).
		Msg("Send block accepted")
	return &Submission{Hash: blk.Hash, Block: blk, ExplorerURL: types.ExplorerTxURL(blk.Hash)}, nil
}

// signAndSubmit signs blk with kp and hands it to the node. Errors carry the
// signed block so callers can report its hash.
func (s *Submitter) signAndSubmit(ctx context.Context, kp *wallet.KeyPair, blk *block.AccountBlock) error {
	if err := blk.Validate(); err != nil {
		return stageErr(StageSign, err)
	}
	signer, err := kp.Signer()
	if err != nil {
		return stageErr(StageSign, err)
	}
	defer signer.Zero()
	if err := blk.Sign(signer); err != nil {
		return stageErr(StageSign, err)
	}

	if err := s.Gateway.SubmitBlock(ctx, blk); err != nil {
		switch {
		case gateway.IsRPCError(err):
		case gateway.IsNotSent(err):
			s.Logger.Warn().Err(err).
				Str("address", blk.Address.String()).
				Str("hash", blk.Hash.String()).
				Msg("Block not sent")
		default:
			err = fmt.Errorf("%w: %w", ErrSubmissionAmbiguous, err)
			s.Logger.Warn().Err(err).
				Str("address", blk.Address.String()).
				Str("hash", blk.Hash.String()).
				Msg("Submission outcome unknown")
		}
		return &StageError{Stage: StageSubmit, Err: err, Block: blk}
	}
	return nil
}
