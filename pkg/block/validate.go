package block

import (
	"errors"
	"fmt"
	"math/big"
)

// Validation errors.
var (
	ErrBadKind         = errors.New("unsupported block type")
	ErrZeroHeight      = errors.New("block height must be at least 1")
	ErrMissingTo       = errors.New("send block has no recipient")
	ErrMissingSendHash = errors.New("receive block has no send block hash")
	ErrBadNonce        = errors.New("nonce must be 8 bytes")
	ErrPoWMismatch     = errors.New("difficulty and nonce must be set together")
	ErrBadDifficulty   = errors.New("difficulty must be a positive decimal integer")
	ErrGenesisPrevHash = errors.New("first block must have a zero previous hash")
	ErrMissingPrevHash = errors.New("non-first block must reference its predecessor")
)

// Validate checks the block's structure before signing. It does not
// consult chain state.
func (b *AccountBlock) Validate() error {
	if b.BlockType != Send && b.BlockType != Receive {
		return fmt.Errorf("%w: %d", ErrBadKind, b.BlockType)
	}
	if b.Height == 0 {
		return ErrZeroHeight
	}
	if b.Height == 1 && !b.PreviousHash.IsZero() {
		return ErrGenesisPrevHash
	}
	if b.Height > 1 && b.PreviousHash.IsZero() {
		return ErrMissingPrevHash
	}

	switch b.BlockType {
	case Send:
		if b.ToAddress.IsZero() {
			return ErrMissingTo
		}
	case Receive:
		if b.SendBlockHash.IsZero() {
			return ErrMissingSendHash
		}
	}

	if (b.Difficulty == "") != (len(b.Nonce) == 0) {
		return ErrPoWMismatch
	}
	if len(b.Nonce) != 0 && len(b.Nonce) != NonceSize {
		return fmt.Errorf("%w: got %d", ErrBadNonce, len(b.Nonce))
	}
	if b.Difficulty != "" {
		d, ok := new(big.Int).SetString(b.Difficulty, 10)
		if !ok || d.Sign() <= 0 {
			return fmt.Errorf("%w: %q", ErrBadDifficulty, b.Difficulty)
		}
	}
	return nil
}
