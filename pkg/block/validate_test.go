package block

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/vite-agent/pkg/types"
)

func validSend() *AccountBlock {
	return &AccountBlock{
		BlockType: Send,
		Height:    1,
		ToAddress: types.MustParseAddress("vite_328b70af67e20abd39e5fd3ae826a32670e5497754f2a8ed22"),
		TokenID:   types.ViteTokenID,
		Amount:    types.NewAmount(0),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *AccountBlock)
		want   error
	}{
		{"valid zero amount send", func(b *AccountBlock) {}, nil},
		{"bad kind", func(b *AccountBlock) { b.BlockType = 3 }, ErrBadKind},
		{"zero height", func(b *AccountBlock) { b.Height = 0 }, ErrZeroHeight},
		{"first block with prev", func(b *AccountBlock) { b.PreviousHash[0] = 1 }, ErrGenesisPrevHash},
		{"later block without prev", func(b *AccountBlock) { b.Height = 2 }, ErrMissingPrevHash},
		{"missing recipient", func(b *AccountBlock) { b.ToAddress = types.Address{} }, ErrMissingTo},
		{"receive without send hash", func(b *AccountBlock) { b.BlockType = Receive }, ErrMissingSendHash},
		{"nonce without difficulty", func(b *AccountBlock) { b.Nonce = make([]byte, 8) }, ErrPoWMismatch},
		{"difficulty without nonce", func(b *AccountBlock) { b.Difficulty = "100" }, ErrPoWMismatch},
		{"short nonce", func(b *AccountBlock) { b.Difficulty = "100"; b.Nonce = []byte{1} }, ErrBadNonce},
		{"non-numeric difficulty", func(b *AccountBlock) { b.Difficulty = "abc"; b.Nonce = make([]byte, 8) }, ErrBadDifficulty},
		{"valid pow", func(b *AccountBlock) { b.Difficulty = "67108863"; b.Nonce = make([]byte, 8) }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validSend()
			tt.mutate(b)
			err := b.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() err = %v, want %v", err, tt.want)
			}
		})
	}
}
