// Package block defines the account block and its hashing, signing and wire form.
package block

import (
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// Kind is the account block type.
type Kind uint8

// Block kinds used by the agent.
const (
	Send    Kind = 2
	Receive Kind = 4
)

// String returns a human name for the kind.
func (k Kind) String() string {
	switch k {
	case Send:
		return "send"
	case Receive:
		return "receive"
	default:
		return "unknown"
	}
}

// NonceSize is the length of a PoW nonce in bytes.
const NonceSize = 8

// AccountBlock is a single entry in an account's chain.
//
// A send block moves Amount of TokenID from Address to ToAddress. A receive
// block claims the send block SendBlockHash into Address. Hash, PublicKey and
// Signature are set exactly once by Sign.
type AccountBlock struct {
	BlockType    Kind
	Height       uint64
	PreviousHash types.Hash
	Address      types.Address

	// Send fields.
	ToAddress types.Address
	TokenID   types.TokenID
	Amount    types.Amount

	// Receive fields.
	FromAddress   types.Address
	SendBlockHash types.Hash

	Fee  types.Amount
	Data []byte

	// PoW fields. Difficulty is a decimal string, empty when no work was done.
	Difficulty string
	Nonce      []byte

	Hash      types.Hash
	PublicKey []byte
	Signature []byte

	// Node-reported metadata. Not hashed.
	Timestamp     int64
	Confirmations uint64
	TokenInfo     *types.TokenInfo
}

// IsSend reports whether the block is a send block.
func (b *AccountBlock) IsSend() bool { return b.BlockType == Send }

// IsReceive reports whether the block is a receive block.
func (b *AccountBlock) IsReceive() bool { return b.BlockType == Receive }

// IsSigned reports whether Sign has already been applied.
func (b *AccountBlock) IsSigned() bool { return len(b.Signature) != 0 }

// HasPoW reports whether the block carries a difficulty and nonce.
func (b *AccountBlock) HasPoW() bool { return b.Difficulty != "" && len(b.Nonce) != 0 }

// Clone returns a deep copy of the block.
func (b *AccountBlock) Clone() *AccountBlock {
	c := *b
	c.Data = cloneBytes(b.Data)
	c.Nonce = cloneBytes(b.Nonce)
	c.PublicKey = cloneBytes(b.PublicKey)
	c.Signature = cloneBytes(b.Signature)
	if b.TokenInfo != nil {
		ti := *b.TokenInfo
		c.TokenInfo = &ti
	}
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
