package block

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/vite-agent/pkg/crypto"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// Signing errors.
var (
	ErrAlreadySigned = errors.New("block is already signed")
	ErrNotSigned     = errors.New("block is not signed")
	ErrHashMismatch  = errors.New("block hash does not match contents")
	ErrBadSignature  = errors.New("invalid block signature")
	ErrKeyMismatch   = errors.New("public key does not match block address")
)

// SigningBytes returns the canonical byte serialization the block hash is
// computed over. Excludes Hash, PublicKey and Signature.
func (b *AccountBlock) SigningBytes() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, byte(b.BlockType))
	buf = append(buf, b.PreviousHash[:]...)
	buf = binary.BigEndian.AppendUint64(buf, b.Height)
	buf = append(buf, b.Address[:]...)

	if b.IsSend() {
		buf = append(buf, b.ToAddress[:]...)
		amt := b.Amount.Bytes32()
		buf = append(buf, amt[:]...)
		buf = append(buf, b.TokenID[:]...)
	} else {
		buf = append(buf, b.SendBlockHash[:]...)
	}

	if len(b.Data) > 0 {
		dh := crypto.Hash(b.Data)
		buf = append(buf, dh[:]...)
	}

	fee := b.Fee.Bytes32()
	buf = append(buf, fee[:]...)

	var nonce [NonceSize]byte
	if n := len(b.Nonce); n > 0 && n <= NonceSize {
		copy(nonce[NonceSize-n:], b.Nonce)
	}
	return append(buf, nonce[:]...)
}

// ComputeHash returns the blake2b-256 hash of the signing bytes.
func (b *AccountBlock) ComputeHash() types.Hash {
	return crypto.Hash(b.SigningBytes())
}

// Sign computes the hash and signs it. A block can only be signed once;
// rebuild it to sign again.
func (b *AccountBlock) Sign(s crypto.Signer) error {
	if b.IsSigned() {
		return ErrAlreadySigned
	}
	pub := s.PublicKey()
	if types.AddressFromPublicKey(pub) != b.Address {
		return ErrKeyMismatch
	}
	h := b.ComputeHash()
	sig, err := s.Sign(h[:])
	if err != nil {
		return fmt.Errorf("sign block: %w", err)
	}
	b.Hash = h
	b.PublicKey = pub
	b.Signature = sig
	return nil
}

// VerifySignature checks that Hash matches the contents, that PublicKey
// owns Address, and that Signature is valid over Hash.
func (b *AccountBlock) VerifySignature() error {
	if !b.IsSigned() {
		return ErrNotSigned
	}
	if b.ComputeHash() != b.Hash {
		return ErrHashMismatch
	}
	if types.AddressFromPublicKey(b.PublicKey) != b.Address {
		return ErrKeyMismatch
	}
	if !crypto.VerifySignature(b.PublicKey, b.Hash[:], b.Signature) {
		return ErrBadSignature
	}
	return nil
}
