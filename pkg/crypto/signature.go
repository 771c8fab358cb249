package crypto

import (
	"bytes"
	"crypto/subtle"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"
)

// Key and signature sizes.
const (
	SeedSize       = 32
	PublicKeySize  = 32
	PrivateKeySize = SeedSize + PublicKeySize
	SignatureSize  = 64
)

// Signer signs messages with a private key.
type Signer interface {
	// Sign produces an ed25519-blake2b signature over msg.
	Sign(msg []byte) ([]byte, error)
	// PublicKey returns the 32-byte public key.
	PublicKey() []byte
}

// PrivateKey is an ed25519 key that uses BLAKE2b-512 in place of SHA-512,
// which is the signature scheme account blocks are verified with.
type PrivateKey struct {
	seed   [SeedSize]byte
	pub    [PublicKeySize]byte
	prefix [32]byte
	scalar *edwards25519.Scalar
}

// NewKeyFromSeed expands a 32-byte seed into a private key.
func NewKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	h := blake2b.Sum512(seed)
	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, fmt.Errorf("clamp scalar: %w", err)
	}
	pk := &PrivateKey{scalar: s}
	copy(pk.seed[:], seed)
	copy(pk.prefix[:], h[32:])
	copy(pk.pub[:], new(edwards25519.Point).ScalarBaseMult(s).Bytes())
	return pk, nil
}

// PrivateKeyFromBytes restores a key from its 64-byte form (seed || public key).
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	pk, err := NewKeyFromSeed(b[:SeedSize])
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(pk.pub[:], b[SeedSize:]) != 1 {
		return nil, fmt.Errorf("public key does not match seed")
	}
	return pk, nil
}

// Sign produces a 64-byte signature over msg.
func (pk *PrivateKey) Sign(msg []byte) ([]byte, error) {
	if pk.scalar == nil {
		return nil, fmt.Errorf("private key is zeroed")
	}
	rh, _ := blake2b.New512(nil)
	rh.Write(pk.prefix[:])
	rh.Write(msg)
	r, err := edwards25519.NewScalar().SetUniformBytes(rh.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("nonce scalar: %w", err)
	}
	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	k, err := challenge(R, pk.pub[:], msg)
	if err != nil {
		return nil, err
	}
	S := edwards25519.NewScalar().MultiplyAdd(k, pk.scalar, r)

	sig := make([]byte, 0, SignatureSize)
	sig = append(sig, R...)
	return append(sig, S.Bytes()...), nil
}

// PublicKey returns a copy of the 32-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	out := make([]byte, PublicKeySize)
	copy(out, pk.pub[:])
	return out
}

// Bytes returns the 64-byte private key (seed || public key).
func (pk *PrivateKey) Bytes() []byte {
	out := make([]byte, 0, PrivateKeySize)
	out = append(out, pk.seed[:]...)
	return append(out, pk.pub[:]...)
}

// Zero wipes the secret material. The key cannot sign afterwards.
func (pk *PrivateKey) Zero() {
	for i := range pk.seed {
		pk.seed[i] = 0
	}
	for i := range pk.prefix {
		pk.prefix[i] = 0
	}
	pk.scalar = nil
}

// VerifySignature checks sig over msg against a 32-byte public key.
// Returns false on any malformed input.
func VerifySignature(pub, msg, sig []byte) bool {
	if len(pub) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	A, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return false
	}
	S, err := edwards25519.NewScalar().SetCanonicalBytes(sig[32:])
	if err != nil {
		return false
	}
	k, err := challenge(sig[:32], pub, msg)
	if err != nil {
		return false
	}
	minusA := new(edwards25519.Point).Negate(A)
	R := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(k, minusA, S)
	return bytes.Equal(sig[:32], R.Bytes())
}

func challenge(R, pub, msg []byte) (*edwards25519.Scalar, error) {
	kh, _ := blake2b.New512(nil)
	kh.Write(R)
	kh.Write(pub)
	kh.Write(msg)
	k, err := edwards25519.NewScalar().SetUniformBytes(kh.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("challenge scalar: %w", err)
	}
	return k, nil
}
