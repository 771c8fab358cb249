package wallet

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/vite-agent/pkg/crypto"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// Derivation path constants. Vite accounts live at m/44'/666666'/index'.
const (
	// HardenedOffset is added to an index for hardened derivation.
	HardenedOffset uint32 = 0x80000000

	// PurposeBIP44 is the BIP-44 purpose field (hardened).
	PurposeBIP44 = HardenedOffset + 44

	// CoinTypeVite is the registered Vite coin type (hardened).
	CoinTypeVite = HardenedOffset + 666666
)

// ed25519 only supports hardened children (SLIP-0010).
var masterKeySalt = []byte("ed25519 seed")

// HDKey is a SLIP-0010 ed25519 extended private key.
type HDKey struct {
	key       [32]byte
	chainCode [32]byte
	depth     uint8
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	mac := hmac.New(sha512.New, masterKeySalt)
	mac.Write(seed)
	return split(mac.Sum(nil), 0), nil
}

// DeriveChild derives the hardened child at index. Indices below
// HardenedOffset are hardened implicitly.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	if k.depth == 255 {
		return nil, fmt.Errorf("derive child %d: maximum depth reached", index)
	}
	index |= HardenedOffset

	var data [1 + 32 + 4]byte
	copy(data[1:], k.key[:])
	binary.BigEndian.PutUint32(data[33:], index)

	mac := hmac.New(sha512.New, k.chainCode[:])
	mac.Write(data[:])
	return split(mac.Sum(nil), k.depth+1), nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// DeriveAccount derives the key at m/44'/666666'/index'.
func (k *HDKey) DeriveAccount(index uint32) (*HDKey, error) {
	return k.DerivePath(PurposeBIP44, CoinTypeVite, index)
}

// PrivateKeyBytes returns the raw 32-byte ed25519 seed.
func (k *HDKey) PrivateKeyBytes() []byte {
	out := make([]byte, 32)
	copy(out, k.key[:])
	return out
}

// ChainCode returns the 32-byte chain code.
func (k *HDKey) ChainCode() []byte {
	out := make([]byte, 32)
	copy(out, k.chainCode[:])
	return out
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.depth
}

// Signer returns the ed25519-blake2b signing key for this node.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	return crypto.NewKeyFromSeed(k.key[:])
}

// Address derives the user account address owned by this key.
func (k *HDKey) Address() (types.Address, error) {
	s, err := k.Signer()
	if err != nil {
		return types.Address{}, err
	}
	return types.AddressFromPublicKey(s.PublicKey()), nil
}

// Zero wipes the key material.
func (k *HDKey) Zero() {
	for i := range k.key {
		k.key[i] = 0
		k.chainCode[i] = 0
	}
}

func split(i []byte, depth uint8) *HDKey {
	k := &HDKey{depth: depth}
	copy(k.key[:], i[:32])
	copy(k.chainCode[:], i[32:])
	return k
}
