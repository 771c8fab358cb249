package wallet

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/vite-agent/pkg/crypto"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// ErrInvalidSeed is returned when a seed phrase is not a valid BIP-39 mnemonic.
var ErrInvalidSeed = errors.New("invalid seed phrase")

// ErrIndexOutOfRange is returned for address indices at or above 2^31,
// which cannot be used as hardened path components.
var ErrIndexOutOfRange = errors.New("address index out of range")

// KeyPair is the key material for one derived account.
type KeyPair struct {
	Index      uint32
	Address    types.Address
	PublicKey  []byte
	PrivateKey []byte // seed || public key
}

// Signer returns a signing key for the pair.
func (kp *KeyPair) Signer() (*crypto.PrivateKey, error) {
	return crypto.PrivateKeyFromBytes(kp.PrivateKey)
}

// Zero wipes the private key bytes.
func (kp *KeyPair) Zero() {
	for i := range kp.PrivateKey {
		kp.PrivateKey[i] = 0
	}
}

// Keyring derives account key pairs from seed phrases. Derivation is pure:
// the same phrase, passphrase and index always yield the same pair.
type Keyring struct {
	// Passphrase is the optional BIP-39 passphrase ("25th word").
	Passphrase string
}

// Derive returns the key pair at m/44'/666666'/index'.
func (kr Keyring) Derive(mnemonic string, index uint32) (*KeyPair, error) {
	if index >= HardenedOffset {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	master, err := kr.master(mnemonic)
	if err != nil {
		return nil, err
	}
	defer master.Zero()
	return deriveKeyPair(master, index)
}

// DeriveRange returns count consecutive key pairs starting at start.
func (kr Keyring) DeriveRange(mnemonic string, start, count uint32) ([]*KeyPair, error) {
	if uint64(start)+uint64(count) > uint64(HardenedOffset) {
		return nil, fmt.Errorf("%w: %d+%d", ErrIndexOutOfRange, start, count)
	}
	master, err := kr.master(mnemonic)
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	pairs := make([]*KeyPair, 0, count)
	for i := start; i < start+count; i++ {
		kp, err := deriveKeyPair(master, i)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, kp)
	}
	return pairs, nil
}

// Create generates a new mnemonic and returns it with its first key pair.
func (kr Keyring) Create() (string, *KeyPair, error) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		return "", nil, err
	}
	kp, err := kr.Derive(mnemonic, 0)
	if err != nil {
		return "", nil, err
	}
	return mnemonic, kp, nil
}

func (kr Keyring) master(mnemonic string) (*HDKey, error) {
	seed, err := SeedFromMnemonic(mnemonic, kr.Passphrase)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
	}()
	return NewMasterKey(seed)
}

func deriveKeyPair(master *HDKey, index uint32) (*KeyPair, error) {
	node, err := master.DeriveAccount(index)
	if err != nil {
		return nil, fmt.Errorf("derive account %d: %w", index, err)
	}
	defer node.Zero()

	signer, err := node.Signer()
	if err != nil {
		return nil, fmt.Errorf("derive account %d: %w", index, err)
	}
	defer signer.Zero()

	pub := signer.PublicKey()
	return &KeyPair{
		Index:      index,
		Address:    types.AddressFromPublicKey(pub),
		PublicKey:  pub,
		PrivateKey: signer.Bytes(),
	}, nil
}
