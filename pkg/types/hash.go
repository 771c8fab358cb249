// Package types defines core primitive types for the Vite account-block network.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit block hash.
type Hash [HashSize]byte

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash. Empty strings and JSON null
// decode to the zero hash, which is how the node reports "no previous block".
func (h *Hash) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*h = Hash{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := HexToHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash converts a hex string to a Hash.
// Returns an error if the string is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// checksum returns the first n bytes of an unkeyed BLAKE2b digest of size n.
// Used for the short checksums embedded in address and token ID strings.
func checksum(data []byte, n int) []byte {
	h, err := blake2b.New(n, nil)
	if err != nil {
		// Only reachable with n outside [1, 64].
		panic(err)
	}
	h.Write(data)
	return h.Sum(nil)
}
