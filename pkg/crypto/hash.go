// Package crypto provides the hashing and signing primitives used by Vite
// account blocks.
package crypto

import (
	"github.com/Klingon-tech/vite-agent/pkg/types"
	"golang.org/x/crypto/blake2b"
)

// Hash computes a BLAKE2b-256 hash of the input data.
func Hash(data ...[]byte) types.Hash {
	h, _ := blake2b.New256(nil)
	for _, d := range data {
		h.Write(d)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// PoWHashInput returns the hash a proof-of-work nonce is searched against for
// the next block of addr: BLAKE2b-256(raw address || previous hash).
func PoWHashInput(addr types.Address, previous types.Hash) types.Hash {
	return Hash(addr[:], previous[:])
}
