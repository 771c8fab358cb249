// derive_key.go prints the public keys and addresses derived from a mnemonic file.
// Usage: go run scripts/derive_key.go <mnemonic-file> [count]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/Klingon-tech/vite-agent/internal/wallet"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <mnemonic-file> [count]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	count := uint64(1)
	if len(os.Args) > 2 {
		count, err = strconv.ParseUint(os.Args[2], 10, 32)
		if err != nil || count == 0 {
			fmt.Fprintln(os.Stderr, "count must be a positive integer")
			os.Exit(1)
		}
	}
	pairs, err := wallet.Keyring{}.DeriveRange(wallet.NormalizeMnemonic(string(data)), 0, uint32(count))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, kp := range pairs {
		fmt.Printf("index=%d pubkey=%s address=%s\n", kp.Index, hex.EncodeToString(kp.PublicKey), kp.Address)
		kp.Zero()
	}
}
