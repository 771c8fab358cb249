// Package pow finds the proof-of-work nonce a node demands from accounts
// without enough free quota.
package pow

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"runtime"
	"strings"
	"sync"

	"github.com/Klingon-tech/vite-agent/internal/gateway"
	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/types"
	"golang.org/x/crypto/blake2b"
)

// Strategy names accepted by New.
const (
	StrategyNode  = "node"
	StrategyLocal = "local"
)

// PoW errors.
var (
	ErrBadDifficulty     = errors.New("difficulty must be a positive decimal integer")
	ErrDifficultyTooHigh = errors.New("difficulty exceeds the 64-bit work range")
	ErrInsufficientWork  = errors.New("nonce does not meet difficulty")
	ErrNonceExhausted    = errors.New("nonce space exhausted")
	ErrUnknownStrategy   = errors.New("unknown pow strategy")
)

// two64 is 2^64.
var two64 = new(big.Int).Lsh(big.NewInt(1), 64)

// Strategy computes a nonce satisfying difficulty over hash.
type Strategy interface {
	Solve(ctx context.Context, difficulty string, hash types.Hash) ([]byte, error)
}

// Node delegates the search to the remote node (util_getPoWNonce).
type Node struct {
	Gateway gateway.Gateway
}

// Solve implements Strategy.
func (n *Node) Solve(ctx context.Context, difficulty string, hash types.Hash) ([]byte, error) {
	nonce, err := n.Gateway.SolvePoWNonce(ctx, difficulty, hash)
	if err != nil {
		return nil, err
	}
	if len(nonce) != block.NonceSize {
		return nil, fmt.Errorf("node returned %d-byte nonce", len(nonce))
	}
	return nonce, nil
}

// Local searches the nonce space on this machine.
type Local struct {
	// Threads controls the number of search goroutines. 0 means
	// runtime.NumCPU(); 1 searches on the calling goroutine. Each
	// goroutine walks a strided partition of the nonce space.
	Threads int
}

// Solve implements Strategy.
func (l *Local) Solve(ctx context.Context, difficulty string, hash types.Hash) ([]byte, error) {
	threshold, err := Threshold(difficulty)
	if err != nil {
		return nil, err
	}
	threads := l.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	var nonce uint64
	if threads == 1 {
		nonce, err = solveSingle(ctx, threshold, hash)
	} else {
		nonce, err = solveParallel(ctx, threshold, hash, threads)
	}
	if err != nil {
		return nil, err
	}
	return encodeNonce(nonce), nil
}

// New returns the named strategy. gw is only used by the node strategy.
func New(name string, gw gateway.Gateway, threads int) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", StrategyNode:
		if gw == nil {
			return nil, errors.New("node pow strategy needs a gateway")
		}
		return &Node{Gateway: gw}, nil
	case StrategyLocal:
		return &Local{Threads: threads}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Threshold converts a decimal difficulty into the minimum 64-bit work value
// a nonce must reach: 2^64 - 2^64/difficulty.
func Threshold(difficulty string) (uint64, error) {
	d, ok := new(big.Int).SetString(difficulty, 10)
	if !ok || d.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadDifficulty, difficulty)
	}
	if d.Cmp(two64) >= 0 {
		return 0, fmt.Errorf("%w: %s", ErrDifficultyTooHigh, difficulty)
	}
	q := new(big.Int).Quo(two64, d)
	return new(big.Int).Sub(two64, q).Uint64(), nil
}

// Verify checks that nonce satisfies difficulty over hash.
func Verify(difficulty string, hash types.Hash, nonce []byte) error {
	threshold, err := Threshold(difficulty)
	if err != nil {
		return err
	}
	if len(nonce) != block.NonceSize {
		return fmt.Errorf("%w: nonce must be %d bytes", ErrInsufficientWork, block.NonceSize)
	}
	if work(nonce, hash) < threshold {
		return ErrInsufficientWork
	}
	return nil
}

// work is the little-endian value of the 8-byte BLAKE2b digest of nonce||hash.
func work(nonce []byte, hash types.Hash) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write(nonce)
	h.Write(hash[:])
	return binary.LittleEndian.Uint64(h.Sum(nil))
}

func encodeNonce(n uint64) []byte {
	out := make([]byte, block.NonceSize)
	binary.LittleEndian.PutUint64(out, n)
	return out
}

func solveSingle(ctx context.Context, threshold uint64, hash types.Hash) (uint64, error) {
	buf := make([]byte, block.NonceSize)
	for nonce := uint64(0); ; nonce++ {
		if nonce&0xFFFF == 0 && nonce > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			default:
			}
		}

		binary.LittleEndian.PutUint64(buf, nonce)
		if work(buf, hash) >= threshold {
			return nonce, nil
		}
		if nonce == ^uint64(0) {
			return 0, ErrNonceExhausted
		}
	}
}

// solveParallel runs threads goroutines; goroutine i starts at nonce i and
// steps by threads.
func solveParallel(parent context.Context, threshold uint64, hash types.Hash, threads int) (uint64, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	type result struct {
		nonce uint64
		err   error
	}
	found := make(chan result, 1)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		start := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			buf := make([]byte, block.NonceSize)
			for nonce := start; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 && nonce > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				binary.LittleEndian.PutUint64(buf, nonce)
				if work(buf, hash) >= threshold {
					select {
					case found <- result{nonce: nonce}:
					default:
					}
					cancel()
					return
				}

				if nonce > ^uint64(0)-stride {
					select {
					case found <- result{err: ErrNonceExhausted}:
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return 0, ErrNonceExhausted
		}
		return r.nonce, r.err
	case <-parent.Done():
		return 0, parent.Err()
	}
}
