// Package gateway is the agent's view of a remote Vite node: account state
// queries, PoW parameters and block submission.
package gateway

import (
	"context"

	"github.com/Klingon-tech/vite-agent/pkg/block"
	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// Gateway is the set of node operations the agent depends on. Every method
// is bounded by a timeout and returns *UnreachableError, *RPCError or
// *MalformedResponseError on failure. Implementations never retry.
type Gateway interface {
	// GetAccountInfo returns confirmed balances for addr.
	GetAccountInfo(ctx context.Context, addr types.Address) (*AccountInfo, error)

	// GetUnreceivedCount returns how many inbound blocks await a receive.
	GetUnreceivedCount(ctx context.Context, addr types.Address) (uint64, error)

	// GetTransactionList returns one page of addr's account chain, newest first.
	GetTransactionList(ctx context.Context, addr types.Address, pageIndex, pageSize int) ([]*block.AccountBlock, error)

	// GetLatestBlock returns the head of addr's chain, or nil for an
	// account that has no blocks yet.
	GetLatestBlock(ctx context.Context, addr types.Address) (*block.AccountBlock, error)

	// GetUnreceivedBlocks returns one page of send blocks awaiting receipt.
	GetUnreceivedBlocks(ctx context.Context, addr types.Address, pageIndex, pageSize int) ([]*block.AccountBlock, error)

	// GetPoWDifficulty returns the difficulty required for the block
	// described by req, or "" when the account has enough quota.
	GetPoWDifficulty(ctx context.Context, req PoWRequest) (string, error)

	// SolvePoWNonce asks the node to find a nonce for difficulty over hash.
	SolvePoWNonce(ctx context.Context, difficulty string, hash types.Hash) ([]byte, error)

	// SubmitBlock broadcasts a signed block.
	SubmitBlock(ctx context.Context, b *block.AccountBlock) error
}

// AccountInfo is the confirmed state of an account.
type AccountInfo struct {
	Address    types.Address
	BlockCount uint64
	Balances   []TokenBalance
}

// Balance returns the balance of tok, or zero when the account holds none.
func (ai *AccountInfo) Balance(tok types.TokenID) types.Amount {
	for _, b := range ai.Balances {
		if b.TokenInfo.TokenID == tok {
			return b.Balance
		}
	}
	return types.Amount{}
}

// TokenBalance is one token's confirmed balance.
type TokenBalance struct {
	TokenInfo types.TokenInfo
	Balance   types.Amount
}

// PoWRequest describes a block for ledger_getPoWDifficulty.
type PoWRequest struct {
	Address      types.Address
	PreviousHash types.Hash
	BlockType    block.Kind
	ToAddress    types.Address
	Data         []byte
}

// PoWRequestFor builds the difficulty query for an unsigned block.
func PoWRequestFor(b *block.AccountBlock) PoWRequest {
	req := PoWRequest{
		Address:      b.Address,
		PreviousHash: b.PreviousHash,
		BlockType:    b.BlockType,
		Data:         b.Data,
	}
	if b.IsSend() {
		req.ToAddress = b.ToAddress
	}
	return req
}
