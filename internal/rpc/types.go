package rpc

import "github.com/Klingon-tech/vite-agent/internal/wallet"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// SeedParam names the mnemonic an operation signs with: either inline, or
// a keystore wallet unlocked with its password.
type SeedParam struct {
	Mnemonics string `json:"mnemonics,omitempty"`
	Wallet    string `json:"wallet,omitempty"`
	Password  string `json:"password,omitempty"`
}

// CreateParam is used by wallet_create. With Name set the new mnemonic is
// also saved to the keystore under Password.
type CreateParam struct {
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

// AddressParam is used by wallet_getBalance.
type AddressParam struct {
	Address string `json:"address"`
}

// TransactionsParam is used by wallet_getTransactions.
type TransactionsParam struct {
	Address string `json:"address"`
	Size    int    `json:"size,omitempty"`
	Index   int    `json:"index,omitempty"`
}

// SendParam is used by wallet_send.
type SendParam struct {
	SeedParam
	Index     uint32 `json:"index"`
	ToAddress string `json:"to"`
	TokenID   string `json:"tokenId"`
	Amount    string `json:"amount"`
}

// ReceiveParam is used by wallet_receiveAll. Indices, when present,
// replaces Index and receives for every listed account concurrently.
type ReceiveParam struct {
	SeedParam
	Index   uint32   `json:"index"`
	Indices []uint32 `json:"indices,omitempty"`
}

// HistoryParam is used by wallet_history.
type HistoryParam struct {
	Address string `json:"address"`
	Limit   int    `json:"limit,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// WalletInfo is one keystore wallet as listed by wallet_list.
type WalletInfo struct {
	Name     string                `json:"name"`
	Accounts []wallet.AccountEntry `json:"accounts"`
}
