package block

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Klingon-tech/vite-agent/pkg/types"
)

// blockJSON is the node's wire representation. Integers that can exceed
// 2^53 travel as decimal strings; byte fields travel as base64.
type blockJSON struct {
	BlockType     Kind             `json:"blockType"`
	Height        uintString       `json:"height"`
	Hash          types.Hash       `json:"hash"`
	PreviousHash  types.Hash       `json:"previousHash"`
	Address       types.Address    `json:"address"`
	PublicKey     []byte           `json:"publicKey,omitempty"`
	FromAddress   *types.Address   `json:"fromAddress,omitempty"`
	ToAddress     *types.Address   `json:"toAddress,omitempty"`
	SendBlockHash *types.Hash      `json:"sendBlockHash,omitempty"`
	TokenID       *types.TokenID   `json:"tokenId,omitempty"`
	Amount        *types.Amount    `json:"amount,omitempty"`
	Fee           types.Amount     `json:"fee"`
	Data          []byte           `json:"data"`
	Difficulty    *string          `json:"difficulty"`
	Nonce         []byte           `json:"nonce"`
	Signature     []byte           `json:"signature,omitempty"`
	Timestamp     int64            `json:"timestamp,omitempty"`
	Confirmations *uintString      `json:"confirmations,omitempty"`
	TokenInfo     *types.TokenInfo `json:"tokenInfo,omitempty"`
}

// MarshalJSON encodes the block in the form the node accepts for
// ledger_sendRawTransaction.
func (b *AccountBlock) MarshalJSON() ([]byte, error) {
	j := blockJSON{
		BlockType:    b.BlockType,
		Height:       uintString(b.Height),
		Hash:         b.Hash,
		PreviousHash: b.PreviousHash,
		Address:      b.Address,
		PublicKey:    b.PublicKey,
		Fee:          b.Fee,
		Data:         b.Data,
		Nonce:        b.Nonce,
		Signature:    b.Signature,
		Timestamp:    b.Timestamp,
		TokenInfo:    b.TokenInfo,
	}
	if b.IsSend() {
		to, tok, amt := b.ToAddress, b.TokenID, b.Amount
		j.ToAddress, j.TokenID, j.Amount = &to, &tok, &amt
	} else {
		sbh := b.SendBlockHash
		j.SendBlockHash = &sbh
	}
	if !b.FromAddress.IsZero() {
		from := b.FromAddress
		j.FromAddress = &from
	}
	if b.Difficulty != "" {
		d := b.Difficulty
		j.Difficulty = &d
	}
	if b.Confirmations > 0 {
		c := uintString(b.Confirmations)
		j.Confirmations = &c
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a block as returned by the node's ledger methods.
func (b *AccountBlock) UnmarshalJSON(data []byte) error {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*b = AccountBlock{
		BlockType:    j.BlockType,
		Height:       uint64(j.Height),
		Hash:         j.Hash,
		PreviousHash: j.PreviousHash,
		Address:      j.Address,
		PublicKey:    j.PublicKey,
		Fee:          j.Fee,
		Data:         j.Data,
		Nonce:        j.Nonce,
		Signature:    j.Signature,
		Timestamp:    j.Timestamp,
		TokenInfo:    j.TokenInfo,
	}
	if j.FromAddress != nil {
		b.FromAddress = *j.FromAddress
	}
	if j.ToAddress != nil {
		b.ToAddress = *j.ToAddress
	}
	if j.SendBlockHash != nil {
		b.SendBlockHash = *j.SendBlockHash
	}
	if j.TokenID != nil {
		b.TokenID = *j.TokenID
	}
	if j.Amount != nil {
		b.Amount = *j.Amount
	}
	if j.Difficulty != nil {
		b.Difficulty = *j.Difficulty
	}
	if j.Confirmations != nil {
		b.Confirmations = uint64(*j.Confirmations)
	}
	return nil
}

// uintString is a uint64 carried as a JSON decimal string. Bare numbers
// and null are accepted on input.
type uintString uint64

func (u uintString) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *uintString) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*u = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*u = 0
			return nil
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid unsigned integer %q: %w", s, err)
	}
	*u = uintString(v)
	return nil
}
