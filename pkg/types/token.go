package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Token ID layout constants.
const (
	TokenIDSize         = 10
	TokenIDChecksumSize = 2
	TokenIDPrefix       = "tti_"
	TokenIDStringLen    = len(TokenIDPrefix) + 2*TokenIDSize + 2*TokenIDChecksumSize
)

// ViteTokenID is the native VITE token.
var ViteTokenID = MustParseTokenID("tti_5649544520544f4b454e6e40")

// ErrTokenIDChecksum is returned when the checksum suffix of a token ID is wrong.
var ErrTokenIDChecksum = errors.New("token id checksum mismatch")

// TokenID identifies a token: 10 raw bytes rendered as "tti_" + hex + 2-byte checksum.
type TokenID [TokenIDSize]byte

// IsZero returns true if the token ID is all zeros.
func (t TokenID) IsZero() bool {
	return t == TokenID{}
}

// Bytes returns a copy of the raw token ID.
func (t TokenID) Bytes() []byte {
	b := make([]byte, TokenIDSize)
	copy(b, t[:])
	return b
}

// String returns the textual tti_ form.
func (t TokenID) String() string {
	return TokenIDPrefix + hex.EncodeToString(t[:]) + hex.EncodeToString(checksum(t[:], TokenIDChecksumSize))
}

// ParseTokenID decodes and validates a textual tti_ token ID.
func ParseTokenID(s string) (TokenID, error) {
	if len(s) != TokenIDStringLen {
		return TokenID{}, fmt.Errorf("token id must be %d characters, got %d", TokenIDStringLen, len(s))
	}
	if !strings.HasPrefix(s, TokenIDPrefix) {
		return TokenID{}, fmt.Errorf("token id must start with %s", TokenIDPrefix)
	}
	raw, err := hex.DecodeString(s[len(TokenIDPrefix):])
	if err != nil {
		return TokenID{}, fmt.Errorf("invalid token id hex: %w", err)
	}
	var t TokenID
	copy(t[:], raw[:TokenIDSize])
	if !bytes.Equal(checksum(t[:], TokenIDChecksumSize), raw[TokenIDSize:]) {
		return TokenID{}, ErrTokenIDChecksum
	}
	return t, nil
}

// MustParseTokenID is like ParseTokenID but panics on error.
func MustParseTokenID(s string) TokenID {
	t, err := ParseTokenID(s)
	if err != nil {
		panic(err)
	}
	return t
}

// MarshalJSON encodes the token ID as its textual form.
func (t TokenID) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a textual token ID.
func (t *TokenID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = TokenID{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = TokenID{}
		return nil
	}
	parsed, err := ParseTokenID(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TokenInfo describes a token as reported by the node.
type TokenInfo struct {
	TokenName   string  `json:"tokenName"`
	TokenSymbol string  `json:"tokenSymbol"`
	TokenID     TokenID `json:"tokenId"`
	Decimals    int32   `json:"decimals"`
	Index       int     `json:"index"`
}

// tokenInfoJSON tolerates decimals and index sent as strings.
type tokenInfoJSON struct {
	TokenName   string          `json:"tokenName"`
	TokenSymbol string          `json:"tokenSymbol"`
	TokenID     TokenID         `json:"tokenId"`
	Decimals    json.RawMessage `json:"decimals"`
	Index       json.RawMessage `json:"index"`
}

// UnmarshalJSON decodes token info, accepting numeric fields as numbers or strings.
func (ti *TokenInfo) UnmarshalJSON(data []byte) error {
	var j tokenInfoJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	dec, err := looseInt(j.Decimals)
	if err != nil {
		return fmt.Errorf("token decimals: %w", err)
	}
	idx, err := looseInt(j.Index)
	if err != nil {
		return fmt.Errorf("token index: %w", err)
	}
	*ti = TokenInfo{
		TokenName:   j.TokenName,
		TokenSymbol: j.TokenSymbol,
		TokenID:     j.TokenID,
		Decimals:    int32(dec),
		Index:       int(idx),
	}
	return nil
}

func looseInt(raw json.RawMessage) (int64, error) {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 32)
}
