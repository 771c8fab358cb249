package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxAmountBits bounds amounts to the 32-byte field used in block hashing.
const MaxAmountBits = 256

// ErrInvalidAmount is returned for amounts that are not non-negative base-10 integers.
var ErrInvalidAmount = errors.New("amount must be a non-negative integer in smallest units")

// Amount is a non-negative token quantity in the token's smallest unit.
// It travels as a decimal string and never passes through floating point.
// The zero value is 0.
type Amount struct {
	v *big.Int
}

// NewAmount creates an Amount from a uint64.
func NewAmount(u uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(u)}
}

// NewAmountFromBig creates an Amount from a big integer. Negative values and
// values wider than MaxAmountBits are rejected.
func NewAmountFromBig(v *big.Int) (Amount, error) {
	if v == nil {
		return Amount{}, nil
	}
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	if v.BitLen() > MaxAmountBits {
		return Amount{}, fmt.Errorf("%w: exceeds %d bits", ErrInvalidAmount, MaxAmountBits)
	}
	return Amount{v: new(big.Int).Set(v)}, nil
}

// ParseAmount parses a base-10 string of digits.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, ErrInvalidAmount
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if v.BitLen() > MaxAmountBits {
		return Amount{}, fmt.Errorf("%w: exceeds %d bits", ErrInvalidAmount, MaxAmountBits)
	}
	return Amount{v: v}, nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the decimal string form.
func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

// BigInt returns a copy of the underlying integer.
func (a Amount) BigInt() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.v)
}

// IsZero returns true if the amount is 0.
func (a Amount) IsZero() bool {
	return a.v == nil || a.v.Sign() == 0
}

// Cmp compares two amounts like big.Int.Cmp.
func (a Amount) Cmp(b Amount) int {
	return a.BigInt().Cmp(b.BigInt())
}

// Add returns a + b.
func (a Amount) Add(b Amount) (Amount, error) {
	return NewAmountFromBig(new(big.Int).Add(a.BigInt(), b.BigInt()))
}

// Sub returns a - b, or an error if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	return NewAmountFromBig(new(big.Int).Sub(a.BigInt(), b.BigInt()))
}

// Bytes32 returns the big-endian amount left-padded to 32 bytes.
func (a Amount) Bytes32() [32]byte {
	var out [32]byte
	if a.v != nil {
		a.v.FillBytes(out[:])
	}
	return out
}

// Display renders the amount in whole-token units for a token with the given
// number of decimals, e.g. "100000000" with 8 decimals renders as "1".
func (a Amount) Display(decimals int32) string {
	return decimal.NewFromBigInt(a.BigInt(), -decimals).String()
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a quoted decimal string, a bare JSON integer, or null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Amount{}
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	if s == "" {
		*a = Amount{}
		return nil
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ExplorerTxURL returns the public block explorer link for a transaction hash.
func ExplorerTxURL(h Hash) string {
	return "https://vitescan.io/tx/" + h.String()
}
