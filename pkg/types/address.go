package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Address layout constants.
const (
	// AddressCoreSize is the blake2b-160 digest of the public key.
	AddressCoreSize = 20

	// AddressSize is the raw ("original") address: core plus one type byte.
	AddressSize = AddressCoreSize + 1

	// AddressChecksumSize is the length of the checksum suffix in bytes.
	AddressChecksumSize = 5

	// AddressPrefix starts every textual address.
	AddressPrefix = "vite_"

	// AddressStringLen is the length of a textual address.
	AddressStringLen = len(AddressPrefix) + 2*AddressCoreSize + 2*AddressChecksumSize
)

// Address type bytes.
const (
	UserAccount     byte = 0
	ContractAccount byte = 1
)

// Address parse errors.
var (
	ErrAddressLength   = errors.New("address must be 55 characters")
	ErrAddressPrefix   = errors.New("address must start with vite_")
	ErrAddressChecksum = errors.New("address checksum mismatch")
)

// Address is the raw 21-byte account address.
//
// String form: "vite_" + hex(core) + hex(checksum), where the checksum is a
// 5-byte blake2b digest of the core. Contract addresses invert the checksum.
type Address [AddressSize]byte

// AddressFromPublicKey derives a user account address from an ed25519 public key.
func AddressFromPublicKey(pub []byte) Address {
	var a Address
	copy(a[:AddressCoreSize], checksum(pub, AddressCoreSize))
	a[AddressCoreSize] = UserAccount
	return a
}

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// IsContract reports whether the address belongs to a contract account.
func (a Address) IsContract() bool {
	return a[AddressCoreSize] == ContractAccount
}

// Bytes returns a copy of the raw 21-byte address.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// Hex returns the hex encoding of the raw address (the "original address").
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// String returns the textual vite_ address.
func (a Address) String() string {
	return AddressPrefix + hex.EncodeToString(a[:AddressCoreSize]) + hex.EncodeToString(a.checksum())
}

func (a Address) checksum() []byte {
	sum := checksum(a[:AddressCoreSize], AddressChecksumSize)
	if a.IsContract() {
		for i := range sum {
			sum[i] = ^sum[i]
		}
	}
	return sum
}

// ParseAddress decodes and validates a textual vite_ address.
func ParseAddress(s string) (Address, error) {
	if len(s) != AddressStringLen {
		return Address{}, fmt.Errorf("%w, got %d", ErrAddressLength, len(s))
	}
	if !strings.HasPrefix(s, AddressPrefix) {
		return Address{}, ErrAddressPrefix
	}
	body := s[len(AddressPrefix):]
	core, err := hex.DecodeString(body[:2*AddressCoreSize])
	if err != nil {
		return Address{}, fmt.Errorf("invalid address hex: %w", err)
	}
	sum, err := hex.DecodeString(body[2*AddressCoreSize:])
	if err != nil {
		return Address{}, fmt.Errorf("invalid address checksum hex: %w", err)
	}

	var a Address
	copy(a[:], core)
	if bytes.Equal(a.checksum(), sum) {
		return a, nil
	}
	a[AddressCoreSize] = ContractAccount
	if bytes.Equal(a.checksum(), sum) {
		return a, nil
	}
	return Address{}, ErrAddressChecksum
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsValidAddress reports whether s is a well-formed vite_ address.
func IsValidAddress(s string) bool {
	_, err := ParseAddress(s)
	return err == nil
}

// MarshalJSON encodes the address as its textual form.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a textual address. Empty strings and null decode to the
// zero address.
func (a *Address) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Address{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
