package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// PublicKeyLength is the size of an account public key on every shard.
const PublicKeyLength = 32

// HRP is the human-readable part of a bech32 account address, e.g. "yee" or "tyee".
type HRP string

// Address is a 32-byte account public key paired with the network HRP it is rendered with.
type Address struct {
	hrp   HRP
	bytes []byte
}

// NewAddress validates the key length and copies the key bytes.
func NewAddress(hrp HRP, key []byte) (Address, error) {
	if len(key) != PublicKeyLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", PublicKeyLength, len(key))
	}
	if strings.TrimSpace(string(hrp)) == "" {
		return Address{}, fmt.Errorf("address hrp required")
	}
	b := make([]byte, PublicKeyLength)
	copy(b, key)
	return Address{hrp: hrp, bytes: b}, nil
}

// MustNewAddress is NewAddress for keys already known to be valid.
func MustNewAddress(hrp HRP, key []byte) Address {
	addr, err := NewAddress(hrp, key)
	if err != nil {
		panic(err)
	}
	return addr
}

// Encode renders the address as a bech32 string.
func (a Address) Encode() (string, error) {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	encoded, err := bech32.Encode(string(a.hrp), conv)
	if err != nil {
		return "", fmt.Errorf("bech32 encode: %w", err)
	}
	return encoded, nil
}

func (a Address) String() string {
	encoded, err := a.Encode()
	if err != nil {
		return ""
	}
	return encoded
}

// Bytes returns the public key.
func (a Address) Bytes() []byte {
	return a.bytes
}

// HRP returns the human-readable part the address was built with.
func (a Address) HRP() HRP {
	return a.hrp
}

// DecodeAddress parses a bech32 address. The decoded key must be exactly 32 bytes.
func DecodeAddress(addrStr string) (Address, error) {
	hrp, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(HRP(hrp), conv)
}
