package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Number is a block number that accepts both a JSON number and a 0x-prefixed hex quantity,
// the latter being how shard nodes serialise header numbers.
type Number uint64

func (n *Number) UnmarshalJSON(input []byte) error {
	trimmed := strings.TrimSpace(string(input))
	if trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(input, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		base := 10
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			s = s[2:]
			base = 16
		}
		v, err := strconv.ParseUint(s, base, 64)
		if err != nil {
			return fmt.Errorf("invalid block number %q: %w", trimmed, err)
		}
		*n = Number(v)
		return nil
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid block number %s: %w", trimmed, err)
	}
	*n = Number(v)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(n), 10)), nil
}

// Balance is an unsigned 128-bit amount. It is serialised as a decimal string because JSON
// numbers cannot carry 128-bit integers losslessly.
type Balance struct {
	v uint256.Int
}

// NewBalance copies x. A nil x is zero.
func NewBalance(x *uint256.Int) Balance {
	var b Balance
	if x != nil {
		b.v.Set(x)
	}
	return b
}

// BalanceFromUint64 is a convenience for small amounts.
func BalanceFromUint64(x uint64) Balance {
	var b Balance
	b.v.SetUint64(x)
	return b
}

// Int returns a copy of the underlying integer.
func (b Balance) Int() *uint256.Int {
	return new(uint256.Int).Set(&b.v)
}

func (b Balance) String() string {
	return b.v.Dec()
}

func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.v.Dec())
}

func (b *Balance) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return fmt.Errorf("balance must be a decimal string: %w", err)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return fmt.Errorf("invalid balance %q: %w", s, err)
	}
	b.v.Set(v)
	return nil
}
