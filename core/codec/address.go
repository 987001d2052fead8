package codec

import (
	"fmt"

	"shardgate/crypto"
)

// AccountIDPrefix marks an indices address that carries a full 32-byte account id.
const AccountIDPrefix = 0xff

// Address is an indices lookup source: either a full account id or a compact account index.
type Address struct {
	AccountID []byte
	Index     uint64
	encoded   []byte
}

// IsAccountID reports whether the address names an account id directly.
func (a Address) IsAccountID() bool {
	return a.AccountID != nil
}

// Encoded returns the exact SCALE bytes the address was decoded from.
func (a Address) Encoded() []byte {
	return a.encoded
}

func decodeAddress(r *reader) (Address, error) {
	start := r.pos()
	tag, err := r.readByte()
	if err != nil {
		return Address{}, err
	}
	var addr Address
	switch {
	case tag == AccountIDPrefix:
		id, err := r.fixed(crypto.PublicKeyLength)
		if err != nil {
			return Address{}, err
		}
		addr.AccountID = id
	case tag == 0xfe:
		addr.Index, err = r.u64()
	case tag == 0xfd:
		var v uint32
		v, err = r.u32()
		addr.Index = uint64(v)
	case tag == 0xfc:
		var v uint16
		v, err = r.u16()
		addr.Index = uint64(v)
	case tag < 0xf0:
		addr.Index = uint64(tag)
	default:
		return Address{}, fmt.Errorf("invalid address tag 0x%02x", tag)
	}
	if err != nil {
		return Address{}, err
	}
	addr.encoded = r.span(start)
	return addr, nil
}
