// Package codectest builds SCALE-encoded extrinsics and event logs for tests.
package codectest

import (
	"bytes"
	"encoding/binary"
)

// Compact encodes n in SCALE compact form.
func Compact(n uint64) []byte {
	switch {
	case n < 1<<6:
		return []byte{byte(n) << 2}
	case n < 1<<14:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, uint16(n)<<2|0b01)
		return out
	case n < 1<<30:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, uint32(n)<<2|0b10)
		return out
	}
	le := make([]byte, 8)
	binary.LittleEndian.PutUint64(le, n)
	for len(le) > 4 && le[len(le)-1] == 0 {
		le = le[:len(le)-1]
	}
	return append([]byte{byte(len(le)-4)<<2 | 0b11}, le...)
}

// Bytes encodes a length-prefixed byte vector.
func Bytes(b []byte) []byte {
	return append(Compact(uint64(len(b))), b...)
}

// Key returns a 32-byte key whose bytes are all fill.
func Key(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 32)
}

// AccountID encodes key as an indices address with the 0xff prefix.
func AccountID(key []byte) []byte {
	return append([]byte{0xff}, key...)
}

// Call encodes a call header followed by its arguments.
func Call(module, method byte, args ...[]byte) []byte {
	return append([]byte{module, method}, bytes.Join(args, nil)...)
}

// Transfer encodes balances.transfer to an account id.
func Transfer(dest []byte, value uint64) []byte {
	return Call(4, 0, AccountID(dest), Compact(value))
}

// TimestampSet encodes timestamp.set.
func TimestampSet(now uint64) []byte {
	return Call(0, 0, Compact(now))
}

// RelayTransfer encodes relay.transfer carrying the origin extrinsic tx.
func RelayTransfer(tx []byte, number uint64, hash, parent []byte) []byte {
	return Call(9, 0, []byte{0}, Bytes(tx), Compact(number), hash, parent)
}

// Unsigned wraps call as a length-prefixed unsigned extrinsic.
func Unsigned(call []byte) []byte {
	return Bytes(append([]byte{0x01}, call...))
}

// Signed wraps call as a length-prefixed signed, immortal extrinsic.
func Signed(sender []byte, nonce uint64, call []byte) []byte {
	return SignedWithEra(sender, nonce, []byte{0}, call)
}

// SignedWithEra is Signed with explicit era bytes.
func SignedWithEra(sender []byte, nonce uint64, era []byte, call []byte) []byte {
	body := []byte{0x81}
	body = append(body, AccountID(sender)...)
	body = append(body, bytes.Repeat([]byte{0x5a}, 64)...)
	body = append(body, Compact(nonce)...)
	body = append(body, era...)
	body = append(body, call...)
	return Bytes(body)
}

// EventLog encodes a vector of event records.
func EventLog(records ...[]byte) []byte {
	return append(Compact(uint64(len(records))), bytes.Join(records, nil)...)
}

// ApplyExtrinsic encodes an event record raised while applying extrinsic index.
func ApplyExtrinsic(index uint32, module, variant byte, args ...[]byte) []byte {
	out := make([]byte, 5, 7)
	binary.LittleEndian.PutUint32(out[1:], index)
	out = append(out, module, variant)
	return append(out, bytes.Join(args, nil)...)
}

// Finalization encodes an event record raised during block finalization.
func Finalization(module, variant byte, args ...[]byte) []byte {
	return append([]byte{1, module, variant}, bytes.Join(args, nil)...)
}

// Success marks extrinsic index as applied successfully.
func Success(index uint32) []byte {
	return ApplyExtrinsic(index, 0, 0)
}

// Failed marks extrinsic index as failed.
func Failed(index uint32) []byte {
	return ApplyExtrinsic(index, 0, 1)
}

// U128 encodes v as a fixed little-endian u128.
func U128(v uint64) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out, v)
	return out
}

// U64 encodes v as a fixed little-endian u64.
func U64(v uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, v)
	return out
}
