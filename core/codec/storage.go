package codec

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"shardgate/crypto"
)

// Storage item names addressed by the gateway.
const (
	SystemEvents        = "System Events"
	SystemAccountNonce  = "System AccountNonce"
	BalancesFreeBalance = "Balances FreeBalance"
)

// ValueStorageKey addresses a singleton storage item: twox128 of its name.
func ValueStorageKey(name string) []byte {
	return twox128([]byte(name))
}

// MapStorageKey addresses one entry of a map storage item: blake2b-256 of the item name
// followed by the encoded map key. Fixed-size keys encode as their raw bytes.
func MapStorageKey(key []byte, name string) []byte {
	buf := make([]byte, 0, len(name)+len(key))
	buf = append(buf, name...)
	buf = append(buf, key...)
	return crypto.Blake2b256(buf)
}

// twox128 concatenates two little-endian xxhash64 lanes seeded 0 and 1.
func twox128(data []byte) []byte {
	out := make([]byte, 16)
	for lane := 0; lane < 2; lane++ {
		d := xxhash.NewWithSeed(uint64(lane))
		_, _ = d.Write(data)
		binary.LittleEndian.PutUint64(out[lane*8:], d.Sum64())
	}
	return out
}
