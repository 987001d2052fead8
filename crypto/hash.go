package crypto

import "golang.org/x/crypto/blake2b"

// Blake2b256 returns the 32-byte blake2b digest of data, the chain's general purpose hash.
func Blake2b256(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}
