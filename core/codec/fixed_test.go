package codec

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"

	gwerrors "shardgate/core/errors"
)

func TestDecodeNonceRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 64; i++ {
		want := rng.Uint64()
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, want)
		got, err := DecodeNonce(buf)
		if err != nil {
			t.Fatalf("decode nonce: %v", err)
		}
		if got != want {
			t.Fatalf("nonce = %d, want %d", got, want)
		}
	}
}

func TestDecodeBalanceRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 64; i++ {
		lo, hi := rng.Uint64(), rng.Uint64()
		buf := make([]byte, 16)
		binary.LittleEndian.PutUint64(buf, lo)
		binary.LittleEndian.PutUint64(buf[8:], hi)

		want := new(uint256.Int).Lsh(uint256.NewInt(hi), 64)
		want.Or(want, uint256.NewInt(lo))

		got, err := DecodeBalance(buf)
		if err != nil {
			t.Fatalf("decode balance: %v", err)
		}
		if !got.Int().Eq(want) {
			t.Fatalf("balance = %s, want %s", got, want.Dec())
		}
	}
}

func TestFixedWidthLengthErrors(t *testing.T) {
	for _, n := range []int{0, 1, 7, 9, 15, 16, 32} {
		if n != 8 {
			if _, err := DecodeNonce(make([]byte, n)); !errors.Is(err, gwerrors.ErrParse) {
				t.Fatalf("nonce of %d bytes: expected parse error, got %v", n, err)
			}
		}
		if n != 16 {
			if _, err := DecodeBalance(make([]byte, n)); !errors.Is(err, gwerrors.ErrParse) {
				t.Fatalf("balance of %d bytes: expected parse error, got %v", n, err)
			}
		}
	}
}
