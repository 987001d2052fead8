package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	gwerrors "shardgate/core/errors"
	"shardgate/core/types"
)

const (
	nonceSize   = 8
	balanceSize = 16
)

// DecodeNonce reads an account nonce stored as a little-endian u64.
func DecodeNonce(b []byte) (uint64, error) {
	if len(b) != nonceSize {
		return 0, fmt.Errorf("%w: nonce must be %d bytes, got %d", gwerrors.ErrParse, nonceSize, len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// DecodeBalance reads an account balance stored as a little-endian u128.
func DecodeBalance(b []byte) (types.Balance, error) {
	if len(b) != balanceSize {
		return types.Balance{}, fmt.Errorf("%w: balance must be %d bytes, got %d", gwerrors.ErrParse, balanceSize, len(b))
	}
	return types.NewBalance(leUint(b)), nil
}

// leUint interprets b as a little-endian unsigned integer of at most 32 bytes.
func leUint(b []byte) *uint256.Int {
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	return new(uint256.Int).SetBytes(be)
}
