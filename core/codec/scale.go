package codec

import (
	"bytes"
	"fmt"
	"io"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/holiman/uint256"
)

// reader decodes SCALE primitives from an in-memory buffer. Every length read from the
// input is checked against the bytes left so malformed payloads fail instead of allocating.
type reader struct {
	data []byte
	buf  *bytes.Reader
	dec  *scale.Decoder
}

func newReader(b []byte) *reader {
	buf := bytes.NewReader(b)
	return &reader{data: b, buf: buf, dec: scale.NewDecoder(buf)}
}

func (r *reader) remaining() int {
	return r.buf.Len()
}

func (r *reader) pos() int {
	return len(r.data) - r.buf.Len()
}

// span copies the input consumed since from.
func (r *reader) span(from int) []byte {
	out := make([]byte, r.pos()-from)
	copy(out, r.data[from:r.pos()])
	return out
}

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	return r.dec.ReadOneByte()
}

func (r *reader) fixed(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, fmt.Errorf("need %d bytes, %d left: %w", n, r.remaining(), io.ErrUnexpectedEOF)
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	if err := r.dec.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *reader) rest() []byte {
	out, _ := r.fixed(r.remaining())
	return out
}

func (r *reader) u16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, io.ErrUnexpectedEOF
	}
	var v uint16
	err := r.dec.Decode(&v)
	return v, err
}

func (r *reader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	var v uint32
	err := r.dec.Decode(&v)
	return v, err
}

func (r *reader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	var v uint64
	err := r.dec.Decode(&v)
	return v, err
}

func (r *reader) compact() (*big.Int, error) {
	if r.remaining() < 1 {
		return nil, io.ErrUnexpectedEOF
	}
	return r.dec.DecodeUintCompact()
}

func (r *reader) compactU64() (uint64, error) {
	v, err := r.compact()
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("compact value %s overflows u64", v)
	}
	return v.Uint64(), nil
}

func (r *reader) compactU128() (*uint256.Int, error) {
	v, err := r.compact()
	if err != nil {
		return nil, err
	}
	if v.BitLen() > 128 {
		return nil, fmt.Errorf("compact value overflows u128")
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("compact value overflows u128")
	}
	return out, nil
}

// length reads a compact collection length that must fit in the remaining input,
// given each element takes at least minElem bytes.
func (r *reader) length(minElem int) (int, error) {
	n, err := r.compactU64()
	if err != nil {
		return 0, err
	}
	if minElem < 1 {
		minElem = 1
	}
	if n > uint64(r.remaining()/minElem) {
		return 0, fmt.Errorf("length %d exceeds remaining %d bytes: %w", n, r.remaining(), io.ErrUnexpectedEOF)
	}
	return int(n), nil
}

func (r *reader) vec() ([]byte, error) {
	n, err := r.length(1)
	if err != nil {
		return nil, err
	}
	return r.fixed(n)
}
