package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	gwerrors "shardgate/core/errors"
	"shardgate/core/types"
	"shardgate/crypto"
)

const (
	extrinsicVersion = 0x01
	signedFlag       = 0x80
	signatureLength  = 64
)

// Signature is the signer block of a signed extrinsic. A nil Era means immortal.
type Signature struct {
	Sender    Address
	Signature []byte
	Nonce     uint64
	Era       *types.Era
}

// Transaction is a decoded unchecked extrinsic.
type Transaction struct {
	Signature *Signature
	Call      Call
}

// DecodeTransaction decodes a length-prefixed unchecked extrinsic.
func DecodeTransaction(raw []byte) (*Transaction, error) {
	tx, err := decodeTransaction(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gwerrors.ErrInvalidExtrinsic, err)
	}
	return tx, nil
}

func decodeTransaction(raw []byte) (*Transaction, error) {
	r := newReader(raw)
	size, err := r.compactU64()
	if err != nil {
		return nil, fmt.Errorf("length prefix: %w", err)
	}
	if size != uint64(r.remaining()) {
		return nil, fmt.Errorf("length prefix %d does not match %d payload bytes", size, r.remaining())
	}
	version, err := r.readByte()
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if version&^signedFlag != extrinsicVersion {
		return nil, fmt.Errorf("unsupported extrinsic version 0x%02x", version)
	}

	tx := &Transaction{}
	if version&signedFlag != 0 {
		sig, err := decodeSignature(r)
		if err != nil {
			return nil, err
		}
		tx.Signature = sig
	}
	call, err := decodeCall(r)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after call", r.remaining())
	}
	tx.Call = call
	return tx, nil
}

func decodeSignature(r *reader) (*Signature, error) {
	sender, err := decodeAddress(r)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	sig, err := r.fixed(signatureLength)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	nonce, err := r.compactU64()
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	era, err := decodeEra(r)
	if err != nil {
		return nil, fmt.Errorf("era: %w", err)
	}
	return &Signature{Sender: sender, Signature: sig, Nonce: nonce, Era: era}, nil
}

func decodeEra(r *reader) (*types.Era, error) {
	first, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if first == 0 {
		return nil, nil
	}
	second, err := r.readByte()
	if err != nil {
		return nil, err
	}
	encoded := uint64(first) | uint64(second)<<8
	period := uint64(2) << (encoded % 16)
	quantize := period >> 12
	if quantize < 1 {
		quantize = 1
	}
	phase := (encoded >> 4) * quantize
	if period < 4 || phase >= period {
		return nil, fmt.Errorf("invalid mortal era 0x%04x", encoded)
	}
	return &types.Era{Period: period, Phase: phase}, nil
}

// TransactionHash is the blake2b-256 of the full encoded extrinsic, length prefix included.
func TransactionHash(raw []byte) []byte {
	return crypto.Blake2b256(raw)
}

// NewResultTransaction renders a decoded extrinsic. raw is kept on the result; pipelines
// strip it when the caller did not ask for it.
func NewResultTransaction(raw []byte, tx *Transaction) *types.ResultTransaction {
	out := &types.ResultTransaction{
		Hash: TransactionHash(raw),
		Raw:  hexutil.Bytes(raw),
		Call: tx.Call.Result(),
	}
	if sig := tx.Signature; sig != nil {
		out.Signature = &types.ResultSignature{
			Sender:    sig.Sender.Encoded(),
			Signature: sig.Signature,
			Nonce:     sig.Nonce,
			Era:       sig.Era,
		}
	}
	return out
}
