package types

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Header is a block header as returned by a shard node's chain_getHeader.
// The header does not carry its own hash.
type Header struct {
	ParentHash     hexutil.Bytes `json:"parentHash"`
	Number         Number        `json:"number"`
	StateRoot      hexutil.Bytes `json:"stateRoot"`
	ExtrinsicsRoot hexutil.Bytes `json:"extrinsicsRoot"`
	Digest         Digest        `json:"digest"`
}

// Digest holds the SCALE encoded digest items of a header.
type Digest struct {
	Logs []hexutil.Bytes `json:"logs"`
}

// Block is a header plus its SCALE encoded extrinsics, each carrying its compact length prefix.
type Block struct {
	Header     Header          `json:"header"`
	Extrinsics []hexutil.Bytes `json:"extrinsics"`
}

// SignedBlock is the chain_getBlock response envelope.
type SignedBlock struct {
	Block         Block           `json:"block"`
	Justification json.RawMessage `json:"justification,omitempty"`
}
