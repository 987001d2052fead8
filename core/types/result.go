package types

import "github.com/ethereum/go-ethereum/common/hexutil"

// ResultHeader is the gateway's view of a header, with the hash it was resolved by attached.
type ResultHeader struct {
	BlockHash      hexutil.Bytes   `json:"block_hash,omitempty"`
	Number         uint64          `json:"number"`
	ParentHash     hexutil.Bytes   `json:"parent_hash"`
	StateRoot      hexutil.Bytes   `json:"state_root"`
	ExtrinsicsRoot hexutil.Bytes   `json:"extrinsics_root"`
	DigestLogs     []hexutil.Bytes `json:"digest_logs"`
}

// NewResultHeader converts a node header. The block hash is left for the caller to attach.
func NewResultHeader(h *Header) *ResultHeader {
	if h == nil {
		return nil
	}
	logs := h.Digest.Logs
	if logs == nil {
		logs = []hexutil.Bytes{}
	}
	return &ResultHeader{
		Number:         uint64(h.Number),
		ParentHash:     h.ParentHash,
		StateRoot:      h.StateRoot,
		ExtrinsicsRoot: h.ExtrinsicsRoot,
		DigestLogs:     logs,
	}
}

// ResultBlock owns its decoded extrinsics in block order.
type ResultBlock struct {
	Header     ResultHeader         `json:"header"`
	Extrinsics []*ResultTransaction `json:"extrinsics"`
}

// ResultTransaction is a decoded extrinsic. Success is only set once the block's event log
// has been correlated, BlockNumber only by searches that span several blocks.
type ResultTransaction struct {
	Hash        hexutil.Bytes    `json:"hash"`
	Raw         hexutil.Bytes    `json:"raw,omitempty"`
	Signature   *ResultSignature `json:"signature"`
	Call        ResultCall       `json:"call"`
	Success     *bool            `json:"success,omitempty"`
	BlockNumber *uint64          `json:"block_number,omitempty"`
}

// ResultSignature describes the signer of an extrinsic. A nil Era means immortal.
type ResultSignature struct {
	Sender    hexutil.Bytes `json:"sender"`
	Signature hexutil.Bytes `json:"signature"`
	Nonce     uint64        `json:"nonce"`
	Era       *Era          `json:"era"`
}

// Era is a mortal transaction validity window.
type Era struct {
	Period uint64 `json:"period"`
	Phase  uint64 `json:"phase"`
}

// ResultCall is a dispatchable call. Params holds JSON-friendly values keyed by argument name.
type ResultCall struct {
	Module uint8          `json:"module"`
	Method uint8          `json:"method"`
	Name   string         `json:"name,omitempty"`
	Params map[string]any `json:"params"`
}
