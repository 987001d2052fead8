// Package query composes upstream node calls into the gateway's read pipelines.
package query

import (
	"context"

	"shardgate/core/types"
)

// Client is the per-shard view of the upstream nodes. Every method resolves the shard to an
// endpoint itself. A nil result with a nil error means the node has no such item.
type Client interface {
	Header(ctx context.Context, shard uint16, hash []byte) (*types.Header, error)
	BlockHash(ctx context.Context, shard uint16, number uint64) ([]byte, error)
	FinalizedHash(ctx context.Context, shard uint16) ([]byte, error)
	Block(ctx context.Context, shard uint16, hash []byte) (*types.SignedBlock, error)
	Storage(ctx context.Context, shard uint16, key []byte, blockHash []byte) ([]byte, error)
	SubmitExtrinsic(ctx context.Context, shard uint16, raw []byte) ([]byte, error)
}
