package query

import (
	"bytes"
	"context"

	"shardgate/core/types"
)

// ExtrinsicByHash returns the first extrinsic of block number whose hash matches.
func (p *Pipelines) ExtrinsicByHash(ctx context.Context, shard uint16, number uint64, hash []byte) (*types.ResultTransaction, error) {
	block, err := p.BlockByNumber(ctx, shard, number, false)
	if err != nil || block == nil {
		return nil, err
	}
	for _, tx := range block.Extrinsics {
		if bytes.Equal(tx.Hash, hash) {
			return tx, nil
		}
	}
	return nil, nil
}

// ExtrinsicByRaw returns the first extrinsic of block number whose encoding equals raw.
// The match is returned without its raw bytes.
func (p *Pipelines) ExtrinsicByRaw(ctx context.Context, shard uint16, number uint64, raw []byte) (*types.ResultTransaction, error) {
	block, err := p.BlockByNumber(ctx, shard, number, true)
	if err != nil || block == nil {
		return nil, err
	}
	for _, tx := range block.Extrinsics {
		if bytes.Equal(tx.Raw, raw) {
			tx.Raw = nil
			return tx, nil
		}
	}
	return nil, nil
}
