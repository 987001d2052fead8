package query

import (
	"context"
	"fmt"
	"log/slog"

	"shardgate/core/codec"
	gwerrors "shardgate/core/errors"
	"shardgate/core/types"
)

// ProbeObserver is told about every block the relay search inspects.
type ProbeObserver func(shard uint16, number uint64)

// Pipelines runs the multi-step read paths against a Client. Steps run strictly in order
// and the first failure aborts the rest.
type Pipelines struct {
	client  Client
	logger  *slog.Logger
	onProbe ProbeObserver
}

// Option customises Pipelines.
type Option func(*Pipelines)

// WithLogger sets the logger used for debug traces.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipelines) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProbeObserver registers a callback invoked before each search probe.
func WithProbeObserver(fn ProbeObserver) Option {
	return func(p *Pipelines) { p.onProbe = fn }
}

// New wraps client.
func New(client Client, opts ...Option) *Pipelines {
	p := &Pipelines{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Client exposes the underlying node client.
func (p *Pipelines) Client() Client {
	return p.client
}

// BestHeader returns the head of the shard's best chain.
func (p *Pipelines) BestHeader(ctx context.Context, shard uint16) (*types.ResultHeader, error) {
	return p.header(ctx, shard, nil)
}

// FinalizedHeader resolves the finalized hash, then its header. Nodes that report no
// finalized hash fall back to the best header.
func (p *Pipelines) FinalizedHeader(ctx context.Context, shard uint16) (*types.ResultHeader, error) {
	hash, err := p.client.FinalizedHash(ctx, shard)
	if err != nil {
		return nil, err
	}
	return p.header(ctx, shard, hash)
}

// HeaderByNumber resolves number to a hash and fetches that header. The block hash is
// attached because the node's header carries none.
func (p *Pipelines) HeaderByNumber(ctx context.Context, shard uint16, number uint64) (*types.ResultHeader, error) {
	hash, err := p.client.BlockHash(ctx, shard, number)
	if err != nil || hash == nil {
		return nil, err
	}
	return p.HeaderByHash(ctx, shard, hash)
}

// HeaderByHash fetches a header and attaches hash to it.
func (p *Pipelines) HeaderByHash(ctx context.Context, shard uint16, hash []byte) (*types.ResultHeader, error) {
	header, err := p.header(ctx, shard, hash)
	if err != nil || header == nil {
		return nil, err
	}
	header.BlockHash = hash
	return header, nil
}

func (p *Pipelines) header(ctx context.Context, shard uint16, hash []byte) (*types.ResultHeader, error) {
	header, err := p.client.Header(ctx, shard, hash)
	if err != nil {
		return nil, err
	}
	return types.NewResultHeader(header), nil
}

// BlockByNumber resolves number to a hash and runs BlockByHash.
func (p *Pipelines) BlockByNumber(ctx context.Context, shard uint16, number uint64, withRaw bool) (*types.ResultBlock, error) {
	hash, err := p.client.BlockHash(ctx, shard, number)
	if err != nil || hash == nil {
		return nil, err
	}
	return p.BlockByHash(ctx, shard, hash, withRaw)
}

// BlockByHash fetches and decodes a block, then correlates its extrinsics with the event
// log stored at the same hash. Raw extrinsic bytes are dropped unless withRaw is set.
func (p *Pipelines) BlockByHash(ctx context.Context, shard uint16, hash []byte, withRaw bool) (*types.ResultBlock, error) {
	signed, err := p.client.Block(ctx, shard, hash)
	if err != nil || signed == nil {
		return nil, err
	}
	block, err := decodeBlock(&signed.Block)
	if err != nil {
		return nil, err
	}
	block.Header.BlockHash = hash

	events, err := p.client.Storage(ctx, shard, codec.ValueStorageKey(codec.SystemEvents), hash)
	if err != nil {
		return nil, err
	}
	results, err := codec.DecodeEventLog(events)
	if err != nil {
		return nil, err
	}
	for i, tx := range block.Extrinsics {
		if !withRaw {
			tx.Raw = nil
		}
		if r, ok := results[uint32(i)]; ok {
			success := r.Success
			tx.Success = &success
		}
	}
	return block, nil
}

func decodeBlock(b *types.Block) (*types.ResultBlock, error) {
	header := types.NewResultHeader(&b.Header)
	out := &types.ResultBlock{
		Header:     *header,
		Extrinsics: make([]*types.ResultTransaction, 0, len(b.Extrinsics)),
	}
	for i, raw := range b.Extrinsics {
		tx, err := codec.DecodeTransaction(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: block extrinsic %d: %v", gwerrors.ErrParse, i, err)
		}
		out.Extrinsics = append(out.Extrinsics, codec.NewResultTransaction(raw, tx))
	}
	return out, nil
}

// StorageAt reads a storage cell, at the given block when number is set and the block
// exists, otherwise at the best block.
func (p *Pipelines) StorageAt(ctx context.Context, shard uint16, key []byte, number *uint64) ([]byte, error) {
	var blockHash []byte
	if number != nil {
		hash, err := p.client.BlockHash(ctx, shard, *number)
		if err != nil {
			return nil, err
		}
		blockHash = hash
	}
	return p.client.Storage(ctx, shard, key, blockHash)
}
