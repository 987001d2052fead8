package query

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"shardgate/core/codec"
	gwerrors "shardgate/core/errors"
	"shardgate/core/types"
	"shardgate/crypto"
)

// FindRelayByOriginHash scans blocks from, from+1, ... of shard for a relay transfer whose
// embedded origin extrinsic hashes to originHash. The scan stops at the first match, which
// is returned with its block number, or once the block at or beyond to has been checked.
// A reversed range therefore inspects only from. The loop has no deadline of its own and
// stops early only when ctx is done.
func (p *Pipelines) FindRelayByOriginHash(ctx context.Context, shard uint16, from, to uint64, originHash []byte) (*types.ResultTransaction, error) {
	current := from
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: relay search at block %d: %v", gwerrors.ErrTransport, current, err)
		}
		if p.onProbe != nil {
			p.onProbe(shard, current)
		}
		tx, err := p.probeRelay(ctx, shard, current, originHash)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			p.logger.Debug("relay transaction found", "shard", shard, "block", current)
			return tx, nil
		}
		if current >= to {
			return nil, nil
		}
		current++
	}
}

func (p *Pipelines) probeRelay(ctx context.Context, shard uint16, number uint64, originHash []byte) (*types.ResultTransaction, error) {
	block, err := p.BlockByNumber(ctx, shard, number, false)
	if err != nil || block == nil {
		return nil, err
	}
	for _, tx := range block.Extrinsics {
		if isRelayOf(tx.Call, originHash) {
			n := number
			tx.BlockNumber = &n
			return tx, nil
		}
	}
	return nil, nil
}

func isRelayOf(call types.ResultCall, originHash []byte) bool {
	if call.Module != codec.ModuleRelay || call.Method != codec.MethodRelayTransfer {
		return false
	}
	origin, ok := call.Params["tx"].(hexutil.Bytes)
	return ok && bytes.Equal(crypto.Blake2b256(origin), originHash)
}
