// Package chain implements the gateway operations on top of the query pipelines.
package chain

import (
	"context"
	"fmt"
	"log/slog"

	"shardgate/core/codec"
	"shardgate/core/enrich"
	gwerrors "shardgate/core/errors"
	"shardgate/core/query"
	"shardgate/core/sharding"
	"shardgate/core/types"
	"shardgate/crypto"
)

// API answers gateway requests. Operations addressed to a shard validate it before any
// upstream call; account operations derive the shard from the address.
type API struct {
	network   types.Network
	pipelines *query.Pipelines
	enricher  *enrich.Enricher
	logger    *slog.Logger
}

// NewAPI wires the operations to pipelines using the network snapshot.
func NewAPI(network types.Network, pipelines *query.Pipelines, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		network:   network,
		pipelines: pipelines,
		enricher:  enrich.New(network, logger),
		logger:    logger,
	}
}

func (a *API) checkShard(shard uint16) error {
	return sharding.ValidateShard(shard, a.network.ShardCount)
}

// BestNumber returns the number of the shard's best block.
func (a *API) BestNumber(ctx context.Context, shard uint16) (*uint64, error) {
	if err := a.checkShard(shard); err != nil {
		return nil, err
	}
	return headerNumber(a.pipelines.BestHeader(ctx, shard))
}

// FinalizedNumber returns the number of the shard's finalized block.
func (a *API) FinalizedNumber(ctx context.Context, shard uint16) (*uint64, error) {
	if err := a.checkShard(shard); err != nil {
		return nil, err
	}
	return headerNumber(a.pipelines.FinalizedHeader(ctx, shard))
}

func headerNumber(header *types.ResultHeader, err error) (*uint64, error) {
	if err != nil || header == nil {
		return nil, err
	}
	n := header.Number
	return &n, nil
}

// HeaderByNumber returns the header at number with its hash attached.
func (a *API) HeaderByNumber(ctx context.Context, shard uint16, number uint64) (*types.ResultHeader, error) {
	if err := a.checkShard(shard); err != nil {
		return nil, err
	}
	return a.pipelines.HeaderByNumber(ctx, shard, number)
}

// HeaderByHash returns the header with the given hash.
func (a *API) HeaderByHash(ctx context.Context, shard uint16, hash []byte) (*types.ResultHeader, error) {
	if err := a.checkShard(shard); err != nil {
		return nil, err
	}
	return a.pipelines.HeaderByHash(ctx, shard, hash)
}

// BlockByNumber returns the decoded block at number.
func (a *API) BlockByNumber(ctx context.Context, shard uint16, number uint64) (any, error) {
	if err := a.checkShard(shard); err != nil {
		return nil, err
	}
	block, err := a.pipelines.BlockByNumber(ctx, shard, number, false)
	if err != nil || block == nil {
		return nil, err
	}
	return a.withAddresses(block)
}

// BlockByHash returns the decoded block with the given hash.
func (a *API) BlockByHash(ctx context.Context, shard uint16, hash []byte) (any, error) {
	if err := a.checkShard(shard); err != nil {
		return nil, err
	}
	block, err := a.pipelines.BlockByHash(ctx, shard, hash, false)
	if err != nil || block == nil {
		return nil, err
	}
	return a.withAddresses(block)
}

// ExtrinsicByHash finds an extrinsic of block number by its hash.
func (a *API) ExtrinsicByHash(ctx context.Context, shard uint16, number uint64, hash []byte) (any, error) {
	if err := a.checkShard(shard); err != nil {
		return nil, err
	}
	tx, err := a.pipelines.ExtrinsicByHash(ctx, shard, number, hash)
	if err != nil || tx == nil {
		return nil, err
	}
	return a.withAddresses(tx)
}

// ExtrinsicByRaw finds an extrinsic of block number by its encoding.
func (a *API) ExtrinsicByRaw(ctx context.Context, shard uint16, number uint64, raw []byte) (any, error) {
	if err := a.checkShard(shard); err != nil {
		return nil, err
	}
	tx, err := a.pipelines.ExtrinsicByRaw(ctx, shard, number, raw)
	if err != nil || tx == nil {
		return nil, err
	}
	return a.withAddresses(tx)
}

// ExtrinsicByOriginHash searches blocks from..to for the relay of an origin extrinsic and
// returns it with the origin decoded under tx_decoded.
func (a *API) ExtrinsicByOriginHash(ctx context.Context, shard uint16, from, to uint64, originHash []byte) (any, error) {
	if err := a.checkShard(shard); err != nil {
		return nil, err
	}
	tx, err := a.pipelines.FindRelayByOriginHash(ctx, shard, from, to, originHash)
	if err != nil || tx == nil {
		return nil, err
	}
	value, err := query.Project(tx)
	if err != nil {
		return nil, err
	}
	if err := a.enricher.DecodedTx(value); err != nil {
		return nil, err
	}
	return value, nil
}

func (a *API) withAddresses(v any) (any, error) {
	value, err := query.Project(v)
	if err != nil {
		return nil, err
	}
	a.enricher.Addresses(value)
	return value, nil
}

// Nonce reads the account nonce of address, at block number when given. An account without
// a stored nonce has nonce zero.
func (a *API) Nonce(ctx context.Context, address string, number *uint64) (uint64, error) {
	key, shard, err := a.account(address)
	if err != nil {
		return 0, err
	}
	raw, err := a.pipelines.StorageAt(ctx, shard, codec.MapStorageKey(key, codec.SystemAccountNonce), number)
	if err != nil || raw == nil {
		return 0, err
	}
	return codec.DecodeNonce(raw)
}

// Balance reads the free balance of address, at block number when given. The result is the
// projected balance, a decimal string.
func (a *API) Balance(ctx context.Context, address string, number *uint64) (any, error) {
	key, shard, err := a.account(address)
	if err != nil {
		return nil, err
	}
	raw, err := a.pipelines.StorageAt(ctx, shard, codec.MapStorageKey(key, codec.BalancesFreeBalance), number)
	if err != nil {
		return nil, err
	}
	balance := types.BalanceFromUint64(0)
	if raw != nil {
		if balance, err = codec.DecodeBalance(raw); err != nil {
			return nil, err
		}
	}
	return query.Project(balance)
}

// account decodes address and picks its shard. The address prefix is not checked against
// the network's.
func (a *API) account(address string) ([]byte, uint16, error) {
	addr, err := crypto.DecodeAddress(address)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", gwerrors.ErrInvalidAddress, err)
	}
	key := addr.Bytes()
	shard, ok := sharding.ShardFor(key, a.network.ShardCount)
	if !ok {
		return nil, 0, fmt.Errorf("%w: no shards configured", gwerrors.ErrInvalidShard)
	}
	return key, shard, nil
}

// SubmitExtrinsic forwards a signed extrinsic to the shard of its sender and returns the
// node's answer. Unsigned or undecodable extrinsics are rejected without contacting a node.
func (a *API) SubmitExtrinsic(ctx context.Context, raw []byte) ([]byte, error) {
	tx, err := codec.DecodeTransaction(raw)
	if err != nil {
		return nil, err
	}
	if tx.Signature == nil {
		return nil, fmt.Errorf("%w: extrinsic is not signed", gwerrors.ErrInvalidExtrinsic)
	}
	if !tx.Signature.Sender.IsAccountID() {
		return nil, fmt.Errorf("%w: sender must be an account id", gwerrors.ErrInvalidExtrinsic)
	}
	shard, ok := sharding.ShardFor(tx.Signature.Sender.AccountID, a.network.ShardCount)
	if !ok {
		return nil, fmt.Errorf("%w: no shards configured", gwerrors.ErrInvalidShard)
	}
	a.logger.Debug("submitting extrinsic", "shard", shard, "bytes", len(raw))
	return a.pipelines.Client().SubmitExtrinsic(ctx, shard, raw)
}
