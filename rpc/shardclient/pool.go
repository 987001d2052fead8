package shardclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	gwerrors "shardgate/core/errors"
	"shardgate/core/types"
	"shardgate/observability/metrics"
	gwotel "shardgate/observability/otel"
)

// Node methods called by the pool.
const (
	MethodGetHeader       = "chain_getHeader"
	MethodGetBlockHash    = "chain_getBlockHash"
	MethodGetFinalized    = "chain_getFinalizedHead"
	MethodGetBlock        = "chain_getBlock"
	MethodGetStorage      = "state_getStorage"
	MethodSubmitExtrinsic = "author_submitExtrinsic"
)

type endpoints struct {
	callers []Caller
	next    atomic.Uint64
}

func (e *endpoints) pick() Caller {
	n := e.next.Add(1) - 1
	return e.callers[n%uint64(len(e.callers))]
}

// Pool routes calls to the endpoints configured for each shard, rotating between them.
// Failures of any kind are reported as transport errors.
type Pool struct {
	shards  map[uint16]*endpoints
	metrics *metrics.UpstreamMetrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// PoolOption customises a Pool.
type PoolOption func(*Pool)

// WithMetrics records call counts and latencies.
func WithMetrics(m *metrics.UpstreamMetrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool builds a pool from ready callers keyed by shard.
func NewPool(shards map[uint16][]Caller, opts ...PoolOption) (*Pool, error) {
	p := &Pool{
		shards: make(map[uint16]*endpoints, len(shards)),
		tracer: gwotel.Tracer(),
		logger: slog.Default(),
	}
	for shard, callers := range shards {
		if len(callers) == 0 {
			return nil, fmt.Errorf("shard %d: no endpoints", shard)
		}
		p.shards[shard] = &endpoints{callers: callers}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// DialPool dials every endpoint URL. Callers already created are closed on failure.
func DialPool(urls map[uint16][]string, timeout time.Duration, opts ...PoolOption) (*Pool, error) {
	shards := make(map[uint16][]Caller, len(urls))
	closeAll := func() {
		for _, callers := range shards {
			for _, c := range callers {
				_ = c.Close()
			}
		}
	}
	for shard, list := range urls {
		for _, endpoint := range list {
			caller, err := Dial(endpoint, timeout)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("shard %d: %w", shard, err)
			}
			shards[shard] = append(shards[shard], caller)
		}
	}
	pool, err := NewPool(shards, opts...)
	if err != nil {
		closeAll()
		return nil, err
	}
	return pool, nil
}

// Shards lists the configured shard numbers in order.
func (p *Pool) Shards() []uint16 {
	out := make([]uint16, 0, len(p.shards))
	for shard := range p.shards {
		out = append(out, shard)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close closes every caller and returns the first error.
func (p *Pool) Close() error {
	var first error
	for _, e := range p.shards {
		for _, c := range e.callers {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (p *Pool) call(ctx context.Context, shard uint16, method string, params []any, result any) error {
	e, ok := p.shards[shard]
	if !ok {
		return fmt.Errorf("%w: no endpoint for shard %d", gwerrors.ErrTransport, shard)
	}
	ctx, span := p.tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("shard", int(shard))))
	defer span.End()

	start := time.Now()
	err := e.pick().Call(ctx, method, params, result)
	p.metrics.ObserveCall(shard, method, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Debug("upstream call failed", "shard", shard, "method", method, "error", err)
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return fmt.Errorf("%w: shard %d %s: %v", gwerrors.ErrTransport, shard, method, rpcErr)
		}
		return fmt.Errorf("%w: shard %d %s: %v", gwerrors.ErrTransport, shard, method, err)
	}
	return nil
}

func (p *Pool) Header(ctx context.Context, shard uint16, hash []byte) (*types.Header, error) {
	params := []any{}
	if hash != nil {
		params = append(params, hexutil.Bytes(hash))
	}
	var header *types.Header
	if err := p.call(ctx, shard, MethodGetHeader, params, &header); err != nil {
		return nil, err
	}
	return header, nil
}

func (p *Pool) BlockHash(ctx context.Context, shard uint16, number uint64) ([]byte, error) {
	var hash *hexutil.Bytes
	if err := p.call(ctx, shard, MethodGetBlockHash, []any{number}, &hash); err != nil {
		return nil, err
	}
	return optionalBytes(hash), nil
}

func (p *Pool) FinalizedHash(ctx context.Context, shard uint16) ([]byte, error) {
	var hash *hexutil.Bytes
	if err := p.call(ctx, shard, MethodGetFinalized, nil, &hash); err != nil {
		return nil, err
	}
	return optionalBytes(hash), nil
}

func (p *Pool) Block(ctx context.Context, shard uint16, hash []byte) (*types.SignedBlock, error) {
	params := []any{}
	if hash != nil {
		params = append(params, hexutil.Bytes(hash))
	}
	var block *types.SignedBlock
	if err := p.call(ctx, shard, MethodGetBlock, params, &block); err != nil {
		return nil, err
	}
	return block, nil
}

func (p *Pool) Storage(ctx context.Context, shard uint16, key []byte, blockHash []byte) ([]byte, error) {
	params := []any{hexutil.Bytes(key)}
	if blockHash != nil {
		params = append(params, hexutil.Bytes(blockHash))
	}
	var value *hexutil.Bytes
	if err := p.call(ctx, shard, MethodGetStorage, params, &value); err != nil {
		return nil, err
	}
	return optionalBytes(value), nil
}

func (p *Pool) SubmitExtrinsic(ctx context.Context, shard uint16, raw []byte) ([]byte, error) {
	var hash hexutil.Bytes
	if err := p.call(ctx, shard, MethodSubmitExtrinsic, []any{hexutil.Bytes(raw)}, &hash); err != nil {
		return nil, err
	}
	return hash, nil
}

func optionalBytes(b *hexutil.Bytes) []byte {
	if b == nil {
		return nil
	}
	return []byte(*b)
}
