package shardclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	gwerrors "shardgate/core/errors"
	"shardgate/core/query"
	"shardgate/core/types"
	"shardgate/observability/metrics"
)

// Store is a durable tier consulted after the in-memory cache misses.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
}

// Cached answers hash-addressed reads from memory. Headers, blocks and storage cells
// requested at an explicit block hash never change, so they are kept in an LRU and,
// optionally, a Store; reads of the best state pass through. Concurrent misses for the
// same key share one upstream call; the shared call is detached from any single caller's
// cancellation and bounded by the fetch timeout instead. Cached values are shared between callers and must be
// treated as read-only.
type Cached struct {
	query.Client
	cache   *lru.Cache
	group   singleflight.Group
	metrics *metrics.UpstreamMetrics
	store   Store
	logger  *slog.Logger
	timeout time.Duration
}

const defaultFetchTimeout = 30 * time.Second

// CacheOption customises a Cached client.
type CacheOption func(*Cached)

// WithStore adds a durable tier below the LRU.
func WithStore(store Store) CacheOption {
	return func(c *Cached) {
		c.store = store
	}
}

// WithCacheLogger sets the logger used for store failures.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cached) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFetchTimeout bounds a shared upstream fetch.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cached) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCached wraps client with an LRU of size entries.
func NewCached(client query.Client, size int, m *metrics.UpstreamMetrics, opts ...CacheOption) (*Cached, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("response cache: %w", err)
	}
	c := &Cached{Client: client, cache: cache, metrics: m, logger: slog.Default(), timeout: defaultFetchTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func cacheKey(method string, shard uint16, parts ...[]byte) string {
	key := fmt.Sprintf("%s/%d", method, shard)
	for _, part := range parts {
		key += "/" + hex.EncodeToString(part)
	}
	return key
}

// load consults the cache, the store, then fetch. Absent items are not cached since the
// node may learn about the hash later. Store failures degrade to a miss. A caller whose ctx
// ends stops waiting without failing the others sharing the fetch.
func (c *Cached) load(ctx context.Context, method, key string, decode func([]byte) (any, error), fetch func(context.Context) (any, bool, error)) (any, error) {
	if v, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheLookup(method, true)
		return v, nil
	}
	c.metrics.RecordCacheLookup(method, false)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.fromStore(key, decode); ok {
			c.cache.Add(key, v)
			return v, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		v, found, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if found {
			c.cache.Add(key, v)
			c.toStore(key, v)
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", gwerrors.ErrTransport, method, ctx.Err())
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (c *Cached) fromStore(key string, decode func([]byte) (any, error)) (any, bool) {
	if c.store == nil {
		return nil, false
	}
	data, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("cache store read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	v, err := decode(data)
	if err != nil {
		c.logger.Warn("cache store entry undecodable", "key", key, "error", err)
		return nil, false
	}
	return v, true
}

func (c *Cached) toStore(key string, v any) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err == nil {
		err = c.store.Put(key, data)
	}
	if err != nil {
		c.logger.Warn("cache store write failed", "key", key, "error", err)
	}
}

func decodeHeader(data []byte) (any, error) {
	var h types.Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func decodeBlock(data []byte) (any, error) {
	var b types.SignedBlock
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func decodeStorage(data []byte) (any, error) {
	var b []byte
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Cached) Header(ctx context.Context, shard uint16, hash []byte) (*types.Header, error) {
	if hash == nil {
		return c.Client.Header(ctx, shard, nil)
	}
	v, err := c.load(ctx, MethodGetHeader, cacheKey(MethodGetHeader, shard, hash), decodeHeader, func(ctx context.Context) (any, bool, error) {
		h, err := c.Client.Header(ctx, shard, hash)
		return h, h != nil, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Header), nil
}

func (c *Cached) Block(ctx context.Context, shard uint16, hash []byte) (*types.SignedBlock, error) {
	if hash == nil {
		return c.Client.Block(ctx, shard, nil)
	}
	v, err := c.load(ctx, MethodGetBlock, cacheKey(MethodGetBlock, shard, hash), decodeBlock, func(ctx context.Context) (any, bool, error) {
		b, err := c.Client.Block(ctx, shard, hash)
		return b, b != nil, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.SignedBlock), nil
}

func (c *Cached) Storage(ctx context.Context, shard uint16, key []byte, blockHash []byte) ([]byte, error) {
	if blockHash == nil {
		return c.Client.Storage(ctx, shard, key, nil)
	}
	v, err := c.load(ctx, MethodGetStorage, cacheKey(MethodGetStorage, shard, key, blockHash), decodeStorage, func(ctx context.Context) (any, bool, error) {
		v, err := c.Client.Storage(ctx, shard, key, blockHash)
		return v, v != nil, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
