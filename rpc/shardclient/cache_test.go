package shardclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	gwerrors "shardgate/core/errors"
	"shardgate/core/query/querytest"
	"shardgate/core/types"
	"shardgate/observability/metrics"
)

func TestCachedServesHashAddressedReads(t *testing.T) {
	node := querytest.New()
	_, hash := node.AddBlock(0)
	node.SetStorage(0, 0, []byte("k"), []byte{9})
	m := metrics.Upstream()
	cached, err := NewCached(node, 16, m)
	require.NoError(t, err)
	ctx := context.Background()
	hitsBefore := testutil.ToFloat64(m.CacheLookups().WithLabelValues(MethodGetBlock, "hit"))

	for i := 0; i < 3; i++ {
		block, err := cached.Block(ctx, 0, hash)
		require.NoError(t, err)
		require.NotNil(t, block)
		header, err := cached.Header(ctx, 0, hash)
		require.NoError(t, err)
		require.NotNil(t, header)
		value, err := cached.Storage(ctx, 0, []byte("k"), hash)
		require.NoError(t, err)
		require.Equal(t, []byte{9}, value)
	}
	require.Equal(t, 1, node.Calls("chain_getBlock"))
	require.Equal(t, 1, node.Calls("chain_getHeader"))
	require.Equal(t, 1, node.Calls("state_getStorage"))
	require.Equal(t, hitsBefore+2, testutil.ToFloat64(m.CacheLookups().WithLabelValues(MethodGetBlock, "hit")))
}

func TestCachedPassesThroughBestState(t *testing.T) {
	node := querytest.New()
	node.AddBlock(0)
	cached, err := NewCached(node, 16, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := cached.Header(ctx, 0, nil)
		require.NoError(t, err)
		_, err = cached.Block(ctx, 0, nil)
		require.NoError(t, err)
		_, err = cached.Storage(ctx, 0, []byte("k"), nil)
		require.NoError(t, err)
		_, err = cached.BlockHash(ctx, 0, 0)
		require.NoError(t, err)
	}
	require.Equal(t, 2, node.Calls("chain_getHeader"))
	require.Equal(t, 2, node.Calls("chain_getBlock"))
	require.Equal(t, 2, node.Calls("state_getStorage"))
	require.Equal(t, 2, node.Calls("chain_getBlockHash"))
}

func TestCachedDoesNotKeepAbsentItems(t *testing.T) {
	node := querytest.New()
	cached, err := NewCached(node, 16, nil)
	require.NoError(t, err)
	missing := make([]byte, 32)

	for i := 0; i < 2; i++ {
		header, err := cached.Header(context.Background(), 0, missing)
		require.NoError(t, err)
		require.Nil(t, header)
	}
	require.Equal(t, 2, node.Calls("chain_getHeader"))
}

func TestNewCachedRejectsBadSize(t *testing.T) {
	if _, err := NewCached(querytest.New(), 0, nil); err == nil {
		t.Fatalf("expected error for zero cache size")
	}
}

func TestCachedStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	node := querytest.New()
	_, hash := node.AddBlock(0, []byte{0x04, 0x01, 0x00})
	node.SetStorage(0, 0, []byte("k"), []byte{7})
	ctx := context.Background()

	store, err := OpenLevelDBStore(dir)
	require.NoError(t, err)
	cached, err := NewCached(node, 4, nil, WithStore(store))
	require.NoError(t, err)
	first, err := cached.Block(ctx, 0, hash)
	require.NoError(t, err)
	_, err = cached.Header(ctx, 0, hash)
	require.NoError(t, err)
	_, err = cached.Storage(ctx, 0, []byte("k"), hash)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenLevelDBStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	fresh, err := NewCached(node, 4, nil, WithStore(reopened))
	require.NoError(t, err)
	block, err := fresh.Block(ctx, 0, hash)
	require.NoError(t, err)
	require.Equal(t, first.Block.Header.Number, block.Block.Header.Number)
	require.Equal(t, first.Block.Extrinsics, block.Block.Extrinsics)
	header, err := fresh.Header(ctx, 0, hash)
	require.NoError(t, err)
	require.Equal(t, first.Block.Header.ParentHash, header.ParentHash)
	value, err := fresh.Storage(ctx, 0, []byte("k"), hash)
	require.NoError(t, err)
	require.Equal(t, []byte{7}, value)

	require.Equal(t, 1, node.Calls("chain_getBlock"))
	require.Equal(t, 1, node.Calls("chain_getHeader"))
	require.Equal(t, 1, node.Calls("state_getStorage"))
}

func TestLevelDBStoreMissingKey(t *testing.T) {
	store, err := OpenLevelDBStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, ok, err := store.Get("absent")
	require.NoError(t, err)
	require.False(t, ok)
	if _, err := OpenLevelDBStore("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

// gatedNode holds block reads until release is closed or the read's ctx ends.
type gatedNode struct {
	*querytest.Node
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedNode() *gatedNode {
	return &gatedNode{Node: querytest.New(), started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedNode) Block(ctx context.Context, shard uint16, hash []byte) (*types.SignedBlock, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return g.Node.Block(ctx, shard, hash)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCachedCancelledCallerDoesNotFailOthers(t *testing.T) {
	node := newGatedNode()
	_, hash := node.AddBlock(0)
	cached, err := NewCached(node, 16, nil)
	require.NoError(t, err)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cached.Block(ctxA, 0, hash)
		errA <- err
	}()
	<-node.started

	type result struct {
		block *types.SignedBlock
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		block, err := cached.Block(context.Background(), 0, hash)
		resB <- result{block, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, gwerrors.ErrTransport) {
			t.Fatalf("cancelled caller: expected transport error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled caller still waiting")
	}

	close(node.release)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		require.NotNil(t, res.block)
	case <-time.After(2 * time.Second):
		t.Fatalf("second caller never completed")
	}
	require.Equal(t, 1, node.Calls("chain_getBlock"))
}

func TestCachedSharedFetchIsBounded(t *testing.T) {
	node := newGatedNode()
	_, hash := node.AddBlock(0)
	cached, err := NewCached(node, 16, nil, WithFetchTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = cached.Block(context.Background(), 0, hash)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected fetch deadline, got %v", err)
	}
}
