package query

import (
	"context"
	"errors"
	"testing"

	"shardgate/core/codec/codectest"
	gwerrors "shardgate/core/errors"
	"shardgate/core/query/querytest"
	"shardgate/crypto"
)

type probeLog struct {
	numbers []uint64
}

func (l *probeLog) observe(_ uint16, number uint64) {
	l.numbers = append(l.numbers, number)
}

func relayOf(origin []byte) []byte {
	return codectest.Unsigned(codectest.RelayTransfer(origin, 3, codectest.Key(0xaa), codectest.Key(0xbb)))
}

// chainWithRelayAt builds blocks 0..13 of shard, with the relay of origin in block at.
func chainWithRelayAt(at uint64, origin []byte) *querytest.Node {
	node := querytest.New()
	for n := uint64(0); n < 14; n++ {
		if n == at {
			node.AddBlock(shard, codectest.Unsigned(codectest.TimestampSet(n)), relayOf(origin))
			continue
		}
		node.AddBlock(shard, codectest.Unsigned(codectest.TimestampSet(n)))
	}
	return node
}

func TestSearchSingleBlockRange(t *testing.T) {
	origin := transfer(7)
	node := chainWithRelayAt(13, origin)
	log := &probeLog{}
	p := New(node, WithProbeObserver(log.observe))

	tx, err := p.FindRelayByOriginHash(context.Background(), shard, 10, 10, crypto.Blake2b256(origin))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if tx != nil {
		t.Fatalf("expected no match, got %+v", tx)
	}
	if len(log.numbers) != 1 || log.numbers[0] != 10 {
		t.Fatalf("expected exactly one probe at 10, got %v", log.numbers)
	}
}

func TestSearchFindsMatchAtEnd(t *testing.T) {
	origin := transfer(7)
	node := chainWithRelayAt(12, origin)
	log := &probeLog{}
	p := New(node, WithProbeObserver(log.observe))

	tx, err := p.FindRelayByOriginHash(context.Background(), shard, 10, 12, crypto.Blake2b256(origin))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if tx == nil {
		t.Fatalf("expected a match")
	}
	if tx.BlockNumber == nil || *tx.BlockNumber != 12 {
		t.Fatalf("unexpected block number %v", tx.BlockNumber)
	}
	want := []uint64{10, 11, 12}
	if len(log.numbers) != len(want) {
		t.Fatalf("probes = %v, want %v", log.numbers, want)
	}
	for i := range want {
		if log.numbers[i] != want[i] {
			t.Fatalf("probes = %v, want %v", log.numbers, want)
		}
	}
}

func TestSearchReversedRangeProbesOnce(t *testing.T) {
	origin := transfer(7)
	node := chainWithRelayAt(5, origin)
	log := &probeLog{}
	p := New(node, WithProbeObserver(log.observe))

	tx, err := p.FindRelayByOriginHash(context.Background(), shard, 8, 3, crypto.Blake2b256(origin))
	if err != nil || tx != nil {
		t.Fatalf("expected no match and no error, got %v, %v", tx, err)
	}
	if len(log.numbers) != 1 || log.numbers[0] != 8 {
		t.Fatalf("expected a single probe at 8, got %v", log.numbers)
	}
}

func TestSearchPastChainHead(t *testing.T) {
	node := chainWithRelayAt(99, transfer(7))
	log := &probeLog{}
	p := New(node, WithProbeObserver(log.observe))

	tx, err := p.FindRelayByOriginHash(context.Background(), shard, 12, 16, make([]byte, 32))
	if err != nil || tx != nil {
		t.Fatalf("expected no match and no error, got %v, %v", tx, err)
	}
	if len(log.numbers) != 5 {
		t.Fatalf("missing blocks still count as probes, got %v", log.numbers)
	}
}

func TestSearchStopsWhenCancelled(t *testing.T) {
	node := chainWithRelayAt(99, transfer(7))
	ctx, cancel := context.WithCancel(context.Background())
	probes := 0
	p := New(node, WithProbeObserver(func(uint16, uint64) {
		probes++
		if probes == 2 {
			cancel()
		}
	}))

	_, err := p.FindRelayByOriginHash(ctx, shard, 0, 1_000_000, make([]byte, 32))
	if !errors.Is(err, gwerrors.ErrTransport) {
		t.Fatalf("expected transport error after cancel, got %v", err)
	}
	if probes != 2 {
		t.Fatalf("expected the loop to stop after the cancelling probe, got %d probes", probes)
	}
}
