// Package querytest provides an in-memory shard node implementing query.Client.
package querytest

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"shardgate/core/codec"
	"shardgate/core/types"
	"shardgate/crypto"
)

type chain struct {
	blocks    []*types.SignedBlock
	hashes    [][]byte
	finalized int
	storage   map[string][]byte
	submitted [][]byte
}

// Node serves any number of shards. Blocks are numbered from zero in insertion order.
type Node struct {
	mu     sync.Mutex
	chains map[uint16]*chain
	calls  map[string]int
	err    error
}

// New returns an empty node.
func New() *Node {
	return &Node{chains: make(map[uint16]*chain), calls: make(map[string]int)}
}

func (n *Node) shard(shard uint16) *chain {
	c, ok := n.chains[shard]
	if !ok {
		c = &chain{finalized: -1, storage: make(map[string][]byte)}
		n.chains[shard] = c
	}
	return c
}

// AddBlock appends a block carrying extrinsics to shard and returns its number and hash.
func (n *Node) AddBlock(shard uint16, extrinsics ...[]byte) (uint64, []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := n.shard(shard)
	number := uint64(len(c.blocks))
	seed := make([]byte, 10)
	binary.BigEndian.PutUint16(seed, shard)
	binary.BigEndian.PutUint64(seed[2:], number)
	hash := crypto.Blake2b256(seed)

	parent := make([]byte, 32)
	if number > 0 {
		parent = c.hashes[number-1]
	}
	block := &types.SignedBlock{Block: types.Block{
		Header: types.Header{
			ParentHash:     parent,
			Number:         types.Number(number),
			StateRoot:      make([]byte, 32),
			ExtrinsicsRoot: make([]byte, 32),
		},
	}}
	for _, raw := range extrinsics {
		block.Block.Extrinsics = append(block.Block.Extrinsics, hexutil.Bytes(raw))
	}
	c.blocks = append(c.blocks, block)
	c.hashes = append(c.hashes, hash)
	return number, hash
}

// SetEvents stores the System Events value at block number.
func (n *Node) SetEvents(shard uint16, number uint64, log []byte) {
	n.SetStorage(shard, number, codec.ValueStorageKey(codec.SystemEvents), log)
}

// SetStorage stores a cell at block number.
func (n *Node) SetStorage(shard uint16, number uint64, key, value []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := n.shard(shard)
	c.storage[storageKey(c.hashes[number], key)] = value
}

// Finalize marks block number as the finalized head.
func (n *Node) Finalize(shard uint16, number uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shard(shard).finalized = int(number)
}

// FailWith makes every subsequent call return err.
func (n *Node) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Calls reports how many times the named node method was invoked.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// TotalCalls reports every invocation across methods.
func (n *Node) TotalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.calls {
		total += c
	}
	return total
}

// Submitted lists the extrinsics submitted to shard.
func (n *Node) Submitted(shard uint16) [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.shard(shard).submitted...)
}

func (n *Node) enter(method string, shard uint16) (*chain, error) {
	n.calls[method]++
	if n.err != nil {
		return nil, n.err
	}
	return n.shard(shard), nil
}

func (c *chain) indexOf(hash []byte) int {
	if hash == nil {
		return len(c.blocks) - 1
	}
	for i, h := range c.hashes {
		if string(h) == string(hash) {
			return i
		}
	}
	return -1
}

func storageKey(blockHash, key []byte) string {
	return hex.EncodeToString(blockHash) + "/" + hex.EncodeToString(key)
}

func (n *Node) Header(ctx context.Context, shard uint16, hash []byte) (*types.Header, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.enter("chain_getHeader", shard)
	if err != nil {
		return nil, err
	}
	i := c.indexOf(hash)
	if i < 0 {
		return nil, nil
	}
	header := c.blocks[i].Block.Header
	return &header, nil
}

func (n *Node) BlockHash(ctx context.Context, shard uint16, number uint64) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.enter("chain_getBlockHash", shard)
	if err != nil {
		return nil, err
	}
	if number >= uint64(len(c.hashes)) {
		return nil, nil
	}
	return c.hashes[number], nil
}

func (n *Node) FinalizedHash(ctx context.Context, shard uint16) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.enter("chain_getFinalizedHead", shard)
	if err != nil {
		return nil, err
	}
	if c.finalized < 0 {
		return nil, nil
	}
	return c.hashes[c.finalized], nil
}

func (n *Node) Block(ctx context.Context, shard uint16, hash []byte) (*types.SignedBlock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.enter("chain_getBlock", shard)
	if err != nil {
		return nil, err
	}
	i := c.indexOf(hash)
	if i < 0 {
		return nil, nil
	}
	block := *c.blocks[i]
	block.Block.Extrinsics = append([]hexutil.Bytes(nil), block.Block.Extrinsics...)
	return &block, nil
}

func (n *Node) Storage(ctx context.Context, shard uint16, key []byte, blockHash []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.enter("state_getStorage", shard)
	if err != nil {
		return nil, err
	}
	i := c.indexOf(blockHash)
	if i < 0 {
		return nil, nil
	}
	return c.storage[storageKey(c.hashes[i], key)], nil
}

func (n *Node) SubmitExtrinsic(ctx context.Context, shard uint16, raw []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.enter("author_submitExtrinsic", shard)
	if err != nil {
		return nil, err
	}
	c.submitted = append(c.submitted, raw)
	return codec.TransactionHash(raw), nil
}
