// Package sharding maps account keys onto shards.
package sharding

import (
	"encoding/binary"
	"fmt"

	gwerrors "shardgate/core/errors"
)

// ShardFor returns the shard owning key. The shard is the big-endian u16 formed by the last
// two key bytes, reduced modulo shardCount. It reports false when shardCount is zero or the
// key is too short to carry a shard suffix.
func ShardFor(key []byte, shardCount uint16) (uint16, bool) {
	if shardCount == 0 || len(key) < 2 {
		return 0, false
	}
	suffix := binary.BigEndian.Uint16(key[len(key)-2:])
	if shardCount&(shardCount-1) == 0 {
		return suffix & (shardCount - 1), true
	}
	return suffix % shardCount, true
}

// ValidateShard rejects shard numbers above shardCount. A request for shard == shardCount
// is accepted; existing clients rely on that boundary.
func ValidateShard(requested, shardCount uint16) error {
	if requested > shardCount {
		return fmt.Errorf("%w: shard %d exceeds shard count %d", gwerrors.ErrInvalidShard, requested, shardCount)
	}
	return nil
}
