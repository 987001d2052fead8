package types

import "shardgate/crypto"

// Network is the immutable view of the deployment shared by every request: the address
// prefix and the number of shards.
type Network struct {
	HRP        crypto.HRP
	ShardCount uint16
}
