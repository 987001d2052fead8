// Package enrich adds derived fields to projected extrinsic and block values.
package enrich

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"shardgate/core/codec"
	gwerrors "shardgate/core/errors"
	"shardgate/core/query"
	"shardgate/core/sharding"
	"shardgate/core/types"
	"shardgate/crypto"
)

// Fields injected into call params.
const (
	FieldDestAddress  = "dest_address"
	FieldDestShardNum = "dest_shard_num"
	FieldTxDecoded    = "tx_decoded"
)

// Enricher post-processes values produced by query.Project.
type Enricher struct {
	network types.Network
	logger  *slog.Logger
}

// New returns an enricher bound to network.
func New(network types.Network, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{network: network, logger: logger}
}

// Addresses applies AppendAddress to a block value (every entry of extrinsics) or to a
// single extrinsic value (one with a call). Anything else is left untouched.
func (e *Enricher) Addresses(v any) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	if extrinsics, ok := m["extrinsics"].([]any); ok {
		for _, item := range extrinsics {
			if tx, ok := item.(map[string]any); ok {
				e.AppendAddress(tx)
			}
		}
		return
	}
	if _, ok := m["call"]; ok {
		e.AppendAddress(m)
	}
}

// AppendAddress adds the bech32 address and owning shard of a balances transfer
// destination given as an account id. Anything that cannot be derived is skipped.
func (e *Enricher) AppendAddress(extrinsic map[string]any) {
	params, ok := callParams(extrinsic, codec.ModuleBalances, codec.MethodBalancesTransfer)
	if !ok {
		return
	}
	dest, ok := params["dest"].(string)
	if !ok {
		return
	}
	raw, err := hexutil.Decode(dest)
	if err != nil {
		e.logger.Debug("enrich: skip dest address", "dest", dest, "error", err)
		return
	}
	if len(raw) == 0 || raw[0] != codec.AccountIDPrefix {
		return
	}
	key := raw[1:]
	addr, err := crypto.NewAddress(e.network.HRP, key)
	if err != nil {
		e.logger.Debug("enrich: skip dest address", "dest", dest, "error", err)
		return
	}
	encoded, err := addr.Encode()
	if err != nil {
		e.logger.Debug("enrich: skip dest address", "dest", dest, "error", err)
		return
	}
	shard, ok := sharding.ShardFor(key, e.network.ShardCount)
	if !ok {
		e.logger.Debug("enrich: skip dest shard", "dest", dest, "shards", e.network.ShardCount)
		return
	}
	params[FieldDestAddress] = encoded
	params[FieldDestShardNum] = json.Number(strconv.FormatUint(uint64(shard), 10))
}

// DecodedTx applies AppendDecodedTx to a single extrinsic value.
func (e *Enricher) DecodedTx(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if _, ok := m["call"]; !ok {
		return nil
	}
	return e.AppendDecodedTx(m)
}

// AppendDecodedTx decodes the origin extrinsic carried by a relay transfer and stores it,
// address-enriched, under tx_decoded. An undecodable origin extrinsic is a parse error.
func (e *Enricher) AppendDecodedTx(extrinsic map[string]any) error {
	params, ok := callParams(extrinsic, codec.ModuleRelay, codec.MethodRelayTransfer)
	if !ok {
		return nil
	}
	encoded, ok := params["tx"].(string)
	if !ok {
		return nil
	}
	raw, err := hexutil.Decode(encoded)
	if err != nil {
		e.logger.Debug("enrich: skip relay origin", "error", err)
		return nil
	}
	tx, err := codec.DecodeTransaction(raw)
	if err != nil {
		return fmt.Errorf("%w: relay origin extrinsic: %v", gwerrors.ErrParse, err)
	}
	result := codec.NewResultTransaction(raw, tx)
	result.Raw = nil
	decoded, err := query.Project(result)
	if err != nil {
		return err
	}
	if m, ok := decoded.(map[string]any); ok {
		e.AppendAddress(m)
	}
	params[FieldTxDecoded] = decoded
	return nil
}

func callParams(extrinsic map[string]any, module, method uint8) (map[string]any, bool) {
	call, ok := extrinsic["call"].(map[string]any)
	if !ok {
		return nil, false
	}
	if !numberIs(call["module"], module) || !numberIs(call["method"], method) {
		return nil, false
	}
	params, ok := call["params"].(map[string]any)
	return params, ok
}

func numberIs(v any, want uint8) bool {
	switch n := v.(type) {
	case json.Number:
		got, err := strconv.ParseUint(n.String(), 10, 8)
		return err == nil && uint8(got) == want
	case float64:
		return n == float64(want)
	default:
		return false
	}
}
