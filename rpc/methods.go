package rpc

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type method func(ctx context.Context, params []json.RawMessage) (any, error)

// Method names served by the gateway.
const (
	MethodBestNumber            = "chain_getBestNumber"
	MethodFinalizedNumber       = "chain_getFinalizedNumber"
	MethodHeaderByNumber        = "chain_getHeaderByNumber"
	MethodHeaderByHash          = "chain_getHeaderByHash"
	MethodBlockByNumber         = "chain_getBlockByNumber"
	MethodBlockByHash           = "chain_getBlockByHash"
	MethodExtrinsicByHash       = "chain_getExtrinsicByHash"
	MethodExtrinsicByRaw        = "chain_getExtrinsicByRaw"
	MethodExtrinsicByOriginHash = "chain_getExtrinsicByOriginHash"
	MethodNonce                 = "state_getNonce"
	MethodBalance               = "state_getBalance"
	MethodSubmitExtrinsic       = "author_submitExtrinsic"
)

func (s *Server) methodTable() map[string]method {
	return map[string]method{
		MethodBestNumber:            s.bestNumber,
		MethodFinalizedNumber:       s.finalizedNumber,
		MethodHeaderByNumber:        s.headerByNumber,
		MethodHeaderByHash:          s.headerByHash,
		MethodBlockByNumber:         s.blockByNumber,
		MethodBlockByHash:           s.blockByHash,
		MethodExtrinsicByHash:       s.extrinsicByHash,
		MethodExtrinsicByRaw:        s.extrinsicByRaw,
		MethodExtrinsicByOriginHash: s.extrinsicByOriginHash,
		MethodNonce:                 s.nonce,
		MethodBalance:               s.balance,
		MethodSubmitExtrinsic:       s.submitExtrinsic,
	}
}

func (s *Server) bestNumber(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 1, 1); err != nil {
		return nil, err
	}
	shard, err := parseShard(params[0])
	if err != nil {
		return nil, err
	}
	return s.api.BestNumber(ctx, shard)
}

func (s *Server) finalizedNumber(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 1, 1); err != nil {
		return nil, err
	}
	shard, err := parseShard(params[0])
	if err != nil {
		return nil, err
	}
	return s.api.FinalizedNumber(ctx, shard)
}

func (s *Server) headerByNumber(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 2, 2); err != nil {
		return nil, err
	}
	shard, err := parseShard(params[0])
	if err != nil {
		return nil, err
	}
	number, err := parseNumber("number", params[1])
	if err != nil {
		return nil, err
	}
	return s.api.HeaderByNumber(ctx, shard, number)
}

func (s *Server) headerByHash(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 2, 2); err != nil {
		return nil, err
	}
	shard, err := parseShard(params[0])
	if err != nil {
		return nil, err
	}
	hash, err := parseBytes("hash", params[1])
	if err != nil {
		return nil, err
	}
	return s.api.HeaderByHash(ctx, shard, hash)
}

func (s *Server) blockByNumber(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 2, 2); err != nil {
		return nil, err
	}
	shard, err := parseShard(params[0])
	if err != nil {
		return nil, err
	}
	number, err := parseNumber("number", params[1])
	if err != nil {
		return nil, err
	}
	return s.api.BlockByNumber(ctx, shard, number)
}

func (s *Server) blockByHash(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 2, 2); err != nil {
		return nil, err
	}
	shard, err := parseShard(params[0])
	if err != nil {
		return nil, err
	}
	hash, err := parseBytes("hash", params[1])
	if err != nil {
		return nil, err
	}
	return s.api.BlockByHash(ctx, shard, hash)
}

func (s *Server) extrinsicByHash(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 3, 3); err != nil {
		return nil, err
	}
	shard, err := parseShard(params[0])
	if err != nil {
		return nil, err
	}
	number, err := parseNumber("number", params[1])
	if err != nil {
		return nil, err
	}
	hash, err := parseBytes("hash", params[2])
	if err != nil {
		return nil, err
	}
	return s.api.ExtrinsicByHash(ctx, shard, number, hash)
}

func (s *Server) extrinsicByRaw(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 3, 3); err != nil {
		return nil, err
	}
	shard, err := parseShard(params[0])
	if err != nil {
		return nil, err
	}
	number, err := parseNumber("number", params[1])
	if err != nil {
		return nil, err
	}
	raw, err := parseBytes("raw", params[2])
	if err != nil {
		return nil, err
	}
	return s.api.ExtrinsicByRaw(ctx, shard, number, raw)
}

func (s *Server) extrinsicByOriginHash(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 4, 4); err != nil {
		return nil, err
	}
	shard, err := parseShard(params[0])
	if err != nil {
		return nil, err
	}
	from, err := parseNumber("from", params[1])
	if err != nil {
		return nil, err
	}
	to, err := parseNumber("to", params[2])
	if err != nil {
		return nil, err
	}
	origin, err := parseBytes("originHash", params[3])
	if err != nil {
		return nil, err
	}
	return s.api.ExtrinsicByOriginHash(ctx, shard, from, to, origin)
}

func (s *Server) nonce(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 1, 2); err != nil {
		return nil, err
	}
	address, err := parseString("address", params[0])
	if err != nil {
		return nil, err
	}
	number, err := parseOptionalNumber("number", params, 1)
	if err != nil {
		return nil, err
	}
	return s.api.Nonce(ctx, address, number)
}

func (s *Server) balance(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 1, 2); err != nil {
		return nil, err
	}
	address, err := parseString("address", params[0])
	if err != nil {
		return nil, err
	}
	number, err := parseOptionalNumber("number", params, 1)
	if err != nil {
		return nil, err
	}
	return s.api.Balance(ctx, address, number)
}

func (s *Server) submitExtrinsic(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := arity(params, 1, 1); err != nil {
		return nil, err
	}
	raw, err := parseBytes("raw", params[0])
	if err != nil {
		return nil, err
	}
	hash, err := s.api.SubmitExtrinsic(ctx, raw)
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(hash), nil
}
