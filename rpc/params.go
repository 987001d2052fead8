package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"shardgate/core/types"
)

type paramError struct {
	msg string
}

func (e *paramError) Error() string {
	return e.msg
}

func invalidParams(format string, args ...any) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

// arity checks the positional parameter count. Trailing optional parameters may be omitted.
func arity(params []json.RawMessage, min, max int) error {
	if len(params) < min || len(params) > max {
		if min == max {
			return invalidParams("expected %d params, got %d", min, len(params))
		}
		return invalidParams("expected %d to %d params, got %d", min, max, len(params))
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func parseShard(raw json.RawMessage) (uint16, error) {
	if isNull(raw) {
		return 0, invalidParams("shard is required")
	}
	var shard uint16
	if err := json.Unmarshal(raw, &shard); err != nil {
		return 0, invalidParams("shard must be an integer between 0 and 65535")
	}
	return shard, nil
}

func parseNumber(name string, raw json.RawMessage) (uint64, error) {
	if isNull(raw) {
		return 0, invalidParams("%s is required", name)
	}
	var n types.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, invalidParams("%s must be a block number", name)
	}
	return uint64(n), nil
}

func parseOptionalNumber(name string, params []json.RawMessage, index int) (*uint64, error) {
	if index >= len(params) || isNull(params[index]) {
		return nil, nil
	}
	n, err := parseNumber(name, params[index])
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseBytes(name string, raw json.RawMessage) ([]byte, error) {
	var b hexutil.Bytes
	if isNull(raw) {
		return nil, invalidParams("%s is required", name)
	}
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, invalidParams("%s must be 0x-prefixed hex", name)
	}
	return b, nil
}

func parseString(name string, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalidParams("%s must be a string", name)
	}
	return s, nil
}
