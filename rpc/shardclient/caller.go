// Package shardclient talks JSON-RPC to shard nodes over HTTP or WebSocket.
package shardclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Caller performs a single JSON-RPC call against one node endpoint.
type Caller interface {
	Call(ctx context.Context, method string, params []any, result any) error
	Close() error
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by a node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func decodeResult(resp *rpcResponse, result any) error {
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// Dial picks the transport from the endpoint scheme: http(s) or ws(s).
func Dial(endpoint string, timeout time.Duration) (Caller, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPCaller(u.String(), timeout), nil
	case "ws", "wss":
		return NewWSCaller(u.String(), timeout), nil
	default:
		return nil, fmt.Errorf("endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
}
