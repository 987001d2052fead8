package shardclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type nodeRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type nodeReply struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      uint64    `json:"id"`
	Result  any       `json:"result"`
	Error   *RPCError `json:"error,omitempty"`
}

// stubNode answers node methods from a table. Unknown methods get a JSON-RPC error.
type stubNode struct {
	mu      sync.Mutex
	results map[string]any
	seen    []nodeRequest
}

func newStubNode(results map[string]any) *stubNode {
	return &stubNode{results: results}
}

func (n *stubNode) reply(req nodeRequest) nodeReply {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, req)
	out := nodeReply{JSONRPC: "2.0", ID: req.ID}
	result, ok := n.results[req.Method]
	if !ok {
		out.Error = &RPCError{Code: -32601, Message: "Method not found"}
		return out
	}
	out.Result = result
	return out
}

func (n *stubNode) requests() []nodeRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]nodeRequest(nil), n.seen...)
}

func (n *stubNode) httpServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req nodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(n.reply(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// wsServer pushes an unrelated notification before every reply.
func (n *stubNode) wsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := context.Background()
		for {
			var req nodeRequest
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				return
			}
			notice := map[string]any{"jsonrpc": "2.0", "method": "chain_newHead", "params": map[string]any{}}
			if err := wsjson.Write(ctx, conn, notice); err != nil {
				return
			}
			if err := wsjson.Write(ctx, conn, n.reply(req)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

var sampleHeader = map[string]any{
	"parentHash":     "0x" + strings.Repeat("11", 32),
	"number":         "0x1a",
	"stateRoot":      "0x" + strings.Repeat("22", 32),
	"extrinsicsRoot": "0x" + strings.Repeat("33", 32),
	"digest":         map[string]any{"logs": []string{"0x0400"}},
}
