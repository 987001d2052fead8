package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"nhooyr.io/websocket"

	"shardgate/core/chain"
	"shardgate/core/codec"
	"shardgate/core/codec/codectest"
	gwerrors "shardgate/core/errors"
	"shardgate/core/query"
	"shardgate/core/query/querytest"
	"shardgate/core/types"
	"shardgate/crypto"
)

var testNetwork = types.Network{HRP: "tyee", ShardCount: 4}

func newTestServer(node *querytest.Node, opts ...Option) *Server {
	return NewServer(chain.NewAPI(testNetwork, query.New(node), nil), opts...)
}

func cryptoAddress(key []byte) (string, error) {
	return crypto.MustNewAddress(testNetwork.HRP, key).Encode()
}

func post(t *testing.T, handler http.Handler, body string) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, rec.Body.Bytes()
}

func decodeResponse(t *testing.T, body []byte) RPCResponse {
	t.Helper()
	var resp RPCResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode response %s: %v", body, err)
	}
	return resp
}

func TestBestNumber(t *testing.T) {
	node := querytest.New()
	for i := 0; i < 3; i++ {
		node.AddBlock(0)
	}
	rec, body := post(t, newTestServer(node), `{"jsonrpc":"2.0","id":7,"method":"chain_getBestNumber","params":[0]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	resp := decodeResponse(t, body)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if string(resp.ID) != "7" || string(resp.Result) != "2" {
		t.Fatalf("unexpected response %s", body)
	}
}

func TestNullResultIsReported(t *testing.T) {
	node := querytest.New()
	node.AddBlock(1)
	_, body := post(t, newTestServer(node), `{"jsonrpc":"2.0","id":"a","method":"chain_getHeaderByNumber","params":[1,"0x5"]}`)
	if !strings.Contains(string(body), `"result":null`) {
		t.Fatalf("expected explicit null result, got %s", body)
	}
}

func TestHeaderByHexNumber(t *testing.T) {
	node := querytest.New()
	node.AddBlock(1)
	_, hash := node.AddBlock(1)
	_, body := post(t, newTestServer(node), `{"jsonrpc":"2.0","id":1,"method":"chain_getHeaderByNumber","params":[1,"0x1"]}`)
	resp := decodeResponse(t, body)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var header map[string]any
	if err := json.Unmarshal(resp.Result, &header); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if header["block_hash"] != hexutil.Encode(hash) {
		t.Fatalf("unexpected header %s", resp.Result)
	}
}

func TestErrorMapping(t *testing.T) {
	server := newTestServer(querytest.New())
	cases := []struct {
		name string
		body string
		code int
		kind string
	}{
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber","params":[]}`, codeMethodNotFound, ""},
		{"null shard", `{"jsonrpc":"2.0","id":1,"method":"chain_getBestNumber","params":[null]}`, codeInvalidParams, ""},
		{"bad shard type", `{"jsonrpc":"2.0","id":1,"method":"chain_getBestNumber","params":["x"]}`, codeInvalidParams, ""},
		{"missing params", `{"jsonrpc":"2.0","id":1,"method":"chain_getBlockByNumber","params":[0]}`, codeInvalidParams, ""},
		{"bad hash", `{"jsonrpc":"2.0","id":1,"method":"chain_getBlockByHash","params":[0,"zz"]}`, codeInvalidParams, ""},
		{"shard out of range", `{"jsonrpc":"2.0","id":1,"method":"chain_getBestNumber","params":[5]}`, -32010, "InvalidShard"},
		{"bad address", `{"jsonrpc":"2.0","id":1,"method":"state_getNonce","params":["nope"]}`, -32011, "InvalidAddress"},
		{"bad extrinsic", `{"jsonrpc":"2.0","id":1,"method":"author_submitExtrinsic","params":["0xdeadbeef"]}`, -32012, "InvalidExtrinsic"},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"chain_getBestNumber","params":[0]}`, codeInvalidRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, body := post(t, server, tc.body)
			resp := decodeResponse(t, body)
			if resp.Error == nil {
				t.Fatalf("expected error, got %s", body)
			}
			if resp.Error.Code != tc.code {
				t.Fatalf("expected code %d, got %d (%s)", tc.code, resp.Error.Code, resp.Error.Message)
			}
			if tc.kind == "" {
				return
			}
			data, ok := resp.Error.Data.(map[string]any)
			if !ok || data["kind"] != tc.kind {
				t.Fatalf("expected kind %s, got %#v", tc.kind, resp.Error.Data)
			}
		})
	}
}

func TestTransportErrorsSurfaceAsTransport(t *testing.T) {
	node := querytest.New()
	node.FailWith(fmt.Errorf("%w: upstream down", gwerrors.ErrTransport))
	_, body := post(t, newTestServer(node), `{"jsonrpc":"2.0","id":1,"method":"chain_getBestNumber","params":[0]}`)
	resp := decodeResponse(t, body)
	if resp.Error == nil || resp.Error.Code != -32014 {
		t.Fatalf("expected transport error, got %s", body)
	}
}

func TestEnvelopeErrors(t *testing.T) {
	server := newTestServer(querytest.New(), WithMaxBatch(2))

	rec, body := post(t, server, `{"jsonrpc":`)
	if rec.Code != http.StatusBadRequest || decodeResponse(t, body).Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %d %s", rec.Code, body)
	}
	rec, _ = post(t, server, `   `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected empty body rejection, got %d", rec.Code)
	}
	rec, _ = post(t, server, `[]`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected empty batch rejection, got %d", rec.Code)
	}
	call := `{"jsonrpc":"2.0","id":1,"method":"chain_getBestNumber","params":[0]}`
	rec, _ = post(t, server, "["+strings.Repeat(call+",", 2)+call+"]")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected oversized batch rejection, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/rpc", nil)
	getRec := httptest.NewRecorder()
	server.ServeHTTP(getRec, req)
	if getRec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", getRec.Code)
	}

	huge := `{"jsonrpc":"2.0","id":1,"method":"author_submitExtrinsic","params":["0x` + strings.Repeat("00", maxRequestBytes) + `"]}`
	rec, _ = post(t, server, huge)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestBatch(t *testing.T) {
	node := querytest.New()
	node.AddBlock(0)
	node.AddBlock(0)
	node.Finalize(0, 0)
	_, body := post(t, newTestServer(node), `[
		{"jsonrpc":"2.0","id":1,"method":"chain_getBestNumber","params":[0]},
		{"jsonrpc":"2.0","id":2,"method":"chain_getFinalizedNumber","params":[0]},
		{"jsonrpc":"2.0","id":3,"method":"nope","params":[]},
		17
	]`)
	var responses []RPCResponse
	if err := json.Unmarshal(body, &responses); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(responses) != 4 {
		t.Fatalf("expected 4 responses, got %d", len(responses))
	}
	if string(responses[0].Result) != "1" || string(responses[1].Result) != "0" {
		t.Fatalf("unexpected results %s", body)
	}
	if responses[2].Error == nil || responses[2].Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", responses[2])
	}
	if responses[3].Error == nil || responses[3].Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", responses[3])
	}
}

type denyAll struct{}

func (denyAll) Authorize(*http.Request) error { return errors.New("missing bearer token") }

type allowAll struct{}

func (allowAll) Authorize(*http.Request) error { return nil }

func submitBody(t *testing.T) (string, []byte) {
	t.Helper()
	raw := codectest.Signed(codectest.Key(0x22), 0, codectest.Transfer(codectest.Key(9), 1))
	return `{"jsonrpc":"2.0","id":1,"method":"author_submitExtrinsic","params":["` + hexutil.Encode(raw) + `"]}`, raw
}

func TestSubmitIsGuarded(t *testing.T) {
	node := querytest.New()
	body, _ := submitBody(t)
	_, out := post(t, newTestServer(node, WithAuthorizer(denyAll{}, MethodSubmitExtrinsic)), body)
	resp := decodeResponse(t, out)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %s", out)
	}
	if node.TotalCalls() != 0 {
		t.Fatalf("rejected submission reached a shard")
	}

	// reads stay open
	node.AddBlock(0)
	_, out = post(t, newTestServer(node, WithAuthorizer(denyAll{}, MethodSubmitExtrinsic)),
		`{"jsonrpc":"2.0","id":1,"method":"chain_getBestNumber","params":[0]}`)
	if decodeResponse(t, out).Error != nil {
		t.Fatalf("unguarded method rejected: %s", out)
	}
}

func TestSubmitExtrinsic(t *testing.T) {
	node := querytest.New()
	body, raw := submitBody(t)
	_, out := post(t, newTestServer(node, WithAuthorizer(allowAll{}, MethodSubmitExtrinsic)), body)
	resp := decodeResponse(t, out)
	if resp.Error != nil {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	var hash hexutil.Bytes
	if err := json.Unmarshal(resp.Result, &hash); err != nil {
		t.Fatalf("decode hash: %v", err)
	}
	if hexutil.Encode(hash) != hexutil.Encode(codec.TransactionHash(raw)) {
		t.Fatalf("unexpected hash %s", hash)
	}
	if len(node.Submitted(2)) != 1 {
		t.Fatalf("expected submission on shard 2")
	}
}

func TestNonceOptionalNumber(t *testing.T) {
	node := querytest.New()
	node.AddBlock(2)
	addr, err := cryptoAddress(codectest.Key(0x22))
	if err != nil {
		t.Fatalf("encode address: %v", err)
	}
	server := newTestServer(node)
	for _, params := range []string{`["` + addr + `"]`, `["` + addr + `",null]`, `["` + addr + `",0]`} {
		_, out := post(t, server, `{"jsonrpc":"2.0","id":1,"method":"state_getNonce","params":`+params+`}`)
		resp := decodeResponse(t, out)
		if resp.Error != nil || string(resp.Result) != "0" {
			t.Fatalf("params %s: unexpected response %s", params, out)
		}
	}
}

func TestWebSocket(t *testing.T) {
	node := querytest.New()
	node.AddBlock(3)
	server := newTestServer(node)
	srv := httptest.NewServer(http.HandlerFunc(server.ServeWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	request := `{"jsonrpc":"2.0","id":9,"method":"chain_getBestNumber","params":[3]}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(request)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	resp := decodeResponse(t, data)
	if string(resp.ID) != "9" || string(resp.Result) != "0" {
		t.Fatalf("unexpected response %s", data)
	}
}

func TestWebSocketOrigins(t *testing.T) {
	server := newTestServer(querytest.New(), WithAllowedOrigins("https://explorer.example"))
	srv := httptest.NewServer(http.HandlerFunc(server.ServeWS))
	defer srv.Close()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dial := func(origin string) (*websocket.Conn, error) {
		header := http.Header{}
		header.Set("Origin", origin)
		conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: header})
		return conn, err
	}

	if conn, err := dial("https://evil.example"); err == nil {
		conn.Close(websocket.StatusNormalClosure, "done")
		t.Fatalf("expected foreign origin to be rejected")
	}
	conn, err := dial("https://explorer.example")
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}
