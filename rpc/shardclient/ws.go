package shardclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsReadLimit = 16 << 20

// WSCaller keeps one WebSocket connection to a node and serialises calls over it. The
// connection is dialled on first use and redialled after any failure.
type WSCaller struct {
	endpoint string
	timeout  time.Duration
	nextID   atomic.Uint64

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSCaller(endpoint string, timeout time.Duration) *WSCaller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WSCaller{endpoint: endpoint, timeout: timeout}
}

func (c *WSCaller) Call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	id := c.nextID.Add(1)
	if err := wsjson.Write(ctx, conn, rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		c.reset(websocket.StatusInternalError, "write failed")
		return fmt.Errorf("write request: %w", err)
	}
	for {
		var resp rpcResponse
		if err := wsjson.Read(ctx, conn, &resp); err != nil {
			c.reset(websocket.StatusInternalError, "read failed")
			return fmt.Errorf("read response: %w", err)
		}
		// subscription notifications and late replies carry other ids
		if resp.ID != id {
			continue
		}
		return decodeResult(&resp, result)
	}
}

func (c *WSCaller) connect(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	conn, _, err := websocket.Dial(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	conn.SetReadLimit(wsReadLimit)
	c.conn = conn
	return conn, nil
}

func (c *WSCaller) reset(code websocket.StatusCode, reason string) {
	if c.conn != nil {
		_ = c.conn.Close(code, reason)
		c.conn = nil
	}
}

func (c *WSCaller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "client closed")
	c.conn = nil
	return err
}
