package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = maxRequestBytes
)

// ServeWS upgrades the connection and answers each text message as a JSON-RPC payload.
// Guarded methods are authorised against the upgrade request.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")
	conn.SetReadLimit(wsReadLimit)

	if err := s.serveConn(r, conn); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			s.logger.Debug("websocket session ended", "error", err)
			_ = conn.Close(websocket.StatusInternalError, "session error")
		}
	}
}

func (s *Server) serveConn(r *http.Request, conn *websocket.Conn) error {
	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			if err := writeMessage(ctx, conn, errorResponse(nil, codeInvalidRequest, "text frames required", nil)); err != nil {
				return err
			}
			continue
		}
		out, _ := s.handlePayload(r, data)
		if err := writeMessage(ctx, conn, out); err != nil {
			return err
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
