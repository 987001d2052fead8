package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shardgate/core/chain"
	gwerrors "shardgate/core/errors"
	"shardgate/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	defaultMaxBatch = 100
	defaultTimeout  = 30 * time.Second
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
)

var nullJSON = json.RawMessage("null")

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Authorizer vets callers of guarded methods using the originating HTTP request.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// Server is the gateway's JSON-RPC 2.0 endpoint. It serves single and batch requests over
// HTTP POST and one payload per message over WebSocket.
type Server struct {
	api      *chain.API
	methods  map[string]method
	logger   *slog.Logger
	timeout  time.Duration
	maxBatch int
	auth     Authorizer
	guarded  map[string]struct{}
	origins  []string
}

// Option customises the server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRequestTimeout bounds every dispatched call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxBatch caps the number of calls in one batch.
func WithMaxBatch(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// WithAuthorizer requires auth to accept the caller before any of methods runs.
func WithAuthorizer(auth Authorizer, methods ...string) Option {
	return func(s *Server) {
		s.auth = auth
		for _, m := range methods {
			s.guarded[m] = struct{}{}
		}
	}
}

// WithAllowedOrigins lists the browser origins allowed to open WebSocket sessions, as
// full origins ("https://app.example") or host patterns ("*.example", "*"). Same-host
// origins are always accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "" {
				continue
			}
			if u, err := url.Parse(origin); err == nil && u.Host != "" {
				origin = u.Host
			}
			s.origins = append(s.origins, origin)
		}
	}
}

func NewServer(api *chain.API, opts ...Option) *Server {
	s := &Server{
		api:      api,
		logger:   slog.Default(),
		timeout:  defaultTimeout,
		maxBatch: defaultMaxBatch,
		guarded:  make(map[string]struct{}),
	}
	s.methods = s.methodTable()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func errorResponse(id json.RawMessage, code int, message string, data interface{}) RPCResponse {
	if len(id) == 0 {
		id = nullJSON
	}
	return RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(errorResponse(id, code, message, data))
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

// ServeHTTP handles POSTed JSON-RPC payloads.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	out, status := s.handlePayload(r, body)
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	writeJSON(w, out)
}

// handlePayload answers a single request or a batch. The status is only meaningful for
// HTTP transports.
func (s *Server) handlePayload(r *http.Request, body []byte) (any, int) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return errorResponse(nil, codeInvalidRequest, "request body required", nil), http.StatusBadRequest
	}
	if trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return errorResponse(nil, codeParseError, "invalid JSON payload", err.Error()), http.StatusBadRequest
		}
		if len(batch) == 0 {
			return errorResponse(nil, codeInvalidRequest, "empty batch", nil), http.StatusBadRequest
		}
		if len(batch) > s.maxBatch {
			return errorResponse(nil, codeInvalidRequest, fmt.Sprintf("batch exceeds %d calls", s.maxBatch), nil), http.StatusBadRequest
		}
		responses := make([]RPCResponse, 0, len(batch))
		for _, item := range batch {
			responses = append(responses, s.handleRaw(r, item))
		}
		return responses, http.StatusOK
	}
	var req RPCRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return errorResponse(nil, codeParseError, "invalid JSON payload", err.Error()), http.StatusBadRequest
	}
	return s.Dispatch(r, req), http.StatusOK
}

func (s *Server) handleRaw(r *http.Request, raw json.RawMessage) RPCResponse {
	var req RPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, codeInvalidRequest, "invalid request", err.Error())
	}
	return s.Dispatch(r, req)
}

// Dispatch runs one request under the server's timeout and converts the outcome into a
// response. Domain errors carry their kind in error.data.
func (s *Server) Dispatch(r *http.Request, req RPCRequest) RPCResponse {
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		return errorResponse(req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
	}
	if req.Method == "" {
		return errorResponse(req.ID, codeInvalidRequest, "method required", nil)
	}
	m, ok := s.methods[req.Method]
	if !ok {
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
	if _, guarded := s.guarded[req.Method]; guarded && s.auth != nil {
		if err := s.auth.Authorize(r); err != nil {
			observability.RPC().RecordThrottle("unauthorized")
			return errorResponse(req.ID, codeUnauthorized, "unauthorized", err.Error())
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	start := time.Now()
	result, err := m(ctx, req.Params)
	if err != nil {
		var pe *paramError
		if errors.As(err, &pe) {
			observability.RPC().Observe(req.Method, "InvalidParams", time.Since(start))
			return errorResponse(req.ID, codeInvalidParams, pe.Error(), nil)
		}
		kind, code := gwerrors.KindOf(err)
		observability.RPC().Observe(req.Method, string(kind), time.Since(start))
		if kind == gwerrors.KindInternal {
			s.logger.Error("rpc method failed", "method", req.Method, "error", err)
		}
		return errorResponse(req.ID, code, err.Error(), map[string]string{"kind": string(kind)})
	}
	observability.RPC().Observe(req.Method, "", time.Since(start))

	encoded, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("encode rpc result", "method", req.Method, "error", err)
		return errorResponse(req.ID, gwerrors.CodeParse, "encode result", map[string]string{"kind": string(gwerrors.KindParse)})
	}
	id := req.ID
	if len(id) == 0 {
		id = nullJSON
	}
	return RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: encoded}
}
