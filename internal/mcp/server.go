// ABOUTME: MCP JSON-RPC endpoint that answers each POST with a per-request SSE stream
// ABOUTME: Authenticates, validates the envelope, routes the method and drains the handler's sequence

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/2389/prompt-gateway/internal/auth"
	"github.com/2389/prompt-gateway/internal/store"
	"github.com/2389/prompt-gateway/internal/stream"
)

// ProtocolVersion is the version advertised in initialize responses.
const ProtocolVersion = "2024-11-05"

// MaxRequestBodySize is the default maximum request body size (1MB).
const MaxRequestBodySize = 1 << 20

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes. These are wire values shared with every MCP
// client and must not change.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// ProtocolError is a malformed or unroutable request. Handlers yield it to
// answer with an error envelope followed by the normal done marker.
type ProtocolError struct {
	Code    int
	Message string
	Data    any
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func protocolError(code int, message string) *ProtocolError {
	return &ProtocolError{Code: code, Message: message}
}

// Handler produces the results for one request. The dispatcher frames each
// value as a message event; a non-nil error ends the sequence.
type Handler func(ctx context.Context, p auth.Principal, req JSONRPCRequest) iter.Seq2[any, error]

// Config holds configuration for the MCP server.
type Config struct {
	Store         store.PromptStore
	Authenticator auth.Authenticator
	Logger        *slog.Logger
	Metrics       *Metrics
	MaxBodyBytes  int64
	Version       string
}

// Server implements the MCP endpoint.
type Server struct {
	store    store.PromptStore
	authn    auth.Authenticator
	logger   *slog.Logger
	metrics  *Metrics
	maxBody  int64
	version  string
	handlers map[string]Handler
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = MaxRequestBodySize
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		store:   cfg.Store,
		authn:   cfg.Authenticator,
		logger:  logger.With("component", "mcp"),
		metrics: cfg.Metrics,
		maxBody: maxBody,
		version: version,
	}
	s.handlers = map[string]Handler{
		"initialize":                s.handleInitialize,
		"notifications/initialized": s.handleInitialized,
		"tools/list":                s.handleToolsList,
		"tools/call":                s.handleToolsCall,
		"prompts/list":              s.handlePromptsList,
	}
	return s, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/api/mcp", s)
}

// ServeHTTP handles POST requests and CORS preflight.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Protocol-Version")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		s.handlePost(w, r)
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost runs one request through authentication, envelope validation,
// routing and draining. After authentication the status is always 200 and
// every failure travels inside the stream.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	p, err := s.authn.Authenticate(r)
	if err != nil {
		s.logger.Debug("MCP authentication failed", "error", err)
		s.metrics.observe("", outcomeUnauthenticated)
		auth.WriteUnauthorized(w, err)
		return
	}

	req, perr := s.decode(r)

	sink, err := stream.Open(w, r)
	if err != nil {
		s.logger.Error("failed to open MCP response stream", "error", err)
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	defer sink.Close()

	requestID := uuid.New().String()
	logger := s.logger.With("request_id", requestID, "method", req.Method, "tenant_id", p.TenantID)

	build := func() iter.Seq2[any, error] {
		if perr != nil {
			return fail(perr)
		}
		handler, ok := s.handlers[req.Method]
		if !ok {
			return fail(protocolError(JSONRPCMethodNotFound, "method not found"))
		}
		// Requests run to completion even if the client goes away.
		return handler(context.WithoutCancel(r.Context()), p, req)
	}

	outcome := s.drain(logger, sink, req.ID, build)
	s.metrics.observe(s.methodLabel(req.Method, perr), outcome)
	logger.Debug("MCP request complete", "outcome", outcome)
}

// decode reads and validates the envelope. The returned request carries
// whatever id could be parsed, so error envelopes can still echo it.
func (s *Server) decode(r *http.Request) (JSONRPCRequest, *ProtocolError) {
	var req JSONRPCRequest

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBody+1))
	if err != nil {
		return req, protocolError(JSONRPCParseError, "failed to read request body")
	}
	if int64(len(body)) > s.maxBody {
		return req, protocolError(JSONRPCInvalidRequest, "request body too large")
	}

	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) && json.Valid(body) {
		return req, protocolError(JSONRPCInvalidRequest, "batch requests are not supported")
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return JSONRPCRequest{}, protocolError(JSONRPCParseError, "invalid JSON")
	}
	if req.JSONRPC != "2.0" {
		return req, protocolError(JSONRPCInvalidRequest, "invalid JSON-RPC version")
	}
	if req.Method == "" {
		return req, protocolError(JSONRPCInvalidRequest, "method is required")
	}
	return req, nil
}

// Request outcomes, used as the metrics label and in logs.
const (
	outcomeOK              = "ok"
	outcomeProtocolError   = "protocol_error"
	outcomeFailed          = "failed"
	outcomeUnauthenticated = "unauthenticated"
)

type donePayload struct {
	ID json.RawMessage `json:"id"`
}

// drain builds the sequence, frames every element in order and then writes
// exactly one terminal event: done after success or a ProtocolError, error
// after any other failure or a panic while building or running the handler.
func (s *Server) drain(logger *slog.Logger, sink stream.Sink, id json.RawMessage, build func() iter.Seq2[any, error]) (outcome string) {
	outcome = outcomeOK
	terminal := stream.EventDone
	var terminalPayload any = donePayload{ID: id}

	failInternal := func() {
		outcome = outcomeFailed
		terminal = stream.EventError
		terminalPayload = errorEnvelope(id, JSONRPCInternalError, "internal error")
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("MCP handler panicked", "panic", rec)
				failInternal()
			}
		}()

		for v, err := range build() {
			if err != nil {
				var pe *ProtocolError
				if errors.As(err, &pe) {
					outcome = outcomeProtocolError
					logger.Debug("MCP protocol error", "code", pe.Code, "message", pe.Message)
					s.send(logger, sink, stream.EventMessage, JSONRPCResponse{
						JSONRPC: "2.0",
						ID:      id,
						Error:   &JSONRPCError{Code: pe.Code, Message: pe.Message, Data: pe.Data},
					})
					return
				}
				logger.Warn("MCP handler failed", "error", err)
				failInternal()
				return
			}
			s.send(logger, sink, stream.EventMessage, JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: v})
		}
	}()

	s.send(logger, sink, terminal, terminalPayload)
	return outcome
}

// send writes one frame. A failed write means the client is gone; the rest
// of the request still runs so the handler is never abandoned midway.
func (s *Server) send(logger *slog.Logger, sink stream.Sink, event string, payload any) {
	if err := sink.Send(event, payload); err != nil {
		logger.Debug("MCP stream write failed", "event", event, "error", err)
	}
}

func errorEnvelope(id json.RawMessage, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	}
}

// methodLabel bounds metrics cardinality to the known methods.
func (s *Server) methodLabel(method string, perr *ProtocolError) string {
	if perr != nil {
		return "invalid"
	}
	if _, ok := s.handlers[method]; ok {
		return method
	}
	return "unknown"
}

// one yields a single result.
func one(v any) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		yield(v, nil)
	}
}

// fail yields a single error.
func fail(err error) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		yield(nil, err)
	}
}
