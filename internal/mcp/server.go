// Package mcp provides the JSON-RPC 2.0 dispatcher that exposes diagram
// operations to LLM agents, along with its stdio and HTTP transports.
//
// The dispatcher is stateless across requests. Each request is parsed,
// checked for required parameters, routed to one Backend call and wrapped
// in a response envelope carrying the request's id unchanged.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/journal"
	"github.com/mcp-visio/mcpvisio/internal/metrics"
	"github.com/mcp-visio/mcpvisio/internal/ops"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Server identity reported by get_client_info and initialize.
const (
	ServerName      = "MCP-Visio Server"
	ServerVersion   = "1.0.0"
	ProtocolVersion = "2024-11-05"
)

// Backend runs diagram operations. *ops.Service runs them in process and
// *relay.Client forwards them to a relay host.
type Backend interface {
	ActiveDocument(ctx context.Context) (*ops.Result, error)
	Analyze(ctx context.Context, p ops.AnalyzeParams) (*ops.Result, error)
	Modify(ctx context.Context, p ops.ModifyParams) (*ops.Result, error)
	VerifyConnections(ctx context.Context, p ops.VerifyParams) (*ops.Result, error)
	Create(ctx context.Context, p ops.CreateParams) (*ops.Result, error)
	Save(ctx context.Context, p ops.SaveParams) (*ops.Result, error)
	ShapesOnPage(ctx context.Context, p ops.ShapesParams) (*ops.Result, error)
	Export(ctx context.Context, p ops.ExportParams) (*ops.Result, error)
	Stencils(ctx context.Context) (*ops.Result, error)
	Masters(ctx context.Context) (*ops.Result, error)
}

// Request represents a JSON-RPC 2.0 request. ID is kept as raw JSON so it
// is echoed byte for byte; a nil ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return &RPCError{Code: CodeInvalidParams, Message: "Invalid params: " + fmt.Sprintf(format, args...)}
}

// ServerInfo contains server identity information.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server dispatches JSON-RPC requests to a Backend.
type Server struct {
	backend   Backend
	methods   []*method
	byName    map[string]*method
	log       *zap.Logger
	journal   *journal.Journal
	metrics   *metrics.Metrics
	in        io.Reader
	out       io.Writer
	outMu     sync.Mutex
	heartbeat time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l.Named("mcp") }
}

// WithJournal records every dispatched request.
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithMetrics records request counts and latencies and serves /metrics on
// the HTTP transport.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithIO replaces stdin and stdout for the stdio transport.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in = in
		s.out = out
	}
}

// WithHeartbeat sets the SSE heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// NewServer creates a dispatcher over backend.
func NewServer(backend Backend, opts ...Option) *Server {
	s := &Server{
		backend:   backend,
		methods:   methodTable(),
		log:       zap.NewNop(),
		in:        os.Stdin,
		out:       os.Stdout,
		heartbeat: 3 * time.Second,
	}
	s.byName = make(map[string]*method, len(s.methods))
	for _, m := range s.methods {
		s.byName[m.Name] = m
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle decodes one message and dispatches it. It returns nil when no
// response should be sent.
func (s *Server) Handle(ctx context.Context, raw []byte) *Response {
	raw = bytes.TrimSpace(raw)
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		if json.Valid(raw) {
			return errorResponse(nil, CodeInvalidRequest, "Invalid Request: expected a JSON object", nil)
		}
		s.log.Warn("rpc.parse_error", zap.Error(err))
		return errorResponse(nil, CodeParseError, "Parse error", err.Error())
	}

	if req.IsNotification() {
		if !strings.HasPrefix(req.Method, "notifications/") && req.Method != "initialized" {
			s.Dispatch(ctx, &req)
		}
		return nil
	}
	return s.Dispatch(ctx, &req)
}

// Dispatch runs one decoded request. It never panics: a panic anywhere in
// the call becomes an internal error envelope.
func (s *Server) Dispatch(ctx context.Context, req *Request) (resp *Response) {
	start := time.Now()
	done := s.metrics.InFlight()
	defer done()

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("rpc.panic", zap.String("method", req.Method), zap.Any("panic", p), zap.Stack("stack"))
			resp = errorResponse(req.ID, CodeInternalError, fmt.Sprintf("Internal error: %v", p), nil)
		}
		s.record(req, resp, time.Since(start))
	}()

	if req.JSONRPC != "2.0" {
		s.log.Warn("rpc.invalid_version", zap.String("jsonrpc", req.JSONRPC))
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request: jsonrpc version must be 2.0", nil)
	}

	result, rpcErr := s.route(ctx, req)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) route(ctx context.Context, req *Request) (interface{}, *RPCError) {
	switch req.Method {
	case "get_client_info":
		s.logClientInfo(req.Params)
		return s.manifest(), nil
	case "ping":
		return "pong", nil
	case "initialize":
		return map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
			"serverInfo":      ServerInfo{Name: ServerName, Version: ServerVersion},
		}, nil
	case "tools/list":
		return map[string]interface{}{"tools": s.tools()}, nil
	case "tools/call":
		return s.callTool(ctx, req.Params)
	}

	m, ok := s.byName[req.Method]
	if !ok {
		return nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method '%s' not found", req.Method)}
	}
	res, err := s.invoke(ctx, m, req.Params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		return nil, &RPCError{
			Code:    CodeInternalError,
			Message: "Internal error: " + err.Error(),
			Data:    map[string]interface{}{"code": diagerr.CodeOf(err)},
		}
	}
	return res, nil
}

// invoke checks required parameters and calls the backend. Errors are
// either *RPCError for request problems or backend transport errors.
func (s *Server) invoke(ctx context.Context, m *method, params json.RawMessage) (*ops.Result, error) {
	if len(bytes.TrimSpace(params)) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = json.RawMessage("{}")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(params, &fields); err != nil {
		return nil, invalidParams("params must be an object")
	}
	if missing := m.missing(fields); len(missing) > 0 {
		verb := "is"
		if len(missing) > 1 {
			verb = "are"
		}
		return nil, invalidParams("%s %s required", joinFields(missing), verb)
	}
	return m.call(ctx, s.backend, params)
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams("%v", err)
	}
	m, ok := s.byName[p.Name]
	if !ok {
		return nil, invalidParams("unknown tool: %s", p.Name)
	}

	res, err := s.invoke(ctx, m, p.Arguments)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == CodeInvalidParams {
			return nil, rpcErr
		}
		return ToolResult{Content: []ToolContent{{Type: "text", Text: err.Error()}}, IsError: true}, nil
	}
	text, merr := json.Marshal(res)
	if merr != nil {
		return nil, &RPCError{Code: CodeInternalError, Message: "Internal error: " + merr.Error()}
	}
	return ToolResult{Content: []ToolContent{{Type: "text", Text: string(text)}}, IsError: !res.OK()}, nil
}

func (s *Server) logClientInfo(params json.RawMessage) {
	var p struct {
		ClientInfo map[string]interface{} `json:"client_info"`
	}
	_ = json.Unmarshal(params, &p)
	s.log.Info("rpc.client_connected", zap.Any("client_info", p.ClientInfo))
}

func (s *Server) record(req *Request, resp *Response, took time.Duration) {
	outcome, code, msg := journal.OutcomeSuccess, 0, ""
	switch {
	case resp == nil:
	case resp.Error != nil:
		outcome, code, msg = journal.OutcomeRPCError, resp.Error.Code, resp.Error.Message
	default:
		if r, ok := resp.Result.(*ops.Result); ok && !r.OK() {
			outcome, msg = journal.OutcomeError, r.Message
		}
		if tr, ok := resp.Result.(ToolResult); ok && tr.IsError {
			outcome = journal.OutcomeError
		}
	}

	label := outcome
	if code != 0 {
		label = fmt.Sprint(code)
	}
	s.metrics.RecordRPC(req.Method, label, took)
	s.log.Debug("rpc.request",
		zap.String("method", req.Method),
		zap.ByteString("id", req.ID),
		zap.String("outcome", outcome),
		zap.Duration("took", took))

	if s.journal != nil {
		err := s.journal.Record(journal.Call{
			Method:    req.Method,
			RequestID: string(req.ID),
			Duration:  took,
			Outcome:   outcome,
			RPCCode:   code,
			Message:   msg,
		})
		if err != nil {
			s.log.Warn("rpc.journal_failed", zap.Error(err))
		}
	}
}

// joinFields renders a field list as "a", "a and b" or "a, b and c".
func joinFields(fields []string) string {
	if len(fields) <= 2 {
		return strings.Join(fields, " and ")
	}
	return strings.Join(fields[:len(fields)-1], ", ") + " and " + fields[len(fields)-1]
}

func errorResponse(id json.RawMessage, code int, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	}
}
