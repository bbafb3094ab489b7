// Package relay carries diagram operations over HTTP between a front-end
// dispatcher and the host that owns the diagram engine.
//
// The Server runs on the engine host and exposes one route per operation.
// The Client runs next to the dispatcher and satisfies the same operation
// set as *ops.Service, so the dispatcher does not care which one it has.
//
// Operation outcomes, including domain failures, travel as ops.Result
// bodies with status 200. Only transport problems (bad body, busy engine,
// panics) use other status codes.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/metrics"
	"github.com/mcp-visio/mcpvisio/internal/ops"
)

// Route paths.
const (
	PathHealth         = "/health"
	PathConnect        = "/connect"
	PathActiveDocument = "/active-document"
	PathAnalyze        = "/analyze-diagram"
	PathModify         = "/modify-diagram"
	PathVerify         = "/verify-connections"
	PathCreate         = "/create-diagram"
	PathSave           = "/save-diagram"
	PathStencils       = "/available-stencils"
	PathShapes         = "/get-shapes"
	PathExport         = "/export-diagram"
	PathMasters        = "/available-masters"
	PathMetrics        = "/metrics"
)

// HeaderRequestID correlates a relay call across both processes' logs.
const HeaderRequestID = "X-Request-ID"

const maxBody = 8 << 20

var errBadBody = errors.New("invalid request body")

// Server serves diagram operations from one ops.Service.
type Server struct {
	svc     *ops.Service
	log     *zap.Logger
	metrics *metrics.Metrics
	handler http.Handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.log = l.Named("relay") }
}

// WithServerMetrics records per-route metrics and serves /metrics.
func WithServerMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer returns a relay server over svc.
func NewServer(svc *ops.Service, opts ...ServerOption) *Server {
	s := &Server{svc: svc, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.middleware(s.routes())
	return s
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

type opFunc func(ctx context.Context, body []byte) (*ops.Result, error)

// bind decodes the request body into P before calling fn. An empty body
// leaves P at its zero value so defaults apply.
func bind[P any](fn func(context.Context, P) (*ops.Result, error)) opFunc {
	return func(ctx context.Context, body []byte) (*ops.Result, error) {
		var p P
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", errBadBody, err)
			}
		}
		return fn(ctx, p)
	}
}

func noParams(fn func(context.Context) (*ops.Result, error)) opFunc {
	return func(ctx context.Context, _ []byte) (*ops.Result, error) {
		return fn(ctx)
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathHealth, s.handleHealth)
	mux.HandleFunc("GET "+PathConnect, s.handleConnect)

	s.op(mux, http.MethodGet, PathActiveDocument, noParams(s.svc.ActiveDocument))
	s.op(mux, http.MethodPost, PathAnalyze, bind(s.svc.Analyze))
	s.op(mux, http.MethodPost, PathModify, bind(s.svc.Modify))
	s.op(mux, http.MethodPost, PathVerify, bind(s.svc.VerifyConnections))
	s.op(mux, http.MethodPost, PathCreate, bind(s.svc.Create))
	s.op(mux, http.MethodPost, PathSave, bind(s.svc.Save))
	s.op(mux, http.MethodGet, PathStencils, noParams(s.svc.Stencils))
	s.op(mux, http.MethodPost, PathShapes, bind(s.svc.ShapesOnPage))
	s.op(mux, http.MethodPost, PathExport, bind(s.svc.Export))
	s.op(mux, http.MethodGet, PathMasters, noParams(s.svc.Masters))

	if s.metrics != nil {
		mux.Handle("GET "+PathMetrics, s.metrics.Handler())
	}
	return mux
}

func (s *Server) op(mux *http.ServeMux, method, path string, fn opFunc) {
	mux.HandleFunc(method+" "+path, func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ops.Fail(diagerr.Wrap(diagerr.InvalidParams, err, "failed to read request body")))
			return
		}

		res, err := fn(r.Context(), body)
		switch {
		case errors.Is(err, errBadBody):
			writeJSON(w, http.StatusBadRequest, ops.Fail(diagerr.Wrap(diagerr.InvalidParams, err, "invalid request body")))
		case err != nil:
			// The caller gave up while queued for the engine.
			writeJSON(w, http.StatusServiceUnavailable, ops.Fail(diagerr.Wrap(diagerr.RelayUnavailable, err, "engine unavailable")))
		default:
			writeJSON(w, http.StatusOK, res)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "mcpvisio relay"})
}

// handleConnect reports whether the engine is usable. The in-process engine
// is always attached, so this only fails when the engine cannot be
// acquired before the request ends.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Stencils(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Connected to diagram engine"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				s.log.Error("relay.panic", zap.String("request_id", reqID), zap.String("path", r.URL.Path), zap.Any("panic", p), zap.Stack("stack"))
				writeJSON(rec, http.StatusInternalServerError, ops.Fail(diagerr.New(diagerr.Internal, "internal error: %v", p)))
			}

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			took := time.Since(start)
			s.metrics.RecordRelay(route, strconv.Itoa(rec.status), took)
			s.log.Debug("relay.request",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("took", took))
		}()

		next.ServeHTTP(rec, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("relay.listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("relay.shutdown")
		return srv.Shutdown(shutdownCtx)
	}
}
