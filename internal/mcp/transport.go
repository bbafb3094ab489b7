package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// PathMCP is the HTTP endpoint for JSON-RPC messages and the SSE stream.
const PathMCP = "/mcp"

const maxMessage = 1024 * 1024

// Run serves line-delimited JSON-RPC over the configured reader and writer
// until the input ends or ctx is cancelled. Requests are handled in order.
func (s *Server) Run(ctx context.Context) error {
	lines := make(chan inbound)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		r := bufio.NewReaderSize(s.in, 64*1024)
		for {
			line, tooLong, err := readLine(r, maxMessage)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
			select {
			case lines <- inbound{data: line, tooLong: tooLong}:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.log.Info("mcp.stdio_started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("mcp.stdio_stopped", zap.String("reason", "cancelled"))
			return nil
		case msg, ok := <-lines:
			if !ok {
				var err error
				select {
				case err = <-readErr:
				default:
				}
				if err != nil {
					s.log.Error("mcp.stdio_read_failed", zap.Error(err))
					return fmt.Errorf("read stdin: %w", err)
				}
				s.log.Info("mcp.stdio_stopped", zap.String("reason", "eof"))
				return nil
			}
			if msg.tooLong {
				s.log.Warn("mcp.message_too_large", zap.Int("limit", maxMessage))
				s.send(errorResponse(nil, CodeInvalidRequest, "Invalid Request: message too large", nil))
				continue
			}
			if len(msg.data) == 0 {
				continue
			}
			if resp := s.Handle(ctx, msg.data); resp != nil {
				s.send(resp)
			}
		}
	}
}

type inbound struct {
	data    []byte
	tooLong bool
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed to its end and reported with tooLong set and no data.
func readLine(r *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(bytes.TrimRight(line, "\r\n")) > limit {
				tooLong = true
				line = nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !(errors.Is(err, io.EOF) && (len(line) > 0 || tooLong)) {
			return nil, false, err
		}
		return bytes.TrimRight(line, "\r\n"), tooLong, nil
	}
}

func (s *Server) send(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("mcp.encode_failed", zap.Error(err))
		data, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "Internal error: "+err.Error(), nil))
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintln(s.out, string(data))
}

// HTTPHandler serves JSON-RPC over HTTP POST, a heartbeat stream over SSE,
// CORS preflight, health and metrics.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathMCP, s.handlePost)
	mux.HandleFunc("GET "+PathMCP, s.handleEvents)
	mux.HandleFunc("OPTIONS "+PathMCP, s.handlePreflight)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "MCP-Visio"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessage+1))
	if err != nil {
		writeJSON(w, http.StatusOK, errorResponse(nil, CodeParseError, "Parse error", err.Error()))
		return
	}
	if len(body) > maxMessage {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse(nil, CodeInvalidRequest, "Invalid Request: message too large", nil))
		return
	}

	resp := s.Handle(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents keeps an SSE stream open, announcing the connection and
// then sending a numbered heartbeat until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	setCORS(h)
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, map[string]interface{}{"type": "connection_established"}); err != nil {
		return
	}
	flusher.Flush()
	s.log.Debug("mcp.sse_connected", zap.String("remote", r.RemoteAddr))

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for count := 1; ; count++ {
		select {
		case <-r.Context().Done():
			s.log.Debug("mcp.sse_closed", zap.String("remote", r.RemoteAddr), zap.Int("heartbeats", count-1))
			return
		case <-ticker.C:
			if err := writeEvent(w, map[string]interface{}{"type": "heartbeat", "count": count}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves HTTPHandler on addr until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.HTTPHandler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		// SSE handlers return when their request context ends.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("mcp.http_listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("mcp.http_shutdown")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return srv.Close()
		}
		return nil
	}
}
