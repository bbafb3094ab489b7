package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/metrics"
	"github.com/mcp-visio/mcpvisio/internal/ops"
)

// Timeouts bound each relay call by its expected cost.
type Timeouts struct {
	Probe     time.Duration // health and connect
	Query     time.Duration // active document, stencils, masters
	Operation time.Duration // analyze, modify, verify, create, shapes
	Persist   time.Duration // save, export
}

// DefaultTimeouts returns the standard per-class timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Probe:     5 * time.Second,
		Query:     10 * time.Second,
		Operation: 30 * time.Second,
		Persist:   60 * time.Second,
	}
}

// Client calls a relay Server. It connects lazily: a call made while
// disconnected first probes /health and /connect. Any transport failure
// marks the client disconnected so the next call probes again.
//
// Timeouts and transport failures are returned as errors carrying
// RELAY_UNAVAILABLE. Operation failures come back as error Results.
type Client struct {
	base     string
	http     *http.Client
	timeouts Timeouts
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	connected bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithTimeouts overrides the per-class timeouts. Zero fields keep the
// default.
func WithTimeouts(t Timeouts) ClientOption {
	return func(c *Client) {
		if t.Probe > 0 {
			c.timeouts.Probe = t.Probe
		}
		if t.Query > 0 {
			c.timeouts.Query = t.Query
		}
		if t.Operation > 0 {
			c.timeouts.Operation = t.Operation
		}
		if t.Persist > 0 {
			c.timeouts.Persist = t.Persist
		}
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.log = l.Named("relay") }
}

// WithClientMetrics counts transport failures.
func WithClientMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient returns a client for the relay at baseURL, for example
// "http://host.docker.internal:8051".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base:     strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		timeouts: DefaultTimeouts(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the relay address.
func (c *Client) BaseURL() string {
	return c.base
}

// Connected reports whether the last probe or call succeeded.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// Connect checks the relay's health and asks it to attach to the engine.
func (c *Client) Connect(ctx context.Context) error {
	var health struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, PathHealth, c.timeouts.Probe, nil, &health); err != nil {
		return err
	}
	if health.Status != "healthy" {
		c.setConnected(false)
		return diagerr.New(diagerr.RelayUnavailable, "relay at %s reports status %q", c.base, health.Status)
	}

	var conn struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, PathConnect, c.timeouts.Probe, nil, &conn); err != nil {
		return err
	}
	if conn.Status != "success" {
		c.setConnected(false)
		return diagerr.New(diagerr.RelayUnavailable, "relay could not attach to the engine: %s", conn.Message)
	}

	c.setConnected(true)
	c.log.Debug("relay.connected", zap.String("url", c.base))
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, timeout time.Duration, body interface{}) (*ops.Result, error) {
	if !c.Connected() {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}
	var res ops.Result
	if err := c.do(ctx, method, path, timeout, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do performs one request. Status 200 and 400 carry a decodable body;
// everything else is a transport failure.
func (c *Client) do(ctx context.Context, method, path string, timeout time.Duration, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return diagerr.Wrap(diagerr.InvalidParams, err, "failed to encode %s request", path)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return diagerr.Wrap(diagerr.RelayUnavailable, err, "bad relay request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.NewString()
	req.Header.Set(HeaderRequestID, reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportFailed(path, reqID, diagerr.Wrap(diagerr.RelayUnavailable, err, "relay %s %s failed", method, path))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return c.transportFailed(path, reqID, diagerr.Wrap(diagerr.RelayUnavailable, err, "failed to read relay response"))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return c.transportFailed(path, reqID, diagerr.New(diagerr.RelayUnavailable, "relay %s returned %s: %s", path, resp.Status, snippet(data)).
			WithDetails("status", resp.StatusCode))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return c.transportFailed(path, reqID, diagerr.Wrap(diagerr.RelayUnavailable, err, "malformed relay response from %s", path))
	}
	return nil
}

func (c *Client) transportFailed(path, reqID string, err error) error {
	c.setConnected(false)
	c.metrics.RecordRelayClientError(path)
	c.log.Warn("relay.call_failed", zap.String("path", path), zap.String("request_id", reqID), zap.Error(err))
	return err
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func (c *Client) ActiveDocument(ctx context.Context) (*ops.Result, error) {
	return c.call(ctx, http.MethodGet, PathActiveDocument, c.timeouts.Query, nil)
}

func (c *Client) Analyze(ctx context.Context, p ops.AnalyzeParams) (*ops.Result, error) {
	return c.call(ctx, http.MethodPost, PathAnalyze, c.timeouts.Operation, p)
}

func (c *Client) Modify(ctx context.Context, p ops.ModifyParams) (*ops.Result, error) {
	return c.call(ctx, http.MethodPost, PathModify, c.timeouts.Operation, p)
}

func (c *Client) VerifyConnections(ctx context.Context, p ops.VerifyParams) (*ops.Result, error) {
	return c.call(ctx, http.MethodPost, PathVerify, c.timeouts.Operation, p)
}

func (c *Client) Create(ctx context.Context, p ops.CreateParams) (*ops.Result, error) {
	return c.call(ctx, http.MethodPost, PathCreate, c.timeouts.Operation, p)
}

func (c *Client) Save(ctx context.Context, p ops.SaveParams) (*ops.Result, error) {
	return c.call(ctx, http.MethodPost, PathSave, c.timeouts.Persist, p)
}

func (c *Client) ShapesOnPage(ctx context.Context, p ops.ShapesParams) (*ops.Result, error) {
	return c.call(ctx, http.MethodPost, PathShapes, c.timeouts.Operation, p)
}

func (c *Client) Export(ctx context.Context, p ops.ExportParams) (*ops.Result, error) {
	return c.call(ctx, http.MethodPost, PathExport, c.timeouts.Persist, p)
}

func (c *Client) Stencils(ctx context.Context) (*ops.Result, error) {
	return c.call(ctx, http.MethodGet, PathStencils, c.timeouts.Query, nil)
}

func (c *Client) Masters(ctx context.Context) (*ops.Result, error) {
	return c.call(ctx, http.MethodGet, PathMasters, c.timeouts.Query, nil)
}

// String implements fmt.Stringer for log fields.
func (c *Client) String() string {
	return fmt.Sprintf("relay(%s)", c.base)
}
