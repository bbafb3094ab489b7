package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/diagram/local"
	"github.com/mcp-visio/mcpvisio/internal/metrics"
	"github.com/mcp-visio/mcpvisio/internal/ops"
	"github.com/mcp-visio/mcpvisio/internal/target"
)

func newRelay(t *testing.T, opts ...ServerOption) (*httptest.Server, *ops.Service) {
	t.Helper()
	e := local.New(local.Options{})
	svc := ops.New(&target.Resolver{Engine: e, Style: target.Posix}, ops.WithLogger(zaptest.NewLogger(t)))
	srv := httptest.NewServer(NewServer(svc, append([]ServerOption{WithServerLogger(zaptest.NewLogger(t))}, opts...)...).Handler())
	t.Cleanup(srv.Close)
	return srv, svc
}

func dataMap(t *testing.T, res *ops.Result) map[string]interface{} {
	t.Helper()
	require.True(t, res.OK(), "%s: %s", res.Code, res.Message)
	m, ok := res.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", res.Data)
	return m
}

func TestClientRoundTrip(t *testing.T) {
	srv, _ := newRelay(t)
	c := NewClient(srv.URL+"/", WithClientLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	assert.False(t, c.Connected())
	res, err := c.Create(ctx, ops.CreateParams{})
	require.NoError(t, err)
	assert.Equal(t, "Drawing1", dataMap(t, res)["name"])
	assert.True(t, c.Connected())

	res, err = c.Modify(ctx, ops.ModifyParams{
		FilePath:  "active",
		Operation: "add_shape",
		ShapeData: json.RawMessage(`{"master_name":"Rectangle","text":"over the wire"}`),
	})
	require.NoError(t, err)
	id := dataMap(t, res)["shape_id"]

	res, err = c.ShapesOnPage(ctx, ops.ShapesParams{})
	require.NoError(t, err)
	shapes := dataMap(t, res)["shapes"].([]interface{})
	require.Len(t, shapes, 1)
	first := shapes[0].(map[string]interface{})
	assert.Equal(t, id, first["id"])
	assert.Equal(t, "over the wire", first["text"])

	res, err = c.Masters(ctx)
	require.NoError(t, err)
	assert.Contains(t, dataMap(t, res)["masters_by_stencil"], ops.BasicStencil)
}

func TestClientPassesDomainErrorsThrough(t *testing.T) {
	srv, _ := newRelay(t)
	c := NewClient(srv.URL)

	res, err := c.Analyze(context.Background(), ops.AnalyzeParams{FilePath: "active"})
	require.NoError(t, err)
	assert.Equal(t, ops.StatusError, res.Status)
	assert.Equal(t, diagerr.NoActiveDocument, res.Code)

	res, err = c.Export(context.Background(), ops.ExportParams{Format: "bmp"})
	require.NoError(t, err)
	assert.Equal(t, diagerr.UnsupportedFormat, res.Code)
}

func TestServerRejectsBadBody(t *testing.T) {
	srv, _ := newRelay(t)

	resp, err := http.Post(srv.URL+PathModify, "application/json", strings.NewReader(`{"file_path":`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var res ops.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, diagerr.InvalidParams, res.Code)
}

func TestServerRequestID(t *testing.T) {
	srv, _ := newRelay(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+PathHealth, nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(HeaderRequestID))

	resp, err = http.Get(srv.URL + PathHealth)
	require.NoError(t, err)
	resp.Body.Close()
	_, err = uuid.Parse(resp.Header.Get(HeaderRequestID))
	assert.NoError(t, err)
}

func TestServerMethodRouting(t *testing.T) {
	srv, _ := newRelay(t)

	resp, err := http.Get(srv.URL + PathModify)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerRecoversPanics(t *testing.T) {
	s := &Server{log: zaptest.NewLogger(t)}
	h := s.middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var res ops.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, diagerr.Internal, res.Code)
	assert.Contains(t, res.Message, "boom")
}

func TestServerMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	srv, _ := newRelay(t, WithServerMetrics(m))

	resp, err := http.Get(srv.URL + PathHealth)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + PathMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientReconnectsOnDemand(t *testing.T) {
	var healthy atomic.Bool
	_, svc := newRelay(t)
	inner := NewServer(svc).Handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathHealth && !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Stencils(context.Background())
	require.Error(t, err)
	assert.Equal(t, diagerr.RelayUnavailable, diagerr.CodeOf(err))
	assert.False(t, c.Connected())

	healthy.Store(true)
	res, err := c.Stencils(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.True(t, c.Connected())
}

func TestClientTimeoutIsTransportError(t *testing.T) {
	_, svc := newRelay(t)
	inner := NewServer(svc).Handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathActiveDocument {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTimeouts(Timeouts{Query: 50 * time.Millisecond}))
	_, err := c.ActiveDocument(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, diagerr.RelayUnavailable, diagerr.CodeOf(err))
	assert.False(t, c.Connected(), "a timed out call marks the client disconnected")
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, WithTimeouts(Timeouts{Probe: time.Second}))
	_, err := c.Masters(context.Background())
	require.Error(t, err)
	assert.Equal(t, diagerr.RelayUnavailable, diagerr.CodeOf(err))
}
