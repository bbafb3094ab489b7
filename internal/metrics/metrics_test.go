package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRPC(t *testing.T) {
	m := New()
	m.RecordRPC("ping", "success", 10*time.Millisecond)
	m.RecordRPC("ping", "success", 10*time.Millisecond)
	m.RecordRPC("ping", "-32601", time.Millisecond)

	if got := testutil.ToFloat64(m.RPCRequestsTotal.WithLabelValues("ping", "success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RPCRequestsTotal.WithLabelValues("ping", "-32601")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestInFlight(t *testing.T) {
	m := New()
	done := m.InFlight()
	if got := testutil.ToFloat64(m.RPCRequestsInFlight); got != 1 {
		t.Fatalf("in flight = %v, want 1", got)
	}
	done()
	if got := testutil.ToFloat64(m.RPCRequestsInFlight); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRPC("ping", "success", 0)
	m.RecordRelay("/health", "200", 0)
	m.RecordRelayClientError("/health")
	m.InFlight()()
}

func TestHandlerServesOwnRegistry(t *testing.T) {
	a, b := New(), New()
	a.RecordRelay("/health", "200", time.Millisecond)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if strings.Contains(string(body), `route="/health"`) {
		t.Error("registries should be independent")
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ = io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "mcpvisio_relay_requests_total") {
		t.Error("expected relay counter in exposition")
	}
}
