package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/diagram/local"
	"github.com/mcp-visio/mcpvisio/internal/journal"
	"github.com/mcp-visio/mcpvisio/internal/metrics"
	"github.com/mcp-visio/mcpvisio/internal/ops"
	"github.com/mcp-visio/mcpvisio/internal/target"
)

func newLocalBackend(t *testing.T) *ops.Service {
	t.Helper()
	r := &target.Resolver{Engine: local.New(local.Options{}), Style: target.Posix}
	return ops.New(r, ops.WithLogger(zaptest.NewLogger(t)))
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return NewServer(newLocalBackend(t), opts...)
}

// wireResponse is a response as a client decodes it.
type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func handle(t *testing.T, s *Server, raw string) *wireResponse {
	t.Helper()
	resp := s.Handle(context.Background(), []byte(raw))
	if resp == nil {
		t.Fatalf("no response for %s", raw)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var out wireResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return &out
}

func request(id, method, params string) string {
	if params == "" {
		return `{"jsonrpc":"2.0","id":` + id + `,"method":"` + method + `"}`
	}
	return `{"jsonrpc":"2.0","id":` + id + `,"method":"` + method + `","params":` + params + `}`
}

func expectRPCError(t *testing.T, resp *wireResponse, code int, message string) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error %d, got result %s", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Errorf("code = %d, want %d (%s)", resp.Error.Code, code, resp.Error.Message)
	}
	if message != "" && resp.Error.Message != message {
		t.Errorf("message = %q, want %q", resp.Error.Message, message)
	}
}

func decodeOpResult(t *testing.T, resp *wireResponse) ops.Result {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	var r ops.Result
	if err := json.Unmarshal(resp.Result, &r); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return r
}

func TestIDEchoedUnchanged(t *testing.T) {
	s := newTestServer(t)
	for _, id := range []string{`7`, `"req-7"`, `1.5`, `-3`, `"a \"quoted\" id"`} {
		for _, method := range []string{"ping", "get_available_stencils", "nope"} {
			resp := handle(t, s, request(id, method, ""))
			if string(resp.ID) != id {
				t.Errorf("%s: id = %s, want %s", method, resp.ID, id)
			}
			if resp.JSONRPC != "2.0" {
				t.Errorf("%s: jsonrpc = %q", method, resp.JSONRPC)
			}
		}
	}
}

func TestPingAlwaysPongs(t *testing.T) {
	s := newTestServer(t)
	for _, params := range []string{"", "null", `{}`, `{"anything":[1,2,3]}`, `[1]`} {
		resp := handle(t, s, request("1", "ping", params))
		if resp.Error != nil || string(resp.Result) != `"pong"` {
			t.Errorf("params %s: result = %s, error = %+v", params, resp.Result, resp.Error)
		}
	}
}

func TestInvalidVersion(t *testing.T) {
	s := newTestServer(t)
	for _, raw := range []string{
		`{"jsonrpc":"1.0","id":4,"method":"ping"}`,
		`{"id":4,"method":"ping"}`,
	} {
		resp := handle(t, s, raw)
		expectRPCError(t, resp, CodeInvalidRequest, "Invalid Request: jsonrpc version must be 2.0")
		if string(resp.ID) != "4" {
			t.Errorf("id = %s", resp.ID)
		}
	}
}

func TestUnknownMethod(t *testing.T) {
	s := newTestServer(t)
	expectRPCError(t, handle(t, s, request("1", "draw_unicorn", "")), CodeMethodNotFound, "Method 'draw_unicorn' not found")
}

func TestParseErrors(t *testing.T) {
	s := newTestServer(t)

	resp := handle(t, s, `{"jsonrpc":"2.0",`)
	expectRPCError(t, resp, CodeParseError, "Parse error")
	if string(resp.ID) != "null" {
		t.Errorf("id = %s, want null", resp.ID)
	}

	expectRPCError(t, handle(t, s, `[1,2]`), CodeInvalidRequest, "")
}

func TestMissingRequiredParams(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		method string
		params string
		want   string
	}{
		{"analyze_visio_diagram", "", "Invalid params: file_path is required"},
		{"analyze_visio_diagram", `{"file_path":""}`, "Invalid params: file_path is required"},
		{"analyze_visio_diagram", `{"file_path":"   "}`, "Invalid params: file_path is required"},
		{"verify_connections", `null`, "Invalid params: file_path is required"},
		{"verify_connections", `{"file_path":null}`, "Invalid params: file_path is required"},
		{"modify_visio_diagram", `{"shape_data":{}}`, "Invalid params: file_path and operation are required"},
		{"modify_visio_diagram", `{}`, "Invalid params: file_path, operation and shape_data are required"},
		{"analyze_visio_diagram", `["active"]`, "Invalid params: params must be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.params, func(t *testing.T) {
			expectRPCError(t, handle(t, s, request("9", tt.method, tt.params)), CodeInvalidParams, tt.want)
		})
	}
}

func TestWrongParamTypeIsInvalidParams(t *testing.T) {
	s := newTestServer(t)
	resp := handle(t, s, request("1", "analyze_visio_diagram", `{"file_path":42}`))
	expectRPCError(t, resp, CodeInvalidParams, "")
}

func TestModifyKnownOperationMissingFields(t *testing.T) {
	s := newTestServer(t)
	resp := handle(t, s, request("1", "modify_visio_diagram",
		`{"file_path":"active","operation":"add_connection","shape_data":{"from_shape_id":1}}`))
	expectRPCError(t, resp, CodeInvalidParams, "")
	if !strings.Contains(resp.Error.Message, "to_shape_id") {
		t.Errorf("message = %q", resp.Error.Message)
	}
	data, _ := resp.Error.Data.(map[string]interface{})
	if data == nil || data["missing"] == nil {
		t.Errorf("data = %#v", resp.Error.Data)
	}
}

func TestModifyUnknownOperationIsResult(t *testing.T) {
	s := newTestServer(t)
	r := decodeOpResult(t, handle(t, s, request("1", "modify_visio_diagram",
		`{"file_path":"active","operation":"explode","shape_data":{}}`)))
	if r.Status != ops.StatusError || r.Code != diagerr.UnknownOperation {
		t.Errorf("result = %+v", r)
	}
}

func TestActiveWithNothingOpenIsNotInternal(t *testing.T) {
	s := newTestServer(t)
	r := decodeOpResult(t, handle(t, s, request("1", "analyze_visio_diagram", `{"file_path":"active"}`)))
	if r.Code != diagerr.NoActiveDocument {
		t.Errorf("code = %s, want %s", r.Code, diagerr.NoActiveDocument)
	}
}

func TestNotificationsGetNoResponse(t *testing.T) {
	s := newTestServer(t)
	for _, raw := range []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"initialized"}`,
		`{"jsonrpc":"2.0","method":"ping"}`,
		`{"jsonrpc":"2.0","method":"no_such_method"}`,
	} {
		if resp := s.Handle(context.Background(), []byte(raw)); resp != nil {
			t.Errorf("%s: expected no response, got %+v", raw, resp)
		}
	}
}

func TestGetClientInfoManifest(t *testing.T) {
	s := newTestServer(t)
	resp := handle(t, s, request("1", "get_client_info", `{"client_info":{"name":"test-agent"}}`))
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}
	var m Manifest
	if err := json.Unmarshal(resp.Result, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.ServerInfo.Name != "MCP-Visio Server" || m.ServerInfo.Version != "1.0.0" {
		t.Errorf("server_info = %+v", m.ServerInfo)
	}
	if !m.Capabilities["supports_tool_calls"] {
		t.Error("supports_tool_calls not advertised")
	}

	want := []string{
		"analyze_visio_diagram", "modify_visio_diagram", "get_active_document", "verify_connections",
		"create_new_diagram", "save_diagram", "get_available_stencils", "get_shapes_on_page",
		"export_diagram", "get_available_masters",
	}
	if len(m.Tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(m.Tools), len(want))
	}
	for i, name := range want {
		if m.Tools[i].Name != name {
			t.Errorf("tool %d = %s, want %s", i, m.Tools[i].Name, name)
		}
		if m.Tools[i].Parameters["type"] != "object" {
			t.Errorf("%s: parameters type = %v", name, m.Tools[i].Parameters["type"])
		}
	}

	modify := m.Tools[1].Parameters
	required, _ := modify["required"].([]interface{})
	if len(required) != 3 || required[2] != "shape_data" {
		t.Errorf("modify required = %v", modify["required"])
	}
	props := modify["properties"].(map[string]interface{})
	shapeData := props["shape_data"].(map[string]interface{})
	if variants, _ := shapeData["oneOf"].([]interface{}); len(variants) != 5 {
		t.Errorf("shape_data variants = %d", len(variants))
	}
}

func TestInitializeAndToolsList(t *testing.T) {
	s := newTestServer(t)

	var init struct {
		ProtocolVersion string     `json:"protocolVersion"`
		ServerInfo      ServerInfo `json:"serverInfo"`
	}
	resp := handle(t, s, request("1", "initialize", `{"protocolVersion":"2024-11-05"}`))
	if err := json.Unmarshal(resp.Result, &init); err != nil {
		t.Fatal(err)
	}
	if init.ProtocolVersion != ProtocolVersion || init.ServerInfo.Name != ServerName {
		t.Errorf("initialize = %+v", init)
	}

	var list struct {
		Tools []Tool `json:"tools"`
	}
	resp = handle(t, s, request("2", "tools/list", ""))
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Tools) != 10 {
		t.Fatalf("got %d tools", len(list.Tools))
	}
	for _, tool := range list.Tools {
		if tool.InputSchema["type"] != "object" || tool.Description == "" {
			t.Errorf("tool %s incomplete: %+v", tool.Name, tool)
		}
	}
}

func TestToolsCall(t *testing.T) {
	s := newTestServer(t)

	var tr ToolResult
	resp := handle(t, s, request("1", "tools/call", `{"name":"get_active_document","arguments":{}}`))
	if err := json.Unmarshal(resp.Result, &tr); err != nil {
		t.Fatal(err)
	}
	if !tr.IsError || len(tr.Content) != 1 || !strings.Contains(tr.Content[0].Text, string(diagerr.NoActiveDocument)) {
		t.Errorf("tool result = %+v", tr)
	}

	resp = handle(t, s, request("2", "tools/call", `{"name":"create_new_diagram"}`))
	tr = ToolResult{}
	if err := json.Unmarshal(resp.Result, &tr); err != nil {
		t.Fatal(err)
	}
	if tr.IsError {
		t.Errorf("create failed: %+v", tr)
	}
	var r ops.Result
	if err := json.Unmarshal([]byte(tr.Content[0].Text), &r); err != nil || !r.OK() {
		t.Errorf("content is not a success result: %s (%v)", tr.Content[0].Text, err)
	}

	expectRPCError(t, handle(t, s, request("3", "tools/call", `{"name":"teleport"}`)), CodeInvalidParams, "Invalid params: unknown tool: teleport")
	expectRPCError(t, handle(t, s, request("4", "tools/call", `{"name":"verify_connections","arguments":{}}`)), CodeInvalidParams, "Invalid params: file_path is required")
}

type stubBackend struct {
	Backend
	stencils func(ctx context.Context) (*ops.Result, error)
}

func (b stubBackend) Stencils(ctx context.Context) (*ops.Result, error) {
	return b.stencils(ctx)
}

func TestPanicBecomesInternalError(t *testing.T) {
	s := NewServer(stubBackend{stencils: func(context.Context) (*ops.Result, error) {
		panic("engine exploded")
	}}, WithLogger(zaptest.NewLogger(t)))

	resp := handle(t, s, request(`"p"`, "get_available_stencils", ""))
	expectRPCError(t, resp, CodeInternalError, "Internal error: engine exploded")
	if string(resp.ID) != `"p"` {
		t.Errorf("id = %s", resp.ID)
	}

	// The server keeps serving.
	if resp := handle(t, s, request("2", "ping", "")); resp.Error != nil {
		t.Errorf("ping after panic: %+v", resp.Error)
	}
}

func TestBackendTransportErrorIsInternalError(t *testing.T) {
	s := NewServer(stubBackend{stencils: func(context.Context) (*ops.Result, error) {
		return nil, diagerr.New(diagerr.RelayUnavailable, "relay unreachable")
	}})

	resp := handle(t, s, request("1", "get_available_stencils", ""))
	expectRPCError(t, resp, CodeInternalError, "Internal error: relay unreachable")
	data, _ := resp.Error.Data.(map[string]interface{})
	if data["code"] != string(diagerr.RelayUnavailable) {
		t.Errorf("data = %#v", resp.Error.Data)
	}

	var tr ToolResult
	resp = handle(t, s, request("2", "tools/call", `{"name":"get_available_stencils"}`))
	if err := json.Unmarshal(resp.Result, &tr); err != nil {
		t.Fatal(err)
	}
	if !tr.IsError || !strings.Contains(tr.Content[0].Text, "relay unreachable") {
		t.Errorf("tool result = %+v", tr)
	}
}

func TestJournalAndMetricsRecordEveryCall(t *testing.T) {
	j, err := journal.OpenInMemory(zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	m := metrics.New()
	s := newTestServer(t, WithJournal(j), WithMetrics(m))

	handle(t, s, request("1", "ping", ""))
	handle(t, s, request("2", "nope", ""))
	handle(t, s, request("3", "get_active_document", ""))

	calls, err := j.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 3 {
		t.Fatalf("journal has %d calls, want 3", len(calls))
	}
	byMethod := map[string]journal.Call{}
	for _, c := range calls {
		byMethod[c.Method] = c
	}
	if c := byMethod["ping"]; c.Outcome != journal.OutcomeSuccess || c.RequestID != "1" {
		t.Errorf("ping = %+v", c)
	}
	if c := byMethod["nope"]; c.Outcome != journal.OutcomeRPCError || c.RPCCode != CodeMethodNotFound {
		t.Errorf("nope = %+v", c)
	}
	if c := byMethod["get_active_document"]; c.Outcome != journal.OutcomeError || c.Message == "" {
		t.Errorf("get_active_document = %+v", c)
	}

	if got := testutil.ToFloat64(m.RPCRequestsTotal.WithLabelValues("ping", journal.OutcomeSuccess)); got != 1 {
		t.Errorf("ping counter = %v", got)
	}
	if got := testutil.ToFloat64(m.RPCRequestsTotal.WithLabelValues("nope", "-32601")); got != 1 {
		t.Errorf("nope counter = %v", got)
	}
	if got := testutil.ToFloat64(m.RPCRequestsInFlight); got != 0 {
		t.Errorf("in flight = %v", got)
	}
}
