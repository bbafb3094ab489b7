package mcp

import (
	"encoding/json"
	"fmt"
	"testing"
)

func callOK(t *testing.T, s *Server, method, params string, v interface{}) {
	t.Helper()
	r := decodeOpResult(t, handle(t, s, request("1", method, params)))
	if !r.OK() {
		t.Fatalf("%s failed: %s (%s)", method, r.Message, r.Code)
	}
	if v == nil {
		return
	}
	b, err := json.Marshal(r.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s data: %v", method, err)
	}
}

func addShapeRPC(t *testing.T, s *Server, shapeData string) int {
	t.Helper()
	var out struct {
		ShapeID int `json:"shape_id"`
	}
	callOK(t, s, "modify_visio_diagram", `{"file_path":"active","operation":"add_shape","shape_data":`+shapeData+`}`, &out)
	if out.ShapeID == 0 {
		t.Fatal("add_shape returned no shape_id")
	}
	return out.ShapeID
}

func TestMCPIntegration_EmptyDocumentAnalysis(t *testing.T) {
	s := newTestServer(t)
	callOK(t, s, "create_new_diagram", "", nil)

	var out struct {
		PagesCount int `json:"pages_count"`
		Pages      []struct {
			Shapes      []interface{} `json:"shapes"`
			Connections []interface{} `json:"connections"`
		} `json:"pages"`
	}
	callOK(t, s, "analyze_visio_diagram", `{"file_path":"active","analysis_type":"all"}`, &out)
	if out.PagesCount != 1 || len(out.Pages) != 1 {
		t.Fatalf("analysis = %+v", out)
	}
	if out.Pages[0].Shapes == nil || len(out.Pages[0].Shapes) != 0 {
		t.Errorf("shapes = %#v, want empty list", out.Pages[0].Shapes)
	}
	if out.Pages[0].Connections == nil || len(out.Pages[0].Connections) != 0 {
		t.Errorf("connections = %#v, want empty list", out.Pages[0].Connections)
	}
}

func TestMCPIntegration_AddShapeThenListShapes(t *testing.T) {
	s := newTestServer(t)
	callOK(t, s, "create_new_diagram", `{}`, nil)
	id := addShapeRPC(t, s, `{"master_name":"Rectangle","text":"Start","position":{"x":"2","y":3}}`)

	var out struct {
		Shapes []struct {
			ID   int    `json:"id"`
			Text string `json:"text"`
		} `json:"shapes"`
	}
	callOK(t, s, "get_shapes_on_page", `{"page_index":"1"}`, &out)
	for _, sh := range out.Shapes {
		if sh.ID == id {
			if sh.Text != "Start" {
				t.Errorf("text = %q, want Start", sh.Text)
			}
			return
		}
	}
	t.Errorf("shape %d not listed in %+v", id, out.Shapes)
}

func TestMCPIntegration_ConnectorScenario(t *testing.T) {
	s := newTestServer(t)
	callOK(t, s, "create_new_diagram", "", nil)
	rect := addShapeRPC(t, s, `{"master_name":"Rectangle","position":{"x":2,"y":4}}`)
	ellipse := addShapeRPC(t, s, `{"master_name":"Ellipse","position":{"x":6,"y":4}}`)

	var conn struct {
		ConnectorID int `json:"connector_id"`
	}
	callOK(t, s, "modify_visio_diagram",
		fmt.Sprintf(`{"file_path":"active","operation":"add_connector","shape_data":{"from_shape_id":%d,"to_shape_id":%d,"text":"next"}}`, rect, ellipse),
		&conn)

	var verify struct {
		Connections []struct {
			ConnectorID int `json:"connector_id"`
			FromShapeID int `json:"from_shape_id"`
			ToShapeID   int `json:"to_shape_id"`
		} `json:"connections"`
	}
	callOK(t, s, "verify_connections", `{"file_path":"active"}`, &verify)
	if len(verify.Connections) != 1 {
		t.Fatalf("got %d connections, want 1", len(verify.Connections))
	}
	c := verify.Connections[0]
	if c.FromShapeID != rect || c.ToShapeID != ellipse || c.ConnectorID != conn.ConnectorID {
		t.Errorf("connection = %+v, want %d -> %d via %d", c, rect, ellipse, conn.ConnectorID)
	}
}

func TestMCPIntegration_MissingFromShape(t *testing.T) {
	s := newTestServer(t)
	callOK(t, s, "create_new_diagram", "", nil)
	to := addShapeRPC(t, s, `{"master_name":"Rectangle"}`)

	r := decodeOpResult(t, handle(t, s, request("1", "modify_visio_diagram",
		fmt.Sprintf(`{"file_path":"active","operation":"add_connection","shape_data":{"from_shape_id":999,"to_shape_id":%d}}`, to))))
	if r.OK() || r.Code != "FROM_SHAPE_NOT_FOUND" {
		t.Errorf("result = %+v", r)
	}

	var out struct {
		ShapesCount int `json:"shapes_count"`
	}
	callOK(t, s, "get_shapes_on_page", "", &out)
	if out.ShapesCount != 1 {
		t.Errorf("shapes_count = %d, want 1", out.ShapesCount)
	}
}
