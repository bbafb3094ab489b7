package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/ops"
)

type caller func(ctx context.Context, b Backend, params json.RawMessage) (*ops.Result, error)

// method is one entry of the dispatch table. Schema describes params for
// the manifest; Required lists the fields checked before call runs.
type method struct {
	Name        string
	Description string
	Schema      schema
	Required    []string
	call        caller
}

// missing returns the required fields that are absent, null or blank.
func (m *method) missing(fields map[string]json.RawMessage) []string {
	var out []string
	for _, name := range m.Required {
		v, ok := fields[name]
		v = bytes.TrimSpace(v)
		if !ok || len(v) == 0 || bytes.Equal(v, []byte("null")) {
			out = append(out, name)
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil && strings.TrimSpace(s) == "" {
			out = append(out, name)
		}
	}
	return out
}

// Tool is an MCP tool definition as listed by tools/list.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema schema `json:"inputSchema"`
}

// ToolResult is the tools/call result.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ToolContent is one content block of a tool result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ManifestTool is a tool as described by get_client_info.
type ManifestTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  schema `json:"parameters"`
}

// Manifest is the get_client_info result.
type Manifest struct {
	ServerInfo   ServerInfo      `json:"server_info"`
	Capabilities map[string]bool `json:"capabilities"`
	Tools        []ManifestTool  `json:"tools"`
}

func (s *Server) manifest() Manifest {
	tools := make([]ManifestTool, 0, len(s.methods))
	for _, m := range s.methods {
		tools = append(tools, ManifestTool{Name: m.Name, Description: m.Description, Parameters: m.inputSchema()})
	}
	return Manifest{
		ServerInfo:   ServerInfo{Name: ServerName, Version: ServerVersion},
		Capabilities: map[string]bool{"supports_tool_calls": true},
		Tools:        tools,
	}
}

func (s *Server) tools() []Tool {
	tools := make([]Tool, 0, len(s.methods))
	for _, m := range s.methods {
		tools = append(tools, Tool{Name: m.Name, Description: m.Description, InputSchema: m.inputSchema()})
	}
	return tools
}

func (m *method) inputSchema() schema {
	props := m.Schema
	if props == nil {
		props = schema{}
	}
	out := schema{"type": "object", "properties": props}
	if len(m.Required) > 0 {
		out["required"] = m.Required
	}
	return out
}

type schema = map[string]interface{}

func str(desc string) schema {
	return schema{"type": "string", "description": desc}
}

func number(desc string) schema {
	return schema{"type": "number", "description": desc}
}

func pageIndex(desc string) schema {
	return schema{"type": "integer", "description": desc, "default": ops.DefaultPageIndex}
}

func shapeID(desc string) schema {
	return schema{"type": "integer", "description": desc}
}

func object(title, desc string, props schema, required ...string) schema {
	out := schema{"type": "object", "properties": props}
	if title != "" {
		out["title"] = title
	}
	if desc != "" {
		out["description"] = desc
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func withDefault(s schema, v interface{}) schema {
	s["default"] = v
	return s
}

func withEnum(s schema, values ...string) schema {
	s["enum"] = values
	return s
}

const targetDesc = "File path to the Visio diagram or 'active' to use the active document"

func position(desc string) schema {
	return object("", desc, schema{
		"x": number("X-coordinate of the shape"),
		"y": number("Y-coordinate of the shape"),
	})
}

func size(desc string) schema {
	return object("", desc, schema{
		"width":  number("Width of the shape"),
		"height": number("Height of the shape"),
	})
}

func shapeDataSchema() schema {
	return schema{
		"type":        "object",
		"description": "Data for the shape operation",
		"oneOf": []schema{
			object("Add Shape Data", "", schema{
				"master_name":  str("Name of the master shape to add (e.g., 'Rectangle', 'Circle', 'Ellipse', 'Triangle', 'Diamond')"),
				"stencil_name": withDefault(str("Name of the stencil containing the master shape (e.g., 'Basic Shapes.vss')"), ops.DefaultStencil),
				"position":     position("Position of the shape"),
				"size":         size("Size of the shape"),
				"text":         str("Text to display in the shape"),
				"page_index":   pageIndex("Index of the page to add the shape to"),
			}, "master_name"),
			object("Update Shape Data", "", schema{
				"shape_id":   shapeID("ID of the shape to update"),
				"text":       str("New text for the shape"),
				"position":   position("New position of the shape"),
				"size":       size("New size of the shape"),
				"page_index": pageIndex("Index of the page containing the shape"),
			}, "shape_id"),
			object("Delete Shape Data", "", schema{
				"shape_id":   shapeID("ID of the shape to delete"),
				"page_index": pageIndex("Index of the page containing the shape"),
			}, "shape_id"),
			object("Add Connector Data", "", schema{
				"from_shape_id": shapeID("ID of the shape to connect from"),
				"to_shape_id":   shapeID("ID of the shape to connect to"),
				"text":          str("Text to display on the connector"),
				"page_index":    pageIndex("Index of the page containing the shapes"),
			}, "from_shape_id", "to_shape_id"),
			object("Delete Connection Data", "", schema{
				"connector_id": shapeID("ID of the connector to delete"),
				"page_index":   pageIndex("Index of the page containing the connector"),
			}, "connector_id"),
		},
	}
}

// methodTable lists the diagram methods in manifest order.
func methodTable() []*method {
	return []*method{
		{
			Name:        "analyze_visio_diagram",
			Description: "Analyze a Visio diagram to extract information about shapes, connections, and layout",
			Schema: schema{
				"file_path": str(targetDesc),
				"analysis_type": withDefault(withEnum(str("Type of analysis to perform"),
					ops.AnalyzeStructure, ops.AnalyzeConnections, ops.AnalyzeText, ops.AnalyzeAll), ops.DefaultAnalysisType),
			},
			Required: []string{"file_path"},
			call:     with(Backend.Analyze),
		},
		{
			Name:        "modify_visio_diagram",
			Description: "Modify a Visio diagram by adding, updating, or deleting shapes and connections",
			Schema: schema{
				"file_path":  str(targetDesc),
				"operation":  withEnum(str("Type of modification to perform"), ops.Operations...),
				"shape_data": shapeDataSchema(),
			},
			Required: []string{"file_path", "operation", "shape_data"},
			call:     callModify,
		},
		{
			Name:        "get_active_document",
			Description: "Get information about the currently active Visio document",
			call:        none(Backend.ActiveDocument),
		},
		{
			Name:        "verify_connections",
			Description: "Verify connections between shapes in a Visio diagram",
			Schema: schema{
				"file_path": str(targetDesc),
				"shape_ids": schema{
					"type":        "array",
					"description": "List of shape IDs to verify connections for",
					"items":       schema{"type": "string"},
				},
			},
			Required: []string{"file_path"},
			call:     with(Backend.VerifyConnections),
		},
		{
			Name:        "create_new_diagram",
			Description: "Create a new Visio diagram from a template",
			Schema: schema{
				"template":  withDefault(str("Template to use for the new diagram"), ops.DefaultTemplate),
				"save_path": str("Path where the new diagram should be saved"),
			},
			call: with(Backend.Create),
		},
		{
			Name:        "save_diagram",
			Description: "Save the current Visio diagram",
			Schema: schema{
				"file_path": str("Path to save the diagram, or 'active' to save the currently active document"),
			},
			call: with(Backend.Save),
		},
		{
			Name:        "get_available_stencils",
			Description: "Get a list of available Visio stencils",
			call:        none(Backend.Stencils),
		},
		{
			Name:        "get_shapes_on_page",
			Description: "Get detailed information about all shapes on a page",
			Schema: schema{
				"file_path":  withDefault(str("Path to the Visio diagram or 'active' to use the active document"), "active"),
				"page_index": pageIndex("Index of the page to get shapes from"),
			},
			call: with(Backend.ShapesOnPage),
		},
		{
			Name:        "export_diagram",
			Description: "Export a Visio diagram to another format (PNG, JPG, PDF, SVG)",
			Schema: schema{
				"file_path":   withDefault(str("Path to the Visio diagram or 'active' to use the active document"), "active"),
				"format":      withDefault(withEnum(str("Export format"), "png", "jpg", "pdf", "svg"), ops.DefaultFormat),
				"output_path": str("Path to save the exported file"),
			},
			call: with(Backend.Export),
		},
		{
			Name:        "get_available_masters",
			Description: "Get a list of available master shapes from all open stencils",
			call:        none(Backend.Masters),
		},
	}
}

// with decodes params into P and calls fn.
func with[P any](fn func(Backend, context.Context, P) (*ops.Result, error)) caller {
	return func(ctx context.Context, b Backend, params json.RawMessage) (*ops.Result, error) {
		var p P
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("%v", err)
		}
		return fn(b, ctx, p)
	}
}

func none(fn func(Backend, context.Context) (*ops.Result, error)) caller {
	return func(ctx context.Context, b Backend, _ json.RawMessage) (*ops.Result, error) {
		return fn(b, ctx)
	}
}

// callModify rejects malformed shape data for known operations before the
// backend sees it. Unknown operation tags are left to the backend, which
// reports them as an operation result.
func callModify(ctx context.Context, b Backend, params json.RawMessage) (*ops.Result, error) {
	var p ops.ModifyParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams("%v", err)
	}
	if _, err := p.Op(); err != nil && diagerr.Is(err, diagerr.InvalidParams) {
		rpcErr := invalidParams("%v", err)
		var de *diagerr.Error
		if errors.As(err, &de) && de.Details != nil {
			rpcErr.Data = de.Details
		}
		return nil, rpcErr
	}
	return b.Modify(ctx, p)
}
