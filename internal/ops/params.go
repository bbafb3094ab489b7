package ops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcp-visio/mcpvisio/internal/diagerr"
)

// Defaults applied when a caller leaves a parameter out.
const (
	DefaultAnalysisType = "all"
	DefaultTemplate     = "Basic.vst"
	DefaultStencil      = "Basic Shapes.vss"
	DefaultFormat       = "png"
	DefaultPageIndex    = 1
	DefaultDropX        = 4.0
	DefaultDropY        = 4.0
)

// FlexInt decodes from a JSON number or a numeric string. Agents send both.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || f != float64(int(f)) {
		return fmt.Errorf("expected an integer, got %s", b)
	}
	*n = FlexInt(int(f))
	return nil
}

// FlexFloat decodes from a JSON number or a numeric string.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("expected a number, got %s", b)
	}
	*f = FlexFloat(v)
	return nil
}

// AnalyzeParams selects a document and an analysis scope.
type AnalyzeParams struct {
	FilePath     string `json:"file_path"`
	AnalysisType string `json:"analysis_type,omitempty"`
}

// ModifyParams carries one shape operation. ShapeData is decoded according
// to Operation by Op.
type ModifyParams struct {
	FilePath  string          `json:"file_path"`
	Operation string          `json:"operation"`
	ShapeData json.RawMessage `json:"shape_data"`
}

// VerifyParams filters connections by shape id. Empty ShapeIDs returns all.
type VerifyParams struct {
	FilePath string   `json:"file_path"`
	ShapeIDs []string `json:"shape_ids,omitempty"`
}

type CreateParams struct {
	Template string `json:"template,omitempty"`
	SavePath string `json:"save_path,omitempty"`
}

type SaveParams struct {
	FilePath string `json:"file_path,omitempty"`
}

type ShapesParams struct {
	FilePath  string  `json:"file_path,omitempty"`
	PageIndex FlexInt `json:"page_index,omitempty"`
}

type ExportParams struct {
	FilePath   string `json:"file_path,omitempty"`
	Format     string `json:"format,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

// Point is an x/y pair in page units.
type Point struct {
	X *FlexFloat `json:"x,omitempty"`
	Y *FlexFloat `json:"y,omitempty"`
}

// Dims is a width/height pair in page units.
type Dims struct {
	Width  *FlexFloat `json:"width,omitempty"`
	Height *FlexFloat `json:"height,omitempty"`
}

// ShapeOp is one of the typed modify operations.
type ShapeOp interface {
	Name() string
	page() int
}

type pageRef struct {
	PageIndex *FlexInt `json:"page_index,omitempty"`
}

func (p pageRef) page() int {
	if p.PageIndex == nil {
		return DefaultPageIndex
	}
	return int(*p.PageIndex)
}

// AddShape drops a master onto a page.
type AddShape struct {
	pageRef
	MasterName  string  `json:"master_name"`
	StencilName string  `json:"stencil_name,omitempty"`
	Text        *string `json:"text,omitempty"`
	Position    *Point  `json:"position,omitempty"`
	Size        *Dims   `json:"size,omitempty"`
}

func (AddShape) Name() string { return "add_shape" }

// UpdateShape changes any subset of text, position and size. Position and
// size may be given nested or as flat x, y, width and height fields.
type UpdateShape struct {
	pageRef
	ShapeID  *FlexInt   `json:"shape_id"`
	Text     *string    `json:"text,omitempty"`
	Position *Point     `json:"position,omitempty"`
	Size     *Dims      `json:"size,omitempty"`
	X        *FlexFloat `json:"x,omitempty"`
	Y        *FlexFloat `json:"y,omitempty"`
	Width    *FlexFloat `json:"width,omitempty"`
	Height   *FlexFloat `json:"height,omitempty"`
}

func (UpdateShape) Name() string { return "update_shape" }

// position returns the requested pin, if both coordinates were given.
func (u UpdateShape) position() (x, y float64, ok bool) {
	px, py := u.X, u.Y
	if u.Position != nil {
		if u.Position.X != nil {
			px = u.Position.X
		}
		if u.Position.Y != nil {
			py = u.Position.Y
		}
	}
	if px == nil || py == nil {
		return 0, 0, false
	}
	return float64(*px), float64(*py), true
}

func (u UpdateShape) size() (w, h *FlexFloat) {
	w, h = u.Width, u.Height
	if u.Size != nil {
		if u.Size.Width != nil {
			w = u.Size.Width
		}
		if u.Size.Height != nil {
			h = u.Size.Height
		}
	}
	return w, h
}

// DeleteShape removes a shape by id.
type DeleteShape struct {
	pageRef
	ShapeID *FlexInt `json:"shape_id"`
}

func (DeleteShape) Name() string { return "delete_shape" }

// AddConnector glues a new connector between two shapes. The add_connection
// and add_connector tags both decode to it.
type AddConnector struct {
	pageRef
	Tag         string   `json:"-"`
	FromShapeID *FlexInt `json:"from_shape_id"`
	ToShapeID   *FlexInt `json:"to_shape_id"`
	Text        *string  `json:"text,omitempty"`
}

func (a AddConnector) Name() string { return a.Tag }

// DeleteConnection removes a connector. Shapes that are not connectors do
// not match.
type DeleteConnection struct {
	pageRef
	ConnectorID *FlexInt `json:"connector_id"`
}

func (DeleteConnection) Name() string { return "delete_connection" }

// Operations lists the modify operation tags.
var Operations = []string{"add_shape", "update_shape", "delete_shape", "add_connection", "add_connector", "delete_connection"}

// IsOperation reports whether tag is a known modify operation.
func IsOperation(tag string) bool {
	for _, op := range Operations {
		if op == tag {
			return true
		}
	}
	return false
}

// Op decodes ShapeData for the operation tag and checks its required
// fields. Unknown tags yield UNKNOWN_OPERATION; malformed or incomplete
// shape data yields INVALID_PARAMS.
func (p ModifyParams) Op() (ShapeOp, error) {
	data := p.ShapeData
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		data = []byte("{}")
	}

	var (
		op      ShapeOp
		missing []string
	)
	switch p.Operation {
	case "add_shape":
		var v AddShape
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		if strings.TrimSpace(v.MasterName) == "" {
			missing = append(missing, "master_name")
		}
		op = v
	case "update_shape":
		var v UpdateShape
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		if v.ShapeID == nil {
			missing = append(missing, "shape_id")
		}
		op = v
	case "delete_shape":
		var v DeleteShape
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		if v.ShapeID == nil {
			missing = append(missing, "shape_id")
		}
		op = v
	case "add_connection", "add_connector":
		var v AddConnector
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		v.Tag = p.Operation
		if v.FromShapeID == nil {
			missing = append(missing, "from_shape_id")
		}
		if v.ToShapeID == nil {
			missing = append(missing, "to_shape_id")
		}
		op = v
	case "delete_connection":
		var v DeleteConnection
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		if v.ConnectorID == nil {
			missing = append(missing, "connector_id")
		}
		op = v
	default:
		return nil, diagerr.New(diagerr.UnknownOperation, "Unknown operation: %s", p.Operation).
			WithDetails("operation", p.Operation).
			WithDetails("supported", Operations)
	}

	if len(missing) > 0 {
		return nil, diagerr.New(diagerr.InvalidParams, "%s requires %s", p.Operation, strings.Join(missing, " and ")).
			WithDetails("missing", missing)
	}
	return op, nil
}

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return diagerr.Wrap(diagerr.InvalidParams, err, "invalid shape_data")
	}
	return nil
}
