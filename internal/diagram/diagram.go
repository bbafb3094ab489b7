// Package diagram defines the capability interface over a diagramming
// engine's live object graph: open documents, their pages, the shapes on
// those pages and the masters held by stencils.
//
// Implementations are not required to be safe for concurrent use. Callers
// serialize access to an Engine and everything reachable from it.
package diagram

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned when a document, stencil, template or master
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoDocument is returned by ActiveDocument when nothing is open.
	ErrNoDocument = errors.New("no document is open")
)

// Engine is the root of the object graph.
type Engine interface {
	// Documents lists open documents in open order, stencils included.
	Documents() []Document
	// ActiveDocument returns the focused drawing.
	ActiveDocument() (Document, error)
	// Document finds an open document by file name, case-insensitively.
	Document(name string) (Document, error)
	// Open opens a drawing from disk and makes it active.
	Open(path string) (Document, error)
	// OpenStencil opens a stencil by name or path as a docked, read-only document.
	OpenStencil(name string) (Document, error)
	// StencilDir is the engine's built-in stencil directory.
	StencilDir() string
	// Add creates a new drawing from a template. An empty template yields a
	// blank drawing with one page.
	Add(template string) (Document, error)
	// ConnectorTool is the generic connector used when no connector master
	// is available.
	ConnectorTool() Master
}

// Document is an open drawing or stencil.
type Document interface {
	Name() string
	Folder() string
	FullName() string
	Saved() bool
	ReadOnly() bool
	Stencil() bool
	Pages() ([]Page, error)
	Masters() ([]Master, error)
	Master(name string) (Master, error)
	Save() error
	SaveAs(path string) error
	Close() error
	ExportFixedFormat(format FixedFormat, path string) error
}

// Page is one page of a document. Index is 1-based.
type Page interface {
	Name() string
	Index() int
	Background() bool
	// Shapes returns the page's shapes in ascending index order.
	Shapes() ([]Shape, error)
	Drop(m Master, x, y float64) (Shape, error)
}

// Shape is an instance on a page. One-dimensional shapes are connectors.
type Shape interface {
	ID() int
	Name() string
	Text() string
	SetText(text string) error
	Type() string
	OneD() bool
	// Master returns nil for shapes not dropped from a master.
	Master() Master
	Position() (x, y float64)
	SetPosition(x, y float64) error
	Size() (width, height float64)
	SetSize(width, height float64) error
	// Connects lists the glue records of a connector, begin point first.
	Connects() ([]Connect, error)
	GlueBegin(to Shape) error
	GlueEnd(to Shape) error
	Delete() error
}

// Master is a reusable shape template held by a stencil.
type Master interface {
	Name() string
	Index() int
	Type() string
	OneD() bool
}

// ShapeRef names one side of a connect.
type ShapeRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Connect records that a connector endpoint is glued to a shape.
type Connect struct {
	From ShapeRef `json:"from"`
	To   ShapeRef `json:"to"`
}

// Endpoints applies the connector convention: the first connect's From is
// the from-shape, the last connect's To is the to-shape. A connector with
// more than two connects is reduced to those two ends. ok is false when
// there are no connects.
func Endpoints(connects []Connect) (from, to ShapeRef, ok bool) {
	if len(connects) == 0 {
		return ShapeRef{}, ShapeRef{}, false
	}
	return connects[0].From, connects[len(connects)-1].To, true
}

// FixedFormat is a fixed-layout export format.
type FixedFormat int

const (
	FormatPDF FixedFormat = iota + 1
	FormatPNG
	FormatJPEG
	FormatSVG
)

// ParseFixedFormat maps a format tag to a FixedFormat. "jpeg" is accepted
// as an alias for "jpg".
func ParseFixedFormat(tag string) (FixedFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "pdf":
		return FormatPDF, true
	case "png":
		return FormatPNG, true
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "svg":
		return FormatSVG, true
	}
	return 0, false
}

// Ext returns the file extension for the format, without the dot.
func (f FixedFormat) Ext() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpg"
	case FormatSVG:
		return "svg"
	}
	return ""
}

func (f FixedFormat) String() string {
	return f.Ext()
}

var (
	stencilExts  = []string{".vss", ".vssx", ".vssm"}
	templateExts = []string{".vst", ".vstx", ".vstm"}
)

// IsStencilName reports whether name carries a stencil file extension.
func IsStencilName(name string) bool {
	return hasExt(name, stencilExts)
}

// IsTemplateName reports whether name carries a template file extension.
func IsTemplateName(name string) bool {
	return hasExt(name, templateExts)
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
