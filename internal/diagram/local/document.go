package local

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mcp-visio/mcpvisio/internal/diagram"
)

var errClosed = errors.New("document is closed")

// Document is an open drawing or stencil.
type Document struct {
	engine   *Engine
	name     string
	folder   string
	fullName string
	saved    bool
	readOnly bool
	stencil  bool
	closed   bool
	nextID   int
	pages    []*Page
	masters  []*Master
}

var _ diagram.Document = (*Document)(nil)

func newDocument(e *Engine, f *docFile) *Document {
	d := &Document{engine: e, nextID: f.NextID}
	for i, mf := range f.Masters {
		d.masters = append(d.masters, masterFromFile(mf, i+1))
	}
	maxID := 0
	for i, pf := range f.Pages {
		p := &Page{doc: d, name: pf.Name, background: pf.Background}
		if p.name == "" {
			p.name = fmt.Sprintf("Page-%d", i+1)
		}
		for _, sf := range pf.Shapes {
			p.shapes = append(p.shapes, shapeFromFile(p, sf))
			if sf.ID > maxID {
				maxID = sf.ID
			}
		}
		d.pages = append(d.pages, p)
	}
	if d.nextID <= maxID {
		d.nextID = maxID + 1
	}
	return d
}

func (d *Document) setPath(abs string) {
	d.fullName = abs
	d.folder = filepath.Dir(abs)
	d.name = filepath.Base(abs)
}

func (d *Document) Name() string     { return d.name }
func (d *Document) Folder() string   { return d.folder }
func (d *Document) FullName() string { return d.fullName }
func (d *Document) Saved() bool      { return d.saved }
func (d *Document) ReadOnly() bool   { return d.readOnly }
func (d *Document) Stencil() bool    { return d.stencil }

func (d *Document) Pages() ([]diagram.Page, error) {
	if d.closed {
		return nil, errClosed
	}
	out := make([]diagram.Page, len(d.pages))
	for i, p := range d.pages {
		out[i] = p
	}
	return out, nil
}

func (d *Document) Masters() ([]diagram.Master, error) {
	if d.closed {
		return nil, errClosed
	}
	out := make([]diagram.Master, len(d.masters))
	for i, m := range d.masters {
		out[i] = m
	}
	return out, nil
}

// Master looks a master up by exact name, ignoring case.
func (d *Document) Master(name string) (diagram.Master, error) {
	if d.closed {
		return nil, errClosed
	}
	for _, m := range d.masters {
		if strings.EqualFold(m.name, name) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("master %q in %s: %w", name, d.name, diagram.ErrNotFound)
}

func (d *Document) Save() error {
	if d.closed {
		return errClosed
	}
	if d.readOnly {
		return fmt.Errorf("%s is read-only", d.name)
	}
	if d.fullName == "" {
		return fmt.Errorf("%s has never been saved; use SaveAs", d.name)
	}
	if err := writeDocFile(d.fullName, d.toFile()); err != nil {
		return err
	}
	d.saved = true
	return nil
}

func (d *Document) SaveAs(path string) error {
	if d.closed {
		return errClosed
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := writeDocFile(abs, d.toFile()); err != nil {
		return err
	}
	d.setPath(abs)
	d.readOnly = false
	d.saved = true
	return nil
}

// Close discards unsaved changes.
func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.engine.remove(d)
	return nil
}

func (d *Document) ExportFixedFormat(format diagram.FixedFormat, path string) error {
	if d.closed {
		return errClosed
	}
	return export(d, format, path)
}

func (d *Document) toFile() *docFile {
	f := &docFile{Kind: kindDrawing, NextID: d.nextID}
	if d.stencil {
		f.Kind = kindStencil
	}
	for _, m := range d.masters {
		f.Masters = append(f.Masters, m.toFile())
	}
	for _, p := range d.pages {
		pf := pageFile{Name: p.name, Background: p.background}
		for _, s := range p.shapes {
			pf.Shapes = append(pf.Shapes, s.toFile())
		}
		f.Pages = append(f.Pages, pf)
	}
	return f
}

func (d *Document) touch() {
	d.saved = false
}

// localMaster records m in the drawing's own master list, the way a drop
// copies a stencil master into the document.
func (d *Document) localMaster(m diagram.Master) *Master {
	for _, x := range d.masters {
		if strings.EqualFold(x.name, m.Name()) {
			return x
		}
	}
	lm := &Master{name: m.Name(), index: len(d.masters) + 1, typ: m.Type(), oneD: m.OneD(), width: 1, height: 1}
	if src, ok := m.(*Master); ok {
		lm.geometry = src.geometry
		lm.width, lm.height = src.width, src.height
	} else if m.OneD() {
		lm.geometry = "line"
	}
	d.masters = append(d.masters, lm)
	return lm
}

func (d *Document) masterByName(name string) *Master {
	if name == "" {
		return nil
	}
	for _, m := range d.masters {
		if strings.EqualFold(m.name, name) {
			return m
		}
	}
	return nil
}

// Master is a shape template held by a stencil or copied into a drawing.
type Master struct {
	name     string
	index    int
	typ      string
	oneD     bool
	geometry string
	width    float64
	height   float64
}

var _ diagram.Master = (*Master)(nil)

func masterFromFile(mf masterFile, index int) *Master {
	m := &Master{name: mf.Name, index: index, typ: mf.Type, oneD: mf.OneD, geometry: mf.Geometry, width: mf.Width, height: mf.Height}
	if m.typ == "" {
		m.typ = "Shape"
	}
	if m.width <= 0 {
		m.width = 1
	}
	if m.height <= 0 {
		m.height = 1
	}
	if m.geometry == "" {
		m.geometry = "rectangle"
		if m.oneD {
			m.geometry = "line"
		}
	}
	return m
}

func (m *Master) Name() string { return m.name }
func (m *Master) Index() int   { return m.index }
func (m *Master) Type() string { return m.typ }
func (m *Master) OneD() bool   { return m.oneD }

func (m *Master) toFile() masterFile {
	return masterFile{Name: m.name, Type: m.typ, OneD: m.oneD, Geometry: m.geometry, Width: m.width, Height: m.height}
}
