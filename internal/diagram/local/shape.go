package local

import (
	"errors"
	"fmt"
	"math"

	"github.com/mcp-visio/mcpvisio/internal/diagram"
)

var errDeleted = errors.New("shape has been deleted")

// Page is one page of a document.
type Page struct {
	doc        *Document
	name       string
	background bool
	shapes     []*Shape
}

var _ diagram.Page = (*Page)(nil)

func (p *Page) Name() string     { return p.name }
func (p *Page) Background() bool { return p.background }

func (p *Page) Index() int {
	for i, x := range p.doc.pages {
		if x == p {
			return i + 1
		}
	}
	return 0
}

func (p *Page) Shapes() ([]diagram.Shape, error) {
	if p.doc.closed {
		return nil, errClosed
	}
	out := make([]diagram.Shape, len(p.shapes))
	for i, s := range p.shapes {
		out[i] = s
	}
	return out, nil
}

// Drop instantiates m centered at (x, y). One-dimensional masters are
// dropped as a one-inch horizontal line starting at (x, y).
func (p *Page) Drop(m diagram.Master, x, y float64) (diagram.Shape, error) {
	if p.doc.closed {
		return nil, errClosed
	}
	if m == nil {
		return nil, errors.New("drop: nil master")
	}
	if p.doc.stencil {
		return nil, fmt.Errorf("%s is a stencil", p.doc.name)
	}

	lm := p.doc.localMaster(m)
	s := &Shape{
		page:     p,
		id:       p.doc.nextID,
		typ:      lm.typ,
		oneD:     lm.oneD,
		master:   lm,
		geometry: lm.geometry,
	}
	p.doc.nextID++
	s.name = p.uniqueName(lm.name, s.id)
	if s.oneD {
		s.line = [4]float64{x, y, x + 1, y}
	} else {
		s.x, s.y, s.w, s.h = x, y, lm.width, lm.height
	}

	p.shapes = append(p.shapes, s)
	p.doc.touch()
	return s, nil
}

func (p *Page) uniqueName(base string, id int) string {
	for _, s := range p.shapes {
		if s.name == base {
			return fmt.Sprintf("%s.%d", base, id)
		}
	}
	return base
}

func (p *Page) shapeByID(id int) *Shape {
	for _, s := range p.shapes {
		if s.id == id {
			return s
		}
	}
	return nil
}

// Shape is a shape instance on a page. Connectors keep their endpoints in
// line and the ids of the shapes they are glued to in begin and end.
type Shape struct {
	page     *Page
	id       int
	name     string
	text     string
	typ      string
	oneD     bool
	master   *Master
	geometry string
	x, y     float64
	w, h     float64
	line     [4]float64
	begin    *int
	end      *int
	deleted  bool
}

var _ diagram.Shape = (*Shape)(nil)

func shapeFromFile(p *Page, sf shapeFile) *Shape {
	s := &Shape{
		page:     p,
		id:       sf.ID,
		name:     sf.Name,
		text:     sf.Text,
		typ:      sf.Type,
		oneD:     sf.OneD,
		master:   p.doc.masterByName(sf.Master),
		geometry: sf.Geometry,
		x:        sf.X,
		y:        sf.Y,
		w:        sf.Width,
		h:        sf.Height,
		begin:    sf.Begin,
		end:      sf.End,
	}
	if s.typ == "" {
		s.typ = "Shape"
	}
	if s.oneD {
		if len(sf.Line) == 4 {
			copy(s.line[:], sf.Line)
		} else {
			s.line = [4]float64{sf.X, sf.Y, sf.X + 1, sf.Y}
		}
	}
	return s
}

func (s *Shape) toFile() shapeFile {
	sf := shapeFile{
		ID:       s.id,
		Name:     s.name,
		Text:     s.text,
		Type:     s.typ,
		OneD:     s.oneD,
		Geometry: s.geometry,
		Begin:    s.begin,
		End:      s.end,
	}
	if s.master != nil {
		sf.Master = s.master.name
	}
	if s.oneD {
		sf.Line = append([]float64(nil), s.line[:]...)
	} else {
		sf.X, sf.Y, sf.Width, sf.Height = s.x, s.y, s.w, s.h
	}
	return sf
}

func (s *Shape) ID() int      { return s.id }
func (s *Shape) Name() string { return s.name }
func (s *Shape) Text() string { return s.text }
func (s *Shape) Type() string { return s.typ }
func (s *Shape) OneD() bool   { return s.oneD }

func (s *Shape) Master() diagram.Master {
	if s.master == nil {
		return nil
	}
	return s.master
}

func (s *Shape) check() error {
	if s.deleted {
		return errDeleted
	}
	if s.page.doc.closed {
		return errClosed
	}
	return nil
}

func (s *Shape) SetText(text string) error {
	if err := s.check(); err != nil {
		return err
	}
	s.text = text
	s.page.doc.touch()
	return nil
}

// Position returns the pin point. For connectors that is the midpoint of
// the line.
func (s *Shape) Position() (float64, float64) {
	if s.oneD {
		return (s.line[0] + s.line[2]) / 2, (s.line[1] + s.line[3]) / 2
	}
	return s.x, s.y
}

func (s *Shape) SetPosition(x, y float64) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.oneD {
		cx, cy := s.Position()
		dx, dy := x-cx, y-cy
		s.line = [4]float64{s.line[0] + dx, s.line[1] + dy, s.line[2] + dx, s.line[3] + dy}
	} else {
		s.x, s.y = x, y
	}
	s.page.doc.touch()
	return nil
}

// Size returns width and height. A connector's width is its length and its
// height is zero.
func (s *Shape) Size() (float64, float64) {
	if s.oneD {
		return math.Hypot(s.line[2]-s.line[0], s.line[3]-s.line[1]), 0
	}
	return s.w, s.h
}

func (s *Shape) SetSize(width, height float64) error {
	if err := s.check(); err != nil {
		return err
	}
	if width < 0 || height < 0 {
		return fmt.Errorf("invalid size %gx%g", width, height)
	}
	if s.oneD {
		length, _ := s.Size()
		if length == 0 {
			s.line[2], s.line[3] = s.line[0]+width, s.line[1]
		} else {
			k := width / length
			s.line[2] = s.line[0] + (s.line[2]-s.line[0])*k
			s.line[3] = s.line[1] + (s.line[3]-s.line[1])*k
		}
	} else {
		s.w, s.h = width, height
	}
	s.page.doc.touch()
	return nil
}

// Connects reports glue in line order. The begin record runs from the glued
// shape to the connector and the end record from the connector to the glued
// shape, so the first From and the last To name the two connected shapes.
// A record whose target no longer exists on the page is an error.
func (s *Shape) Connects() ([]diagram.Connect, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if !s.oneD {
		return nil, nil
	}
	self := diagram.ShapeRef{ID: s.id, Name: s.name}
	var out []diagram.Connect
	if s.begin != nil {
		t := s.page.shapeByID(*s.begin)
		if t == nil {
			return nil, fmt.Errorf("connector %d: begin glued to missing shape %d", s.id, *s.begin)
		}
		out = append(out, diagram.Connect{From: diagram.ShapeRef{ID: t.id, Name: t.name}, To: self})
	}
	if s.end != nil {
		t := s.page.shapeByID(*s.end)
		if t == nil {
			return nil, fmt.Errorf("connector %d: end glued to missing shape %d", s.id, *s.end)
		}
		out = append(out, diagram.Connect{From: self, To: diagram.ShapeRef{ID: t.id, Name: t.name}})
	}
	return out, nil
}

func (s *Shape) GlueBegin(to diagram.Shape) error {
	t, err := s.glueTarget(to)
	if err != nil {
		return err
	}
	id := t.id
	s.begin = &id
	s.line[0], s.line[1] = t.Position()
	s.page.doc.touch()
	return nil
}

func (s *Shape) GlueEnd(to diagram.Shape) error {
	t, err := s.glueTarget(to)
	if err != nil {
		return err
	}
	id := t.id
	s.end = &id
	s.line[2], s.line[3] = t.Position()
	s.page.doc.touch()
	return nil
}

func (s *Shape) glueTarget(to diagram.Shape) (*Shape, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if !s.oneD {
		return nil, fmt.Errorf("shape %d is not a connector", s.id)
	}
	t, ok := to.(*Shape)
	if !ok || t.page != s.page || t.deleted {
		return nil, fmt.Errorf("glue target is not on page %s", s.page.name)
	}
	if t == s {
		return nil, errors.New("cannot glue a connector to itself")
	}
	return t, nil
}

// Delete removes the shape and unglues any connector attached to it.
func (s *Shape) Delete() error {
	if err := s.check(); err != nil {
		return err
	}
	p := s.page
	for i, x := range p.shapes {
		if x == s {
			p.shapes = append(p.shapes[:i], p.shapes[i+1:]...)
			break
		}
	}
	for _, x := range p.shapes {
		if x.begin != nil && *x.begin == s.id {
			x.begin = nil
		}
		if x.end != nil && *x.end == s.id {
			x.end = nil
		}
	}
	s.deleted = true
	p.doc.touch()
	return nil
}
