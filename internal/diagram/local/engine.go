// Package local implements the diagram capability interface over plain YAML
// files. It is the engine used when no relay is configured and the one the
// operation tests run against.
//
// Drawings, stencils and templates share one file format (see docFile). A
// small set of stencils and templates is built in; more are read from the
// configured stencil and template directories.
package local

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/diagram"
	"github.com/mcp-visio/mcpvisio/internal/slugs"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

type builtinFile struct {
	name string
	file string
}

var builtinStencils = []builtinFile{
	{"Basic_U.vss", "builtin/basic_u.yaml"},
	{"BASIC_M.vssx", "builtin/basic_m.yaml"},
	{"Basic Shapes.vss", "builtin/basic_shapes.yaml"},
	{"Connectors.vssx", "builtin/connectors.yaml"},
}

var builtinTemplates = []builtinFile{
	{"Basic.vst", "builtin/basic_template.yaml"},
	{"Basic Diagram.vstx", "builtin/basic_template.yaml"},
}

// Options configures an Engine.
type Options struct {
	// StencilDir is searched for stencil files before the built-in set.
	StencilDir string
	// TemplateDir is searched for template files before the built-in set.
	TemplateDir string
	// NoBuiltins hides the embedded stencils and templates.
	NoBuiltins bool
	Logger     *zap.Logger
}

// Engine holds the set of open documents. It is not safe for concurrent use.
type Engine struct {
	opts   Options
	log    *zap.Logger
	docs   []*Document
	active *Document
	seq    int
}

// New returns an engine with no open documents.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{opts: opts, log: log.Named("engine")}
}

var _ diagram.Engine = (*Engine)(nil)

func (e *Engine) Documents() []diagram.Document {
	out := make([]diagram.Document, len(e.docs))
	for i, d := range e.docs {
		out[i] = d
	}
	return out
}

func (e *Engine) ActiveDocument() (diagram.Document, error) {
	if e.active == nil {
		return nil, diagram.ErrNoDocument
	}
	return e.active, nil
}

func (e *Engine) Document(name string) (diagram.Document, error) {
	if d := e.find(name); d != nil {
		return d, nil
	}
	return nil, fmt.Errorf("document %q: %w", name, diagram.ErrNotFound)
}

func (e *Engine) find(name string) *Document {
	base := slugs.BaseName(name)
	for _, d := range e.docs {
		if strings.EqualFold(d.name, base) {
			return d
		}
	}
	return nil
}

func (e *Engine) Open(path string) (diagram.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	for _, d := range e.docs {
		if d.fullName == abs {
			e.activate(d)
			return d, nil
		}
	}

	f, err := readDocFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", abs, diagram.ErrNotFound)
		}
		return nil, err
	}
	if f.Kind != kindDrawing {
		return nil, fmt.Errorf("%s is a %s, not a drawing", abs, f.Kind)
	}

	d := newDocument(e, f)
	d.setPath(abs)
	d.saved = true
	e.docs = append(e.docs, d)
	e.activate(d)
	e.log.Debug("document opened", zap.String("path", abs))
	return d, nil
}

func (e *Engine) OpenStencil(name string) (diagram.Document, error) {
	if d := e.find(name); d != nil && d.stencil {
		return d, nil
	}

	f, display, err := e.loadNamed(name, e.opts.StencilDir, builtinStencils, kindStencil)
	if err != nil {
		return nil, err
	}
	if d := e.find(display); d != nil {
		return d, nil
	}

	d := newDocument(e, f)
	d.name = display
	d.stencil = true
	d.readOnly = true
	d.saved = true
	if e.opts.StencilDir != "" {
		d.folder = e.opts.StencilDir
	}
	e.docs = append(e.docs, d)
	e.log.Debug("stencil opened", zap.String("name", display))
	return d, nil
}

func (e *Engine) StencilDir() string {
	return e.opts.StencilDir
}

func (e *Engine) Add(template string) (diagram.Document, error) {
	var f *docFile
	switch {
	case template == "":
		f = &docFile{Kind: kindDrawing, Pages: []pageFile{{Name: "Page-1"}}}
	case diagram.IsStencilName(template):
		// A stencil "template" yields a blank drawing with the stencil docked.
		if _, err := e.OpenStencil(template); err != nil {
			return nil, err
		}
		f = &docFile{Kind: kindDrawing, Pages: []pageFile{{Name: "Page-1"}}}
	default:
		tf, _, err := e.loadNamed(template, e.opts.TemplateDir, builtinTemplates, kindTemplate)
		if err != nil {
			return nil, err
		}
		for _, s := range tf.Stencils {
			if _, err := e.OpenStencil(s); err != nil {
				e.log.Warn("template stencil unavailable", zap.String("template", template), zap.String("stencil", s), zap.Error(err))
			}
		}
		f = tf
		f.Kind = kindDrawing
		f.Stencils = nil
		if len(f.Pages) == 0 {
			f.Pages = []pageFile{{Name: "Page-1"}}
		}
	}

	e.seq++
	d := newDocument(e, f)
	d.name = fmt.Sprintf("Drawing%d", e.seq)
	e.docs = append(e.docs, d)
	e.activate(d)
	return d, nil
}

func (e *Engine) ConnectorTool() diagram.Master {
	return &Master{name: "Dynamic connector", typ: "Shape", oneD: true, geometry: "line"}
}

func (e *Engine) activate(d *Document) {
	if !d.stencil {
		e.active = d
	}
}

func (e *Engine) remove(d *Document) {
	for i, x := range e.docs {
		if x == d {
			e.docs = append(e.docs[:i], e.docs[i+1:]...)
			break
		}
	}
	if e.active == d {
		e.active = nil
		for i := len(e.docs) - 1; i >= 0; i-- {
			if !e.docs[i].stencil {
				e.active = e.docs[i]
				break
			}
		}
	}
}

// loadNamed finds a stencil or template by path, then by name in dir, then
// among the built-ins. It returns the parsed file and the display name.
func (e *Engine) loadNamed(name, dir string, builtins []builtinFile, kind string) (*docFile, string, error) {
	if strings.ContainsAny(name, `/\`) {
		if f, err := readDocFile(name); err == nil {
			return checkKind(f, name, kind, filepath.Base(name))
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}
	}

	key := slugs.Key(name)
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}
		for _, ent := range entries {
			if ent.IsDir() || slugs.Key(ent.Name()) != key {
				continue
			}
			f, err := readDocFile(filepath.Join(dir, ent.Name()))
			if err != nil {
				return nil, "", err
			}
			return checkKind(f, name, kind, ent.Name())
		}
	}

	if !e.opts.NoBuiltins {
		for _, b := range builtins {
			if slugs.Key(b.name) != key {
				continue
			}
			data, err := builtinFS.ReadFile(b.file)
			if err != nil {
				return nil, "", err
			}
			f, err := parseDocFile(data)
			if err != nil {
				return nil, "", err
			}
			return checkKind(f, name, kind, b.name)
		}
	}

	return nil, "", fmt.Errorf("%s %q: %w", kind, name, diagram.ErrNotFound)
}

func checkKind(f *docFile, name, kind, display string) (*docFile, string, error) {
	if f.Kind != kind {
		return nil, "", fmt.Errorf("%s is a %s, not a %s", name, f.Kind, kind)
	}
	return f, display, nil
}
