package local

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcp-visio/mcpvisio/internal/atomicfile"
)

// File kinds.
const (
	kindDrawing  = "drawing"
	kindStencil  = "stencil"
	kindTemplate = "template"
)

// docFile is the on-disk form of drawings, stencils and templates.
type docFile struct {
	Kind     string       `yaml:"kind"`
	NextID   int          `yaml:"next_id,omitempty"`
	Stencils []string     `yaml:"stencils,omitempty"`
	Masters  []masterFile `yaml:"masters,omitempty"`
	Pages    []pageFile   `yaml:"pages,omitempty"`
}

type masterFile struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type,omitempty"`
	OneD     bool    `yaml:"one_d,omitempty"`
	Geometry string  `yaml:"geometry,omitempty"`
	Width    float64 `yaml:"width,omitempty"`
	Height   float64 `yaml:"height,omitempty"`
}

type pageFile struct {
	Name       string      `yaml:"name"`
	Background bool        `yaml:"background,omitempty"`
	Shapes     []shapeFile `yaml:"shapes,omitempty"`
}

type shapeFile struct {
	ID       int       `yaml:"id"`
	Name     string    `yaml:"name"`
	Text     string    `yaml:"text,omitempty"`
	Type     string    `yaml:"type,omitempty"`
	OneD     bool      `yaml:"one_d,omitempty"`
	Master   string    `yaml:"master,omitempty"`
	Geometry string    `yaml:"geometry,omitempty"`
	X        float64   `yaml:"x"`
	Y        float64   `yaml:"y"`
	Width    float64   `yaml:"width"`
	Height   float64   `yaml:"height"`
	Line     []float64 `yaml:"line,flow,omitempty"`
	Begin    *int      `yaml:"begin,omitempty"`
	End      *int      `yaml:"end,omitempty"`
}

func readDocFile(path string) (*docFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseDocFile(data)
}

func parseDocFile(data []byte) (*docFile, error) {
	var f docFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid document format: %w", err)
	}
	if f.Kind == "" {
		f.Kind = kindDrawing
	}
	return &f, nil
}

func writeDocFile(path string, f *docFile) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return atomicfile.WriteFile(path, buf.Bytes(), 0)
}
