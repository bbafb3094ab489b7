package ops

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/diagram"
)

// BasicStencil is expected on every installation.
const BasicStencil = "Basic_U.vss"

// CommonMasters are tried when the requested master cannot be matched.
var CommonMasters = []string{"Rectangle", "Square", "Circle", "Ellipse", "Triangle", "Diamond", "Pentagon", "Hexagon"}

// FallbackTemplates are tried in order when the requested template cannot
// be loaded. The empty name is a blank drawing.
var FallbackTemplates = []string{"BASIC_M.vssx", BasicStencil, ""}

// strategy is one step of a fallback chain. ok=false means try the next.
type strategy[T any] struct {
	name string
	try  func() (T, bool)
}

// firstOf runs the chain in order and returns the first resolved value
// along with the name of the step that produced it.
func firstOf[T any](log *zap.Logger, chain string, steps []strategy[T]) (T, string, bool) {
	for _, st := range steps {
		if v, ok := st.try(); ok {
			log.Debug("ops.fallback", zap.String("chain", chain), zap.String("step", st.name))
			return v, st.name, true
		}
	}
	var zero T
	return zero, "", false
}

func (s *Service) stencilChain(want string) []strategy[diagram.Document] {
	e := s.engine
	return []strategy[diagram.Document]{
		{"open", func() (diagram.Document, bool) {
			d, err := e.Document(want)
			return d, err == nil
		}},
		{"stencil_dir", func() (diagram.Document, bool) {
			dir := e.StencilDir()
			if dir == "" {
				return nil, false
			}
			p := filepath.Join(dir, want)
			if !s.resolver.Exists(p) {
				return nil, false
			}
			d, err := e.OpenStencil(p)
			return d, err == nil
		}},
		{"by_name", func() (diagram.Document, bool) {
			d, err := e.OpenStencil(want)
			if err != nil {
				s.log.Debug("ops.stencil_unavailable", zap.String("stencil", want), zap.Error(err))
			}
			return d, err == nil
		}},
		{"basic", func() (diagram.Document, bool) {
			d, err := e.OpenStencil(BasicStencil)
			return d, err == nil
		}},
		{"any_open", func() (diagram.Document, bool) {
			for _, d := range e.Documents() {
				if d.Stencil() || diagram.IsStencilName(d.Name()) {
					return d, true
				}
			}
			return nil, false
		}},
	}
}

func masterChain(stencil diagram.Document, want string) []strategy[diagram.Master] {
	return []strategy[diagram.Master]{
		{"exact", func() (diagram.Master, bool) {
			m, err := stencil.Master(want)
			return m, err == nil
		}},
		{"contains", func() (diagram.Master, bool) {
			masters, err := stencil.Masters()
			if err != nil {
				return nil, false
			}
			needle := strings.ToLower(want)
			for _, m := range masters {
				if strings.Contains(strings.ToLower(m.Name()), needle) {
					return m, true
				}
			}
			return nil, false
		}},
		{"common", func() (diagram.Master, bool) {
			for _, name := range CommonMasters {
				if m, err := stencil.Master(name); err == nil {
					return m, true
				}
			}
			return nil, false
		}},
		{"first", func() (diagram.Master, bool) {
			masters, err := stencil.Masters()
			if err != nil || len(masters) == 0 {
				return nil, false
			}
			return masters[0], true
		}},
	}
}

func isConnectorName(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "connector") || strings.Contains(n, "dynamic")
}

// connectorChain finds something to drop as a connector. The last step
// always succeeds.
func (s *Service) connectorChain() []strategy[diagram.Master] {
	e := s.engine
	return []strategy[diagram.Master]{
		{"open_stencil", func() (diagram.Master, bool) {
			for _, d := range e.Documents() {
				if !d.Stencil() && !diagram.IsStencilName(d.Name()) {
					continue
				}
				masters, err := d.Masters()
				if err != nil {
					continue
				}
				for _, m := range masters {
					if isConnectorName(m.Name()) {
						return m, true
					}
				}
			}
			return nil, false
		}},
		{"basic", func() (diagram.Master, bool) {
			d, err := e.OpenStencil(BasicStencil)
			if err != nil {
				return nil, false
			}
			m, err := d.Master("Dynamic connector")
			return m, err == nil
		}},
		{"tool", func() (diagram.Master, bool) {
			return e.ConnectorTool(), true
		}},
	}
}

// resolveTemplate prefers an open document whose name contains the
// template name, then an existing path, then the stencil directory.
func (s *Service) resolveTemplate(template string) string {
	lower := strings.ToLower(template)
	for _, d := range s.engine.Documents() {
		name := d.Name()
		if strings.Contains(strings.ToLower(name), lower) && (d.Stencil() || diagram.IsStencilName(name) || diagram.IsTemplateName(name)) {
			return name
		}
	}
	if strings.ContainsAny(template, `/\`) && s.resolver.Exists(template) {
		return template
	}
	if dir := s.engine.StencilDir(); dir != "" {
		p := filepath.Join(dir, template)
		if s.resolver.Exists(p) {
			return p
		}
	}
	return template
}

func (s *Service) templateChain(template string) []strategy[diagram.Document] {
	names := append([]string{s.resolveTemplate(template)}, FallbackTemplates...)
	steps := make([]strategy[diagram.Document], 0, len(names))
	for _, name := range names {
		name := name
		label := name
		if label == "" {
			label = "blank"
		}
		steps = append(steps, strategy[diagram.Document]{label, func() (diagram.Document, bool) {
			d, err := s.engine.Add(name)
			if err != nil {
				s.log.Warn("ops.template_failed", zap.String("template", label), zap.Error(err))
				return nil, false
			}
			return d, true
		}})
	}
	return steps
}
