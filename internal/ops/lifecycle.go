package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/audit"
	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/diagram"
	"github.com/mcp-visio/mcpvisio/internal/slugs"
	"github.com/mcp-visio/mcpvisio/internal/target"
)

// Create makes a new drawing from a template, falling back through
// FallbackTemplates, and saves it when a path is given. The new drawing
// becomes the active document and stays open.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Result, error) {
	template := strings.TrimSpace(p.Template)
	if template == "" {
		template = DefaultTemplate
	}

	return s.run(ctx, "create", func() *Result {
		doc, used, ok := firstOf(s.log, "template", s.templateChain(template))
		if !ok {
			return Fail(diagerr.New(diagerr.TemplateUnavailable, "Could not create document with any template").
				WithDetails("template", template))
		}

		if p.SavePath != "" {
			path := s.resolver.NormalizePath(p.SavePath)
			if err := doc.SaveAs(path); err != nil {
				return Fail(diagerr.Wrap(diagerr.EngineError, err, "Failed to save new document to %s", path))
			}
		}

		pages, err := doc.Pages()
		if err != nil {
			return Fail(err)
		}
		s.logAudit(audit.Entry{Operation: "create", Document: docRef(doc), Extra: map[string]interface{}{"template": used}})
		return success(map[string]interface{}{
			"name":          doc.Name(),
			"path":          doc.Folder(),
			"full_path":     docRef(doc),
			"pages_count":   len(pages),
			"template_used": used,
		})
	})
}

// Save saves the active document in place, or saves the open document
// whose name matches the path's base name under that path.
func (s *Service) Save(ctx context.Context, p SaveParams) (*Result, error) {
	return s.run(ctx, "save", func() *Result {
		var doc diagram.Document
		if p.FilePath == "" || target.IsActive(p.FilePath) {
			t, err := s.resolver.Resolve(target.Active)
			if err != nil {
				return Fail(err)
			}
			doc = t.Doc
			if err := doc.Save(); err != nil {
				return Fail(diagerr.Wrap(diagerr.EngineError, err, "Failed to save %s", doc.Name()))
			}
		} else {
			path := s.resolver.NormalizePath(p.FilePath)
			base := slugs.BaseName(path)
			d, err := s.engine.Document(base)
			if err != nil {
				return Fail(diagerr.New(diagerr.DocumentNotFound, "Document not found: %s", base).WithDetails("name", base))
			}
			doc = d
			if err := doc.SaveAs(path); err != nil {
				return Fail(diagerr.Wrap(diagerr.EngineError, err, "Failed to save %s", path))
			}
		}

		s.logAudit(audit.Entry{Operation: "save", Document: docRef(doc)})
		return success(map[string]interface{}{
			"name":      doc.Name(),
			"path":      doc.Folder(),
			"full_path": docRef(doc),
		})
	})
}

// Export writes a fixed-format rendering. The format is checked before any
// document or file is touched.
func (s *Service) Export(ctx context.Context, p ExportParams) (*Result, error) {
	tag := strings.ToLower(strings.TrimSpace(p.Format))
	if tag == "" {
		tag = DefaultFormat
	}
	format, ok := diagram.ParseFixedFormat(tag)
	if !ok {
		return Fail(diagerr.New(diagerr.UnsupportedFormat, "Unsupported export format: %s", tag).
			WithDetails("format", tag).
			WithDetails("supported", []string{"png", "jpg", "pdf", "svg"})), nil
	}
	ref := p.FilePath
	if ref == "" {
		ref = target.Active
	}

	return s.run(ctx, "export", func() *Result {
		return s.withTarget(ref, false, func(t *target.Target) *Result {
			out := p.OutputPath
			if out == "" {
				if t.Doc.Folder() == "" {
					return Fail(diagerr.New(diagerr.InvalidParams, "output_path is required for a document that has never been saved"))
				}
				base := strings.TrimSuffix(t.Doc.Name(), filepath.Ext(t.Doc.Name()))
				out = filepath.Join(t.Doc.Folder(), base+"."+tag)
			} else {
				out = s.resolver.NormalizePath(out)
			}

			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return Fail(diagerr.Wrap(diagerr.EngineError, err, "Failed to create output directory"))
			}
			if err := t.Doc.ExportFixedFormat(format, out); err != nil {
				return Fail(diagerr.Wrap(diagerr.EngineError, err, "Failed to export %s", t.Doc.Name()))
			}

			s.logAudit(audit.Entry{Operation: "export", Document: docRef(t.Doc), Extra: map[string]interface{}{"format": tag, "output_path": out}})
			return success(map[string]interface{}{
				"document_name": t.Doc.Name(),
				"format":        tag,
				"output_path":   out,
			})
		})
	})
}

func (s *Service) logAudit(e audit.Entry) {
	if err := s.audit.Log(e); err != nil {
		s.log.Warn("ops.audit_failed", zap.String("op", e.Operation), zap.Error(err))
	}
}
