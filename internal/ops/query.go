package ops

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/diagram"
	"github.com/mcp-visio/mcpvisio/internal/target"
)

// SuggestedStencil is a stencil worth opening when none is.
type SuggestedStencil struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SuggestedStencils are the stencils shipped with a standard installation.
var SuggestedStencils = []SuggestedStencil{
	{"BASIC_M.vssx", "basic"},
	{"ARROWS_M.vssx", "arrows"},
	{"Basic_U.vss", "basic"},
	{"Backgrounds.vssx", "backgrounds"},
	{"Borders.vssx", "borders"},
	{"Connectors.vssx", "connectors"},
	{"CONNEC_M.vssx", "connectors"},
}

// ActiveDocument describes the focused drawing, its pages and every open
// document.
func (s *Service) ActiveDocument(ctx context.Context) (*Result, error) {
	return s.run(ctx, "active_document", func() *Result {
		t, err := s.resolver.Resolve(target.Active)
		if err != nil {
			return Fail(err)
		}
		doc := t.Doc
		pages, err := doc.Pages()
		if err != nil {
			return Fail(err)
		}

		pageInfo := make([]map[string]interface{}, 0, len(pages))
		for _, p := range pages {
			shapes, err := p.Shapes()
			if err != nil {
				return Fail(err)
			}
			pageInfo = append(pageInfo, map[string]interface{}{
				"name":          p.Name(),
				"index":         p.Index(),
				"shapes_count":  len(shapes),
				"is_foreground": !p.Background(),
			})
		}

		var open []map[string]interface{}
		for _, d := range s.engine.Documents() {
			open = append(open, map[string]interface{}{
				"name":      d.Name(),
				"path":      d.Folder(),
				"full_path": docRef(d),
				"is_active": d == doc,
			})
		}

		return success(map[string]interface{}{
			"name":           doc.Name(),
			"path":           doc.Folder(),
			"full_path":      docRef(doc),
			"pages_count":    len(pages),
			"saved":          doc.Saved(),
			"readonly":       doc.ReadOnly(),
			"pages":          pageInfo,
			"open_documents": open,
		})
	})
}

// Analysis scopes.
const (
	AnalyzeStructure   = "structure"
	AnalyzeConnections = "connections"
	AnalyzeText        = "text"
	AnalyzeAll         = "all"
)

// Analyze walks every page and reports shapes, connectors and text for the
// requested scope. A connector whose glue cannot be read is logged and left
// out of the result.
func (s *Service) Analyze(ctx context.Context, p AnalyzeParams) (*Result, error) {
	scope := p.AnalysisType
	if scope == "" {
		scope = DefaultAnalysisType
	}
	switch scope {
	case AnalyzeStructure, AnalyzeConnections, AnalyzeText, AnalyzeAll:
	default:
		return Fail(diagerr.New(diagerr.InvalidParams, "Unknown analysis_type: %s", scope).
			WithDetails("supported", []string{AnalyzeStructure, AnalyzeConnections, AnalyzeText, AnalyzeAll})), nil
	}
	structure := scope == AnalyzeStructure || scope == AnalyzeAll
	conns := scope == AnalyzeConnections || scope == AnalyzeAll
	text := scope == AnalyzeText || scope == AnalyzeAll

	return s.run(ctx, "analyze", func() *Result {
		return s.withTarget(p.FilePath, false, func(t *target.Target) *Result {
			pages, err := t.Doc.Pages()
			if err != nil {
				return Fail(err)
			}

			pageData := make([]map[string]interface{}, 0, len(pages))
			for _, page := range pages {
				shapes, err := page.Shapes()
				if err != nil {
					return Fail(err)
				}
				shapeRecs := []map[string]interface{}{}
				connRecs := []map[string]interface{}{}
				textRecs := []map[string]interface{}{}

				for _, sh := range shapes {
					if structure && !sh.OneD() {
						shapeRecs = append(shapeRecs, shapeRecord(sh))
					}
					if conns && sh.OneD() {
						if rec, err := connectionRecord(sh); err != nil {
							// Only the connect data is skipped; the shape's text still counts.
							s.log.Warn("ops.connector_skipped", zap.Int("shape_id", sh.ID()), zap.String("page", page.Name()), zap.Error(err))
						} else {
							connRecs = append(connRecs, rec)
						}
					}
					if text && sh.Text() != "" {
						textRecs = append(textRecs, map[string]interface{}{
							"shape_id":   sh.ID(),
							"shape_name": sh.Name(),
							"text":       sh.Text(),
						})
					}
				}

				pageData = append(pageData, map[string]interface{}{
					"name":          page.Name(),
					"index":         page.Index(),
					"shapes_count":  len(shapes),
					"shapes":        shapeRecs,
					"connections":   connRecs,
					"text_elements": textRecs,
				})
			}

			return success(map[string]interface{}{
				"name":          t.Doc.Name(),
				"path":          t.Doc.Folder(),
				"full_path":     docRef(t.Doc),
				"analysis_type": scope,
				"pages_count":   len(pages),
				"pages":         pageData,
			})
		})
	})
}

func shapeRecord(sh diagram.Shape) map[string]interface{} {
	x, y := sh.Position()
	w, h := sh.Size()
	return map[string]interface{}{
		"id":       sh.ID(),
		"name":     sh.Name(),
		"text":     sh.Text(),
		"type":     sh.Type(),
		"master":   masterName(sh),
		"position": map[string]float64{"x": x, "y": y},
		"size":     map[string]float64{"width": w, "height": h},
	}
}

// VerifyConnections lists glued connectors. When ShapeIDs is non-empty only
// connections touching one of those ids are returned. Connectors without
// glue are not connections and are skipped.
func (s *Service) VerifyConnections(ctx context.Context, p VerifyParams) (*Result, error) {
	filter := make(map[string]bool, len(p.ShapeIDs))
	for _, id := range p.ShapeIDs {
		filter[id] = true
	}

	return s.run(ctx, "verify_connections", func() *Result {
		return s.withTarget(p.FilePath, false, func(t *target.Target) *Result {
			pages, err := t.Doc.Pages()
			if err != nil {
				return Fail(err)
			}
			connections := []map[string]interface{}{}
			for _, page := range pages {
				shapes, err := page.Shapes()
				if err != nil {
					return Fail(err)
				}
				for _, sh := range shapes {
					if !sh.OneD() {
						continue
					}
					connects, err := sh.Connects()
					if err != nil {
						s.log.Warn("ops.connector_skipped", zap.Int("shape_id", sh.ID()), zap.String("page", page.Name()), zap.Error(err))
						continue
					}
					from, to, ok := diagram.Endpoints(connects)
					if !ok {
						continue
					}
					if len(filter) > 0 && !filter[strconv.Itoa(from.ID)] && !filter[strconv.Itoa(to.ID)] {
						continue
					}
					connections = append(connections, map[string]interface{}{
						"connector_id":    sh.ID(),
						"connector_name":  sh.Name(),
						"text":            sh.Text(),
						"from_shape_id":   from.ID,
						"from_shape_name": from.Name,
						"to_shape_id":     to.ID,
						"to_shape_name":   to.Name,
						"page_name":       page.Name(),
						"page_index":      page.Index(),
					})
				}
			}
			path := t.Path
			if t.Active {
				path = target.Active
			}
			return success(map[string]interface{}{
				"file_path":         path,
				"connections":       connections,
				"connections_count": len(connections),
			})
		})
	})
}

// ShapesOnPage lists every shape on one page.
func (s *Service) ShapesOnPage(ctx context.Context, p ShapesParams) (*Result, error) {
	ref := p.FilePath
	if ref == "" {
		ref = target.Active
	}
	index := int(p.PageIndex)
	if index == 0 {
		index = DefaultPageIndex
	}

	return s.run(ctx, "shapes_on_page", func() *Result {
		return s.withTarget(ref, false, func(t *target.Target) *Result {
			page, err := pageAt(t.Doc, index)
			if err != nil {
				return Fail(err)
			}
			shapes, err := page.Shapes()
			if err != nil {
				return Fail(err)
			}

			recs := make([]map[string]interface{}, 0, len(shapes))
			for _, sh := range shapes {
				x, y := sh.Position()
				rec := map[string]interface{}{
					"id":           sh.ID(),
					"name":         sh.Name(),
					"text":         sh.Text(),
					"is_connector": sh.OneD(),
					"position":     map[string]float64{"x": x, "y": y},
				}
				if sh.OneD() {
					connects, err := sh.Connects()
					if err != nil {
						s.log.Warn("ops.connector_skipped", zap.Int("shape_id", sh.ID()), zap.Error(err))
						rec["connections"] = nil
					} else {
						links := make([]map[string]interface{}, 0, len(connects))
						for _, c := range connects {
							links = append(links, map[string]interface{}{
								"from_sheet":    c.From.Name,
								"from_sheet_id": c.From.ID,
								"to_sheet":      c.To.Name,
								"to_sheet_id":   c.To.ID,
							})
						}
						rec["connections"] = links
					}
				} else {
					w, h := sh.Size()
					rec["type"] = sh.Type()
					rec["master"] = masterName(sh)
					rec["size"] = map[string]float64{"width": w, "height": h}
				}
				recs = append(recs, rec)
			}

			return success(map[string]interface{}{
				"document_name": t.Doc.Name(),
				"page_name":     page.Name(),
				"page_index":    index,
				"shapes_count":  len(shapes),
				"shapes":        recs,
			})
		})
	})
}

func openStencils(e diagram.Engine) []diagram.Document {
	var out []diagram.Document
	for _, d := range e.Documents() {
		if d.Stencil() || diagram.IsStencilName(d.Name()) {
			out = append(out, d)
		}
	}
	return out
}

// Stencils lists open stencils and suggests standard ones. The filesystem
// is not scanned.
func (s *Service) Stencils(ctx context.Context) (*Result, error) {
	return s.run(ctx, "stencils", func() *Result {
		open := []map[string]interface{}{}
		for _, d := range openStencils(s.engine) {
			masters, err := d.Masters()
			if err != nil {
				return Fail(err)
			}
			open = append(open, map[string]interface{}{
				"name":          d.Name(),
				"is_open":       true,
				"masters_count": len(masters),
			})
		}
		return success(map[string]interface{}{
			"open_stencils":       open,
			"suggested_stencils":  SuggestedStencils,
			"open_stencils_count": len(open),
		})
	})
}

// MasterInfo describes one master of a stencil. ID is the 1-based
// position within the stencil.
type MasterInfo struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
	Type string `json:"type"`
	OneD bool   `json:"one_d"`
}

// Masters lists the masters of every open stencil. With no stencil open,
// the basic stencil is opened for the listing and closed again.
func (s *Service) Masters(ctx context.Context) (*Result, error) {
	return s.run(ctx, "masters", func() *Result {
		byStencil := map[string][]MasterInfo{}
		for _, d := range openStencils(s.engine) {
			infos, err := masterInfos(d)
			if err != nil {
				return Fail(err)
			}
			byStencil[d.Name()] = infos
		}

		if len(byStencil) == 0 {
			basic, err := s.engine.OpenStencil(BasicStencil)
			if err != nil {
				s.log.Warn("ops.basic_stencil_unavailable", zap.Error(err))
			} else {
				infos, err := masterInfos(basic)
				if err == nil {
					byStencil[BasicStencil] = infos
				}
				if cerr := basic.Close(); cerr != nil {
					s.log.Warn("ops.close_failed", zap.String("stencil", BasicStencil), zap.Error(cerr))
				}
			}
		}

		return success(map[string]interface{}{"masters_by_stencil": byStencil})
	})
}

func masterInfos(d diagram.Document) ([]MasterInfo, error) {
	masters, err := d.Masters()
	if err != nil {
		return nil, err
	}
	out := make([]MasterInfo, 0, len(masters))
	for i, m := range masters {
		out = append(out, MasterInfo{Name: m.Name(), ID: i + 1, Type: m.Type(), OneD: m.OneD()})
	}
	return out, nil
}

func connectionRecord(sh diagram.Shape) (map[string]interface{}, error) {
	connects, err := sh.Connects()
	if err != nil {
		return nil, err
	}
	rec := map[string]interface{}{
		"id":         sh.ID(),
		"name":       sh.Name(),
		"text":       sh.Text(),
		"from_shape": nil,
		"to_shape":   nil,
		"type":       "connector",
	}
	if from, to, ok := diagram.Endpoints(connects); ok {
		rec["from_shape"] = from
		rec["to_shape"] = to
	}
	return rec, nil
}
