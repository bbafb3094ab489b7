package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/audit"
	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/diagram"
	"github.com/mcp-visio/mcpvisio/internal/target"
)

// Modify applies one shape operation. Owned documents are saved and closed
// after a successful mutation and closed without saving after a failed one.
// Active and already-open documents are left open and unsaved.
func (s *Service) Modify(ctx context.Context, p ModifyParams) (*Result, error) {
	return s.run(ctx, "modify", func() *Result {
		op, err := p.Op()
		if err != nil {
			return Fail(err)
		}
		return s.withTarget(p.FilePath, true, func(t *target.Target) *Result {
			page, err := pageAt(t.Doc, op.page())
			if err != nil {
				return Fail(err)
			}

			var data map[string]interface{}
			switch op := op.(type) {
			case AddShape:
				data, err = s.addShape(page, op)
			case UpdateShape:
				data, err = s.updateShape(page, op)
			case DeleteShape:
				data, err = s.deleteShape(page, op)
			case AddConnector:
				data, err = s.addConnector(page, op)
			case DeleteConnection:
				data, err = s.deleteConnection(page, op)
			default:
				err = diagerr.New(diagerr.UnknownOperation, "Unknown operation: %s", op.Name())
			}
			if err != nil {
				return Fail(err)
			}

			data["operation"] = op.Name()
			s.recordMutation(t, op, data)
			return success(data)
		})
	})
}

func (s *Service) addShape(page diagram.Page, op AddShape) (map[string]interface{}, error) {
	stencilName := op.StencilName
	if stencilName == "" {
		stencilName = DefaultStencil
	}
	stencil, via, ok := firstOf(s.log, "stencil", s.stencilChain(stencilName))
	if !ok {
		return nil, diagerr.New(diagerr.NoUsableStencil, "Could not find any usable stencil").
			WithDetails("stencil_name", stencilName)
	}
	master, matched, ok := firstOf(s.log, "master", masterChain(stencil, op.MasterName))
	if !ok {
		return nil, diagerr.New(diagerr.MasterNotFound, "Master shape not found: %s in %s", op.MasterName, stencil.Name()).
			WithDetails("master_name", op.MasterName).
			WithDetails("stencil_name", stencil.Name())
	}

	x, y := DefaultDropX, DefaultDropY
	if op.Position != nil {
		if op.Position.X != nil {
			x = float64(*op.Position.X)
		}
		if op.Position.Y != nil {
			y = float64(*op.Position.Y)
		}
	}

	shape, err := page.Drop(master, x, y)
	if err != nil {
		return nil, diagerr.Wrap(diagerr.EngineError, err, "failed to drop %s", master.Name())
	}
	if op.Text != nil && *op.Text != "" {
		if err := shape.SetText(*op.Text); err != nil {
			return nil, diagerr.Wrap(diagerr.EngineError, err, "failed to set text on shape %d", shape.ID())
		}
	}
	if op.Size != nil && (op.Size.Width != nil || op.Size.Height != nil) {
		w, h := shape.Size()
		if op.Size.Width != nil {
			w = float64(*op.Size.Width)
		}
		if op.Size.Height != nil {
			h = float64(*op.Size.Height)
		}
		if err := shape.SetSize(w, h); err != nil {
			// Size failures are logged, not returned.
			s.log.Warn("ops.size_rejected", zap.Int("shape_id", shape.ID()), zap.Error(err))
		}
	}

	return map[string]interface{}{
		"shape_id":    shape.ID(),
		"shape_name":  shape.Name(),
		"master_name": master.Name(),
		"stencil":     stencil.Name(),
		"resolved_by": map[string]string{"stencil": via, "master": matched},
	}, nil
}

func (s *Service) updateShape(page diagram.Page, op UpdateShape) (map[string]interface{}, error) {
	id := int(*op.ShapeID)
	shape, err := findShape(page, id)
	if err != nil {
		return nil, err
	}
	if shape == nil {
		return nil, diagerr.New(diagerr.ShapeNotFound, "Shape not found with ID: %d", id).WithDetails("shape_id", id)
	}

	var changed []string
	if op.Text != nil {
		if err := shape.SetText(*op.Text); err != nil {
			return nil, err
		}
		changed = append(changed, "text")
	}
	if x, y, ok := op.position(); ok {
		if err := shape.SetPosition(x, y); err != nil {
			return nil, err
		}
		changed = append(changed, "position")
	}
	if w, h := op.size(); w != nil || h != nil {
		cw, ch := shape.Size()
		if w != nil {
			cw = float64(*w)
		}
		if h != nil {
			ch = float64(*h)
		}
		if err := shape.SetSize(cw, ch); err != nil {
			return nil, err
		}
		changed = append(changed, "size")
	}

	return map[string]interface{}{
		"shape_id":   shape.ID(),
		"shape_name": shape.Name(),
		"updated":    changed,
	}, nil
}

func (s *Service) deleteShape(page diagram.Page, op DeleteShape) (map[string]interface{}, error) {
	id := int(*op.ShapeID)
	shape, err := findShape(page, id)
	if err != nil {
		return nil, err
	}
	if shape == nil {
		return nil, diagerr.New(diagerr.ShapeNotFound, "Shape not found with ID: %d", id).WithDetails("shape_id", id)
	}
	name := shape.Name()
	if err := shape.Delete(); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"shape_id":   id,
		"shape_name": name,
	}, nil
}

// addConnector checks both endpoints before failing so the caller learns
// about every missing id at once. When both are missing the code is the
// from-side one.
func (s *Service) addConnector(page diagram.Page, op AddConnector) (map[string]interface{}, error) {
	fromID, toID := int(*op.FromShapeID), int(*op.ToShapeID)
	from, err := findShape(page, fromID)
	if err != nil {
		return nil, err
	}
	to, err := findShape(page, toID)
	if err != nil {
		return nil, err
	}
	switch {
	case from == nil && to == nil:
		return nil, diagerr.New(diagerr.FromShapeNotFound, "From shape not found with ID: %d; To shape not found with ID: %d", fromID, toID).
			WithDetails("from_shape_id", fromID).
			WithDetails("to_shape_id", toID)
	case from == nil:
		return nil, diagerr.New(diagerr.FromShapeNotFound, "From shape not found with ID: %d", fromID).
			WithDetails("from_shape_id", fromID)
	case to == nil:
		return nil, diagerr.New(diagerr.ToShapeNotFound, "To shape not found with ID: %d", toID).
			WithDetails("to_shape_id", toID)
	}

	master, via, _ := firstOf(s.log, "connector", s.connectorChain())
	fx, fy := from.Position()
	connector, err := page.Drop(master, fx, fy)
	if err != nil {
		return nil, diagerr.Wrap(diagerr.EngineError, err, "Failed to create connector")
	}
	// From here on a failure leaves the dropped connector in place.
	if err := connector.GlueBegin(from); err != nil {
		return nil, diagerr.Wrap(diagerr.EngineError, err, "Failed to glue connector %d to shape %d", connector.ID(), fromID).
			WithDetails("connector_id", connector.ID())
	}
	if err := connector.GlueEnd(to); err != nil {
		return nil, diagerr.Wrap(diagerr.EngineError, err, "Failed to glue connector %d to shape %d", connector.ID(), toID).
			WithDetails("connector_id", connector.ID())
	}
	if op.Text != nil {
		if err := connector.SetText(*op.Text); err != nil {
			return nil, err
		}
	}

	return map[string]interface{}{
		"connector_id":   connector.ID(),
		"connector_name": connector.Name(),
		"from_shape_id":  from.ID(),
		"to_shape_id":    to.ID(),
		"connector_via":  via,
	}, nil
}

func (s *Service) deleteConnection(page diagram.Page, op DeleteConnection) (map[string]interface{}, error) {
	id := int(*op.ConnectorID)
	shapes, err := page.Shapes()
	if err != nil {
		return nil, err
	}
	for _, shape := range shapes {
		if shape.ID() != id || !shape.OneD() {
			continue
		}
		name := shape.Name()
		if err := shape.Delete(); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"connector_id":   id,
			"connector_name": name,
		}, nil
	}
	return nil, diagerr.New(diagerr.ConnectorNotFound, "Connector not found with ID: %d", id).WithDetails("connector_id", id)
}

func (s *Service) recordMutation(t *target.Target, op ShapeOp, data map[string]interface{}) {
	s.logAudit(audit.Entry{
		Operation: op.Name(),
		Document:  docRef(t.Doc),
		Page:      op.page(),
		Extra:     data,
	})
}
