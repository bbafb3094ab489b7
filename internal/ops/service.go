// Package ops implements the diagram operations: analysis, shape and
// connector modification, connection checks, document lifecycle, export
// and stencil listings.
//
// A Service owns the engine. Every operation holds the engine exclusively
// for its whole duration; concurrent callers queue. Domain failures come
// back as error Results, never as Go errors. The Go error return is only
// set when the caller's context ends before the engine is acquired.
//
// Multi-step mutations are not transactional. If adding a connector drops
// the connector and then fails to glue it, the connector stays on the page.
package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mcp-visio/mcpvisio/internal/audit"
	"github.com/mcp-visio/mcpvisio/internal/diagerr"
	"github.com/mcp-visio/mcpvisio/internal/diagram"
	"github.com/mcp-visio/mcpvisio/internal/target"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the uniform outcome of an operation.
type Result struct {
	Status  string                 `json:"status"`
	Data    interface{}            `json:"data,omitempty"`
	Message string                 `json:"message,omitempty"`
	Code    diagerr.Code           `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// OK reports whether the operation succeeded.
func (r *Result) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

func success(data interface{}) *Result {
	return &Result{Status: StatusSuccess, Data: data}
}

// Fail converts err to an error Result. Errors without a code are engine
// errors and keep their message.
func Fail(err error) *Result {
	var de *diagerr.Error
	if errors.As(err, &de) {
		return &Result{Status: StatusError, Code: de.Code, Message: de.Error(), Details: de.Details}
	}
	return &Result{Status: StatusError, Code: diagerr.EngineError, Message: err.Error()}
}

// Service runs operations against one engine.
type Service struct {
	engine   diagram.Engine
	resolver *target.Resolver
	sem      chan struct{}
	audit    *audit.Logger
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAudit records successful mutations to a.
func WithAudit(a *audit.Logger) Option {
	return func(s *Service) { s.audit = a }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l.Named("ops") }
}

// New returns a service over the resolver's engine.
func New(r *target.Resolver, opts ...Option) *Service {
	s := &Service{
		engine:   r.Engine,
		resolver: r,
		sem:      make(chan struct{}, 1),
		audit:    audit.New("", false),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run holds the engine for the duration of fn.
func (s *Service) run(ctx context.Context, name string, fn func() *Result) (*Result, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: waiting for engine: %w", name, ctx.Err())
	}
	defer func() { <-s.sem }()

	start := time.Now()
	res := fn()
	fields := []zap.Field{zap.String("op", name), zap.Duration("took", time.Since(start)), zap.String("status", res.Status)}
	if !res.OK() {
		fields = append(fields, zap.String("code", string(res.Code)), zap.String("message", res.Message))
	}
	s.log.Debug("ops.done", fields...)
	return res, nil
}

// withTarget resolves ref, runs fn and releases the target. Owned targets
// are saved only when persist is set and fn succeeded; a failed mutation
// closes the document without touching its file.
func (s *Service) withTarget(ref string, persist bool, fn func(t *target.Target) *Result) *Result {
	t, err := s.resolver.Resolve(ref)
	if err != nil {
		return Fail(err)
	}
	res := fn(t)
	if err := t.Release(persist && res.OK()); err != nil {
		s.log.Warn("ops.release_failed", zap.String("path", t.Path), zap.Error(err))
		if res.OK() {
			return Fail(diagerr.Wrap(diagerr.EngineError, err, "failed to save %s", t.Doc.Name()))
		}
	}
	return res
}

func pageAt(doc diagram.Document, index int) (diagram.Page, error) {
	pages, err := doc.Pages()
	if err != nil {
		return nil, err
	}
	if index < 1 || index > len(pages) {
		return nil, diagerr.New(diagerr.PageIndexOutOfRange,
			"Page index %d out of range (document has %d pages)", index, len(pages)).
			WithDetails("page_index", index).
			WithDetails("pages_count", len(pages))
	}
	return pages[index-1], nil
}

// findShape scans the page in order and returns the first shape with id.
func findShape(p diagram.Page, id int) (diagram.Shape, error) {
	shapes, err := p.Shapes()
	if err != nil {
		return nil, err
	}
	for _, s := range shapes {
		if s.ID() == id {
			return s, nil
		}
	}
	return nil, nil
}

func masterName(s diagram.Shape) string {
	if m := s.Master(); m != nil {
		return m.Name()
	}
	return "None"
}

func docRef(doc diagram.Document) string {
	if doc.FullName() != "" {
		return doc.FullName()
	}
	return doc.Name()
}
