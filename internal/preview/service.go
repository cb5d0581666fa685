// Package preview is the render endpoint: it resolves a (template, function)
// pair against the catalog, renders it and packages the outcome as a Result.
// Faults never cross this boundary; they become Result errors.
package preview

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/conneroisu/postcard/internal/catalog"
	perrors "github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/logging"
	"github.com/conneroisu/postcard/internal/renderer"
)

// Result is the render response. Exactly one of HTML and Errors is set.
type Result struct {
	HTML     *string                `json:"html"`
	Errors   []renderer.RenderError `json:"errors"`
	Previews catalog.Catalog        `json:"previews"`
}

// OK reports whether the render produced HTML.
func (r Result) OK() bool {
	return r.HTML != nil && len(r.Errors) == 0
}

// Registry is the part of the catalog the service needs.
type Registry interface {
	List(ctx context.Context) (catalog.Catalog, error)
	Lookup(ctx context.Context, template, function string) (*catalog.Preview, error)
}

// Service renders previews.
type Service struct {
	registry Registry
	renderer renderer.Renderer
	timeout  time.Duration
	logger   logging.Logger
}

// NewService creates a render endpoint. A zero timeout disables the bound.
func NewService(registry Registry, r renderer.Renderer, timeout time.Duration, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		registry: registry,
		renderer: r,
		timeout:  timeout,
		logger:   logger.WithComponent("preview"),
	}
}

// Catalog lists the current previews. Listing failures are logged and
// reported as an empty catalog.
func (s *Service) Catalog(ctx context.Context) catalog.Catalog {
	c, err := s.registry.List(ctx)
	if err != nil {
		s.logger.Warn(ctx, err, "Failed to list previews")
		return catalog.Catalog{}
	}
	return c
}

// Render resolves and renders one preview. It always returns a well-formed
// Result, for any input strings.
func (s *Service) Render(ctx context.Context, template, function string) Result {
	result := Result{
		Errors:   []renderer.RenderError{},
		Previews: s.Catalog(ctx),
	}

	_, html, err := s.RenderPreview(ctx, template, function)
	if err != nil {
		result.Errors = renderer.ToErrors(err)
		return result
	}
	result.HTML = &html
	return result
}

// RenderPreview resolves the preview and returns it with its HTML. Errors are
// PostcardErrors of kind NotFound or RenderFault (or Validation for unsafe
// template paths).
func (s *Service) RenderPreview(ctx context.Context, template, function string) (*catalog.Preview, string, error) {
	perf := logging.StartOperation(s.logger.With("template", template, "function", function), "render")

	if template == "" || function == "" {
		err := perrors.NewNotFoundError(perrors.ErrCodeFunctionNotFound, "no preview selected").
			WithPreview(template, function)
		perf.EndWithError(ctx, err)
		return nil, "", err
	}

	p, err := s.registry.Lookup(ctx, template, function)
	if err != nil {
		perf.EndWithError(ctx, err)
		return nil, "", err
	}

	html, err := s.renderBounded(ctx, p)
	if err == nil && html == "" {
		err = perrors.NewRenderFault(perrors.ErrCodeEmptyOutput, "rendered empty output", nil).
			WithLocation(p.Source, 0)
	}
	if err != nil {
		var pe *perrors.PostcardError
		if errors.As(err, &pe) && pe.Template == "" {
			pe.WithPreview(template, function)
		}
		perf.EndWithError(ctx, err)
		return p, "", err
	}

	perf.End(ctx)
	return p, html, nil
}

type renderOutcome struct {
	html string
	err  error
}

// renderBounded runs the renderer on its own goroutine so that a panic is
// recovered and a renderer that ignores its context cannot hold the request
// past the timeout. Such a goroutine is abandoned, not killed.
func (s *Service) renderBounded(ctx context.Context, p *catalog.Preview) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan renderOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(ctx, fmt.Errorf("%v", r), "Renderer panicked", "stack", string(debug.Stack()))
				done <- renderOutcome{err: perrors.NewRenderFault(perrors.ErrCodeRenderPanic, fmt.Sprint(r), nil).
					WithLocation(p.Source, 0)}
			}
		}()
		html, err := s.renderer.Render(ctx, renderer.Request{Source: p.Source, Data: p.Data, Subject: p.Subject})
		done <- renderOutcome{html: html, err: err}
	}()

	select {
	case out := <-done:
		return out.html, out.err
	case <-ctx.Done():
		return "", perrors.NewRenderFault(perrors.ErrCodeRenderTimeout, "render did not finish", ctx.Err()).
			WithLocation(p.Source, 0)
	}
}
