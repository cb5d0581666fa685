// Package export renders every preview to static HTML files.
//
// The output tree mirrors the preview routes:
//
//	<out>/index.json
//	<out>/<template>/<function>.html
//	<out>/<template>/<function>.errors.json   (only for failed renders)
//
// A failed render never aborts the export; it is written next to the other
// outputs and listed in the summary.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/postcard/internal/catalog"
	perrors "github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/logging"
	"github.com/conneroisu/postcard/internal/preview"
	"github.com/conneroisu/postcard/internal/renderer"
)

// IndexFile is the name of the catalog written at the export root.
const IndexFile = "index.json"

// Source renders previews. It is satisfied by *preview.Service.
type Source interface {
	Catalog(ctx context.Context) catalog.Catalog
	Render(ctx context.Context, template, function string) preview.Result
}

// Index is the content of index.json.
type Index struct {
	Static   bool            `json:"static"`
	Previews catalog.Catalog `json:"previews"`
	Failed   []catalog.Path  `json:"failed"`
}

// Summary describes a finished export.
type Summary struct {
	OutDir   string
	Rendered int
	Failed   []catalog.Path
	Files    []string
}

// Exporter writes static renders of a catalog.
type Exporter struct {
	source Source
	logger logging.Logger
}

// New creates an exporter.
func New(source Source, logger logging.Logger) *Exporter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Exporter{source: source, logger: logger.WithComponent("export")}
}

// Export renders every (template, function) pair into outDir.
func (e *Exporter) Export(ctx context.Context, outDir string) (*Summary, error) {
	perf := logging.StartOperation(e.logger, "export")

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		err = perrors.NewIOError(perrors.ErrCodeFileWrite, "creating export directory", err).WithLocation(outDir, 0)
		perf.EndWithError(ctx, err)
		return nil, err
	}

	c := e.source.Catalog(ctx)
	summary := &Summary{OutDir: outDir, Failed: []catalog.Path{}}

	for _, p := range c.Paths() {
		if err := ctx.Err(); err != nil {
			perf.EndWithError(ctx, err)
			return summary, err
		}

		if !safeSegment(p.Template) || !safeSegment(p.Function) {
			e.logger.Warn(ctx, perrors.ErrPathTraversal(p.Template+"/"+p.Function), "Skipping preview with unsafe name")
			summary.Failed = append(summary.Failed, p)
			continue
		}

		dir := filepath.Join(outDir, p.Template)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			perf.EndWithError(ctx, err)
			return summary, perrors.NewIOError(perrors.ErrCodeFileWrite, "creating template directory", err).WithLocation(dir, 0)
		}

		result := e.source.Render(ctx, p.Template, p.Function)
		if result.OK() {
			file := filepath.Join(dir, p.Function+".html")
			if err := os.WriteFile(file, []byte(*result.HTML), 0o644); err != nil {
				return summary, perrors.NewIOError(perrors.ErrCodeFileWrite, "writing render", err).WithLocation(file, 0)
			}
			summary.Rendered++
			summary.Files = append(summary.Files, file)
			continue
		}

		file := filepath.Join(dir, p.Function+".errors.json")
		if err := writeJSON(file, result.Errors); err != nil {
			return summary, err
		}
		summary.Failed = append(summary.Failed, p)
		summary.Files = append(summary.Files, file)
		e.logger.Info(ctx, "Preview failed to render", "template", p.Template, "function", p.Function,
			"errors", joinErrors(result.Errors))
	}

	index := filepath.Join(outDir, IndexFile)
	if err := writeJSON(index, Index{Static: true, Previews: c, Failed: summary.Failed}); err != nil {
		perf.EndWithError(ctx, err)
		return summary, err
	}
	summary.Files = append(summary.Files, index)

	perf.End(ctx)
	e.logger.Info(ctx, "Export finished", "out", outDir, "rendered", summary.Rendered, "failed", len(summary.Failed))
	return summary, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return perrors.NewIOError(perrors.ErrCodeFileWrite, "writing export file", err).WithLocation(path, 0)
	}
	return nil
}

// safeSegment reports whether name can be used as a single path element.
func safeSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

func joinErrors(errs []renderer.RenderError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}
