// Package renderer turns an email template plus sample data into HTML.
//
// Templates are executed with html/template, with any files under the
// layouts directory parsed into the same set so {{template "layout" .}}
// works. MJML sources are then compiled to HTML with mjml-go; plain .html
// sources are returned as executed.
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Boostport/mjml-go"

	perrors "github.com/conneroisu/postcard/internal/errors"
)

// Request is a single render.
type Request struct {
	// Source is the path of the template file.
	Source string
	Data   map[string]any
	// Subject is exposed to templates as .Subject when the data does not
	// already define it.
	Subject string
}

// Renderer renders a template to HTML.
type Renderer interface {
	Render(ctx context.Context, req Request) (string, error)
}

// CompileFunc compiles MJML markup to HTML.
type CompileFunc func(ctx context.Context, src string) (string, error)

// Options configures an MJMLRenderer.
type Options struct {
	// LayoutsDir holds shared partials. Missing directories are ignored.
	LayoutsDir string
	Minify     bool
	Beautify   bool
	// Validation is one of strict, soft or skip.
	Validation string
	// Compile overrides the MJML compiler.
	Compile CompileFunc
}

// MJMLRenderer renders .mjml and .html templates.
type MJMLRenderer struct {
	layoutsDir string
	compile    CompileFunc
}

// NewMJMLRenderer creates a renderer backed by mjml-go.
func NewMJMLRenderer(opts Options) *MJMLRenderer {
	compile := opts.Compile
	if compile == nil {
		compile = mjmlCompiler(opts)
	}
	return &MJMLRenderer{layoutsDir: opts.LayoutsDir, compile: compile}
}

func mjmlCompiler(opts Options) CompileFunc {
	level := mjml.Strict
	switch opts.Validation {
	case "soft":
		level = mjml.Soft
	case "skip":
		level = mjml.Skip
	}

	return func(ctx context.Context, src string) (string, error) {
		return mjml.ToHTML(ctx, src,
			mjml.WithMinify(opts.Minify),
			mjml.WithBeautify(opts.Beautify && !opts.Minify),
			mjml.WithValidationLevel(level),
		)
	}
}

// Render executes the template and, for MJML sources, compiles the result.
func (r *MJMLRenderer) Render(ctx context.Context, req Request) (string, error) {
	src, err := os.ReadFile(req.Source)
	if err != nil {
		return "", perrors.NewRenderFault(perrors.ErrCodeFileRead, "reading template", err).
			WithLocation(req.Source, 0)
	}

	executed, err := r.execute(req, string(src))
	if err != nil {
		return "", err
	}

	if !isMJML(req.Source) {
		return executed, nil
	}

	out, err := r.compile(ctx, executed)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", perrors.NewRenderFault(perrors.ErrCodeRenderTimeout, "render cancelled", ctxErr).
				WithLocation(req.Source, 0)
		}
		return "", compileFault(err, req.Source)
	}
	return out, nil
}

func (r *MJMLRenderer) execute(req Request, src string) (string, error) {
	name := filepath.Base(req.Source)
	tmpl := template.New(name).Funcs(funcMap)

	layouts, err := r.layoutFiles()
	if err != nil {
		return "", perrors.NewRenderFault(perrors.ErrCodeFileRead, "reading layouts", err).
			WithLocation(r.layoutsDir, 0)
	}
	if len(layouts) > 0 {
		if _, err := tmpl.ParseFiles(layouts...); err != nil {
			return "", r.templateFault(err, r.layoutsDir)
		}
	}

	if _, err := tmpl.Parse(src); err != nil {
		return "", r.templateFault(err, req.Source)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData(req)); err != nil {
		return "", r.templateFault(err, req.Source)
	}
	return buf.String(), nil
}

func (r *MJMLRenderer) layoutFiles() ([]string, error) {
	if r.layoutsDir == "" {
		return nil, nil
	}
	var files []string
	for _, pattern := range []string{"*.mjml", "*.html"} {
		matches, err := filepath.Glob(filepath.Join(r.layoutsDir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

func templateData(req Request) map[string]any {
	data := make(map[string]any, len(req.Data)+1)
	for k, v := range req.Data {
		data[k] = v
	}
	if _, ok := data["Subject"]; !ok && req.Subject != "" {
		data["Subject"] = req.Subject
	}
	return data
}

var funcMap = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"default": func(def, v any) any {
		if v == nil || v == "" {
			return def
		}
		return v
	},
}

// Template errors look like "template: name:12:5: message" or
// "html/template:name:12:5: message".
var templateLine = regexp.MustCompile(`^(?:html/)?template: ?([^:]+):(\d+)(?::\d+)?: (.*)$`)

// templateFault converts a parse or exec error into a RenderFault. Errors
// raised inside a layout are attributed to the layout file.
func (r *MJMLRenderer) templateFault(err error, file string) *perrors.PostcardError {
	msg := err.Error()
	line := 0
	if m := templateLine.FindStringSubmatch(msg); m != nil {
		line, _ = strconv.Atoi(m[2])
		msg = m[3]
		if m[1] != filepath.Base(file) && r.layoutsDir != "" {
			file = filepath.Join(r.layoutsDir, m[1])
		}
	}
	return perrors.NewRenderFault(perrors.ErrCodeTemplateExec, msg, nil).WithLocation(file, line)
}

// compileFault wraps an MJML compiler failure, located at the first
// validation detail when the compiler reports one.
func compileFault(err error, file string) *perrors.PostcardError {
	fault := perrors.NewRenderFault(perrors.ErrCodeMJMLCompile, "mjml compile failed", err).
		WithLocation(file, 0)

	var mjmlErr mjml.Error
	if errors.As(err, &mjmlErr) && len(mjmlErr.Details) > 0 {
		d := mjmlErr.Details[0]
		fault.WithLocation(file, d.Line).WithTag(d.TagName)
	}
	return fault
}

func isMJML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mjml")
}

// RenderError is a render problem in the shape the preview UI displays.
type RenderError struct {
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
	Line    int    `json:"line,omitempty" yaml:"line,omitempty"`
	TagName string `json:"tagName,omitempty" yaml:"tagName,omitempty"`
	File    string `json:"file,omitempty" yaml:"file,omitempty"`
}

func (e RenderError) String() string {
	var b strings.Builder
	b.WriteString(e.Kind)
	if e.File != "" {
		fmt.Fprintf(&b, " %s", e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
	} else if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.TagName != "" {
		fmt.Fprintf(&b, " <%s>", e.TagName)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}
