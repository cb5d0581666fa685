package catalog

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	perrors "github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/logging"
)

// ListFunc returns the file names (not paths) found directly in dir. A
// missing directory is reported as an empty list.
type ListFunc func(dir string) ([]string, error)

// ReadFunc returns the content of a file.
type ReadFunc func(path string) ([]byte, error)

// ListDir is the disk-backed ListFunc. Names are returned in lexical order.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Preview is a resolved preview function, ready to be rendered.
type Preview struct {
	Template string
	Function string
	// Source is the path of the template file to execute.
	Source  string
	Subject string
	Data    map[string]any
}

// Options configures a Registry.
type Options struct {
	// EmailsDir is the root of the template tree.
	EmailsDir string
	// PreviewsDir holds the preview files. Defaults to <EmailsDir>/previews.
	PreviewsDir string
	// Exclude holds glob patterns matched against preview file names.
	Exclude []string
	List    ListFunc
	Read    ReadFunc
	Logger  logging.Logger
}

// Registry enumerates previews. It holds no cached state.
type Registry struct {
	emailsDir   string
	previewsDir string
	exclude     []string
	list        ListFunc
	read        ReadFunc
	logger      logging.Logger
}

// NewRegistry creates a registry. Zero-valued options fall back to disk
// access and a discarding logger.
func NewRegistry(opts Options) *Registry {
	if opts.PreviewsDir == "" {
		opts.PreviewsDir = filepath.Join(opts.EmailsDir, "previews")
	}
	if opts.List == nil {
		opts.List = ListDir
	}
	if opts.Read == nil {
		opts.Read = os.ReadFile
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	return &Registry{
		emailsDir:   opts.EmailsDir,
		previewsDir: opts.PreviewsDir,
		exclude:     opts.Exclude,
		list:        opts.List,
		read:        opts.Read,
		logger:      opts.Logger.WithComponent("catalog"),
	}
}

// EmailsDir returns the template root the registry reads from.
func (r *Registry) EmailsDir() string {
	return r.emailsDir
}

type parsedFile struct {
	entry     Entry
	path      string
	functions []previewFunction
	err       error
}

func (r *Registry) discover(ctx context.Context) ([]parsedFile, error) {
	names, err := r.list(r.previewsDir)
	if err != nil {
		return nil, perrors.NewIOError(perrors.ErrCodeFileRead, "listing previews", err).
			WithLocation(r.previewsDir, 0)
	}

	files := make([]parsedFile, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isPreviewFile(name) || r.excluded(name) {
			continue
		}

		path := filepath.Join(r.previewsDir, name)
		file := parsedFile{
			entry: Entry{Name: name, Title: Title(name), Functions: []string{}},
			path:  path,
		}

		content, err := r.read(path)
		if err == nil {
			file.functions, err = parsePreviewFile(content)
		}
		if err != nil {
			file.err = err
			file.entry.Error = err.Error()
			file.functions = nil
			r.logger.Warn(ctx, err, "Invalid preview file", "path", path)
		}
		for _, fn := range file.functions {
			file.entry.Functions = append(file.entry.Functions, fn.name)
		}
		files = append(files, file)
	}
	return files, nil
}

// List rebuilds the catalog from disk. A missing previews directory yields an
// empty catalog.
func (r *Registry) List(ctx context.Context) (Catalog, error) {
	files, err := r.discover(ctx)
	if err != nil {
		return Catalog{}, err
	}

	c := make(Catalog, 0, len(files))
	for _, f := range files {
		c = append(c, f.entry)
	}
	r.logger.Debug(ctx, "Catalog rebuilt", "templates", len(c))
	return c, nil
}

// Lookup resolves a single preview function. It fails with a NotFound error
// when the template or function is absent, and with a RenderFault when the
// preview file itself is invalid.
func (r *Registry) Lookup(ctx context.Context, template, function string) (*Preview, error) {
	files, err := r.discover(ctx)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if f.entry.Name != template {
			continue
		}
		if f.err != nil {
			return nil, perrors.NewRenderFault(perrors.ErrCodePreviewInvalid, "invalid preview file", f.err).
				WithPreview(template, function).
				WithLocation(f.path, 0)
		}
		for _, fn := range f.functions {
			if fn.name != function {
				continue
			}
			source, err := r.resolveSource(template, fn.spec.Template)
			if err != nil {
				return nil, err
			}
			return &Preview{
				Template: template,
				Function: function,
				Source:   source,
				Subject:  fn.spec.Subject,
				Data:     fn.spec.Data,
			}, nil
		}
		return nil, perrors.ErrFunctionNotFound(template, function)
	}

	return nil, perrors.ErrTemplateNotFound(template).WithPreview(template, function)
}

// resolveSource maps the template named in a preview file to a path under the
// emails directory. Without an explicit template the preview file stem is
// used with an .mjml extension.
func (r *Registry) resolveSource(template, declared string) (string, error) {
	if declared == "" {
		declared = Stem(template) + ".mjml"
	}

	clean := filepath.Clean(filepath.FromSlash(declared))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", perrors.ErrPathTraversal(declared).WithPreview(template, "")
	}
	return filepath.Join(r.emailsDir, clean), nil
}

func (r *Registry) excluded(name string) bool {
	for _, pattern := range r.exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func isPreviewFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}
