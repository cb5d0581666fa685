package catalog

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	perrors "github.com/conneroisu/postcard/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFS is an in-memory file tree keyed by slash paths.
type memFS map[string]string

func (m memFS) list(dir string) ([]string, error) {
	var names []string
	prefix := filepath.ToSlash(dir) + "/"
	for path := range m {
		if rest, ok := strings.CutPrefix(path, prefix); ok && !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m memFS) read(path string) ([]byte, error) {
	content, ok := m[filepath.ToSlash(path)]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(content), nil
}

func newMemRegistry(files memFS) *Registry {
	return NewRegistry(Options{
		EmailsDir: "emails",
		List:      files.list,
		Read:      files.read,
		Exclude:   []string{"*.bak"},
	})
}

const welcomePreviews = `Default:
  template: Welcome.mjml
  subject: Welcome aboard
  data:
    name: Ada
Returning:
  template: Welcome.mjml
  data:
    name: Grace
    returning: true
Anonymous:
`

func TestRegistryList(t *testing.T) {
	reg := newMemRegistry(memFS{
		"emails/previews/Welcome.yml":   welcomePreviews,
		"emails/previews/TextEmail.yml": "Default:\n  template: TextEmail.html\n",
		"emails/previews/notes.txt":     "ignored",
		"emails/previews/Old.yml.bak":   "Default:\n",
		"emails/Welcome.mjml":           "<mjml></mjml>",
	})

	c, err := reg.List(context.Background())
	require.NoError(t, err)

	require.Len(t, c, 2)
	assert.Equal(t, "TextEmail.yml", c[0].Name)
	assert.Equal(t, "Text Email", c[0].Title)
	assert.Equal(t, []string{"Default"}, c[0].Functions)
	assert.Equal(t, "Welcome.yml", c[1].Name)
	assert.Equal(t, []string{"Default", "Returning", "Anonymous"}, c[1].Functions)
	assert.True(t, IsDefaultExampleCatalog(c, false))
}

func TestRegistryListMissingDirectory(t *testing.T) {
	reg := NewRegistry(Options{EmailsDir: filepath.Join(t.TempDir(), "nope")})

	c, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Empty(t, c)
}

func TestRegistryListFailure(t *testing.T) {
	reg := NewRegistry(Options{
		EmailsDir: "emails",
		List:      func(string) ([]string, error) { return nil, errors.New("permission denied") },
	})

	_, err := reg.List(context.Background())
	require.Error(t, err)
	assert.Equal(t, perrors.KindIO, perrors.KindOf(err))
}

func TestRegistryReflectsDiskOnEveryCall(t *testing.T) {
	files := memFS{"emails/previews/Welcome.yml": "Default:\n"}
	reg := newMemRegistry(files)

	c, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, c, 1)

	files["emails/previews/Receipt.yml"] = "Paid:\nRefunded:\n"
	files["emails/previews/Welcome.yml"] = "Default:\nReturning:\n"

	c, err = reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, c, 2)
	assert.Equal(t, []string{"Paid", "Refunded"}, c[0].Functions)
	assert.Equal(t, []string{"Default", "Returning"}, c[1].Functions)
}

func TestRegistryInvalidPreviewFile(t *testing.T) {
	reg := newMemRegistry(memFS{
		"emails/previews/Broken.yml":  "Default: [unclosed\n",
		"emails/previews/Scalar.yml":  "just a string\n",
		"emails/previews/Welcome.yml": "Default:\n",
	})

	c, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, c, 3)

	broken, ok := c.Find("Broken.yml")
	require.True(t, ok)
	assert.Empty(t, broken.Functions)
	assert.NotEmpty(t, broken.Error)

	scalar, ok := c.Find("Scalar.yml")
	require.True(t, ok)
	assert.Contains(t, scalar.Error, "mapping")

	_, err = reg.Lookup(context.Background(), "Broken.yml", "Default")
	require.Error(t, err)
	assert.True(t, perrors.IsRenderFault(err))
}

func TestRegistryDuplicateFunction(t *testing.T) {
	reg := newMemRegistry(memFS{
		"emails/previews/Welcome.yml": "Default:\nDefault:\n",
	})

	c, err := reg.List(context.Background())
	require.NoError(t, err)
	require.Len(t, c, 1)
	assert.NotEmpty(t, c[0].Error)
	assert.Empty(t, c[0].Functions)
}

func TestRegistryLookup(t *testing.T) {
	reg := newMemRegistry(memFS{
		"emails/previews/Welcome.yml":   welcomePreviews,
		"emails/previews/Receipt.yml":   "Paid:\n",
		"emails/previews/Escape.yml":    "Default:\n  template: ../../etc/passwd\n",
		"emails/previews/TextEmail.yml": "Default:\n  template: text/TextEmail.html\n",
	})
	ctx := context.Background()

	t.Run("resolves declared template", func(t *testing.T) {
		p, err := reg.Lookup(ctx, "Welcome.yml", "Default")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("emails", "Welcome.mjml"), p.Source)
		assert.Equal(t, "Welcome aboard", p.Subject)
		assert.Equal(t, map[string]any{"name": "Ada"}, p.Data)
	})

	t.Run("nested template path", func(t *testing.T) {
		p, err := reg.Lookup(ctx, "TextEmail.yml", "Default")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("emails", "text", "TextEmail.html"), p.Source)
	})

	t.Run("defaults template to stem", func(t *testing.T) {
		p, err := reg.Lookup(ctx, "Receipt.yml", "Paid")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("emails", "Receipt.mjml"), p.Source)
		assert.Nil(t, p.Data)
	})

	t.Run("missing function", func(t *testing.T) {
		_, err := reg.Lookup(ctx, "Welcome.yml", "Missing")
		require.Error(t, err)
		assert.True(t, perrors.IsNotFound(err))
		assert.True(t, errors.Is(err, perrors.ErrFunctionNotFound("", "")))
	})

	t.Run("missing template", func(t *testing.T) {
		_, err := reg.Lookup(ctx, "Nope.yml", "Default")
		require.Error(t, err)
		assert.True(t, perrors.IsNotFound(err))
		assert.True(t, errors.Is(err, perrors.ErrTemplateNotFound("")))
	})

	t.Run("template escaping emails dir", func(t *testing.T) {
		_, err := reg.Lookup(ctx, "Escape.yml", "Default")
		require.Error(t, err)
		assert.Equal(t, perrors.KindValidation, perrors.KindOf(err))
	})
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	names, err := ListDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yml", "b.yml"}, names)

	names, err = ListDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRegistryOnDisk(t *testing.T) {
	emails := t.TempDir()
	previews := filepath.Join(emails, "previews")
	require.NoError(t, os.Mkdir(previews, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(previews, "Welcome.yml"), []byte(welcomePreviews), 0o600))

	reg := NewRegistry(Options{EmailsDir: emails})
	p, err := reg.Lookup(context.Background(), "Welcome.yml", "Returning")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(emails, "Welcome.mjml"), p.Source)
	assert.Equal(t, true, p.Data["returning"])
}
