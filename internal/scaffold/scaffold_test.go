package scaffold

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/postcard/internal/catalog"
	perrors "github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/renderer"
)

func TestSkeletonFiles(t *testing.T) {
	assert.Equal(t, []string{
		"TextEmail.html",
		"Welcome.mjml",
		"layouts/base.mjml",
		"previews/TextEmail.yml",
		"previews/Welcome.yml",
	}, SkeletonFiles())
}

func TestSuggestPath(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, filepath.Join(root, "emails"), SuggestPath(root))

	require.NoError(t, os.Mkdir(filepath.Join(root, "src"), 0o755))
	assert.Equal(t, filepath.Join(root, "src", "emails"), SuggestPath(root))
}

func TestGenerate(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "emails")

	written, err := Generate(dest)
	require.NoError(t, err)
	assert.Len(t, written, len(SkeletonFiles()))

	for _, name := range SkeletonFiles() {
		assert.FileExists(t, filepath.Join(dest, filepath.FromSlash(name)))
	}

	dir, ok := FindExisting(filepath.Dir(dest))
	require.True(t, ok)
	assert.Equal(t, dest, dir)
}

func TestGenerateRefusesToOverwrite(t *testing.T) {
	dest := t.TempDir()
	mine := filepath.Join(dest, "Welcome.mjml")
	require.NoError(t, os.WriteFile(mine, []byte("mine"), 0o600))

	_, err := Generate(dest)
	require.Error(t, err)
	assert.Equal(t, perrors.KindValidation, perrors.KindOf(err))

	content, err := os.ReadFile(mine)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(content))
	assert.NoFileExists(t, filepath.Join(dest, "TextEmail.html"), "nothing is written")
}

// The generated tree must be a valid catalog whose previews all render.
func TestGeneratedTreeRenders(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "emails")
	_, err := Generate(dest)
	require.NoError(t, err)

	ctx := context.Background()
	registry := catalog.NewRegistry(catalog.Options{EmailsDir: dest})
	c, err := registry.List(ctx)
	require.NoError(t, err)

	assert.True(t, catalog.IsDefaultExampleCatalog(c, false), "fresh tree is the example catalog")
	assert.False(t, catalog.IsDefaultExampleCatalog(c, true))

	passthrough := func(_ context.Context, src string) (string, error) { return src, nil }
	r := renderer.NewMJMLRenderer(renderer.Options{
		LayoutsDir: filepath.Join(dest, "layouts"),
		Compile:    passthrough,
	})

	require.NotEmpty(t, c.Paths())
	for _, p := range c.Paths() {
		t.Run(p.Template+"/"+p.Function, func(t *testing.T) {
			preview, err := registry.Lookup(ctx, p.Template, p.Function)
			require.NoError(t, err)

			html, err := r.Render(ctx, renderer.Request{Source: preview.Source, Data: preview.Data, Subject: preview.Subject})
			require.NoError(t, err)
			assert.NotEmpty(t, strings.TrimSpace(html))
			if name, ok := preview.Data["name"].(string); ok {
				assert.Contains(t, html, name)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("existing directory", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, "emails"), 0o755))
		prompter := &ScriptedPrompter{Confirms: []bool{false}}
		var out bytes.Buffer

		outcome, err := Init(root, prompter, &out)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(root, "emails"), outcome.EmailsDir)
		assert.False(t, outcome.StartPreview)
		assert.Equal(t, []string{"Looks good. Start preview mode?"}, prompter.Asked)
		assert.Equal(t, "Directory 'emails' found at "+filepath.Join(root, "emails")+"\nBye!\n", out.String())
	})

	t.Run("generates at the suggested path", func(t *testing.T) {
		root := t.TempDir()
		prompter := &ScriptedPrompter{}
		var out bytes.Buffer

		outcome, err := Init(root, prompter, &out)
		require.NoError(t, err)

		want := filepath.Join(root, "emails")
		assert.Equal(t, want, outcome.EmailsDir)
		assert.True(t, outcome.StartPreview)
		assert.NotEmpty(t, outcome.Generated)
		assert.Equal(t, []string{"Where should we generate it?", "Looks good. Start preview mode?"}, prompter.Asked)
		assert.Contains(t, out.String(), "Emails directory not found.\n")
		assert.Contains(t, out.String(), "Generated your emails dir at "+want+"\n")
	})

	t.Run("empty answer exits", func(t *testing.T) {
		root := t.TempDir()
		prompter := &ScriptedPrompter{Texts: []string{""}}
		var out bytes.Buffer

		outcome, err := Init(root, prompter, &out)
		require.NoError(t, err)

		assert.Empty(t, outcome.EmailsDir)
		assert.False(t, outcome.StartPreview)
		assert.Equal(t, "Emails directory not found.\nOK, bye!\n", out.String())
		_, ok := FindExisting(root)
		assert.False(t, ok)
	})
}

func TestTerminalPrompter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		def   bool
		want  bool
	}{
		{"default yes", "\n", true, true},
		{"default no", "\n", false, false},
		{"explicit yes", "y\n", false, true},
		{"explicit no", "no\n", true, false},
		{"closed input", "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewTerminalPrompter(strings.NewReader(tt.input), &out)

			got, err := p.Confirm("Start?", tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "? Start?")
		})
	}

	var out bytes.Buffer
	p := NewTerminalPrompter(strings.NewReader("\nsrc/mail\n"), &out)

	answer, err := p.Text("Where?", "emails")
	require.NoError(t, err)
	assert.Equal(t, "emails", answer)

	answer, err = p.Text("Where?", "emails")
	require.NoError(t, err)
	assert.Equal(t, "src/mail", answer)

	answer, err = p.Text("Where?", "emails")
	require.NoError(t, err)
	assert.Empty(t, answer, "closed input declines")
	assert.Contains(t, out.String(), "? Where? (emails)")
}
