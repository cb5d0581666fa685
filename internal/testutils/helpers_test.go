package testutils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaffoldEmails(t *testing.T) {
	dir := ScaffoldEmails(t)
	assert.FileExists(t, filepath.Join(dir, "previews", "Welcome.yml"))
	assert.FileExists(t, filepath.Join(dir, "layouts", "base.mjml"))
}

func TestCreateTestConfig(t *testing.T) {
	cfg := CreateTestConfig("/tmp/emails")
	assert.Equal(t, "/tmp/emails", cfg.Emails.Dir)
	assert.Equal(t, filepath.Join("/tmp/emails", "previews"), cfg.Emails.PreviewsPath())
	assert.False(t, cfg.Server.Open)
	assert.Zero(t, cfg.Server.Port)
}

func TestNewTestService(t *testing.T) {
	dir := ScaffoldEmails(t)
	result := NewTestService(dir).Render(context.Background(), "Welcome.yml", "Default")
	require.True(t, result.OK(), "%v", result.Errors)
	assert.Contains(t, *result.HTML, "<mjml>")
	assert.Contains(t, *result.HTML, "Hi Ada")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "layouts/footer.mjml", "<mj-text>bye</mj-text>")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<mj-text>bye</mj-text>", string(content))
}

func TestWaitForFileChange(t *testing.T) {
	path := WriteFile(t, t.TempDir(), "a.mjml", "one")
	info, err := os.Stat(path)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.Chtimes(path, time.Now().Add(time.Second), time.Now().Add(time.Second))
	}()

	WaitForFileChange(t, path, info.ModTime(), 2*time.Second)
}
