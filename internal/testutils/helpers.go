// Package testutils holds fixtures shared by package tests: a scaffolded
// emails tree, a configuration pointing at it and a render stack that skips
// the MJML engine.
package testutils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/postcard/internal/catalog"
	"github.com/conneroisu/postcard/internal/config"
	"github.com/conneroisu/postcard/internal/preview"
	"github.com/conneroisu/postcard/internal/renderer"
	"github.com/conneroisu/postcard/internal/scaffold"
)

// Passthrough is a CompileFunc that returns the executed template as is, so
// tests can assert on MJML markup without running the compiler.
func Passthrough(_ context.Context, src string) (string, error) {
	return src, nil
}

// ScaffoldEmails generates the bundled example tree in a temporary directory
// and returns the emails directory.
func ScaffoldEmails(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "emails")
	_, err := scaffold.Generate(dir)
	require.NoError(t, err)
	return dir
}

// WriteFile writes content to rel under dir, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// CreateTestConfig returns a configuration for a server on a free local port
// with a short debounce and no browser.
func CreateTestConfig(emailsDir string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 0,
			Open: false,
		},
		Emails: config.EmailsConfig{
			Dir:             emailsDir,
			PreviewsDir:     config.DefaultPreviewsDir,
			ExcludePatterns: []string{"*~"},
		},
		Render: config.RenderConfig{
			Validation: "skip",
			Timeout:    time.Second,
		},
		Development: config.DevelopmentConfig{
			HotReload: true,
			Debounce:  20 * time.Millisecond,
		},
	}
}

// NewTestService builds the render endpoint over emailsDir using Passthrough.
func NewTestService(emailsDir string) *preview.Service {
	registry := catalog.NewRegistry(catalog.Options{EmailsDir: emailsDir})
	r := renderer.NewMJMLRenderer(renderer.Options{
		LayoutsDir: filepath.Join(emailsDir, "layouts"),
		Compile:    Passthrough,
	})
	return preview.NewService(registry, r, time.Second, nil)
}

// SecurityTestCases holds hostile preview names for request and argument tests.
var SecurityTestCases = struct {
	PathTraversal   []string
	ScriptInjection []string
}{
	PathTraversal: []string{
		"../../../etc/passwd",
		"..\\..\\..\\windows\\system32\\config\\sam",
		"....//....//....//etc/passwd",
		"..%2F..%2F..%2Fetc%2Fpasswd",
		"/./../../etc/passwd",
	},
	ScriptInjection: []string{
		"<script>alert('xss')</script>",
		"<img src=x onerror=alert('xss')>",
		"javascript:alert('xss')",
		"<svg onload=alert('xss')>",
	},
}

// WaitForFileChange waits for a file to be modified after originalModTime.
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
