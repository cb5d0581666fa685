package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "successful load with defaults",
			setup: func() {
				viper.Reset()
				viper.Set("emails.dir", "emails")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultPort, cfg.Server.Port)
				assert.Equal(t, DefaultHost, cfg.Server.Host)
				assert.True(t, cfg.Server.Open)
				assert.Equal(t, "previews", cfg.Emails.PreviewsDir)
				assert.Equal(t, filepath.Join("emails", "previews"), cfg.Emails.PreviewsPath())
				assert.Equal(t, "strict", cfg.Render.Validation)
				assert.True(t, cfg.Render.Beautify)
				assert.Equal(t, DefaultRenderTimeout, cfg.Render.Timeout)
				assert.True(t, cfg.Development.HotReload)
				assert.Equal(t, DefaultDebounce, cfg.Development.Debounce)
				assert.True(t, cfg.Analytics.Enabled)
				assert.Equal(t, DefaultPostHogHost, cfg.Analytics.Endpoint)
				assert.Equal(t, DefaultShutdownGrace, cfg.Analytics.ShutdownGrace)
				assert.Equal(t, DefaultExportDir, cfg.Export.OutDir)
				assert.Equal(t, "info", cfg.Log.Level)
				assert.Equal(t, "text", cfg.Log.Format)
				assert.False(t, cfg.Static)
			},
		},
		{
			name: "explicit values",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", 4000)
				viper.Set("server.host", "0.0.0.0")
				viper.Set("emails.dir", "src/emails")
				viper.Set("render.minify", true)
				viper.Set("render.validation", "soft")
				viper.Set("render.timeout", "3s")
				viper.Set("development.debounce", "20ms")
				viper.Set("static", true)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 4000, cfg.Server.Port)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, "src/emails", cfg.Emails.Dir)
				assert.True(t, cfg.Render.Minify)
				assert.Equal(t, "soft", cfg.Render.Validation)
				assert.Equal(t, 3*time.Second, cfg.Render.Timeout)
				assert.Equal(t, 20*time.Millisecond, cfg.Development.Debounce)
				assert.True(t, cfg.Static)
			},
		},
		{
			name: "no-open flag override",
			setup: func() {
				viper.Reset()
				viper.Set("emails.dir", "emails")
				viper.Set("server.open", true)
				viper.Set("server.no-open", true)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Server.Open)
			},
		},
		{
			name: "invalid viper config",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "unknown validation level",
			setup: func() {
				viper.Reset()
				viper.Set("emails.dir", "emails")
				viper.Set("render.validation", "lenient")
			},
			expectError: true,
		},
		{
			name: "emails dir escaping the project",
			setup: func() {
				viper.Reset()
				viper.Set("emails.dir", "../elsewhere")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()

			cfg, err := Load()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.check(t, cfg)
		})
	}
}

func TestFindEmailsDir(t *testing.T) {
	root := t.TempDir()

	_, ok := FindEmailsDir(root)
	assert.False(t, ok)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "emails"), 0o755))
	dir, ok := FindEmailsDir(root)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "emails"), dir)

	// src/emails is probed first
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "emails"), 0o755))
	dir, ok = FindEmailsDir(root)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "src", "emails"), dir)
}

func TestSourceRoots(t *testing.T) {
	tests := []struct {
		name   string
		emails EmailsConfig
		want   []string
	}{
		{"nested previews", EmailsConfig{Dir: "emails", PreviewsDir: "previews"}, []string{"emails"}},
		{"sibling previews", EmailsConfig{Dir: "emails", PreviewsDir: "../previews"}, []string{"emails", "previews"}},
		{"absolute previews", EmailsConfig{Dir: "/srv/emails", PreviewsDir: "/srv/previews"}, []string{"/srv/emails", "/srv/previews"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.emails.SourceRoots())
		})
	}
}

func TestLoadWithEnvironment(t *testing.T) {
	t.Setenv("POSTCARD_SERVER_PORT", "9999")
	t.Setenv("POSTHOG_API_KEY", "phc_test")
	t.Setenv("POSTCARD_EMAILS_DIR", "emails")

	viper.Reset()
	ConfigureEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "phc_test", cfg.Analytics.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("POSTCARD_DOTENV_PROBE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("POSTCARD_DOTENV_PROBE") })

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("POSTCARD_DOTENV_PROBE"))
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"emails", false},
		{"./src/emails", false},
		{"/abs/emails", false},
		{"", true},
		{"..", true},
		{"../emails", true},
		{"emails;rm", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
