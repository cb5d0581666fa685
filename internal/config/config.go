// Package config provides configuration management for postcard using Viper
// for loading from files, environment variables and command-line flags.
//
// The configuration system supports YAML files (.postcard.yml), a .env file
// loaded through godotenv, environment variable overrides with the POSTCARD_
// prefix, and validation. It covers the preview server, the emails source
// tree, MJML rendering options, live reload, analytics, test sends and static
// export.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EmailsDirCandidates are the directories probed, in order, for an existing
// emails source tree.
var EmailsDirCandidates = []string{"src/emails", "emails"}

type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Emails      EmailsConfig      `yaml:"emails" mapstructure:"emails"`
	Render      RenderConfig      `yaml:"render" mapstructure:"render"`
	Development DevelopmentConfig `yaml:"development" mapstructure:"development"`
	Analytics   AnalyticsConfig   `yaml:"analytics" mapstructure:"analytics"`
	Send        SendConfig        `yaml:"send" mapstructure:"send"`
	Export      ExportConfig      `yaml:"export" mapstructure:"export"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	// Static marks a build-time static export; it suppresses the null-state banner.
	Static bool `yaml:"static" mapstructure:"static"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Host           string   `yaml:"host" mapstructure:"host"`
	Open           bool     `yaml:"open" mapstructure:"open"`
	NoOpen         bool     `yaml:"no-open" mapstructure:"no-open"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Environment    string   `yaml:"environment" mapstructure:"environment"`
}

type EmailsConfig struct {
	Dir             string   `yaml:"dir" mapstructure:"dir"`
	PreviewsDir     string   `yaml:"previews_dir" mapstructure:"previews_dir"`
	ExcludePatterns []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
}

// PreviewsPath returns the absolute-or-relative path of the previews directory.
func (e EmailsConfig) PreviewsPath() string {
	if filepath.IsAbs(e.PreviewsDir) {
		return e.PreviewsDir
	}
	return filepath.Join(e.Dir, e.PreviewsDir)
}

// SourceRoots lists the directories to watch for changes: the emails
// directory, plus the previews directory when it lies outside it.
func (e EmailsConfig) SourceRoots() []string {
	roots := []string{e.Dir}
	previews := e.PreviewsPath()
	rel, err := filepath.Rel(e.Dir, previews)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		roots = append(roots, previews)
	}
	return roots
}

type RenderConfig struct {
	Minify     bool          `yaml:"minify" mapstructure:"minify"`
	Beautify   bool          `yaml:"beautify" mapstructure:"beautify"`
	Validation string        `yaml:"validation" mapstructure:"validation"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type DevelopmentConfig struct {
	HotReload bool          `yaml:"hot_reload" mapstructure:"hot_reload"`
	Debounce  time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

type AnalyticsConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	APIKey        string        `yaml:"api_key" mapstructure:"api_key"`
	Endpoint      string        `yaml:"endpoint" mapstructure:"endpoint"`
	AnonymousID   string        `yaml:"anonymous_id" mapstructure:"anonymous_id"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" mapstructure:"shutdown_grace"`
}

type SendConfig struct {
	ServerToken  string `yaml:"server_token" mapstructure:"server_token"`
	AccountToken string `yaml:"account_token" mapstructure:"account_token"`
	From         string `yaml:"from" mapstructure:"from"`
}

type ExportConfig struct {
	OutDir   string `yaml:"out_dir" mapstructure:"out_dir"`
	S3Bucket string `yaml:"s3_bucket" mapstructure:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix" mapstructure:"s3_prefix"`
	S3Region string `yaml:"s3_region" mapstructure:"s3_region"`
	// S3Endpoint points uploads at an S3-compatible store such as MinIO.
	S3Endpoint string `yaml:"s3_endpoint" mapstructure:"s3_endpoint"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Defaults
const (
	DefaultPort          = 3883
	DefaultHost          = "localhost"
	DefaultPreviewsDir   = "previews"
	DefaultRenderTimeout = 10 * time.Second
	DefaultDebounce      = 150 * time.Millisecond
	DefaultShutdownGrace = time.Second
	DefaultPostHogHost   = "https://app.posthog.com"
	DefaultExportDir     = "previews_html"
)

// LoadDotEnv loads a .env file from the working directory if present. Values
// already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

var envKeys = []string{
	"server.port", "server.host", "server.open", "server.no-open", "server.allowed_origins", "server.environment",
	"emails.dir", "emails.previews_dir", "emails.exclude_patterns",
	"render.minify", "render.beautify", "render.validation", "render.timeout",
	"development.hot_reload", "development.debounce",
	"analytics.enabled", "analytics.endpoint", "analytics.anonymous_id", "analytics.shutdown_grace",
	"send.from",
	"export.out_dir", "export.s3_bucket", "export.s3_prefix", "export.s3_region", "export.s3_endpoint",
	"log.level", "log.format",
}

// ConfigureEnv enables POSTCARD_<SECTION>_<OPTION> environment overrides and
// registers the aliases that do not follow that pattern.
func ConfigureEnv() {
	viper.SetEnvPrefix("POSTCARD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(envKeyReplacer)

	// Unmarshal only sees keys viper knows about, so every key is bound.
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	_ = viper.BindEnv("analytics.api_key", "POSTCARD_ANALYTICS_API_KEY", "POSTHOG_API_KEY")
	_ = viper.BindEnv("send.server_token", "POSTCARD_SEND_SERVER_TOKEN", "POSTMARK_SERVER_TOKEN")
	_ = viper.BindEnv("send.account_token", "POSTCARD_SEND_ACCOUNT_TOKEN", "POSTMARK_ACCOUNT_TOKEN")
	_ = viper.BindEnv("static", "POSTCARD_STATIC")
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Server defaults
	if !viper.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if !viper.IsSet("server.open") {
		config.Server.Open = true
	}
	if viper.IsSet("server.no-open") && viper.GetBool("server.no-open") {
		config.Server.Open = false
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}

	// Emails defaults
	if config.Emails.Dir == "" {
		if dir, ok := FindEmailsDir("."); ok {
			config.Emails.Dir = dir
		} else {
			config.Emails.Dir = "emails"
		}
	}
	if config.Emails.PreviewsDir == "" {
		config.Emails.PreviewsDir = DefaultPreviewsDir
	}
	if viper.IsSet("emails.exclude_patterns") && len(config.Emails.ExcludePatterns) == 0 {
		config.Emails.ExcludePatterns = viper.GetStringSlice("emails.exclude_patterns")
	}
	if len(config.Emails.ExcludePatterns) == 0 {
		config.Emails.ExcludePatterns = []string{"*.bak", "*~", ".#*"}
	}

	// Render defaults
	if !viper.IsSet("render.beautify") {
		config.Render.Beautify = true
	}
	if config.Render.Validation == "" {
		config.Render.Validation = "strict"
	}
	if config.Render.Timeout == 0 {
		config.Render.Timeout = DefaultRenderTimeout
	}

	// Development defaults
	if !viper.IsSet("development.hot_reload") {
		config.Development.HotReload = true
	}
	if !viper.IsSet("development.debounce") {
		config.Development.Debounce = DefaultDebounce
	}

	// Analytics defaults
	if !viper.IsSet("analytics.enabled") {
		config.Analytics.Enabled = true
	}
	if config.Analytics.Endpoint == "" {
		config.Analytics.Endpoint = DefaultPostHogHost
	}
	if config.Analytics.ShutdownGrace == 0 {
		config.Analytics.ShutdownGrace = DefaultShutdownGrace
	}

	// Export defaults
	if config.Export.OutDir == "" {
		config.Export.OutDir = DefaultExportDir
	}

	// Log defaults
	if config.Log.Level == "" {
		config.Log.Level = viper.GetString("log-level")
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// FindEmailsDir returns the first existing candidate emails directory under root.
func FindEmailsDir(root string) (string, bool) {
	for _, candidate := range EmailsDirCandidates {
		path := filepath.Join(root, candidate)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateEmailsConfig(&config.Emails); err != nil {
		return fmt.Errorf("emails config: %w", err)
	}

	if err := validateRenderConfig(&config.Render); err != nil {
		return fmt.Errorf("render config: %w", err)
	}

	if config.Development.Debounce < 0 {
		return fmt.Errorf("development config: debounce must not be negative")
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log config: unknown format %q", config.Log.Format)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

func validateEmailsConfig(config *EmailsConfig) error {
	if err := validatePath(config.Dir); err != nil {
		return fmt.Errorf("invalid dir '%s': %w", config.Dir, err)
	}
	if err := validatePath(config.PreviewsDir); err != nil {
		return fmt.Errorf("invalid previews_dir '%s': %w", config.PreviewsDir, err)
	}
	for _, pattern := range config.ExcludePatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
	}
	return nil
}

func validateRenderConfig(config *RenderConfig) error {
	switch config.Validation {
	case "strict", "soft", "skip":
	default:
		return fmt.Errorf("validation must be one of strict, soft, skip; got %q", config.Validation)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	// Relative paths must stay inside the project
	if !filepath.IsAbs(cleanPath) && (cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator))) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
