package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/postcard/internal/analytics"
	"github.com/conneroisu/postcard/internal/catalog"
	"github.com/conneroisu/postcard/internal/config"
	"github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/logging"
	"github.com/conneroisu/postcard/internal/preview"
	"github.com/conneroisu/postcard/internal/renderer"
	"github.com/conneroisu/postcard/internal/version"
)

// app bundles what every command needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	tracker  analytics.Tracker
	registry *catalog.Registry
	service  *preview.Service
}

// compileOverride replaces the MJML compiler; tests set it to avoid the
// embedded engine.
var compileOverride renderer.CompileFunc

// loadApp reads the configuration and builds the render stack. Log output
// goes to logOut.
func loadApp(logOut io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		suggestions := errors.ConfigurationError(err.Error(), viper.ConfigFileUsed(), &errors.SuggestionContext{
			ConfigPath: viper.ConfigFileUsed(),
		})
		return nil, errors.NewEnhancedError("Failed to load configuration", err, suggestions)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: logOut,
	})

	registry := catalog.NewRegistry(catalog.Options{
		EmailsDir:   cfg.Emails.Dir,
		PreviewsDir: cfg.Emails.PreviewsPath(),
		Exclude:     cfg.Emails.ExcludePatterns,
		Logger:      logger,
	})
	r := renderer.NewMJMLRenderer(renderer.Options{
		LayoutsDir: filepath.Join(cfg.Emails.Dir, "layouts"),
		Minify:     cfg.Render.Minify,
		Beautify:   cfg.Render.Beautify,
		Validation: cfg.Render.Validation,
		Compile:    compileOverride,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		tracker:  newTracker(cfg, logger),
		registry: registry,
		service:  preview.NewService(registry, r, cfg.Render.Timeout, logger),
	}, nil
}

// newTracker returns the PostHog tracker, or a no-op one when analytics are
// off or no key is configured.
func newTracker(cfg *config.Config, logger logging.Logger) analytics.Tracker {
	if !cfg.Analytics.Enabled || cfg.Analytics.APIKey == "" {
		return analytics.Noop{}
	}

	id := cfg.Analytics.AnonymousID
	if id == "" {
		dir, err := analytics.DefaultIDDir()
		if err == nil {
			id, err = analytics.AnonymousID(dir)
		}
		if err != nil {
			logger.Debug(context.Background(), "No anonymous id, analytics disabled", "error", err.Error())
			return analytics.Noop{}
		}
	}

	return analytics.New(analytics.Options{
		Enabled:    true,
		APIKey:     cfg.Analytics.APIKey,
		Endpoint:   cfg.Analytics.Endpoint,
		DistinctID: id,
		Properties: map[string]any{
			"version": version.GetShortVersion(),
			"release": version.IsRelease(),
			"os":      runtime.GOOS,
			"arch":    runtime.GOARCH,
		},
		ShutdownGrace: cfg.Analytics.ShutdownGrace,
		Logger:        logger,
	})
}

// close flushes analytics within the configured grace period.
func (a *app) close() {
	if err := a.tracker.Shutdown(context.Background()); err != nil {
		a.logger.Debug(context.Background(), "Analytics shutdown", "error", err.Error())
	}
}

// commandContext returns the command's context, or a background one when the
// command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
