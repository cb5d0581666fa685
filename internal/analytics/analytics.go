// Package analytics reports anonymous CLI usage events to PostHog.
//
// The client is created on the first capture rather than at startup, so
// commands that never emit an event never open a connection. A missing
// distinct id or API key turns every capture into a logged no-op.
package analytics

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"

	"github.com/conneroisu/postcard/internal/logging"
)

// Events emitted by the CLI.
const (
	EventInit    = "cli:init"
	EventPreview = "cli:preview"
	EventExport  = "cli:export"
	EventSend    = "cli:send"
)

// Tracker records usage events.
type Tracker interface {
	Capture(ctx context.Context, event string, props map[string]any)
	Shutdown(ctx context.Context) error
}

// Client is the subset of the PostHog client the tracker uses.
type Client interface {
	Enqueue(msg posthog.Message) error
	Close() error
}

// NewClientFunc constructs a Client for an API key and endpoint.
type NewClientFunc func(apiKey, endpoint string) (Client, error)

// Options configures a PostHog tracker.
type Options struct {
	Enabled    bool
	APIKey     string
	Endpoint   string
	DistinctID string
	// Properties are merged into every event.
	Properties map[string]any
	// ShutdownGrace bounds how long Shutdown waits for queued events.
	ShutdownGrace time.Duration
	NewClient     NewClientFunc
	Logger        logging.Logger
}

func newPostHogClient(apiKey, endpoint string) (Client, error) {
	return posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: endpoint})
}

// PostHogTracker is the process-wide tracker. The zero value is not usable;
// construct it with New.
type PostHogTracker struct {
	opts   Options
	logger logging.Logger

	once    sync.Once
	mu      sync.Mutex
	client  Client
	initErr error
}

// New returns a tracker. No network activity happens until the first Capture.
func New(opts Options) *PostHogTracker {
	if opts.NewClient == nil {
		opts.NewClient = newPostHogClient
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = time.Second
	}
	return &PostHogTracker{opts: opts, logger: opts.Logger.WithComponent("analytics")}
}

func (t *PostHogTracker) lazyClient() (Client, error) {
	t.once.Do(func() {
		client, err := t.opts.NewClient(t.opts.APIKey, t.opts.Endpoint)
		t.mu.Lock()
		t.client, t.initErr = client, err
		t.mu.Unlock()
	})
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client, t.initErr
}

// Capture enqueues an event. Failures are logged and never returned; usage
// reporting must not affect the command being run.
func (t *PostHogTracker) Capture(ctx context.Context, event string, props map[string]any) {
	switch {
	case !t.opts.Enabled:
		t.logger.Debug(ctx, "Analytics disabled, skipping event", "event", event)
		return
	case t.opts.DistinctID == "":
		t.logger.Debug(ctx, "No distinct id, skipping event", "event", event)
		return
	case t.opts.APIKey == "":
		t.logger.Debug(ctx, "No analytics API key, skipping event", "event", event)
		return
	}

	client, err := t.lazyClient()
	if err != nil {
		t.logger.Debug(ctx, "Analytics client unavailable", "event", event, "error", err.Error())
		return
	}

	properties := posthog.NewProperties()
	for k, v := range t.opts.Properties {
		properties.Set(k, v)
	}
	for k, v := range props {
		properties.Set(k, v)
	}

	if err := client.Enqueue(posthog.Capture{
		DistinctId: t.opts.DistinctID,
		Event:      event,
		Properties: properties,
	}); err != nil {
		t.logger.Debug(ctx, "Failed to enqueue event", "event", event, "error", err.Error())
	}
}

// Shutdown flushes queued events, waiting at most the configured grace period
// or until ctx is done.
func (t *PostHogTracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- client.Close() }()

	timer := time.NewTimer(t.opts.ShutdownGrace)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		t.logger.Debug(ctx, "Analytics flush exceeded grace period")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Noop is a Tracker that records nothing.
type Noop struct{}

func (Noop) Capture(context.Context, string, map[string]any) {}
func (Noop) Shutdown(context.Context) error                  { return nil }

const anonymousIDFile = "anonymous_id"

// AnonymousID returns the installation id stored under dir, generating and
// persisting a new one on first use.
func AnonymousID(dir string) (string, error) {
	path := filepath.Join(dir, anonymousIDFile)

	content, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(content))
		if _, perr := uuid.Parse(id); perr == nil {
			return id, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

// DefaultIDDir is the directory holding the anonymous id.
func DefaultIDDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "postcard"), nil
}
