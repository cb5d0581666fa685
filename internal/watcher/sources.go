package watcher

import (
	"context"
	"time"

	"github.com/conneroisu/postcard/internal/logging"
)

// SourceOptions configures WatchSources.
type SourceOptions struct {
	Roots    []string
	Debounce time.Duration
	// Exclude holds glob patterns matched against file base names.
	Exclude []string
	Logger  logging.Logger
}

// WatchSources watches email templates, layouts and preview files under the
// given roots and calls onChange once per debounced batch. The returned
// watcher is already started; Stop releases it.
func WatchSources(ctx context.Context, opts SourceOptions, onChange func([]ChangeEvent)) (*FileWatcher, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	fw, err := NewFileWatcher(opts.Debounce, opts.Logger)
	if err != nil {
		return nil, err
	}

	fw.AddFilter(EmailSourceFilter)
	fw.AddFilter(NoHiddenFilter)
	fw.AddFilter(NoGitFilter)
	fw.AddFilter(ExcludeFilter(opts.Exclude))
	fw.AddHandler(func(events []ChangeEvent) error {
		for _, e := range events {
			opts.Logger.Debug(ctx, "Source changed", "path", e.Path, "event", e.Type.String())
		}
		onChange(events)
		return nil
	})

	for _, root := range opts.Roots {
		if err := fw.AddRecursive(root); err != nil {
			_ = fw.Stop()
			return nil, err
		}
	}

	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return nil, err
	}
	return fw, nil
}
