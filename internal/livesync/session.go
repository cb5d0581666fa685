// Package livesync keeps one preview view consistent with the server: it
// fetches on mount and on every reload signal, with at most one fetch in
// flight and exactly one trailing fetch for any number of signals that
// arrive meanwhile.
package livesync

import (
	"context"
	"sync"

	"github.com/conneroisu/postcard/internal/catalog"
	"github.com/conneroisu/postcard/internal/logging"
	"github.com/conneroisu/postcard/internal/preview"
)

// State is the sync state of a session.
type State int

const (
	// Idle shows the last known (or initial) data; nothing is in flight.
	Idle State = iota
	Loading
	Loaded
	// Errored means the fetch itself failed. Render errors are data and
	// land in Loaded.
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Fetcher retrieves a render result.
type Fetcher interface {
	Fetch(ctx context.Context, template, function string) (preview.Result, error)
}

// Subscriber delivers reload signals.
type Subscriber interface {
	Subscribe(onChange func()) (unsubscribe func())
}

// Snapshot is an immutable view of a session.
type Snapshot struct {
	Version  uint64
	State    State
	Template string
	Function string
	Mode     ViewMode
	// Result is the most recent successful fetch, kept while Errored.
	Result *preview.Result
	Err    error
	// NullState reports whether the guidance banner should be shown.
	NullState bool
	Fetches   int
}

// Selected reports whether both path segments are present.
func (s Snapshot) Selected() bool {
	return s.Template != "" && s.Function != ""
}

// Options configures a Session.
type Options struct {
	Template string
	Function string
	// Initial is data supplied before the first fetch, such as the result
	// embedded in a server-rendered page.
	Initial *preview.Result
	Mode    ViewMode
	// Static marks a static build; it suppresses the null-state banner.
	Static     bool
	Fetcher    Fetcher
	Subscriber Subscriber
	Logger     logging.Logger
}

// Session is the sync state machine for one open preview.
type Session struct {
	opts   Options
	logger logging.Logger

	ctx  context.Context
	stop context.CancelFunc

	mu          sync.Mutex
	state       State
	mode        ViewMode
	result      *preview.Result
	err         error
	inFlight    bool
	pending     bool
	cancelFetch context.CancelFunc
	fetches     int
	version     uint64
	started     bool
	closed      bool
	unsubscribe func()
	listeners   []func(Snapshot)

	emitMu  sync.Mutex
	emitted uint64
}

// NewSession creates a session in the Idle state.
func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Mode == "" {
		opts.Mode = ViewDesktop
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Session{
		opts:   opts,
		logger: opts.Logger.WithComponent("livesync"),
		ctx:    ctx,
		stop:   stop,
		state:  Idle,
		mode:   opts.Mode,
		result: opts.Initial,
	}
}

// OnChange registers a listener that receives every state change. Listeners
// run on the goroutine that caused the change and must not block for long.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Start mounts the session: it subscribes to reload signals and issues the
// first fetch. Without a selection nothing is fetched. Start is a no-op after
// the first call or after Close.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	if s.opts.Subscriber != nil {
		unsubscribe := s.opts.Subscriber.Subscribe(s.Reload)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			unsubscribe()
			return
		}
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	}

	s.Reload()
}

// Reload handles a reload signal. While a fetch is in flight the signal is
// folded into a single trailing fetch.
func (s *Session) Reload() {
	s.mu.Lock()
	if s.closed || !s.selected() {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.pending = true
		s.mu.Unlock()
		return
	}
	snap := s.beginFetchLocked()
	s.mu.Unlock()
	s.emit(snap)
}

// SetViewMode switches the view mode. It never fetches.
func (s *Session) SetViewMode(mode ViewMode) {
	s.mu.Lock()
	if s.closed || s.mode == mode {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close cancels any fetch in flight and unsubscribes. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = false
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	s.stop()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Session) selected() bool {
	return s.opts.Template != "" && s.opts.Function != ""
}

func (s *Session) beginFetchLocked() Snapshot {
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelFetch = cancel
	s.inFlight = true
	s.state = Loading
	s.fetches++
	snap := s.snapshotLocked()

	go s.fetch(ctx, cancel)
	return snap
}

func (s *Session) fetch(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	res, err := s.opts.Fetcher.Fetch(ctx, s.opts.Template, s.opts.Function)

	s.mu.Lock()
	if s.closed {
		s.inFlight = false
		s.mu.Unlock()
		return
	}
	s.inFlight = false
	if err != nil {
		s.state = Errored
		s.err = err
		s.logger.Warn(ctx, err, "Preview fetch failed", "template", s.opts.Template, "function", s.opts.Function)
	} else {
		s.state = Loaded
		s.err = nil
		s.result = &res
	}
	snaps := []Snapshot{s.snapshotLocked()}

	if s.pending {
		s.pending = false
		snaps = append(snaps, s.beginFetchLocked())
	}
	s.mu.Unlock()

	for _, snap := range snaps {
		s.emit(snap)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	s.version++
	snap := Snapshot{
		Version:  s.version,
		State:    s.state,
		Template: s.opts.Template,
		Function: s.opts.Function,
		Mode:     s.mode,
		Result:   s.result,
		Err:      s.err,
		Fetches:  s.fetches,
	}
	if s.result != nil {
		snap.NullState = catalog.IsDefaultExampleCatalog(s.result.Previews, s.opts.Static)
	}
	return snap
}

// emit delivers a snapshot to listeners, dropping it if a newer one was
// already delivered.
func (s *Session) emit(snap Snapshot) {
	s.mu.Lock()
	listeners := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if snap.Version <= s.emitted {
		return
	}
	s.emitted = snap.Version
	for _, fn := range listeners {
		fn(snap)
	}
}
