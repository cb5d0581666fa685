package livereload

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"

	perrors "github.com/conneroisu/postcard/internal/errors"
	"github.com/conneroisu/postcard/internal/logging"
)

// Status is the connection state reported by a Subscriber.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusReconnecting
	// StatusFailed means retries are exhausted. The subscriber stops; the
	// caller may keep showing its last data.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultMaxRetries bounds consecutive failed connection attempts.
const DefaultMaxRetries = 10

// SubscriberOptions configures a Subscriber.
type SubscriberOptions struct {
	// URL is the ws:// or wss:// address of the reload endpoint.
	URL string
	// Origin is sent with the handshake. Defaults to the http(s) form of URL.
	Origin string
	// NewBackOff returns the retry policy used after a transport fault.
	NewBackOff func() backoff.BackOff
	MaxRetries uint64
	// OnStatus receives connection state changes. Faults are TransportFault
	// PostcardErrors.
	OnStatus   func(Status, error)
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Subscriber is the client end of the reload channel.
type Subscriber struct {
	opts   SubscriberOptions
	logger logging.Logger
}

// NewSubscriber creates a client for the reload endpoint at opts.URL.
func NewSubscriber(opts SubscriberOptions) *Subscriber {
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Origin == "" {
		opts.Origin = originFor(opts.URL)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Subscriber{opts: opts, logger: opts.Logger.WithComponent("livereload-client")}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func originFor(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// Subscribe connects in the background and calls onChange for every reload
// frame and again after each reconnect, since changes made while
// disconnected are otherwise lost. The returned function stops the
// subscriber; it is idempotent and never fails, even if the transport is
// already gone.
func (s *Subscriber) Subscribe(onChange func()) func() {
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once

	deliver := func() {
		if ctx.Err() == nil {
			onChange()
		}
	}
	go s.run(ctx, deliver)

	return func() { once.Do(cancel) }
}

func (s *Subscriber) run(ctx context.Context, onChange func()) {
	b := backoff.WithContext(backoff.WithMaxRetries(s.opts.NewBackOff(), s.opts.MaxRetries), ctx)
	s.status(StatusConnecting, nil)

	connectedBefore := false
	for {
		err := s.session(ctx, func() {
			b.Reset()
			s.status(StatusConnected, nil)
			if connectedBefore {
				onChange()
			}
			connectedBefore = true
		}, onChange)
		if ctx.Err() != nil {
			return
		}

		var fault *perrors.PostcardError
		if !errors.As(err, &fault) {
			fault = perrors.NewTransportFault(perrors.ErrCodeConnectionLost, "reload channel unavailable", err)
		}
		s.logger.Debug(ctx, "Reload channel dropped", "error", err.Error())

		if !perrors.IsRecoverable(fault) {
			s.status(StatusFailed, fault)
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			if ctx.Err() != nil {
				return
			}
			s.status(StatusFailed, perrors.NewTransportFault(perrors.ErrCodeRetriesExhausted,
				"reload channel retries exhausted", err))
			return
		}
		s.status(StatusReconnecting, fault)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session holds one connection open until it fails or ctx ends.
func (s *Subscriber) session(ctx context.Context, connected, onChange func()) error {
	header := http.Header{}
	if s.opts.Origin != "" {
		header.Set("Origin", s.opts.Origin)
	}

	conn, resp, err := websocket.Dial(ctx, s.opts.URL, &websocket.DialOptions{
		HTTPClient: s.opts.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		// A 4xx handshake (origin rejected, no /ws route) will not change
		// on retry.
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			fault := perrors.NewTransportFault(perrors.ErrCodeHandshakeRejected,
				"reload channel rejected the handshake: "+resp.Status, err)
			fault.Recoverable = false
			return fault
		}
		return err
	}
	defer conn.CloseNow()

	connected()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
			}
			return err
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug(ctx, "Ignoring malformed reload frame", "error", err.Error())
			continue
		}
		if msg.Type == MessageTypeReload {
			onChange()
		}
	}
}

func (s *Subscriber) status(st Status, err error) {
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(st, err)
	}
}
