// Package livereload tells connected preview pages that the template tree
// changed. The server side is a Hub fanned out over a websocket; the client
// side is a Subscriber that reconnects with backoff.
//
// Signals carry no payload beyond a generation counter. Bursts coalesce:
// every subscriber holds at most one pending signal, so the only promise is
// that at least one notification follows the most recent change.
package livereload

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/postcard/internal/logging"
)

// Hub fans change notifications out to subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool

	generation atomic.Uint64
	logger     logging.Logger
}

type subscription struct {
	signal chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		subs:   make(map[uint64]*subscription),
		logger: logger.WithComponent("livereload"),
	}
}

// Subscribe registers onChange, which runs on its own goroutine once per
// coalesced burst of notifications. The returned function unsubscribes; it is
// idempotent and safe to call at any time, including from onChange. A
// delivery already under way may still finish after it returns.
func (h *Hub) Subscribe(onChange func()) func() {
	sub := &subscription{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug(context.Background(), "Subscriber added", "subscribers", count)

	go sub.deliver(onChange)

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.stop()
	}
}

func (s *subscription) deliver(onChange func()) {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			onChange()
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
}

// Notify records a change and signals every subscriber. Subscribers that
// already have a pending signal are not signalled twice.
func (h *Hub) Notify() {
	gen := h.generation.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
	h.logger.Debug(context.Background(), "Change broadcast", "generation", gen, "subscribers", len(h.subs))
}

// Generation returns the number of changes seen so far.
func (h *Hub) Generation() uint64 {
	return h.generation.Load()
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber. Later Subscribe calls get a no-op
// subscription. Close is idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}
