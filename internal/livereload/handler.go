package livereload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/postcard/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second
)

// MessageTypeReload is the only message the server sends.
const MessageTypeReload = "reload"

// Message is the JSON frame pushed to clients.
type Message struct {
	Type       string `json:"type"`
	Generation uint64 `json:"generation"`
}

// HandlerOptions configures the websocket endpoint.
type HandlerOptions struct {
	// AllowedOrigins lists origin hosts (host:port)
	// accepted in addition to the request host.
	AllowedOrigins []string
	Logger         logging.Logger
	// PingPeriod overrides the keepalive interval.
	PingPeriod time.Duration
}

type handler struct {
	hub        *Hub
	origins    []string
	pingPeriod time.Duration
	logger     logging.Logger
}

// Handler serves the reload channel. Each connection gets a reload frame as
// soon as it opens, so a client that reconnects always re-fetches, and then
// one frame per coalesced burst of changes.
func Handler(hub *Hub, opts HandlerOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = pingPeriod
	}
	return &handler{
		hub:        hub,
		origins:    opts.AllowedOrigins,
		pingPeriod: opts.PingPeriod,
		logger:     opts.Logger.WithComponent("livereload"),
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()

	// The client never sends data; CloseRead keeps control frames flowing
	// and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(context.Background())

	changed := make(chan struct{}, 1)
	changed <- struct{}{}
	unsubscribe := h.hub.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	h.logger.Debug(ctx, "Client connected", "remote", r.RemoteAddr, "clients", h.hub.Subscribers())

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug(context.Background(), "Client disconnected", "remote", r.RemoteAddr)
			return

		case <-changed:
			msg, _ := json.Marshal(Message{Type: MessageTypeReload, Generation: h.hub.Generation()})
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				h.logger.Debug(context.Background(), "WebSocket write failed", "remote", r.RemoteAddr, "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// checkOrigin validates the request origin. Only http(s) origins matching the
// request host or an allowed pattern are accepted.
func (h *handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	if strings.EqualFold(originURL.Host, r.Host) {
		return true
	}
	for _, allowed := range h.origins {
		if strings.EqualFold(originURL.Host, allowed) {
			return true
		}
	}
	return false
}

// LocalOrigins returns the origin hosts a preview server on host:port is
// reachable under.
func LocalOrigins(host string, port int, extra ...string) []string {
	origins := []string{
		fmt.Sprintf("%s:%d", host, port),
		fmt.Sprintf("localhost:%d", port),
		fmt.Sprintf("127.0.0.1:%d", port),
	}
	return append(origins, extra...)
}
