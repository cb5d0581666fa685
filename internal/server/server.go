// Package server serves the browser preview UI and its JSON API. Nothing is
// cached: every request renders from disk.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/postcard/internal/config"
	"github.com/conneroisu/postcard/internal/livereload"
	"github.com/conneroisu/postcard/internal/logging"
	"github.com/conneroisu/postcard/internal/preview"
	"github.com/conneroisu/postcard/internal/send"
	"github.com/conneroisu/postcard/internal/validation"
	"github.com/conneroisu/postcard/internal/watcher"
)

// Sender delivers test emails. *send.Sender satisfies it.
type Sender interface {
	Send(ctx context.Context, msg send.Message) error
}

// Option configures a PreviewServer.
type Option func(*PreviewServer)

// WithSender enables the test-send endpoint.
func WithSender(sender Sender) Option {
	return func(s *PreviewServer) { s.sender = sender }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *PreviewServer) { s.logger = logger }
}

// WithBrowserOpener replaces the platform browser launcher.
func WithBrowserOpener(open func(url string) error) Option {
	return func(s *PreviewServer) { s.openURL = open }
}

// PreviewServer serves email previews with live reload.
type PreviewServer struct {
	config  *config.Config
	service *preview.Service
	hub     *livereload.Hub
	sender  Sender
	logger  logging.Logger
	openURL func(url string) error

	serverMutex sync.RWMutex
	httpServer  *http.Server
	addr        net.Addr
	watcher     *watcher.FileWatcher

	shutdownOnce sync.Once
}

// New creates a preview server.
func New(cfg *config.Config, service *preview.Service, opts ...Option) *PreviewServer {
	s := &PreviewServer{
		config:  cfg,
		service: service,
		logger:  logging.Discard(),
		openURL: openBrowser,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	s.hub = livereload.NewHub(s.logger)
	return s
}

// Hub returns the live-reload hub. Notifying it reloads every open page.
func (s *PreviewServer) Hub() *livereload.Hub {
	return s.hub
}

// Handler returns the routed HTTP handler.
func (s *PreviewServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/", s.handleIndex)
	r.Get("/previews/{template}/{function}", s.handlePreviewPage)

	r.Get("/api/previews", s.handleCatalog)
	r.Get("/api/previews/{template}/{function}", s.handleRender)
	r.Get("/api/previews/{template}/{function}/html", s.handleRenderHTML)
	r.Post("/api/previews/{template}/{function}/send", s.handleSend)

	r.Handle("/ws", livereload.Handler(s.hub, livereload.HandlerOptions{
		AllowedOrigins: s.allowedOrigins(),
		Logger:         s.logger,
	}))
	r.Get("/health", s.newHealthMonitor().HTTPHandler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	return r
}

func (s *PreviewServer) allowedOrigins() []string {
	return livereload.LocalOrigins(s.config.Server.Host, s.config.Server.Port, s.config.Server.AllowedOrigins...)
}

// Addr returns the bound address once Start is listening.
func (s *PreviewServer) Addr() net.Addr {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.addr
}

// Start listens and serves until ctx is done or Shutdown is called.
func (s *PreviewServer) Start(ctx context.Context) error {
	if s.config.Development.HotReload {
		if err := s.setupFileWatcher(ctx); err != nil {
			s.logger.Warn(ctx, err, "Live reload disabled")
		}
	}

	addr := net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.serverMutex.Lock()
	s.httpServer = server
	s.addr = ln.Addr()
	s.serverMutex.Unlock()

	url := "http://" + displayAddr(s.config.Server.Host, ln.Addr())
	s.logger.Info(ctx, "Preview server started", "url", url, "emails", s.config.Emails.Dir)

	if s.config.Server.Open {
		go func() {
			if err := s.openURL(url); err != nil {
				s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *PreviewServer) setupFileWatcher(ctx context.Context) error {
	fw, err := watcher.WatchSources(ctx, watcher.SourceOptions{
		Roots:    s.config.Emails.SourceRoots(),
		Debounce: s.config.Development.Debounce,
		Exclude:  s.config.Emails.ExcludePatterns,
		Logger:   s.logger,
	}, func([]watcher.ChangeEvent) { s.hub.Notify() })
	if err != nil {
		return err
	}

	s.serverMutex.Lock()
	s.watcher = fw
	s.serverMutex.Unlock()
	return nil
}

// Shutdown stops the watcher, closes live-reload subscriptions and the HTTP
// server. It is safe to call more than once.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.serverMutex.RLock()
		fw, server := s.watcher, s.httpServer
		s.serverMutex.RUnlock()

		if fw != nil {
			_ = fw.Stop()
		}
		s.hub.Close()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})
	return shutdownErr
}

func displayAddr(host string, addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return addr.String()
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, fmt.Sprint(tcp.Port))
}

func openBrowser(url string) error {
	if err := validation.ValidateURL(url); err != nil {
		return fmt.Errorf("refusing to open %q: %w", url, err)
	}
	time.Sleep(100 * time.Millisecond)

	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}
