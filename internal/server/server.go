// Package server exposes a [session.Session] over HTTP.
//
// Control operations are JSON endpoints under /v1. Live events (waveform,
// counts, capture status, sink completion) are streamed to clients over a
// WebSocket at /v1/events. Probes and the Prometheus scrape endpoint are
// mounted alongside.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MrWong99/betterspeak/internal/capture"
	"github.com/MrWong99/betterspeak/internal/detect"
	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/internal/health"
	"github.com/MrWong99/betterspeak/internal/observe"
	"github.com/MrWong99/betterspeak/internal/session"
)

// Controller is the session surface the API drives. [session.Session]
// implements it.
type Controller interface {
	SetText(text string) int
	Start(ctx context.Context) error
	Pause(ctx context.Context) (capture.State, error)
	Stop() error
	Reset() error
	Detect(ctx context.Context) (detect.SessionMetrics, error)
	Play(ctx context.Context) error
	Save(ctx context.Context) (string, error)
	History(ctx context.Context, limit int) ([]detect.SessionMetrics, error)
	Result(ctx context.Context, id string) (detect.SessionMetrics, error)
	Status() session.Status
}

var _ Controller = (*session.Session)(nil)

// Subscriber hands out event subscriptions. [events.Bus] implements it.
type Subscriber interface {
	Subscribe(kinds ...events.Kind) *events.Subscription
}

// Config holds the dependencies of a [Server].
type Config struct {
	// Session is required.
	Session Controller

	// Events is required for /v1/events.
	Events Subscriber

	// Health serves /healthz and /readyz when set.
	Health *health.Handler

	// Metrics records request durations. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	// AllowedOrigins are host patterns accepted for cross-origin WebSocket
	// connections. Same-origin connections are always accepted.
	AllowedOrigins []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server routes HTTP requests to the session.
type Server struct {
	sess    Controller
	events  Subscriber
	origins []string
	log     *slog.Logger
	handler http.Handler
}

// New builds the route table.
func New(cfg Config) (*Server, error) {
	if cfg.Session == nil {
		return nil, errors.New("server: session is required")
	}
	if cfg.Events == nil {
		return nil, errors.New("server: event source is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		sess:    cfg.Session,
		events:  cfg.Events,
		origins: cfg.AllowedOrigins,
		log:     cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/recording/start", s.handleStart)
	mux.HandleFunc("POST /v1/recording/stop", s.handleStop)
	mux.HandleFunc("POST /v1/recording/pause", s.handlePause)
	mux.HandleFunc("POST /v1/recording/reset", s.handleReset)
	mux.HandleFunc("PUT /v1/text", s.handleText)
	mux.HandleFunc("POST /v1/detect", s.handleDetect)
	mux.HandleFunc("POST /v1/playback", s.handlePlayback)
	mux.HandleFunc("POST /v1/save", s.handleSave)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/metrics/history", s.handleHistory)
	mux.HandleFunc("GET /v1/metrics/{id}", s.handleResult)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	s.handler = observe.Middleware(cfg.Metrics)(mux)
	return s, nil
}

// Handler returns the root handler with request instrumentation applied.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout. A non-nil tlsCfg enables HTTPS.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tlsCfg *tls.Config, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, tlsCfg, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, tlsCfg *tls.Config, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsCfg,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("http server listening", "addr", ln.Addr().String(), "tls", tlsCfg != nil)

	select {
	case err := <-errc:
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}
