// Package app wires all BetterSpeak subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds and connects the
// capture, detection and sink components around one session, Run serves the
// HTTP API, and Shutdown tears everything down in order.
//
// Backends (devices, classifier, storage, results) are passed in through
// [Providers], which main.go populates from the config registry. Tests pass
// mocks instead.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/betterspeak/internal/capture"
	"github.com/MrWong99/betterspeak/internal/config"
	"github.com/MrWong99/betterspeak/internal/detect"
	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/internal/health"
	"github.com/MrWong99/betterspeak/internal/observe"
	"github.com/MrWong99/betterspeak/internal/resilience"
	"github.com/MrWong99/betterspeak/internal/results"
	"github.com/MrWong99/betterspeak/internal/server"
	"github.com/MrWong99/betterspeak/internal/session"
	"github.com/MrWong99/betterspeak/internal/sink"
	"github.com/MrWong99/betterspeak/internal/storage"
	"github.com/MrWong99/betterspeak/pkg/audio"
	"github.com/MrWong99/betterspeak/pkg/classifier"
)

// waveformInterval caps how often waveform events are rendered.
const waveformInterval = 50 * time.Millisecond

// shutdownTimeout bounds the graceful HTTP shutdown in Run.
const shutdownTimeout = 10 * time.Second

// storageProbe is the object name the storage readiness check looks up.
const storageProbe = ".betterspeak-ready"

// Providers holds one backend per pluggable slot. Every field is required.
type Providers struct {
	Devices    config.Devices
	Classifier classifier.Backend
	Storage    storage.FileStore
	Results    results.Store
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	level     *slog.LevelVar
	metrics   *observe.Metrics
	now       func() time.Time

	// Subsystems, initialised in New and torn down in Shutdown.
	bus      *events.Bus
	buffer   *audio.FrameBuffer
	waveform *capture.WaveformPublisher
	capture  *capture.Source
	loader   *classifier.Loader
	detector *detect.Orchestrator
	playback *sink.Playback
	persist  *sink.Persistence
	session  *session.Session
	health   *health.Handler
	server   *server.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger handed to every subsystem. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevel sets the level variable that hot reload adjusts. Without it,
// log level changes are only reported.
func WithLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics injects a metrics sink instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithBus injects an event bus instead of creating one.
func WithBus(b *events.Bus) Option {
	return func(a *App) { a.bus = b }
}

// WithClock sets the clock used to name recordings that have no start time.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Models are not
// loaded here; call [App.Warm] to load them before the first detection.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := checkProviders(providers); err != nil {
		return nil, err
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Event bus ─────────────────────────────────────────────────────
	if a.bus == nil {
		a.bus = events.NewBus(events.WithLogger(a.log))
	}

	// ── 2. Capture ───────────────────────────────────────────────────────
	a.initCapture()

	// ── 3. Classifiers + detection ───────────────────────────────────────
	if err := a.initDetection(); err != nil {
		return nil, fmt.Errorf("app: init detection: %w", err)
	}

	// ── 4. Sinks ─────────────────────────────────────────────────────────
	a.initSinks()

	// ── 5. Session ───────────────────────────────────────────────────────
	sess, err := session.New(session.Config{
		Capture:   a.capture,
		Detector:  a.detector,
		Player:    a.playback,
		Saver:     a.persist,
		Results:   providers.Results,
		Publisher: a.bus,
		Logger:    a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}
	a.session = sess
	a.closers = append(a.closers, providers.Results.Close)

	// ── 6. HTTP API ──────────────────────────────────────────────────────
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	a.log.Debug("app initialised", "classifier", a.loader.Backend(), "format", cfg.Audio.Format())
	return a, nil
}

func checkProviders(p *Providers) error {
	if p == nil {
		return errors.New("app: providers are required")
	}
	var errs []error
	if p.Devices.Capture == nil || p.Devices.Playback == nil {
		errs = append(errs, errors.New("app: capture and playback devices are required"))
	}
	if p.Classifier == nil {
		errs = append(errs, errors.New("app: classifier backend is required"))
	}
	if p.Storage == nil {
		errs = append(errs, errors.New("app: recording storage is required"))
	}
	if p.Results == nil {
		errs = append(errs, errors.New("app: results store is required"))
	}
	return errors.Join(errs...)
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCapture creates the frame buffer, the waveform publisher and the
// capture loop feeding both.
func (a *App) initCapture() {
	a.buffer = audio.NewFrameBuffer(a.cfg.Audio.Format())
	a.waveform = capture.NewWaveformPublisher(a.buffer, a.cfg.Audio.WaveformWindow(), waveformInterval, a.bus)
	a.capture = capture.New(a.providers.Devices.Capture, a.buffer,
		capture.WithConsumer(a.waveform.Consume),
		capture.WithPublisher(a.bus),
		capture.WithMetrics(a.metrics),
		capture.WithLogger(a.log),
	)
	a.closers = append(a.closers, a.capture.Stop)
}

// initDetection builds one runner per disfluency type over a shared lazy
// loader, and the orchestrator that fans chunks out to them.
func (a *App) initDetection() error {
	cc := a.cfg.Classifiers
	assembler, err := audio.NewAssembler(cc.ModelSampleRate, cc.ChunkDuration())
	if err != nil {
		return err
	}

	a.loader = classifier.NewLoader(a.providers.Classifier, cc.Resources, classifier.WithLogger(a.log))
	a.closers = append(a.closers, a.loader.Close)

	runners := make([]detect.Classifier, 0, len(classifier.Types))
	for _, t := range classifier.Types {
		runners = append(runners, classifier.NewRunner(t, a.loader))
	}

	dc := a.cfg.Detection
	a.detector, err = detect.New(a.buffer, assembler, runners,
		detect.WithJobTimeout(dc.JobTimeout),
		detect.WithBreaker(resilience.CircuitBreakerConfig{
			MaxFailures:  dc.BreakerMaxFailures,
			ResetTimeout: dc.BreakerResetTimeout,
			Logger:       a.log,
		}),
		detect.WithPublisher(a.bus),
		detect.WithMetrics(a.metrics),
		detect.WithLogger(a.log),
	)
	return err
}

// initSinks creates playback and persistence over the same buffer.
func (a *App) initSinks() {
	opts := []sink.Option{
		sink.WithPublisher(a.bus),
		sink.WithMetrics(a.metrics),
		sink.WithLogger(a.log),
		sink.WithClock(a.now),
	}
	a.playback = sink.NewPlayback(a.providers.Devices.Playback, a.buffer, opts...)
	a.persist = sink.NewPersistence(a.providers.Storage, a.buffer, opts...)
}

// initServer creates the readiness checks and the HTTP API.
func (a *App) initServer() error {
	a.health = health.New(
		health.Checker{
			Name: "results",
			Check: func(ctx context.Context) error {
				_, err := a.providers.Results.List(ctx, 1)
				return err
			},
		},
		health.Checker{
			Name: "storage",
			Check: func(ctx context.Context) error {
				_, err := a.providers.Storage.Exists(ctx, storageProbe)
				return err
			},
		},
		health.Checker{
			Name:  "capture",
			Soft:  true,
			Check: func(context.Context) error { return a.capture.Err() },
		},
		health.Breakers(a.detector.BreakerStates),
	)

	srv, err := server.New(server.Config{
		Session:        a.session,
		Events:         a.bus,
		Health:         a.health,
		Metrics:        a.metrics,
		MetricsHandler: observe.MetricsHandler(),
		Logger:         a.log,
	})
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Session returns the recording session.
func (a *App) Session() *session.Session { return a.session }

// Bus returns the event bus.
func (a *App) Bus() *events.Bus { return a.bus }

// Detector returns the detection orchestrator.
func (a *App) Detector() *detect.Orchestrator { return a.detector }

// Waveform returns the live waveform publisher.
func (a *App) Waveform() *capture.WaveformPublisher { return a.waveform }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Warm loads every classifier model. Failures are returned joined; the app
// stays usable and failed types are retried on the next detection.
func (a *App) Warm(ctx context.Context) error {
	start := time.Now()
	err := a.loader.Warm(ctx)
	if err != nil {
		a.log.Warn("some classifier models failed to load", "err", err)
		return err
	}
	a.log.Info("classifier models loaded", "backend", a.loader.Backend(), "duration", time.Since(start))
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API on the configured address and blocks until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	tlsCfg, err := loadTLS(a.cfg.Server.TLS)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr)
	return a.server.ListenAndServe(ctx, a.cfg.Server.ListenAddr, tlsCfg, shutdownTimeout)
}

func loadTLS(c *config.TLSConfig) (*tls.Config, error) {
	if c == nil {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change and logs
// the sections that need a restart.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged {
		if a.level != nil {
			a.level.Set(SlogLevel(d.NewLogLevel))
		}
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.JobTimeoutChanged {
		a.detector.SetJobTimeout(d.NewJobTimeout)
		a.log.Info("job timeout changed", "timeout", d.NewJobTimeout)
	}
	if d.WaveformChanged {
		a.waveform.SetWindow(d.NewWaveformWindow)
		a.log.Info("waveform window changed", "window", d.NewWaveformWindow)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config log level to a slog level. Unknown levels map
// to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger on stderr whose level is controlled by
// the returned LevelVar.
func NewLogger(l config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(SlogLevel(l))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})), lv
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// AddCloser registers fn to run during Shutdown after the built-in closers.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Shutdown tears down all subsystems in init order: capture first, then
// models and stores. It respects the context deadline: if ctx expires
// before all closers finish, remaining closers are skipped and the context
// error is returned. The event bus is closed last so that stream clients
// see every final event.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		defer a.bus.Close()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
