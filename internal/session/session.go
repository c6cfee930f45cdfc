// Package session implements the user-facing recording workflow on top of
// the capture, detection and sink components.
//
// A [Session] holds one recording and the reference text the speaker reads.
// It enforces the ordering rules between the components: detection and
// saving stop capture first so they see the final recording, pausing
// resumes into the same recording, and a new reference text is counted and
// announced as soon as it is set.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/betterspeak/internal/capture"
	"github.com/MrWong99/betterspeak/internal/detect"
	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/internal/results"
	"github.com/MrWong99/betterspeak/internal/syllable"
)

// Capturer is the capture loop. [capture.Source] implements it.
type Capturer interface {
	Start(ctx context.Context) error
	Stop() error
	Reset() error
	State() capture.State
	Duration() time.Duration
	Err() error
}

// Detector runs detection over the recording. [detect.Orchestrator]
// implements it.
type Detector interface {
	Run(ctx context.Context, syllables int) (detect.SessionMetrics, error)
	State() detect.State
	Last() (detect.SessionMetrics, bool)
}

// Player plays the recording. [sink.Playback] implements it.
type Player interface {
	PlayAsync(ctx context.Context) error
	Playing() bool
}

// Saver persists the recording. [sink.Persistence] implements it.
type Saver interface {
	Save(ctx context.Context) (string, error)
	Saving() bool
}

// Config holds the dependencies of a [Session]. Capture, Detector, Player,
// Saver and Results are required.
type Config struct {
	Capture  Capturer
	Detector Detector
	Player   Player
	Saver    Saver
	Results  results.Store

	// Counter counts syllables of the reference text. Defaults to
	// [syllable.Heuristic].
	Counter syllable.Counter

	// Publisher receives syllable count events. Defaults to [events.Discard].
	Publisher events.Publisher

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is the recording workflow. All methods are safe for concurrent
// use.
type Session struct {
	capture  Capturer
	detector Detector
	player   Player
	saver    Saver
	results  results.Store
	counter  syllable.Counter
	pub      events.Publisher
	log      *slog.Logger

	// history deduplicates concurrent history reads.
	history singleflight.Group

	// ctl serialises capture state changes.
	ctl sync.Mutex

	mu        sync.Mutex
	text      string
	syllables int
	lastSaved string
}

// New returns a Session over the given components.
func New(cfg Config) (*Session, error) {
	if cfg.Capture == nil || cfg.Detector == nil || cfg.Player == nil || cfg.Saver == nil || cfg.Results == nil {
		return nil, errors.New("session: capture, detector, player, saver and results are required")
	}
	s := &Session{
		capture:  cfg.Capture,
		detector: cfg.Detector,
		player:   cfg.Player,
		saver:    cfg.Saver,
		results:  cfg.Results,
		counter:  cfg.Counter,
		pub:      cfg.Publisher,
		log:      cfg.Logger,
	}
	if s.counter == nil {
		s.counter = syllable.Heuristic{}
	}
	if s.pub == nil {
		s.pub = events.Discard
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// SetText replaces the reference text, counts its syllables and publishes
// the count. It returns the count.
func (s *Session) SetText(text string) int {
	n := s.counter.Count(text)
	s.mu.Lock()
	s.text = text
	s.syllables = n
	s.mu.Unlock()

	s.pub.Publish(events.KindSyllableCount, events.SyllableCount{Count: n})
	s.log.Debug("reference text set", "syllables", n)
	return n
}

// Text returns the reference text and its syllable count.
func (s *Session) Text() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.syllables
}

// Start starts capture and recounts the reference text. A recording that
// was stopped or paused is continued; call [Session.Reset] first for a new
// one. Capture outlives ctx and runs until Stop, Pause or a device error.
func (s *Session) Start(ctx context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if err := s.capture.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	text, _ := s.Text()
	s.SetText(text)
	return nil
}

// Pause toggles capture: a running capture is stopped and a stopped one is
// resumed into the same recording. It returns the new capture state.
func (s *Session) Pause(ctx context.Context) (capture.State, error) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.capture.State() == capture.StateRunning {
		if err := s.capture.Stop(); err != nil {
			return s.capture.State(), err
		}
		return capture.StateStopped, nil
	}
	if err := s.capture.Start(context.WithoutCancel(ctx)); err != nil {
		return s.capture.State(), err
	}
	return capture.StateRunning, nil
}

// Stop stops capture. Stopping a stopped capture is a no-op.
func (s *Session) Stop() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return s.capture.Stop()
}

// Reset discards the recording. It fails while capture is running.
func (s *Session) Reset() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return s.capture.Reset()
}

// Detect stops capture, runs detection over the recording with the current
// syllable count and stores the result. The run is not cancelled by ctx; a
// client that goes away still gets its result recorded. A failure to store
// the result is logged and does not fail the call.
func (s *Session) Detect(ctx context.Context) (detect.SessionMetrics, error) {
	if err := s.Stop(); err != nil {
		return detect.SessionMetrics{}, fmt.Errorf("session: stop capture: %w", err)
	}
	_, syllables := s.Text()

	ctx = context.WithoutCancel(ctx)
	m, err := s.detector.Run(ctx, syllables)
	if err != nil {
		return detect.SessionMetrics{}, err
	}
	if err := s.results.Save(ctx, m); err != nil {
		s.log.Error("failed to store detection result", "run_id", m.RunID, "err", err)
	}
	return m, nil
}

// Play starts playback of the recording in the background. Completion is
// reported through a sink done event. A playback already in progress makes
// this call fail with the sink's already-in-progress error.
func (s *Session) Play(ctx context.Context) error {
	return s.player.PlayAsync(ctx)
}

// Save stops capture and writes the recording. It returns the location of
// the saved file.
func (s *Session) Save(ctx context.Context) (string, error) {
	if err := s.Stop(); err != nil {
		return "", fmt.Errorf("session: stop capture: %w", err)
	}
	loc, err := s.saver.Save(context.WithoutCancel(ctx))
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.lastSaved = loc
	s.mu.Unlock()
	return loc, nil
}

// History returns up to limit stored results, newest first. Concurrent
// calls with the same limit share one store query.
func (s *Session) History(ctx context.Context, limit int) ([]detect.SessionMetrics, error) {
	v, err, _ := s.history.Do(strconv.Itoa(limit), func() (any, error) {
		return s.results.List(ctx, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("session: history: %w", err)
	}
	return v.([]detect.SessionMetrics), nil
}

// Result returns the stored result of one run.
func (s *Session) Result(ctx context.Context, id string) (detect.SessionMetrics, error) {
	return s.results.Get(ctx, id)
}

// Status is a point-in-time view of the session.
type Status struct {
	Capture      string                 `json:"capture"`
	Recorded     time.Duration          `json:"recorded"`
	CaptureError string                 `json:"capture_error,omitempty"`
	Detection    string                 `json:"detection"`
	Playing      bool                   `json:"playing"`
	Saving       bool                   `json:"saving"`
	Syllables    int                    `json:"syllables"`
	LastSaved    string                 `json:"last_saved,omitempty"`
	LastRun      *detect.SessionMetrics `json:"last_run,omitempty"`
}

// Status returns the current state of every component.
func (s *Session) Status() Status {
	st := Status{
		Capture:   s.capture.State().String(),
		Recorded:  s.capture.Duration(),
		Detection: s.detector.State().String(),
		Playing:   s.player.Playing(),
		Saving:    s.saver.Saving(),
	}
	if err := s.capture.Err(); err != nil {
		st.CaptureError = err.Error()
	}
	if m, ok := s.detector.Last(); ok {
		st.LastRun = &m
	}
	s.mu.Lock()
	st.Syllables = s.syllables
	st.LastSaved = s.lastSaved
	s.mu.Unlock()
	return st
}
