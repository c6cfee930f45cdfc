// Package detect runs the disfluency classifiers over one recording.
//
// An [Orchestrator] takes a single snapshot of the frame buffer, assembles it
// into chunks once and hands the same chunks to every classifier in parallel.
// It waits for all of them at a barrier, sums their counts and publishes one
// [events.ClassifierCount] per classifier followed by exactly one
// [events.TotalCount].
//
// A classifier that fails, times out or has an open circuit breaker counts as
// zero and marks the run as degraded. It never blocks or cancels its siblings.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/internal/observe"
	"github.com/MrWong99/betterspeak/internal/resilience"
	"github.com/MrWong99/betterspeak/pkg/audio"
	"github.com/MrWong99/betterspeak/pkg/classifier"
	"github.com/MrWong99/betterspeak/pkg/pss"
)

// DefaultJobTimeout bounds a single classifier job.
const DefaultJobTimeout = 60 * time.Second

// ErrAlreadyRunning is returned by [Orchestrator.Run] while another run is in
// flight.
var ErrAlreadyRunning = errors.New("detect: detection already running")

// ErrJobPanicked marks a classifier job whose backend panicked. The panic is
// contained in the job and reported like any other job failure.
var ErrJobPanicked = errors.New("classifier panicked")

// State is the lifecycle state of an [Orchestrator].
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateAggregating
	StateDone
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Snapshotter yields an immutable copy of the recording. [audio.FrameBuffer]
// implements it.
type Snapshotter interface {
	Snapshot() audio.Snapshot
}

// Classifier scores chunks for one disfluency type. [classifier.Runner]
// implements it.
type Classifier interface {
	Type() classifier.Type
	Classify(ctx context.Context, chunks [][]float32) ([]classifier.Result, error)
}

var (
	_ Snapshotter = (*audio.FrameBuffer)(nil)
	_ Classifier  = (*classifier.Runner)(nil)
)

// Orchestrator coordinates detection runs. At most one run is active at a
// time. All methods are safe for concurrent use.
type Orchestrator struct {
	source      Snapshotter
	assembler   *audio.Assembler
	classifiers []Classifier
	breakers    map[classifier.Type]*resilience.CircuitBreaker
	pub         events.Publisher
	metrics     *observe.Metrics
	log         *slog.Logger

	jobTimeout atomic.Int64
	state      atomic.Int32

	mu   sync.Mutex
	last *SessionMetrics
}

// Option configures an [Orchestrator].
type Option func(*options)

type options struct {
	jobTimeout time.Duration
	breaker    resilience.CircuitBreakerConfig
	pub        events.Publisher
	metrics    *observe.Metrics
	log        *slog.Logger
}

// WithJobTimeout sets the deadline of each classifier job. Defaults to
// [DefaultJobTimeout].
func WithJobTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.jobTimeout = d
		}
	}
}

// WithBreaker configures the circuit breaker kept for each classifier type.
// The Name field is overwritten with the type.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(o *options) { o.breaker = cfg }
}

// WithPublisher sets where count events go. Defaults to [events.Discard].
func WithPublisher(p events.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.pub = p
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// New returns an idle Orchestrator. Classifiers run and report in the order
// given; each type may appear at most once.
func New(source Snapshotter, assembler *audio.Assembler, classifiers []Classifier, opts ...Option) (*Orchestrator, error) {
	o := options{
		jobTimeout: DefaultJobTimeout,
		pub:        events.Discard,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if source == nil || assembler == nil {
		return nil, errors.New("detect: source and assembler are required")
	}
	if len(classifiers) == 0 {
		return nil, errors.New("detect: at least one classifier is required")
	}

	breakers := make(map[classifier.Type]*resilience.CircuitBreaker, len(classifiers))
	for _, c := range classifiers {
		t := c.Type()
		if _, dup := breakers[t]; dup {
			return nil, fmt.Errorf("detect: duplicate classifier type %q", t)
		}
		cfg := o.breaker
		cfg.Name = string(t)
		if cfg.Logger == nil {
			cfg.Logger = o.log
		}
		breakers[t] = resilience.NewCircuitBreaker(cfg)
	}

	orch := &Orchestrator{
		source:      source,
		assembler:   assembler,
		classifiers: classifiers,
		breakers:    breakers,
		pub:         o.pub,
		metrics:     o.metrics,
		log:         o.log,
	}
	orch.jobTimeout.Store(int64(o.jobTimeout))
	return orch, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// JobTimeout returns the current per-job deadline.
func (o *Orchestrator) JobTimeout() time.Duration { return time.Duration(o.jobTimeout.Load()) }

// SetJobTimeout changes the per-job deadline for future runs. Non-positive
// values are ignored.
func (o *Orchestrator) SetJobTimeout(d time.Duration) {
	if d > 0 {
		o.jobTimeout.Store(int64(d))
	}
}

// Types returns the classifier types in reporting order.
func (o *Orchestrator) Types() []classifier.Type {
	out := make([]classifier.Type, len(o.classifiers))
	for i, c := range o.classifiers {
		out[i] = c.Type()
	}
	return out
}

// BreakerStates returns the circuit breaker state of every classifier type.
func (o *Orchestrator) BreakerStates() map[classifier.Type]resilience.State {
	out := make(map[classifier.Type]resilience.State, len(o.breakers))
	for t, b := range o.breakers {
		out[t] = b.State()
	}
	return out
}

// Last returns the metrics of the most recent completed run.
func (o *Orchestrator) Last() (SessionMetrics, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return SessionMetrics{}, false
	}
	return *o.last, true
}

// Run classifies the current recording and returns the aggregate. It fails
// with [ErrAlreadyRunning] if a run is active and with [pss.ErrNegativeCount]
// for a negative syllable count. Individual classifier failures do not fail
// the run; they are reported through SessionMetrics.Errors.
func (o *Orchestrator) Run(ctx context.Context, syllables int) (SessionMetrics, error) {
	if syllables < 0 {
		return SessionMetrics{}, fmt.Errorf("detect: %w: syllables=%d", pss.ErrNegativeCount, syllables)
	}
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) &&
		!o.state.CompareAndSwap(int32(StateDone), int32(StateRunning)) {
		o.metrics.RecordDetectionRun(ctx, observe.StatusRejected, 0)
		return SessionMetrics{}, ErrAlreadyRunning
	}

	start := time.Now()
	runID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "detect.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("syllables", syllables),
	))
	defer span.End()
	log := o.log.With("run_id", runID)

	snap := o.source.Snapshot()
	chunks, asmErr := o.assembler.Assemble(snap)
	if asmErr != nil {
		asmErr = fmt.Errorf("detect: assemble chunks: %w", asmErr)
		log.Error("failed to assemble chunks", "err", asmErr)
	}
	log.Info("detection started",
		"audio", snap.Duration(),
		"chunks", len(chunks),
		"classifiers", len(o.classifiers))

	timeout := o.JobTimeout()
	outcomes := make([]Outcome, len(o.classifiers))
	var g errgroup.Group
	for i, c := range o.classifiers {
		g.Go(func() error {
			if asmErr != nil {
				outcomes[i] = Outcome{Type: c.Type(), Err: asmErr}
				return nil
			}
			outcomes[i] = o.runJob(ctx, c, chunks, timeout)
			return nil
		})
	}
	_ = g.Wait()

	o.state.Store(int32(StateAggregating))
	m := o.aggregate(runID, outcomes, syllables, len(chunks), snap.Duration())
	m.Duration = time.Since(start)

	for _, out := range outcomes {
		ev := events.ClassifierCount{RunID: runID, Type: out.Type, Count: out.Count}
		if out.Err != nil {
			ev.Error = out.Err.Error()
		}
		o.pub.Publish(events.KindClassifierCount, ev)
	}
	o.pub.Publish(events.KindTotalCount, events.TotalCount{
		RunID:     runID,
		Total:     m.Total,
		Syllables: m.Syllables,
		PSS:       m.PSS,
		PSSValid:  m.PSSValid,
		Degraded:  m.Degraded,
	})

	status := observe.StatusOK
	if m.Degraded {
		status = observe.StatusDegraded
		span.SetStatus(codes.Error, "degraded")
	}
	span.SetAttributes(attribute.Int("total", m.Total), attribute.Bool("degraded", m.Degraded))
	o.metrics.RecordDetectionRun(ctx, status, m.Duration)

	o.mu.Lock()
	o.last = &m
	o.mu.Unlock()
	o.state.Store(int32(StateDone))

	log.Info("detection finished",
		"total", m.Total,
		"pss", m.PSS,
		"pss_valid", m.PSSValid,
		"degraded", m.Degraded,
		"duration", m.Duration)
	return m, nil
}

// runJob executes one classifier under its deadline and breaker. The result
// is delivered even if the classifier ignores ctx: the job returns as soon as
// the deadline passes and the straggler's result is dropped.
func (o *Orchestrator) runJob(ctx context.Context, c Classifier, chunks [][]float32, timeout time.Duration) Outcome {
	t := c.Type()
	ctx, span := observe.StartSpan(ctx, "detect.job", trace.WithAttributes(attribute.String("type", string(t))))
	defer span.End()

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var results []classifier.Result
	err := o.breakers[t].Execute(func() error {
		type reply struct {
			results []classifier.Result
			err     error
		}
		ch := make(chan reply, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					ch <- reply{err: fmt.Errorf("detect: %s job: %w: %v", t, ErrJobPanicked, p)}
				}
			}()
			r, err := c.Classify(jobCtx, chunks)
			ch <- reply{r, err}
		}()
		select {
		case r := <-ch:
			results = r.results
			return r.err
		case <-jobCtx.Done():
			return fmt.Errorf("detect: %s job: %w", t, jobCtx.Err())
		}
	})

	out := Outcome{Type: t, Duration: time.Since(start)}
	o.metrics.RecordClassifierJob(ctx, string(t), len(chunks), out.Duration, err)
	if err != nil {
		out.Err = err
		reason := failureReason(err)
		o.metrics.RecordJobError(ctx, string(t), reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		o.log.Warn("classifier job failed", "type", t, "reason", reason, "err", err)
		return out
	}
	out.Count = classifier.Count(results)
	span.SetAttributes(attribute.Int("count", out.Count))
	return out
}

func (o *Orchestrator) aggregate(runID string, outcomes []Outcome, syllables, chunks int, dur time.Duration) SessionMetrics {
	m := SessionMetrics{
		RunID:     runID,
		Syllables: syllables,
		Chunks:    chunks,
		Audio:     dur,
		CreatedAt: time.Now().UTC(),
	}
	for _, out := range outcomes {
		if out.Err != nil {
			m.Degraded = true
			if m.Errors == nil {
				m.Errors = make(map[classifier.Type]string)
			}
			m.Errors[out.Type] = out.Err.Error()
			continue
		}
		m.setCount(out.Type, out.Count)
		m.Total += out.Count
	}
	if p, err := pss.Calculate(m.Total, syllables); err == nil {
		m.PSS = p
		m.PSSValid = true
	}
	return m
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, classifier.ErrModelLoad):
		return "model_load"
	case errors.Is(err, classifier.ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, ErrJobPanicked):
		return "panic"
	default:
		return "error"
	}
}
