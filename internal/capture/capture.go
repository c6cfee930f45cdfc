// Package capture runs the microphone read loop of a recording.
//
// A [Source] owns one [audio.CaptureDevice] and one [audio.FrameBuffer]. While
// running it reads fixed-size frames on a dedicated goroutine, appends each to
// the buffer and hands it to an optional [FrameConsumer]. The loop never waits
// on inference or storage; slow consumers must drop work rather than block.
//
// A Source can be stopped and started again any number of times. Every start
// keeps appending to the same buffer, so pausing a recording loses nothing.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/internal/observe"
	"github.com/MrWong99/betterspeak/pkg/audio"
)

// ErrAlreadyRunning is returned by [Source.Start] while the loop is running
// and by [Source.Reset] when the buffer is still being written.
var ErrAlreadyRunning = errors.New("capture: already running")

// State is the lifecycle state of a [Source].
type State int

const (
	// StateStopped means no read loop is active.
	StateStopped State = iota

	// StateRunning means the read loop is appending frames.
	StateRunning
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// FrameConsumer receives every frame after it has been appended to the
// buffer. It runs on the capture goroutine and must not block.
type FrameConsumer func(frame []byte)

// Source is the capture read loop. All methods are safe for concurrent use.
type Source struct {
	device   audio.CaptureDevice
	buf      *audio.FrameBuffer
	consumer FrameConsumer
	pub      events.Publisher
	metrics  *observe.Metrics
	log      *slog.Logger

	mu     sync.Mutex
	state  State
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a [Source].
type Option func(*Source)

// WithConsumer registers the consumer called for every captured frame.
func WithConsumer(c FrameConsumer) Option {
	return func(s *Source) { s.consumer = c }
}

// WithPublisher sets where capture status events go. Defaults to
// [events.Discard].
func WithPublisher(p events.Publisher) Option {
	return func(s *Source) {
		if p != nil {
			s.pub = p
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Source) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a stopped Source that reads from device into buf.
func New(device audio.CaptureDevice, buf *audio.FrameBuffer, opts ...Option) *Source {
	s := &Source{
		device: device,
		buf:    buf,
		pub:    events.Discard,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Buffer returns the buffer the Source appends to.
func (s *Source) Buffer() *audio.FrameBuffer { return s.buf }

// Duration returns the buffered play time.
func (s *Source) Duration() time.Duration { return s.buf.Duration() }

// Start opens the device and launches the read loop. The loop ends when Stop
// is called, when ctx is cancelled or when a read fails.
//
// Start returns [ErrAlreadyRunning] if the loop is active and an
// *[audio.DeviceError] if the device cannot be opened.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return ErrAlreadyRunning
	}
	if err := s.device.Open(s.buf.Format()); err != nil {
		err = asDeviceError("open", err)
		s.err = err
		s.metrics.RecordCaptureError(ctx, "open")
		s.log.Error("capture: failed to open device", "err", err)
		return fmt.Errorf("capture: start: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.state = StateRunning
	s.err = nil
	s.cancel = cancel
	s.done = done

	s.metrics.ActiveCaptures.Add(ctx, 1)
	s.log.Info("capture started",
		"sample_rate", s.buf.Format().SampleRate,
		"frames_per_buffer", s.buf.Format().FramesPerBuffer,
		"buffered", s.buf.Duration())
	s.publish(StateRunning, nil)

	go s.loop(loopCtx, done)
	return nil
}

// Stop ends the read loop and closes the device. The frame being read when
// Stop is called is still appended. Stop on a stopped Source is a no-op.
func (s *Source) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Reset clears the buffer for a new recording. It fails with
// [ErrAlreadyRunning] while capture is active.
func (s *Source) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return fmt.Errorf("capture: reset: %w", ErrAlreadyRunning)
	}
	s.buf.Reset()
	s.err = nil
	s.log.Info("capture buffer reset")
	return nil
}

// State returns the current lifecycle state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the most recent loop, or nil if it was
// stopped normally.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Source) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	var loopErr error
	for {
		frame, err := s.device.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				loopErr = asDeviceError("read", err)
			}
			break
		}
		s.buf.Append(frame)
		s.metrics.CaptureFrames.Add(ctx, 1)
		if s.consumer != nil {
			s.consumer(frame)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err := s.device.Close(); err != nil {
		s.log.Warn("capture: failed to close device", "err", err)
		s.metrics.RecordCaptureError(context.WithoutCancel(ctx), "close")
	}

	bg := context.WithoutCancel(ctx)
	s.metrics.ActiveCaptures.Add(bg, -1)
	if loopErr != nil {
		s.metrics.RecordCaptureError(bg, "read")
		s.log.Error("capture stopped on read failure", "err", loopErr, "buffered", s.buf.Duration())
	} else {
		s.log.Info("capture stopped", "buffered", s.buf.Duration())
	}

	s.mu.Lock()
	s.state = StateStopped
	s.err = loopErr
	s.cancel()
	s.cancel = nil
	s.mu.Unlock()

	s.publish(StateStopped, loopErr)
}

func (s *Source) publish(state State, err error) {
	st := events.CaptureStatus{
		State:    state.String(),
		Duration: s.buf.Duration(),
	}
	if err != nil {
		st.Error = err.Error()
	}
	s.pub.Publish(events.KindCaptureStatus, st)
}

func asDeviceError(op string, err error) error {
	var de *audio.DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &audio.DeviceError{Op: op, Err: err}
}
