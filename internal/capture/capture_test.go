package capture_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/betterspeak/internal/capture"
	"github.com/MrWong99/betterspeak/internal/events"
	eventsmock "github.com/MrWong99/betterspeak/internal/events/mock"
	"github.com/MrWong99/betterspeak/internal/observe"
	"github.com/MrWong99/betterspeak/pkg/audio"
	audiomock "github.com/MrWong99/betterspeak/pkg/audio/mock"
)

var testFormat = audio.Format{SampleRate: 16000, FramesPerBuffer: 4}

func newMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m, reader
}

func frame(v byte) []byte {
	f := make([]byte, testFormat.FrameBytes())
	for i := range f {
		f[i] = v
	}
	return f
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSource_AppendsAndForwardsInOrder(t *testing.T) {
	t.Parallel()

	src := make(chan []byte, 3)
	dev := &audiomock.Capture{Source: src}
	buf := audio.NewFrameBuffer(testFormat)
	m, reader := newMetrics(t)

	var (
		mu  sync.Mutex
		got []byte
	)
	s := capture.New(dev, buf,
		capture.WithMetrics(m),
		capture.WithConsumer(func(f []byte) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, f[0])
		}),
	)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != capture.StateRunning {
		t.Fatalf("state = %v, want running", s.State())
	}
	for i := byte(1); i <= 3; i++ {
		src <- frame(i)
	}
	waitFor(t, "three frames", func() bool { return buf.Blocks() == 3 })

	if err := s.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != capture.StateStopped {
		t.Fatalf("state = %v, want stopped", s.State())
	}
	if s.Err() != nil {
		t.Fatalf("Err() = %v, want nil after a normal stop", s.Err())
	}
	if dev.Closes() != 1 {
		t.Fatalf("device closed %d times, want 1", dev.Closes())
	}

	mu.Lock()
	defer mu.Unlock()
	if string(got) != "\x01\x02\x03" {
		t.Fatalf("consumer order = %v, want [1 2 3]", got)
	}
	snap := buf.Snapshot()
	if snap.Data[0] != 1 || snap.Data[len(snap.Data)-1] != 3 {
		t.Fatal("buffer is not in capture order")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var frames int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "betterspeak.capture.frames" {
				continue
			}
			for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
				frames += dp.Value
			}
		}
	}
	if frames != 3 {
		t.Fatalf("capture.frames = %d, want 3", frames)
	}
}

func TestSource_StartWhileRunning(t *testing.T) {
	t.Parallel()

	dev := &audiomock.Capture{}
	m, _ := newMetrics(t)
	s := capture.New(dev, audio.NewFrameBuffer(testFormat), capture.WithMetrics(m))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })

	if err := s.Start(context.Background()); !errors.Is(err, capture.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
	if dev.Opens() != 1 {
		t.Fatalf("device opened %d times, want 1", dev.Opens())
	}
}

func TestSource_OpenFailure(t *testing.T) {
	t.Parallel()

	dev := &audiomock.Capture{OpenErr: errors.New("no microphone")}
	pub := &eventsmock.Publisher{}
	m, _ := newMetrics(t)
	s := capture.New(dev, audio.NewFrameBuffer(testFormat), capture.WithMetrics(m), capture.WithPublisher(pub))

	err := s.Start(context.Background())
	if !errors.Is(err, audio.ErrDevice) {
		t.Fatalf("err = %v, want a device error", err)
	}
	var de *audio.DeviceError
	if !errors.As(err, &de) || de.Op != "open" {
		t.Fatalf("err = %v, want DeviceError with op open", err)
	}
	if s.State() != capture.StateStopped {
		t.Fatalf("state = %v, want stopped", s.State())
	}
	if len(pub.All()) != 0 {
		t.Fatalf("published %d events on a failed start, want 0", len(pub.All()))
	}
}

func TestSource_ReadFailureStops(t *testing.T) {
	t.Parallel()

	readErr := errors.New("stream overflow")
	dev := &audiomock.Capture{
		Frames:  [][]byte{frame(1), frame(2)},
		ReadErr: readErr,
	}
	pub := &eventsmock.Publisher{}
	buf := audio.NewFrameBuffer(testFormat)
	m, _ := newMetrics(t)
	s := capture.New(dev, buf, capture.WithMetrics(m), capture.WithPublisher(pub))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "loop exit", func() bool { return s.State() == capture.StateStopped })

	if !errors.Is(s.Err(), readErr) || !errors.Is(s.Err(), audio.ErrDevice) {
		t.Fatalf("Err() = %v, want wrapped read device error", s.Err())
	}
	if buf.Blocks() != 2 {
		t.Fatalf("blocks = %d, want 2 frames read before the failure", buf.Blocks())
	}
	waitFor(t, "stopped status", func() bool { return len(pub.OfKind(events.KindCaptureStatus)) == 2 })

	statuses := pub.OfKind(events.KindCaptureStatus)
	first := statuses[0].Data.(events.CaptureStatus)
	last := statuses[1].Data.(events.CaptureStatus)
	if first.State != "running" || last.State != "stopped" {
		t.Fatalf("status states = %q, %q; want running, stopped", first.State, last.State)
	}
	if last.Error == "" {
		t.Fatal("stopped status should carry the read error")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop after failure: unexpected error: %v", err)
	}
}

func TestSource_RestartKeepsFrames(t *testing.T) {
	t.Parallel()

	src := make(chan []byte, 4)
	dev := &audiomock.Capture{Source: src}
	buf := audio.NewFrameBuffer(testFormat)
	m, _ := newMetrics(t)
	s := capture.New(dev, buf, capture.WithMetrics(m))

	for round := range 2 {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("round %d: unexpected error: %v", round, err)
		}
		src <- frame(byte(round*2 + 1))
		src <- frame(byte(round*2 + 2))
		want := (round + 1) * 2
		waitFor(t, "frames", func() bool { return buf.Blocks() == want })
		if err := s.Stop(); err != nil {
			t.Fatalf("round %d: unexpected error: %v", round, err)
		}
	}

	if dev.Opens() != 2 || dev.Closes() != 2 {
		t.Fatalf("opens/closes = %d/%d, want 2/2", dev.Opens(), dev.Closes())
	}
	data := buf.Snapshot().Data
	fb := testFormat.FrameBytes()
	for i := range 4 {
		if data[i*fb] != byte(i+1) {
			t.Fatalf("frame %d starts with %d, want %d", i, data[i*fb], i+1)
		}
	}
}

func TestSource_Reset(t *testing.T) {
	t.Parallel()

	dev := &audiomock.Capture{Frames: [][]byte{frame(1)}}
	buf := audio.NewFrameBuffer(testFormat)
	m, _ := newMetrics(t)
	s := capture.New(dev, buf, capture.WithMetrics(m))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "first frame", func() bool { return buf.Blocks() == 1 })

	if err := s.Reset(); !errors.Is(err, capture.ErrAlreadyRunning) {
		t.Fatalf("Reset while running: err = %v, want ErrAlreadyRunning", err)
	}
	if buf.Blocks() != 1 {
		t.Fatal("rejected reset must not touch the buffer")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Blocks() != 0 {
		t.Fatalf("blocks = %d after reset, want 0", buf.Blocks())
	}
}

func TestSource_ContextCancelStops(t *testing.T) {
	t.Parallel()

	dev := &audiomock.Capture{}
	m, _ := newMetrics(t)
	s := capture.New(dev, audio.NewFrameBuffer(testFormat), capture.WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	waitFor(t, "stop on cancel", func() bool { return s.State() == capture.StateStopped })
	if s.Err() != nil {
		t.Fatalf("Err() = %v, want nil for a cancelled loop", s.Err())
	}
}
