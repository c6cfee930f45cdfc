package sink_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/betterspeak/internal/events"
	eventsmock "github.com/MrWong99/betterspeak/internal/events/mock"
	"github.com/MrWong99/betterspeak/internal/observe"
	"github.com/MrWong99/betterspeak/internal/sink"
	"github.com/MrWong99/betterspeak/internal/storage"
	storagemock "github.com/MrWong99/betterspeak/internal/storage/mock"
	"github.com/MrWong99/betterspeak/pkg/audio"
	audiomock "github.com/MrWong99/betterspeak/pkg/audio/mock"
)

var testFormat = audio.Format{SampleRate: 16000, FramesPerBuffer: 160}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

// fixedSnapshot serves the same snapshot on every call.
type fixedSnapshot struct{ snap audio.Snapshot }

func (f fixedSnapshot) Snapshot() audio.Snapshot { return f.snap }

func snapshotOf(samples []float32, started time.Time) fixedSnapshot {
	return fixedSnapshot{audio.Snapshot{
		Data:      audio.EncodeFloat32(samples),
		Blocks:    1,
		Format:    testFormat,
		StartedAt: started,
	}}
}

func waitEvent(t *testing.T, pub *eventsmock.Publisher, kind events.Kind) eventsmock.Published {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := pub.OfKind(kind); len(evs) > 0 {
			return evs[0]
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no %s event", kind)
	return eventsmock.Published{}
}

// ─── Persistence ─────────────────────────────────────────────────────────────

var started = time.Date(2024, time.March, 7, 14, 5, 30, 0, time.Local)

func TestPersistence_SaveNamesByStartTime(t *testing.T) {
	t.Parallel()

	store := storagemock.NewStore()
	p := sink.NewPersistence(store, snapshotOf([]float32{0.5, -0.5}, started), sink.WithMetrics(testMetrics(t)))

	loc, err := p.Save(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != "mem://14-05_07-03-2024.wav" {
		t.Fatalf("location = %q", loc)
	}
	data, ok := store.File("14-05_07-03-2024.wav")
	if !ok || len(data) != sink.WAVHeaderSize+4 {
		t.Fatalf("stored %d bytes, want %d", len(data), sink.WAVHeaderSize+4)
	}
}

func TestPersistence_CollisionSuffix(t *testing.T) {
	t.Parallel()

	store := storagemock.NewStore()
	p := sink.NewPersistence(store, snapshotOf([]float32{0.1}, started), sink.WithMetrics(testMetrics(t)))

	want := []string{
		"mem://14-05_07-03-2024.wav",
		"mem://14-05_07-03-2024-1.wav",
		"mem://14-05_07-03-2024-2.wav",
	}
	for i, w := range want {
		loc, err := p.Save(context.Background())
		if err != nil {
			t.Fatalf("save %d: unexpected error: %v", i, err)
		}
		if loc != w {
			t.Fatalf("save %d: location = %q, want %q", i, loc, w)
		}
	}
}

func TestPersistence_PartialWriteIsRemoved(t *testing.T) {
	t.Parallel()

	store := storagemock.NewStore()
	store.FailAfter = 10
	p := sink.NewPersistence(store, snapshotOf(make([]float32, 1000), started), sink.WithMetrics(testMetrics(t)))

	_, err := p.Save(context.Background())
	var ioErr *sink.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want *IOError", err)
	}
	if !errors.Is(err, storagemock.ErrInjected) {
		t.Fatalf("err = %v, want wrapped injected failure", err)
	}
	if ioErr.Path != "mem://14-05_07-03-2024.wav" {
		t.Fatalf("path = %q", ioErr.Path)
	}
	if _, ok := store.File("14-05_07-03-2024.wav"); ok {
		t.Fatal("partial file must be removed")
	}
	if d := store.Deletes(); len(d) != 1 || d[0] != "14-05_07-03-2024.wav" {
		t.Fatalf("deletes = %v", d)
	}
}

func TestPersistence_OpenFailure(t *testing.T) {
	t.Parallel()

	store := storagemock.NewStore()
	store.WriteErr = errors.New("read-only file system")
	p := sink.NewPersistence(store, snapshotOf([]float32{0.1}, started), sink.WithMetrics(testMetrics(t)))

	_, err := p.Save(context.Background())
	var ioErr *sink.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want *IOError", err)
	}
}

func TestPersistence_EmptyRecording(t *testing.T) {
	t.Parallel()

	p := sink.NewPersistence(storagemock.NewStore(), fixedSnapshot{}, sink.WithMetrics(testMetrics(t)))
	if _, err := p.Save(context.Background()); !errors.Is(err, sink.ErrEmptyRecording) {
		t.Fatalf("err = %v, want ErrEmptyRecording", err)
	}
}

func TestPersistence_LocalCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "saved_recordings")
	store, err := storage.NewLocal(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := sink.NewPersistence(store, snapshotOf([]float32{0.25, -0.25, 1}, started), sink.WithMetrics(testMetrics(t)))

	loc, err := p.Save(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != filepath.Join(dir, "14-05_07-03-2024.wav") {
		t.Fatalf("location = %q", loc)
	}
	f, err := os.Open(loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()
	info, err := sink.DecodeWAV(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.SampleRate != 16000 || len(info.Samples) != 3 || info.Samples[2] != 32767 {
		t.Fatalf("decoded %+v", info)
	}
}

func TestPersistence_UsesClockWithoutStartTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.December, 31, 23, 59, 0, 0, time.Local)
	store := storagemock.NewStore()
	p := sink.NewPersistence(store, snapshotOf([]float32{0}, time.Time{}),
		sink.WithMetrics(testMetrics(t)),
		sink.WithClock(func() time.Time { return now }),
	)
	loc, err := p.Save(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != "mem://23-59_31-12-2025.wav" {
		t.Fatalf("location = %q", loc)
	}
}

// blockingStore holds every Write open until release is closed.
type blockingStore struct {
	*storagemock.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Write(ctx context.Context, path string) (io.WriteCloser, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.Store.Write(ctx, path)
}

func TestPersistence_RejectsOverlap(t *testing.T) {
	t.Parallel()

	store := &blockingStore{
		Store:   storagemock.NewStore(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	pub := &eventsmock.Publisher{}
	p := sink.NewPersistence(store, snapshotOf([]float32{0.1}, started),
		sink.WithMetrics(testMetrics(t)), sink.WithPublisher(pub))

	if err := p.SaveAsync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-store.entered
	if !p.Saving() {
		t.Fatal("Saving() should report the running save")
	}
	if _, err := p.Save(context.Background()); !errors.Is(err, sink.ErrAlreadyInProgress) {
		t.Fatalf("err = %v, want ErrAlreadyInProgress", err)
	}
	if err := p.SaveAsync(context.Background()); !errors.Is(err, sink.ErrAlreadyInProgress) {
		t.Fatalf("err = %v, want ErrAlreadyInProgress", err)
	}

	close(store.release)
	ev := waitEvent(t, pub, events.KindSinkDone)
	done := ev.Data.(events.SinkDone)
	if done.Sink != "persistence" || done.Error != "" || done.Path != "mem://14-05_07-03-2024.wav" {
		t.Fatalf("sink done = %+v", done)
	}
	deadline := time.Now().Add(2 * time.Second)
	for p.Saving() {
		if time.Now().After(deadline) {
			t.Fatal("guard never released")
		}
		time.Sleep(time.Millisecond)
	}
}

// ─── Playback ────────────────────────────────────────────────────────────────

func TestPlayback_WritesSnapshot(t *testing.T) {
	t.Parallel()

	dev := &audiomock.Playback{}
	snap := snapshotOf([]float32{0.1, 0.2, 0.3}, started)
	p := sink.NewPlayback(dev, snap, sink.WithMetrics(testMetrics(t)))

	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := dev.Writes()
	if len(w) != 1 || string(w[0]) != string(snap.snap.Data) {
		t.Fatal("playback should be one bulk write of the snapshot")
	}
	if dev.CallCountOpen != 1 || dev.CallCountClose != 1 {
		t.Fatalf("open/close = %d/%d, want 1/1", dev.CallCountOpen, dev.CallCountClose)
	}
}

func TestPlayback_DeviceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		dev    *audiomock.Playback
		wantOp string
	}{
		{name: "open", dev: &audiomock.Playback{OpenErr: errors.New("busy")}, wantOp: "open"},
		{name: "write", dev: &audiomock.Playback{WriteErr: errors.New("underrun")}, wantOp: "write"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := sink.NewPlayback(tt.dev, snapshotOf([]float32{0.1}, started), sink.WithMetrics(testMetrics(t)))
			err := p.Play(context.Background())
			var de *audio.DeviceError
			if !errors.As(err, &de) || de.Op != tt.wantOp {
				t.Fatalf("err = %v, want DeviceError op %s", err, tt.wantOp)
			}
			if !errors.Is(err, audio.ErrDevice) {
				t.Fatal("device errors must match audio.ErrDevice")
			}
			if p.Playing() {
				t.Fatal("guard must be released after a failure")
			}
		})
	}
}

func TestPlayback_IgnoredWhilePlaying(t *testing.T) {
	t.Parallel()

	dev := &audiomock.Playback{Block: make(chan struct{}), Started: make(chan struct{}, 1)}
	pub := &eventsmock.Publisher{}
	p := sink.NewPlayback(dev, snapshotOf([]float32{0.1}, started),
		sink.WithMetrics(testMetrics(t)), sink.WithPublisher(pub))

	if err := p.PlayAsync(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-dev.Started

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Play(context.Background()); !errors.Is(err, sink.ErrAlreadyInProgress) {
				t.Errorf("err = %v, want ErrAlreadyInProgress", err)
			}
		}()
	}
	wg.Wait()

	close(dev.Block)
	ev := waitEvent(t, pub, events.KindSinkDone)
	if done := ev.Data.(events.SinkDone); done.Sink != "playback" || done.Error != "" {
		t.Fatalf("sink done = %+v", done)
	}
	if n := len(dev.Writes()); n != 1 {
		t.Fatalf("device written %d times, want 1", n)
	}
}

func TestPlayback_EmptyRecording(t *testing.T) {
	t.Parallel()

	dev := &audiomock.Playback{}
	p := sink.NewPlayback(dev, fixedSnapshot{}, sink.WithMetrics(testMetrics(t)))
	if err := p.Play(context.Background()); !errors.Is(err, sink.ErrEmptyRecording) {
		t.Fatalf("err = %v, want ErrEmptyRecording", err)
	}
	if dev.CallCountOpen != 0 {
		t.Fatal("device must not be opened for an empty recording")
	}
}
