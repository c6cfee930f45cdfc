package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/internal/observe"
	"github.com/MrWong99/betterspeak/internal/storage"
	"github.com/MrWong99/betterspeak/pkg/audio"
)

const sinkPersistence = "persistence"

// FileNameLayout is the time layout of saved recordings (hour-minute,
// day-month-year).
const FileNameLayout = "15-04_02-01-2006"

// maxCollisions bounds the numeric suffixes tried for one base name.
const maxCollisions = 1000

// Persistence saves the recording as a 16-bit PCM mono WAV file.
type Persistence struct {
	store   storage.FileStore
	source  Snapshotter
	pub     events.Publisher
	metrics *observe.Metrics
	log     *slog.Logger
	now     func() time.Time

	guard guard
}

// NewPersistence returns a Persistence writing snapshots of source to store.
func NewPersistence(store storage.FileStore, source Snapshotter, opts ...Option) *Persistence {
	o := newOptions(opts)
	return &Persistence{
		store:   store,
		source:  source,
		pub:     o.pub,
		metrics: o.metrics,
		log:     o.log,
		now:     o.now,
	}
}

// Saving reports whether a save is in progress.
func (p *Persistence) Saving() bool { return p.guard.active() }

// Save snapshots the recording and writes it to the store. It returns the
// location of the written file. A failed write returns an *[IOError] after
// the partial file has been removed.
func (p *Persistence) Save(ctx context.Context) (string, error) {
	if err := p.guard.acquire(); err != nil {
		p.metrics.RecordSink(ctx, sinkPersistence, observe.StatusRejected)
		return "", err
	}
	defer p.guard.release()
	return p.save(ctx, p.source.Snapshot())
}

// SaveAsync starts a save in its own goroutine and reports completion via a
// [events.SinkDone] event carrying the file location. The snapshot is taken
// before SaveAsync returns.
func (p *Persistence) SaveAsync(ctx context.Context) error {
	if err := p.guard.acquire(); err != nil {
		p.metrics.RecordSink(ctx, sinkPersistence, observe.StatusRejected)
		return err
	}
	snap := p.source.Snapshot()
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer p.guard.release()
		loc, err := p.save(ctx, snap)
		done := events.SinkDone{Sink: sinkPersistence, Path: loc}
		if err != nil {
			done.Error = err.Error()
		}
		p.pub.Publish(events.KindSinkDone, done)
	}()
	return nil
}

func (p *Persistence) save(ctx context.Context, snap audio.Snapshot) (loc string, err error) {
	ctx, span := observe.StartSpan(ctx, "sink.persistence")
	defer span.End()

	defer func() {
		status := observe.StatusOK
		if err != nil {
			status = observe.StatusError
			span.RecordError(err)
		}
		p.metrics.RecordSink(ctx, sinkPersistence, status)
	}()

	if snap.Empty() {
		return "", ErrEmptyRecording
	}

	started := snap.StartedAt
	if started.IsZero() {
		started = p.now()
	}
	name, err := p.freeName(ctx, started.Format(FileNameLayout))
	if err != nil {
		return "", err
	}
	loc = p.store.Location(name)

	w, err := p.store.Write(ctx, name)
	if err != nil {
		return "", &IOError{Path: loc, Err: err}
	}
	if err := EncodeWAV(w, snap.Samples(), snap.Format.SampleRate); err != nil {
		p.discard(ctx, name, w, err)
		return "", &IOError{Path: loc, Err: err}
	}
	if err := w.Close(); err != nil {
		p.remove(ctx, name)
		return "", &IOError{Path: loc, Err: err}
	}

	p.log.Info("recording saved", "path", loc, "audio", snap.Duration())
	return loc, nil
}

// freeName returns base+".wav", or base+"-N.wav" for the smallest N that is
// not taken yet.
func (p *Persistence) freeName(ctx context.Context, base string) (string, error) {
	for i := range maxCollisions {
		name := base + ".wav"
		if i > 0 {
			name = base + "-" + strconv.Itoa(i) + ".wav"
		}
		exists, err := p.store.Exists(ctx, name)
		if err != nil {
			return "", &IOError{Path: p.store.Location(name), Err: err}
		}
		if !exists {
			return name, nil
		}
	}
	return "", &IOError{
		Path: p.store.Location(base + ".wav"),
		Err:  fmt.Errorf("more than %d recordings share this name", maxCollisions),
	}
}

// discard drops a failed writer, preferring abort over commit.
func (p *Persistence) discard(ctx context.Context, name string, w io.WriteCloser, cause error) {
	if a, ok := w.(storage.Aborter); ok {
		if err := a.Abort(cause); err != nil {
			p.log.Warn("failed to abort partial recording", "name", name, "err", err)
		}
	} else {
		_ = w.Close()
	}
	p.remove(ctx, name)
}

func (p *Persistence) remove(ctx context.Context, name string) {
	if err := p.store.Delete(ctx, name); err != nil {
		p.log.Warn("failed to remove partial recording", "name", name, "err", err)
	}
}
