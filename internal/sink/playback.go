package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/internal/observe"
	"github.com/MrWong99/betterspeak/pkg/audio"
)

const sinkPlayback = "playback"

// Playback plays the recording on an output device.
type Playback struct {
	device  audio.PlaybackDevice
	source  Snapshotter
	pub     events.Publisher
	metrics *observe.Metrics
	log     *slog.Logger

	guard guard
}

// NewPlayback returns a Playback writing snapshots of source to device.
func NewPlayback(device audio.PlaybackDevice, source Snapshotter, opts ...Option) *Playback {
	o := newOptions(opts)
	return &Playback{
		device:  device,
		source:  source,
		pub:     o.pub,
		metrics: o.metrics,
		log:     o.log,
	}
}

// Playing reports whether a playback is in progress.
func (p *Playback) Playing() bool { return p.guard.active() }

// Play snapshots the recording and plays it to completion. It returns
// [ErrAlreadyInProgress] if a playback is running and an *[audio.DeviceError]
// if the device fails.
func (p *Playback) Play(ctx context.Context) error {
	if err := p.guard.acquire(); err != nil {
		p.metrics.RecordSink(ctx, sinkPlayback, observe.StatusRejected)
		return err
	}
	defer p.guard.release()
	return p.play(ctx, p.source.Snapshot())
}

// PlayAsync starts playback in its own goroutine and reports completion via
// a [events.SinkDone] event. The snapshot is taken before PlayAsync returns.
// The playback outlives ctx cancellation.
func (p *Playback) PlayAsync(ctx context.Context) error {
	if err := p.guard.acquire(); err != nil {
		p.metrics.RecordSink(ctx, sinkPlayback, observe.StatusRejected)
		return err
	}
	snap := p.source.Snapshot()
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer p.guard.release()
		err := p.play(ctx, snap)
		done := events.SinkDone{Sink: sinkPlayback}
		if err != nil {
			done.Error = err.Error()
		}
		p.pub.Publish(events.KindSinkDone, done)
	}()
	return nil
}

func (p *Playback) play(ctx context.Context, snap audio.Snapshot) (err error) {
	ctx, span := observe.StartSpan(ctx, "sink.playback")
	defer span.End()

	defer func() {
		status := observe.StatusOK
		if err != nil {
			status = observe.StatusError
			span.RecordError(err)
		}
		p.metrics.RecordSink(ctx, sinkPlayback, status)
	}()

	if snap.Empty() {
		return ErrEmptyRecording
	}
	if err := p.device.Open(snap.Format); err != nil {
		return deviceError("open", err)
	}
	p.log.Info("playback started", "audio", snap.Duration())

	writeErr := p.device.Write(ctx, snap.Data)
	closeErr := p.device.Close()
	if writeErr != nil {
		p.log.Warn("playback failed", "err", writeErr)
		return deviceError("write", writeErr)
	}
	if closeErr != nil {
		return deviceError("close", closeErr)
	}
	p.log.Info("playback finished", "audio", snap.Duration())
	return nil
}

func deviceError(op string, err error) error {
	var de *audio.DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &audio.DeviceError{Op: op, Err: err}
}
