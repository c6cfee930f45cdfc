// Package silence provides audio devices that need no hardware: a capture
// device that produces zeroed frames at the real-time cadence of the
// configured format, and a playback device that discards its input after
// waiting for the equivalent play time.
//
// They back headless deployments and end-to-end tests.
package silence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/betterspeak/pkg/audio"
)

var (
	_ audio.CaptureDevice  = (*Capture)(nil)
	_ audio.PlaybackDevice = (*Playback)(nil)
)

var errClosed = errors.New("silence: device closed")

// Option configures a silence device.
type Option func(*options)

type options struct {
	realtime bool
}

// WithRealtime controls whether Read and Write pace themselves to the wall
// clock. Defaults to true; tests usually disable it.
func WithRealtime(on bool) Option {
	return func(o *options) { o.realtime = on }
}

func buildOptions(opts []Option) options {
	o := options{realtime: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Capture yields silent frames.
type Capture struct {
	opts options

	mu     sync.Mutex
	format audio.Format
	open   bool
	next   time.Time
}

// NewCapture returns an unopened silent capture device.
func NewCapture(opts ...Option) *Capture {
	return &Capture{opts: buildOptions(opts)}
}

// Open implements [audio.CaptureDevice].
func (c *Capture) Open(f audio.Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = f
	c.open = true
	c.next = time.Now()
	return nil
}

// Read implements [audio.CaptureDevice].
func (c *Capture) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil, &audio.DeviceError{Op: "read", Err: errClosed}
	}
	f := c.format
	var wait time.Duration
	if c.opts.realtime {
		c.next = c.next.Add(f.FrameDuration())
		wait = time.Until(c.next)
	}
	c.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return make([]byte, f.FrameBytes()), nil
}

// Close implements [audio.CaptureDevice].
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// Playback swallows audio.
type Playback struct {
	opts options

	mu     sync.Mutex
	format audio.Format
	open   bool
}

// NewPlayback returns an unopened silent playback device.
func NewPlayback(opts ...Option) *Playback {
	return &Playback{opts: buildOptions(opts)}
}

// Open implements [audio.PlaybackDevice].
func (p *Playback) Open(f audio.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.format = f
	p.open = true
	return nil
}

// Write implements [audio.PlaybackDevice].
func (p *Playback) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	open, f := p.open, p.format
	p.mu.Unlock()
	if !open {
		return &audio.DeviceError{Op: "write", Err: errClosed}
	}
	if !p.opts.realtime {
		return nil
	}
	t := time.NewTimer(f.Duration(len(data)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close implements [audio.PlaybackDevice].
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = false
	return nil
}
