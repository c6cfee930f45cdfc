// Package mock provides in-memory implementations of [audio.CaptureDevice]
// and [audio.PlaybackDevice] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	frames := make(chan []byte, 4)
//	dev := &mock.Capture{Source: frames}
//	frames <- make([]byte, 4096)
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/betterspeak/pkg/audio"
)

var (
	_ audio.CaptureDevice  = (*Capture)(nil)
	_ audio.PlaybackDevice = (*Playback)(nil)
)

// ErrSourceClosed is returned by [Capture.Read] when Source is closed and no
// ReadErr is configured.
var ErrSourceClosed = errors.New("mock: capture source closed")

// ─── Capture ─────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.CaptureDevice].
//
// Read first drains Frames in order. After that it reads from Source if set,
// and otherwise returns ReadErr, or blocks until the context is cancelled
// when ReadErr is nil.
type Capture struct {
	mu sync.Mutex

	// Frames are returned by successive Read calls before Source is consulted.
	Frames [][]byte

	// Source, when non-nil, supplies frames after Frames is exhausted.
	Source <-chan []byte

	// OpenErr is returned by Open.
	OpenErr error

	// ReadErr is returned once Frames is exhausted (or Source is closed).
	ReadErr error

	// CloseErr is returned by Close.
	CloseErr error

	// OpenCalls records the format passed to each Open call.
	OpenCalls []audio.Format

	// CallCountRead records how many times Read was called.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Open implements [audio.CaptureDevice].
func (c *Capture) Open(f audio.Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.OpenCalls = append(c.OpenCalls, f)
	return c.OpenErr
}

// Read implements [audio.CaptureDevice].
func (c *Capture) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	c.CallCountRead++
	if len(c.Frames) > 0 {
		f := c.Frames[0]
		c.Frames = c.Frames[1:]
		c.mu.Unlock()
		return f, nil
	}
	src, readErr := c.Source, c.ReadErr
	c.mu.Unlock()

	if src != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case f, ok := <-src:
			if ok {
				return f, nil
			}
			if readErr != nil {
				return nil, readErr
			}
			return nil, ErrSourceClosed
		}
	}
	if readErr != nil {
		return nil, readErr
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// Close implements [audio.CaptureDevice].
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	return c.CloseErr
}

// Opens returns how many times Open was called.
func (c *Capture) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.OpenCalls)
}

// Closes returns how many times Close was called.
func (c *Capture) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountClose
}

// ─── Playback ────────────────────────────────────────────────────────────────

// Playback is a mock implementation of [audio.PlaybackDevice].
type Playback struct {
	mu sync.Mutex

	// OpenErr is returned by Open.
	OpenErr error

	// WriteErr is returned by Write.
	WriteErr error

	// Block, when non-nil, makes Write wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// Started, when non-nil, receives one value at the start of each Write.
	Started chan struct{}

	// Written records the data passed to each Write call.
	Written [][]byte

	// CallCountOpen and CallCountClose record lifecycle calls.
	CallCountOpen  int
	CallCountClose int
}

// Open implements [audio.PlaybackDevice].
func (p *Playback) Open(audio.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountOpen++
	return p.OpenErr
}

// Write implements [audio.PlaybackDevice].
func (p *Playback) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	block, started := p.Block, p.Started
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-block:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Written = append(p.Written, data)
	return p.WriteErr
}

// Close implements [audio.PlaybackDevice].
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return nil
}

// Writes returns a copy of the recorded Write payloads.
func (p *Playback) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.Written...)
}
