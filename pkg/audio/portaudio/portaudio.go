// Package portaudio implements [audio.CaptureDevice] and
// [audio.PlaybackDevice] on top of the system default PortAudio streams.
//
// PortAudio reference-counts Initialize/Terminate, so each device initialises
// the library on Open and terminates it on Close. Devices can therefore be
// opened and closed repeatedly within one process.
package portaudio

import (
	"context"
	"errors"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/betterspeak/pkg/audio"
)

var (
	_ audio.CaptureDevice  = (*Capture)(nil)
	_ audio.PlaybackDevice = (*Playback)(nil)
)

var errNotOpen = errors.New("portaudio: stream not open")

// ─── Capture ─────────────────────────────────────────────────────────────────

// Capture reads mono float32 frames from the default input device.
type Capture struct {
	mu     sync.Mutex
	stream *pa.Stream
	buf    []float32
}

// NewCapture returns an unopened capture device.
func NewCapture() *Capture { return &Capture{} }

// Open implements [audio.CaptureDevice].
func (c *Capture) Open(f audio.Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}
	if err := pa.Initialize(); err != nil {
		return &audio.DeviceError{Op: "open", Err: err}
	}
	buf := make([]float32, f.FramesPerBuffer)
	stream, err := pa.OpenDefaultStream(1, 0, float64(f.SampleRate), len(buf), buf)
	if err != nil {
		_ = pa.Terminate()
		return &audio.DeviceError{Op: "open", Err: err}
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return &audio.DeviceError{Op: "open", Err: err}
	}
	c.stream = stream
	c.buf = buf
	return nil
}

// Read implements [audio.CaptureDevice]. It blocks on the hardware buffer.
func (c *Capture) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil, &audio.DeviceError{Op: "read", Err: errNotOpen}
	}
	if err := c.stream.Read(); err != nil {
		return nil, &audio.DeviceError{Op: "read", Err: err}
	}
	return audio.EncodeFloat32(c.buf), nil
}

// Close implements [audio.CaptureDevice].
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	err := errors.Join(c.stream.Stop(), c.stream.Close(), pa.Terminate())
	c.stream = nil
	c.buf = nil
	if err != nil {
		return &audio.DeviceError{Op: "close", Err: err}
	}
	return nil
}

// ─── Playback ────────────────────────────────────────────────────────────────

// Playback writes mono float32 audio to the default output device.
type Playback struct {
	mu     sync.Mutex
	stream *pa.Stream
	buf    []float32
}

// NewPlayback returns an unopened playback device.
func NewPlayback() *Playback { return &Playback{} }

// Open implements [audio.PlaybackDevice].
func (p *Playback) Open(f audio.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return nil
	}
	if err := pa.Initialize(); err != nil {
		return &audio.DeviceError{Op: "open", Err: err}
	}
	buf := make([]float32, f.FramesPerBuffer)
	stream, err := pa.OpenDefaultStream(0, 1, float64(f.SampleRate), len(buf), buf)
	if err != nil {
		_ = pa.Terminate()
		return &audio.DeviceError{Op: "open", Err: err}
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return &audio.DeviceError{Op: "open", Err: err}
	}
	p.stream = stream
	p.buf = buf
	return nil
}

// Write implements [audio.PlaybackDevice]. The final partial buffer is
// padded with silence.
func (p *Playback) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return &audio.DeviceError{Op: "write", Err: errNotOpen}
	}
	samples := audio.DecodeFloat32(data)
	for off := 0; off < len(samples); off += len(p.buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(p.buf, samples[off:])
		clear(p.buf[n:])
		if err := p.stream.Write(); err != nil {
			return &audio.DeviceError{Op: "write", Err: err}
		}
	}
	return nil
}

// Close implements [audio.PlaybackDevice].
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	err := errors.Join(p.stream.Stop(), p.stream.Close(), pa.Terminate())
	p.stream = nil
	p.buf = nil
	if err != nil {
		return &audio.DeviceError{Op: "close", Err: err}
	}
	return nil
}
