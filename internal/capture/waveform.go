package capture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/betterspeak/internal/events"
	"github.com/MrWong99/betterspeak/pkg/audio"
)

// WaveformPublisher turns captured frames into live waveform events.
//
// It renders the trailing window of the buffer at most once per interval so
// that the capture goroutine spends a bounded amount of time per frame.
// The window length can be changed while capture is running.
type WaveformPublisher struct {
	buf      *audio.FrameBuffer
	pub      events.Publisher
	interval time.Duration

	mu     sync.Mutex
	window *audio.WaveformWindow
	last   time.Time

	published atomic.Int64
}

// NewWaveformPublisher returns a publisher rendering window seconds of buf.
// An interval of zero renders on every frame.
func NewWaveformPublisher(buf *audio.FrameBuffer, window time.Duration, interval time.Duration, pub events.Publisher) *WaveformPublisher {
	if pub == nil {
		pub = events.Discard
	}
	return &WaveformPublisher{
		buf:      buf,
		pub:      pub,
		interval: interval,
		window:   audio.NewWaveformWindow(buf.Format(), window),
	}
}

// SetWindow changes the displayed window length.
func (w *WaveformPublisher) SetWindow(d time.Duration) {
	win := audio.NewWaveformWindow(w.buf.Format(), d)
	w.mu.Lock()
	w.window = win
	w.mu.Unlock()
}

// Frames returns how many device frames the current window covers.
func (w *WaveformPublisher) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.window.Frames()
}

// Published returns the number of waveform events emitted so far.
func (w *WaveformPublisher) Published() int64 { return w.published.Load() }

// Consume is a [FrameConsumer].
func (w *WaveformPublisher) Consume(_ []byte) {
	now := time.Now()
	w.mu.Lock()
	if w.interval > 0 && !w.last.IsZero() && now.Sub(w.last) < w.interval {
		w.mu.Unlock()
		return
	}
	w.last = now
	win := w.window
	w.mu.Unlock()

	w.pub.Publish(events.KindWaveform, win.Render(w.buf))
	w.published.Add(1)
}
