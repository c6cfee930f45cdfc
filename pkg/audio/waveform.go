package audio

import "time"

// Waveform is a display window over the most recent audio. Time and
// Intensity are co-indexed; Time runs linearly from 0 to the window length
// in seconds regardless of how much audio the window actually covers.
type Waveform struct {
	Time      []float64 `json:"time"`
	Intensity []float32 `json:"intensity"`
}

// WaveformWindow renders the trailing part of a [FrameBuffer] for live
// display.
type WaveformWindow struct {
	window time.Duration
	frames int
}

// NewWaveformWindow returns a window spanning roughly d of audio in format f.
// The window is rounded down to whole device frames, with a minimum of one.
func NewWaveformWindow(f Format, d time.Duration) *WaveformWindow {
	frames := 1
	if fd := f.FrameDuration(); fd > 0 {
		framesPerSecond := f.SampleRate / max(f.FramesPerBuffer, 1)
		frames = max(int(float64(framesPerSecond)*d.Seconds()), 1)
	}
	return &WaveformWindow{window: d, frames: frames}
}

// Frames returns how many trailing device frames the window covers.
func (w *WaveformWindow) Frames() int { return w.frames }

// Render builds the waveform of the last frames in buf.
func (w *WaveformWindow) Render(buf *FrameBuffer) Waveform {
	return w.render(DecodeFloat32(buf.Tail(w.frames)))
}

func (w *WaveformWindow) render(intensity []float32) Waveform {
	n := len(intensity)
	axis := make([]float64, n)
	span := w.window.Seconds()
	switch {
	case n == 1:
		axis[0] = 0
	case n > 1:
		last := float64(n - 1)
		for i := range axis {
			axis[i] = span * (float64(i) / last)
		}
	}
	return Waveform{Time: axis, Intensity: intensity}
}
