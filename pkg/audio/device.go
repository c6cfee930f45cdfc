// Package audio defines the raw PCM plumbing of BetterSpeak: the device
// interfaces used for capture and playback, the single-writer [FrameBuffer]
// that holds one recording, and the pure helpers that turn a buffer snapshot
// into classifier chunks and waveform windows.
//
// Device implementations live in sub-packages (audio/portaudio,
// audio/silence) so that this package stays free of cgo.
package audio

import "context"

// CaptureDevice is an input stream that yields fixed-size raw PCM frames.
//
// A CaptureDevice must be reopenable: after [CaptureDevice.Close] the caller
// may call [CaptureDevice.Open] again without restarting the process.
// Implementations need not be safe for concurrent Read calls; the capture
// loop is the only reader.
type CaptureDevice interface {
	// Open prepares the device for reading frames in format f.
	Open(f Format) error

	// Read blocks until the next frame is available and returns exactly
	// f.FrameBytes() bytes. The returned slice is owned by the caller.
	Read(ctx context.Context) ([]byte, error)

	// Close releases the device. Calling Close on a closed device is a no-op.
	Close() error
}

// PlaybackDevice is an output stream that accepts raw PCM in one bulk write.
type PlaybackDevice interface {
	// Open prepares the device for writing samples in format f.
	Open(f Format) error

	// Write plays data to completion. It blocks until the device has
	// consumed the whole buffer or ctx is cancelled.
	Write(ctx context.Context, data []byte) error

	// Close releases the device.
	Close() error
}
