package audio

import (
	"errors"
	"fmt"
	"time"
)

// BytesPerSample is the width of one 32-bit float PCM sample.
const BytesPerSample = 4

// Format describes a raw PCM stream. Capture and playback devices in this
// package always carry mono 32-bit little-endian float samples.
type Format struct {
	// SampleRate in Hz (e.g., 16000 for the classifier models).
	SampleRate int

	// FramesPerBuffer is the number of samples delivered per device read.
	FramesPerBuffer int
}

// FrameBytes returns the size in bytes of one device frame.
func (f Format) FrameBytes() int {
	return f.FramesPerBuffer * BytesPerSample
}

// FrameDuration returns the wall-clock length of one device frame.
func (f Format) FrameDuration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.FramesPerBuffer) * time.Second / time.Duration(f.SampleRate)
}

// Duration returns the play time of n raw bytes in this format.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	samples := n / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// ErrDevice is matched by every [DeviceError] via errors.Is.
var ErrDevice = errors.New("audio: device error")

// DeviceError reports an open, read, or write failure on audio hardware.
type DeviceError struct {
	// Op is the failed operation ("open", "read", "write", "close").
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is reports ErrDevice as a match so callers need not type-assert.
func (e *DeviceError) Is(target error) bool { return target == ErrDevice }
