// Package sink holds the secondary consumers of a recording: playback to the
// output device and persistence as a WAV file.
//
// Each sink takes its own snapshot of the frame buffer when invoked and runs
// to completion independently of capture and detection. A sink serves one
// invocation at a time; an overlapping call fails fast with
// [ErrAlreadyInProgress] instead of contending for the device or file.
package sink

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/betterspeak/pkg/audio"
)

var (
	// ErrAlreadyInProgress is returned when a sink is invoked while its
	// previous invocation is still running.
	ErrAlreadyInProgress = errors.New("sink: already in progress")

	// ErrEmptyRecording is returned when there is nothing to play or save.
	ErrEmptyRecording = errors.New("sink: recording is empty")
)

// IOError reports a failed write of a saved recording. The partial file has
// been removed by the time it is returned.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("sink: write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Snapshotter yields an immutable copy of the recording. [audio.FrameBuffer]
// implements it.
type Snapshotter interface {
	Snapshot() audio.Snapshot
}

// guard is a non-blocking single-flight flag.
type guard struct {
	busy atomic.Bool
}

func (g *guard) acquire() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrAlreadyInProgress
	}
	return nil
}

func (g *guard) release() { g.busy.Store(false) }

func (g *guard) active() bool { return g.busy.Load() }
