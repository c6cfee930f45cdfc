package audio

import (
	"sync"
	"time"
)

// FrameBuffer is the append-only log of raw frames for one recording.
//
// It has a single writer (the capture loop) and any number of readers.
// Blocks are immutable once appended, so readers only copy the block index
// under the lock and join the bytes afterwards; the writer is never held up
// for longer than that index copy.
type FrameBuffer struct {
	format Format

	mu        sync.Mutex
	blocks    [][]byte
	size      int
	startedAt time.Time
}

// NewFrameBuffer returns an empty buffer for frames in format f.
func NewFrameBuffer(f Format) *FrameBuffer {
	return &FrameBuffer{format: f}
}

// Format returns the PCM format of the buffered frames.
func (b *FrameBuffer) Format() Format { return b.format }

// Append adds one frame to the end of the log. The buffer takes ownership of
// frame; the caller must not modify it afterwards. Empty frames are dropped.
func (b *FrameBuffer) Append(frame []byte) {
	if len(frame) == 0 {
		return
	}
	b.mu.Lock()
	if len(b.blocks) == 0 {
		b.startedAt = time.Now()
	}
	b.blocks = append(b.blocks, frame)
	b.size += len(frame)
	b.mu.Unlock()
}

// Len returns the number of buffered bytes.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Blocks returns the number of appended frames.
func (b *FrameBuffer) Blocks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blocks)
}

// Duration returns the total play time of the buffered frames.
func (b *FrameBuffer) Duration() time.Duration {
	return b.format.Duration(b.Len())
}

// Snapshot returns an immutable copy of everything captured so far.
func (b *FrameBuffer) Snapshot() Snapshot {
	b.mu.Lock()
	blocks := b.blocks[:len(b.blocks):len(b.blocks)]
	size := b.size
	started := b.startedAt
	b.mu.Unlock()

	return Snapshot{
		Data:      join(blocks, size),
		Blocks:    len(blocks),
		Format:    b.format,
		StartedAt: started,
	}
}

// Tail returns a copy of the last n frames joined in capture order.
func (b *FrameBuffer) Tail(n int) []byte {
	if n <= 0 {
		return nil
	}
	b.mu.Lock()
	start := max(len(b.blocks)-n, 0)
	blocks := b.blocks[start:len(b.blocks):len(b.blocks)]
	b.mu.Unlock()

	size := 0
	for _, blk := range blocks {
		size += len(blk)
	}
	return join(blocks, size)
}

// Reset discards all frames. The caller must ensure no capture is running.
func (b *FrameBuffer) Reset() {
	b.mu.Lock()
	b.blocks = nil
	b.size = 0
	b.startedAt = time.Time{}
	b.mu.Unlock()
}

func join(blocks [][]byte, size int) []byte {
	out := make([]byte, 0, size)
	for _, blk := range blocks {
		out = append(out, blk...)
	}
	return out
}

// Snapshot is a point-in-time copy of a [FrameBuffer]. It shares no memory
// with the buffer and may be handed to any number of concurrent readers.
type Snapshot struct {
	// Data holds the raw float32 little-endian bytes in capture order.
	Data []byte

	// Blocks is the number of frames the snapshot covers.
	Blocks int

	// Format is the PCM format of Data.
	Format Format

	// StartedAt is when the first frame of the recording was appended.
	// Zero for an empty recording.
	StartedAt time.Time
}

// Samples decodes Data into float samples.
func (s Snapshot) Samples() []float32 { return DecodeFloat32(s.Data) }

// Duration returns the play time of the snapshot.
func (s Snapshot) Duration() time.Duration { return s.Format.Duration(len(s.Data)) }

// Empty reports whether the snapshot holds no audio.
func (s Snapshot) Empty() bool { return len(s.Data) == 0 }
