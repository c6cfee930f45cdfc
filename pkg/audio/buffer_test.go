package audio_test

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/betterspeak/pkg/audio"
)

func TestFrameBuffer_AppendAndSnapshot(t *testing.T) {
	t.Parallel()

	buf := audio.NewFrameBuffer(audio.Format{SampleRate: 4, FramesPerBuffer: 2})
	buf.Append([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	buf.Append(nil)
	buf.Append([]byte{9, 10, 11, 12, 13, 14, 15, 16})

	snap := buf.Snapshot()
	if snap.Blocks != 2 {
		t.Fatalf("blocks: got %d, want 2", snap.Blocks)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if !bytes.Equal(snap.Data, want) {
		t.Fatalf("data: got %v, want %v", snap.Data, want)
	}
	if snap.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set after the first append")
	}
	if got := snap.Duration(); got != time.Second {
		t.Errorf("duration: got %s, want 1s", got)
	}
	if got := buf.Duration(); got != time.Second {
		t.Errorf("buffer duration: got %s, want 1s", got)
	}
}

func TestFrameBuffer_SnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	buf := audio.NewFrameBuffer(audio.Format{SampleRate: 16000, FramesPerBuffer: 1})
	buf.Append([]byte{1, 1, 1, 1})
	snap := buf.Snapshot()

	buf.Append([]byte{2, 2, 2, 2})
	snap.Data[0] = 99

	if len(snap.Data) != 4 {
		t.Fatalf("snapshot grew after append: %d bytes", len(snap.Data))
	}
	again := buf.Snapshot()
	if again.Data[0] != 1 {
		t.Fatal("mutating a snapshot changed the buffer")
	}
}

func TestFrameBuffer_Tail(t *testing.T) {
	t.Parallel()

	buf := audio.NewFrameBuffer(audio.Format{SampleRate: 16000, FramesPerBuffer: 1})
	for i := range 5 {
		buf.Append([]byte{byte(i), 0, 0, 0})
	}

	tail := buf.Tail(2)
	if !bytes.Equal(tail, []byte{3, 0, 0, 0, 4, 0, 0, 0}) {
		t.Fatalf("tail: got %v", tail)
	}
	if got := len(buf.Tail(100)); got != 20 {
		t.Errorf("oversized tail: got %d bytes, want 20", got)
	}
	if got := buf.Tail(0); got != nil {
		t.Errorf("zero tail: got %v, want nil", got)
	}
}

func TestFrameBuffer_Reset(t *testing.T) {
	t.Parallel()

	buf := audio.NewFrameBuffer(audio.Format{SampleRate: 16000, FramesPerBuffer: 1})
	buf.Append([]byte{1, 2, 3, 4})
	buf.Reset()
	if buf.Len() != 0 || buf.Blocks() != 0 {
		t.Fatalf("expected empty buffer after reset, got %d bytes in %d blocks", buf.Len(), buf.Blocks())
	}
	if !buf.Snapshot().StartedAt.IsZero() {
		t.Error("expected StartedAt cleared after reset")
	}
}

func TestFrameBuffer_ConcurrentReadersSeeWholeFrames(t *testing.T) {
	t.Parallel()

	const frameBytes = 16
	buf := audio.NewFrameBuffer(audio.Format{SampleRate: 16000, FramesPerBuffer: frameBytes / audio.BytesPerSample})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 500 {
			buf.Append(bytes.Repeat([]byte{byte(i)}, frameBytes))
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				snap := buf.Snapshot()
				if len(snap.Data)%frameBytes != 0 {
					t.Errorf("torn snapshot: %d bytes", len(snap.Data))
					return
				}
				if len(snap.Data) != snap.Blocks*frameBytes {
					t.Errorf("blocks %d disagree with %d bytes", snap.Blocks, len(snap.Data))
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := buf.Blocks(); got != 500 {
		t.Fatalf("blocks: got %d, want 500", got)
	}
}
