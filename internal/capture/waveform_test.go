package capture_test

import (
	"testing"
	"time"

	"github.com/MrWong99/betterspeak/internal/capture"
	"github.com/MrWong99/betterspeak/internal/events"
	eventsmock "github.com/MrWong99/betterspeak/internal/events/mock"
	"github.com/MrWong99/betterspeak/pkg/audio"
)

func TestWaveformPublisher_DefaultWindow(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 16000, FramesPerBuffer: 1024}
	buf := audio.NewFrameBuffer(f)
	pub := &eventsmock.Publisher{}
	w := capture.NewWaveformPublisher(buf, 5*time.Second, 0, pub)

	if w.Frames() != 75 {
		t.Fatalf("frames = %d, want 75", w.Frames())
	}

	for range 80 {
		fr := make([]byte, f.FrameBytes())
		buf.Append(fr)
		w.Consume(fr)
	}
	got := pub.OfKind(events.KindWaveform)
	if len(got) != 80 {
		t.Fatalf("published %d waveforms, want 80", len(got))
	}
	last := got[len(got)-1].Data.(events.Waveform)
	if len(last.Intensity) != 75*1024 {
		t.Fatalf("intensity samples = %d, want %d", len(last.Intensity), 75*1024)
	}
	if last.Time[0] != 0 || last.Time[len(last.Time)-1] != 5 {
		t.Fatalf("time axis spans %v..%v, want 0..5", last.Time[0], last.Time[len(last.Time)-1])
	}
}

func TestWaveformPublisher_Throttles(t *testing.T) {
	t.Parallel()

	buf := audio.NewFrameBuffer(testFormat)
	pub := &eventsmock.Publisher{}
	w := capture.NewWaveformPublisher(buf, time.Second, time.Hour, pub)

	for range 5 {
		fr := frame(1)
		buf.Append(fr)
		w.Consume(fr)
	}
	if w.Published() != 1 {
		t.Fatalf("published = %d, want 1 within one interval", w.Published())
	}
}

func TestWaveformPublisher_SetWindow(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 16000, FramesPerBuffer: 1024}
	w := capture.NewWaveformPublisher(audio.NewFrameBuffer(f), 5*time.Second, 0, nil)
	w.SetWindow(2 * time.Second)
	if w.Frames() != 30 {
		t.Fatalf("frames = %d, want 30", w.Frames())
	}
}
