package sink_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/MrWong99/betterspeak/internal/sink"
)

func TestEncodeWAV_Header(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := sink.EncodeWAV(&buf, make([]float32, 16000), 16000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := buf.Bytes()
	if len(data) != sink.WAVHeaderSize+32000 {
		t.Fatalf("size = %d, want %d", len(data), sink.WAVHeaderSize+32000)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"riff", string(data[0:4]), "RIFF"},
		{"chunk size", binary.LittleEndian.Uint32(data[4:8]), uint32(36 + 32000)},
		{"wave", string(data[8:12]), "WAVE"},
		{"fmt", string(data[12:16]), "fmt "},
		{"pcm", binary.LittleEndian.Uint16(data[20:22]), uint16(1)},
		{"channels", binary.LittleEndian.Uint16(data[22:24]), uint16(1)},
		{"sample rate", binary.LittleEndian.Uint32(data[24:28]), uint32(16000)},
		{"byte rate", binary.LittleEndian.Uint32(data[28:32]), uint32(32000)},
		{"block align", binary.LittleEndian.Uint16(data[32:34]), uint16(2)},
		{"bits", binary.LittleEndian.Uint16(data[34:36]), uint16(16)},
		{"data", string(data[36:40]), "data"},
		{"data size", binary.LittleEndian.Uint32(data[40:44]), uint32(32000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.want {
				t.Fatalf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestEncodeWAV_ScalesAndClamps(t *testing.T) {
	t.Parallel()

	in := []float32{0, 1, -1, 0.5, 2, -3}
	var buf bytes.Buffer
	if err := sink.EncodeWAV(&buf, in, 8000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, err := sink.DecodeWAV(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int16{0, 32767, -32767, 16383, 32767, -32767}
	if len(info.Samples) != len(want) {
		t.Fatalf("samples = %d, want %d", len(info.Samples), len(want))
	}
	for i := range want {
		if info.Samples[i] != want[i] {
			t.Fatalf("sample %d = %d, want %d", i, info.Samples[i], want[i])
		}
	}
	if info.SampleRate != 8000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("info = %+v", info)
	}
}

func TestEncodeWAV_RejectsBadRate(t *testing.T) {
	t.Parallel()

	if err := sink.EncodeWAV(&bytes.Buffer{}, nil, 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := sink.DecodeWAV(bytes.NewReader(make([]byte, 44))); err == nil {
		t.Fatal("expected error for a zeroed header")
	}
}
