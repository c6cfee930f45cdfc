package sink

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/MrWong99/betterspeak/pkg/audio"
)

// WAVHeaderSize is the size of the canonical PCM WAV header.
const WAVHeaderSize = 44

// wavHeader is the canonical 44-byte RIFF header of a PCM WAV file.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// EncodeWAV writes samples to w as 16-bit PCM mono WAV at sampleRate.
// Samples are clamped to [-1, 1] and scaled by 32767. The data size is known
// up front, so w need not be seekable.
func EncodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sink: sample rate must be positive, got %d", sampleRate)
	}
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := uint32(len(samples) * 2)
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * channels * bitsPerSample / 8,
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	bw := bufio.NewWriterSize(w, 32*1024)
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("sink: write wav header: %w", err)
	}
	var pair [2]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint16(pair[:], uint16(audio.FloatToInt16(s)))
		if _, err := bw.Write(pair[:]); err != nil {
			return fmt.Errorf("sink: write wav data: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("sink: write wav data: %w", err)
	}
	return nil
}

// WAVInfo describes a decoded WAV file.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       []int16
}

// DecodeWAV reads a canonical 16-bit PCM mono WAV file written by
// [EncodeWAV].
func DecodeWAV(r io.Reader) (WAVInfo, error) {
	var h wavHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return WAVInfo{}, fmt.Errorf("sink: read wav header: %w", err)
	}
	switch {
	case string(h.ChunkID[:]) != "RIFF", string(h.Format[:]) != "WAVE":
		return WAVInfo{}, fmt.Errorf("sink: not a RIFF/WAVE file")
	case string(h.Subchunk1ID[:]) != "fmt " || string(h.Subchunk2ID[:]) != "data":
		return WAVInfo{}, fmt.Errorf("sink: unexpected wav chunk layout")
	case h.AudioFormat != 1 || h.BitsPerSample != 16:
		return WAVInfo{}, fmt.Errorf("sink: unsupported wav encoding (format %d, %d bits)", h.AudioFormat, h.BitsPerSample)
	}
	samples := make([]int16, h.Subchunk2Size/2)
	if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
		return WAVInfo{}, fmt.Errorf("sink: read wav data: %w", err)
	}
	return WAVInfo{
		SampleRate:    int(h.SampleRate),
		Channels:      int(h.NumChannels),
		BitsPerSample: int(h.BitsPerSample),
		Samples:       samples,
	}, nil
}
