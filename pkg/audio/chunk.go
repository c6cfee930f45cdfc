package audio

import (
	"fmt"
	"time"
)

// Chunk slices samples into consecutive windows of exactly size samples.
//
// The result has ceil(len(samples)/size) chunks. Every chunk except the last
// is a verbatim copy of its input range; the last is zero-filled on the right
// up to size. An empty input yields no chunks. Chunk panics if size <= 0.
func Chunk(samples []float32, size int) [][]float32 {
	if size <= 0 {
		panic(fmt.Sprintf("audio: chunk size must be positive, got %d", size))
	}
	n := (len(samples) + size - 1) / size
	chunks := make([][]float32, n)
	for i := range n {
		c := make([]float32, size)
		copy(c, samples[i*size:min((i+1)*size, len(samples))])
		chunks[i] = c
	}
	return chunks
}

// Assembler turns a [Snapshot] into classifier-ready chunks.
//
// When the model expects a different sample rate than the capture device
// produces, the snapshot is resampled before chunking. An Assembler is
// stateless and safe for concurrent use.
type Assembler struct {
	modelRate     int
	chunkDuration time.Duration
}

// NewAssembler returns an Assembler producing chunks of chunkDuration at
// modelRate Hz.
func NewAssembler(modelRate int, chunkDuration time.Duration) (*Assembler, error) {
	if modelRate <= 0 {
		return nil, fmt.Errorf("audio: model sample rate must be positive, got %d", modelRate)
	}
	if chunkDuration <= 0 {
		return nil, fmt.Errorf("audio: chunk duration must be positive, got %s", chunkDuration)
	}
	if chunkSize(modelRate, chunkDuration) == 0 {
		return nil, fmt.Errorf("audio: chunk duration %s is shorter than one sample at %d Hz", chunkDuration, modelRate)
	}
	return &Assembler{modelRate: modelRate, chunkDuration: chunkDuration}, nil
}

// ChunkSize returns the number of samples per chunk.
func (a *Assembler) ChunkSize() int {
	return chunkSize(a.modelRate, a.chunkDuration)
}

// ModelRate returns the sample rate of the produced chunks.
func (a *Assembler) ModelRate() int { return a.modelRate }

// Assemble decodes, resamples if needed, and chunks snap.
func (a *Assembler) Assemble(snap Snapshot) ([][]float32, error) {
	samples := snap.Samples()
	if len(samples) == 0 {
		return nil, nil
	}
	if snap.Format.SampleRate != a.modelRate {
		var err error
		samples, err = Resample(samples, snap.Format.SampleRate, a.modelRate)
		if err != nil {
			return nil, err
		}
	}
	return Chunk(samples, a.ChunkSize()), nil
}

func chunkSize(rate int, d time.Duration) int {
	return int(int64(rate) * int64(d) / int64(time.Second))
}
