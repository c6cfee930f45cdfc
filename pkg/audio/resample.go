package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from one rate to another using a
// high-quality polyphase resampler. Equal rates return the input unchanged.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from == to {
		return samples, nil
	}
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("audio: resample %d Hz -> %d Hz: invalid rate", from, to)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	out, err := resampling.ResampleMono(in, float64(from), float64(to), resampling.QualityHigh)
	if err != nil {
		return nil, fmt.Errorf("audio: resample %d Hz -> %d Hz: %w", from, to, err)
	}

	// The flushed filter tail can overshoot by a few samples; trim or pad to
	// the exact rate-converted length so chunk counts stay ceil(n/size).
	res := make([]float32, ResampledLen(len(samples), from, to))
	for i := range min(len(res), len(out)) {
		res[i] = float32(out[i])
	}
	return res, nil
}

// ResampledLen returns n samples at rate from converted to rate to, rounded
// to the nearest sample.
func ResampledLen(n, from, to int) int {
	return int((int64(n)*int64(to) + int64(from)/2) / int64(from))
}
