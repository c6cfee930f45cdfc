package audio

import (
	"encoding/binary"
	"math"
)

// DecodeFloat32 interprets b as little-endian float32 samples. A trailing
// partial sample is ignored.
func DecodeFloat32(b []byte) []float32 {
	n := len(b) / BytesPerSample
	out := make([]float32, n)
	for i := range n {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*BytesPerSample:]))
	}
	return out
}

// EncodeFloat32 is the inverse of [DecodeFloat32].
func EncodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*BytesPerSample:], math.Float32bits(s))
	}
	return out
}

// FloatToInt16 scales a sample in [-1, 1] to the int16 range by 32767.
// Out-of-range input is clamped; NaN maps to silence.
func FloatToInt16(s float32) int16 {
	switch {
	case s != s:
		return 0
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	return int16(s * math.MaxInt16)
}
