package linear

import (
	"math"
	"slices"
)

// FeatureNames lists the features a weights file may reference.
var FeatureNames = []string{"rms", "peak", "zcr", "energy_var"}

func isFeature(name string) bool { return slices.Contains(FeatureNames, name) }

// Features summarises one chunk. Silence yields all zeros.
type Features struct {
	// RMS is the root-mean-square amplitude.
	RMS float64
	// Peak is the largest absolute sample.
	Peak float64
	// ZCR is the fraction of adjacent sample pairs that change sign.
	ZCR float64
	// EnergyVar is the variance of per-frame RMS; sustained sounds score low
	// and stop-start speech scores high.
	EnergyVar float64
}

// Value returns the feature with the given name, or 0 for unknown names.
func (f Features) Value(name string) float64 {
	switch name {
	case "rms":
		return f.RMS
	case "peak":
		return f.Peak
	case "zcr":
		return f.ZCR
	case "energy_var":
		return f.EnergyVar
	}
	return 0
}

// Extract computes the features of chunk using analysis frames of frame
// samples for EnergyVar.
func Extract(chunk []float32, frame int) Features {
	if len(chunk) == 0 {
		return Features{}
	}
	var f Features
	var sumSq float64
	crossings := 0
	for i, s := range chunk {
		v := float64(s)
		sumSq += v * v
		f.Peak = max(f.Peak, math.Abs(v))
		if i > 0 && (chunk[i-1] < 0) != (s < 0) {
			crossings++
		}
	}
	f.RMS = math.Sqrt(sumSq / float64(len(chunk)))
	if len(chunk) > 1 {
		f.ZCR = float64(crossings) / float64(len(chunk)-1)
	}

	if frame <= 0 || frame >= len(chunk) {
		return f
	}
	var energies []float64
	for off := 0; off+frame <= len(chunk); off += frame {
		var e float64
		for _, s := range chunk[off : off+frame] {
			e += float64(s) * float64(s)
		}
		energies = append(energies, math.Sqrt(e/float64(frame)))
	}
	var mean float64
	for _, e := range energies {
		mean += e
	}
	mean /= float64(len(energies))
	for _, e := range energies {
		f.EnergyVar += (e - mean) * (e - mean)
	}
	f.EnergyVar /= float64(len(energies))
	return f
}
