// Package pss computes the Percent Stuttered Syllables metric.
package pss

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroSyllables is returned when the syllable count is zero and the
	// percentage is undefined.
	ErrZeroSyllables = errors.New("pss: syllable count is zero")

	// ErrNegativeCount is returned for negative stutter or syllable counts.
	ErrNegativeCount = errors.New("pss: counts must not be negative")
)

// Calculate returns stutters / syllables × 100.
func Calculate(stutters, syllables int) (float64, error) {
	if stutters < 0 || syllables < 0 {
		return 0, fmt.Errorf("%w: stutters=%d syllables=%d", ErrNegativeCount, stutters, syllables)
	}
	if syllables == 0 {
		return 0, ErrZeroSyllables
	}
	return float64(stutters) / float64(syllables) * 100, nil
}
