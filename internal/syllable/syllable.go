// Package syllable estimates the number of syllables in the reference text a
// speaker reads aloud. The count is the denominator of the PSS metric.
package syllable

import (
	"strings"
	"unicode"
)

// Counter counts syllables in free text.
type Counter interface {
	Count(text string) int
}

// Heuristic counts syllables of English text by vowel groups with a few
// corrections for silent endings. It needs no dictionary and is accurate to
// about one syllable in ten for common prose.
type Heuristic struct{}

var _ Counter = Heuristic{}

// Count implements [Counter]. Every word containing a letter counts at least
// one syllable; digits and punctuation count nothing.
func (Heuristic) Count(text string) int {
	n := 0
	for _, w := range Words(text) {
		n += CountWord(w)
	}
	return n
}

// Words splits text into lower-cased words of letters. Apostrophes inside a
// word are dropped so "it's" is one word.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.ReplaceAll(f, "'", "")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// CountWord returns the syllable estimate of one lower-case word.
func CountWord(w string) int {
	r := []rune(w)
	if len(r) == 0 {
		return 0
	}

	groups := 0
	prevVowel := false
	for _, c := range r {
		v := isVowel(c)
		if v && !prevVowel {
			groups++
		}
		prevVowel = v
	}
	if groups == 0 {
		return 1
	}

	if groups > 1 && silentEnding(r) {
		groups--
	}
	return groups
}

// silentEnding reports a final "e", "es" or "ed" that does not add a
// syllable: "make", "makes", "jumped" but not "table", "apples", "boxes".
func silentEnding(r []rune) bool {
	n := len(r)
	switch {
	case n >= 3 && r[n-1] == 'e' && r[n-2] == 'l' && !isVowel(r[n-3]):
		return false
	case n >= 4 && r[n-3] == 'l' && r[n-2] == 'e' && r[n-1] == 's' && !isVowel(r[n-4]):
		return false
	case n >= 2 && r[n-1] == 'e':
		return !isVowel(r[n-2])
	case n >= 3 && r[n-2] == 'e' && r[n-1] == 's':
		c := r[n-3]
		return !isVowel(c) && !strings.ContainsRune("sxzcgh", c)
	case n >= 3 && r[n-2] == 'e' && r[n-1] == 'd':
		c := r[n-3]
		return !isVowel(c) && c != 't' && c != 'd'
	}
	return false
}

func isVowel(c rune) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}
