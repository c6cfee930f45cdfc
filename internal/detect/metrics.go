package detect

import (
	"time"

	"github.com/MrWong99/betterspeak/pkg/classifier"
)

// SessionMetrics is the aggregate of one detection run. Each run produces a
// fresh value; nothing is carried over from earlier runs.
type SessionMetrics struct {
	RunID string `json:"run_id" msgpack:"run_id"`

	Interjection int `json:"interjection" msgpack:"interjection"`
	Prolongation int `json:"prolongation" msgpack:"prolongation"`
	Repetition   int `json:"repetition" msgpack:"repetition"`
	Total        int `json:"total" msgpack:"total"`

	Syllables int `json:"syllables" msgpack:"syllables"`

	// PSS is the percent of stuttered syllables. It is only set when
	// PSSValid is true, which requires a positive syllable count.
	PSS      float64 `json:"pss" msgpack:"pss"`
	PSSValid bool    `json:"pss_valid" msgpack:"pss_valid"`

	// Degraded is true when at least one classifier job failed and
	// contributed zero to Total.
	Degraded bool `json:"degraded" msgpack:"degraded"`

	// Errors maps the failed types to their error message.
	Errors map[classifier.Type]string `json:"errors,omitempty" msgpack:"errors,omitempty"`

	// Chunks is the number of chunks every classifier scored.
	Chunks int `json:"chunks" msgpack:"chunks"`

	// Audio is the play time of the snapshot that was classified.
	Audio time.Duration `json:"audio" msgpack:"audio"`

	// Duration is how long the run took.
	Duration time.Duration `json:"duration" msgpack:"duration"`

	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
}

// Count returns the count recorded for t.
func (m SessionMetrics) Count(t classifier.Type) int {
	switch t {
	case classifier.Interjection:
		return m.Interjection
	case classifier.Prolongation:
		return m.Prolongation
	case classifier.Repetition:
		return m.Repetition
	default:
		return 0
	}
}

func (m *SessionMetrics) setCount(t classifier.Type, n int) {
	switch t {
	case classifier.Interjection:
		m.Interjection = n
	case classifier.Prolongation:
		m.Prolongation = n
	case classifier.Repetition:
		m.Repetition = n
	}
}

// Outcome is the result of one classifier job.
type Outcome struct {
	Type     classifier.Type
	Count    int
	Err      error
	Duration time.Duration
}
