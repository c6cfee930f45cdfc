// Package events carries BetterSpeak's presentation-boundary messages.
//
// Producers (capture, detection, sinks) publish typed [Event] values on a
// [Bus]; consumers such as the WebSocket stream or the terminal reporter
// subscribe to the kinds they care about. Publishing never blocks: a
// subscriber that falls behind loses events rather than stalling the audio
// or inference paths.
package events

import (
	"time"

	"github.com/MrWong99/betterspeak/pkg/audio"
	"github.com/MrWong99/betterspeak/pkg/classifier"
)

// Kind classifies an event.
type Kind string

const (
	// KindWaveform carries a [Waveform] for live display.
	KindWaveform Kind = "waveform"

	// KindClassifierCount carries one [ClassifierCount] per classifier per
	// detection run.
	KindClassifierCount Kind = "classifier_count"

	// KindTotalCount carries the [TotalCount] once per detection run, after
	// every KindClassifierCount of that run.
	KindTotalCount Kind = "total_count"

	// KindSyllableCount carries a [SyllableCount] when the reference text
	// has been counted.
	KindSyllableCount Kind = "syllable_count"

	// KindCaptureStatus carries a [CaptureStatus] on every capture state
	// change.
	KindCaptureStatus Kind = "capture_status"

	// KindSinkDone carries a [SinkDone] when playback or persistence ends.
	KindSinkDone Kind = "sink_done"
)

// Lossy reports whether a slow subscriber may miss events of this kind.
// Waveform frames are superseded by the next one; every other kind is a
// state change the subscriber must see.
func (k Kind) Lossy() bool { return k == KindWaveform }

// Event is one message on the bus.
type Event struct {
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Waveform is the payload of [KindWaveform].
type Waveform = audio.Waveform

// ClassifierCount is the payload of [KindClassifierCount].
type ClassifierCount struct {
	RunID string          `json:"run_id"`
	Type  classifier.Type `json:"type"`
	Count int             `json:"count"`
	// Error is set when the job failed and Count was forced to zero.
	Error string `json:"error,omitempty"`
}

// TotalCount is the payload of [KindTotalCount].
type TotalCount struct {
	RunID     string `json:"run_id"`
	Total     int    `json:"total"`
	Syllables int    `json:"syllables"`
	// PSS is only meaningful when PSSValid is true; a zero syllable count
	// leaves it unset.
	PSS      float64 `json:"pss"`
	PSSValid bool    `json:"pss_valid"`
	Degraded bool    `json:"degraded"`
}

// SyllableCount is the payload of [KindSyllableCount].
type SyllableCount struct {
	Count int `json:"count"`
}

// CaptureStatus is the payload of [KindCaptureStatus].
type CaptureStatus struct {
	State    string        `json:"state"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// SinkDone is the payload of [KindSinkDone].
type SinkDone struct {
	Sink  string `json:"sink"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}
