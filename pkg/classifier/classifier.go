// Package classifier defines how BetterSpeak scores audio chunks for speech
// disfluencies.
//
// Each disfluency [Type] is detected by its own pretrained binary model. A
// [Model] maps a batch of fixed-length chunks to one logit per chunk; a
// [Runner] squashes those logits into per-chunk [Result] values. Models are
// expensive to load, so a [Loader] opens each one lazily on first use and
// keeps it for the lifetime of the process.
//
// Backends live in sub-packages (classifier/onnx, classifier/linear) and are
// plugged in through [Backend].
package classifier

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// Type names a disfluency class with its own classifier.
type Type string

const (
	Interjection Type = "interjection"
	Prolongation Type = "prolongation"
	Repetition   Type = "repetition"
)

// Types lists every disfluency type in reporting order.
var Types = []Type{Interjection, Prolongation, Repetition}

// IsValid reports whether t is a recognised disfluency type.
func (t Type) IsValid() bool {
	switch t {
	case Interjection, Prolongation, Repetition:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// Result is the classification of a single chunk.
type Result struct {
	// Prediction is 1 when the disfluency is present, else 0.
	Prediction int `json:"prediction"`

	// Confidence is the probability of the predicted class: Probability when
	// Prediction is 1, 1-Probability otherwise. Always in [0.5, 1].
	Confidence float64 `json:"confidence"`

	// Probability is the model's raw positive-class probability.
	Probability float64 `json:"probability"`
}

// Count returns the number of positive predictions in results.
func Count(results []Result) int {
	n := 0
	for _, r := range results {
		n += r.Prediction
	}
	return n
}

// Model scores chunks. Implementations must be safe for concurrent use
// because a loaded model is shared by every run of its type.
type Model interface {
	// Score returns exactly one logit per chunk, in input order.
	Score(ctx context.Context, chunks [][]float32) ([]float64, error)

	// Close releases the model's resources.
	Close() error
}

// Backend opens models from resource identifiers.
type Backend interface {
	// Name identifies the backend in logs and configuration (e.g., "onnx").
	Name() string

	// Load opens the model stored at resource.
	Load(ctx context.Context, resource string) (Model, error)
}

// ResourceMap maps every disfluency type to the resource its weights are
// loaded from. The resource format is backend-specific (usually a path).
type ResourceMap map[Type]string

// Validate checks that every known type has a non-empty resource and that no
// unknown type is present.
func (m ResourceMap) Validate() error {
	var errs []error
	for _, t := range Types {
		if m[t] == "" {
			errs = append(errs, fmt.Errorf("classifier: no resource configured for %q", t))
		}
	}
	for t := range m {
		if !t.IsValid() {
			errs = append(errs, fmt.Errorf("classifier: unknown type %q", t))
		}
	}
	return errors.Join(errs...)
}

// ─── Errors ──────────────────────────────────────────────────────────────────

var (
	// ErrModelLoad is matched by every [ModelLoadError] via errors.Is.
	ErrModelLoad = errors.New("classifier: model load failed")

	// ErrMalformedOutput is returned when a model produces the wrong number
	// of logits or a NaN logit.
	ErrMalformedOutput = errors.New("classifier: malformed model output")
)

// ModelLoadError reports that the weights for a classifier type are missing
// or unreadable.
type ModelLoadError struct {
	Type     Type
	Resource string
	Err      error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("classifier: load %s model from %q: %v", e.Type, e.Resource, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Is reports ErrModelLoad as a match.
func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }

// ResolveResource joins a relative resource onto dir. Absolute resources and
// an empty dir leave resource unchanged.
func ResolveResource(dir, resource string) string {
	if dir == "" || resource == "" || filepath.IsAbs(resource) {
		return resource
	}
	return filepath.Join(dir, resource)
}
