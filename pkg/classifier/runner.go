package classifier

import (
	"context"
	"fmt"
	"math"
)

// Runner classifies chunks with the model of one disfluency type.
// A Runner holds no per-call state and is safe for concurrent use.
type Runner struct {
	typ    Type
	source ModelSource
}

// NewRunner returns a Runner for t backed by source.
func NewRunner(t Type, source ModelSource) *Runner {
	return &Runner{typ: t, source: source}
}

// Type returns the disfluency type this runner detects.
func (r *Runner) Type() Type { return r.typ }

// Classify returns one [Result] per chunk, in input order. An empty input
// yields an empty result without touching the model. Model load failures
// are returned as *[ModelLoadError].
func (r *Runner) Classify(ctx context.Context, chunks [][]float32) ([]Result, error) {
	if len(chunks) == 0 {
		return []Result{}, nil
	}

	m, err := r.source.Model(ctx, r.typ)
	if err != nil {
		return nil, err
	}

	logits, err := m.Score(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("classifier: score %s: %w", r.typ, err)
	}
	if len(logits) != len(chunks) {
		return nil, fmt.Errorf("%w: %s model returned %d logits for %d chunks", ErrMalformedOutput, r.typ, len(logits), len(chunks))
	}

	results := make([]Result, len(logits))
	for i, x := range logits {
		if math.IsNaN(x) {
			return nil, fmt.Errorf("%w: %s model returned NaN for chunk %d", ErrMalformedOutput, r.typ, i)
		}
		results[i] = Decide(Sigmoid(x))
	}
	return results, nil
}
