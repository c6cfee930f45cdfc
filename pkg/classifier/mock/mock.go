// Package mock provides in-memory implementations of [classifier.Model],
// [classifier.Backend], and [classifier.ModelSource] for use in unit tests.
//
// All mocks are safe for concurrent use and record their calls.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/betterspeak/pkg/classifier"
)

var (
	_ classifier.Model       = (*Model)(nil)
	_ classifier.Backend     = (*Backend)(nil)
	_ classifier.ModelSource = (*Source)(nil)
)

// ─── Model ───────────────────────────────────────────────────────────────────

// Model is a mock implementation of [classifier.Model].
//
// Score returns ScoreErr if set. Otherwise it calls ScoreFunc when set, and
// falls back to returning Logit for every chunk.
type Model struct {
	mu sync.Mutex

	// Logit is returned for every chunk when ScoreFunc is nil.
	Logit float64

	// ScoreFunc, when non-nil, computes the logits.
	ScoreFunc func(ctx context.Context, chunks [][]float32) ([]float64, error)

	// ScoreErr is returned by Score when non-nil.
	ScoreErr error

	// CloseErr is returned by Close.
	CloseErr error

	// ScoreCalls records the number of chunks passed to each Score call.
	ScoreCalls []int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Score implements [classifier.Model].
func (m *Model) Score(ctx context.Context, chunks [][]float32) ([]float64, error) {
	m.mu.Lock()
	m.ScoreCalls = append(m.ScoreCalls, len(chunks))
	fn, logit, err := m.ScoreFunc, m.Logit, m.ScoreErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, chunks)
	}
	out := make([]float64, len(chunks))
	for i := range out {
		out[i] = logit
	}
	return out, nil
}

// Close implements [classifier.Model].
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountClose++
	return m.CloseErr
}

// Calls returns how many times Score was called.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ScoreCalls)
}

// ─── Backend ─────────────────────────────────────────────────────────────────

// Backend is a mock implementation of [classifier.Backend]. It resolves
// resources through Models.
type Backend struct {
	mu sync.Mutex

	// BackendName is returned by Name. Defaults to "mock".
	BackendName string

	// Models maps resource identifiers to the model returned for them.
	Models map[string]classifier.Model

	// LoadErr, when non-nil, is returned by every Load call.
	LoadErr error

	// LoadCalls records the resource passed to each Load call.
	LoadCalls []string
}

// Name implements [classifier.Backend].
func (b *Backend) Name() string {
	if b.BackendName == "" {
		return "mock"
	}
	return b.BackendName
}

// Load implements [classifier.Backend]. Unknown resources yield
// [ErrNotFound].
func (b *Backend) Load(_ context.Context, resource string) (classifier.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.LoadCalls = append(b.LoadCalls, resource)
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	m, ok := b.Models[resource]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

// Loads returns how many times Load was called.
func (b *Backend) Loads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.LoadCalls)
}

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock implementation of [classifier.ModelSource].
type Source struct {
	mu sync.Mutex

	// Models maps each type to the model returned for it.
	Models map[classifier.Type]classifier.Model

	// Errs maps a type to the error Model returns for it.
	Errs map[classifier.Type]error

	// Calls records each requested type.
	Calls []classifier.Type
}

// Model implements [classifier.ModelSource].
func (s *Source) Model(_ context.Context, t classifier.Type) (classifier.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, t)
	if err := s.Errs[t]; err != nil {
		return nil, err
	}
	m, ok := s.Models[t]
	if !ok {
		return nil, &classifier.ModelLoadError{Type: t, Err: ErrNotFound}
	}
	return m, nil
}
