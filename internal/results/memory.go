package results

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/betterspeak/internal/detect"
)

var _ Store = (*Memory)(nil)

// Memory is a [Store] that keeps results in process memory. History is lost
// on restart.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]detect.SessionMetrics
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]detect.SessionMetrics)}
}

// Save implements [Store].
func (s *Memory) Save(_ context.Context, m detect.SessionMetrics) error {
	if m.RunID == "" {
		return errEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[m.RunID] = cloneMetrics(m)
	return nil
}

// Get implements [Store].
func (s *Memory) Get(_ context.Context, id string) (detect.SessionMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.runs[id]
	if !ok {
		return detect.SessionMetrics{}, ErrNotFound
	}
	return cloneMetrics(m), nil
}

// List implements [Store].
func (s *Memory) List(_ context.Context, limit int) ([]detect.SessionMetrics, error) {
	s.mu.RLock()
	out := make([]detect.SessionMetrics, 0, len(s.runs))
	for _, m := range s.runs {
		out = append(out, cloneMetrics(m))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b detect.SessionMetrics) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RunID, b.RunID)
	})
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Close implements [Store]. It is a no-op.
func (s *Memory) Close() error { return nil }

func cloneMetrics(m detect.SessionMetrics) detect.SessionMetrics {
	m.Errors = maps.Clone(m.Errors)
	return m
}
