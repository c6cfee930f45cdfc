// Package mock provides a mock implementation of [results.Store] for use in
// unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/betterspeak/internal/detect"
	"github.com/MrWong99/betterspeak/internal/results"
)

var _ results.Store = (*Store)(nil)

// Store is a mock implementation of [results.Store]. It records every Save
// and serves Get and List from the saved runs.
type Store struct {
	mu sync.Mutex

	// SaveErr, GetErr and ListErr are returned by the respective methods
	// when non-nil.
	SaveErr error
	GetErr  error
	ListErr error

	// Saved records every successfully saved run in call order.
	Saved []detect.SessionMetrics

	// CallCountList records how many times List was called.
	CallCountList int

	// Closed is set by Close.
	Closed bool
}

// Save implements [results.Store].
func (s *Store) Save(_ context.Context, m detect.SessionMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.Saved = append(s.Saved, m)
	return nil
}

// Get implements [results.Store].
func (s *Store) Get(_ context.Context, id string) (detect.SessionMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return detect.SessionMetrics{}, s.GetErr
	}
	for i := len(s.Saved) - 1; i >= 0; i-- {
		if s.Saved[i].RunID == id {
			return s.Saved[i], nil
		}
	}
	return detect.SessionMetrics{}, results.ErrNotFound
}

// List implements [results.Store]. Runs are returned newest save first.
func (s *Store) List(_ context.Context, limit int) ([]detect.SessionMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountList++
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []detect.SessionMetrics
	for i := len(s.Saved) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.Saved[i])
	}
	return out, nil
}

// Close implements [results.Store].
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Runs returns a copy of the saved runs.
func (s *Store) Runs() []detect.SessionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]detect.SessionMetrics, len(s.Saved))
	copy(out, s.Saved)
	return out
}

// Lists returns how many times List was called.
func (s *Store) Lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountList
}
