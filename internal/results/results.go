// Package results keeps the history of detection runs.
//
// Every completed run is saved as a [detect.SessionMetrics] keyed by its run
// ID. Three backends implement [Store]: an in-process [Memory] store, an
// embedded [Badger] store and a [Postgres] store for shared deployments.
package results

import (
	"context"
	"errors"

	"github.com/MrWong99/betterspeak/internal/detect"
)

// ErrNotFound is returned by [Store.Get] when no run has the requested ID.
var ErrNotFound = errors.New("results: run not found")

// DefaultListLimit is used by [Store.List] when limit is not positive.
const DefaultListLimit = 50

// Store persists detection results.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores m under m.RunID, replacing an earlier entry with the same
	// ID. An empty RunID is an error.
	Save(ctx context.Context, m detect.SessionMetrics) error

	// Get returns the run with the given ID or [ErrNotFound].
	Get(ctx context.Context, id string) (detect.SessionMetrics, error)

	// List returns up to limit runs, newest first by CreatedAt.
	List(ctx context.Context, limit int) ([]detect.SessionMetrics, error)

	// Close releases the backend.
	Close() error
}

// errEmptyID is returned by Save for a run without an ID.
var errEmptyID = errors.New("results: run id is empty")

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
