// Package mock provides an in-memory implementation of [storage.FileStore]
// for use in unit tests.
//
// The store is safe for concurrent use and records deletions. Failures can
// be injected at open time (WriteErr) or after a number of bytes have been
// written (FailAfter).
package mock

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/MrWong99/betterspeak/internal/storage"
)

var _ storage.FileStore = (*Store)(nil)

// ErrInjected is the error returned by writes that hit FailAfter.
var ErrInjected = errors.New("mock: injected write failure")

// Store is a mock implementation of [storage.FileStore].
type Store struct {
	mu sync.Mutex

	// Files holds committed files by path.
	Files map[string][]byte

	// WriteErr is returned by Write when non-nil.
	WriteErr error

	// FailAfter, when positive, makes a writer fail with [ErrInjected] once
	// that many bytes have been written. Partial data is visible in Files
	// until the caller deletes it.
	FailAfter int

	// Deleted records every Delete call.
	Deleted []string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{Files: make(map[string][]byte)}
}

// Read implements [storage.FileStore].
func (s *Store) Read(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Write implements [storage.FileStore]. Data is visible in Files as it is
// written.
func (s *Store) Write(_ context.Context, path string) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return nil, s.WriteErr
	}
	if s.Files == nil {
		s.Files = make(map[string][]byte)
	}
	s.Files[path] = nil
	return &writer{store: s, path: path, failAfter: s.FailAfter}, nil
}

// Delete implements [storage.FileStore].
func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deleted = append(s.Deleted, path)
	delete(s.Files, path)
	return nil
}

// Exists implements [storage.FileStore].
func (s *Store) Exists(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Files[path]
	return ok, nil
}

// Location implements [storage.FileStore].
func (s *Store) Location(path string) string { return "mem://" + path }

// File returns a copy of the named file and whether it exists.
func (s *Store) File(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Files[path]
	return bytes.Clone(data), ok
}

// Deletes returns a copy of the recorded Delete paths.
func (s *Store) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Deleted))
	copy(out, s.Deleted)
	return out
}

type writer struct {
	store     *Store
	path      string
	failAfter int
	written   int
}

func (w *writer) Write(p []byte) (int, error) {
	n := len(p)
	var err error
	if w.failAfter > 0 && w.written+n > w.failAfter {
		n = w.failAfter - w.written
		err = ErrInjected
	}
	w.store.mu.Lock()
	w.store.Files[w.path] = append(w.store.Files[w.path], p[:n]...)
	w.store.mu.Unlock()
	w.written += n
	return n, err
}

func (w *writer) Close() error { return nil }
