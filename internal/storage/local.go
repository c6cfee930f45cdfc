package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var _ FileStore = (*Local)(nil)

// Local implements FileStore on top of the local filesystem.
// All paths are resolved relative to the configured root directory.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir. The directory itself is
// created lazily on the first Write, so a read-only deployment that never
// saves does not need a writable root.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute root directory.
func (l *Local) Root() string { return l.root }

func (l *Local) resolve(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

// Location implements [FileStore].
func (l *Local) Location(path string) string { return l.resolve(path) }

// Read opens the named file for reading.
func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(l.resolve(path))
}

// Write returns a writer to a temporary file next to the named one,
// creating parent directories as needed. Close renames the temporary file
// into place, replacing any existing file; until then the name does not
// exist. Abort removes the temporary file.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full := l.resolve(path)
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*.tmp")
	if err != nil {
		return nil, err
	}
	return &localWriter{File: f, dest: full}, nil
}

// Delete removes the named file. If the file does not exist, Delete
// returns nil.
func (l *Local) Delete(_ context.Context, path string) error {
	err := os.Remove(l.resolve(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether the named file exists.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.resolve(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

type localWriter struct {
	*os.File
	dest string
	done bool
}

// Close flushes the temporary file and renames it to its destination.
func (w *localWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.File.Close(); err != nil {
		_ = os.Remove(w.File.Name())
		return err
	}
	if err := os.Rename(w.File.Name(), w.dest); err != nil {
		_ = os.Remove(w.File.Name())
		return err
	}
	return nil
}

// Abort closes and removes the temporary file. The destination is left
// untouched.
func (w *localWriter) Abort(error) error {
	if w.done {
		return nil
	}
	w.done = true
	_ = w.File.Close()
	err := os.Remove(w.File.Name())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
