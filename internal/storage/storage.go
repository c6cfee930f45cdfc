// Package storage defines where saved recordings go.
//
// [FileStore] abstracts the backend so the persistence sink can write WAV
// files to local disk or to an S3-compatible object store without knowing
// which one it talks to. Paths are forward-slash separated and relative to
// the store root.
package storage

import (
	"context"
	"io"
)

// FileStore is a minimal interface for file-oriented storage.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading. The caller must close the
	// returned ReadCloser. A missing file yields an error wrapping
	// os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating an existing one.
	// Parent directories are created automatically. The data is only
	// guaranteed to be stored once Close returns nil.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Deleting a missing file returns nil.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Location returns a human-readable location of path for logs and
	// events, such as an absolute file path or an s3:// URL.
	Location(path string) string
}

// Aborter is implemented by writers that can discard everything written so
// far instead of committing it. Callers that hit an error mid-write should
// prefer Abort over Close.
type Aborter interface {
	Abort(err error) error
}
