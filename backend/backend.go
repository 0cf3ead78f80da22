// Package backend abstracts byte-stream access to a repository root, so the
// metadata reader can serve repositories from a local directory or from
// S3-compatible object storage alike. Paths are always relative to the
// repository root (e.g. "repodata/repomd.xml").
package backend

import (
	"context"
	"io"
)

// Backend is the storage interface consumed by the repository reader and the
// CLI. Implementations must support concurrent Open calls; each returned
// stream is independent.
type Backend interface {
	// RepoRoot returns a display form of the repository root.
	RepoRoot() string

	// Open returns a forward-only stream of the file at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// WriteFile stores the stream at path, replacing any existing file.
	WriteFile(ctx context.Context, path string, r io.Reader) error

	// Exists reports whether a file exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths under the given directory prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
