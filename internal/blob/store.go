// Package blob persists raw file content outside the catalog. Keys are
// (workspace, normalized path) pairs; the catalog rows in Postgres stay
// the source of truth and the blob tree mirrors document bytes.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists for the given key.
var ErrNotFound = errors.New("blob not found")

// Store reads and writes file content blobs.
//
// Paths are canonical VFS paths (leading slash, no dot segments); the
// store maps them under a per-workspace root. Delete is idempotent so
// garbage collection can retry safely.
type Store interface {
	Write(ctx context.Context, workspaceID, path string, content []byte) error
	Read(ctx context.Context, workspaceID, path string) ([]byte, error)
	Delete(ctx context.Context, workspaceID, path string) error

	// Move renames a blob or a whole subtree (folder moves carry their
	// documents). Missing sources are not an error: virtual files and
	// folders have no blob of their own.
	Move(ctx context.Context, workspaceID, oldPath, newPath string) error

	Exists(ctx context.Context, workspaceID, path string) (bool, error)
	Close() error
}
