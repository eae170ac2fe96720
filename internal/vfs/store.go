package vfs

import (
	"context"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Entry is one row of a directory listing.
type Entry struct {
	Name      string          `json:"name"`
	Path      string          `json:"path"`
	Kind      models.FileType `json:"kind"`
	Size      int64           `json:"size"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FileStore is the catalog half of the virtual filesystem. All lookups
// see live (non-deleted) rows only. Implementations exist for Postgres
// and in-memory testing.
type FileStore interface {
	// GetByPath returns the live file at a canonical path, or a
	// not_found error.
	GetByPath(ctx context.Context, workspaceID, path string) (*models.File, error)

	// GetByID returns a live file by id within a workspace.
	GetByID(ctx context.Context, workspaceID, fileID string) (*models.File, error)

	// Locate returns a live file by id alone. It exists for surfaces
	// that address a file before knowing its workspace, such as chat
	// routes keyed by chat file id; the caller still enforces workspace
	// access on the result.
	Locate(ctx context.Context, fileID string) (*models.File, error)

	// ListEntries returns the children of a folder path. With recursive
	// set, the whole subtree is returned in path order. Sizes are the
	// byte length of each file's latest main-branch version.
	ListEntries(ctx context.Context, workspaceID, folderPath string, recursive bool) ([]Entry, error)

	// ListSubtree returns the live file rows at and under a path prefix,
	// excluding the row at the prefix itself.
	ListSubtree(ctx context.Context, workspaceID, prefix string) ([]*models.File, error)

	// LatestVersion returns the newest version on a branch, or a
	// not_found error when the file has none.
	LatestVersion(ctx context.Context, fileID, branch string) (*models.FileVersion, error)

	// GetVersion returns one version of a file by id, for pinned reads.
	GetVersion(ctx context.Context, fileID string, versionID int64) (*models.FileVersion, error)

	// ListVersions returns a file's versions, newest first.
	ListVersions(ctx context.Context, fileID, branch string, limit int) ([]*models.FileVersion, error)

	// Begin opens a catalog transaction.
	Begin(ctx context.Context) (FileTx, error)
}

// FileTx is a catalog transaction. Mutations are invisible to other
// readers until Commit. Rollback after Commit is a no-op, so callers
// can always defer it.
type FileTx interface {
	// GetByPath reads a live row inside the transaction, locking it
	// against concurrent writers until the transaction ends.
	GetByPath(ctx context.Context, workspaceID, path string) (*models.File, error)

	// ListSubtree reads and locks the live rows strictly under a path
	// prefix.
	ListSubtree(ctx context.Context, workspaceID, prefix string) ([]*models.File, error)

	// LatestVersion reads the newest version on a branch inside the
	// transaction.
	LatestVersion(ctx context.Context, fileID, branch string) (*models.FileVersion, error)

	// Insert adds a new file row.
	Insert(ctx context.Context, file *models.File) error

	// AppendVersion adds a version row and returns its assigned id.
	AppendVersion(ctx context.Context, version *models.FileVersion) (int64, error)

	// TouchFile bumps a file's updated_at.
	TouchFile(ctx context.Context, workspaceID, fileID string, at time.Time) error

	// SoftDelete marks the given file ids deleted and returns the number
	// of rows affected.
	SoftDelete(ctx context.Context, workspaceID string, fileIDs []string, at time.Time) (int64, error)

	// Rename updates a single file's path, name, slug and parent.
	Rename(ctx context.Context, workspaceID, fileID, newPath, newName, newSlug string, newParentID *string, at time.Time) error

	// RewritePrefix rewrites descendant paths after a folder rename:
	// every live path under oldPrefix has oldPrefix replaced with
	// newPrefix. Returns the number of rows rewritten.
	RewritePrefix(ctx context.Context, workspaceID, oldPrefix, newPrefix string, at time.Time) (int64, error)

	Commit() error
	Rollback() error
}
