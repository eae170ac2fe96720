package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSStore stores blobs on the local filesystem under
// {base}/{workspace_id}/{path}.
type FSStore struct {
	basePath string
}

// NewFSStore creates a filesystem-backed blob store rooted at basePath.
func NewFSStore(basePath string) (*FSStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve blob directory: %w", err)
	}
	return &FSStore{basePath: abs}, nil
}

// Write stores content, creating parent directories as needed. The data
// lands in a temp file first and is renamed into place so readers never
// observe partial writes.
func (s *FSStore) Write(ctx context.Context, workspaceID, path string, content []byte) error {
	target, err := s.resolve(workspaceID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create blob parent: %w", err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename blob: %w", err)
	}
	return nil
}

// Read returns the stored content, or ErrNotFound.
func (s *FSStore) Read(ctx context.Context, workspaceID, path string) ([]byte, error) {
	target, err := s.resolve(workspaceID, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob. Deleting a missing blob is a no-op.
func (s *FSStore) Delete(ctx context.Context, workspaceID, path string) error {
	target, err := s.resolve(workspaceID, path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Move renames a blob or directory subtree. A missing source is a no-op.
func (s *FSStore) Move(ctx context.Context, workspaceID, oldPath, newPath string) error {
	src, err := s.resolve(workspaceID, oldPath)
	if err != nil {
		return err
	}
	dst, err := s.resolve(workspaceID, newPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat blob: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create blob parent: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move blob: %w", err)
	}
	return nil
}

// Exists reports whether a blob is present for the key.
func (s *FSStore) Exists(ctx context.Context, workspaceID, path string) (bool, error) {
	target, err := s.resolve(workspaceID, path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return !info.IsDir(), nil
}

// Close releases resources.
func (s *FSStore) Close() error { return nil }

// resolve maps a workspace-scoped VFS path to an absolute disk path and
// refuses anything that would escape the store root.
func (s *FSStore) resolve(workspaceID, path string) (string, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return "", fmt.Errorf("workspace id is required")
	}
	rel := strings.TrimPrefix(path, "/")
	target := filepath.Join(s.basePath, workspaceID, filepath.FromSlash(rel))
	root := filepath.Join(s.basePath, workspaceID)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace root: %s", path)
	}
	return target, nil
}
