package vfs

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// MemoryStore is an in-memory FileStore for tests. Transactions are
// serialized: Begin holds an internal lock until Commit or Rollback, and
// Rollback restores a snapshot taken at Begin.
type MemoryStore struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	files    map[string]*models.File          // by file id
	versions map[string][]*models.FileVersion // by file id, append order
	nextVer  int64
}

// NewMemoryStore returns an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:    make(map[string]*models.File),
		versions: make(map[string][]*models.FileVersion),
		nextVer:  1,
	}
}

func (s *MemoryStore) livePathLocked(workspaceID, path string) *models.File {
	for _, f := range s.files {
		if f.WorkspaceID == workspaceID && f.Path == path && f.DeletedAt == nil {
			return f
		}
	}
	return nil
}

// GetByPath returns the live file at a path.
func (s *MemoryStore) GetByPath(ctx context.Context, workspaceID, path string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f := s.livePathLocked(workspaceID, path); f != nil {
		return copyFile(f), nil
	}
	return nil, apperr.NotFound("file not found: %s", path)
}

// GetByID returns a live file by id.
func (s *MemoryStore) GetByID(ctx context.Context, workspaceID, fileID string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[fileID]
	if !ok || f.WorkspaceID != workspaceID || f.DeletedAt != nil {
		return nil, apperr.NotFound("file not found: %s", fileID)
	}
	return copyFile(f), nil
}

// Locate returns a live file by id without a workspace scope.
func (s *MemoryStore) Locate(ctx context.Context, fileID string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[fileID]
	if !ok || f.DeletedAt != nil {
		return nil, apperr.NotFound("file not found: %s", fileID)
	}
	return copyFile(f), nil
}

// ListEntries returns the children of a folder path in path order.
func (s *MemoryStore) ListEntries(ctx context.Context, workspaceID, folderPath string, recursive bool) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := folderPath
	if prefix != "/" {
		prefix += "/"
	}

	var entries []Entry
	for _, f := range s.files {
		if f.WorkspaceID != workspaceID || f.DeletedAt != nil {
			continue
		}
		if !strings.HasPrefix(f.Path, prefix) || f.Path == folderPath {
			continue
		}
		if !recursive && strings.Contains(f.Path[len(prefix):], "/") {
			continue
		}
		entries = append(entries, Entry{
			Name:      f.Name,
			Path:      f.Path,
			Kind:      f.FileType,
			Size:      s.latestSizeLocked(f.ID),
			UpdatedAt: f.UpdatedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (s *MemoryStore) latestSizeLocked(fileID string) int64 {
	vs := s.versions[fileID]
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].Branch == models.DefaultBranch {
			return int64(len(vs[i].Content))
		}
	}
	return 0
}

// ListSubtree returns live rows strictly under a path prefix.
func (s *MemoryStore) ListSubtree(ctx context.Context, workspaceID, prefix string) ([]*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := prefix
	if p != "/" {
		p += "/"
	}
	var out []*models.File
	for _, f := range s.files {
		if f.WorkspaceID == workspaceID && f.DeletedAt == nil && strings.HasPrefix(f.Path, p) {
			out = append(out, copyFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// LatestVersion returns the newest version on a branch.
func (s *MemoryStore) LatestVersion(ctx context.Context, fileID, branch string) (*models.FileVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs := s.versions[fileID]
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].Branch == branch {
			v := *vs[i]
			return &v, nil
		}
	}
	return nil, apperr.NotFound("no versions for file %s on branch %s", fileID, branch)
}

// GetVersion returns one version by id.
func (s *MemoryStore) GetVersion(ctx context.Context, fileID string, versionID int64) (*models.FileVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions[fileID] {
		if v.ID == versionID {
			dup := *v
			return &dup, nil
		}
	}
	return nil, apperr.NotFound("version %d not found for file %s", versionID, fileID)
}

// ListVersions returns versions newest first, up to limit when positive.
func (s *MemoryStore) ListVersions(ctx context.Context, fileID, branch string, limit int) ([]*models.FileVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.FileVersion
	vs := s.versions[fileID]
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].Branch != branch {
			continue
		}
		v := *vs[i]
		out = append(out, &v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Begin opens a transaction. Only one transaction runs at a time.
func (s *MemoryStore) Begin(ctx context.Context) (FileTx, error) {
	s.txMu.Lock()
	s.mu.RLock()
	snap := &memorySnapshot{
		files:    make(map[string]*models.File, len(s.files)),
		versions: make(map[string][]*models.FileVersion, len(s.versions)),
		nextVer:  s.nextVer,
	}
	for id, f := range s.files {
		snap.files[id] = copyFile(f)
	}
	for id, vs := range s.versions {
		cp := make([]*models.FileVersion, len(vs))
		for i, v := range vs {
			dup := *v
			cp[i] = &dup
		}
		snap.versions[id] = cp
	}
	s.mu.RUnlock()
	return &memoryTx{store: s, snap: snap}, nil
}

type memorySnapshot struct {
	files    map[string]*models.File
	versions map[string][]*models.FileVersion
	nextVer  int64
}

type memoryTx struct {
	store *MemoryStore
	snap  *memorySnapshot
	done  bool
}

func (tx *memoryTx) GetByPath(ctx context.Context, workspaceID, path string) (*models.File, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	if f := tx.store.livePathLocked(workspaceID, path); f != nil {
		return copyFile(f), nil
	}
	return nil, apperr.NotFound("file not found: %s", path)
}

func (tx *memoryTx) ListSubtree(ctx context.Context, workspaceID, prefix string) ([]*models.File, error) {
	return tx.store.ListSubtree(ctx, workspaceID, prefix)
}

func (tx *memoryTx) LatestVersion(ctx context.Context, fileID, branch string) (*models.FileVersion, error) {
	return tx.store.LatestVersion(ctx, fileID, branch)
}

func (tx *memoryTx) Insert(ctx context.Context, file *models.File) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if tx.store.livePathLocked(file.WorkspaceID, file.Path) != nil {
		return apperr.AlreadyExists("path already exists: %s", file.Path)
	}
	tx.store.files[file.ID] = copyFile(file)
	return nil
}

func (tx *memoryTx) AppendVersion(ctx context.Context, version *models.FileVersion) (int64, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	v := *version
	v.ID = tx.store.nextVer
	tx.store.nextVer++
	tx.store.versions[v.FileID] = append(tx.store.versions[v.FileID], &v)
	return v.ID, nil
}

func (tx *memoryTx) TouchFile(ctx context.Context, workspaceID, fileID string, at time.Time) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	f, ok := tx.store.files[fileID]
	if !ok || f.WorkspaceID != workspaceID || f.DeletedAt != nil {
		return apperr.NotFound("file not found: %s", fileID)
	}
	f.UpdatedAt = at
	return nil
}

func (tx *memoryTx) SoftDelete(ctx context.Context, workspaceID string, fileIDs []string, at time.Time) (int64, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var n int64
	for _, id := range fileIDs {
		f, ok := tx.store.files[id]
		if !ok || f.WorkspaceID != workspaceID || f.DeletedAt != nil {
			continue
		}
		t := at
		f.DeletedAt = &t
		f.UpdatedAt = at
		n++
	}
	return n, nil
}

func (tx *memoryTx) Rename(ctx context.Context, workspaceID, fileID, newPath, newName, newSlug string, newParentID *string, at time.Time) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	f, ok := tx.store.files[fileID]
	if !ok || f.WorkspaceID != workspaceID || f.DeletedAt != nil {
		return apperr.NotFound("file not found: %s", fileID)
	}
	f.Path = newPath
	f.Name = newName
	f.Slug = newSlug
	f.ParentID = newParentID
	f.UpdatedAt = at
	return nil
}

func (tx *memoryTx) RewritePrefix(ctx context.Context, workspaceID, oldPrefix, newPrefix string, at time.Time) (int64, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var n int64
	old := oldPrefix + "/"
	for _, f := range tx.store.files {
		if f.WorkspaceID != workspaceID || f.DeletedAt != nil {
			continue
		}
		if !strings.HasPrefix(f.Path, old) {
			continue
		}
		f.Path = newPrefix + "/" + f.Path[len(old):]
		f.UpdatedAt = at
		n++
	}
	return n, nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.snap = nil
	tx.store.txMu.Unlock()
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Lock()
	tx.store.files = tx.snap.files
	tx.store.versions = tx.snap.versions
	tx.store.nextVer = tx.snap.nextVer
	tx.store.mu.Unlock()
	tx.snap = nil
	tx.store.txMu.Unlock()
	return nil
}

func copyFile(f *models.File) *models.File {
	cp := *f
	if f.ParentID != nil {
		p := *f.ParentID
		cp.ParentID = &p
	}
	if f.DeletedAt != nil {
		d := *f.DeletedAt
		cp.DeletedAt = &d
	}
	return &cp
}
