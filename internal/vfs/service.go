// Package vfs implements the virtual filesystem: a path-addressed,
// versioned, soft-deletable file tree stored in a relational catalog
// with content mirrored to a blob store.
//
// The catalog is the source of truth for reads. The blob mirror exists
// for external tooling and crash recovery; writes keep the two coupled
// by mirroring inside the catalog transaction window and scheduling a
// resync whenever the coupling breaks.
package vfs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/blob"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Service exposes the filesystem operations used by tools, chats and
// the HTTP layer. All paths are normalized on entry, so stored paths
// are always canonical.
type Service struct {
	store  FileStore
	blobs  blob.Store
	logger *observability.Logger
	now    func() time.Time

	gcMu      sync.Mutex
	gcPending map[gcKey]struct{}
}

type gcKey struct {
	workspaceID string
	path        string
}

// NewService builds a Service over a catalog store and a blob mirror.
func NewService(store FileStore, blobs blob.Store, logger *observability.Logger) *Service {
	return &Service{
		store:     store,
		blobs:     blobs,
		logger:    logger,
		now:       time.Now,
		gcPending: make(map[gcKey]struct{}),
	}
}

// rootFolder is the implicit workspace root. It has no catalog row; it
// exists so "" and "/" resolve and every top-level file has a parent.
func rootFolder(workspaceID string) *models.File {
	return &models.File{
		ID:          "root",
		WorkspaceID: workspaceID,
		Path:        "/",
		Name:        "/",
		FileType:    models.FileTypeFolder,
		IsVirtual:   true,
		Permission:  models.PermissionWorkspace,
	}
}

// Resolve returns the live file at a path. Empty and "/" resolve to
// the implicit root folder.
func (s *Service) Resolve(ctx context.Context, workspaceID, path string) (*models.File, error) {
	p := Normalize(path)
	if p == "/" {
		return rootFolder(workspaceID), nil
	}
	f, err := s.store.GetByPath(ctx, workspaceID, p)
	if err != nil {
		return nil, storageErr("resolve file", err)
	}
	return f, nil
}

// ResolveID returns a live file by id.
func (s *Service) ResolveID(ctx context.Context, workspaceID, fileID string) (*models.File, error) {
	f, err := s.store.GetByID(ctx, workspaceID, fileID)
	if err != nil {
		return nil, storageErr("resolve file", err)
	}
	return f, nil
}

// Locate returns a live file by id alone, for callers that learn the
// workspace from the file itself. Access checks remain the caller's
// job.
func (s *Service) Locate(ctx context.Context, fileID string) (*models.File, error) {
	f, err := s.store.Locate(ctx, fileID)
	if err != nil {
		return nil, storageErr("locate file", err)
	}
	return f, nil
}

// List returns the entries of a folder, recursively when asked.
func (s *Service) List(ctx context.Context, workspaceID, path string, recursive bool) ([]Entry, error) {
	f, err := s.Resolve(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}
	if !f.IsFolder() {
		return nil, apperr.InvalidKind("not a folder: %s", f.Path)
	}
	entries, err := s.store.ListEntries(ctx, workspaceID, f.Path, recursive)
	if err != nil {
		return nil, storageErr("list entries", err)
	}
	return entries, nil
}

// ReadContent returns the latest main-branch content of a file. When
// the catalog has no version but the blob mirror holds content, the
// blob is imported as the first version before returning (auto-heal).
// A file with neither reads as empty.
func (s *Service) ReadContent(ctx context.Context, file *models.File) (string, error) {
	content, _, err := s.LatestContent(ctx, file)
	return content, err
}

// LatestContent is ReadContent plus the id of the version that served
// the read; the id is 0 when the file has no content anywhere.
func (s *Service) LatestContent(ctx context.Context, file *models.File) (string, int64, error) {
	if file.IsFolder() {
		return "", 0, apperr.InvalidKind("not a readable file: %s", file.Path)
	}
	v, err := s.store.LatestVersion(ctx, file.ID, models.DefaultBranch)
	if err == nil {
		return v.Content, v.ID, nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return "", 0, storageErr("read latest version", err)
	}

	data, berr := s.blobs.Read(ctx, file.WorkspaceID, file.Path)
	if errors.Is(berr, blob.ErrNotFound) {
		return "", 0, nil
	}
	if berr != nil {
		return "", 0, apperr.Storage("read blob", berr)
	}
	id, err := s.importBlob(ctx, file, string(data))
	if err != nil {
		return "", 0, err
	}
	return string(data), id, nil
}

// ReadVersion returns the content of one pinned version of a file.
func (s *Service) ReadVersion(ctx context.Context, file *models.File, versionID int64) (string, error) {
	if file.IsFolder() {
		return "", apperr.InvalidKind("not a readable file: %s", file.Path)
	}
	v, err := s.store.GetVersion(ctx, file.ID, versionID)
	if err != nil {
		return "", storageErr("read version", err)
	}
	return v.Content, nil
}

// ReadPath resolves a path and reads its content in one call.
func (s *Service) ReadPath(ctx context.Context, workspaceID, path string) (*models.File, string, error) {
	f, err := s.Resolve(ctx, workspaceID, path)
	if err != nil {
		return nil, "", err
	}
	content, err := s.ReadContent(ctx, f)
	if err != nil {
		return nil, "", err
	}
	return f, content, nil
}

// importBlob records orphaned blob content as a file's first version
// and returns the new version id.
func (s *Service) importBlob(ctx context.Context, file *models.File, content string) (int64, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, apperr.Storage("begin import", err)
	}
	defer tx.Rollback()

	id, err := tx.AppendVersion(ctx, &models.FileVersion{
		FileID:    file.ID,
		Branch:    models.DefaultBranch,
		Content:   content,
		Hash:      HashContent(content),
		AuthorID:  file.CreatedBy,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return 0, apperr.Storage("import blob version", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Storage("commit import", err)
	}
	s.logger.Info(ctx, "imported blob content as first version",
		"workspace_id", file.WorkspaceID,
		"file_id", file.ID,
		"path", file.Path,
	)
	return id, nil
}

// Write creates or versions the file at a path. Missing ancestor
// folders are created. Folders and virtual files are not writable.
func (s *Service) Write(ctx context.Context, workspaceID, path, content, authorID string) (*models.File, *models.FileVersion, error) {
	p := Normalize(path)
	if p == "/" {
		return nil, nil, apperr.InvalidKind("folders are not writable: /")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, nil, apperr.Storage("begin write", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	file, err := tx.GetByPath(ctx, workspaceID, p)
	switch {
	case err == nil:
		if file.IsFolder() {
			return nil, nil, apperr.InvalidKind("folders are not writable: %s", p)
		}
		if file.IsVirtual {
			return nil, nil, apperr.InvalidKind("virtual files are not writable: %s", p)
		}
		if err := tx.TouchFile(ctx, workspaceID, file.ID, now); err != nil {
			return nil, nil, storageErr("touch file", err)
		}
		file.UpdatedAt = now
	case apperr.IsKind(err, apperr.KindNotFound):
		file, err = s.createFile(ctx, tx, workspaceID, p, InferFileType(p), false, authorID, now)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, storageErr("look up file", err)
	}

	version := &models.FileVersion{
		FileID:    file.ID,
		Branch:    models.DefaultBranch,
		Content:   content,
		Hash:      HashContent(content),
		AuthorID:  authorID,
		CreatedAt: now,
	}
	id, err := tx.AppendVersion(ctx, version)
	if err != nil {
		return nil, nil, apperr.Storage("append version", err)
	}
	version.ID = id

	// Mirror before commit: a blob failure rolls the catalog back, a
	// commit failure leaves the blob ahead and queues a resync.
	if err := s.blobs.Write(ctx, workspaceID, p, []byte(content)); err != nil {
		return nil, nil, apperr.Storage("write blob", err)
	}
	if err := tx.Commit(); err != nil {
		s.scheduleGC(ctx, workspaceID, p)
		return nil, nil, apperr.Storage("commit write", err)
	}
	return file, version, nil
}

// EditOp is a single content mutation. Replace substitutes Old with
// New and requires Old to occur exactly once. Insert places
// InsertContent before the 0-indexed InsertLine; an index past the
// last line appends. InsertLine nil selects Replace.
type EditOp struct {
	Old string
	New string

	InsertLine    *int
	InsertContent string
}

// Apply runs the mutation against the current content.
func (op EditOp) Apply(content string) (string, error) {
	if op.InsertLine != nil {
		line := *op.InsertLine
		if line < 0 {
			return "", apperr.Validation("insert line must not be negative, got %d", line)
		}
		lines := strings.Split(content, "\n")
		if line > len(lines) {
			line = len(lines)
		}
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:line]...)
		out = append(out, op.InsertContent)
		out = append(out, lines[line:]...)
		return strings.Join(out, "\n"), nil
	}

	if op.Old == "" {
		return "", apperr.Validation("replace requires non-empty old content")
	}
	switch n := strings.Count(content, op.Old); {
	case n == 0:
		return "", apperr.Validation("old content not found in file")
	case n > 1:
		return "", apperr.Validation("old content matches %d times, must match exactly once", n)
	}
	return strings.Replace(content, op.Old, op.New, 1), nil
}

// Edit applies an EditOp to the file at a path and appends the result
// as a new version. A non-empty expectedHash must equal the latest
// version's hash or the edit fails with Conflict.
func (s *Service) Edit(ctx context.Context, workspaceID, path string, op EditOp, authorID, expectedHash string) (*models.FileVersion, error) {
	p := Normalize(path)
	if p == "/" {
		return nil, apperr.InvalidKind("folders are not editable: /")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apperr.Storage("begin edit", err)
	}
	defer tx.Rollback()

	file, err := tx.GetByPath(ctx, workspaceID, p)
	if err != nil {
		return nil, storageErr("look up file", err)
	}
	if file.IsFolder() {
		return nil, apperr.InvalidKind("folders are not editable: %s", p)
	}
	if file.IsVirtual {
		return nil, apperr.InvalidKind("virtual files are not editable: %s", p)
	}

	current := ""
	currentHash := HashContent("")
	latest, err := tx.LatestVersion(ctx, file.ID, models.DefaultBranch)
	switch {
	case err == nil:
		current = latest.Content
		currentHash = latest.Hash
	case apperr.IsKind(err, apperr.KindNotFound):
	default:
		return nil, storageErr("read latest version", err)
	}

	if expectedHash != "" && expectedHash != currentHash {
		return nil, apperr.Conflict("file changed since last read: expected hash %s", expectedHash)
	}

	next, err := op.Apply(current)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	version := &models.FileVersion{
		FileID:    file.ID,
		Branch:    models.DefaultBranch,
		Content:   next,
		Hash:      HashContent(next),
		AuthorID:  authorID,
		CreatedAt: now,
	}
	id, err := tx.AppendVersion(ctx, version)
	if err != nil {
		return nil, apperr.Storage("append version", err)
	}
	version.ID = id
	if err := tx.TouchFile(ctx, workspaceID, file.ID, now); err != nil {
		return nil, storageErr("touch file", err)
	}

	if err := s.blobs.Write(ctx, workspaceID, p, []byte(next)); err != nil {
		return nil, apperr.Storage("write blob", err)
	}
	if err := tx.Commit(); err != nil {
		s.scheduleGC(ctx, workspaceID, p)
		return nil, apperr.Storage("commit edit", err)
	}
	return version, nil
}

// Remove soft-deletes the file at a path. Folders take their whole
// subtree with them. Returns the number of rows deleted.
func (s *Service) Remove(ctx context.Context, workspaceID, path string) (int64, error) {
	p := Normalize(path)
	if p == "/" {
		return 0, apperr.Validation("cannot remove the workspace root")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return 0, apperr.Storage("begin remove", err)
	}
	defer tx.Rollback()

	file, err := tx.GetByPath(ctx, workspaceID, p)
	if err != nil {
		return 0, storageErr("look up file", err)
	}

	ids := []string{file.ID}
	blobPaths := []string{}
	if file.IsFolder() {
		subtree, err := tx.ListSubtree(ctx, workspaceID, p)
		if err != nil {
			return 0, storageErr("list subtree", err)
		}
		for _, child := range subtree {
			ids = append(ids, child.ID)
			if !child.IsFolder() {
				blobPaths = append(blobPaths, child.Path)
			}
		}
	} else {
		blobPaths = append(blobPaths, file.Path)
	}

	now := s.now().UTC()
	n, err := tx.SoftDelete(ctx, workspaceID, ids, now)
	if err != nil {
		return 0, apperr.Storage("soft delete", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Storage("commit remove", err)
	}

	// The catalog no longer references these paths; stale blobs would
	// poison a later auto-heal at the same path.
	for _, bp := range blobPaths {
		if err := s.blobs.Delete(ctx, workspaceID, bp); err != nil {
			s.scheduleGC(ctx, workspaceID, bp)
		}
	}
	if file.IsFolder() {
		if err := s.blobs.Delete(ctx, workspaceID, p); err != nil {
			s.scheduleGC(ctx, workspaceID, p)
		}
	}
	return n, nil
}

// Move renames a file or folder. The destination must be free; folder
// moves rewrite every descendant path. Versions and file ids survive.
func (s *Service) Move(ctx context.Context, workspaceID, src, dst string) (*models.File, error) {
	from := Normalize(src)
	to := Normalize(dst)
	if from == "/" || to == "/" {
		return nil, apperr.Validation("cannot move the workspace root")
	}
	if from == to {
		return nil, apperr.Validation("source and destination are the same path")
	}
	if strings.HasPrefix(to, from+"/") {
		return nil, apperr.Validation("cannot move a folder into itself")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apperr.Storage("begin move", err)
	}
	defer tx.Rollback()

	file, err := tx.GetByPath(ctx, workspaceID, from)
	if err != nil {
		return nil, storageErr("look up source", err)
	}
	if _, err := tx.GetByPath(ctx, workspaceID, to); err == nil {
		return nil, apperr.AlreadyExists("destination already exists: %s", to)
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, storageErr("look up destination", err)
	}

	now := s.now().UTC()
	parent, err := s.ensureFolders(ctx, tx, workspaceID, ParentPath(to), file.CreatedBy, now)
	if err != nil {
		return nil, err
	}
	var parentID *string
	if parent != nil {
		parentID = &parent.ID
	}

	name := BaseName(to)
	if err := tx.Rename(ctx, workspaceID, file.ID, to, name, Slugify(name), parentID, now); err != nil {
		return nil, storageErr("rename file", err)
	}
	if file.IsFolder() {
		if _, err := tx.RewritePrefix(ctx, workspaceID, from, to, now); err != nil {
			return nil, storageErr("rewrite descendant paths", err)
		}
	}

	if err := s.blobs.Move(ctx, workspaceID, from, to); err != nil {
		return nil, apperr.Storage("move blob", err)
	}
	if err := tx.Commit(); err != nil {
		s.scheduleGC(ctx, workspaceID, from)
		s.scheduleGC(ctx, workspaceID, to)
		return nil, apperr.Storage("commit move", err)
	}

	file.Path = to
	file.Name = name
	file.Slug = Slugify(name)
	file.ParentID = parentID
	file.UpdatedAt = now
	return file, nil
}

// Touch creates an empty document at a path or bumps its updated_at.
func (s *Service) Touch(ctx context.Context, workspaceID, path, authorID string) (*models.File, error) {
	p := Normalize(path)
	if p == "/" {
		return rootFolder(workspaceID), nil
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apperr.Storage("begin touch", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	file, err := tx.GetByPath(ctx, workspaceID, p)
	switch {
	case err == nil:
		if file.IsVirtual && !file.IsFolder() {
			return nil, apperr.InvalidKind("virtual files are not writable: %s", p)
		}
		if err := tx.TouchFile(ctx, workspaceID, file.ID, now); err != nil {
			return nil, storageErr("touch file", err)
		}
		file.UpdatedAt = now
	case apperr.IsKind(err, apperr.KindNotFound):
		file, err = s.createFile(ctx, tx, workspaceID, p, InferFileType(p), false, authorID, now)
		if err != nil {
			return nil, err
		}
	default:
		return nil, storageErr("look up file", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("commit touch", err)
	}
	return file, nil
}

// Mkdir creates a folder and any missing ancestors. Creating an
// existing folder succeeds; a non-folder in the way fails.
func (s *Service) Mkdir(ctx context.Context, workspaceID, path, authorID string) (*models.File, error) {
	p := Normalize(path)
	if p == "/" {
		return rootFolder(workspaceID), nil
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apperr.Storage("begin mkdir", err)
	}
	defer tx.Rollback()

	if existing, err := tx.GetByPath(ctx, workspaceID, p); err == nil {
		if !existing.IsFolder() {
			return nil, apperr.AlreadyExists("path already exists and is not a folder: %s", p)
		}
		return existing, tx.Commit()
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, storageErr("look up folder", err)
	}

	now := s.now().UTC()
	folder, err := s.createFile(ctx, tx, workspaceID, p, models.FileTypeFolder, false, authorID, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("commit mkdir", err)
	}
	return folder, nil
}

// CreateVirtual creates a system-managed file, like the chat files the
// conversation layer owns. Virtual files resolve and read normally but
// reject writes, edits and touches.
func (s *Service) CreateVirtual(ctx context.Context, workspaceID, path string, fileType models.FileType, authorID string) (*models.File, error) {
	p := Normalize(path)
	if p == "/" {
		return nil, apperr.Validation("cannot create a file at the workspace root path")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apperr.Storage("begin create", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	file, err := s.createFile(ctx, tx, workspaceID, p, fileType, true, authorID, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Storage("commit create", err)
	}
	return file, nil
}

// History returns a file's versions, newest first.
func (s *Service) History(ctx context.Context, workspaceID, path string, limit int) ([]*models.FileVersion, error) {
	f, err := s.Resolve(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}
	if f.IsFolder() {
		return nil, apperr.InvalidKind("folders have no versions: %s", f.Path)
	}
	versions, err := s.store.ListVersions(ctx, f.ID, models.DefaultBranch, limit)
	if err != nil {
		return nil, storageErr("list versions", err)
	}
	return versions, nil
}

// createFile inserts a file row, creating missing ancestor folders.
// The caller owns the transaction.
func (s *Service) createFile(ctx context.Context, tx FileTx, workspaceID, path string, fileType models.FileType, virtual bool, authorID string, now time.Time) (*models.File, error) {
	parent, err := s.ensureFolders(ctx, tx, workspaceID, ParentPath(path), authorID, now)
	if err != nil {
		return nil, err
	}
	var parentID *string
	if parent != nil {
		parentID = &parent.ID
	}

	name := BaseName(path)
	file := &models.File{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		ParentID:    parentID,
		Path:        path,
		Name:        name,
		Slug:        Slugify(name),
		FileType:    fileType,
		IsVirtual:   virtual,
		Permission:  models.PermissionWorkspace,
		CreatedBy:   authorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Insert(ctx, file); err != nil {
		return nil, storageErr("insert file", err)
	}
	return file, nil
}

// ensureFolders walks the ancestor chain of folderPath, creating any
// missing folders, and returns the folder at folderPath. Returns nil
// for the root. A non-folder anywhere on the chain fails InvalidKind.
func (s *Service) ensureFolders(ctx context.Context, tx FileTx, workspaceID, folderPath, authorID string, now time.Time) (*models.File, error) {
	if folderPath == "/" {
		return nil, nil
	}

	var parent *models.File
	chain := append(Ancestors(folderPath), folderPath)
	for _, p := range chain {
		existing, err := tx.GetByPath(ctx, workspaceID, p)
		switch {
		case err == nil:
			if !existing.IsFolder() {
				return nil, apperr.InvalidKind("not a folder: %s", p)
			}
			parent = existing
			continue
		case apperr.IsKind(err, apperr.KindNotFound):
		default:
			return nil, storageErr("look up folder", err)
		}

		var parentID *string
		if parent != nil {
			parentID = &parent.ID
		}
		name := BaseName(p)
		folder := &models.File{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			ParentID:    parentID,
			Path:        p,
			Name:        name,
			Slug:        Slugify(name),
			FileType:    models.FileTypeFolder,
			Permission:  models.PermissionWorkspace,
			CreatedBy:   authorID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Insert(ctx, folder); err != nil {
			return nil, storageErr("insert folder", err)
		}
		parent = folder
	}
	return parent, nil
}

// scheduleGC queues a blob resync for a path after a partial failure.
func (s *Service) scheduleGC(ctx context.Context, workspaceID, path string) {
	s.gcMu.Lock()
	s.gcPending[gcKey{workspaceID: workspaceID, path: path}] = struct{}{}
	s.gcMu.Unlock()
	s.logger.Warn(ctx, "scheduled blob resync", "workspace_id", workspaceID, "path", path)
}

// PendingGC reports how many blob resyncs are queued.
func (s *Service) PendingGC() int {
	s.gcMu.Lock()
	defer s.gcMu.Unlock()
	return len(s.gcPending)
}

// SyncBlobs drains the resync queue: each queued blob is rewritten
// from the latest live version, or deleted when no live file remains
// at the path. Paths that fail again are requeued. Returns the number
// of paths reconciled and the first failure seen.
func (s *Service) SyncBlobs(ctx context.Context) (int, error) {
	s.gcMu.Lock()
	keys := make([]gcKey, 0, len(s.gcPending))
	for k := range s.gcPending {
		keys = append(keys, k)
	}
	s.gcPending = make(map[gcKey]struct{})
	s.gcMu.Unlock()

	synced := 0
	var firstErr error
	for _, k := range keys {
		if err := s.syncBlob(ctx, k); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.scheduleGC(ctx, k.workspaceID, k.path)
			continue
		}
		synced++
	}
	if synced > 0 {
		s.logger.Info(ctx, "reconciled blobs", "count", synced)
	}
	return synced, firstErr
}

func (s *Service) syncBlob(ctx context.Context, k gcKey) error {
	file, err := s.store.GetByPath(ctx, k.workspaceID, k.path)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return s.blobs.Delete(ctx, k.workspaceID, k.path)
	}
	if err != nil {
		return err
	}
	if file.IsFolder() {
		return nil
	}
	v, err := s.store.LatestVersion(ctx, file.ID, models.DefaultBranch)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return s.blobs.Delete(ctx, k.workspaceID, k.path)
	}
	if err != nil {
		return err
	}
	return s.blobs.Write(ctx, k.workspaceID, k.path, []byte(v.Content))
}

// storageErr passes classified errors through and wraps raw
// infrastructure failures as Storage.
func storageErr(message string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Storage(message, err)
}
