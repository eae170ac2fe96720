package vfs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/blob"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

const (
	testWorkspace = "ws-1"
	testAuthor    = "user-1"
)

func newTestService(t *testing.T) (*Service, *MemoryStore, *blob.MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	blobs := blob.NewMemoryStore()
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	return NewService(store, blobs, logger), store, blobs
}

func TestWriteCreatesFileWithAncestors(t *testing.T) {
	svc, _, blobs := newTestService(t)
	ctx := context.Background()

	file, version, err := svc.Write(ctx, testWorkspace, "/docs/sub/readme.md", "hello", testAuthor)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if file.Path != "/docs/sub/readme.md" {
		t.Fatalf("file path = %q, want %q", file.Path, "/docs/sub/readme.md")
	}
	if file.FileType != models.FileTypeDocument {
		t.Fatalf("file type = %q, want %q", file.FileType, models.FileTypeDocument)
	}
	if version.Hash != HashContent("hello") {
		t.Fatalf("version hash = %q, want %q", version.Hash, HashContent("hello"))
	}

	for _, folder := range []string{"/docs", "/docs/sub"} {
		f, err := svc.Resolve(ctx, testWorkspace, folder)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", folder, err)
		}
		if !f.IsFolder() {
			t.Fatalf("expected %q to be a folder, got %q", folder, f.FileType)
		}
	}

	data, err := blobs.Read(ctx, testWorkspace, "/docs/sub/readme.md")
	if err != nil {
		t.Fatalf("blob Read() error = %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("blob content = %q, want %q", data, "hello")
	}
}

func TestWriteNormalizesPath(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	file, _, err := svc.Write(ctx, testWorkspace, "//docs/./sub/../readme.md", "x", testAuthor)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if file.Path != "/docs/readme.md" {
		t.Fatalf("file path = %q, want %q", file.Path, "/docs/readme.md")
	}
	if _, err := svc.Resolve(ctx, testWorkspace, "/docs/readme.md"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
}

func TestWriteAppendsVersions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, v1, err := svc.Write(ctx, testWorkspace, "/a.md", "one", testAuthor)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	_, v2, err := svc.Write(ctx, testWorkspace, "/a.md", "two", testAuthor)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if v2.ID <= v1.ID {
		t.Fatalf("version ids not increasing: %d then %d", v1.ID, v2.ID)
	}

	_, content, err := svc.ReadPath(ctx, testWorkspace, "/a.md")
	if err != nil {
		t.Fatalf("ReadPath() error = %v", err)
	}
	if content != "two" {
		t.Fatalf("content = %q, want %q", content, "two")
	}

	versions, err := svc.History(ctx, testWorkspace, "/a.md", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(versions) != 2 || versions[0].ID != v2.ID {
		t.Fatalf("History() = %d versions with head %d, want 2 with head %d", len(versions), versions[0].ID, v2.ID)
	}
}

func TestWriteRejectsFolders(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Mkdir(ctx, testWorkspace, "/docs", testAuthor); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	_, _, err := svc.Write(ctx, testWorkspace, "/docs", "x", testAuthor)
	if !apperr.IsKind(err, apperr.KindInvalidKind) {
		t.Fatalf("Write(folder) error = %v, want invalid_kind", err)
	}
	_, _, err = svc.Write(ctx, testWorkspace, "/", "x", testAuthor)
	if !apperr.IsKind(err, apperr.KindInvalidKind) {
		t.Fatalf("Write(root) error = %v, want invalid_kind", err)
	}
}

func TestWriteRejectsVirtualFiles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateVirtual(ctx, testWorkspace, "/chats/q.chat", models.FileTypeChat, testAuthor); err != nil {
		t.Fatalf("CreateVirtual() error = %v", err)
	}
	_, _, err := svc.Write(ctx, testWorkspace, "/chats/q.chat", "x", testAuthor)
	if !apperr.IsKind(err, apperr.KindInvalidKind) {
		t.Fatalf("Write(virtual) error = %v, want invalid_kind", err)
	}
	_, err = svc.Edit(ctx, testWorkspace, "/chats/q.chat", EditOp{Old: "a", New: "b"}, testAuthor, "")
	if !apperr.IsKind(err, apperr.KindInvalidKind) {
		t.Fatalf("Edit(virtual) error = %v, want invalid_kind", err)
	}
}

func TestWriteInfersPlanAndCanvasTypes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	plan, _, err := svc.Write(ctx, testWorkspace, "/plans/p.plan", "steps", testAuthor)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if plan.FileType != models.FileTypePlan {
		t.Fatalf("file type = %q, want %q", plan.FileType, models.FileTypePlan)
	}

	canvas, _, err := svc.Write(ctx, testWorkspace, "/b.canvas", "{}", testAuthor)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if canvas.FileType != models.FileTypeCanvas {
		t.Fatalf("file type = %q, want %q", canvas.FileType, models.FileTypeCanvas)
	}
}

func TestReadContentAutoHealsFromBlob(t *testing.T) {
	svc, store, blobs := newTestService(t)
	ctx := context.Background()

	file, err := svc.Touch(ctx, testWorkspace, "/orphan.md", testAuthor)
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if err := blobs.Write(ctx, testWorkspace, "/orphan.md", []byte("recovered")); err != nil {
		t.Fatalf("blob Write() error = %v", err)
	}

	content, err := svc.ReadContent(ctx, file)
	if err != nil {
		t.Fatalf("ReadContent() error = %v", err)
	}
	if content != "recovered" {
		t.Fatalf("content = %q, want %q", content, "recovered")
	}

	v, err := store.LatestVersion(ctx, file.ID, models.DefaultBranch)
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v.Content != "recovered" || v.Hash != HashContent("recovered") {
		t.Fatalf("imported version = %+v, want recovered content", v)
	}
}

func TestReadContentEmptyWithoutVersionOrBlob(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	file, err := svc.Touch(ctx, testWorkspace, "/empty.md", testAuthor)
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	content, err := svc.ReadContent(ctx, file)
	if err != nil {
		t.Fatalf("ReadContent() error = %v", err)
	}
	if content != "" {
		t.Fatalf("content = %q, want empty", content)
	}
}

func TestReadContentRejectsFolders(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	folder, err := svc.Mkdir(ctx, testWorkspace, "/docs", testAuthor)
	if err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	if _, err := svc.ReadContent(ctx, folder); !apperr.IsKind(err, apperr.KindInvalidKind) {
		t.Fatalf("ReadContent(folder) error = %v, want invalid_kind", err)
	}
}

func TestEditReplace(t *testing.T) {
	svc, _, blobs := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Write(ctx, testWorkspace, "/a.md", "hello world", testAuthor); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	v, err := svc.Edit(ctx, testWorkspace, "/a.md", EditOp{Old: "world", New: "there"}, testAuthor, "")
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if v.Content != "hello there" {
		t.Fatalf("content = %q, want %q", v.Content, "hello there")
	}

	data, err := blobs.Read(ctx, testWorkspace, "/a.md")
	if err != nil {
		t.Fatalf("blob Read() error = %v", err)
	}
	if string(data) != "hello there" {
		t.Fatalf("blob content = %q, want %q", data, "hello there")
	}
}

func TestEditReplaceRequiresExactlyOneMatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Write(ctx, testWorkspace, "/a.md", "aa bb aa", testAuthor); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	_, err := svc.Edit(ctx, testWorkspace, "/a.md", EditOp{Old: "zz", New: "x"}, testAuthor, "")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("Edit(no match) error = %v, want validation", err)
	}
	_, err = svc.Edit(ctx, testWorkspace, "/a.md", EditOp{Old: "aa", New: "x"}, testAuthor, "")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("Edit(two matches) error = %v, want validation", err)
	}
}

func TestEditInsert(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Write(ctx, testWorkspace, "/a.md", "a\nb\nc", testAuthor); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	line := 1
	v, err := svc.Edit(ctx, testWorkspace, "/a.md", EditOp{InsertLine: &line, InsertContent: "x"}, testAuthor, "")
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if v.Content != "a\nx\nb\nc" {
		t.Fatalf("content = %q, want %q", v.Content, "a\nx\nb\nc")
	}

	past := 99
	v, err = svc.Edit(ctx, testWorkspace, "/a.md", EditOp{InsertLine: &past, InsertContent: "tail"}, testAuthor, "")
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if v.Content != "a\nx\nb\nc\ntail" {
		t.Fatalf("content = %q, want trailing insert", v.Content)
	}

	negative := -1
	if _, err := svc.Edit(ctx, testWorkspace, "/a.md", EditOp{InsertLine: &negative}, testAuthor, ""); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("Edit(negative line) error = %v, want validation", err)
	}
}

// Two readers at the same hash race an edit: the loser gets Conflict
// and succeeds after re-reading.
func TestEditHashCAS(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, v1, err := svc.Write(ctx, testWorkspace, "/a.md", "base", testAuthor)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// Another writer lands a new version after our read.
	_, v2, err := svc.Write(ctx, testWorkspace, "/a.md", "base changed", testAuthor)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	_, err = svc.Edit(ctx, testWorkspace, "/a.md", EditOp{Old: "base", New: "mine"}, testAuthor, v1.Hash)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("Edit(stale hash) error = %v, want conflict", err)
	}

	v3, err := svc.Edit(ctx, testWorkspace, "/a.md", EditOp{Old: "changed", New: "merged"}, testAuthor, v2.Hash)
	if err != nil {
		t.Fatalf("Edit(fresh hash) error = %v", err)
	}
	if v3.Content != "base merged" {
		t.Fatalf("content = %q, want %q", v3.Content, "base merged")
	}
	if v3.Hash == v2.Hash {
		t.Fatal("expected a new hash after successful edit")
	}
}

func TestEditMissingFile(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Edit(context.Background(), testWorkspace, "/none.md", EditOp{Old: "a", New: "b"}, testAuthor, "")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("Edit(missing) error = %v, want not_found", err)
	}
}

func TestRemoveSoftDeletesSubtree(t *testing.T) {
	svc, _, blobs := newTestService(t)
	ctx := context.Background()

	mustWrite(t, svc, "/docs/a.md", "a")
	mustWrite(t, svc, "/docs/sub/b.md", "b")

	n, err := svc.Remove(ctx, testWorkspace, "/docs")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	// /docs, /docs/a.md, /docs/sub, /docs/sub/b.md
	if n != 4 {
		t.Fatalf("Remove() = %d rows, want 4", n)
	}

	for _, p := range []string{"/docs", "/docs/a.md", "/docs/sub/b.md"} {
		if _, err := svc.Resolve(ctx, testWorkspace, p); !apperr.IsKind(err, apperr.KindNotFound) {
			t.Fatalf("Resolve(%q) error = %v, want not_found", p, err)
		}
	}
	if _, err := svc.Remove(ctx, testWorkspace, "/docs"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("second Remove() error = %v, want not_found", err)
	}

	exists, err := blobs.Exists(ctx, testWorkspace, "/docs/a.md")
	if err != nil {
		t.Fatalf("blob Exists() error = %v", err)
	}
	if exists {
		t.Fatal("expected blob to be deleted with the catalog row")
	}
}

func TestRemoveFreesPathForReuse(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Write(ctx, testWorkspace, "/a.md", "old", testAuthor)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := svc.Remove(ctx, testWorkspace, "/a.md"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	second, _, err := svc.Write(ctx, testWorkspace, "/a.md", "new", testAuthor)
	if err != nil {
		t.Fatalf("Write() after remove error = %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh file id at the reused path")
	}
	_, content, err := svc.ReadPath(ctx, testWorkspace, "/a.md")
	if err != nil {
		t.Fatalf("ReadPath() error = %v", err)
	}
	if content != "new" {
		t.Fatalf("content = %q, want %q (no bleed from deleted file)", content, "new")
	}
}

func TestMoveFile(t *testing.T) {
	svc, _, blobs := newTestService(t)
	ctx := context.Background()

	orig, _, err := svc.Write(ctx, testWorkspace, "/a.md", "body", testAuthor)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	moved, err := svc.Move(ctx, testWorkspace, "/a.md", "/archive/b.md")
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if moved.ID != orig.ID {
		t.Fatal("move must preserve the file id")
	}
	if moved.Path != "/archive/b.md" || moved.Name != "b.md" {
		t.Fatalf("moved file = %q/%q, want /archive/b.md", moved.Path, moved.Name)
	}

	if _, err := svc.Resolve(ctx, testWorkspace, "/a.md"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("Resolve(src) error = %v, want not_found", err)
	}
	versions, err := svc.History(ctx, testWorkspace, "/archive/b.md", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(versions) != 1 || versions[0].Content != "body" {
		t.Fatal("move must preserve versions")
	}

	if exists, _ := blobs.Exists(ctx, testWorkspace, "/a.md"); exists {
		t.Fatal("source blob should be gone after move")
	}
	data, err := blobs.Read(ctx, testWorkspace, "/archive/b.md")
	if err != nil || string(data) != "body" {
		t.Fatalf("destination blob = %q, %v; want body", data, err)
	}
}

func TestMoveRejectsExistingDestination(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustWrite(t, svc, "/a.md", "a")
	mustWrite(t, svc, "/b.md", "b")

	if _, err := svc.Move(ctx, testWorkspace, "/a.md", "/b.md"); !apperr.IsKind(err, apperr.KindAlreadyExists) {
		t.Fatalf("Move() error = %v, want already_exists", err)
	}
}

func TestMoveFolderRewritesDescendants(t *testing.T) {
	svc, _, blobs := newTestService(t)
	ctx := context.Background()

	mustWrite(t, svc, "/docs/a.md", "a")
	mustWrite(t, svc, "/docs/sub/b.md", "b")

	if _, err := svc.Move(ctx, testWorkspace, "/docs", "/archive"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	for src, dst := range map[string]string{
		"/docs/a.md":     "/archive/a.md",
		"/docs/sub/b.md": "/archive/sub/b.md",
	} {
		if _, err := svc.Resolve(ctx, testWorkspace, src); !apperr.IsKind(err, apperr.KindNotFound) {
			t.Fatalf("Resolve(%q) error = %v, want not_found", src, err)
		}
		if _, err := svc.Resolve(ctx, testWorkspace, dst); err != nil {
			t.Fatalf("Resolve(%q) error = %v", dst, err)
		}
	}

	data, err := blobs.Read(ctx, testWorkspace, "/archive/sub/b.md")
	if err != nil || string(data) != "b" {
		t.Fatalf("moved blob = %q, %v; want b", data, err)
	}
}

func TestMoveFolderIntoItselfFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustWrite(t, svc, "/docs/a.md", "a")
	if _, err := svc.Move(ctx, testWorkspace, "/docs", "/docs/inner"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("Move() error = %v, want validation", err)
	}
}

func TestTouchCreatesThenBumps(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	created, err := svc.Touch(ctx, testWorkspace, "/t.md", testAuthor)
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if !created.UpdatedAt.Equal(base) {
		t.Fatalf("created updated_at = %v, want %v", created.UpdatedAt, base)
	}

	svc.now = func() time.Time { return base.Add(time.Hour) }
	bumped, err := svc.Touch(ctx, testWorkspace, "/t.md", testAuthor)
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if bumped.ID != created.ID {
		t.Fatal("touch on an existing file must not create a new one")
	}
	if !bumped.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("updated_at not bumped: %v then %v", created.UpdatedAt, bumped.UpdatedAt)
	}
}

func TestMkdirIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Mkdir(ctx, testWorkspace, "/a/b/c", testAuthor)
	if err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	second, err := svc.Mkdir(ctx, testWorkspace, "/a/b/c", testAuthor)
	if err != nil {
		t.Fatalf("second Mkdir() error = %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("mkdir must be idempotent")
	}
	if _, err := svc.Resolve(ctx, testWorkspace, "/a/b"); err != nil {
		t.Fatalf("Resolve(ancestor) error = %v", err)
	}

	mustWrite(t, svc, "/x.md", "x")
	if _, err := svc.Mkdir(ctx, testWorkspace, "/x.md", testAuthor); !apperr.IsKind(err, apperr.KindAlreadyExists) {
		t.Fatalf("Mkdir(over document) error = %v, want already_exists", err)
	}
}

func TestListEntries(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustWrite(t, svc, "/docs/a.md", "12345")
	mustWrite(t, svc, "/docs/sub/b.md", "67")
	mustWrite(t, svc, "/top.md", "x")

	top, err := svc.List(ctx, testWorkspace, "/", false)
	if err != nil {
		t.Fatalf("List(/) error = %v", err)
	}
	if len(top) != 2 || top[0].Path != "/docs" || top[1].Path != "/top.md" {
		t.Fatalf("List(/) = %+v, want /docs then /top.md", top)
	}
	if top[0].Kind != models.FileTypeFolder {
		t.Fatalf("kind of /docs = %q, want folder", top[0].Kind)
	}

	docs, err := svc.List(ctx, testWorkspace, "/docs", false)
	if err != nil {
		t.Fatalf("List(/docs) error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("List(/docs) = %d entries, want 2", len(docs))
	}
	if docs[0].Name != "a.md" || docs[0].Size != 5 {
		t.Fatalf("entry = %+v, want a.md of size 5", docs[0])
	}

	all, err := svc.List(ctx, testWorkspace, "/docs", true)
	if err != nil {
		t.Fatalf("List recursive error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("recursive List(/docs) = %d entries, want 3", len(all))
	}

	if _, err := svc.List(ctx, testWorkspace, "/top.md", false); !apperr.IsKind(err, apperr.KindInvalidKind) {
		t.Fatalf("List(document) error = %v, want invalid_kind", err)
	}
}

func TestWorkspaceIsolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustWrite(t, svc, "/same.md", "ws1")
	if _, _, err := svc.Write(ctx, "ws-2", "/same.md", "ws2", testAuthor); err != nil {
		t.Fatalf("Write(ws-2) error = %v", err)
	}

	if _, err := svc.Remove(ctx, testWorkspace, "/same.md"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	_, content, err := svc.ReadPath(ctx, "ws-2", "/same.md")
	if err != nil {
		t.Fatalf("ReadPath(ws-2) error = %v", err)
	}
	if content != "ws2" {
		t.Fatalf("content = %q, want %q", content, "ws2")
	}

	entries, err := svc.List(ctx, "ws-2", "/", true)
	if err != nil {
		t.Fatalf("List(ws-2) error = %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/same.md" {
		t.Fatalf("List(ws-2) = %+v, want only its own file", entries)
	}
}

// failingBlobStore turns writes into failures so catalog rollback can
// be observed.
type failingBlobStore struct {
	blob.Store
	writeErr error
}

func (f *failingBlobStore) Write(ctx context.Context, workspaceID, path string, content []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.Store.Write(ctx, workspaceID, path, content)
}

func TestWriteBlobFailureRollsBackCatalog(t *testing.T) {
	store := NewMemoryStore()
	blobs := &failingBlobStore{Store: blob.NewMemoryStore(), writeErr: errors.New("disk full")}
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	svc := NewService(store, blobs, logger)
	ctx := context.Background()

	_, _, err := svc.Write(ctx, testWorkspace, "/a.md", "x", testAuthor)
	if !apperr.IsKind(err, apperr.KindStorage) {
		t.Fatalf("Write() error = %v, want storage", err)
	}
	if _, err := svc.Resolve(ctx, testWorkspace, "/a.md"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("Resolve() error = %v, want not_found after rollback", err)
	}
}

// failCommitStore makes every transaction fail at commit time.
type failCommitStore struct {
	FileStore
}

func (f *failCommitStore) Begin(ctx context.Context) (FileTx, error) {
	tx, err := f.FileStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failCommitTx{FileTx: tx}, nil
}

type failCommitTx struct {
	FileTx
}

func (f *failCommitTx) Commit() error {
	f.FileTx.Rollback()
	return errors.New("connection reset")
}

func TestCommitFailureSchedulesBlobResync(t *testing.T) {
	memStore := NewMemoryStore()
	blobs := blob.NewMemoryStore()
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	svc := NewService(&failCommitStore{FileStore: memStore}, blobs, logger)
	ctx := context.Background()

	_, _, err := svc.Write(ctx, testWorkspace, "/a.md", "x", testAuthor)
	if !apperr.IsKind(err, apperr.KindStorage) {
		t.Fatalf("Write() error = %v, want storage", err)
	}
	if got := svc.PendingGC(); got != 1 {
		t.Fatalf("PendingGC() = %d, want 1", got)
	}
	// The blob landed before the failed commit and is now orphaned.
	if exists, _ := blobs.Exists(ctx, testWorkspace, "/a.md"); !exists {
		t.Fatal("expected orphaned blob before resync")
	}

	synced, err := svc.SyncBlobs(ctx)
	if err != nil {
		t.Fatalf("SyncBlobs() error = %v", err)
	}
	if synced != 1 {
		t.Fatalf("SyncBlobs() = %d, want 1", synced)
	}
	if got := svc.PendingGC(); got != 0 {
		t.Fatalf("PendingGC() after sync = %d, want 0", got)
	}
	if exists, _ := blobs.Exists(ctx, testWorkspace, "/a.md"); exists {
		t.Fatal("orphaned blob should be deleted; the catalog never committed")
	}
}

func TestSyncBlobsRewritesFromLatestVersion(t *testing.T) {
	svc, _, blobs := newTestService(t)
	ctx := context.Background()

	mustWrite(t, svc, "/a.md", "truth")
	// Simulate a diverged mirror.
	if err := blobs.Write(ctx, testWorkspace, "/a.md", []byte("stale")); err != nil {
		t.Fatalf("blob Write() error = %v", err)
	}
	svc.scheduleGC(ctx, testWorkspace, "/a.md")

	if _, err := svc.SyncBlobs(ctx); err != nil {
		t.Fatalf("SyncBlobs() error = %v", err)
	}
	data, err := blobs.Read(ctx, testWorkspace, "/a.md")
	if err != nil {
		t.Fatalf("blob Read() error = %v", err)
	}
	if string(data) != "truth" {
		t.Fatalf("blob content = %q, want %q", data, "truth")
	}
}

func TestCreateVirtualChatReadable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	chat, err := svc.CreateVirtual(ctx, testWorkspace, "/chats/session-1.chat", models.FileTypeChat, testAuthor)
	if err != nil {
		t.Fatalf("CreateVirtual() error = %v", err)
	}
	if !chat.IsVirtual || chat.FileType != models.FileTypeChat {
		t.Fatalf("chat = %+v, want virtual chat", chat)
	}

	content, err := svc.ReadContent(ctx, chat)
	if err != nil {
		t.Fatalf("ReadContent(chat) error = %v", err)
	}
	if content != "" {
		t.Fatalf("chat content = %q, want empty", content)
	}

	if _, err := svc.CreateVirtual(ctx, testWorkspace, "/chats/session-1.chat", models.FileTypeChat, testAuthor); !apperr.IsKind(err, apperr.KindAlreadyExists) {
		t.Fatalf("duplicate CreateVirtual() error = %v, want already_exists", err)
	}
}

func TestResolveRootForms(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, p := range []string{"", "/", "/.."} {
		f, err := svc.Resolve(ctx, testWorkspace, p)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", p, err)
		}
		if !f.IsFolder() || f.Path != "/" {
			t.Fatalf("Resolve(%q) = %+v, want root folder", p, f)
		}
	}
}

func mustWrite(t *testing.T, svc *Service, path, content string) {
	t.Helper()
	if _, _, err := svc.Write(context.Background(), testWorkspace, path, content, testAuthor); err != nil {
		t.Fatalf("Write(%q) error = %v", path, err)
	}
}
