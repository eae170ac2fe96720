package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFSStoreWriteReadRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "ws-1", "/docs/readme.md", []byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := store.Read(ctx, "ws-1", "/docs/readme.md")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Read() = %q, want hello", data)
	}
}

func TestFSStoreReadMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}

	_, err = store.Read(context.Background(), "ws-1", "/missing.md")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() error = %v, want ErrNotFound", err)
	}
}

func TestFSStoreWorkspaceIsolation(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "ws-1", "/secret.md", []byte("ws1")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := store.Read(ctx, "ws-2", "/secret.md"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() across workspaces error = %v, want ErrNotFound", err)
	}
}

func TestFSStoreRejectsEscapingPaths(t *testing.T) {
	base := t.TempDir()
	store, err := NewFSStore(base)
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}

	if err := store.Write(context.Background(), "ws-1", "/../../etc/passwd", []byte("x")); err == nil {
		t.Fatal("expected error for escaping path")
	}
	if _, err := os.Stat(filepath.Join(base, "..", "etc")); err == nil {
		t.Fatal("escaping write landed outside the store root")
	}
}

func TestFSStoreDeleteIdempotent(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "ws-1", "/a.md", []byte("a")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Delete(ctx, "ws-1", "/a.md"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "ws-1", "/a.md"); err != nil {
		t.Fatalf("Delete() second call error = %v", err)
	}

	exists, err := store.Exists(ctx, "ws-1", "/a.md")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true after delete")
	}
}

func TestFSStoreMoveFile(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "ws-1", "/a.md", []byte("content")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Move(ctx, "ws-1", "/a.md", "/docs/b.md"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	data, err := store.Read(ctx, "ws-1", "/docs/b.md")
	if err != nil {
		t.Fatalf("Read() after move error = %v", err)
	}
	if string(data) != "content" {
		t.Errorf("Read() = %q, want content", data)
	}
	if _, err := store.Read(ctx, "ws-1", "/a.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read() old path error = %v, want ErrNotFound", err)
	}
}

func TestFSStoreMoveFolderSubtree(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "ws-1", "/docs/a.md", []byte("a")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Write(ctx, "ws-1", "/docs/nested/b.md", []byte("b")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := store.Move(ctx, "ws-1", "/docs", "/archive"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	if _, err := store.Read(ctx, "ws-1", "/archive/a.md"); err != nil {
		t.Errorf("Read(/archive/a.md) error = %v", err)
	}
	if _, err := store.Read(ctx, "ws-1", "/archive/nested/b.md"); err != nil {
		t.Errorf("Read(/archive/nested/b.md) error = %v", err)
	}
}

func TestFSStoreMoveMissingIsNoop(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}

	if err := store.Move(context.Background(), "ws-1", "/ghost.md", "/elsewhere.md"); err != nil {
		t.Fatalf("Move() of missing blob error = %v", err)
	}
}

func TestMemoryStoreMatchesFSBehavior(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Write(ctx, "ws-1", "/docs/a.md", []byte("a")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := store.Write(ctx, "ws-1", "/docs/nested/b.md", []byte("b")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := store.Read(ctx, "ws-2", "/docs/a.md"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-workspace Read() error = %v, want ErrNotFound", err)
	}

	if err := store.Move(ctx, "ws-1", "/docs", "/archive"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if _, err := store.Read(ctx, "ws-1", "/archive/nested/b.md"); err != nil {
		t.Errorf("Read() after folder move error = %v", err)
	}

	if err := store.Delete(ctx, "ws-1", "/archive/a.md"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}
