package vfs

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

var fileRowColumns = []string{
	"id", "workspace_id", "parent_id", "path", "name", "slug", "file_type",
	"is_virtual", "is_remote", "permission", "created_by", "created_at", "updated_at",
}

func TestPostgresGetByPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM files").
		WithArgs("ws-1", "/docs/a.md").
		WillReturnRows(sqlmock.NewRows(fileRowColumns).
			AddRow("f-1", "ws-1", nil, "/docs/a.md", "a.md", "a-md", "document",
				false, false, "workspace", "u-1", now, now))

	f, err := store.GetByPath(context.Background(), "ws-1", "/docs/a.md")
	if err != nil {
		t.Fatalf("GetByPath() error = %v", err)
	}
	if f.ID != "f-1" || f.Path != "/docs/a.md" || f.ParentID != nil {
		t.Fatalf("GetByPath() = %+v, want f-1 at /docs/a.md", f)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresGetByPathNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT (.+) FROM files").
		WithArgs("ws-1", "/missing.md").
		WillReturnRows(sqlmock.NewRows(fileRowColumns))

	_, err = store.GetByPath(context.Background(), "ws-1", "/missing.md")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("GetByPath() error = %v, want not_found", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresListEntriesJoinsLatestVersionSize(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT (.+) LEFT JOIN LATERAL`).
		WithArgs("ws-1", "/docs/", models.DefaultBranch).
		WillReturnRows(sqlmock.NewRows([]string{"name", "path", "file_type", "size", "updated_at"}).
			AddRow("a.md", "/docs/a.md", "document", int64(5), now).
			AddRow("sub", "/docs/sub", "folder", int64(0), now))

	entries, err := store.ListEntries(context.Background(), "ws-1", "/docs", false)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ListEntries() = %d entries, want 2", len(entries))
	}
	if entries[0].Size != 5 || entries[0].Kind != models.FileTypeDocument {
		t.Fatalf("entry = %+v, want document of size 5", entries[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresInsertMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO files").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	now := time.Now()
	insertErr := tx.Insert(context.Background(), &models.File{
		ID:          "f-1",
		WorkspaceID: "ws-1",
		Path:        "/dup.md",
		Name:        "dup.md",
		Slug:        "dup-md",
		FileType:    models.FileTypeDocument,
		Permission:  models.PermissionWorkspace,
		CreatedBy:   "u-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if !apperr.IsKind(insertErr, apperr.KindAlreadyExists) {
		t.Fatalf("Insert() error = %v, want already_exists", insertErr)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresAppendVersionReturnsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO file_versions").
		WithArgs("f-1", models.DefaultBranch, "hello", nil, HashContent("hello"), "u-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	id, err := tx.AppendVersion(context.Background(), &models.FileVersion{
		FileID:    "f-1",
		Branch:    models.DefaultBranch,
		Content:   "hello",
		Hash:      HashContent("hello"),
		AuthorID:  "u-1",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendVersion() error = %v", err)
	}
	if id != 7 {
		t.Fatalf("AppendVersion() id = %d, want 7", id)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresSoftDeleteCountsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE files SET deleted_at").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	n, err := tx.SoftDelete(context.Background(), "ws-1", []string{"f-1", "f-2", "f-3"}, time.Now())
	if err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("SoftDelete() = %d rows, want 3", n)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
