package identity

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

var userRowColumns = []string{"id", "email", "password_hash", "display_name", "created_at", "updated_at"}

func TestPostgresGetUserByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u-1", "alice@example.com", "hash", "Alice", now, now))

	u, err := store.GetUserByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if u.ID != "u-1" || u.DisplayName != "Alice" {
		t.Fatalf("GetUserByEmail() = %+v, want u-1/Alice", u)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresGetUserByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err = store.GetUserByEmail(context.Background(), "ghost@example.com")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("GetUserByEmail() error = %v, want not_found", err)
	}
}

func TestPostgresCreateUserWithWorkspaceCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	now := time.Now().UTC()
	user := &models.User{ID: "u-1", Email: "a@b.c", PasswordHash: "h", CreatedAt: now, UpdatedAt: now}
	ws := &models.Workspace{ID: "w-1", Name: "Personal", Slug: "a-w1", OwnerID: "u-1", Visibility: models.VisibilityPrivate, CreatedAt: now, UpdatedAt: now}
	roles := defaultRoles(ws.ID)
	member := &models.WorkspaceMember{WorkspaceID: "w-1", UserID: "u-1", RoleID: roles[0].ID, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO workspaces").
		WillReturnResult(sqlmock.NewResult(0, 1))
	for range roles {
		mock.ExpectExec("INSERT INTO roles").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("INSERT INTO workspace_members").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.CreateUserWithWorkspace(context.Background(), user, ws, roles, member); err != nil {
		t.Fatalf("CreateUserWithWorkspace() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateUserDuplicateEmailRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	now := time.Now().UTC()
	user := &models.User{ID: "u-1", Email: "a@b.c", PasswordHash: "h", CreatedAt: now, UpdatedAt: now}
	ws := &models.Workspace{ID: "w-1", Slug: "s", OwnerID: "u-1", CreatedAt: now, UpdatedAt: now}
	roles := defaultRoles(ws.ID)
	member := &models.WorkspaceMember{WorkspaceID: "w-1", UserID: "u-1", RoleID: roles[0].ID, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err = store.CreateUserWithWorkspace(context.Background(), user, ws, roles, member)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("CreateUserWithWorkspace() error = %v, want conflict", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresGetRoleByName(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT (.+) FROM roles").
		WithArgs("w-1", "editor").
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "name", "permissions"}).
			AddRow("r-1", "w-1", "editor", pq.StringArray{"files:read", "files:write"}))

	role, err := store.GetRoleByName(context.Background(), "w-1", "editor")
	if err != nil {
		t.Fatalf("GetRoleByName() error = %v", err)
	}
	if role.ID != "r-1" || len(role.Permissions) != 2 {
		t.Fatalf("GetRoleByName() = %+v, want r-1 with 2 permissions", role)
	}
}

func TestPostgresUpdateInvitationStatusNotPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectExec("UPDATE workspace_invitations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.UpdateInvitationStatus(context.Background(), "inv-1", models.InvitationRevoked, time.Now())
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("UpdateInvitationStatus() error = %v, want conflict", err)
	}
}
