package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

const userColumns = `id, email, password_hash, display_name, created_at, updated_at`

const workspaceColumns = `id, name, slug, owner_id, visibility, settings, created_at, updated_at`

const invitationColumns = `id, workspace_id, email, role_id, invited_by, status, expires_at, created_at`

// PostgresStore is the Postgres-backed identity store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanWorkspace(row rowScanner) (*models.Workspace, error) {
	var ws models.Workspace
	if err := row.Scan(
		&ws.ID,
		&ws.Name,
		&ws.Slug,
		&ws.OwnerID,
		&ws.Visibility,
		&ws.Settings,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ws, nil
}

func scanInvitation(row rowScanner) (*models.WorkspaceInvitation, error) {
	var inv models.WorkspaceInvitation
	if err := row.Scan(
		&inv.ID,
		&inv.WorkspaceID,
		&inv.Email,
		&inv.RoleID,
		&inv.InvitedBy,
		&inv.Status,
		&inv.ExpiresAt,
		&inv.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *PostgresStore) CreateUserWithWorkspace(ctx context.Context, user *models.User, ws *models.Workspace, roles []*models.Role, member *models.WorkspaceMember) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.PasswordHash, user.DisplayName, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("email already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if err := insertWorkspaceTx(ctx, tx, ws, roles, member); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateWorkspace(ctx context.Context, ws *models.Workspace, roles []*models.Role, member *models.WorkspaceMember) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertWorkspaceTx(ctx, tx, ws, roles, member); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertWorkspaceTx inserts a workspace, its roles, and the owner membership
// on an open transaction.
func insertWorkspaceTx(ctx context.Context, tx *sql.Tx, ws *models.Workspace, roles []*models.Role, member *models.WorkspaceMember) error {
	settings := ws.Settings
	if len(settings) == 0 {
		settings = []byte(`{}`)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO workspaces (id, name, slug, owner_id, visibility, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ws.ID, ws.Name, ws.Slug, ws.OwnerID, ws.Visibility, settings, ws.CreatedAt, ws.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExists("workspace slug already taken: %s", ws.Slug)
		}
		return fmt.Errorf("insert workspace: %w", err)
	}

	for _, role := range roles {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO roles (id, workspace_id, name, permissions)
			 VALUES ($1, $2, $3, $4)`,
			role.ID, role.WorkspaceID, role.Name, pq.Array(role.Permissions))
		if err != nil {
			return fmt.Errorf("insert role %s: %w", role.Name, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		member.WorkspaceID, member.UserID, member.RoleID, member.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id)
	ws, err := scanWorkspace(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("workspace not found")
		}
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return ws, nil
}

func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]*models.Workspace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT w.id, w.name, w.slug, w.owner_id, w.visibility, w.settings, w.created_at, w.updated_at
		 FROM workspaces w
		 JOIN workspace_members m ON m.workspace_id = w.id
		 WHERE m.user_id = $1
		 ORDER BY w.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*models.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRoleByName(ctx context.Context, workspaceID, name string) (*models.Role, error) {
	var role models.Role
	var perms pq.StringArray
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, name, permissions
		 FROM roles WHERE workspace_id = $1 AND name = $2`,
		workspaceID, name).Scan(&role.ID, &role.WorkspaceID, &role.Name, &perms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("role not found: %s", name)
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	role.Permissions = perms
	return &role, nil
}

func (s *PostgresStore) ListRoles(ctx context.Context, workspaceID string) ([]*models.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, name, permissions
		 FROM roles WHERE workspace_id = $1 ORDER BY name`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var out []*models.Role
	for rows.Next() {
		var role models.Role
		var perms pq.StringArray
		if err := rows.Scan(&role.ID, &role.WorkspaceID, &role.Name, &perms); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		role.Permissions = perms
		out = append(out, &role)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddMember(ctx context.Context, member *models.WorkspaceMember) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		member.WorkspaceID, member.UserID, member.RoleID, member.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExists("user is already a member")
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("member not found")
	}
	return nil
}

func (s *PostgresStore) GetMember(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error) {
	var m models.WorkspaceMember
	err := s.db.QueryRowContext(ctx,
		`SELECT workspace_id, user_id, role_id, created_at
		 FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID).Scan(&m.WorkspaceID, &m.UserID, &m.RoleID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("member not found")
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, workspaceID string) ([]*models.WorkspaceMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workspace_id, user_id, role_id, created_at
		 FROM workspace_members WHERE workspace_id = $1 ORDER BY created_at`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkspaceMember
	for rows.Next() {
		var m models.WorkspaceMember
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.RoleID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateInvitation(ctx context.Context, inv *models.WorkspaceInvitation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_invitations
		   (id, workspace_id, email, role_id, status, token_hash, invited_by, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		inv.ID, inv.WorkspaceID, inv.Email, inv.RoleID, inv.Status,
		hashToken(inv.Token), inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExists("invitation already pending for %s", inv.Email)
		}
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInvitationByTokenHash(ctx context.Context, tokenHash string) (*models.WorkspaceInvitation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+`
		 FROM workspace_invitations WHERE token_hash = $1`, tokenHash)
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("invitation not found")
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) ListInvitations(ctx context.Context, workspaceID string) ([]*models.WorkspaceInvitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+invitationColumns+`
		 FROM workspace_invitations WHERE workspace_id = $1 ORDER BY created_at`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkspaceInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateInvitationStatus(ctx context.Context, id string, status models.InvitationStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workspace_invitations SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		id, status, at)
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Conflict("invitation is not pending")
	}
	return nil
}

func (s *PostgresStore) AcceptInvitation(ctx context.Context, invitationID string, member *models.WorkspaceMember, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE workspace_invitations SET status = 'accepted', updated_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		invitationID, at)
	if err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Conflict("invitation is not pending")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role_id, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (workspace_id, user_id) DO NOTHING`,
		member.WorkspaceID, member.UserID, member.RoleID, member.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key")
}
