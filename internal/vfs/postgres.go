package vfs

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

const fileColumns = `id, workspace_id, parent_id, path, name, slug, file_type,
	is_virtual, is_remote, permission, created_by, created_at, updated_at`

// PostgresStore is the Postgres-backed catalog.
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

func scanFile(row rowScanner) (*models.File, error) {
	var f models.File
	var parentID sql.NullString
	if err := row.Scan(
		&f.ID,
		&f.WorkspaceID,
		&parentID,
		&f.Path,
		&f.Name,
		&f.Slug,
		&f.FileType,
		&f.IsVirtual,
		&f.IsRemote,
		&f.Permission,
		&f.CreatedBy,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if parentID.Valid {
		f.ParentID = &parentID.String
	}
	return &f, nil
}

func (s *PostgresStore) GetByPath(ctx context.Context, workspaceID, path string) (*models.File, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE workspace_id = $1 AND path = $2 AND deleted_at IS NULL`,
		workspaceID, path)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("file not found: %s", path)
		}
		return nil, fmt.Errorf("get file by path: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, workspaceID, fileID string) (*models.File, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL`,
		workspaceID, fileID)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("file not found: %s", fileID)
		}
		return nil, fmt.Errorf("get file by id: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) Locate(ctx context.Context, fileID string) (*models.File, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE id = $1 AND deleted_at IS NULL`,
		fileID)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("file not found: %s", fileID)
		}
		return nil, fmt.Errorf("locate file: %w", err)
	}
	return f, nil
}

// ListEntries returns a folder's children. Sizes come from the latest
// main-branch version of each file via a lateral join, so a listing
// costs one query regardless of folder width.
func (s *PostgresStore) ListEntries(ctx context.Context, workspaceID, folderPath string, recursive bool) ([]Entry, error) {
	prefix := folderPath
	if prefix != "/" {
		prefix += "/"
	}

	query := `SELECT f.name, f.path, f.file_type, COALESCE(v.size, 0), f.updated_at
		 FROM files f
		 LEFT JOIN LATERAL (
			SELECT octet_length(content) AS size
			FROM file_versions
			WHERE file_id = f.id AND branch = $3
			ORDER BY id DESC
			LIMIT 1
		 ) v ON true
		 WHERE f.workspace_id = $1 AND f.deleted_at IS NULL
		   AND starts_with(f.path, $2)`
	if !recursive {
		query += `
		   AND position('/' IN substring(f.path FROM length($2) + 1)) = 0`
	}
	query += `
		 ORDER BY f.path`

	rows, err := s.db.QueryContext(ctx, query, workspaceID, prefix, models.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Path, &e.Kind, &e.Size, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) ListSubtree(ctx context.Context, workspaceID, prefix string) ([]*models.File, error) {
	p := prefix
	if p != "/" {
		p += "/"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE workspace_id = $1 AND deleted_at IS NULL AND starts_with(path, $2)
		 ORDER BY path`,
		workspaceID, p)
	if err != nil {
		return nil, fmt.Errorf("list subtree: %w", err)
	}
	defer rows.Close()

	files := []*models.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subtree: %w", err)
	}
	return files, nil
}

const versionColumns = `id, file_id, branch, content, app_data, hash, author_id, created_at`

func scanVersion(row rowScanner) (*models.FileVersion, error) {
	var v models.FileVersion
	var appData []byte
	if err := row.Scan(
		&v.ID,
		&v.FileID,
		&v.Branch,
		&v.Content,
		&appData,
		&v.Hash,
		&v.AuthorID,
		&v.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(appData) > 0 {
		v.AppData = appData
	}
	return &v, nil
}

func (s *PostgresStore) LatestVersion(ctx context.Context, fileID, branch string) (*models.FileVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+`
		 FROM file_versions
		 WHERE file_id = $1 AND branch = $2
		 ORDER BY id DESC
		 LIMIT 1`,
		fileID, branch)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("no versions for file %s on branch %s", fileID, branch)
		}
		return nil, fmt.Errorf("latest version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, fileID string, versionID int64) (*models.FileVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+`
		 FROM file_versions
		 WHERE file_id = $1 AND id = $2`,
		fileID, versionID)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("version %d not found for file %s", versionID, fileID)
		}
		return nil, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, fileID, branch string, limit int) ([]*models.FileVersion, error) {
	args := []any{fileID, branch}
	query := `SELECT ` + versionColumns + `
		 FROM file_versions
		 WHERE file_id = $1 AND branch = $2
		 ORDER BY id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := []*models.FileVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

func (s *PostgresStore) Begin(ctx context.Context) (FileTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx *sql.Tx
}

// GetByPath locks the row until the transaction ends so concurrent
// writers to the same path serialize instead of racing.
func (t *postgresTx) GetByPath(ctx context.Context, workspaceID, path string) (*models.File, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE workspace_id = $1 AND path = $2 AND deleted_at IS NULL
		 FOR UPDATE`,
		workspaceID, path)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("file not found: %s", path)
		}
		return nil, fmt.Errorf("get file by path: %w", err)
	}
	return f, nil
}

func (t *postgresTx) ListSubtree(ctx context.Context, workspaceID, prefix string) ([]*models.File, error) {
	p := prefix
	if p != "/" {
		p += "/"
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE workspace_id = $1 AND deleted_at IS NULL AND starts_with(path, $2)
		 ORDER BY path
		 FOR UPDATE`,
		workspaceID, p)
	if err != nil {
		return nil, fmt.Errorf("list subtree: %w", err)
	}
	defer rows.Close()

	files := []*models.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subtree: %w", err)
	}
	return files, nil
}

func (t *postgresTx) LatestVersion(ctx context.Context, fileID, branch string) (*models.FileVersion, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+versionColumns+`
		 FROM file_versions
		 WHERE file_id = $1 AND branch = $2
		 ORDER BY id DESC
		 LIMIT 1`,
		fileID, branch)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("no versions for file %s on branch %s", fileID, branch)
		}
		return nil, fmt.Errorf("latest version: %w", err)
	}
	return v, nil
}

func (t *postgresTx) Insert(ctx context.Context, file *models.File) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO files (id, workspace_id, parent_id, path, name, slug, file_type,
			is_virtual, is_remote, permission, created_by, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		file.ID,
		file.WorkspaceID,
		file.ParentID,
		file.Path,
		file.Name,
		file.Slug,
		file.FileType,
		file.IsVirtual,
		file.IsRemote,
		file.Permission,
		file.CreatedBy,
		file.CreatedAt,
		file.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExists("path already exists: %s", file.Path)
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (t *postgresTx) AppendVersion(ctx context.Context, version *models.FileVersion) (int64, error) {
	var appData any
	if len(version.AppData) > 0 {
		appData = []byte(version.AppData)
	}
	var id int64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO file_versions (file_id, branch, content, app_data, hash, author_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 RETURNING id`,
		version.FileID,
		version.Branch,
		version.Content,
		appData,
		version.Hash,
		version.AuthorID,
		version.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append version: %w", err)
	}
	return id, nil
}

func (t *postgresTx) TouchFile(ctx context.Context, workspaceID, fileID string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE files SET updated_at = $3
		 WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL`,
		workspaceID, fileID, at)
	if err != nil {
		return fmt.Errorf("touch file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch file: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("file not found: %s", fileID)
	}
	return nil
}

func (t *postgresTx) SoftDelete(ctx context.Context, workspaceID string, fileIDs []string, at time.Time) (int64, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE files SET deleted_at = $3, updated_at = $3
		 WHERE workspace_id = $1 AND id = ANY($2) AND deleted_at IS NULL`,
		workspaceID, pq.Array(fileIDs), at)
	if err != nil {
		return 0, fmt.Errorf("soft delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("soft delete: %w", err)
	}
	return n, nil
}

func (t *postgresTx) Rename(ctx context.Context, workspaceID, fileID, newPath, newName, newSlug string, newParentID *string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE files SET path = $3, name = $4, slug = $5, parent_id = $6, updated_at = $7
		 WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL`,
		workspaceID, fileID, newPath, newName, newSlug, newParentID, at)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExists("path already exists: %s", newPath)
		}
		return fmt.Errorf("rename file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("file not found: %s", fileID)
	}
	return nil
}

func (t *postgresTx) RewritePrefix(ctx context.Context, workspaceID, oldPrefix, newPrefix string, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE files
		 SET path = $3 || substring(path FROM length($2) + 1), updated_at = $4
		 WHERE workspace_id = $1 AND deleted_at IS NULL AND starts_with(path, $2 || '/')`,
		workspaceID, oldPrefix, newPrefix, at)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperr.AlreadyExists("path already exists under %s", newPrefix)
		}
		return 0, fmt.Errorf("rewrite prefix: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rewrite prefix: %w", err)
	}
	return n, nil
}

func (t *postgresTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *postgresTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
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
