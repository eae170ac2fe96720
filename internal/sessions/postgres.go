package sessions

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

const sessionColumns = `id, workspace_id, chat_file_id, user_id, agent_type, model, mode,
	status, current_task, error_message, created_at, updated_at, last_heartbeat, completed_at`

// PostgresStore persists agent sessions in the agent_sessions table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore returns a session store backed by db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.AgentSession, error) {
	var (
		s            models.AgentSession
		currentTask  sql.NullString
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(&s.ID, &s.WorkspaceID, &s.ChatFileID, &s.UserID, &s.AgentType, &s.Model,
		&s.Mode, &s.Status, &currentTask, &errorMessage, &s.CreatedAt, &s.UpdatedAt,
		&s.LastHeartbeat, &completedAt)
	if err != nil {
		return nil, err
	}
	if currentTask.Valid {
		s.CurrentTask = &currentTask.String
	}
	if errorMessage.Valid {
		s.ErrorMessage = &errorMessage.String
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return &s, nil
}

// GetOrCreate inserts, resets, or rejects under a row lock on the chat
// file so two concurrent starts cannot both claim the session.
func (s *PostgresStore) GetOrCreate(ctx context.Context, next *models.AgentSession) (*models.AgentSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM agent_sessions WHERE chat_file_id = $1 FOR UPDATE`,
		next.ChatFileID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created, err := s.insertTx(ctx, tx, next)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit session: %w", err)
		}
		return created, nil
	case err != nil:
		return nil, fmt.Errorf("lock session: %w", err)
	}

	if !existing.Status.IsTerminal() {
		return nil, apperr.Conflict("chat %s already has session %s in status %s",
			next.ChatFileID, existing.ID, existing.Status)
	}

	now := s.now().UTC()
	reset, err := scanSession(tx.QueryRowContext(ctx,
		`UPDATE agent_sessions
		 SET status = $2, user_id = $3, agent_type = $4, model = $5, mode = $6,
		     current_task = NULL, error_message = NULL, completed_at = NULL,
		     last_heartbeat = $7, updated_at = $7
		 WHERE id = $1
		 RETURNING `+sessionColumns,
		existing.ID, models.StatusIdle, next.UserID, next.AgentType, next.Model, next.Mode, now))
	if err != nil {
		return nil, fmt.Errorf("reset session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return reset, nil
}

func (s *PostgresStore) insertTx(ctx context.Context, tx *sql.Tx, next *models.AgentSession) (*models.AgentSession, error) {
	now := s.now().UTC()
	created, err := scanSession(tx.QueryRowContext(ctx,
		`INSERT INTO agent_sessions (id, workspace_id, chat_file_id, user_id, agent_type,
		     model, mode, status, created_at, updated_at, last_heartbeat)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $9)
		 RETURNING `+sessionColumns,
		next.ID, next.WorkspaceID, next.ChatFileID, next.UserID, next.AgentType,
		next.Model, next.Mode, models.StatusIdle, now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("chat %s already has a session", next.ChatFileID)
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return created, nil
}

// Get returns a session by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.AgentSession, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM agent_sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetByChatFile returns the session owning a chat file.
func (s *PostgresStore) GetByChatFile(ctx context.Context, chatFileID string) (*models.AgentSession, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM agent_sessions WHERE chat_file_id = $1`, chatFileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("chat %s has no session", chatFileID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session by chat: %w", err)
	}
	return sess, nil
}

// UpdateStatus validates the transition under a row lock, then applies
// it. Entering Completed or Error stamps completed_at.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, errorMessage *string) (*models.AgentSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current models.SessionStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM agent_sessions WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if !CanTransition(current, status) {
		return nil, apperr.Conflict("illegal transition %s -> %s for session %s", current, status, id)
	}

	now := s.now().UTC()
	var completedAt *time.Time
	if status == models.StatusCompleted || status == models.StatusError {
		completedAt = &now
	}
	sess, err := scanSession(tx.QueryRowContext(ctx,
		`UPDATE agent_sessions
		 SET status = $2, error_message = COALESCE($3, error_message),
		     completed_at = COALESCE($4, completed_at), updated_at = $5
		 WHERE id = $1
		 RETURNING `+sessionColumns,
		id, status, nullString(errorMessage), nullTime(completedAt), now))
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status: %w", err)
	}
	return sess, nil
}

// UpdateTask replaces the current task description; nil leaves it as is.
func (s *PostgresStore) UpdateTask(ctx context.Context, id string, task *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_sessions
		 SET current_task = COALESCE($2, current_task), updated_at = $3
		 WHERE id = $1`,
		id, nullString(task), s.now().UTC())
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(res, id)
}

// UpdateMetadata partially updates model, mode, and agent type.
func (s *PostgresStore) UpdateMetadata(ctx context.Context, id string, model *string, mode *models.SessionMode, agentType *models.AgentType) error {
	var modeVal, agentVal *string
	if mode != nil {
		v := string(*mode)
		modeVal = &v
	}
	if agentType != nil {
		v := string(*agentType)
		agentVal = &v
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_sessions
		 SET model = COALESCE($2, model), mode = COALESCE($3, mode),
		     agent_type = COALESCE($4, agent_type), updated_at = $5
		 WHERE id = $1`,
		id, nullString(model), nullString(modeVal), nullString(agentVal), s.now().UTC())
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return requireRow(res, id)
}

// Heartbeat refreshes last_heartbeat for a live actor.
func (s *PostgresStore) Heartbeat(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET last_heartbeat = $2, updated_at = $2 WHERE id = $1`,
		id, s.now().UTC())
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return requireRow(res, id)
}

// CleanupStale deletes abandoned sessions and returns their chat file
// ids. Terminal sessions are never reaped; they are reusable.
func (s *PostgresStore) CleanupStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM agent_sessions
		 WHERE last_heartbeat < $1 AND status IN ($2, $3, $4)
		 RETURNING chat_file_id`,
		cutoff, models.StatusIdle, models.StatusRunning, models.StatusPaused)
	if err != nil {
		return nil, fmt.Errorf("cleanup stale sessions: %w", err)
	}
	defer rows.Close()

	var chatIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reaped session: %w", err)
		}
		chatIDs = append(chatIDs, id)
	}
	return chatIDs, rows.Err()
}

// Stats counts a workspace's sessions by status.
func (s *PostgresStore) Stats(ctx context.Context, workspaceID string) (map[models.SessionStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM agent_sessions WHERE workspace_id = $1 GROUP BY status`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[models.SessionStatus]int64)
	for rows.Next() {
		var (
			status models.SessionStatus
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("session %s not found", id)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key")
}
