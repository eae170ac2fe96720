package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

const messageColumns = `id, workspace_id, chat_file_id, seq, user_id, role, content, metadata, created_at`

// appendRetries bounds seq-collision retries when a user post races the
// actor's assistant insert on the same chat.
const appendRetries = 3

// PostgresStore is the Postgres-backed message log.
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

func scanMessage(row rowScanner) (*models.ChatMessage, error) {
	var m models.ChatMessage
	var userID sql.NullString
	var metadata []byte
	if err := row.Scan(
		&m.ID,
		&m.WorkspaceID,
		&m.ChatFileID,
		&m.Seq,
		&userID,
		&m.Role,
		&m.Content,
		&metadata,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	if userID.Valid {
		m.UserID = &userID.String
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return &m, nil
}

// Append inserts the message with seq = max(seq)+1 for its chat. The unique
// (chat_file_id, seq) constraint catches concurrent appends; collisions are
// retried with a freshly computed seq.
func (s *PostgresStore) Append(ctx context.Context, msg *models.ChatMessage) error {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("encode message metadata: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO chat_messages (id, workspace_id, chat_file_id, seq, user_id, role, content, metadata, created_at)
			 VALUES ($1, $2, $3,
			   (SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE chat_file_id = $3),
			   $4, $5, $6, $7, $8)
			 RETURNING seq`,
			msg.ID, msg.WorkspaceID, msg.ChatFileID,
			nullString(msg.UserID), msg.Role, msg.Content, metadata, msg.CreatedAt,
		).Scan(&msg.Seq)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return fmt.Errorf("append message: %w", err)
		}
		lastErr = err
	}
	return apperr.Conflict("concurrent append to chat %s: %v", msg.ChatFileID, lastErr)
}

func (s *PostgresStore) List(ctx context.Context, workspaceID, chatFileID string, opts ListOptions) ([]*models.ChatMessage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	// The newest window is selected descending then flipped, so pages read
	// oldest-first without scanning the whole log.
	query := `SELECT ` + messageColumns + `
		 FROM chat_messages
		 WHERE workspace_id = $1 AND chat_file_id = $2`
	args := []any{workspaceID, chatFileID}
	if opts.BeforeSeq > 0 {
		query += ` AND seq < $3`
		args = append(args, opts.BeforeSeq)
	}
	query += fmt.Sprintf(` ORDER BY seq DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (s *PostgresStore) LatestUserMessage(ctx context.Context, workspaceID, chatFileID string) (*models.ChatMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+`
		 FROM chat_messages
		 WHERE workspace_id = $1 AND chat_file_id = $2 AND role = $3
		 ORDER BY seq DESC LIMIT 1`,
		workspaceID, chatFileID, models.RoleUser)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("chat has no user message")
		}
		return nil, fmt.Errorf("latest user message: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) Count(ctx context.Context, workspaceID, chatFileID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE workspace_id = $1 AND chat_file_id = $2`,
		workspaceID, chatFileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func reverse(msgs []*models.ChatMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key")
}
