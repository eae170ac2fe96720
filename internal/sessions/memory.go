package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// MemoryStore is an in-memory Store for tests and single-process runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.AgentSession
	byChat   map[string]string

	now func() time.Time
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.AgentSession),
		byChat:   make(map[string]string),
		now:      time.Now,
	}
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, next *models.AgentSession) (*models.AgentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if id, ok := s.byChat[next.ChatFileID]; ok {
		existing := s.sessions[id]
		if !existing.Status.IsTerminal() {
			return nil, apperr.Conflict("chat %s already has session %s in status %s",
				next.ChatFileID, existing.ID, existing.Status)
		}
		existing.Status = models.StatusIdle
		existing.UserID = next.UserID
		existing.AgentType = next.AgentType
		existing.Model = next.Model
		existing.Mode = next.Mode
		existing.CurrentTask = nil
		existing.ErrorMessage = nil
		existing.CompletedAt = nil
		existing.LastHeartbeat = now
		existing.UpdatedAt = now
		return copySession(existing), nil
	}

	created := copySession(next)
	created.Status = models.StatusIdle
	created.CurrentTask = nil
	created.ErrorMessage = nil
	created.CompletedAt = nil
	created.CreatedAt = now
	created.UpdatedAt = now
	created.LastHeartbeat = now
	s.sessions[created.ID] = created
	s.byChat[created.ChatFileID] = created.ID
	return copySession(created), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.AgentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session %s not found", id)
	}
	return copySession(sess), nil
}

func (s *MemoryStore) GetByChatFile(ctx context.Context, chatFileID string) (*models.AgentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byChat[chatFileID]
	if !ok {
		return nil, apperr.NotFound("chat %s has no session", chatFileID)
	}
	return copySession(s.sessions[id]), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, errorMessage *string) (*models.AgentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session %s not found", id)
	}
	if !CanTransition(sess.Status, status) {
		return nil, apperr.Conflict("illegal transition %s -> %s for session %s", sess.Status, status, id)
	}

	now := s.now().UTC()
	sess.Status = status
	if errorMessage != nil {
		msg := *errorMessage
		sess.ErrorMessage = &msg
	}
	if status == models.StatusCompleted || status == models.StatusError {
		at := now
		sess.CompletedAt = &at
	}
	sess.UpdatedAt = now
	return copySession(sess), nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, id string, task *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return apperr.NotFound("session %s not found", id)
	}
	if task != nil {
		t := *task
		sess.CurrentTask = &t
	}
	sess.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) UpdateMetadata(ctx context.Context, id string, model *string, mode *models.SessionMode, agentType *models.AgentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return apperr.NotFound("session %s not found", id)
	}
	if model != nil {
		sess.Model = *model
	}
	if mode != nil {
		sess.Mode = *mode
	}
	if agentType != nil {
		sess.AgentType = *agentType
	}
	sess.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) Heartbeat(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return apperr.NotFound("session %s not found", id)
	}
	now := s.now().UTC()
	sess.LastHeartbeat = now
	sess.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CleanupStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Add(-olderThan)
	var chatIDs []string
	for id, sess := range s.sessions {
		if sess.Status.IsTerminal() || !sess.LastHeartbeat.Before(cutoff) {
			continue
		}
		chatIDs = append(chatIDs, sess.ChatFileID)
		delete(s.byChat, sess.ChatFileID)
		delete(s.sessions, id)
	}
	return chatIDs, nil
}

func (s *MemoryStore) Stats(ctx context.Context, workspaceID string) (map[models.SessionStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[models.SessionStatus]int64)
	for _, sess := range s.sessions {
		if sess.WorkspaceID == workspaceID {
			stats[sess.Status]++
		}
	}
	return stats, nil
}

func copySession(in *models.AgentSession) *models.AgentSession {
	out := *in
	if in.CurrentTask != nil {
		t := *in.CurrentTask
		out.CurrentTask = &t
	}
	if in.ErrorMessage != nil {
		m := *in.ErrorMessage
		out.ErrorMessage = &m
	}
	if in.CompletedAt != nil {
		at := *in.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}
