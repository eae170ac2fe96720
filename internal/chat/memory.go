package chat

import (
	"context"
	"sync"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// MemoryStore is an in-memory message log for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]*models.ChatMessage // by chat file id, seq order
}

// NewMemoryStore returns an empty in-memory message log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]*models.ChatMessage)}
}

func (s *MemoryStore) Append(ctx context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.messages[msg.ChatFileID]
	msg.Seq = int64(len(log)) + 1
	cp := *msg
	s.messages[msg.ChatFileID] = append(log, &cp)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, workspaceID, chatFileID string, opts ListOptions) ([]*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var window []*models.ChatMessage
	for _, m := range s.messages[chatFileID] {
		if m.WorkspaceID != workspaceID {
			continue
		}
		if opts.BeforeSeq > 0 && m.Seq >= opts.BeforeSeq {
			continue
		}
		window = append(window, m)
	}
	if len(window) > limit {
		window = window[len(window)-limit:]
	}

	out := make([]*models.ChatMessage, len(window))
	for i, m := range window {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) LatestUserMessage(ctx context.Context, workspaceID, chatFileID string) (*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[chatFileID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].WorkspaceID == workspaceID && log[i].Role == models.RoleUser {
			cp := *log[i]
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("chat has no user message")
}

func (s *MemoryStore) Count(ctx context.Context, workspaceID, chatFileID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.messages[chatFileID] {
		if m.WorkspaceID == workspaceID {
			n++
		}
	}
	return n, nil
}
