package blob

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory blob store for tests and the in-memory
// VFS stack.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Write(ctx context.Context, workspaceID, path string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, len(content))
	copy(data, content)
	s.blobs[key(workspaceID, path)] = data
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, workspaceID, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key(workspaceID, path)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, workspaceID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key(workspaceID, path))
	return nil
}

func (s *MemoryStore) Move(ctx context.Context, workspaceID, oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldKey := key(workspaceID, oldPath)
	if data, ok := s.blobs[oldKey]; ok {
		s.blobs[key(workspaceID, newPath)] = data
		delete(s.blobs, oldKey)
		return nil
	}

	// Folder move: rewrite every key under the old prefix.
	oldPrefix := oldKey + "/"
	newPrefix := key(workspaceID, newPath) + "/"
	for k, data := range s.blobs {
		if strings.HasPrefix(k, oldPrefix) {
			s.blobs[newPrefix+strings.TrimPrefix(k, oldPrefix)] = data
			delete(s.blobs, k)
		}
	}
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, workspaceID, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key(workspaceID, path)]
	return ok, nil
}

// Close releases resources.
func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func key(workspaceID, path string) string {
	return workspaceID + "/" + strings.TrimPrefix(path, "/")
}
