package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// MemoryStore is an in-memory identity store for tests.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*models.User // by user id
	workspaces  map[string]*models.Workspace
	roles       map[string]*models.Role
	members     map[string]*models.WorkspaceMember     // by workspaceID+"/"+userID
	invitations map[string]*models.WorkspaceInvitation // by invitation id
	tokenIndex  map[string]string                      // token hash -> invitation id
}

// NewMemoryStore returns an empty in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*models.User),
		workspaces:  make(map[string]*models.Workspace),
		roles:       make(map[string]*models.Role),
		members:     make(map[string]*models.WorkspaceMember),
		invitations: make(map[string]*models.WorkspaceInvitation),
		tokenIndex:  make(map[string]string),
	}
}

func memberKey(workspaceID, userID string) string {
	return workspaceID + "/" + userID
}

func (s *MemoryStore) CreateUserWithWorkspace(ctx context.Context, user *models.User, ws *models.Workspace, roles []*models.Role, member *models.WorkspaceMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return apperr.Conflict("email already registered")
		}
	}
	s.users[user.ID] = copyUser(user)
	return s.insertWorkspaceLocked(ws, roles, member)
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return copyUser(u), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (s *MemoryStore) CreateWorkspace(ctx context.Context, ws *models.Workspace, roles []*models.Role, member *models.WorkspaceMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertWorkspaceLocked(ws, roles, member)
}

func (s *MemoryStore) insertWorkspaceLocked(ws *models.Workspace, roles []*models.Role, member *models.WorkspaceMember) error {
	for _, existing := range s.workspaces {
		if existing.Slug == ws.Slug {
			return apperr.AlreadyExists("workspace slug already taken: %s", ws.Slug)
		}
	}
	cp := *ws
	s.workspaces[ws.ID] = &cp
	for _, role := range roles {
		rc := *role
		s.roles[role.ID] = &rc
	}
	mc := *member
	s.members[memberKey(member.WorkspaceID, member.UserID)] = &mc
	return nil
}

func (s *MemoryStore) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, apperr.NotFound("workspace not found")
	}
	cp := *ws
	return &cp, nil
}

func (s *MemoryStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Workspace
	for _, m := range s.members {
		if m.UserID != userID {
			continue
		}
		if ws, ok := s.workspaces[m.WorkspaceID]; ok {
			cp := *ws
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetRoleByName(ctx context.Context, workspaceID, name string) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if role.WorkspaceID == workspaceID && role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("role not found: %s", name)
}

func (s *MemoryStore) ListRoles(ctx context.Context, workspaceID string) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Role
	for _, role := range s.roles {
		if role.WorkspaceID == workspaceID {
			cp := *role
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) AddMember(ctx context.Context, member *models.WorkspaceMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(member.WorkspaceID, member.UserID)
	if _, ok := s.members[key]; ok {
		return apperr.AlreadyExists("user is already a member")
	}
	cp := *member
	s.members[key] = &cp
	return nil
}

func (s *MemoryStore) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(workspaceID, userID)
	if _, ok := s.members[key]; !ok {
		return apperr.NotFound("member not found")
	}
	delete(s.members, key)
	return nil
}

func (s *MemoryStore) GetMember(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey(workspaceID, userID)]
	if !ok {
		return nil, apperr.NotFound("member not found")
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMembers(ctx context.Context, workspaceID string) ([]*models.WorkspaceMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.WorkspaceMember
	for _, m := range s.members {
		if m.WorkspaceID == workspaceID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateInvitation(ctx context.Context, inv *models.WorkspaceInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invitations {
		if existing.WorkspaceID == inv.WorkspaceID && existing.Email == inv.Email && existing.Status == models.InvitationPending {
			return apperr.AlreadyExists("invitation already pending for %s", inv.Email)
		}
	}
	cp := *inv
	cp.Token = "" // only the hash is kept, as in the SQL store
	s.invitations[inv.ID] = &cp
	s.tokenIndex[hashToken(inv.Token)] = inv.ID
	return nil
}

func (s *MemoryStore) GetInvitationByTokenHash(ctx context.Context, tokenHash string) (*models.WorkspaceInvitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokenIndex[tokenHash]
	if !ok {
		return nil, apperr.NotFound("invitation not found")
	}
	inv := s.invitations[id]
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) ListInvitations(ctx context.Context, workspaceID string) ([]*models.WorkspaceInvitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.WorkspaceInvitation
	for _, inv := range s.invitations {
		if inv.WorkspaceID == workspaceID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateInvitationStatus(ctx context.Context, id string, status models.InvitationStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return apperr.NotFound("invitation not found")
	}
	if inv.Status != models.InvitationPending {
		return apperr.Conflict("invitation is not pending")
	}
	inv.Status = status
	return nil
}

func (s *MemoryStore) AcceptInvitation(ctx context.Context, invitationID string, member *models.WorkspaceMember, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return apperr.NotFound("invitation not found")
	}
	if inv.Status != models.InvitationPending {
		return apperr.Conflict("invitation is not pending")
	}
	inv.Status = models.InvitationAccepted
	key := memberKey(member.WorkspaceID, member.UserID)
	if _, exists := s.members[key]; !exists {
		cp := *member
		s.members[key] = &cp
	}
	return nil
}

func copyUser(u *models.User) *models.User {
	cp := *u
	return &cp
}
