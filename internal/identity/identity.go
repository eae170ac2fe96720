// Package identity manages users, workspaces, role-based membership, and
// invitations. Registration, workspace creation, and invitation acceptance
// are multi-row writes and run as single transactions in the store.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

const (
	minPasswordLength = 8

	// invitationTTL is how long an invitation stays acceptable.
	invitationTTL = 7 * 24 * time.Hour

	// bulkInviteLimit caps the number of addresses per bulk call.
	bulkInviteLimit = 100
)

// Service implements user and workspace lifecycle on top of a Store.
type Service struct {
	store  Store
	logger *observability.Logger
	now    func() time.Time
}

// NewService builds an identity service.
func NewService(store Store, logger *observability.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Register creates a user account together with their personal workspace,
// its default roles, and the owner membership, all in one transaction.
// A duplicate email fails Conflict and leaves no rows behind.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*models.User, *models.Workspace, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, nil, err
	}
	if len(password) < minPasswordLength {
		return nil, nil, apperr.Validation("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, apperr.Internal("hash password", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ws := &models.Workspace{
		ID:         uuid.NewString(),
		Name:       "Personal",
		OwnerID:    user.ID,
		Visibility: models.VisibilityPrivate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ws.Slug = uniqueSlug(localPart(email), ws.ID)

	roles := defaultRoles(ws.ID)
	member := &models.WorkspaceMember{
		WorkspaceID: ws.ID,
		UserID:      user.ID,
		RoleID:      roleByName(roles, models.RoleOwner).ID,
		CreatedAt:   now,
	}

	if err := s.store.CreateUserWithWorkspace(ctx, user, ws, roles, member); err != nil {
		return nil, nil, err
	}
	s.logger.Info(ctx, "user registered", "user_id", user.ID, "workspace_id", ws.ID)
	return user, ws, nil
}

// Authenticate verifies an email and password pair. Unknown emails and
// wrong passwords fail identically so the response does not reveal which
// addresses have accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Authentication("invalid credentials")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Authentication("invalid credentials")
	}
	return user, nil
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// CreateWorkspace creates a workspace, its default roles, and the owner
// membership in one transaction.
func (s *Service) CreateWorkspace(ctx context.Context, ownerID, name string, visibility models.WorkspaceVisibility) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("workspace name is required")
	}
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}

	now := s.now().UTC()
	ws := &models.Workspace{
		ID:         uuid.NewString(),
		Name:       name,
		OwnerID:    ownerID,
		Visibility: visibility,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ws.Slug = uniqueSlug(name, ws.ID)

	roles := defaultRoles(ws.ID)
	member := &models.WorkspaceMember{
		WorkspaceID: ws.ID,
		UserID:      ownerID,
		RoleID:      roleByName(roles, models.RoleOwner).ID,
		CreatedAt:   now,
	}

	if err := s.store.CreateWorkspace(ctx, ws, roles, member); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "workspace created", "workspace_id", ws.ID, "owner_id", ownerID)
	return ws, nil
}

// GetWorkspace fetches a workspace by ID.
func (s *Service) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	return s.store.GetWorkspace(ctx, id)
}

// ListWorkspaces returns every workspace the user is a member of.
func (s *Service) ListWorkspaces(ctx context.Context, userID string) ([]*models.Workspace, error) {
	return s.store.ListWorkspacesForUser(ctx, userID)
}

// ListMembers returns the members of a workspace.
func (s *Service) ListMembers(ctx context.Context, workspaceID string) ([]*models.WorkspaceMember, error) {
	return s.store.ListMembers(ctx, workspaceID)
}

// ListRoles returns the roles defined in a workspace.
func (s *Service) ListRoles(ctx context.Context, workspaceID string) ([]*models.Role, error) {
	return s.store.ListRoles(ctx, workspaceID)
}

// AddMember adds a user to a workspace under the named role.
func (s *Service) AddMember(ctx context.Context, workspaceID, userID, roleName string) (*models.WorkspaceMember, error) {
	role, err := s.store.GetRoleByName(ctx, workspaceID, roleName)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation("unknown role %q", roleName)
		}
		return nil, err
	}
	member := &models.WorkspaceMember{
		WorkspaceID: workspaceID,
		UserID:      userID,
		RoleID:      role.ID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.AddMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// RemoveMember removes a user from a workspace. The owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws.OwnerID == userID {
		return apperr.Validation("workspace owner cannot be removed")
	}
	return s.store.RemoveMember(ctx, workspaceID, userID)
}

// RequireMember returns the caller's membership in the workspace, or an
// authorization error when there is none.
func (s *Service) RequireMember(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error) {
	member, err := s.store.GetMember(ctx, workspaceID, userID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Authorization("not a workspace member")
		}
		return nil, err
	}
	return member, nil
}

// Invite creates a pending invitation addressed to an email. The returned
// invitation carries the raw token exactly once; only its hash is stored.
func (s *Service) Invite(ctx context.Context, workspaceID, inviterID, email, roleName string) (*models.WorkspaceInvitation, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	role, err := s.store.GetRoleByName(ctx, workspaceID, roleName)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation("unknown role %q", roleName)
		}
		return nil, err
	}

	now := s.now().UTC()
	inv := &models.WorkspaceInvitation{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Email:       email,
		RoleID:      role.ID,
		InvitedBy:   inviterID,
		Token:       newInviteToken(),
		Status:      models.InvitationPending,
		ExpiresAt:   now.Add(invitationTTL),
		CreatedAt:   now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "invitation created", "workspace_id", workspaceID, "invitation_id", inv.ID)
	return inv, nil
}

// InviteResult is the per-address outcome of a bulk invitation.
type InviteResult struct {
	Email      string                      `json:"email"`
	Invitation *models.WorkspaceInvitation `json:"invitation,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// BulkInvite invites up to 100 addresses. Individual failures land in the
// matching result entry instead of aborting the batch.
func (s *Service) BulkInvite(ctx context.Context, workspaceID, inviterID string, emails []string, roleName string) ([]InviteResult, error) {
	if len(emails) > bulkInviteLimit {
		return nil, apperr.Validation("at most %d emails per bulk invite", bulkInviteLimit)
	}
	if _, err := s.store.GetRoleByName(ctx, workspaceID, roleName); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Validation("unknown role %q", roleName)
		}
		return nil, err
	}

	results := make([]InviteResult, 0, len(emails))
	for _, email := range emails {
		result := InviteResult{Email: email}
		inv, err := s.Invite(ctx, workspaceID, inviterID, email, roleName)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Email = inv.Email
			result.Invitation = inv
		}
		results = append(results, result)
	}
	return results, nil
}

// AcceptInvitation redeems a raw invitation token for the given user. The
// status flip and the member insert happen in one transaction. The accepting
// user's email must match the invited address.
func (s *Service) AcceptInvitation(ctx context.Context, rawToken, userID string) (*models.WorkspaceMember, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	inv, err := s.store.GetInvitationByTokenHash(ctx, hashToken(rawToken))
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("invitation not found")
		}
		return nil, err
	}
	if inv.Status != models.InvitationPending {
		return nil, apperr.Conflict("invitation is %s", inv.Status)
	}

	now := s.now().UTC()
	if now.After(inv.ExpiresAt) {
		// Best-effort status flip; the Conflict stands either way.
		if err := s.store.UpdateInvitationStatus(ctx, inv.ID, models.InvitationExpired, now); err != nil {
			s.logger.Warn(ctx, "mark invitation expired", "invitation_id", inv.ID, "error", err)
		}
		return nil, apperr.Conflict("invitation expired")
	}
	if !strings.EqualFold(user.Email, inv.Email) {
		return nil, apperr.Authorization("invitation addressed to a different email")
	}

	member := &models.WorkspaceMember{
		WorkspaceID: inv.WorkspaceID,
		UserID:      userID,
		RoleID:      inv.RoleID,
		CreatedAt:   now,
	}
	if err := s.store.AcceptInvitation(ctx, inv.ID, member, now); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "invitation accepted", "workspace_id", inv.WorkspaceID, "user_id", userID)
	return member, nil
}

// ListInvitations returns a workspace's invitations, newest first.
func (s *Service) ListInvitations(ctx context.Context, workspaceID string) ([]*models.WorkspaceInvitation, error) {
	return s.store.ListInvitations(ctx, workspaceID)
}

// RevokeInvitation withdraws a pending invitation.
func (s *Service) RevokeInvitation(ctx context.Context, invitationID string) error {
	return s.store.UpdateInvitationStatus(ctx, invitationID, models.InvitationRevoked, s.now().UTC())
}

// defaultRoles builds the three roles every workspace starts with.
func defaultRoles(workspaceID string) []*models.Role {
	return []*models.Role{
		{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			Name:        models.RoleOwner,
			Permissions: []string{"*"},
		},
		{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			Name:        models.RoleEditor,
			Permissions: []string{"files:read", "files:write", "chats:read", "chats:write", "tools:execute"},
		},
		{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			Name:        models.RoleViewer,
			Permissions: []string{"files:read", "chats:read"},
		},
	}
}

func roleByName(roles []*models.Role, name string) *models.Role {
	for _, role := range roles {
		if role.Name == name {
			return role
		}
	}
	return nil
}

// normalizeEmail lowercases and trims an address and rejects shapes that
// cannot be delivered to.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return "", apperr.Validation("invalid email address")
	}
	return email, nil
}

func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

// uniqueSlug derives a URL-safe slug from the name, suffixed with a slice
// of the workspace ID because slugs are globally unique.
func uniqueSlug(name, workspaceID string) string {
	base := slugify(name)
	if base == "" {
		base = "workspace"
	}
	suffix := workspaceID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return base + "-" + suffix
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// newInviteToken returns a 32-byte random token, hex encoded.
func newInviteToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// hashToken is the at-rest form of an invitation token.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
