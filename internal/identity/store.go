package identity

import (
	"context"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Store persists users, workspaces, roles, members, and invitations.
//
// The composite methods (CreateUserWithWorkspace, CreateWorkspace,
// AcceptInvitation) are transactional: either every row lands or none does.
type Store interface {
	// CreateUserWithWorkspace inserts the user, their personal workspace,
	// its default roles, and the owner membership in one transaction.
	// A duplicate email fails Conflict without inserting anything.
	CreateUserWithWorkspace(ctx context.Context, user *models.User, ws *models.Workspace, roles []*models.Role, member *models.WorkspaceMember) error

	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// CreateWorkspace inserts the workspace, its default roles, and the
	// owner membership in one transaction.
	CreateWorkspace(ctx context.Context, ws *models.Workspace, roles []*models.Role, member *models.WorkspaceMember) error

	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)
	ListWorkspacesForUser(ctx context.Context, userID string) ([]*models.Workspace, error)

	GetRoleByName(ctx context.Context, workspaceID, name string) (*models.Role, error)
	ListRoles(ctx context.Context, workspaceID string) ([]*models.Role, error)

	AddMember(ctx context.Context, member *models.WorkspaceMember) error
	RemoveMember(ctx context.Context, workspaceID, userID string) error
	GetMember(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error)
	ListMembers(ctx context.Context, workspaceID string) ([]*models.WorkspaceMember, error)

	// CreateInvitation stores the invitation. Only the sha256 hash of
	// inv.Token is persisted. A second pending invitation for the same
	// workspace and email fails AlreadyExists.
	CreateInvitation(ctx context.Context, inv *models.WorkspaceInvitation) error

	GetInvitationByTokenHash(ctx context.Context, tokenHash string) (*models.WorkspaceInvitation, error)
	ListInvitations(ctx context.Context, workspaceID string) ([]*models.WorkspaceInvitation, error)

	// UpdateInvitationStatus moves a pending invitation to the given
	// status. Non-pending invitations fail Conflict.
	UpdateInvitationStatus(ctx context.Context, id string, status models.InvitationStatus, at time.Time) error

	// AcceptInvitation flips the pending invitation to accepted and
	// inserts the membership in one transaction.
	AcceptInvitation(ctx context.Context, invitationID string, member *models.WorkspaceMember, at time.Time) error
}
