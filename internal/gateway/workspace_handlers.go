package gateway

import (
	"net/http"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

type workspaceCreateRequest struct {
	Name       string                     `json:"name"`
	Visibility models.WorkspaceVisibility `json:"visibility"`
}

func (s *Server) handleWorkspaceCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		s.writeError(w, r, apperr.Authentication("missing access token"))
		return
	}

	var req workspaceCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Visibility == "" {
		req.Visibility = models.VisibilityPrivate
	}

	workspace, err := s.deps.Identity.CreateWorkspace(r.Context(), id.UserID, req.Name, req.Visibility)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, workspace)
}

func (s *Server) handleWorkspaceList(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		s.writeError(w, r, apperr.Authentication("missing access token"))
		return
	}

	workspaces, err := s.deps.Identity.ListWorkspaces(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"workspaces": workspaces})
}

func (s *Server) handleWorkspaceGet(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	workspace, err := s.deps.Identity.GetWorkspace(r.Context(), workspaceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, workspace)
}

func (s *Server) handleMemberList(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	members, err := s.deps.Identity.ListMembers(r.Context(), workspaceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

type memberAddRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (s *Server) handleMemberAdd(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	var req memberAddRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	member, err := s.deps.Identity.AddMember(r.Context(), workspaceID, req.UserID, req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, member)
}

func (s *Server) handleMemberRemove(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	if err := s.deps.Identity.RemoveMember(r.Context(), workspaceID, r.PathValue("userID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoleList(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	roles, err := s.deps.Identity.ListRoles(r.Context(), workspaceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	id, ok := s.requireMember(w, r, workspaceID)
	if !ok {
		return
	}

	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	invitation, err := s.deps.Identity.Invite(r.Context(), workspaceID, id.UserID, req.Email, req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, invitation)
}

type bulkInviteRequest struct {
	Emails []string `json:"emails"`
	Role   string   `json:"role"`
}

func (s *Server) handleBulkInvite(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	id, ok := s.requireMember(w, r, workspaceID)
	if !ok {
		return
	}

	var req bulkInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	results, err := s.deps.Identity.BulkInvite(r.Context(), workspaceID, id.UserID, req.Emails, req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleInvitationList(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	invitations, err := s.deps.Identity.ListInvitations(r.Context(), workspaceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"invitations": invitations})
}

// handleInvitationRevoke checks the invitation belongs to the path
// workspace before revoking, so members of one workspace cannot revoke
// another's invitations by id.
func (s *Server) handleInvitationRevoke(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	invitationID := r.PathValue("invitationID")
	invitations, err := s.deps.Identity.ListInvitations(r.Context(), workspaceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var target *models.WorkspaceInvitation
	for _, inv := range invitations {
		if inv.ID == invitationID {
			target = inv
			break
		}
	}
	if target == nil {
		s.writeError(w, r, apperr.NotFound("invitation not found: %s", invitationID))
		return
	}

	if err := s.deps.Identity.RevokeInvitation(r.Context(), invitationID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type invitationAcceptRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleInvitationAccept(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r.Context())
	if !ok {
		s.writeError(w, r, apperr.Authentication("missing access token"))
		return
	}

	var req invitationAcceptRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	member, err := s.deps.Identity.AcceptInvitation(r.Context(), req.Token, id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, member)
}
