package gateway

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/quanhua92/buildscale-ai-sub000/internal/agent"
	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/auth"
	"github.com/quanhua92/buildscale-ai-sub000/internal/chat"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// cancelAckTimeout bounds the wait for an actor to accept a
// cancellation. Acceptance is immediate unless the actor is wedged.
const cancelAckTimeout = 5 * time.Second

type chatCreateRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleChatCreate(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	id, ok := s.requireMember(w, r, workspaceID)
	if !ok {
		return
	}

	var req chatCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	file, err := s.deps.Files.CreateVirtual(r.Context(), workspaceID, req.Path, models.FileTypeChat, id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, file)
}

// chatFromRequest resolves the {id} path value to a chat file and
// verifies the caller's membership in its workspace. Failures are
// already written when ok is false.
func (s *Server) chatFromRequest(w http.ResponseWriter, r *http.Request) (*models.File, *auth.Identity, bool) {
	file, err := s.deps.Files.Locate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, nil, false
	}
	if file.FileType != models.FileTypeChat {
		s.writeError(w, r, apperr.InvalidKind("file is not a chat: %s", file.Path))
		return nil, nil, false
	}
	id, ok := s.requireMember(w, r, file.WorkspaceID)
	if !ok {
		return nil, nil, false
	}
	return file, id, true
}

func (s *Server) handleMessageList(w http.ResponseWriter, r *http.Request) {
	file, _, ok := s.chatFromRequest(w, r)
	if !ok {
		return
	}

	var opts chat.ListOptions
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, apperr.Validation("limit must be a positive integer"))
			return
		}
		opts.Limit = n
	}
	if raw := r.URL.Query().Get("before_seq"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			s.writeError(w, r, apperr.Validation("before_seq must be a positive integer"))
			return
		}
		opts.BeforeSeq = n
	}

	messages, err := s.deps.Messages.List(r.Context(), file.WorkspaceID, file.ID, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type messagePostRequest struct {
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
	Mode      string `json:"mode,omitempty"`
	AgentType string `json:"agent_type,omitempty"`
}

type messagePostResponse struct {
	Message *models.ChatMessage  `json:"message"`
	Session *models.AgentSession `json:"session"`
}

// handleMessagePost binds or resets the chat's session, persists the
// user message, and hands the turn to the chat's actor. The reply
// streams over the event channel, not this response.
func (s *Server) handleMessagePost(w http.ResponseWriter, r *http.Request) {
	file, id, ok := s.chatFromRequest(w, r)
	if !ok {
		return
	}

	var req messagePostRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Content == "" {
		s.writeError(w, r, apperr.Validation("content is required"))
		return
	}
	mode, agentType, err := parseSessionSelectors(req.Mode, req.AgentType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := s.bindSession(r, file, id.UserID, req.Model, mode, agentType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msg := &models.ChatMessage{
		ID:          uuid.NewString(),
		WorkspaceID: file.WorkspaceID,
		ChatFileID:  file.ID,
		UserID:      &id.UserID,
		Role:        models.RoleUser,
		Content:     req.Content,
	}
	if err := s.deps.Messages.Append(r.Context(), msg); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.deps.Agents.GetOrSpawn(file.ID, agent.SpawnArgs{
		WorkspaceID: file.WorkspaceID,
		AgentType:   session.AgentType,
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Agents.Send(file.ID, agent.ProcessInteraction{UserID: id.UserID}); err != nil {
		s.writeError(w, r, mapSendErr(err))
		return
	}

	s.writeJSON(w, http.StatusAccepted, messagePostResponse{Message: msg, Session: session})
}

// bindSession finds or prepares the chat's session for a new
// interaction: absent and terminal sessions become a fresh Idle row,
// paused sessions resume to Idle, idle sessions are reused with any
// requested metadata applied, and running sessions refuse.
func (s *Server) bindSession(r *http.Request, file *models.File, userID, model string, mode *models.SessionMode, agentType *models.AgentType) (*models.AgentSession, error) {
	ctx := r.Context()

	session, err := s.deps.Sessions.GetByChatFile(ctx, file.ID)
	if err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	if err != nil || session.Status.IsTerminal() {
		next := &models.AgentSession{
			ID:          uuid.NewString(),
			WorkspaceID: file.WorkspaceID,
			ChatFileID:  file.ID,
			UserID:      userID,
			AgentType:   models.AgentAssistant,
			Model:       s.defaultModel(),
			Mode:        models.ModeChat,
		}
		if model != "" {
			next.Model = model
		}
		if mode != nil {
			next.Mode = *mode
		}
		if agentType != nil {
			next.AgentType = *agentType
		}
		return s.deps.Sessions.GetOrCreate(ctx, next)
	}

	switch session.Status {
	case models.StatusRunning:
		return nil, apperr.Conflict("agent is busy on chat %s", file.ID)
	case models.StatusPaused:
		if session, err = s.deps.Sessions.UpdateStatus(ctx, session.ID, models.StatusIdle, nil); err != nil {
			return nil, err
		}
	}

	var newModel *string
	if model != "" && model != session.Model {
		newModel = &model
	}
	var newMode *models.SessionMode
	if mode != nil && *mode != session.Mode {
		newMode = mode
	}
	var newType *models.AgentType
	if agentType != nil && *agentType != session.AgentType {
		newType = agentType
	}
	if newModel != nil || newMode != nil || newType != nil {
		if err := s.deps.Sessions.UpdateMetadata(ctx, session.ID, newModel, newMode, newType); err != nil {
			return nil, err
		}
		if session, err = s.deps.Sessions.Get(ctx, session.ID); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// defaultModel derives the "provider:model" identifier from the
// configured default provider.
func (s *Server) defaultModel() string {
	llmCfg := s.deps.Config.LLM
	provider := llmCfg.DefaultProvider
	model := llmCfg.Providers[provider].DefaultModel
	return fmt.Sprintf("%s:%s", provider, model)
}

func parseSessionSelectors(rawMode, rawType string) (*models.SessionMode, *models.AgentType, error) {
	var mode *models.SessionMode
	switch models.SessionMode(rawMode) {
	case "":
	case models.ModeChat, models.ModePlan, models.ModeBuild:
		m := models.SessionMode(rawMode)
		mode = &m
	default:
		return nil, nil, apperr.Validation("unknown mode: %s", rawMode)
	}

	var agentType *models.AgentType
	switch models.AgentType(rawType) {
	case "":
	case models.AgentAssistant, models.AgentPlanner, models.AgentBuilder:
		t := models.AgentType(rawType)
		agentType = &t
	default:
		return nil, nil, apperr.Validation("unknown agent type: %s", rawType)
	}
	return mode, agentType, nil
}

func mapSendErr(err error) error {
	switch err {
	case agent.ErrBusy:
		return apperr.Conflict("agent mailbox is full, retry shortly")
	case agent.ErrNoActor:
		return apperr.Conflict("agent is restarting, retry shortly")
	default:
		return err
	}
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// handleChatCancel asks the chat's actor to stop the current turn.
// A chat with no live actor has nothing to cancel and reports idle.
func (s *Server) handleChatCancel(w http.ResponseWriter, r *http.Request) {
	file, _, ok := s.chatFromRequest(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil && r.ContentLength > 0 {
		s.writeError(w, r, err)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by user"
	}

	ack := make(chan error, 1)
	err := s.deps.Agents.Send(file.ID, agent.Cancel{Reason: reason, Responder: ack})
	if err == agent.ErrNoActor {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}
	if err != nil {
		s.writeError(w, r, mapSendErr(err))
		return
	}

	select {
	case <-ack:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	case <-time.After(cancelAckTimeout):
		s.writeError(w, r, apperr.Conflict("cancellation not acknowledged, actor is busy"))
	case <-r.Context().Done():
	}
}
