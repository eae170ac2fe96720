package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/tools"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

type toolInvokeRequest struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// handleToolInvoke runs a catalog tool directly. Tool failures,
// including unknown names and bad arguments, come back as a failed
// response body with status 200: the endpoint call itself succeeded.
func (s *Server) handleToolInvoke(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	id, ok := s.requireMember(w, r, workspaceID)
	if !ok {
		return
	}

	var req toolInvokeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Tool == "" {
		s.writeError(w, r, apperr.Validation("tool is required"))
		return
	}

	inv := tools.Invocation{
		WorkspaceID: workspaceID,
		UserID:      id.UserID,
		Config:      models.ToolConfig{},
	}
	resp := s.deps.Catalog.Execute(r.Context(), inv, req.Tool, req.Args)
	s.writeJSON(w, http.StatusOK, resp)
}

type toolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	defs := s.deps.Catalog.Defs()
	infos := make([]toolInfo, 0, len(defs))
	for _, d := range defs {
		infos = append(infos, toolInfo{Name: d.Name, Description: d.Description, Schema: d.Schema})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tools": infos})
}

// sessionStatsTTL is how long a stats snapshot stays cached before the
// next request recounts.
const sessionStatsTTL = 10 * time.Second

type sessionStatsResponse struct {
	WorkspaceID string                         `json:"workspace_id"`
	Counts      map[models.SessionStatus]int64 `json:"counts"`
	Total       int64                          `json:"total"`
	GeneratedAt time.Time                      `json:"generated_at"`
}

// handleSessionStats serves a cached per-workspace session census.
func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	cacheKey := "sessions:stats:" + workspaceID
	if s.deps.Cache != nil {
		if cached, ok := s.deps.Cache.Get(cacheKey); ok {
			if snapshot, ok := cached.(sessionStatsResponse); ok {
				s.writeJSON(w, http.StatusOK, snapshot)
				return
			}
		}
	}

	counts, err := s.deps.Sessions.Stats(r.Context(), workspaceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	snapshot := sessionStatsResponse{
		WorkspaceID: workspaceID,
		Counts:      counts,
		Total:       total,
		GeneratedAt: time.Now().UTC(),
	}
	if s.deps.Cache != nil {
		s.deps.Cache.SetEx(cacheKey, snapshot, sessionStatsTTL)
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}
