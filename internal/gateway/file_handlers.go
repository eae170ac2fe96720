package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/vfs"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	path := r.URL.Query().Get("path")
	recursive := r.URL.Query().Get("recursive") == "true"

	entries, err := s.deps.Files.List(r.Context(), workspaceID, path, recursive)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type fileReadResponse struct {
	File      *models.File `json:"file"`
	Content   string       `json:"content"`
	VersionID int64        `json:"version_id"`
	Hash      string       `json:"hash"`
}

// handleFileRead returns a file with its latest content and hash. The
// hash is the compare-and-swap handle subsequent edits present.
func (s *Server) handleFileRead(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, r, apperr.Validation("path query parameter is required"))
		return
	}

	file, err := s.deps.Files.Resolve(r.Context(), workspaceID, path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if file.IsFolder() {
		s.writeError(w, r, apperr.InvalidKind("folders have no content: %s", file.Path))
		return
	}

	content, versionID, err := s.deps.Files.LatestContent(r.Context(), file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fileReadResponse{
		File:      file,
		Content:   content,
		VersionID: versionID,
		Hash:      vfs.HashContent(content),
	})
}

type fileWriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type fileWriteResponse struct {
	File    *models.File        `json:"file"`
	Version *models.FileVersion `json:"version"`
}

func (s *Server) handleFileWrite(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	id, ok := s.requireMember(w, r, workspaceID)
	if !ok {
		return
	}

	var req fileWriteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	file, version, err := s.deps.Files.Write(r.Context(), workspaceID, req.Path, req.Content, id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fileWriteResponse{File: file, Version: version})
}

type fileEditRequest struct {
	Path          string `json:"path"`
	Old           string `json:"old,omitempty"`
	New           string `json:"new,omitempty"`
	InsertLine    *int   `json:"insert_line,omitempty"`
	InsertContent string `json:"insert_content,omitempty"`
	LastReadHash  string `json:"last_read_hash,omitempty"`
}

func (s *Server) handleFileEdit(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	id, ok := s.requireMember(w, r, workspaceID)
	if !ok {
		return
	}

	var req fileEditRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	op := vfs.EditOp{
		Old:           req.Old,
		New:           req.New,
		InsertLine:    req.InsertLine,
		InsertContent: req.InsertContent,
	}
	version, err := s.deps.Files.Edit(r.Context(), workspaceID, req.Path, op, id.UserID, req.LastReadHash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"version": version})
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, r, apperr.Validation("path query parameter is required"))
		return
	}

	deleted, err := s.deps.Files.Remove(r.Context(), workspaceID, path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

type fileMoveRequest struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func (s *Server) handleFileMove(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	var req fileMoveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	file, err := s.deps.Files.Move(r.Context(), workspaceID, req.Src, req.Dst)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, file)
}

type fileMkdirRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleFileMkdir(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	id, ok := s.requireMember(w, r, workspaceID)
	if !ok {
		return
	}

	var req fileMkdirRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	folder, err := s.deps.Files.Mkdir(r.Context(), workspaceID, req.Path, id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, folder)
}

// versionSummary is a history row without the full content, so deep
// histories stay cheap to return.
type versionSummary struct {
	ID        int64     `json:"id"`
	Branch    string    `json:"branch"`
	Hash      string    `json:"hash"`
	Size      int       `json:"size"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleFileHistory(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	if _, ok := s.requireMember(w, r, workspaceID); !ok {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, r, apperr.Validation("path query parameter is required"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	versions, err := s.deps.Files.History(r.Context(), workspaceID, path, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summaries := make([]versionSummary, 0, len(versions))
	for _, v := range versions {
		summaries = append(summaries, versionSummary{
			ID:        v.ID,
			Branch:    v.Branch,
			Hash:      v.Hash,
			Size:      len(v.Content),
			AuthorID:  v.AuthorID,
			CreatedAt: v.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"versions": summaries})
}
