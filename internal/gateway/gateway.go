// Package gateway is the HTTP surface of the workbench. It terminates
// auth, enforces workspace membership, and translates requests into
// calls on the identity, filesystem, chat, tool, and agent services.
// Live turn output reaches clients over SSE and WebSocket streams fed
// by the agent event bus.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quanhua92/buildscale-ai-sub000/internal/agent"
	"github.com/quanhua92/buildscale-ai-sub000/internal/auth"
	"github.com/quanhua92/buildscale-ai-sub000/internal/cache"
	"github.com/quanhua92/buildscale-ai-sub000/internal/chat"
	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/identity"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/internal/sessions"
	"github.com/quanhua92/buildscale-ai-sub000/internal/tools"
	"github.com/quanhua92/buildscale-ai-sub000/internal/vfs"
)

// Deps is the full service surface the HTTP layer runs against.
type Deps struct {
	Identity *identity.Service
	Auth     *auth.Service
	Files    *vfs.Service
	Messages chat.Store
	Sessions sessions.Store
	Catalog  *tools.Registry
	Agents   *agent.Registry
	Cache    *cache.Cache
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Config   *config.Config
}

// Server owns the HTTP listener and the route table.
type Server struct {
	deps Deps

	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds the server. Start binds the listener.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}
	s.httpServer = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the fully assembled route tree. Exposed for tests
// that drive the server through httptest instead of a real listener.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Addr returns the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.deps.Config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error(ctx, "http server error", "error", err)
		}
	}()

	s.deps.Logger.Info(ctx, "http server started", "addr", listener.Addr().String())
	return nil
}

// Shutdown drains in-flight requests, then closes the agent registry
// so running turns finish or are torn down within the deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("http shutdown: %w", err)
	}
	if s.deps.Agents != nil {
		if err := s.deps.Agents.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("agent shutdown: %w", err)
		}
	}
	return firstErr
}

// handler assembles the route table. Protected routes run behind the
// auth middleware; workspace and chat handlers additionally verify
// membership against the resource's workspace.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/v1/auth/logout", s.handleLogout)

	protect := func(h http.HandlerFunc) http.Handler { return s.requireAuth(h) }

	mux.Handle("POST /api/v1/workspaces", protect(s.handleWorkspaceCreate))
	mux.Handle("GET /api/v1/workspaces", protect(s.handleWorkspaceList))
	mux.Handle("GET /api/v1/workspaces/{id}", protect(s.handleWorkspaceGet))
	mux.Handle("GET /api/v1/workspaces/{id}/members", protect(s.handleMemberList))
	mux.Handle("POST /api/v1/workspaces/{id}/members", protect(s.handleMemberAdd))
	mux.Handle("DELETE /api/v1/workspaces/{id}/members/{userID}", protect(s.handleMemberRemove))
	mux.Handle("GET /api/v1/workspaces/{id}/roles", protect(s.handleRoleList))
	mux.Handle("POST /api/v1/workspaces/{id}/invitations", protect(s.handleInvite))
	mux.Handle("POST /api/v1/workspaces/{id}/invitations/bulk", protect(s.handleBulkInvite))
	mux.Handle("GET /api/v1/workspaces/{id}/invitations", protect(s.handleInvitationList))
	mux.Handle("DELETE /api/v1/workspaces/{id}/invitations/{invitationID}", protect(s.handleInvitationRevoke))
	mux.Handle("POST /api/v1/invitations/accept", protect(s.handleInvitationAccept))

	mux.Handle("GET /api/v1/workspaces/{id}/files", protect(s.handleFileList))
	mux.Handle("GET /api/v1/workspaces/{id}/files/content", protect(s.handleFileRead))
	mux.Handle("PUT /api/v1/workspaces/{id}/files/content", protect(s.handleFileWrite))
	mux.Handle("POST /api/v1/workspaces/{id}/files/edit", protect(s.handleFileEdit))
	mux.Handle("DELETE /api/v1/workspaces/{id}/files", protect(s.handleFileDelete))
	mux.Handle("POST /api/v1/workspaces/{id}/files/move", protect(s.handleFileMove))
	mux.Handle("POST /api/v1/workspaces/{id}/files/mkdir", protect(s.handleFileMkdir))
	mux.Handle("GET /api/v1/workspaces/{id}/files/history", protect(s.handleFileHistory))

	mux.Handle("POST /api/v1/workspaces/{id}/tools", protect(s.handleToolInvoke))
	mux.Handle("GET /api/v1/workspaces/{id}/tools", protect(s.handleToolList))
	mux.Handle("GET /api/v1/workspaces/{id}/sessions/stats", protect(s.handleSessionStats))

	mux.Handle("POST /api/v1/workspaces/{id}/chats", protect(s.handleChatCreate))
	mux.Handle("GET /api/v1/chats/{id}/messages", protect(s.handleMessageList))
	mux.Handle("POST /api/v1/chats/{id}/messages", protect(s.handleMessagePost))
	mux.Handle("POST /api/v1/chats/{id}/cancel", protect(s.handleChatCancel))
	mux.Handle("GET /api/v1/chats/{id}/events", protect(s.handleEventStream))
	mux.Handle("GET /api/v1/chats/{id}/events/ws", protect(s.handleEventSocket))

	return s.logRequests(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
