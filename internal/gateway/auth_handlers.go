package gateway

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/auth"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// Login throttling: after loginMaxFailures failed attempts for the
// same email+address pair within loginFailureWindow, logins are
// rejected until the window expires.
const (
	loginMaxFailures   = 10
	loginFailureWindow = 15 * time.Minute
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type registerResponse struct {
	User      *models.User      `json:"user"`
	Workspace *models.Workspace `json:"workspace"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, workspace, err := s.deps.Identity.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, registerResponse{User: user, Workspace: workspace})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User *models.User `json:"user"`
	*auth.TokenPair
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	throttleKey := loginThrottleKey(req.Email, r.RemoteAddr)
	if s.loginThrottled(throttleKey) {
		s.writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error: "too many failed login attempts, try again later",
			Code:  "rate_limited",
		})
		return
	}

	user, err := s.deps.Identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if apperr.IsKind(err, apperr.KindAuthentication) {
			s.recordLoginFailure(throttleKey)
		}
		s.writeError(w, r, err)
		return
	}

	pair, err := s.deps.Auth.IssueTokens(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.clearLoginFailures(throttleKey)
	s.setAuthCookies(w, pair)
	s.writeJSON(w, http.StatusOK, loginResponse{User: user, TokenPair: pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	presented := s.refreshTokenFrom(r)
	if presented == "" {
		s.writeError(w, r, apperr.Authentication("missing refresh token"))
		return
	}

	pair, user, err := s.deps.Auth.Refresh(r.Context(), presented)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setAuthCookies(w, pair)
	s.writeJSON(w, http.StatusOK, loginResponse{User: user, TokenPair: pair})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if presented := s.refreshTokenFrom(r); presented != "" {
		if err := s.deps.Auth.Revoke(r.Context(), presented); err != nil {
			s.deps.Logger.Warn(r.Context(), "logout revoke failed", "error", err)
		}
	}
	s.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// refreshTokenFrom reads the refresh token from the body when present,
// otherwise from the cookie. Body decoding failures fall back to the
// cookie so a bare POST still works.
func (s *Server) refreshTokenFrom(r *http.Request) string {
	var req refreshRequest
	if err := decodeJSON(r, &req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	if c, err := r.Cookie(refreshCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) setAuthCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	secure := s.deps.Config.Server.IsProduction()
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(s.deps.Auth.AccessTokenTTL().Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   int(s.deps.Auth.RefreshTokenTTL().Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	secure := s.deps.Config.Server.IsProduction()
	for _, name := range []string{accessCookie, refreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func loginThrottleKey(email, remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return fmt.Sprintf("login:failures:%s:%s", email, host)
}

func (s *Server) loginThrottled(key string) bool {
	if s.deps.Cache == nil {
		return false
	}
	n, _ := s.deps.Cache.Get(key)
	count, _ := n.(int)
	return count >= loginMaxFailures
}

func (s *Server) recordLoginFailure(key string) {
	if s.deps.Cache == nil {
		return
	}
	count := 0
	if n, ok := s.deps.Cache.Get(key); ok {
		count, _ = n.(int)
	}
	s.deps.Cache.SetEx(key, count+1, loginFailureWindow)
}

func (s *Server) clearLoginFailures(key string) {
	if s.deps.Cache == nil {
		return
	}
	s.deps.Cache.Delete(key)
}
