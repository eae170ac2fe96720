package auth

import (
	"net/http"
	"strings"
)

// TokenFromRequest extracts the access token from a request. A Bearer
// Authorization header wins over the access_token cookie, so API clients
// can override a stale browser session.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		if token := strings.TrimSpace(header[len("bearer "):]); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(AccessCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// RefreshTokenFromRequest extracts the refresh token: the JSON body is the
// API transport, but browser clients rely on the cookie. The caller decodes
// the body; this helper only reads the cookie fallback.
func RefreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
