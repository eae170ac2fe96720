package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenFromRequestPriority(t *testing.T) {
	// Header and cookie both present: the header wins.
	r := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "cookie-token"})

	if got := TokenFromRequest(r); got != "header-token" {
		t.Fatalf("TokenFromRequest() = %q, want header token", got)
	}
}

func TestTokenFromRequestCookieFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", nil)
	r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "cookie-token"})

	if got := TokenFromRequest(r); got != "cookie-token" {
		t.Fatalf("TokenFromRequest() = %q, want cookie token", got)
	}
}

func TestTokenFromRequestEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", nil)
	if got := TokenFromRequest(r); got != "" {
		t.Fatalf("TokenFromRequest() = %q, want empty", got)
	}

	// A non-bearer Authorization header is ignored.
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := TokenFromRequest(r); got != "" {
		t.Fatalf("TokenFromRequest() with basic auth = %q, want empty", got)
	}
}

func TestSetAndClearCookies(t *testing.T) {
	w := httptest.NewRecorder()
	SetCookies(w, &TokenPair{AccessToken: "a", RefreshToken: "r"}, 900, 2592000, false)

	cookies := w.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("SetCookies() wrote %d cookies, want 2", len(cookies))
	}
	for _, c := range cookies {
		if !c.HttpOnly || c.Path != "/" || c.SameSite != http.SameSiteLaxMode {
			t.Fatalf("cookie %s = %+v, want HttpOnly Path=/ SameSite=Lax", c.Name, c)
		}
	}

	w = httptest.NewRecorder()
	ClearCookies(w, false)
	for _, c := range w.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			t.Fatalf("ClearCookies() left %s alive: %+v", c.Name, c)
		}
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithIdentity(r.Context(), &Identity{UserID: "u-1", Email: "a@b.c"})

	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID != "u-1" {
		t.Fatalf("IdentityFromContext() = %+v, %v; want u-1", id, ok)
	}

	if _, ok := IdentityFromContext(r.Context()); ok {
		t.Fatal("IdentityFromContext() on bare context should miss")
	}
}
