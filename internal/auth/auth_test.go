package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

type fakeUserSource map[string]*models.User

func (f fakeUserSource) GetUser(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user not found")
}

func newTestAuth(t *testing.T) (*Service, *MemoryTokenStore) {
	t.Helper()
	cfg := config.AuthConfig{
		JWTSecret:       "test-jwt-secret",
		RefreshSecret:   "test-refresh-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	}
	store := NewMemoryTokenStore()
	users := fakeUserSource{"u-1": {ID: "u-1", Email: "alice@example.com"}}
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	return NewService(cfg, store, users, logger), store
}

func TestIssueAndValidateAccessToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	pair, err := svc.IssueTokens(ctx, &models.User{ID: "u-1", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("IssueTokens() error = %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("IssueTokens() = %+v, want both tokens", pair)
	}

	id, err := svc.ValidateAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess() error = %v", err)
	}
	if id.UserID != "u-1" || id.Email != "alice@example.com" {
		t.Fatalf("identity = %+v, want u-1/alice", id)
	}
}

func TestValidateAccessRejectsGarbage(t *testing.T) {
	svc, _ := newTestAuth(t)

	for _, token := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		if _, err := svc.ValidateAccess(token); !apperr.IsKind(err, apperr.KindInvalidToken) {
			t.Fatalf("ValidateAccess(%q) error = %v, want invalid_token", token, err)
		}
	}
}

func TestValidateAccessExpired(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	base := time.Now().UTC()
	svc.jwt.now = func() time.Time { return base }

	pair, err := svc.IssueTokens(ctx, &models.User{ID: "u-1", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("IssueTokens() error = %v", err)
	}

	svc.jwt.now = func() time.Time { return base.Add(16 * time.Minute) }

	_, err = svc.ValidateAccess(pair.AccessToken)
	if !apperr.IsKind(err, apperr.KindSessionExpired) {
		t.Fatalf("ValidateAccess() error = %v, want session_expired", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	first, err := svc.IssueTokens(ctx, &models.User{ID: "u-1", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("IssueTokens() error = %v", err)
	}

	second, user, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if user.ID != "u-1" {
		t.Fatalf("Refresh() user = %q, want u-1", user.ID)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("Refresh() did not rotate the refresh token")
	}

	// The old token is dead after rotation.
	if _, _, err := svc.Refresh(ctx, first.RefreshToken); !apperr.IsKind(err, apperr.KindInvalidToken) {
		t.Fatalf("Refresh() with rotated-out token error = %v, want invalid_token", err)
	}

	// The new one works.
	if _, _, err := svc.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("Refresh() with new token error = %v", err)
	}
}

func TestRefreshRejectsForgery(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	pair, err := svc.IssueTokens(ctx, &models.User{ID: "u-1", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("IssueTokens() error = %v", err)
	}

	// Flip the signature half: the HMAC check must fail before any lookup.
	body := pair.RefreshToken[:refreshBodyLen]
	forged := body + "." + "0000000000000000000000000000000000000000000000000000000000000000"
	if _, _, err := svc.Refresh(ctx, forged); !apperr.IsKind(err, apperr.KindInvalidToken) {
		t.Fatalf("Refresh(forged) error = %v, want invalid_token", err)
	}
}

func TestRefreshRejectsLegacyUUID(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	_, _, err := svc.Refresh(ctx, "2b03c17c-98f1-4b91-a3a7-1f39f1bd821e")
	if !apperr.IsKind(err, apperr.KindInvalidToken) {
		t.Fatalf("Refresh(uuid) error = %v, want invalid_token", err)
	}
}

func TestRefreshExpiredStoredToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	base := time.Now().UTC()
	svc.now = func() time.Time { return base }

	pair, err := svc.IssueTokens(ctx, &models.User{ID: "u-1", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("IssueTokens() error = %v", err)
	}

	svc.now = func() time.Time { return base.Add(31 * 24 * time.Hour) }

	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !apperr.IsKind(err, apperr.KindSessionExpired) {
		t.Fatalf("Refresh() expired error = %v, want session_expired", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	pair, err := svc.IssueTokens(ctx, &models.User{ID: "u-1", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("IssueTokens() error = %v", err)
	}

	if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := svc.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}
	// Garbage values are swallowed: logout never fails the caller.
	if err := svc.Revoke(ctx, "garbage"); err != nil {
		t.Fatalf("Revoke(garbage) error = %v", err)
	}

	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !apperr.IsKind(err, apperr.KindInvalidToken) {
		t.Fatalf("Refresh() after revoke error = %v, want invalid_token", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	svc, store := newTestAuth(t)
	ctx := context.Background()

	base := time.Now().UTC()
	svc.now = func() time.Time { return base }
	if _, err := svc.IssueTokens(ctx, &models.User{ID: "u-1", Email: "a@b.c"}); err != nil {
		t.Fatalf("IssueTokens() error = %v", err)
	}

	svc.now = func() time.Time { return base.Add(31 * 24 * time.Hour) }
	n, err := svc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PurgeExpired() = %d, want 1", n)
	}
	if deleted, _ := store.DeleteExpired(ctx, base.Add(40*24*time.Hour)); deleted != 0 {
		t.Fatalf("store still held %d expired tokens", deleted)
	}
}
