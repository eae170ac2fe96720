// Package auth issues and verifies the two token kinds: short-lived HS256
// JWT access tokens and rotating refresh tokens presented as "body.sig".
// Refresh bodies are stored only as sha256 hashes; the HMAC signature is
// checked before any database lookup so forgeries never cost a round trip.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// UserSource looks up users for token refresh. identity.Service satisfies it.
type UserSource interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// TokenPair is the result of login and refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Identity is the authenticated caller attached to request contexts.
type Identity struct {
	UserID string
	Email  string
}

// Service mints, rotates, and validates tokens.
type Service struct {
	jwt        *JWTManager
	codec      refreshCodec
	tokens     TokenStore
	users      UserSource
	refreshTTL time.Duration
	logger     *observability.Logger
	now        func() time.Time
}

// NewService builds the auth service from the auth config section.
func NewService(cfg config.AuthConfig, tokens TokenStore, users UserSource, logger *observability.Logger) *Service {
	return &Service{
		jwt:        NewJWTManager(cfg.JWTSecret, cfg.AccessTokenTTL),
		codec:      newRefreshCodec(cfg.RefreshSecret),
		tokens:     tokens,
		users:      users,
		refreshTTL: cfg.RefreshTokenTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// AccessTokenTTL reports the configured access token lifetime.
func (s *Service) AccessTokenTTL() time.Duration { return s.jwt.ttl }

// RefreshTokenTTL reports the configured refresh token lifetime.
func (s *Service) RefreshTokenTTL() time.Duration { return s.refreshTTL }

// IssueTokens mints an access token and a fresh refresh token for the user.
func (s *Service) IssueTokens(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, accessExp, err := s.jwt.Generate(user)
	if err != nil {
		return nil, apperr.Internal("generate access token", err)
	}

	presented, bodyHash := s.codec.mint()
	now := s.now().UTC()
	refreshExp := now.Add(s.refreshTTL)
	record := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: bodyHash,
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     presented,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh rotates a presented refresh token: the old token is revoked and a
// new pair is issued. Signature failures and unknown or revoked tokens fail
// InvalidToken; a known token past its expiry fails SessionExpired.
func (s *Service) Refresh(ctx context.Context, presented string) (*TokenPair, *models.User, error) {
	bodyHash, err := s.codec.verify(presented)
	if err != nil {
		return nil, nil, err
	}

	stored, err := s.tokens.GetByHash(ctx, bodyHash)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, nil, apperr.InvalidToken("unknown refresh token")
		}
		return nil, nil, err
	}
	if stored.RevokedAt != nil {
		return nil, nil, apperr.InvalidToken("refresh token revoked")
	}
	now := s.now().UTC()
	if now.After(stored.ExpiresAt) {
		return nil, nil, apperr.SessionExpired("refresh token expired")
	}

	user, err := s.users.GetUser(ctx, stored.UserID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.tokens.Revoke(ctx, stored.ID, now); err != nil {
		return nil, nil, err
	}
	pair, err := s.IssueTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug(ctx, "refresh token rotated", "user_id", user.ID)
	return pair, user, nil
}

// Revoke invalidates a presented refresh token. Values that do not verify
// are ignored: logout always succeeds from the caller's point of view.
func (s *Service) Revoke(ctx context.Context, presented string) error {
	bodyHash, err := s.codec.verify(presented)
	if err != nil {
		return nil
	}
	stored, err := s.tokens.GetByHash(ctx, bodyHash)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}
	return s.tokens.Revoke(ctx, stored.ID, s.now().UTC())
}

// ValidateAccess verifies an access token and returns the caller identity.
func (s *Service) ValidateAccess(token string) (*Identity, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// PurgeExpired removes refresh tokens past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now().UTC())
}
