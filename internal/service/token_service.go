package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clipmark/clipmark-api/internal/models"
	"github.com/clipmark/clipmark-api/pkg/config"
)

const refreshTokenBytes = 32

// TokenService issues and validates access tokens and generates the opaque
// refresh token values. Access tokens are self-contained and verified
// statelessly; refresh tokens are random strings whose validity lives in the
// database.
type TokenService struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{cfg: cfg, now: time.Now}
}

// WithClock overrides the time source. Used by tests to cross expiry
// boundaries without sleeping.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
	}
	return s
}

// AccessTokenTTL reports the configured access token lifetime.
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.cfg.Expiration
}

// GenerateAccessToken signs a token embedding the user's id, name, email and
// role. Returns the signed string and its expiry.
func (s *TokenService) GenerateAccessToken(user *models.User) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.cfg.Expiration)
	claims := models.NewJWTClaims(user, s.cfg.Issuer, s.cfg.Audience, issuedAt, expiresAt)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken checks signature, issuer, audience and expiry with
// zero leeway and returns the claims. Malformed or expired tokens return an
// error, never a panic.
func (s *TokenService) ValidateAccessToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	}
	if len(s.cfg.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// UserIDFromToken extracts the subject id after full validation. Returns
// (0, false) for anything that does not verify.
func (s *TokenService) UserIDFromToken(tokenString string) (int64, bool) {
	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}

// NewRefreshToken builds an unsaved refresh token record for the user: 32
// bytes of entropy, base64url-encoded, expiring after the configured window.
func (s *TokenService) NewRefreshToken(userID int64) (*models.RefreshToken, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	return &models.RefreshToken{
		UserID:    userID,
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		ExpiresAt: now.Add(s.cfg.RefreshExpiration),
		CreatedAt: now,
		Revoked:   false,
	}, nil
}
