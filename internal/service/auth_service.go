package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/clipmark/clipmark-api/internal/models"
	"github.com/clipmark/clipmark-api/internal/repository"
	appErrors "github.com/clipmark/clipmark-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type authTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeByToken(ctx context.Context, token string, revokedAt time.Time) error
	RevokeAllForUser(ctx context.Context, userID int64, revokedAt time.Time) error
	RevokeAllAndCreate(ctx context.Context, userID int64, token *models.RefreshToken) error
	Rotate(ctx context.Context, oldID int64, token *models.RefreshToken) error
}

// AuthService implements the session lifecycle: register, login, refresh,
// logout, password change and profile lookup. Credential failures are
// deliberately indistinguishable (unknown email vs. wrong password, missing
// vs. revoked vs. expired refresh token) so responses leak nothing about
// account or token existence.
type AuthService struct {
	users     authUserRepository
	tokens    authTokenRepository
	issuer    *TokenService
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance. The metrics service may
// be nil.
func NewAuthService(users authUserRepository, tokens authTokenRepository, issuer *TokenService, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		issuer:    issuer,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// WithClock overrides the time source for expiry checks. Used in tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Register creates a new account with role "user" and signs it in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	user := &models.User{
		FullName: req.FullName,
		Email:    req.Email,
		Role:     models.RoleUser,
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user.PasswordHash = string(hash)

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, appErrors.Clone(appErrors.ErrEmailTaken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	res, err := s.issuePair(ctx, user, false)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, &user.ID, models.AuditActionRegister, &user.ID, []byte(`{"status":"registered"}`), req.IP, req.UserAgent)

	return res, nil
}

// Login authenticates a user and returns a fresh token pair. Every login
// revokes all of the user's live refresh tokens: prior refresh chains end
// here, though outstanding access tokens run out their own short expiry.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordLogin(false)
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.RecordLogin(false)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	res, err := s.issuePair(ctx, user, true)
	if err != nil {
		s.metrics.RecordLogin(false)
		return nil, err
	}
	s.metrics.RecordLogin(true)

	s.audit(ctx, &user.ID, models.AuditActionLogin, &user.ID, []byte(`{"status":"success"}`), req.IP, req.UserAgent)

	return res, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// single-use: it is revoked in the same transaction that persists its
// replacement.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	stored, err := s.tokens.FindByToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordRefresh(false)
			return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if !stored.Usable(s.now().UTC()) {
		s.metrics.RecordRefresh(false)
		return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordRefresh(false)
			return nil, appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	accessToken, _, err := s.issuer.GenerateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	replacement, err := s.issuer.NewRefreshToken(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	if err := s.tokens.Rotate(ctx, stored.ID, replacement); err != nil {
		s.metrics.RecordRefresh(false)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}
	s.metrics.RecordRefresh(true)

	s.audit(ctx, &user.ID, models.AuditActionTokenRefresh, &user.ID, []byte(`{"refresh":"rotated"}`), req.IP, req.UserAgent)

	return &models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: replacement.Token,
		ExpiresIn:    int64(s.issuer.AccessTokenTTL().Seconds()),
		IssuedAt:     s.now().UTC(),
		User:         user.Info(),
	}, nil
}

// Logout revokes the presented refresh token. It is idempotent: unknown,
// already-revoked and expired tokens all succeed.
func (s *AuthService) Logout(ctx context.Context, refreshToken, ip, userAgent string) error {
	if refreshToken == "" {
		return nil
	}

	stored, err := s.tokens.FindByToken(ctx, refreshToken)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}

	if err := s.tokens.RevokeByToken(ctx, refreshToken, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}

	if stored != nil {
		s.audit(ctx, &stored.UserID, models.AuditActionLogout, &stored.UserID, []byte(`{"status":"logout"}`), ip, userAgent)
	}

	return nil
}

// ChangePassword verifies the old password, stores the new hash and revokes
// every refresh token for the user, forcing re-authentication everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidOldPassword, "")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, userID, string(newHash), s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if err := s.tokens.RevokeAllForUser(ctx, userID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password change", zap.Error(err))
	}

	s.audit(ctx, &userID, models.AuditActionPasswordChange, &userID, []byte(`{"status":"changed"}`), "", "")

	return nil
}

// CurrentUser returns the profile projection for the given user id.
func (s *AuthService) CurrentUser(ctx context.Context, userID int64) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims, err := s.issuer.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	return claims, nil
}

// issuePair mints an access token and persists a refresh token for the user.
// When revokePrior is set, revocation of existing tokens and creation of the
// new one happen in one atomic store operation.
func (s *AuthService) issuePair(ctx context.Context, user *models.User, revokePrior bool) (*models.AuthResponse, error) {
	accessToken, _, err := s.issuer.GenerateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refresh, err := s.issuer.NewRefreshToken(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	if revokePrior {
		err = s.tokens.RevokeAllAndCreate(ctx, user.ID, refresh)
	} else {
		err = s.tokens.Create(ctx, refresh)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refresh.Token,
		ExpiresIn:    int64(s.issuer.AccessTokenTTL().Seconds()),
		IssuedAt:     s.now().UTC(),
		User:         user.Info(),
	}, nil
}

// audit writes a best-effort audit row; failures are logged, never surfaced.
func (s *AuthService) audit(ctx context.Context, userID *int64, action string, resourceID *int64, payload []byte, ip, userAgent string) {
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: resourceID,
		NewValues:  payload,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
