package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/clipmark/clipmark-api/internal/models"
	appErrors "github.com/clipmark/clipmark-api/pkg/errors"
)

type adminUserRepository interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	UpdateRole(ctx context.Context, id int64, role models.Role, updatedAt time.Time) error
	Delete(ctx context.Context, id int64) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type adminTokenRepository interface {
	RevokeAllForUser(ctx context.Context, userID int64, revokedAt time.Time) error
}

// UserService implements the administrative account operations.
type UserService struct {
	users  adminUserRepository
	tokens adminTokenRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService constructs a UserService instance.
func NewUserService(users adminUserRepository, tokens adminTokenRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, tokens: tokens, logger: logger, now: time.Now}
}

// List returns user profiles matching the filter plus pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserInfo, models.Pagination, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	infos := make([]models.UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, users[i].Info())
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return infos, models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a single user profile.
func (s *UserService) Get(ctx context.Context, id int64) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

// UpdateRole assigns a new role to a user. The raw value is validated
// against the role enum before it touches the store.
func (s *UserService) UpdateRole(ctx context.Context, actorID, userID int64, rawRole string) (*models.UserInfo, error) {
	role, err := models.ParseRole(rawRole)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role")
	}

	if err := s.users.UpdateRole(ctx, userID, role, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}

	s.adminAudit(ctx, actorID, models.AuditActionRoleUpdate, userID, []byte(`{"role":"`+string(role)+`"}`))

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

// Delete removes a user account. Refresh tokens are revoked first so any
// still-live session ends even before the cascade removes the rows.
func (s *UserService) Delete(ctx context.Context, actorID, userID int64) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to revoke tokens before user delete", zap.Int64("user_id", userID), zap.Error(err))
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.adminAudit(ctx, actorID, models.AuditActionUserDelete, userID, nil)

	return nil
}

func (s *UserService) adminAudit(ctx context.Context, actorID int64, action string, resourceID int64, payload []byte) {
	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
