package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clipmark/clipmark-api/internal/models"
	appErrors "github.com/clipmark/clipmark-api/pkg/errors"
)

// adminStore extends mockStore with the listing and deletion behavior the
// admin operations need.
type adminStore struct {
	*mockStore
}

func (a adminStore) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range a.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (a adminStore) UpdateRole(ctx context.Context, id int64, role models.Role, updatedAt time.Time) error {
	u, ok := a.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	u.UpdatedAt = &updatedAt
	return nil
}

func (a adminStore) Delete(ctx context.Context, id int64) error {
	if _, ok := a.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(a.users, id)
	return nil
}

func seedUser(store *mockStore, email string, role models.Role) *models.User {
	store.nextUserID++
	u := &models.User{ID: store.nextUserID, FullName: "Seeded", Email: email, PasswordHash: "hash", Role: role}
	store.users[u.ID] = u
	return u
}

func TestUserServiceList(t *testing.T) {
	store := newMockStore()
	seedUser(store, "a@example.com", models.RoleUser)
	seedUser(store, "b@example.com", models.RoleAdmin)
	svc := NewUserService(adminStore{store}, tokenStoreAdapter{store}, zap.NewNop())

	infos, page, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, infos, 2)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)

	admin := models.RoleAdmin
	infos, _, err = svc.List(context.Background(), models.UserFilter{Role: &admin})
	require.NoError(t, err)
	assert.Len(t, infos, 1)
	assert.Equal(t, "b@example.com", infos[0].Email)
}

func TestUserServiceGet(t *testing.T) {
	store := newMockStore()
	u := seedUser(store, "a@example.com", models.RoleUser)
	svc := NewUserService(adminStore{store}, tokenStoreAdapter{store}, zap.NewNop())

	info, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, info.Email)

	_, err = svc.Get(context.Background(), 999)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateRole(t *testing.T) {
	store := newMockStore()
	admin := seedUser(store, "admin@example.com", models.RoleAdmin)
	target := seedUser(store, "user@example.com", models.RoleUser)
	svc := NewUserService(adminStore{store}, tokenStoreAdapter{store}, zap.NewNop())

	info, err := svc.UpdateRole(context.Background(), admin.ID, target.ID, "Admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, info.Role)

	_, err = svc.UpdateRole(context.Background(), admin.ID, target.ID, "superuser")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.UpdateRole(context.Background(), admin.ID, 999, "user")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDelete(t *testing.T) {
	store := newMockStore()
	admin := seedUser(store, "admin@example.com", models.RoleAdmin)
	target := seedUser(store, "user@example.com", models.RoleUser)
	token := &models.RefreshToken{ID: 1, UserID: target.ID, Token: "live"}
	store.tokens[token.Token] = token
	svc := NewUserService(adminStore{store}, tokenStoreAdapter{store}, zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), admin.ID, target.ID))
	assert.True(t, store.tokens["live"].Revoked)
	_, ok := store.users[target.ID]
	assert.False(t, ok)

	err := svc.Delete(context.Background(), admin.ID, target.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
