package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmark/clipmark-api/internal/models"
)

func TestListUsersRequiresAdmin(t *testing.T) {
	router, store := newTestRouter()
	user := register(t, router, "alice@example.com")

	w := doJSON(router, http.MethodGet, "/users", user.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := adminToken(t, router, store)
	w = doJSON(router, http.MethodGet, "/users", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var infos []models.UserInfo
	require.NoError(t, json.Unmarshal(env.Data, &infos))
	assert.Len(t, infos, 2)
}

func TestGetUserSelfOrAdmin(t *testing.T) {
	router, store := newTestRouter()
	alice := register(t, router, "alice@example.com")
	bob := register(t, router, "bob@example.com")

	// Self access works.
	w := doJSON(router, http.MethodGet, fmt.Sprintf("/users/%d", alice.User.ID), alice.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Another plain user is forbidden.
	w = doJSON(router, http.MethodGet, fmt.Sprintf("/users/%d", alice.User.ID), bob.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin can read anyone.
	admin := adminToken(t, router, store)
	w = doJSON(router, http.MethodGet, fmt.Sprintf("/users/%d", alice.User.ID), admin.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/users/9999", admin.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateRoleEndpoint(t *testing.T) {
	router, store := newTestRouter()
	alice := register(t, router, "alice@example.com")
	admin := adminToken(t, router, store)

	w := doJSON(router, http.MethodPatch, fmt.Sprintf("/users/%d/role", alice.User.ID), admin.AccessToken, gin.H{"role": "admin"})
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var info models.UserInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, models.RoleAdmin, info.Role)

	w = doJSON(router, http.MethodPatch, fmt.Sprintf("/users/%d/role", alice.User.ID), admin.AccessToken, gin.H{"role": "superuser"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPatch, "/users/9999/role", admin.AccessToken, gin.H{"role": "user"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteUserEndpoint(t *testing.T) {
	router, store := newTestRouter()
	alice := register(t, router, "alice@example.com")
	admin := adminToken(t, router, store)

	w := doJSON(router, http.MethodDelete, fmt.Sprintf("/users/%d", alice.User.ID), admin.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// The deleted user's refresh tokens are dead.
	w = doJSON(router, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": alice.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodDelete, fmt.Sprintf("/users/%d", alice.User.ID), admin.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
