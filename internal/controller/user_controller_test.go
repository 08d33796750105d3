package controller

import (
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ottoseguridad_backend/internal/model"
)

func TestUsersRequireAdmin(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "editor@otto.ec", model.RoleEditor)

	resp := e.request(t, "GET", "/api/users", nil, token)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestCreateUser(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.login(t, "admin@otto.ec", model.RoleAdmin)

	resp := e.request(t, "POST", "/api/users", fiber.Map{
		"email":    "Nuevo@Otto.ec",
		"name":     "Nuevo",
		"password": "secret123",
	}, token)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created map[string]interface{}
	decode(t, resp, &created)
	assert.Equal(t, "nuevo@otto.ec", created["email"])
	assert.Equal(t, string(model.RoleEditor), created["role"])

	resp = e.request(t, "POST", "/api/users", fiber.Map{
		"email":    "nuevo@otto.ec",
		"name":     "Otra vez",
		"password": "secret123",
	}, token)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = e.request(t, "POST", "/api/auth/login", fiber.Map{"email": "nuevo@otto.ec", "password": "secret123"}, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = e.request(t, "GET", "/api/users", nil, token)
	var list struct {
		Total int `json:"total"`
	}
	decode(t, resp, &list)
	assert.Equal(t, 2, list.Total)
}

func TestUpdateUser(t *testing.T) {
	e := newTestEnv(t)
	token, admin := e.login(t, "admin@otto.ec", model.RoleAdmin)
	editorToken, editor := e.login(t, "editor@otto.ec", model.RoleEditor)

	t.Run("cannot demote self", func(t *testing.T) {
		resp := e.request(t, "PUT", fmt.Sprintf("/api/users/%d", admin.ID), fiber.Map{"role": "editor"}, token)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("deactivation ends sessions", func(t *testing.T) {
		resp := e.request(t, "PUT", fmt.Sprintf("/api/users/%d", editor.ID), fiber.Map{"active": false}, token)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var stored model.User
		require.NoError(t, e.db.First(&stored, editor.ID).Error)
		assert.False(t, stored.Active)

		var count int64
		e.db.Model(&model.Session{}).Where("user_id = ?", editor.ID).Count(&count)
		assert.Zero(t, count)

		assert.Equal(t, fiber.StatusUnauthorized, e.request(t, "GET", "/api/auth/me", nil, editorToken).StatusCode)
	})

	t.Run("unknown user", func(t *testing.T) {
		resp := e.request(t, "PUT", "/api/users/999", fiber.Map{"name": "x"}, token)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestDeleteUser(t *testing.T) {
	e := newTestEnv(t)
	token, admin := e.login(t, "admin@otto.ec", model.RoleAdmin)
	_, editor := e.login(t, "editor@otto.ec", model.RoleEditor)

	resp := e.request(t, "DELETE", fmt.Sprintf("/api/users/%d", admin.ID), nil, token)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = e.request(t, "DELETE", fmt.Sprintf("/api/users/%d", editor.ID), nil, token)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = e.request(t, "DELETE", fmt.Sprintf("/api/users/%d", editor.ID), nil, token)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
