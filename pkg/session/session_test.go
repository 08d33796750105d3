package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/internal/testutil"
)

const secret = "test-secret-0123456789"

func TestManagerIssueAndResolve(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "editor@otto.ec", "secreto123", model.RoleEditor)
	m := NewManager(secret, time.Hour)

	token, s, err := m.Issue(db, user, "10.0.0.1", "curl/8")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, s.UserID)

	claims, resolved, err := m.Resolve(db, token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, resolved.ID)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.RoleEditor, claims.Role)

	t.Run("role change applies to live session", func(t *testing.T) {
		require.NoError(t, db.Model(user).Update("role", model.RoleAdmin).Error)
		claims, _, err := m.Resolve(db, token)
		require.NoError(t, err)
		assert.Equal(t, model.RoleAdmin, claims.Role)
	})

	t.Run("revoked", func(t *testing.T) {
		require.NoError(t, Revoke(db, s.ID))
		_, _, err := m.Resolve(db, token)
		assert.True(t, errors.Is(err, ErrRevoked))
	})
}

func TestManagerRejectsInactiveUser(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "off@otto.ec", "secreto123", model.RoleEditor)
	m := NewManager(secret, time.Hour)

	token, _, err := m.Issue(db, user, "", "")
	require.NoError(t, err)
	require.NoError(t, db.Model(user).Update("active", false).Error)

	_, _, err = m.Resolve(db, token)
	assert.True(t, errors.Is(err, ErrRevoked))
}

func TestValidateToken(t *testing.T) {
	m := NewManager(secret, time.Hour)
	user := &model.User{Email: "a@otto.ec", Role: model.RoleAdmin}
	user.ID = 7

	t.Run("wrong secret", func(t *testing.T) {
		other := NewManager("another-secret-987654", time.Hour)
		token, err := other.GenerateToken(&model.Session{ID: "abc", ExpiresAt: time.Now().Add(time.Hour)}, user)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("expired", func(t *testing.T) {
		token, err := m.GenerateToken(&model.Session{ID: "abc", ExpiresAt: time.Now().Add(-time.Minute)}, user)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.True(t, errors.Is(err, ErrExpired))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not-a-jwt")
		assert.Error(t, err)
	})
}

func TestCleanup(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "c@otto.ec", "secreto123", model.RoleEditor)
	now := time.Now()

	require.NoError(t, db.Create(&model.Session{ID: "old", UserID: user.ID, ExpiresAt: now.Add(-time.Hour)}).Error)
	require.NoError(t, db.Create(&model.Session{ID: "new", UserID: user.ID, ExpiresAt: now.Add(time.Hour)}).Error)

	n, err := Cleanup(db, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var count int64
	db.Model(&model.Session{}).Count(&count)
	assert.EqualValues(t, 1, count)
}
