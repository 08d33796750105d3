package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/internal/testutil"
	"ottoseguridad_backend/pkg/config"
)

func TestRunIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := config.SeedConfig{AdminEmail: "Admin@Otto.ec", AdminPassword: "cambiame123", AdminName: "Admin"}

	require.NoError(t, Run(db, cfg))
	require.NoError(t, Run(db, cfg))

	var users []model.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "admin@otto.ec", users[0].Email)
	assert.Equal(t, model.RoleAdmin, users[0].Role)

	var account model.Account
	require.NoError(t, db.Where("user_id = ?", users[0].ID).First(&account).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.Password), []byte("cambiame123")))

	var categories, sources, templates int64
	db.Model(&model.Category{}).Count(&categories)
	db.Model(&model.Source{}).Count(&sources)
	db.Model(&model.Template{}).Count(&templates)
	assert.EqualValues(t, len(DefaultCategories), categories)
	assert.EqualValues(t, len(DefaultSources), sources)
	assert.EqualValues(t, 3, templates)
}

func TestSeedAdminSkipsWithoutPassword(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, SeedAdmin(db, config.SeedConfig{AdminEmail: "admin@otto.ec"}))

	var count int64
	db.Model(&model.User{}).Count(&count)
	assert.Zero(t, count)

	assert.Error(t, SeedAdmin(db, config.SeedConfig{AdminEmail: "admin@otto.ec", AdminPassword: "corta"}))
}
