// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
)

// NewDB opens an in-memory SQLite database with every table migrated and
// installs it as the global connection.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// every connection to :memory: is a new database
	sqlDB.SetMaxOpenConns(1)

	database.Use(db)
	if err := database.MigrateDatabase(model.All()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// CreateUser inserts an active user with a credential account.
func CreateUser(t *testing.T, db *gorm.DB, email, password string, role model.Role) *model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &model.User{Email: email, Name: "Test " + string(role), Role: role, Active: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	account := &model.Account{UserID: user.ID, ProviderID: model.ProviderCredential, Password: string(hash)}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return user
}
