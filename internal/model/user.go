package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEditor
}

type User struct {
	gorm.Model
	Email       string     `json:"email" gorm:"uniqueIndex;not null"`
	Name        string     `json:"name" gorm:"not null"`
	Role        Role       `json:"role" gorm:"size:20;not null;default:'editor'"`
	Active      bool       `json:"active" gorm:"not null;default:true"`
	LastLoginAt *time.Time `json:"last_login_at"`

	Accounts []Account `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Sessions []Session `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// BeforeSave normalizes the email so lookups are case-insensitive.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) GetPublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":            u.ID,
		"email":         u.Email,
		"name":          u.Name,
		"role":          u.Role,
		"active":        u.Active,
		"last_login_at": u.LastLoginAt,
		"created_at":    u.CreatedAt,
	}
}

const ProviderCredential = "credential"

// Account holds a login method for a user. Only password credentials exist today.
type Account struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     uint   `gorm:"not null;uniqueIndex:idx_account_provider"`
	ProviderID string `gorm:"size:50;not null;uniqueIndex:idx_account_provider"`
	Password   string `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Session struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    uint      `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	IP        string    `gorm:"size:64"`
	UserAgent string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	User User `gorm:"foreignKey:UserID"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
