package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/middleware"
	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/session"
)

var (
	sessions      *session.Manager
	secureCookies bool
)

// InitAuthController installs the session manager used by Login. Cookies are
// marked Secure when secure is set.
func InitAuthController(m *session.Manager, secure bool) {
	sessions = m
	secureCookies = secure
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login checks the credential account and opens a session.
func Login(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	db := database.GetDB()
	var user model.User
	if err := db.Where("email = ? AND active = ?", model.NormalizeEmail(input.Email), true).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, err, "Could not sign in")
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	var account model.Account
	if err := db.Where("user_id = ? AND provider_id = ?", user.ID, model.ProviderCredential).First(&account).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(input.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	token, s, err := sessions.Issue(db, &user, c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return respondError(c, err, "Could not create session")
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := db.Model(&user).Update("last_login_at", now).Error; err != nil {
		logger.Log.Warn("could not record last login", "user", user.ID, "err", err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HTTPOnly: true,
		Secure:   secureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": s.ExpiresAt,
		"user":       user.GetPublicProfile(),
	})
}

// Logout deletes the current session row and clears the cookie. It accepts
// requests without a valid session so a stale cookie can always be cleared.
func Logout(c *fiber.Ctx) error {
	token := middleware.RequestToken(c)
	if token != "" && sessions != nil {
		if claims, err := sessions.ValidateToken(token); err == nil {
			if err := session.Revoke(database.GetDB(), claims.SessionID); err != nil {
				return respondError(c, err, "Could not sign out")
			}
		}
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   secureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"message": "Signed out"})
}

// GetMe returns the signed in user.
func GetMe(c *fiber.Ctx) error {
	claims := middleware.Claims(c)

	var user model.User
	if err := database.GetDB().First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User not found",
			})
		}
		return respondError(c, err, "Could not fetch user")
	}

	return c.JSON(fiber.Map{"user": user.GetPublicProfile()})
}
