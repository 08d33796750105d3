package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/session"
)

var (
	sessions   *session.Manager
	cookieName = "otto_session"
)

// InitAuth installs the session manager used by AuthMiddleware.
func InitAuth(m *session.Manager, cookie string) {
	sessions = m
	if cookie != "" {
		cookieName = cookie
	}
}

func CookieName() string {
	return cookieName
}

// RequestToken returns the session cookie, falling back to a bearer token.
func RequestToken(c *fiber.Ctx) string {
	if token := c.Cookies(cookieName); token != "" {
		return token
	}
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// AuthMiddleware accepts the session cookie or an "Authorization: Bearer"
// header and stores the *session.Claims in c.Locals("user").
func AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := RequestToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		claims, s, err := sessions.Resolve(database.GetDB(), token)
		if err != nil {
			if !errors.Is(err, session.ErrInvalidToken) && !errors.Is(err, session.ErrExpired) && !errors.Is(err, session.ErrRevoked) {
				logger.Log.Error("session lookup failed", "err", err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Could not verify session",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired session",
			})
		}

		c.Locals("user", claims)
		c.Locals("session", s)
		return c.Next()
	}
}

// Claims returns the authenticated caller, or nil outside AuthMiddleware.
func Claims(c *fiber.Ctx) *session.Claims {
	claims, _ := c.Locals("user").(*session.Claims)
	return claims
}
