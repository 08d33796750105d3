package middleware

import (
	"github.com/gofiber/fiber/v2"

	"ottoseguridad_backend/internal/model"
)

// RequireRole lets through callers holding one of roles. It must run after
// AuthMiddleware.
func RequireRole(roles ...model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}
		for _, r := range roles {
			if claims.Role == r {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have permission to access this resource",
		})
	}
}

// AdminOnly is RequireRole(model.RoleAdmin).
func AdminOnly() fiber.Handler {
	return RequireRole(model.RoleAdmin)
}
