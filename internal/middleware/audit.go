package middleware

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/logger"
)

// redactedFields never reach the audit log.
var redactedFields = map[string]bool{
	"password":         true,
	"current_password": true,
	"new_password":     true,
	"token":            true,
}

// AuditLog records every mutating request made by an authenticated user
// after the handler ran.
func AuditLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := c.Method()
		if method == fiber.MethodGet || method == fiber.MethodHead || method == fiber.MethodOptions {
			return c.Next()
		}

		body := auditDetails(c)
		err := c.Next()

		entry := model.AuditLog{
			Action:    method,
			Path:      c.OriginalURL(),
			Status:    c.Response().StatusCode(),
			Details:   body,
			IP:        c.IP(),
			UserAgent: truncate(c.Get(fiber.HeaderUserAgent), 255),
		}
		entry.Entity, entry.EntityID = entityFromPath(c.Path())
		if claims := Claims(c); claims != nil {
			uid := claims.UserID
			entry.UserID = &uid
		}

		if dbErr := database.GetDB().Create(&entry).Error; dbErr != nil {
			logger.Log.Error("could not write audit log", "path", entry.Path, "err", dbErr)
		}
		return err
	}
}

// auditDetails keeps JSON bodies with secrets removed. Other bodies are
// summarized by content type.
func auditDetails(c *fiber.Ctx) datatypes.JSON {
	ct := string(c.Request().Header.ContentType())
	if !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
		if ct == "" {
			return nil
		}
		raw, _ := json.Marshal(map[string]string{"content_type": ct})
		return raw
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(c.Body(), &fields); err != nil {
		return nil
	}
	for k := range fields {
		if redactedFields[k] {
			fields[k] = "[redacted]"
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return raw
}

// entityFromPath maps "/api/bulletins/12/publish" to ("bulletins", "12").
func entityFromPath(path string) (string, string) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", ""
	}
	if len(parts) > 1 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
