package controller

import (
	"github.com/gofiber/fiber/v2"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
)

// ListAuditLogs supports ?user_id= and ?entity= filters.
func ListAuditLogs(c *fiber.Ctx) error {
	p := pagination(c)
	q := database.GetDB().Model(&model.AuditLog{})
	if uid := c.QueryInt("user_id"); uid > 0 {
		q = q.Where("user_id = ?", uid)
	}
	if entity := c.Query("entity"); entity != "" {
		q = q.Where("entity = ?", entity)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return respondError(c, err, "Could not fetch audit logs")
	}

	var logs []model.AuditLog
	if err := q.Order("created_at DESC, id DESC").Limit(p.Limit).Offset(p.Offset).Find(&logs).Error; err != nil {
		return respondError(c, err, "Could not fetch audit logs")
	}

	return c.JSON(paginated(logs, total, p))
}
