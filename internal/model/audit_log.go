package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records one mutating request from the dashboard.
type AuditLog struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    *uint          `json:"user_id" gorm:"index"`
	Action    string         `json:"action" gorm:"size:10"`
	Path      string         `json:"path" gorm:"size:255"`
	Entity    string         `json:"entity" gorm:"size:50;index"`
	EntityID  string         `json:"entity_id" gorm:"size:50"`
	Status    int            `json:"status"`
	Details   datatypes.JSON `json:"details"`
	IP        string         `json:"ip" gorm:"size:64"`
	UserAgent string         `json:"user_agent" gorm:"size:255"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
}
