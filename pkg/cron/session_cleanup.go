package cron

import (
	"time"

	"gorm.io/gorm"

	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/session"
)

func CleanupSessions(db *gorm.DB) {
	n, err := session.Cleanup(db, time.Now())
	if err != nil {
		logger.Log.Error("session cleanup failed", "err", err)
		return
	}
	if n > 0 {
		logger.Log.Info("expired sessions removed", "count", n)
	}
}
