package cron

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/email"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/newsletter"
)

type StatsMailer interface {
	SendDailyStats(ctx context.Context, to string, data email.DailyStatsData) error
}

// DailyStatsJob emails the day's newsletter numbers to active admins.
type DailyStatsJob struct {
	DB       *gorm.DB
	Mailer   StatsMailer
	Location *time.Location
	Now      func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

func (j *DailyStatsJob) Run() {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}
	if !j.lastRun.IsZero() && now.Sub(j.lastRun) < 23*time.Hour {
		logger.Log.Info("newsletter stats already sent today, skipping")
		return
	}

	sent, err := j.send(context.Background(), now)
	if err != nil {
		logger.Log.Error("error sending newsletter stats", "err", err)
		return
	}
	j.lastRun = now
	logger.Log.Info("newsletter stats sent", "admins", sent)
}

func (j *DailyStatsJob) send(ctx context.Context, now time.Time) (int, error) {
	loc := j.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	data, err := newsletter.DailyReport(j.DB, dayStart)
	if err != nil {
		return 0, err
	}

	var admins []model.User
	if err := j.DB.Where("role = ? AND active = ?", model.RoleAdmin, true).Find(&admins).Error; err != nil {
		return 0, err
	}

	sent := 0
	for _, admin := range admins {
		if err := j.Mailer.SendDailyStats(ctx, admin.Email, data); err != nil {
			logger.Log.Error("error sending newsletter stats", "to", admin.Email, "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}
