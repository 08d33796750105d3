package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/newsletter"
	"ottoseguridad_backend/pkg/pipeline"
)

type BulletinRunner interface {
	RunNow(ctx context.Context, id uint, step pipeline.Step) error
	Publish(ctx context.Context, id uint, send bool) (*newsletter.Result, error)
}

// DailyBulletinJob builds today's bulletin and optionally publishes it.
type DailyBulletinJob struct {
	DB          *gorm.DB
	Runner      BulletinRunner
	Location    *time.Location
	AutoPublish bool
	Timeout     time.Duration
	Now         func() time.Time
}

func (j *DailyBulletinJob) Run() {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := j.RunContext(ctx); err != nil {
		logger.Log.Error("daily bulletin job failed", "err", err)
	}
}

// RunContext is Run with an explicit context. A bulletin already ready or
// published for today is left as is.
func (j *DailyBulletinJob) RunContext(ctx context.Context) error {
	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}
	loc := j.Location
	if loc == nil {
		loc = time.UTC
	}
	date := now.In(loc).Format(model.DateLayout)

	bulletin := model.Bulletin{Date: date}
	if err := j.DB.Where(model.Bulletin{Date: date}).
		Attrs(model.Bulletin{Status: model.BulletinDraft}).
		FirstOrCreate(&bulletin).Error; err != nil {
		return err
	}
	log := logger.With("bulletin", date)

	switch bulletin.Status {
	case model.BulletinDraft, model.BulletinScraped, model.BulletinFailed:
		log.Info("running daily pipeline", "from", bulletin.Status)
		if err := j.Runner.RunNow(ctx, bulletin.ID, pipeline.StepRun); err != nil {
			return err
		}
	case model.BulletinReady:
	default:
		log.Info("bulletin already handled today", "status", bulletin.Status)
		return nil
	}

	if !j.AutoPublish {
		return nil
	}
	res, err := j.Runner.Publish(ctx, bulletin.ID, true)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			log.Warn("bulletin not publishable", "err", err)
			return nil
		}
		return err
	}
	if res != nil {
		log.Info("daily bulletin published", "sent", res.Sent, "failed", res.Failed)
	}
	return nil
}
