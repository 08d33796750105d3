// Package cron schedules the daily bulletin, the admin stats email and
// session housekeeping.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"ottoseguridad_backend/pkg/config"
	"ottoseguridad_backend/pkg/logger"
)

type Scheduler struct {
	c   *cron.Cron
	loc *time.Location
	cfg config.CronConfig
	db  *gorm.DB
}

func New(cfg config.CronConfig, db *gorm.DB) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	return &Scheduler{
		c:   cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{}))),
		loc: loc,
		cfg: cfg,
		db:  db,
	}, nil
}

func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Register adds every job. Runner and mailer may be nil, which skips the jobs
// that need them.
func (s *Scheduler) Register(runner BulletinRunner, mailer StatsMailer, adminReports bool) error {
	if runner != nil {
		job := &DailyBulletinJob{DB: s.db, Runner: runner, Location: s.loc, AutoPublish: s.cfg.AutoPublish, Timeout: s.cfg.JobTimeout}
		if _, err := s.c.AddFunc(s.cfg.Bulletin, job.Run); err != nil {
			return fmt.Errorf("could not schedule bulletin job: %w", err)
		}
	}

	if _, err := s.c.AddFunc("@hourly", func() { CleanupSessions(s.db) }); err != nil {
		return fmt.Errorf("could not schedule session cleanup: %w", err)
	}

	if mailer != nil && adminReports {
		stats := &DailyStatsJob{DB: s.db, Mailer: mailer, Location: s.loc}
		if _, err := s.c.AddFunc("0 19 * * *", stats.Run); err != nil {
			return fmt.Errorf("could not schedule stats job: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.c.Start()
	logger.Log.Info("cron started", "jobs", len(s.c.Entries()), "tz", s.loc.String())
}

// Stop waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	logger.Log.Debug(msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	logger.Log.Error(msg, append(kv, "err", err)...)
}
