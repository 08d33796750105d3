package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ottoseguridad_backend/internal/controller"
	"ottoseguridad_backend/internal/middleware"
	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/ai"
	"ottoseguridad_backend/pkg/cache"
	"ottoseguridad_backend/pkg/config"
	"ottoseguridad_backend/pkg/cron"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/email"
	"ottoseguridad_backend/pkg/events"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/newsletter"
	"ottoseguridad_backend/pkg/pipeline"
	"ottoseguridad_backend/pkg/scraper"
	"ottoseguridad_backend/pkg/session"
	"ottoseguridad_backend/pkg/storage"
	"ottoseguridad_backend/pkg/video"
)

// services holds everything the commands share.
type services struct {
	cfg        *config.Config
	pipeline   *pipeline.Pipeline
	dispatcher *newsletter.Dispatcher
	scheduler  *cron.Scheduler
	closers    []func()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.Server.LogLevel)
	return cfg, nil
}

func openDatabase(cfg *config.Config) error {
	if err := database.InitDB(cfg.Database.URL, database.PoolConfig{
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}); err != nil {
		return err
	}
	if err := database.MigrateDatabase(model.All()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// bootstrap connects every backing service. Optional services that are not
// configured are replaced by stand-ins that report ErrNotConfigured.
func bootstrap(ctx context.Context) (*services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := openDatabase(cfg); err != nil {
		return nil, err
	}
	db := database.GetDB()
	s := &services{cfg: cfg}

	if err := email.InitEmailService(cfg.Email, cfg.Server.AppURL, db); err != nil {
		if !errors.Is(err, email.ErrNotConfigured) {
			return nil, fmt.Errorf("email: %w", err)
		}
		logger.Log.Warn("email is disabled", "err", err)
	}

	if r2, err := storage.NewR2(ctx, cfg.Storage); err == nil {
		storage.Default = r2
	} else {
		logger.Log.Warn("object storage is disabled", "err", err)
	}

	redisCache, err := cache.Connect(ctx, cfg.Redis.URL, cfg.Redis.CacheTTL)
	if err != nil {
		logger.Log.Warn("cache is disabled", "err", err)
	} else {
		cache.Default = redisCache
		s.closers = append(s.closers, func() { _ = redisCache.Close() })
	}

	publisher, closeNATS, err := events.Connect(cfg.NATS.URL)
	if err != nil {
		logger.Log.Warn("events are disabled", "err", err)
	} else {
		events.Default = publisher
		s.closers = append(s.closers, closeNATS)
	}

	var backend ai.Backend = ai.Unconfigured
	if openAI, err := ai.NewOpenAI(cfg.AI); err == nil {
		backend = openAI
	} else {
		logger.Log.Warn("AI is disabled", "err", err)
	}

	deps := pipeline.Deps{
		DB:      db,
		Scraper: scraper.NewClient(cfg.Scraper),
		AI:      ai.NewClient(backend, cfg.AI.BatchSize),
		Store:   storage.Default,
		Cache:   cache.Default,
		Events:  events.Default,
	}
	if renderer, err := video.NewClient(cfg.Video); err == nil {
		deps.Renderer = renderer
	} else {
		logger.Log.Warn("video rendering is disabled", "err", err)
	}
	if email.GlobalEmailService != nil {
		s.dispatcher = newsletter.NewDispatcher(db, email.GlobalEmailService, events.Default, cfg.Email.Concurrency)
		deps.Dispatcher = s.dispatcher
	}

	s.pipeline = pipeline.New(deps, pipeline.Options{
		ScrapeConcurrency: cfg.Scraper.Concurrency,
		Filter: scraper.Filter{
			MinContentLength: cfg.Scraper.MinContentLength,
			RecencyHours:     cfg.Scraper.RecencyHours,
		},
		VideoPollInterval: cfg.Video.PollInterval,
		VideoTimeout:      cfg.Video.Timeout,
		JobTimeout:        cfg.Cron.JobTimeout,
	})
	pipeline.Default = s.pipeline

	scheduler, err := cron.New(cfg.Cron, db)
	if err != nil {
		return nil, err
	}
	s.scheduler = scheduler

	sessions := session.NewManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	middleware.InitAuth(sessions, cfg.Auth.CookieName)
	controller.InitAuthController(sessions, cfg.Server.Production)
	if s.dispatcher != nil {
		controller.InitBulletinController(s.dispatcher, scheduler.Location(), cfg.Cron.JobTimeout)
	} else {
		controller.InitBulletinController(nil, scheduler.Location(), cfg.Cron.JobTimeout)
	}

	return s, nil
}

func (s *services) statsMailer() cron.StatsMailer {
	if email.GlobalEmailService == nil {
		return nil
	}
	return email.GlobalEmailService
}

// shutdown stops background work and closes connections.
func (s *services) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.scheduler.Stop(ctx)
	if err := s.pipeline.Shutdown(ctx); err != nil {
		logger.Log.Warn("pipeline jobs did not stop in time", "err", err)
	}
	controller.WaitBackground()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
