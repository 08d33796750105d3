package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"ottoseguridad_backend/internal/controller"
	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/cron"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/pipeline"
	"ottoseguridad_backend/pkg/seed"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the scheduler",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-cron",
				Usage: "Do not start scheduled jobs",
			},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	cfg := s.cfg

	if n, err := s.pipeline.ResetInterrupted(); err != nil {
		logger.Log.Warn("could not reset interrupted bulletins", "err", err)
	} else if n > 0 {
		logger.Log.Warn("reset bulletins interrupted by a restart", "count", n)
	}
	if s.dispatcher != nil {
		if n, err := s.dispatcher.ReleaseStale(); err != nil {
			logger.Log.Warn("could not release interrupted email sends", "err", err)
		} else if n > 0 {
			logger.Log.Warn("released email sends interrupted by a restart", "count", n)
		}
	}

	if cfg.Cron.Enabled && !cmd.Bool("no-cron") {
		if err := s.scheduler.Register(s.pipeline, s.statsMailer(), cfg.Email.AdminReports); err != nil {
			return err
		}
		s.scheduler.Start()
	}

	app := controller.NewApp(controller.AppOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		RequestLog:  true,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("server is running", "port", cfg.Server.Port)
		errCh <- app.Listen(":" + cfg.Server.Port)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Log.Info("shutting down")
		err = app.ShutdownWithTimeout(shutdownTimeout)
	}
	s.shutdown(shutdownTimeout)
	return err
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update database tables",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := openDatabase(cfg); err != nil {
				return err
			}
			logger.Log.Info("migrations applied")
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Insert the default admin, categories, sources and templates",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := openDatabase(cfg); err != nil {
				return err
			}
			if err := seed.Run(database.GetDB(), cfg.Seed); err != nil {
				return err
			}
			logger.Log.Info("seed finished")
			return nil
		},
	}
}

func pipelineCommand() *cli.Command {
	return &cli.Command{
		Name:  "pipeline",
		Usage: "Build bulletins from the command line",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Scrape, classify and summarize the bulletin for a date",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "date",
						Usage: "Bulletin date (YYYY-MM-DD), today by default",
					},
					&cli.BoolFlag{
						Name:  "publish",
						Usage: "Publish and email the bulletin when it is ready",
					},
				},
				Action: runPipeline,
			},
			{
				Name:  "video",
				Usage: "Generate the narrated video of a bulletin",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Usage: "Bulletin ID", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					s, err := bootstrap(ctx)
					if err != nil {
						return err
					}
					defer s.shutdown(shutdownTimeout)
					return s.pipeline.RunNow(ctx, uint(cmd.Uint("id")), pipeline.StepVideo)
				},
			},
		},
	}
}

func runPipeline(ctx context.Context, cmd *cli.Command) error {
	s, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer s.shutdown(shutdownTimeout)

	job := &cron.DailyBulletinJob{
		DB:          database.GetDB(),
		Runner:      s.pipeline,
		Location:    s.scheduler.Location(),
		AutoPublish: cmd.Bool("publish"),
	}
	if date := cmd.String("date"); date != "" {
		day, err := time.ParseInLocation(model.DateLayout, date, s.scheduler.Location())
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", date, err)
		}
		job.Now = func() time.Time { return day.Add(12 * time.Hour) }
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Cron.JobTimeout)
	defer cancel()
	return job.RunContext(ctx)
}

func newsletterCommand() *cli.Command {
	return &cli.Command{
		Name:  "newsletter",
		Usage: "Email bulletins to subscribers",
		Commands: []*cli.Command{
			{
				Name:  "send",
				Usage: "Send a published bulletin to subscribers that have not received it",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Usage: "Bulletin ID", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					s, err := bootstrap(ctx)
					if err != nil {
						return err
					}
					defer s.shutdown(shutdownTimeout)
					if s.dispatcher == nil {
						return errors.New("email is not configured")
					}

					res, err := s.dispatcher.Dispatch(ctx, uint(cmd.Uint("id")))
					if err != nil {
						return err
					}
					logger.Log.Info("newsletter sent", "total", res.Total, "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
					return nil
				},
			},
		},
	}
}
