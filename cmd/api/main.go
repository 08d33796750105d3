package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"ottoseguridad_backend/pkg/logger"
)

func main() {
	app := &cli.Command{
		Name:  "ottoseguridad",
		Usage: "Daily security bulletin backend",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			seedCommand(),
			pipelineCommand(),
			newsletterCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Log.Fatal("application error", "err", err)
	}
}
