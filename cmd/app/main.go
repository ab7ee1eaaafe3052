// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/shakamirtskhulava/eventlog/cmd/app/commands"
	"github.com/shakamirtskhulava/eventlog/internal/app"
	"github.com/shakamirtskhulava/eventlog/internal/config"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "eventlog",
		Usage:   "Transactional integration event log publisher",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "publisher",
				Usage: "Start the event publisher with the operator API and metrics servers",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunPublisher(ctx, version, nil)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg := config.Load()
					container := app.NewContainer(cfg, nil, nil)
					return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
