package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/anicoll/smartcontrol/cmd"
	"github.com/anicoll/smartcontrol/internal/pkg/control"
	"github.com/anicoll/smartcontrol/internal/pkg/poller"
)

//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen --config=./pkg/api/config.yaml ./pkg/api/api.yaml

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	logLevel := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "log-level",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "INFO",
		}
	}
	databaseURL := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "database-url",
			EnvVars:  []string{"DATABASE_URL"},
			Required: true,
		}
	}
	migrationsFolder := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "migrations-folder",
			EnvVars: []string{"MIGRATIONS_FOLDER"},
			Usage:   "read migrations from this folder instead of the built-in set",
		}
	}

	app := &cli.App{
		Name:  "smartcontrol",
		Usage: "remote control for a fan and a light",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the control service",
				Action: cmd.ServeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "listen-addr",
						EnvVars: []string{"LISTEN_ADDR"},
						Value:   ":4211",
					},
					databaseURL(),
					migrationsFolder(),
					&cli.BoolFlag{
						Name:    "seed",
						EnvVars: []string{"SEED"},
						Usage:   "create the fan and light records when missing",
					},
					logLevel(),
				},
			},
			{
				Name:   "poll",
				Usage:  "poll the control service and toggle appliances from the terminal",
				Action: cmd.PollCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "server-url",
						EnvVars: []string{"SERVER_URL"},
						Value:   "http://localhost:4211",
					},
					&cli.DurationFlag{
						Name:    "poll-interval",
						EnvVars: []string{"POLL_INTERVAL"},
						Value:   poller.DefaultInterval,
					},
					&cli.DurationFlag{
						Name:    "request-timeout",
						EnvVars: []string{"REQUEST_TIMEOUT"},
						Value:   control.DefaultTimeout,
					},
					&cli.DurationFlag{
						Name:    "reconcile-delay",
						EnvVars: []string{"RECONCILE_DELAY"},
						Value:   poller.DefaultReconcileDelay,
					},
					&cli.StringFlag{
						Name:    "log-level",
						EnvVars: []string{"LOG_LEVEL"},
						Value:   "WARN",
					},
				},
			},
			{
				Name:   "seed",
				Usage:  "create the fan and light records when missing",
				Action: cmd.SeedCommand,
				Flags:  []cli.Flag{databaseURL(), migrationsFolder(), logLevel()},
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations",
				Action: cmd.MigrateCommand,
				Flags:  []cli.Flag{databaseURL(), migrationsFolder(), logLevel()},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
