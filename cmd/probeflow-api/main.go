package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/probeflow/probeflow/pkg/cmd"
	"github.com/probeflow/probeflow/pkg/log"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "probeflow-api",
		Usage:                 "Create and manage API test workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (file path or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, channel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))
			logger := log.WithModule("api")

			logger.InfoContext(ctx, "initializing probeflow API")

			registry := cmd.NewRegistry(logger, "")
			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(
				command.String("event-bus"),
				command.String("kafka-brokers"),
				"probeflow-api",
				logger,
			)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "failed to close event bus", "error", err)
				}
			}()

			api := NewAPI(logger, persistence, registry, eventBus)

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
