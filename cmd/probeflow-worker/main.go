package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/probeflow/probeflow/pkg/cmd"
	"github.com/probeflow/probeflow/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "probeflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to claim and execute workflow runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
				Name:    "redis-url",
				Usage:   "Redis URL for oversized result offload (disabled when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "dispatch-schedule",
				Usage:   "Cron expression for the pending-run poll",
				Value:   "",
				Sources: cli.EnvVars("DISPATCH_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "file-root",
				Usage:   "Directory that confines file-based request body sources",
				Value:   "",
				Sources: cli.EnvVars("FILE_ROOT"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "initializing probeflow worker")

			registry := cmd.NewRegistry(logger, command.String("file-root"))

			eventBus := cmd.NewEventBus(
				command.String("event-bus"),
				command.String("kafka-brokers"),
				"probeflow-worker",
				logger,
			)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "failed to close persistence", "error", err)
				}
			}()

			worker, err := NewWorker(
				workerID,
				persistence,
				eventBus,
				registry,
				command.String("redis-url"),
				command.String("dispatch-schedule"),
				logger,
			)
			if err != nil {
				return err
			}

			return worker.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
