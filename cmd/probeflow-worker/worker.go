// Package main provides the probeflow worker: it claims pending runs,
// executes them and publishes results on the event bus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/probeflow/probeflow/pkg/dispatcher"
	"github.com/probeflow/probeflow/pkg/eventbus"
	"github.com/probeflow/probeflow/pkg/events"
	"github.com/probeflow/probeflow/pkg/otelhelper"
	"github.com/probeflow/probeflow/pkg/persistence"
	"github.com/probeflow/probeflow/pkg/registry"
	"github.com/probeflow/probeflow/pkg/resultsink"
)

type Worker struct {
	id          string
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	dispatcher  *dispatcher.Dispatcher
	logger      *slog.Logger
}

func NewWorker(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	reg *registry.Registry,
	redisURL string,
	schedule string,
	logger *slog.Logger,
) (*Worker, error) {
	var store resultsink.LargeObjectStore

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}

		store = resultsink.NewRedisStore(redis.NewClient(opts), 0)
	}

	sink := resultsink.NewEventSink(eventBus, store, id, logger)

	d, err := dispatcher.New(id, schedule, p, reg, sink, logger)
	if err != nil {
		return nil, err
	}

	return &Worker{
		id:          id,
		persistence: p,
		eventBus:    eventBus,
		dispatcher:  d,
		logger:      logger,
	}, nil
}

// Start runs until SIGINT or SIGTERM. Pending runs are claimed on the
// dispatch schedule and immediately when a run.created event arrives.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := otelhelper.NewTracer(ctx, "probeflow-worker"); err != nil {
		w.logger.WarnContext(ctx, "tracing disabled", "error", err)
	}

	err := w.eventBus.Handle(events.RunCreatedEvent, func(ctx context.Context, event any) error {
		created, ok := event.(*events.RunCreated)
		if !ok {
			return nil
		}

		w.logger.InfoContext(ctx, "run created, draining",
			"run_id", created.RunID, "workflow_id", created.WorkflowID)
		w.dispatcher.Drain(ctx)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register run.created handler: %w", err)
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	if err := w.dispatcher.Start(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.Info("shutting down worker")
	cancel()
	w.dispatcher.Stop()

	return nil
}
