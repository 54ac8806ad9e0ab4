// Package dispatcher claims pending runs from persistence and drives them
// through the workflow runner. Claims happen on a cron schedule and on
// demand when a run.created event arrives.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/otelhelper"
	"github.com/probeflow/probeflow/pkg/persistence"
	"github.com/probeflow/probeflow/pkg/registry"
	"github.com/probeflow/probeflow/pkg/runner"
)

// DefaultSchedule polls every ten seconds as a safety net for events lost
// while the worker was down.
const DefaultSchedule = "@every 10s"

type Dispatcher struct {
	workerID    string
	schedule    string
	persistence persistence.Persistence
	registry    *registry.Registry
	sink        runner.ResultSink
	logger      *slog.Logger
	tracer      trace.Tracer

	cron *cron.Cron

	// drainMu serializes drains so the cron tick and event wake-ups never
	// execute runs concurrently within one worker.
	drainMu sync.Mutex
}

func New(
	workerID string,
	schedule string,
	p persistence.Persistence,
	reg *registry.Registry,
	sink runner.ResultSink,
	logger *slog.Logger,
) (*Dispatcher, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid dispatch schedule %q: %w", schedule, err)
	}

	return &Dispatcher{
		workerID:    workerID,
		schedule:    schedule,
		persistence: p,
		registry:    reg,
		sink:        sink,
		logger:      logger.With("module", "dispatcher", "worker_id", workerID),
		tracer:      otel.Tracer("dispatcher"),
	}, nil
}

// Start begins the scheduled polling. It drains once immediately so runs
// queued while the worker was down are picked up without waiting a tick.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.cron = cron.New()

	_, err := d.cron.AddFunc(d.schedule, func() {
		d.Drain(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule dispatch: %w", err)
	}

	d.cron.Start()
	d.logger.InfoContext(ctx, "dispatcher started", "schedule", d.schedule)

	go d.Drain(ctx)

	return nil
}

// Stop halts the schedule and waits for the tick in flight.
func (d *Dispatcher) Stop() {
	if d.cron != nil {
		<-d.cron.Stop().Done()
	}

	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	d.logger.Info("dispatcher stopped")
}

// Drain claims and executes pending runs until none remain.
func (d *Dispatcher) Drain(ctx context.Context) {
	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	for {
		if ctx.Err() != nil {
			return
		}

		run, err := d.persistence.RunRepository().ClaimPending(ctx, d.workerID)
		if err != nil {
			if !errors.Is(err, persistence.ErrNoPendingRuns) {
				d.logger.ErrorContext(ctx, "failed to claim pending run", "error", err)
			}

			return
		}

		d.execute(ctx, run)
	}
}

func (d *Dispatcher) execute(ctx context.Context, run *models.Run) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.execute",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
		attribute.String(otelhelper.WorkerIDKey, d.workerID),
	)
	defer span.End()

	logger := d.logger.With("run_id", run.ID, "workflow_id", run.WorkflowID)
	logger.InfoContext(ctx, "executing run")

	workflow, err := d.persistence.WorkflowRepository().GetByID(ctx, run.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)
		d.finishWithError(ctx, run, fmt.Errorf("failed to load workflow: %w", err))

		return
	}

	var environment *models.Environment

	if run.EnvironmentID != "" {
		environment, err = d.persistence.EnvironmentRepository().GetByID(ctx, run.EnvironmentID)
		if err != nil {
			otelhelper.SetError(span, err)
			d.finishWithError(ctx, run, fmt.Errorf("failed to load environment: %w", err))

			return
		}
	}

	r := runner.New(workflow, run, environment, nil, d.registry, d.sink, d.logger)

	finished, err := r.Run(ctx)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.WarnContext(ctx, "run finished with failure", "error", err)
	}

	if err := d.persistence.RunRepository().Save(ctx, finished); err != nil {
		logger.ErrorContext(ctx, "failed to persist finished run", "error", err)
	}
}

// finishWithError marks a claimed run failed when it cannot even start.
func (d *Dispatcher) finishWithError(ctx context.Context, run *models.Run, cause error) {
	d.logger.ErrorContext(ctx, "run aborted before execution", "run_id", run.ID, "error", cause)

	run.Status = models.RunStatusFailed
	run.Error = cause.Error()

	if err := d.persistence.RunRepository().Save(ctx, run); err != nil {
		d.logger.ErrorContext(ctx, "failed to persist aborted run", "run_id", run.ID, "error", err)
	}

	if d.sink != nil {
		d.sink.RunUpdated(ctx, run)
	}
}
