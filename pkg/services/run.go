package services

import (
	"context"
	"fmt"
	"time"

	"github.com/probeflow/probeflow/pkg/eventbus"
	"github.com/probeflow/probeflow/pkg/events"
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
)

// Run creates and queries workflow runs. Creation snapshots the workflow
// variables, stores the run as pending and announces it on the event bus so
// a worker can claim it.
type Run struct {
	persistence persistence.Persistence
	bus         eventbus.EventBus
}

func NewRun(persistence persistence.Persistence, bus eventbus.EventBus) *Run {
	return &Run{persistence: persistence, bus: bus}
}

// CreateRunRequest carries the parameters for starting a workflow run.
type CreateRunRequest struct {
	WorkflowID      string            `json:"workflow_id"      validate:"required"`
	EnvironmentID   string            `json:"environment_id,omitempty"`
	Variables       map[string]any    `json:"variables,omitempty"`
	SecretOverrides map[string]string `json:"secret_overrides,omitempty"`
}

// Create stores a pending run and publishes a run.created event. The
// referenced workflow and environment must exist; secret overrides are kept
// out of the stored run and the event.
func (r *Run) Create(ctx context.Context, req CreateRunRequest) (*models.Run, error) {
	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	if req.EnvironmentID != "" {
		_, err := r.persistence.EnvironmentRepository().GetByID(ctx, req.EnvironmentID)
		if err != nil {
			return nil, err
		}
	}

	run := models.NewRun(workflow, req.EnvironmentID, req.Variables)

	if err := r.persistence.RunRepository().Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	event := events.RunCreated{
		BaseEvent: events.BaseEvent{
			ID:         r.bus.GenerateID(),
			Type:       events.RunCreatedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: run.WorkflowID,
		},
		RunID:         run.ID,
		EnvironmentID: run.EnvironmentID,
	}

	if err := r.bus.Publish(ctx, run.WorkflowID, event); err != nil {
		return nil, fmt.Errorf("failed to publish run.created: %w", err)
	}

	return run, nil
}

// FetchByID retrieves a run by its ID.
func (r *Run) FetchByID(ctx context.Context, id string) (*models.Run, error) {
	return r.persistence.RunRepository().GetByID(ctx, id)
}

// ListByWorkflow retrieves all runs for a workflow.
func (r *Run) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Run, error) {
	runs, err := r.persistence.RunRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}
