package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
	"github.com/probeflow/probeflow/pkg/registry"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow validates and stores workflow definitions. Graph structure and
// per-node configuration are checked on every save so the walker never sees
// a malformed definition.
type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, registry *registry.Registry) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    registry,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List retrieves all workflows.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Create validates and stores a new workflow.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	workflow.CreatedAt = time.Now().UTC()

	if err := w.validate(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// Update validates and stores changes to an existing workflow.
func (w *Workflow) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.ID = existing.ID
	workflow.CreatedAt = existing.CreatedAt

	if err := w.validate(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	return w.persistence.WorkflowRepository().Delete(ctx, id)
}

func (w *Workflow) validate(workflow *models.Workflow) error {
	if workflow.Name == "" {
		return ErrWorkflowNameRequired
	}

	if len(workflow.Nodes) == 0 {
		return ErrNodesRequired
	}

	if err := workflow.Validate(); err != nil {
		return NewValidationError("validate", "invalid_graph", err.Error(), ErrInvalidRequest)
	}

	for _, node := range workflow.Nodes {
		if err := w.registry.ValidateConfig(node.Kind, node.Config); err != nil {
			return NewValidationError("validate", "invalid_node_config",
				fmt.Sprintf("node %s: %v", node.ID, err), ErrInvalidRequest)
		}
	}

	return nil
}
