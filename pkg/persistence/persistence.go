// Package persistence abstracts the storage of workflow, environment and run
// documents.
package persistence

import (
	"context"

	"github.com/probeflow/probeflow/pkg/models"
)

// Persistence bundles the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	EnvironmentRepository() EnvironmentRepository
	RunRepository() RunRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow documents.
type WorkflowRepository interface {
	List(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// EnvironmentRepository stores environment documents, secrets included.
type EnvironmentRepository interface {
	List(ctx context.Context) ([]*models.Environment, error)
	GetByID(ctx context.Context, id string) (*models.Environment, error)
	Save(ctx context.Context, environment *models.Environment) error
	Delete(ctx context.Context, id string) error
}

// RunRepository stores runs and lets workers claim pending ones.
type RunRepository interface {
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Run, error)
	GetByID(ctx context.Context, id string) (*models.Run, error)
	Save(ctx context.Context, run *models.Run) error

	// ClaimPending atomically claims the oldest pending run and marks it
	// running, so two workers never pick up the same run. Returns
	// ErrNoPendingRuns when nothing is waiting.
	ClaimPending(ctx context.Context, workerID string) (*models.Run, error)
}
