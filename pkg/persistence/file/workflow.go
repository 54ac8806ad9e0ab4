package file

import (
	"context"
	"errors"
	"io/fs"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
)

// WorkflowRepository stores workflow documents as JSON files.
type WorkflowRepository struct {
	store *store
}

func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := r.store.ids()
	if err != nil {
		return nil, persistence.NewStoreError("List", "workflow", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	if err := r.store.read(id, &workflow); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "workflow", id, err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	if err := r.store.write(workflow.ID, workflow); err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	if err := r.store.delete(id); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewStoreError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewStoreError("Delete", "workflow", id, err)
	}

	return nil
}
