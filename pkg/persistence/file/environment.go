package file

import (
	"context"
	"errors"
	"io/fs"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
)

// EnvironmentRepository stores environment documents as JSON files. Secrets
// are stored as-is; the file backend is not meant for shared deployments.
type EnvironmentRepository struct {
	store *store
}

func (r *EnvironmentRepository) List(ctx context.Context) ([]*models.Environment, error) {
	ids, err := r.store.ids()
	if err != nil {
		return nil, persistence.NewStoreError("List", "environment", "", err)
	}

	environments := make([]*models.Environment, 0, len(ids))

	for _, id := range ids {
		environment, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		environments = append(environments, environment)
	}

	return environments, nil
}

func (r *EnvironmentRepository) GetByID(_ context.Context, id string) (*models.Environment, error) {
	var environment models.Environment

	if err := r.store.read(id, &environment); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewStoreError("GetByID", "environment", id, persistence.ErrEnvironmentNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "environment", id, err)
	}

	return &environment, nil
}

func (r *EnvironmentRepository) Save(_ context.Context, environment *models.Environment) error {
	if err := r.store.write(environment.ID, environment); err != nil {
		return persistence.NewStoreError("Save", "environment", environment.ID, err)
	}

	return nil
}

func (r *EnvironmentRepository) Delete(_ context.Context, id string) error {
	if err := r.store.delete(id); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.NewStoreError("Delete", "environment", id, persistence.ErrEnvironmentNotFound)
		}

		return persistence.NewStoreError("Delete", "environment", id, err)
	}

	return nil
}
