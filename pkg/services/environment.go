package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
)

// Environment manages named variable/secret sets that runs execute against.
type Environment struct {
	persistence persistence.Persistence
}

func NewEnvironment(persistence persistence.Persistence) *Environment {
	return &Environment{persistence: persistence}
}

func (e *Environment) List(ctx context.Context) ([]*models.Environment, error) {
	environments, err := e.persistence.EnvironmentRepository().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}

	return environments, nil
}

func (e *Environment) FetchByID(ctx context.Context, id string) (*models.Environment, error) {
	return e.persistence.EnvironmentRepository().GetByID(ctx, id)
}

func (e *Environment) Create(ctx context.Context, environment *models.Environment) (*models.Environment, error) {
	if environment == nil {
		return nil, ErrEnvironmentNil
	}

	if environment.Name == "" {
		return nil, NewValidationError("Create", "name_required", "environment name is required", ErrInvalidRequest)
	}

	if environment.ID == "" {
		environment.ID = uuid.New().String()
	}

	environment.CreatedAt = time.Now().UTC()

	if err := e.persistence.EnvironmentRepository().Save(ctx, environment); err != nil {
		return nil, fmt.Errorf("failed to save environment: %w", err)
	}

	return environment, nil
}

func (e *Environment) Update(ctx context.Context, id string, environment *models.Environment) (*models.Environment, error) {
	if environment == nil {
		return nil, ErrEnvironmentNil
	}

	existing, err := e.persistence.EnvironmentRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	environment.ID = existing.ID
	environment.CreatedAt = existing.CreatedAt

	if err := e.persistence.EnvironmentRepository().Save(ctx, environment); err != nil {
		return nil, fmt.Errorf("failed to update environment: %w", err)
	}

	return environment, nil
}

func (e *Environment) Delete(ctx context.Context, id string) error {
	return e.persistence.EnvironmentRepository().Delete(ctx, id)
}
