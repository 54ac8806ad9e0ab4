package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
)

// EnvironmentRepository handles environment-related database operations.
// Secrets are stored as-is; masking happens at result-publication time, not
// at rest.
type EnvironmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewEnvironmentRepository(db *sql.DB, logger *slog.Logger) *EnvironmentRepository {
	return &EnvironmentRepository{db: db, logger: logger}
}

func (r *EnvironmentRepository) List(ctx context.Context) ([]*models.Environment, error) {
	query := `
		SELECT id, name, variables, secrets, created_at, updated_at
		FROM environments
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistence.NewStoreError("List", "environment", "", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	environments := make([]*models.Environment, 0)

	for rows.Next() {
		environment, err := scanEnvironment(rows)
		if err != nil {
			return nil, persistence.NewStoreError("List", "environment", "", err)
		}

		environments = append(environments, environment)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "environment", "", err)
	}

	return environments, nil
}

func (r *EnvironmentRepository) GetByID(ctx context.Context, id string) (*models.Environment, error) {
	query := `
		SELECT id, name, variables, secrets, created_at, updated_at
		FROM environments
		WHERE id = $1
	`

	environment, err := scanEnvironment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "environment", id, persistence.ErrEnvironmentNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "environment", id, err)
	}

	return environment, nil
}

func (r *EnvironmentRepository) Save(ctx context.Context, environment *models.Environment) error {
	now := time.Now().UTC()

	if environment.CreatedAt.IsZero() {
		environment.CreatedAt = now
	}

	environment.UpdatedAt = now

	variablesJSON, err := json.Marshal(environment.Variables)
	if err != nil {
		return persistence.NewStoreError("Save", "environment", environment.ID, fmt.Errorf("failed to marshal variables: %w", err))
	}

	secretsJSON, err := json.Marshal(environment.Secrets)
	if err != nil {
		return persistence.NewStoreError("Save", "environment", environment.ID, fmt.Errorf("failed to marshal secrets: %w", err))
	}

	query := `
		INSERT INTO environments (id, name, variables, secrets, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			variables = EXCLUDED.variables,
			secrets = EXCLUDED.secrets,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		environment.ID,
		environment.Name,
		variablesJSON,
		secretsJSON,
		environment.CreatedAt,
		environment.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "environment", environment.ID, err)
	}

	return nil
}

func (r *EnvironmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM environments WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStoreError("Delete", "environment", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", "environment", id, err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("Delete", "environment", id, persistence.ErrEnvironmentNotFound)
	}

	return nil
}

func scanEnvironment(scanner interface{ Scan(dest ...any) error }) (*models.Environment, error) {
	var (
		environment                models.Environment
		variablesJSON, secretsJSON []byte
	)

	err := scanner.Scan(
		&environment.ID,
		&environment.Name,
		&variablesJSON,
		&secretsJSON,
		&environment.CreatedAt,
		&environment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if variablesJSON != nil {
		if err := json.Unmarshal(variablesJSON, &environment.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	if secretsJSON != nil {
		if err := json.Unmarshal(secretsJSON, &environment.Secrets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal secrets: %w", err)
		}
	}

	return &environment, nil
}
