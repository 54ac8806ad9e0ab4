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

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// List returns all workflows, newest first.
func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT id, name, nodes, edges, variables, settings, created_at, updated_at
		FROM workflows
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistence.NewStoreError("List", "workflow", "", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewStoreError("List", "workflow", "", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "workflow", "", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT id, name, nodes, edges, variables, settings, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "workflow", id, err)
	}

	return workflow, nil
}

// Save upserts the workflow. The node and edge sets are replaced wholesale.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	nodesJSON, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, fmt.Errorf("failed to marshal nodes: %w", err))
	}

	edgesJSON, err := json.Marshal(workflow.Edges)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, fmt.Errorf("failed to marshal edges: %w", err))
	}

	variablesJSON, err := json.Marshal(workflow.Variables)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, fmt.Errorf("failed to marshal variables: %w", err))
	}

	settingsJSON, err := json.Marshal(workflow.Settings)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, fmt.Errorf("failed to marshal settings: %w", err))
	}

	query := `
		INSERT INTO workflows (id, name, nodes, edges, variables, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			variables = EXCLUDED.variables,
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		nodesJSON,
		edgesJSON,
		variablesJSON,
		settingsJSON,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewStoreError("Delete", "workflow", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", "workflow", id, err)
	}

	if rowsAffected == 0 {
		return persistence.NewStoreError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func scanWorkflow(scanner interface{ Scan(dest ...any) error }) (*models.Workflow, error) {
	var (
		workflow                                         models.Workflow
		nodesJSON, edgesJSON, variablesJSON, settingsJSON []byte
	)

	err := scanner.Scan(
		&workflow.ID,
		&workflow.Name,
		&nodesJSON,
		&edgesJSON,
		&variablesJSON,
		&settingsJSON,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(nodesJSON, &workflow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(edgesJSON, &workflow.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if variablesJSON != nil {
		if err := json.Unmarshal(variablesJSON, &workflow.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	if err := json.Unmarshal(settingsJSON, &workflow.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	return &workflow, nil
}
