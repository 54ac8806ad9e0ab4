package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
	id, workflow_id, environment_id, status, worker_id, variables,
	node_statuses, failed_nodes, error, created_at, started_at, completed_at,
	duration_ms
`

func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE workflow_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, persistence.NewStoreError("ListByWorkflow", "run", workflowID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ListByWorkflow", "run", workflowID, err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ListByWorkflow", "run", workflowID, err)
	}

	return runs, nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE id = $1
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("GetByID", "run", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "run", id, err)
	}

	return run, nil
}

func (r *RunRepository) Save(ctx context.Context, run *models.Run) error {
	variablesJSON, err := json.Marshal(run.Variables)
	if err != nil {
		return persistence.NewStoreError("Save", "run", run.ID, fmt.Errorf("failed to marshal variables: %w", err))
	}

	statusesJSON, err := json.Marshal(run.NodeStatuses)
	if err != nil {
		return persistence.NewStoreError("Save", "run", run.ID, fmt.Errorf("failed to marshal node statuses: %w", err))
	}

	failedJSON, err := json.Marshal(run.FailedNodes)
	if err != nil {
		return persistence.NewStoreError("Save", "run", run.ID, fmt.Errorf("failed to marshal failed nodes: %w", err))
	}

	query := `
		INSERT INTO runs (id, workflow_id, environment_id, status, worker_id,
			variables, node_statuses, failed_nodes, error, created_at,
			started_at, completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			worker_id = EXCLUDED.worker_id,
			variables = EXCLUDED.variables,
			node_statuses = EXCLUDED.node_statuses,
			failed_nodes = EXCLUDED.failed_nodes,
			error = EXCLUDED.error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		run.EnvironmentID,
		run.Status,
		run.WorkerID,
		variablesJSON,
		statusesJSON,
		failedJSON,
		run.Error,
		run.CreatedAt,
		run.StartedAt,
		run.CompletedAt,
		run.DurationMs,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "run", run.ID, err)
	}

	return nil
}

// ClaimPending atomically claims the oldest pending run for the worker.
// SKIP LOCKED lets concurrent workers claim distinct runs without blocking
// on each other.
func (r *RunRepository) ClaimPending(ctx context.Context, workerID string) (*models.Run, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewStoreError("ClaimPending", "run", "", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	selectQuery := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE status = $1
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`

	run, err := scanRun(tx.QueryRowContext(ctx, selectQuery, models.RunStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("ClaimPending", "run", "", persistence.ErrNoPendingRuns)
		}

		return nil, persistence.NewStoreError("ClaimPending", "run", "", err)
	}

	run.Status = models.RunStatusRunning
	run.WorkerID = workerID

	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET status = $1, worker_id = $2 WHERE id = $3`,
		run.Status, run.WorkerID, run.ID,
	)
	if err != nil {
		return nil, persistence.NewStoreError("ClaimPending", "run", run.ID, err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, persistence.NewStoreError("ClaimPending", "run", run.ID, err)
	}

	return run, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*models.Run, error) {
	var (
		run                                    models.Run
		variablesJSON, statusesJSON, failedJSON []byte
		environmentID, workerID, errorMessage  sql.NullString
	)

	err := scanner.Scan(
		&run.ID,
		&run.WorkflowID,
		&environmentID,
		&run.Status,
		&workerID,
		&variablesJSON,
		&statusesJSON,
		&failedJSON,
		&errorMessage,
		&run.CreatedAt,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	run.EnvironmentID = environmentID.String
	run.WorkerID = workerID.String
	run.Error = errorMessage.String

	if variablesJSON != nil {
		if err := json.Unmarshal(variablesJSON, &run.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	if statusesJSON != nil {
		if err := json.Unmarshal(statusesJSON, &run.NodeStatuses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node statuses: %w", err)
		}
	}

	if failedJSON != nil {
		if err := json.Unmarshal(failedJSON, &run.FailedNodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed nodes: %w", err)
		}
	}

	return &run, nil
}
