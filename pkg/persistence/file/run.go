package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
)

// RunRepository stores run documents as JSON files. The claim lock is
// process-local; multi-worker deployments need the SQL backend.
type RunRepository struct {
	store *store
}

func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Run, error) {
	runs, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	filtered := runs[:0]

	for _, run := range runs {
		if run.WorkflowID == workflowID {
			filtered = append(filtered, run)
		}
	}

	return filtered, nil
}

func (r *RunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	var run models.Run

	if err := r.store.read(id, &run); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewStoreError("GetByID", "run", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "run", id, err)
	}

	return &run, nil
}

func (r *RunRepository) Save(_ context.Context, run *models.Run) error {
	if err := r.store.write(run.ID, run); err != nil {
		return persistence.NewStoreError("Save", "run", run.ID, err)
	}

	return nil
}

// ClaimPending claims the oldest pending run and marks it running under the
// store lock, so concurrent claimers in this process never get the same run.
func (r *RunRepository) ClaimPending(ctx context.Context, workerID string) (*models.Run, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	runs, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})

	for _, run := range runs {
		if run.Status != models.RunStatusPending {
			continue
		}

		run.Status = models.RunStatusRunning
		run.WorkerID = workerID

		if err := r.Save(ctx, run); err != nil {
			return nil, err
		}

		return run, nil
	}

	return nil, persistence.NewStoreError("ClaimPending", "run", "", persistence.ErrNoPendingRuns)
}

func (r *RunRepository) all(ctx context.Context) ([]*models.Run, error) {
	ids, err := r.store.ids()
	if err != nil {
		return nil, persistence.NewStoreError("List", "run", "", err)
	}

	runs := make([]*models.Run, 0, len(ids))

	for _, id := range ids {
		run, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, nil
}
