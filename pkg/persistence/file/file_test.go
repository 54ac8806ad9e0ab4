package file

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
	"github.com/probeflow/probeflow/pkg/testutil"
)

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestWorkflowRepository_RoundTrip(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{testutil.CreateTestNode(testutil.WithID("fetch"))},
		nil,
	)
	workflow.Variables = map[string]any{"baseUrl": "https://api.example.com"}

	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Len(t, loaded.Nodes, 2)
	assert.Equal(t, "https://api.example.com", loaded.Variables["baseUrl"])

	all, err := p.WorkflowRepository().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, p.WorkflowRepository().Delete(ctx, workflow.ID))

	_, err = p.WorkflowRepository().GetByID(ctx, workflow.ID)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestEnvironmentRepository_RoundTrip(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	environment := &models.Environment{
		ID:        "env-1",
		Name:      "staging",
		Variables: map[string]any{"host": "staging.example.com"},
		Secrets:   map[string]string{"apiToken": "t0ken"},
	}

	require.NoError(t, p.EnvironmentRepository().Save(ctx, environment))

	loaded, err := p.EnvironmentRepository().GetByID(ctx, "env-1")
	require.NoError(t, err)
	assert.Equal(t, "t0ken", loaded.Secrets["apiToken"])

	_, err = p.EnvironmentRepository().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrEnvironmentNotFound)
}

func TestRunRepository_ClaimPending(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{testutil.CreateTestNode(testutil.WithID("fetch"))},
		nil,
	)

	older := models.NewRun(workflow, "", nil)
	older.CreatedAt = time.Now().UTC().Add(-time.Minute)
	newer := models.NewRun(workflow, "", nil)

	require.NoError(t, p.RunRepository().Save(ctx, older))
	require.NoError(t, p.RunRepository().Save(ctx, newer))

	claimed, err := p.RunRepository().ClaimPending(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, older.ID, claimed.ID, "claims the oldest pending run")
	assert.Equal(t, models.RunStatusRunning, claimed.Status)
	assert.Equal(t, "worker-1", claimed.WorkerID)

	claimed, err = p.RunRepository().ClaimPending(ctx, "worker-2")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, claimed.ID)

	_, err = p.RunRepository().ClaimPending(ctx, "worker-3")
	assert.ErrorIs(t, err, persistence.ErrNoPendingRuns)
}

func TestRunRepository_ConcurrentClaims(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{testutil.CreateTestNode(testutil.WithID("fetch"))},
		nil,
	)

	const pending = 5

	for range pending {
		require.NoError(t, p.RunRepository().Save(ctx, models.NewRun(workflow, "", nil)))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
	)

	for range pending * 2 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			run, err := p.RunRepository().ClaimPending(ctx, "worker")
			if err != nil {
				return
			}

			mu.Lock()
			claimed[run.ID]++
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Len(t, claimed, pending)

	for id, count := range claimed {
		assert.Equal(t, 1, count, "run %s claimed more than once", id)
	}
}

func TestRunRepository_ListByWorkflow(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	wfA := testutil.CreateTestWorkflow([]*models.Node{testutil.CreateTestNode(testutil.WithID("a"))}, nil)
	wfB := testutil.CreateTestWorkflow([]*models.Node{testutil.CreateTestNode(testutil.WithID("b"))}, nil)

	require.NoError(t, p.RunRepository().Save(ctx, models.NewRun(wfA, "", nil)))
	require.NoError(t, p.RunRepository().Save(ctx, models.NewRun(wfA, "", nil)))
	require.NoError(t, p.RunRepository().Save(ctx, models.NewRun(wfB, "", nil)))

	runs, err := p.RunRepository().ListByWorkflow(ctx, wfA.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := newTestPersistence(t)
	assert.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence("/nonexistent/probeflow")
	assert.Error(t, missing.HealthCheck(context.Background()))
}
