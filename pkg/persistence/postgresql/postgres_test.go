package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
	"github.com/probeflow/probeflow/pkg/persistence/postgresql"
	"github.com/probeflow/probeflow/pkg/testutil"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"runs", "environments", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("probeflow_test"),
			postgres.WithUsername("probeflow"),
			postgres.WithPassword("probeflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflowRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx := setupTestDB(t)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			testutil.CreateTestNode(testutil.WithID("fetch")),
			testutil.CreateTestNode(testutil.WithID("check"), testutil.WithKind(models.NodeKindAssertion)),
		},
		[]*models.Edge{testutil.CreateTestEdge("fetch", "check")},
	)
	workflow.Variables = map[string]any{"baseUrl": "https://api.example.com"}
	workflow.Settings.ContinueOnFail = true

	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Len(t, loaded.Nodes, 3)
	assert.Len(t, loaded.Edges, 2)
	assert.True(t, loaded.Settings.ContinueOnFail)
	assert.Equal(t, "https://api.example.com", loaded.Variables["baseUrl"])

	// Upsert replaces the graph wholesale.
	workflow.Edges = workflow.Edges[:1]
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	loaded, err = p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Edges, 1)

	all, err := p.WorkflowRepository().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, p.WorkflowRepository().Delete(ctx, workflow.ID))

	_, err = p.WorkflowRepository().GetByID(ctx, workflow.ID)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestEnvironmentRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx := setupTestDB(t)

	environment := &models.Environment{
		ID:        "env-staging",
		Name:      "staging",
		Variables: map[string]any{"host": "staging.example.com"},
		Secrets:   map[string]string{"apiToken": "t0ken"},
	}

	require.NoError(t, p.EnvironmentRepository().Save(ctx, environment))

	loaded, err := p.EnvironmentRepository().GetByID(ctx, "env-staging")
	require.NoError(t, err)
	assert.Equal(t, "staging", loaded.Name)
	assert.Equal(t, "t0ken", loaded.Secrets["apiToken"])

	_, err = p.EnvironmentRepository().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrEnvironmentNotFound)
}

func TestRunRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx := setupTestDB(t)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{testutil.CreateTestNode(testutil.WithID("fetch"))},
		nil,
	)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	run := models.NewRun(workflow, "env-1", map[string]any{"userId": "u-7"})
	require.NoError(t, p.RunRepository().Save(ctx, run))

	loaded, err := p.RunRepository().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, loaded.Status)
	assert.Equal(t, "env-1", loaded.EnvironmentID)
	assert.Equal(t, "u-7", loaded.Variables["userId"])

	now := time.Now().UTC().Truncate(time.Millisecond)
	run.Status = models.RunStatusFailed
	run.StartedAt = &now
	run.CompletedAt = &now
	run.DurationMs = 1250
	run.Error = "node fetch failed"
	run.FailedNodes = []string{"fetch"}
	run.NodeStatuses = map[string]models.ResultStatus{"fetch": models.ResultStatusError}
	require.NoError(t, p.RunRepository().Save(ctx, run))

	loaded, err = p.RunRepository().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, loaded.Status)
	assert.Equal(t, []string{"fetch"}, loaded.FailedNodes)
	assert.Equal(t, models.ResultStatusError, loaded.NodeStatuses["fetch"])
	assert.Equal(t, int64(1250), loaded.DurationMs)
	require.NotNil(t, loaded.CompletedAt)

	runs, err := p.RunRepository().ListByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunRepository_ClaimPending(t *testing.T) {
	p, ctx := setupTestDB(t)

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

	persisted, err := p.RunRepository().GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, persisted.Status)

	claimed, err = p.RunRepository().ClaimPending(ctx, "worker-2")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, claimed.ID)

	_, err = p.RunRepository().ClaimPending(ctx, "worker-3")
	assert.ErrorIs(t, err, persistence.ErrNoPendingRuns)
}

func TestRunRepository_ConcurrentClaims(t *testing.T) {
	p, ctx := setupTestDB(t)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{testutil.CreateTestNode(testutil.WithID("fetch"))},
		nil,
	)

	const pending = 4

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
