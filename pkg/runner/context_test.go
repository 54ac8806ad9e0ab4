package runner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/testutil"
)

func newTestContext(t *testing.T) *ExecutionContext {
	t.Helper()

	workflow := testutil.CreateTestWorkflow([]*models.Node{testutil.CreateTestNode(testutil.WithID("a"))}, nil)
	run := models.NewRun(workflow, "", nil)

	return NewExecutionContext(run, nil, nil)
}

func dataResult(nodeID string, data map[string]any) *models.NodeResult {
	return &models.NodeResult{
		NodeID:    nodeID,
		Kind:      models.NodeKindHTTPRequest,
		Status:    models.ResultStatusSuccess,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func TestExecutionContext_ResultOrdering(t *testing.T) {
	execCtx := newTestContext(t)

	execCtx.RecordResult(dataResult("a", map[string]any{"n": float64(1)}))
	execCtx.RecordResult(dataResult("b", map[string]any{"n": float64(2)}))

	first, ok := execCtx.ResultAt(0)
	require.True(t, ok)
	assert.Equal(t, float64(1), first["n"])

	second, ok := execCtx.ResultAt(1)
	require.True(t, ok)
	assert.Equal(t, float64(2), second["n"])

	_, ok = execCtx.ResultAt(2)
	assert.False(t, ok)
}

func TestExecutionContext_BranchContextOverridesGlobalOrder(t *testing.T) {
	execCtx := newTestContext(t)

	execCtx.RecordResult(dataResult("a", map[string]any{"n": float64(1)}))
	execCtx.RecordResult(dataResult("b", map[string]any{"n": float64(2)}))

	execCtx.SetBranchContext([]BranchResult{
		{NodeID: "b", Result: dataResult("b", map[string]any{"n": float64(2)})},
	})

	first, ok := execCtx.ResultAt(0)
	require.True(t, ok)
	assert.Equal(t, float64(2), first["n"])

	_, ok = execCtx.ResultAt(1)
	assert.False(t, ok, "the branch context bounds indexed lookups")

	execCtx.ClearBranchContext()

	first, ok = execCtx.ResultAt(0)
	require.True(t, ok)
	assert.Equal(t, float64(1), first["n"])
}

func TestExecutionContext_LatestDataResultSkipsControlNodes(t *testing.T) {
	execCtx := newTestContext(t)

	execCtx.RecordResult(dataResult("fetch", map[string]any{"statusCode": float64(200)}))
	execCtx.RecordResult(&models.NodeResult{
		NodeID: "check",
		Kind:   models.NodeKindAssertion,
		Status: models.ResultStatusSuccess,
		Data:   map[string]any{"passed": true},
	})

	latest, ok := execCtx.LatestDataResult()
	require.True(t, ok)
	assert.Equal(t, float64(200), latest["statusCode"])
}

func TestExecutionContext_FirstErrorCapturedOnce(t *testing.T) {
	execCtx := newTestContext(t)

	execCtx.RecordFailure("a", "first failure")
	execCtx.RecordFailure("b", "second failure")
	execCtx.RecordFailure("a", "repeat")

	assert.Equal(t, "first failure", execCtx.FirstError())
	assert.Equal(t, []string{"a", "b"}, execCtx.FailedNodes())
}

func TestExecutionContext_MergeStateCreatedExactlyOnce(t *testing.T) {
	execCtx := newTestContext(t)

	const goroutines = 32

	states := make([]*MergeState, goroutines)

	var wg sync.WaitGroup

	for i := range goroutines {
		wg.Add(1)

		go func(slot int) {
			defer wg.Done()

			states[slot] = execCtx.MergeState("join")
		}(i)
	}

	wg.Wait()

	for _, state := range states[1:] {
		assert.Same(t, states[0], state, "concurrent arrivals must share one lock instance")
	}
}

func TestRunner_DataAncestorWalk(t *testing.T) {
	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			testutil.CreateTestNode(testutil.WithID("fetch")),
			testutil.CreateTestNode(testutil.WithID("pause"), testutil.WithKind(models.NodeKindDelay), testutil.WithConfig(map[string]any{})),
			testutil.CreateTestNode(testutil.WithID("check"), testutil.WithKind(models.NodeKindAssertion), testutil.WithConfig(map[string]any{
				"assertions": []any{map[string]any{"operator": "exists", "path": "body"}},
			})),
		},
		[]*models.Edge{
			testutil.CreateTestEdge("fetch", "pause"),
			testutil.CreateTestEdge("pause", "check"),
		},
	)

	run := models.NewRun(workflow, "", nil)
	r := New(workflow, run, nil, nil, testRegistry(), nil, testLogger())

	assert.Equal(t, "fetch", r.dataAncestor("check"), "control nodes are walked through to the data producer")
	assert.Equal(t, "fetch", r.dataAncestor("pause"))
	assert.Equal(t, "fetch", r.dataAncestor("fetch"))
}
