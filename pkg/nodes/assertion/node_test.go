package assertion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assertions "github.com/probeflow/probeflow/pkg/assertion"
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/testutil"
)

func assertionNode(specs ...map[string]any) *models.Node {
	items := make([]any, 0, len(specs))
	for _, spec := range specs {
		items = append(items, spec)
	}

	return testutil.CreateTestNode(
		testutil.WithKind(models.NodeKindAssertion),
		testutil.WithConfig(map[string]any{"assertions": items}),
	)
}

func httpResponseView() *testutil.FakeView {
	view := testutil.NewFakeView()
	view.LatestRes = map[string]any{
		"statusCode": float64(201),
		"body": map[string]any{
			"id":    "user-7",
			"items": []any{"a", "b", "c"},
		},
	}

	return view
}

func TestAssertionNode_Execute_AllPass(t *testing.T) {
	node := assertionNode(
		map[string]any{"source": assertions.SourceStatus, "operator": "equals", "value": "201"},
		map[string]any{"source": "prev", "path": "body.items", "operator": "count", "value": "3"},
	)

	result, err := NewExecutor().Execute(context.Background(), node, httpResponseView())
	require.NoError(t, err)

	assert.Equal(t, models.ResultStatusSuccess, result.Status)
	assert.Equal(t, true, result.Data["passed"])
	assert.Len(t, result.Data["passedAssertions"], 2)
	assert.Empty(t, result.Data["failedAssertions"])
}

func TestAssertionNode_Execute_FailureIsDataNotError(t *testing.T) {
	node := assertionNode(
		map[string]any{"source": assertions.SourceStatus, "operator": "equals", "value": "200"},
	)

	result, err := NewExecutor().Execute(context.Background(), node, httpResponseView())
	require.NoError(t, err, "a failed assertion is a result, not an execution error")

	assert.Equal(t, models.ResultStatusFailed, result.Status)
	assert.True(t, result.Failed())
	assert.Equal(t, false, result.Data["passed"])
	assert.Len(t, result.Data["failedAssertions"], 1)
}

func TestAssertionNode_Execute_TemplatedExpectedValue(t *testing.T) {
	node := assertionNode(
		map[string]any{"source": "prev", "path": "body.id", "operator": "equals", "value": "{{expectedId}}"},
	)

	view := httpResponseView()
	view.Values["expectedId"] = "user-7"

	result, err := NewExecutor().Execute(context.Background(), node, view)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusSuccess, result.Status)
}

func TestAssertionNode_Execute_VariableSource(t *testing.T) {
	node := assertionNode(
		map[string]any{"source": assertions.SourceVariables, "path": "retries", "operator": "gt", "value": "2"},
	)

	view := httpResponseView()
	view.Vars["retries"] = float64(5)

	result, err := NewExecutor().Execute(context.Background(), node, view)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusSuccess, result.Status)
}

func TestAssertionNode_ParseConfig_Errors(t *testing.T) {
	_, err := ParseConfig(map[string]any{})
	require.Error(t, err)

	_, err = ParseConfig(map[string]any{"assertions": []any{
		map[string]any{"source": "prev", "path": "status"},
	}})
	require.Error(t, err, "assertions without an operator are rejected")
}

func TestAssertionNode_ParseConfig_DefaultsSource(t *testing.T) {
	config, err := ParseConfig(map[string]any{"assertions": []any{
		map[string]any{"path": "status", "operator": "equals", "value": "200"},
	}})
	require.NoError(t, err)
	assert.Equal(t, assertions.SourcePrev, config.Assertions[0].Source)
}
