package delay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/testutil"
)

func TestDelayNode_Execute(t *testing.T) {
	node := testutil.CreateTestNode(
		testutil.WithKind(models.NodeKindDelay),
		testutil.WithConfig(map[string]any{"delayMs": float64(50)}),
	)

	start := time.Now()

	result, err := NewExecutor().Execute(context.Background(), node, testutil.NewFakeView())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, models.ResultStatusSuccess, result.Status)
	assert.Equal(t, float64(50), result.Data["delayMs"])
}

func TestDelayNode_Execute_Cancelled(t *testing.T) {
	node := testutil.CreateTestNode(
		testutil.WithKind(models.NodeKindDelay),
		testutil.WithConfig(map[string]any{"delayMs": float64(5000)}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewExecutor().Execute(ctx, node, testutil.NewFakeView())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDelayNode_ParseConfig_Defaults(t *testing.T) {
	config := ParseConfig(map[string]any{})
	assert.Equal(t, 1000, config.DelayMs)

	config = ParseConfig(map[string]any{"delayMs": float64(-5)})
	assert.Equal(t, 1000, config.DelayMs, "negative delays fall back to the default")
}
