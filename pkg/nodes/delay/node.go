// Package delay provides the delay node executor: a timed pause between
// workflow steps.
package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/protocol"
)

const defaultDelayMs = 1000

// Config defines the configuration payload for delay nodes.
type Config struct {
	DelayMs int `json:"delayMs"`
}

// Executor performs delay nodes.
type Executor struct{}

// NewExecutor creates an Executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Kind returns the node kind this executor handles.
func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindDelay
}

// ParseConfig parses and defaults a delay config payload.
func ParseConfig(config map[string]any) Config {
	parsed := Config{DelayMs: defaultDelayMs}

	if ms, ok := config["delayMs"].(float64); ok && ms >= 0 {
		parsed.DelayMs = int(ms)
	}

	return parsed
}

// Execute sleeps for the configured duration, honoring context cancellation.
func (e *Executor) Execute(ctx context.Context, node *models.Node, _ protocol.ExecutionView) (*models.NodeResult, error) {
	config := ParseConfig(node.Config)
	duration := time.Duration(config.DelayMs) * time.Millisecond

	start := time.Now()

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, fmt.Errorf("delay node %s interrupted: %w", node.ID, ctx.Err())
	}

	return &models.NodeResult{
		NodeID: node.ID,
		Kind:   models.NodeKindDelay,
		Status: models.ResultStatusSuccess,
		Data: map[string]any{
			"message": fmt.Sprintf("Waited %dms", config.DelayMs),
			"delayMs": float64(config.DelayMs),
		},
		DurationMs: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}, nil
}
