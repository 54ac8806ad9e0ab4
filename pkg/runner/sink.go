package runner

import (
	"context"

	"github.com/probeflow/probeflow/pkg/models"
)

// ResultSink receives per-node and per-run status updates as the walker
// progresses. Results are secret-masked before they reach the sink.
type ResultSink interface {
	NodeCompleted(ctx context.Context, runID string, result *models.NodeResult)
	RunUpdated(ctx context.Context, run *models.Run)
}

// NoopSink discards all updates.
type NoopSink struct{}

func (NoopSink) NodeCompleted(context.Context, string, *models.NodeResult) {}

func (NoopSink) RunUpdated(context.Context, *models.Run) {}
