package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final. A run reaches a terminal
// status exactly once.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Run represents a single execution of a workflow. Variables is a snapshot
// taken at creation time (workflow variables merged with caller overrides)
// and is immutable thereafter.
type Run struct {
	ID            string                  `json:"id"`
	WorkflowID    string                  `json:"workflow_id"`
	EnvironmentID string                  `json:"environment_id,omitempty"`
	Status        RunStatus               `json:"status"`
	WorkerID      string                  `json:"worker_id,omitempty"`
	Variables     map[string]any          `json:"variables,omitempty"`
	NodeStatuses  map[string]ResultStatus `json:"node_statuses,omitempty"`
	FailedNodes   []string                `json:"failed_nodes,omitempty"`
	Error         string                  `json:"error,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	StartedAt     *time.Time              `json:"started_at,omitempty"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
	DurationMs    int64                   `json:"duration_ms"`
}

// NewRun creates a pending run for the workflow, snapshotting workflow
// variables merged with caller overrides (overrides win).
func NewRun(workflow *Workflow, environmentID string, overrides map[string]any) *Run {
	variables := make(map[string]any, len(workflow.Variables)+len(overrides))

	for k, v := range workflow.Variables {
		variables[k] = v
	}

	for k, v := range overrides {
		variables[k] = v
	}

	return &Run{
		ID:            "run-" + uuid.New().String(),
		WorkflowID:    workflow.ID,
		EnvironmentID: environmentID,
		Status:        RunStatusPending,
		Variables:     variables,
		NodeStatuses:  make(map[string]ResultStatus),
		CreatedAt:     time.Now().UTC(),
	}
}
