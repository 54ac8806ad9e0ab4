// Package events defines the event types published on the run lifecycle:
// run creation and completion, and per-node execution updates.
package events

import (
	"time"

	"github.com/probeflow/probeflow/pkg/models"
)

type EventType string

// Topics.
const (
	// RunTopic carries run lifecycle events.
	RunTopic = "probeflow.runs"
	// NodeTopic carries per-node execution updates.
	NodeTopic = "probeflow.nodes"
)

// Message metadata keys.
const (
	EventMetadataKey     = "key"
	EventTypeMetadataKey = "event_type"
)

const (
	// Run lifecycle events.
	RunCreatedEvent   EventType = "run.created"
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunCancelledEvent EventType = "run.cancelled"

	// Node execution events.
	NodeExecutionFinishedEvent EventType = "node.execution.finished"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RunCreated announces a new pending run awaiting a worker.
type RunCreated struct {
	BaseEvent

	RunID         string `json:"run_id"`
	EnvironmentID string `json:"environment_id,omitempty"`
}

func (e RunCreated) GetType() EventType {
	return RunCreatedEvent
}

// RunStarted marks the transition from pending to running.
type RunStarted struct {
	BaseEvent

	RunID string `json:"run_id"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

// RunCompleted marks a run that reached the completed terminal status.
type RunCompleted struct {
	BaseEvent

	RunID      string `json:"run_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

// RunFailed marks a run that reached the failed terminal status.
type RunFailed struct {
	BaseEvent

	RunID       string   `json:"run_id"`
	Error       string   `json:"error"`
	FailedNodes []string `json:"failed_nodes,omitempty"`
	DurationMs  int64    `json:"duration_ms"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// RunCancelled marks a run cancelled externally.
type RunCancelled struct {
	BaseEvent

	RunID string `json:"run_id"`
}

func (e RunCancelled) GetType() EventType {
	return RunCancelledEvent
}

// NodeExecutionFinished carries one node's result. Oversized result payloads
// are offloaded by the result sink; ResultRef then points at the stored
// large object and Data is left empty.
type NodeExecutionFinished struct {
	BaseEvent

	RunID        string              `json:"run_id"`
	NodeID       string              `json:"node_id"`
	Kind         models.NodeKind     `json:"kind"`
	Status       models.ResultStatus `json:"status"`
	Data         map[string]any      `json:"data,omitempty"`
	ResultRef    string              `json:"result_ref,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	DurationMs   int64               `json:"duration_ms"`
	CompletedAt  time.Time           `json:"completed_at"`
}

func (e NodeExecutionFinished) GetType() EventType {
	return NodeExecutionFinishedEvent
}
