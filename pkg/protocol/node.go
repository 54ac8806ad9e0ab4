// Package protocol defines the interfaces and contracts between the DAG
// walker, node executors and the executor registry.
package protocol

import (
	"context"

	"github.com/probeflow/probeflow/pkg/assertion"
	"github.com/probeflow/probeflow/pkg/models"
)

// ExecutionView is the read/resolve surface a node executor sees of the
// running execution. It is implemented by the runner's execution context.
type ExecutionView interface {
	// RunID returns the id of the current run.
	RunID() string

	// WorkflowID returns the id of the workflow being executed.
	WorkflowID() string

	// Resolve substitutes {{...}} placeholders against the run's scopes.
	Resolve(text string) string

	// AssertionTarget returns the nearest preceding data-producing result
	// payload together with the run variables.
	AssertionTarget() assertion.Target

	// Variables returns the run's immutable variable snapshot.
	Variables() map[string]any

	// SetValue stores a flat execution-context value, reachable from
	// templates by bare name.
	SetValue(name string, value any)
}

// NodeExecutor implements the behavior of one node kind.
type NodeExecutor interface {
	// Kind returns the node kind this executor handles.
	Kind() models.NodeKind

	// Execute runs the node and returns its result. Assertion outcomes and
	// HTTP error statuses are data on the result, not errors; an error
	// return means the node could not be executed at all.
	Execute(ctx context.Context, node *models.Node, view ExecutionView) (*models.NodeResult, error)
}

// ExecutorFactory creates executors and provides metadata about a node kind.
type ExecutorFactory interface {
	// Kind returns the node kind this factory serves.
	Kind() models.NodeKind

	// Name returns the human-readable name for the node kind.
	Name() string

	// Description returns a description of what the node does.
	Description() string

	// Schema returns the JSON schema for the node's config payload.
	Schema() map[string]any

	// Create creates the executor.
	Create() (NodeExecutor, error)
}
