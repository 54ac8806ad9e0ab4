package delay

import (
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/protocol"
)

// Factory creates delay executors.
type Factory struct{}

// NewFactory creates a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Kind returns the node kind this factory serves.
func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindDelay
}

// Name returns the human-readable name for the node kind.
func (f *Factory) Name() string {
	return "Delay"
}

// Description returns a description of what the node does.
func (f *Factory) Description() string {
	return "Pauses the current branch for a configured number of milliseconds"
}

// Create creates the executor.
func (f *Factory) Create() (protocol.NodeExecutor, error) {
	return NewExecutor(), nil
}

// Schema returns the JSON schema for delay node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"delayMs": map[string]any{
				"type":        "number",
				"description": "Milliseconds to wait before continuing",
				"minimum":     0,
				"default":     defaultDelayMs,
			},
		},
	}
}
