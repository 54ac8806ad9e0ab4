package condition

import (
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/protocol"
)

// Factory creates condition executors.
type Factory struct{}

// NewFactory creates a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Kind returns the node kind this factory serves.
func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindCondition
}

// Name returns the human-readable name for the node kind.
func (f *Factory) Name() string {
	return "Condition"
}

// Description returns a description of what the node does.
func (f *Factory) Description() string {
	return "Compares two templated operands and routes the branch on the true/false outcome"
}

// Create creates the executor.
func (f *Factory) Create() (protocol.NodeExecutor, error) {
	return NewExecutor(), nil
}

// Schema returns the JSON schema for condition node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"left": map[string]any{"type": "string"},
			"operator": map[string]any{
				"type": "string",
				"enum": []string{
					"equals", "notEquals", "contains", "notContains",
					"gt", "gte", "lt", "lte", "exists", "notExists",
				},
				"default": "equals",
			},
			"right": map[string]any{"type": "string"},
		},
		"required": []string{"left"},
	}
}
