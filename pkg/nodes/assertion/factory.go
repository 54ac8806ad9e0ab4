package assertion

import (
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/protocol"
)

// Factory creates assertion executors.
type Factory struct{}

// NewFactory creates a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Kind returns the node kind this factory serves.
func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindAssertion
}

// Name returns the human-readable name for the node kind.
func (f *Factory) Name() string {
	return "Assertion"
}

// Description returns a description of what the node does.
func (f *Factory) Description() string {
	return "Evaluates typed comparisons against the nearest preceding response and routes on the outcome"
}

// Create creates the executor.
func (f *Factory) Create() (protocol.NodeExecutor, error) {
	return NewExecutor(), nil
}

// Schema returns the JSON schema for assertion node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"assertions": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"source": map[string]any{
							"type":    "string",
							"enum":    []string{"prev", "variables", "status", "cookies", "headers"},
							"default": "prev",
						},
						"path": map[string]any{"type": "string"},
						"operator": map[string]any{
							"type": "string",
							"enum": []string{
								"equals", "notEquals", "contains", "notContains",
								"gt", "gte", "lt", "lte", "exists", "notExists", "count",
							},
						},
						"value": map[string]any{"type": "string"},
					},
					"required": []string{"operator"},
				},
			},
		},
		"required": []string{"assertions"},
	}
}
