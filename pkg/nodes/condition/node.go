// Package condition provides the condition node executor: a two-operand
// comparison whose outcome routes the branch via edge source handles
// ("true"/"false").
package condition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/probeflow/probeflow/pkg/assertion"
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/protocol"
)

// Config defines the configuration payload for condition nodes. Both
// operands are resolved through the template engine before comparison.
type Config struct {
	Left     string `json:"left"`
	Operator string `json:"operator"`
	Right    string `json:"right"`
}

// Executor performs condition nodes.
type Executor struct{}

// NewExecutor creates an Executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Kind returns the node kind this executor handles.
func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindCondition
}

// ParseConfig parses a condition config payload.
func ParseConfig(config map[string]any) (Config, error) {
	parsed := Config{Operator: assertion.OpEquals}

	left, ok := config["left"].(string)
	if !ok {
		return parsed, errors.New("missing required field 'left'")
	}

	parsed.Left = left

	if operator, ok := config["operator"].(string); ok && operator != "" {
		parsed.Operator = operator
	}

	parsed.Right, _ = config["right"].(string)

	return parsed, nil
}

// Execute resolves both operands and compares them. The outcome is recorded
// as a flat context value ("conditionResult") for bare-name template lookups.
func (e *Executor) Execute(_ context.Context, node *models.Node, view protocol.ExecutionView) (*models.NodeResult, error) {
	config, err := ParseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("invalid condition config for node %s: %w", node.ID, err)
	}

	left := view.Resolve(config.Left)
	right := view.Resolve(config.Right)
	outcome := assertion.Compare(left, config.Operator, right)

	result := "false"
	if outcome {
		result = "true"
	}

	view.SetValue("conditionResult", result)

	expression := fmt.Sprintf("%s %s %s", left, config.Operator, right)

	return &models.NodeResult{
		NodeID: node.ID,
		Kind:   models.NodeKindCondition,
		Status: models.ResultStatusSuccess,
		Data: map[string]any{
			"result":     result,
			"expression": expression,
			"message":    fmt.Sprintf("Condition %q evaluated to %s", expression, result),
		},
		Timestamp: time.Now().UTC(),
	}, nil
}
