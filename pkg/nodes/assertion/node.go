// Package assertion provides the assertion node executor. Pass/fail is data
// on the result; the walker decides routing from it.
package assertion

import (
	"context"
	"errors"
	"fmt"
	"time"

	assertions "github.com/probeflow/probeflow/pkg/assertion"
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/protocol"
)

// Spec is a single typed comparison inside an assertion node.
type Spec struct {
	Source   string `json:"source"`
	Path     string `json:"path"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Config defines the configuration payload for assertion nodes.
type Config struct {
	Assertions []Spec `json:"assertions"`
}

// Executor performs assertion nodes.
type Executor struct{}

// NewExecutor creates an Executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Kind returns the node kind this executor handles.
func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindAssertion
}

// ParseConfig parses an assertion config payload.
func ParseConfig(config map[string]any) (Config, error) {
	raw, ok := config["assertions"].([]any)
	if !ok || len(raw) == 0 {
		return Config{}, errors.New("missing required field 'assertions'")
	}

	parsed := Config{Assertions: make([]Spec, 0, len(raw))}

	for i, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return Config{}, fmt.Errorf("assertion %d must be an object", i)
		}

		spec := Spec{Source: assertions.SourcePrev}

		if source, ok := entry["source"].(string); ok && source != "" {
			spec.Source = source
		}

		spec.Path, _ = entry["path"].(string)

		spec.Operator, ok = entry["operator"].(string)
		if !ok || spec.Operator == "" {
			return Config{}, fmt.Errorf("assertion %d is missing an operator", i)
		}

		spec.Value, _ = entry["value"].(string)

		parsed.Assertions = append(parsed.Assertions, spec)
	}

	return parsed, nil
}

// Execute evaluates every configured assertion against the nearest preceding
// data-producing result. The node passes only if all assertions pass.
func (e *Executor) Execute(_ context.Context, node *models.Node, view protocol.ExecutionView) (*models.NodeResult, error) {
	config, err := ParseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("invalid assertion config for node %s: %w", node.ID, err)
	}

	target := view.AssertionTarget()

	var (
		passed []any
		failed []any
	)

	for _, spec := range config.Assertions {
		expected := view.Resolve(spec.Value)
		evaluation := assertions.Evaluate(spec.Source, spec.Path, spec.Operator, expected, target)

		entry := map[string]any{
			"source":   spec.Source,
			"path":     spec.Path,
			"operator": spec.Operator,
			"value":    expected,
			"message":  evaluation.Message,
		}

		if evaluation.Passed {
			passed = append(passed, entry)
		} else {
			failed = append(failed, entry)
		}
	}

	allPassed := len(failed) == 0

	status := models.ResultStatusSuccess
	message := fmt.Sprintf("%d assertion(s) passed", len(passed))

	if !allPassed {
		status = models.ResultStatusFailed
		message = fmt.Sprintf("%d of %d assertion(s) failed", len(failed), len(config.Assertions))
	}

	return &models.NodeResult{
		NodeID: node.ID,
		Kind:   models.NodeKindAssertion,
		Status: status,
		Data: map[string]any{
			"passed":           allPassed,
			"message":          message,
			"passedAssertions": passed,
			"failedAssertions": failed,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}
