// Package merge defines the configuration of merge nodes: the strategy
// governing how many predecessor branches must complete before the merge
// produces output, and the optional per-branch acceptance conditions. The
// synchronization itself is coordinated by the DAG walker.
package merge

import (
	"fmt"
	"strings"
)

// Strategy selects the merge policy.
type Strategy string

const (
	StrategyAll         Strategy = "all"
	StrategyAny         Strategy = "any"
	StrategyFirst       Strategy = "first"
	StrategyConditional Strategy = "conditional"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyAll, StrategyAny, StrategyFirst, StrategyConditional:
		return true
	default:
		return false
	}
}

// ConditionLogic combines multiple conditions bound to the same branch.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "AND"
	LogicOr  ConditionLogic = "OR"
)

// BranchCondition is an acceptance condition bound to a branch by index,
// used by the conditional strategy.
type BranchCondition struct {
	Branch   int    `json:"branch"`
	Source   string `json:"source"`
	Path     string `json:"path"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Config defines the configuration payload for merge nodes.
type Config struct {
	Strategy       Strategy          `json:"mergeStrategy"`
	Conditions     []BranchCondition `json:"conditions,omitempty"`
	ConditionLogic ConditionLogic    `json:"conditionLogic"`
}

// ParseConfig parses and defaults a merge config payload.
func ParseConfig(config map[string]any) (Config, error) {
	parsed := Config{Strategy: StrategyAll, ConditionLogic: LogicAnd}

	if strategy, ok := config["mergeStrategy"].(string); ok && strategy != "" {
		parsed.Strategy = Strategy(strategy)
	}

	if !parsed.Strategy.Valid() {
		return parsed, fmt.Errorf("invalid mergeStrategy %q (must be 'all', 'any', 'first' or 'conditional')", parsed.Strategy)
	}

	if logic, ok := config["conditionLogic"].(string); ok && logic != "" {
		parsed.ConditionLogic = ConditionLogic(strings.ToUpper(logic))
	}

	if parsed.ConditionLogic != LogicAnd && parsed.ConditionLogic != LogicOr {
		return parsed, fmt.Errorf("invalid conditionLogic %q (must be 'AND' or 'OR')", parsed.ConditionLogic)
	}

	raw, ok := config["conditions"].([]any)
	if !ok {
		return parsed, nil
	}

	for i, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			return parsed, fmt.Errorf("condition %d must be an object", i)
		}

		condition := BranchCondition{Source: "prev"}

		if branch, ok := entry["branch"].(float64); ok {
			condition.Branch = int(branch)
		}

		if source, ok := entry["source"].(string); ok && source != "" {
			condition.Source = source
		}

		condition.Path, _ = entry["path"].(string)

		condition.Operator, ok = entry["operator"].(string)
		if !ok || condition.Operator == "" {
			return parsed, fmt.Errorf("condition %d is missing an operator", i)
		}

		condition.Value, _ = entry["value"].(string)

		parsed.Conditions = append(parsed.Conditions, condition)
	}

	return parsed, nil
}

// ConditionsForBranch returns the conditions bound to the given branch index.
func (c Config) ConditionsForBranch(index int) []BranchCondition {
	var bound []BranchCondition

	for _, condition := range c.Conditions {
		if condition.Branch == index {
			bound = append(bound, condition)
		}
	}

	return bound
}

// Schema returns the JSON schema for merge node configuration.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mergeStrategy": map[string]any{
				"type":        "string",
				"description": "How many predecessor branches must complete: 'all' waits for every branch, 'any' keeps all completed-so-far, 'first' keeps the fastest branch, 'conditional' accepts branches per bound conditions",
				"enum":        []string{"all", "any", "first", "conditional"},
				"default":     "all",
			},
			"conditionLogic": map[string]any{
				"type":    "string",
				"enum":    []string{"AND", "OR"},
				"default": "AND",
			},
			"conditions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"branch":   map[string]any{"type": "number", "minimum": 0},
						"source":   map[string]any{"type": "string", "default": "prev"},
						"path":     map[string]any{"type": "string"},
						"operator": map[string]any{"type": "string"},
						"value":    map[string]any{"type": "string"},
					},
					"required": []string{"operator"},
				},
			},
		},
	}
}
