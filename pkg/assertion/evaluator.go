// Package assertion evaluates typed comparisons against values extracted
// from a run's recorded results, variables, headers and cookies.
package assertion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/probeflow/probeflow/pkg/template"
)

// Sources an assertion can read its actual value from.
const (
	SourcePrev      = "prev"
	SourceVariables = "variables"
	SourceStatus    = "status"
	SourceCookies   = "cookies"
	SourceHeaders   = "headers"
)

// Operators supported by Evaluate.
const (
	OpEquals      = "equals"
	OpNotEquals   = "notEquals"
	OpContains    = "contains"
	OpNotContains = "notContains"
	OpGt          = "gt"
	OpGte         = "gte"
	OpLt          = "lt"
	OpLte         = "lte"
	OpExists      = "exists"
	OpNotExists   = "notExists"
	OpCount       = "count"
)

// Target carries the data an assertion evaluates against: the nearest
// preceding data-producing result payload and the run variables.
type Target struct {
	Result    map[string]any
	Variables map[string]any
}

// Evaluation is the outcome of a single assertion.
type Evaluation struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Evaluate extracts the actual value addressed by source+path and compares
// it to expected using the operator. Pass/fail is data, never an error.
func Evaluate(source, path, operator, expected string, target Target) Evaluation {
	actual, found := extract(source, path, target)

	switch operator {
	case OpExists:
		return verdict(found, fmt.Sprintf("%s.%s exists", source, path), fmt.Sprintf("%s.%s does not exist", source, path))
	case OpNotExists:
		return verdict(!found, fmt.Sprintf("%s.%s does not exist", source, path), fmt.Sprintf("%s.%s exists", source, path))
	case OpCount:
		return evaluateCount(source, path, actual, expected)
	case OpContains, OpNotContains:
		return evaluateContains(source, path, operator, actual, expected)
	case OpEquals, OpNotEquals:
		return evaluateEquality(source, path, operator, actual, expected)
	case OpGt, OpGte, OpLt, OpLte:
		return evaluateNumeric(source, path, operator, actual, expected)
	default:
		return Evaluation{Passed: false, Message: fmt.Sprintf("unknown operator %q", operator)}
	}
}

func extract(source, path string, target Target) (any, bool) {
	switch source {
	case SourcePrev:
		// Compatibility: older workflows address the payload as
		// "response.body...".
		path = strings.TrimPrefix(path, "response.")

		if target.Result == nil {
			return nil, false
		}

		if path == "" {
			return target.Result, true
		}

		return template.Navigate(target.Result, path)
	case SourceVariables:
		return template.Navigate(target.Variables, path)
	case SourceStatus:
		if target.Result == nil {
			return nil, false
		}

		return template.Navigate(target.Result, "statusCode")
	case SourceCookies:
		if target.Result == nil {
			return nil, false
		}

		return template.Navigate(target.Result, "cookies."+path)
	case SourceHeaders:
		if target.Result == nil {
			return nil, false
		}

		return template.Navigate(target.Result, "headers."+path)
	default:
		return nil, false
	}
}

func evaluateEquality(source, path, operator string, actual any, expected string) Evaluation {
	actualStr := comparableString(actual)
	equal := actualStr == expected

	// Numeric equality tolerates representation differences (2 vs 2.0).
	if !equal {
		if an, aok := toNumber(actual); aok {
			if en, eok := parseNumber(expected); eok {
				equal = an == en
			}
		}
	}

	if operator == OpNotEquals {
		return verdict(!equal,
			fmt.Sprintf("%s.%s (%s) differs from %q", source, path, actualStr, expected),
			fmt.Sprintf("%s.%s equals %q", source, path, expected))
	}

	return verdict(equal,
		fmt.Sprintf("%s.%s equals %q", source, path, expected),
		fmt.Sprintf("%s.%s is %q, expected %q", source, path, actualStr, expected))
}

func evaluateContains(source, path, operator string, actual any, expected string) Evaluation {
	contains := false

	switch v := actual.(type) {
	case string:
		contains = strings.Contains(v, expected)
	case []any:
		for _, item := range v {
			if comparableString(item) == expected {
				contains = true

				break
			}
		}
	case map[string]any:
		_, contains = v[expected]
	}

	if operator == OpNotContains {
		return verdict(!contains,
			fmt.Sprintf("%s.%s does not contain %q", source, path, expected),
			fmt.Sprintf("%s.%s contains %q", source, path, expected))
	}

	return verdict(contains,
		fmt.Sprintf("%s.%s contains %q", source, path, expected),
		fmt.Sprintf("%s.%s does not contain %q", source, path, expected))
}

func evaluateNumeric(source, path, operator string, actual any, expected string) Evaluation {
	actualNum, aok := toNumber(actual)
	expectedNum, eok := parseNumber(expected)

	// Failed coercion makes numeric operators report false, not error.
	if !aok || !eok {
		return Evaluation{
			Passed:  false,
			Message: fmt.Sprintf("%s.%s: cannot compare %v with %q numerically", source, path, actual, expected),
		}
	}

	var passed bool

	switch operator {
	case OpGt:
		passed = actualNum > expectedNum
	case OpGte:
		passed = actualNum >= expectedNum
	case OpLt:
		passed = actualNum < expectedNum
	case OpLte:
		passed = actualNum <= expectedNum
	}

	return verdict(passed,
		fmt.Sprintf("%s.%s (%v) %s %v", source, path, actualNum, operator, expectedNum),
		fmt.Sprintf("%s.%s (%v) is not %s %v", source, path, actualNum, operator, expectedNum))
}

func evaluateCount(source, path string, actual any, expected string) Evaluation {
	expectedCount, err := strconv.Atoi(strings.TrimSpace(expected))
	if err != nil {
		return Evaluation{Passed: false, Message: fmt.Sprintf("count expects an integer, got %q", expected)}
	}

	count, ok := lengthOf(actual)
	if !ok {
		// Not a collection: a parsed integer value also satisfies count.
		if n, numOk := toNumber(actual); numOk {
			count = int(n)
		} else {
			return Evaluation{Passed: false, Message: fmt.Sprintf("%s.%s has no countable value", source, path)}
		}
	}

	return verdict(count == expectedCount,
		fmt.Sprintf("%s.%s has count %d", source, path, count),
		fmt.Sprintf("%s.%s has count %d, expected %d", source, path, count, expectedCount))
}

// toNumber coerces a value for numeric comparison. Lists and maps collapse
// to their length; strings are parsed, not measured.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		return parseNumber(n)
	case []any:
		return float64(len(n)), true
	case map[string]any:
		return float64(len(n)), true
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)

	return n, err == nil
}

func lengthOf(v any) (int, bool) {
	switch c := v.(type) {
	case []any:
		return len(c), true
	case map[string]any:
		return len(c), true
	case string:
		return len(c), true
	default:
		return 0, false
	}
}

func comparableString(v any) string {
	if v == nil {
		return ""
	}

	return template.Stringify(v)
}

func verdict(passed bool, passMsg, failMsg string) Evaluation {
	if passed {
		return Evaluation{Passed: true, Message: passMsg}
	}

	return Evaluation{Passed: false, Message: failMsg}
}
