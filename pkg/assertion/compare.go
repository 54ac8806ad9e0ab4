package assertion

import "strings"

// Compare applies an operator to two already-resolved string operands. It is
// used by condition nodes, where both sides of the comparison come from
// template resolution.
func Compare(actual, operator, expected string) bool {
	switch operator {
	case OpEquals:
		if actual == expected {
			return true
		}

		an, aok := parseNumber(actual)
		en, eok := parseNumber(expected)

		return aok && eok && an == en
	case OpNotEquals:
		return !Compare(actual, OpEquals, expected)
	case OpContains:
		return strings.Contains(actual, expected)
	case OpNotContains:
		return !strings.Contains(actual, expected)
	case OpExists:
		return actual != ""
	case OpNotExists:
		return actual == ""
	case OpGt, OpGte, OpLt, OpLte:
		an, aok := parseNumber(actual)
		en, eok := parseNumber(expected)

		if !aok || !eok {
			return false
		}

		switch operator {
		case OpGt:
			return an > en
		case OpGte:
			return an >= en
		case OpLt:
			return an < en
		default:
			return an <= en
		}
	default:
		return false
	}
}
