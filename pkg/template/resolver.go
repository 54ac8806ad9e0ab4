// Package template resolves {{...}} placeholders against dynamic functions
// and the scoped variables of a workflow run (secrets, environment, workflow
// variables and previously recorded node results).
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/probeflow/probeflow/pkg/functions"
)

// ResultSource provides recorded node results for prev lookups. It is
// implemented by the runner's execution context.
type ResultSource interface {
	// ResultAt returns the Nth entry of the current branch context, or,
	// absent a branch context, the Nth globally recorded result in
	// insertion order.
	ResultAt(index int) (map[string]any, bool)
	// LatestDataResult returns the most recently recorded data-producing
	// result.
	LatestDataResult() (map[string]any, bool)
	// Value performs the flat execution-context lookup bare names fall
	// back to.
	Value(name string) (any, bool)
}

// Scope carries the resolution scopes for a single run.
type Scope struct {
	Secrets   map[string]string
	Env       map[string]any
	Variables map[string]any
	Results   ResultSource
}

// Resolver substitutes template placeholders. Resolution never fails: any
// placeholder that cannot be resolved is left in the output unchanged.
type Resolver struct {
	funcs *functions.Registry
}

// NewResolver creates a resolver backed by the given function registry.
func NewResolver(funcs *functions.Registry) *Resolver {
	return &Resolver{funcs: funcs}
}

var (
	placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	functionPattern    = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)\((.*)\)$`)
	indexedPrevPattern = regexp.MustCompile(`^prev\[(\d+)\](?:\.(.*))?$`)
)

// Resolve replaces every {{expr}} occurrence in text. Resolution order:
// function call, scope prefix (secrets/env/variables/prev), then a flat
// execution-context lookup for bare names.
func (r *Resolver) Resolve(text string, scope *Scope) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := strings.TrimSpace(placeholderPattern.FindStringSubmatch(match)[1])

		if value, ok := r.resolveExpr(expr, scope); ok {
			return Stringify(value)
		}

		return match
	})
}

func (r *Resolver) resolveExpr(expr string, scope *Scope) (any, bool) {
	if m := functionPattern.FindStringSubmatch(expr); m != nil {
		if out, ok := r.funcs.Call(m[1], ParseArgs(m[2])); ok {
			return out, true
		}
		// Unknown function names fall through to scope resolution.
	}

	if scope == nil {
		return nil, false
	}

	switch {
	case strings.HasPrefix(expr, "secrets."):
		return navigateStringMap(scope.Secrets, strings.TrimPrefix(expr, "secrets."))
	case strings.HasPrefix(expr, "env."):
		return Navigate(scope.Env, strings.TrimPrefix(expr, "env."))
	case strings.HasPrefix(expr, "variables."):
		return Navigate(scope.Variables, strings.TrimPrefix(expr, "variables."))
	}

	if m := indexedPrevPattern.FindStringSubmatch(expr); m != nil {
		return r.resolveIndexedPrev(m, scope)
	}

	if rest, ok := strings.CutPrefix(expr, "prev."); ok {
		if scope.Results == nil {
			return nil, false
		}

		result, ok := scope.Results.LatestDataResult()
		if !ok {
			return nil, false
		}

		return Navigate(result, rest)
	}

	if scope.Results != nil {
		if value, ok := scope.Results.Value(expr); ok {
			return value, true
		}
	}

	return nil, false
}

func (r *Resolver) resolveIndexedPrev(m []string, scope *Scope) (any, bool) {
	if scope.Results == nil {
		return nil, false
	}

	index, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}

	result, ok := scope.Results.ResultAt(index)
	if !ok {
		return nil, false
	}

	if m[2] == "" {
		return result, true
	}

	return Navigate(result, m[2])
}

func navigateStringMap(m map[string]string, path string) (any, bool) {
	if m == nil {
		return nil, false
	}

	value, ok := m[path]

	return value, ok
}

// ParseArgs splits a comma-separated argument list, respecting single and
// double quoted literals.
func ParseArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var (
		args    []string
		current strings.Builder
		quote   rune
	)

	for _, ch := range raw {
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				current.WriteRune(ch)
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}

	args = append(args, strings.TrimSpace(current.String()))

	return args
}

// Navigate walks a dotted/bracketed path (a.b[2].c) through nested maps and
// lists. It reports false for any missing key, out-of-range index or wrong
// container kind.
func Navigate(root any, path string) (any, bool) {
	current := root

	for _, token := range tokenizePath(path) {
		var ok bool

		current, ok = step(current, token)
		if !ok {
			return nil, false
		}
	}

	return current, true
}

type pathToken struct {
	key   string
	index int
	isIdx bool
}

func tokenizePath(path string) []pathToken {
	var tokens []pathToken

	for _, segment := range strings.Split(path, ".") {
		name := segment

		for {
			open := strings.IndexByte(name, '[')
			if open < 0 {
				if name != "" {
					tokens = append(tokens, pathToken{key: name})
				}

				break
			}

			if open > 0 {
				tokens = append(tokens, pathToken{key: name[:open]})
			}

			closing := strings.IndexByte(name[open:], ']')
			if closing < 0 {
				// Malformed index, keep it as a literal key so the
				// lookup fails instead of panicking.
				tokens = append(tokens, pathToken{key: name[open:]})

				break
			}

			idx, err := strconv.Atoi(name[open+1 : open+closing])
			if err != nil {
				tokens = append(tokens, pathToken{key: name[open : open+closing+1]})
			} else {
				tokens = append(tokens, pathToken{index: idx, isIdx: true})
			}

			name = name[open+closing+1:]
		}
	}

	return tokens
}

func step(current any, token pathToken) (any, bool) {
	if token.isIdx {
		list, ok := current.([]any)
		if !ok || token.index < 0 || token.index >= len(list) {
			return nil, false
		}

		return list[token.index], true
	}

	switch container := current.(type) {
	case map[string]any:
		value, ok := container[token.key]

		return value, ok
	case map[string]string:
		value, ok := container[token.key]

		return value, ok
	default:
		return nil, false
	}
}

// Stringify renders a resolved value for substitution into text. Maps and
// lists are JSON-encoded; everything else keeps its natural formatting.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(encoded)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
