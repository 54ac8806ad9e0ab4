// Package models defines the core domain models for graph-based API test workflows.
package models

// NodeKind identifies the behavior of a workflow node. The set is closed:
// the walker and the executor registry dispatch exhaustively on it, so a new
// kind is a compile-time-visible change.
type NodeKind string

const (
	NodeKindStart       NodeKind = "start"
	NodeKindEnd         NodeKind = "end"
	NodeKindHTTPRequest NodeKind = "http-request"
	NodeKindDelay       NodeKind = "delay"
	NodeKindAssertion   NodeKind = "assertion"
	NodeKindMerge       NodeKind = "merge"
	NodeKindCondition   NodeKind = "condition"
)

// Valid reports whether the kind is one of the known node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindStart, NodeKindEnd, NodeKindHTTPRequest, NodeKindDelay,
		NodeKindAssertion, NodeKindMerge, NodeKindCondition:
		return true
	default:
		return false
	}
}

// DataProducing reports whether results of this kind carry response data
// usable by assertions and merges. Control kinds (delay, assertion, merge,
// condition, start, end) are not data-producing.
func (k NodeKind) DataProducing() bool {
	return k == NodeKindHTTPRequest
}

// Node represents a single node instance in a workflow graph.
type Node struct {
	ID     string         `json:"id"        validate:"required"`
	Kind   NodeKind       `json:"kind"      validate:"required"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config,omitempty"`
}

// Edge represents a directed connection between two nodes. SourceHandle is
// used by assertion and condition nodes to route on the evaluation outcome
// ("pass"/"fail" and "true"/"false" respectively).
type Edge struct {
	ID           string `json:"id"                     validate:"required"`
	Source       string `json:"source"                 validate:"required"`
	Target       string `json:"target"                 validate:"required"`
	Label        string `json:"label,omitempty"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}
