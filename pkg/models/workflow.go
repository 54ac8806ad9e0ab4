package models

import (
	"errors"
	"fmt"
	"time"
)

// WorkflowSettings holds workflow-level execution settings.
type WorkflowSettings struct {
	// ContinueOnFail makes the walker log node failures and proceed to the
	// node's outgoing edges instead of aborting the branch.
	ContinueOnFail bool `json:"continueOnFail"`
}

// Workflow represents a graph-shaped API test workflow: a node set, an edge
// set, workflow-level variables and execution settings.
type Workflow struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"      validate:"required,min=3"`
	Nodes     []*Node          `json:"nodes"`
	Edges     []*Edge          `json:"edges"`
	Variables map[string]any   `json:"variables,omitempty"`
	Settings  WorkflowSettings `json:"settings"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

var (
	ErrNoStartNode        = errors.New("workflow has no start node")
	ErrMultipleStartNodes = errors.New("workflow has more than one start node")
)

// StartNode returns the single start node of the workflow.
func (w *Workflow) StartNode() (*Node, error) {
	var start *Node

	for _, node := range w.Nodes {
		if node.Kind == NodeKindStart {
			if start != nil {
				return nil, ErrMultipleStartNodes
			}

			start = node
		}
	}

	if start == nil {
		return nil, ErrNoStartNode
	}

	return start, nil
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// OutgoingEdges returns the edges leaving the given node, in declaration
// order.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// IncomingEdges returns the edges entering the given node, in declaration
// order.
func (w *Workflow) IncomingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if edge.Target == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Validate checks the structural invariants of the graph: exactly one start
// node, unique node ids, known node kinds, and edge endpoints referencing
// existing nodes.
func (w *Workflow) Validate() error {
	if _, err := w.StartNode(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(w.Nodes))

	for _, node := range w.Nodes {
		if seen[node.ID] {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}

		seen[node.ID] = true

		if !node.Kind.Valid() {
			return fmt.Errorf("node %q has unknown kind %q", node.ID, node.Kind)
		}
	}

	for _, edge := range w.Edges {
		if !seen[edge.Source] {
			return fmt.Errorf("edge %q references missing source node %q", edge.ID, edge.Source)
		}

		if !seen[edge.Target] {
			return fmt.Errorf("edge %q references missing target node %q", edge.ID, edge.Target)
		}
	}

	return nil
}
