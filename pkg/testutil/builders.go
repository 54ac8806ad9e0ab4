// Package testutil provides test data builders and fakes shared by tests.
package testutil

import (
	"github.com/google/uuid"

	"github.com/probeflow/probeflow/pkg/assertion"
	"github.com/probeflow/probeflow/pkg/functions"
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/template"
)

// CreateTestNode creates a workflow node with default values that can be
// overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:     uuid.New().String(),
		Kind:   models.NodeKindHTTPRequest,
		Name:   "Test Node",
		Config: map[string]any{"url": "https://example.com", "method": "GET"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithKind sets the node kind.
func WithKind(kind models.NodeKind) func(*models.Node) {
	return func(n *models.Node) {
		n.Kind = kind
	}
}

// WithID sets the node id.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// CreateTestEdge creates an edge between two nodes.
func CreateTestEdge(source, target string, overrides ...func(*models.Edge)) *models.Edge {
	edge := &models.Edge{
		ID:     uuid.New().String(),
		Source: source,
		Target: target,
	}

	for _, override := range overrides {
		override(edge)
	}

	return edge
}

// WithSourceHandle tags the edge with an outcome handle such as "pass",
// "fail", "true" or "false".
func WithSourceHandle(handle string) func(*models.Edge) {
	return func(e *models.Edge) {
		e.SourceHandle = handle
	}
}

// CreateTestWorkflow creates a workflow wrapping the given nodes and edges,
// prepending a start node wired to the first node when none is present.
func CreateTestWorkflow(nodes []*models.Node, edges []*models.Edge) *models.Workflow {
	hasStart := false

	for _, node := range nodes {
		if node.Kind == models.NodeKindStart {
			hasStart = true

			break
		}
	}

	if !hasStart && len(nodes) > 0 {
		start := CreateTestNode(WithID("start"), WithKind(models.NodeKindStart), WithConfig(nil))
		nodes = append([]*models.Node{start}, nodes...)

		wired := false

		for _, edge := range edges {
			if edge.Source == start.ID {
				wired = true

				break
			}
		}

		if !wired {
			edges = append([]*models.Edge{CreateTestEdge(start.ID, nodes[1].ID)}, edges...)
		}
	}

	return &models.Workflow{
		ID:    uuid.New().String(),
		Name:  "Test Workflow",
		Nodes: nodes,
		Edges: edges,
	}
}

// FakeView is a protocol.ExecutionView for executor tests. Template
// resolution runs against the configured scopes, and SetValue lands in
// Values.
type FakeView struct {
	Run       string
	Workflow  string
	Vars      map[string]any
	Env       map[string]any
	Secrets   map[string]string
	Values    map[string]any
	Target    assertion.Target
	LatestRes map[string]any

	resolver *template.Resolver
}

// NewFakeView creates a fake view with empty scopes.
func NewFakeView() *FakeView {
	return &FakeView{
		Run:      "run-test",
		Workflow: "wf-test",
		Vars:     make(map[string]any),
		Env:      make(map[string]any),
		Secrets:  make(map[string]string),
		Values:   make(map[string]any),
		resolver: template.NewResolver(functions.NewRegistry()),
	}
}

func (v *FakeView) RunID() string      { return v.Run }
func (v *FakeView) WorkflowID() string { return v.Workflow }

func (v *FakeView) Resolve(text string) string {
	return v.resolver.Resolve(text, &template.Scope{
		Secrets:   v.Secrets,
		Env:       v.Env,
		Variables: v.Vars,
		Results:   v,
	})
}

func (v *FakeView) AssertionTarget() assertion.Target {
	if v.Target.Result == nil && v.Target.Variables == nil {
		return assertion.Target{Result: v.LatestRes, Variables: v.Vars}
	}

	return v.Target
}

func (v *FakeView) Variables() map[string]any { return v.Vars }

func (v *FakeView) SetValue(name string, value any) {
	v.Values[name] = value
}

// ResultAt implements template.ResultSource over LatestRes only.
func (v *FakeView) ResultAt(index int) (map[string]any, bool) {
	if index == 0 && v.LatestRes != nil {
		return v.LatestRes, true
	}

	return nil, false
}

// LatestDataResult implements template.ResultSource.
func (v *FakeView) LatestDataResult() (map[string]any, bool) {
	if v.LatestRes == nil {
		return nil, false
	}

	return v.LatestRes, true
}

// Value implements template.ResultSource over the flat value store.
func (v *FakeView) Value(name string) (any, bool) {
	value, ok := v.Values[name]

	return value, ok
}
