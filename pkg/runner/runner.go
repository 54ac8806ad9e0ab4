// Package runner drives the execution of one workflow run: recursive
// traversal from the start node, concurrent branch fan-out, merge-point
// synchronization and failure-policy application.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/registry"
)

// maxTraversalDepth bounds the recursion: graph depth is caller-controlled
// and a cycle slipped past validation must not blow the stack.
const maxTraversalDepth = 1000

// Edge handles used to route on node outcomes.
const (
	handlePass  = "pass"
	handleFail  = "fail"
	handleTrue  = "true"
	handleFalse = "false"
)

// Runner walks the DAG of one run. It owns the run's ExecutionContext
// exclusively; a Runner is not reusable across runs.
type Runner struct {
	workflow *models.Workflow
	run      *models.Run
	registry *registry.Registry
	sink     ResultSink
	logger   *slog.Logger
	execCtx  *ExecutionContext
}

// New creates a Runner for one run of the given workflow. env may be nil;
// secretOverrides take precedence over environment secrets.
func New(
	workflow *models.Workflow,
	run *models.Run,
	env *models.Environment,
	secretOverrides map[string]string,
	reg *registry.Registry,
	sink ResultSink,
	logger *slog.Logger,
) *Runner {
	if sink == nil {
		sink = NoopSink{}
	}

	return &Runner{
		workflow: workflow,
		run:      run,
		registry: reg,
		sink:     sink,
		logger:   logger.With("module", "runner", "workflow_id", workflow.ID, "run_id", run.ID),
		execCtx:  NewExecutionContext(run, env, secretOverrides),
	}
}

// Run executes the workflow to termination and finalizes the run. The run
// reaches a terminal status exactly once; failed nodes at completion make
// the run failed even when traversal itself finished.
func (r *Runner) Run(ctx context.Context) (*models.Run, error) {
	start, err := r.workflow.StartNode()
	if err != nil {
		r.run.Status = models.RunStatusFailed
		r.run.Error = err.Error()
		r.sink.RunUpdated(ctx, r.run)

		return r.run, err
	}

	startedAt := time.Now().UTC()
	r.run.Status = models.RunStatusRunning
	r.run.StartedAt = &startedAt
	r.sink.RunUpdated(ctx, r.run)

	r.logger.Info("Starting workflow run", "nodes", len(r.workflow.Nodes))

	verdict := r.execute(ctx, start.ID, 0)

	r.finalize(ctx, verdict)

	return r.run, nil
}

func (r *Runner) finalize(ctx context.Context, verdict outcome) {
	completedAt := time.Now().UTC()
	r.run.CompletedAt = &completedAt

	if r.run.StartedAt != nil {
		r.run.DurationMs = completedAt.Sub(*r.run.StartedAt).Milliseconds()
	}

	r.run.NodeStatuses = r.execCtx.NodeStatuses()
	r.run.FailedNodes = r.execCtx.FailedNodes()
	r.run.Error = r.execCtx.MaskError(r.execCtx.FirstError())

	if verdict.failed() || len(r.run.FailedNodes) > 0 {
		r.run.Status = models.RunStatusFailed
	} else {
		r.run.Status = models.RunStatusCompleted
	}

	r.sink.RunUpdated(ctx, r.run)

	r.logger.Info("Workflow run finished",
		"status", r.run.Status,
		"duration_ms", r.run.DurationMs,
		"failed_nodes", len(r.run.FailedNodes))
}

// execute runs one node and recurses along its outgoing edges.
func (r *Runner) execute(ctx context.Context, nodeID string, depth int) outcome {
	if depth > maxTraversalDepth {
		reason := fmt.Sprintf("traversal depth exceeded at node %s", nodeID)
		r.execCtx.RecordFailure(nodeID, reason)

		return failOutcome(reason)
	}

	node, ok := r.workflow.NodeByID(nodeID)
	if !ok {
		reason := fmt.Sprintf("edge references unknown node %s", nodeID)
		r.execCtx.RecordFailure(nodeID, reason)

		return failOutcome(reason)
	}

	switch node.Kind {
	case models.NodeKindStart:
		return r.traverse(ctx, node, r.workflow.OutgoingEdges(node.ID), depth)
	case models.NodeKindEnd:
		return stopOutcome()
	case models.NodeKindMerge:
		verdict, already := r.executeMerge(ctx, node)
		if already {
			return stopOutcome()
		}

		if verdict.failed() {
			return r.applyFailurePolicy(ctx, node, verdict.reason, depth)
		}

		return r.traverse(ctx, node, r.workflow.OutgoingEdges(node.ID), depth)
	}

	r.installBranchContext(node)

	result, err := r.executeNode(ctx, node)
	if err != nil {
		r.logger.Error("Node execution failed", "node_id", node.ID, "error", err)

		r.recordResult(ctx, &models.NodeResult{
			NodeID:    node.ID,
			Kind:      node.Kind,
			Status:    models.ResultStatusError,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})

		return r.applyFailurePolicy(ctx, node, err.Error(), depth)
	}

	r.recordResult(ctx, result)

	switch node.Kind {
	case models.NodeKindAssertion:
		return r.routeAssertion(ctx, node, result, depth)
	case models.NodeKindCondition:
		return r.routeCondition(ctx, node, result, depth)
	}

	if result.Failed() {
		return r.applyFailurePolicy(ctx, node, failureMessage(result), depth)
	}

	return r.traverse(ctx, node, r.workflow.OutgoingEdges(node.ID), depth)
}

func (r *Runner) executeNode(ctx context.Context, node *models.Node) (*models.NodeResult, error) {
	executor, err := r.registry.CreateExecutor(node.Kind)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Executing node", "node_id", node.ID, "kind", node.Kind)

	return executor.Execute(ctx, node, r.execCtx)
}

// installBranchContext applies the branch context window: completed-merge
// results are visible to prev[N] only while the current node is about to
// branch again.
func (r *Runner) installBranchContext(node *models.Node) {
	var mergeResults []BranchResult

	for _, edge := range r.workflow.IncomingEdges(node.ID) {
		pred, ok := r.workflow.NodeByID(edge.Source)
		if !ok || pred.Kind != models.NodeKindMerge {
			continue
		}

		if state := r.execCtx.MergeState(pred.ID); state.Completed() {
			mergeResults = state.Results()

			break
		}
	}

	if mergeResults != nil && len(r.workflow.OutgoingEdges(node.ID)) > 1 {
		r.execCtx.SetBranchContext(mergeResults)
	} else {
		r.execCtx.ClearBranchContext()
	}
}

// applyFailurePolicy records the failure and either escalates it up the
// branch or, when the workflow continues on failure, logs and proceeds to
// the node's outgoing edges anyway.
func (r *Runner) applyFailurePolicy(ctx context.Context, node *models.Node, reason string, depth int) outcome {
	r.execCtx.RecordFailure(node.ID, reason)

	if r.workflow.Settings.ContinueOnFail {
		r.logger.Warn("Node failed, continuing on failure", "node_id", node.ID, "reason", reason)

		return r.traverse(ctx, node, r.workflow.OutgoingEdges(node.ID), depth)
	}

	return failOutcome(reason)
}

// routeAssertion partitions outgoing edges into handle-tagged and legacy
// ones. Tagged edges route on the pass/fail outcome; with only legacy edges
// a failed assertion aborts the branch (unless the workflow continues on
// failure) and then still proceeds along them.
func (r *Runner) routeAssertion(ctx context.Context, node *models.Node, result *models.NodeResult, depth int) outcome {
	passed, _ := result.Data["passed"].(bool)

	handle := handleFail
	if passed {
		handle = handlePass
	}

	var tagged, legacy []*models.Edge

	for _, edge := range r.workflow.OutgoingEdges(node.ID) {
		switch edge.SourceHandle {
		case handlePass, handleFail:
			tagged = append(tagged, edge)
		default:
			legacy = append(legacy, edge)
		}
	}

	if len(tagged) > 0 {
		var matching []*models.Edge

		for _, edge := range tagged {
			if edge.SourceHandle == handle {
				matching = append(matching, edge)
			}
		}

		if len(matching) == 0 {
			if !passed {
				r.execCtx.RecordFailure(node.ID, failureMessage(result))
			}

			return stopOutcome()
		}

		// The failed outcome was routed, not escalated.
		return r.traverse(ctx, node, matching, depth)
	}

	if !passed {
		reason := failureMessage(result)
		r.execCtx.RecordFailure(node.ID, reason)

		if !r.workflow.Settings.ContinueOnFail {
			return failOutcome(reason)
		}

		r.logger.Warn("Assertion failed, continuing on failure", "node_id", node.ID, "reason", reason)
	}

	return r.traverse(ctx, node, legacy, depth)
}

// routeCondition routes on the true/false outcome of a condition node.
// Edges without a true/false handle are followed unconditionally.
func (r *Runner) routeCondition(ctx context.Context, node *models.Node, result *models.NodeResult, depth int) outcome {
	value, _ := result.Data["result"].(string)

	var tagged, legacy []*models.Edge

	for _, edge := range r.workflow.OutgoingEdges(node.ID) {
		switch edge.SourceHandle {
		case handleTrue, handleFalse:
			tagged = append(tagged, edge)
		default:
			legacy = append(legacy, edge)
		}
	}

	if len(tagged) > 0 {
		var matching []*models.Edge

		for _, edge := range tagged {
			if edge.SourceHandle == value {
				matching = append(matching, edge)
			}
		}

		if len(matching) == 0 {
			return stopOutcome()
		}

		return r.traverse(ctx, node, matching, depth)
	}

	return r.traverse(ctx, node, legacy, depth)
}

// traverse continues along the given outgoing edges: sequentially for a
// single edge, as concurrent branch tasks for several. One branch's failure
// never cancels its siblings; only all branches failing escalates.
func (r *Runner) traverse(ctx context.Context, node *models.Node, edges []*models.Edge, depth int) outcome {
	switch len(edges) {
	case 0:
		return continueOutcome()
	case 1:
		return r.execute(ctx, edges[0].Target, depth+1)
	}

	// About to branch: prev[N] resolves against a merge node's own stored
	// results, anything else starts the branches clean.
	if node.Kind == models.NodeKindMerge {
		r.execCtx.SetBranchContext(r.execCtx.MergeState(node.ID).Results())
	} else {
		r.execCtx.ClearBranchContext()
	}

	spawned := 0
	verdicts := make([]outcome, len(edges))

	var wg sync.WaitGroup

	for i, edge := range edges {
		if target, ok := r.workflow.NodeByID(edge.Target); ok && target.Kind == models.NodeKindEnd {
			continue
		}

		spawned++

		wg.Add(1)

		go func(slot int, target string) {
			defer wg.Done()

			verdicts[slot] = r.execute(ctx, target, depth+1)
		}(i, edge.Target)
	}

	wg.Wait()

	if spawned == 0 {
		return continueOutcome()
	}

	failures := 0
	reason := ""

	for _, verdict := range verdicts {
		if verdict.failed() {
			failures++

			if reason == "" {
				reason = verdict.reason
			}
		}
	}

	// The individual failures are already on the failure list; only the
	// escalation decision is made here.
	if failures == spawned {
		if r.workflow.Settings.ContinueOnFail {
			r.logger.Warn("All branches failed, continuing on failure", "node_id", node.ID, "reason", reason)

			return continueOutcome()
		}

		return failOutcome(fmt.Sprintf("all %d branches failed: %s", spawned, reason))
	}

	if failures > 0 {
		r.logger.Warn("Partial branch failure tolerated",
			"node_id", node.ID,
			"failed", failures,
			"spawned", spawned)
	}

	return continueOutcome()
}

func (r *Runner) recordResult(ctx context.Context, result *models.NodeResult) {
	r.execCtx.RecordResult(result)
	r.sink.NodeCompleted(ctx, r.run.ID, r.execCtx.MaskResult(result))
}

func failureMessage(result *models.NodeResult) string {
	if result.Error != "" {
		return result.Error
	}

	if message, ok := result.Data["message"].(string); ok && message != "" {
		return message
	}

	return fmt.Sprintf("node %s failed with status %s", result.NodeID, result.Status)
}
