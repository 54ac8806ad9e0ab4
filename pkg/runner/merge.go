package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/probeflow/probeflow/pkg/assertion"
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/nodes/merge"
)

// Bounded wait for predecessor branches at a merge node. The timeout and
// effective polling granularity are externally observable behavior. Vars so
// tests can shrink the window.
var (
	mergeWaitTimeout  = 30 * time.Second
	mergePollInterval = 100 * time.Millisecond
)

// executeMerge runs the merge body under the node's lock. The second return
// value reports a late arrival: the merge already completed and the caller
// must stop its branch instead of continuing downstream a second time.
func (r *Runner) executeMerge(ctx context.Context, node *models.Node) (outcome, bool) {
	state := r.execCtx.MergeState(node.ID)
	if state.Completed() {
		return stopOutcome(), true
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.Completed() {
		return stopOutcome(), true
	}

	config, err := merge.ParseConfig(node.Config)
	if err != nil {
		return r.failMerge(ctx, node, state, err.Error()), false
	}

	incoming := r.workflow.IncomingEdges(node.ID)
	if len(incoming) == 0 {
		return r.failMerge(ctx, node, state, fmt.Sprintf("merge node %s has no predecessors", node.ID)), false
	}

	// Branch order is the incoming edge order; control predecessors are
	// replaced by their nearest data-producing ancestor.
	ancestors := make([]string, 0, len(incoming))
	for _, edge := range incoming {
		ancestors = append(ancestors, r.dataAncestor(edge.Source))
	}

	branches, reason := r.awaitBranches(config.Strategy, ancestors)
	if reason != "" {
		return r.failMerge(ctx, node, state, reason), false
	}

	if config.Strategy == merge.StrategyConditional {
		if reason := r.checkMergeConditions(config, branches); reason != "" {
			return r.failMerge(ctx, node, state, reason), false
		}
	}

	state.complete(branches, false)

	branchIDs := make([]any, 0, len(branches))
	for _, branch := range branches {
		branchIDs = append(branchIDs, branch.NodeID)
	}

	r.recordResult(ctx, &models.NodeResult{
		NodeID: node.ID,
		Kind:   models.NodeKindMerge,
		Status: models.ResultStatusSuccess,
		Data: map[string]any{
			"mergeStrategy": string(config.Strategy),
			"branchCount":   float64(len(branches)),
			"branches":      branchIDs,
		},
		Timestamp: time.Now().UTC(),
	})

	r.logger.Debug("Merge completed", "node_id", node.ID, "strategy", config.Strategy, "branches", len(branches))

	return continueOutcome(), false
}

// failMerge publishes the failed verdict so late arrivals short-circuit,
// records an error result and the failure. Must be called with state.mu
// held.
func (r *Runner) failMerge(ctx context.Context, node *models.Node, state *MergeState, reason string) outcome {
	state.complete(nil, true)

	r.execCtx.RecordFailure(node.ID, reason)
	r.recordResult(ctx, &models.NodeResult{
		NodeID:    node.ID,
		Kind:      models.NodeKindMerge,
		Status:    models.ResultStatusError,
		Error:     reason,
		Timestamp: time.Now().UTC(),
	})

	return failOutcome(reason)
}

// awaitBranches polls until the strategy's readiness condition holds or the
// bounded wait runs out. It returns the branch results chosen by the
// strategy, or a failure reason.
func (r *Runner) awaitBranches(strategy merge.Strategy, ancestors []string) ([]BranchResult, string) {
	deadline := time.Now().Add(mergeWaitTimeout)

	for {
		settled := 0
		failed := 0
		completed := make([]BranchResult, 0, len(ancestors))

		for _, ancestor := range ancestors {
			result, ok := r.execCtx.ResultFor(ancestor)

			switch {
			case ok && !result.Failed():
				settled++

				completed = append(completed, BranchResult{NodeID: ancestor, Result: result})
			case ok || r.execCtx.HasFailed(ancestor):
				settled++
				failed++
			}
		}

		switch strategy {
		case merge.StrategyAll, merge.StrategyConditional:
			if settled == len(ancestors) {
				if failed > 0 {
					return nil, fmt.Sprintf("%d of %d predecessor branch(es) failed", failed, len(ancestors))
				}

				return completed, ""
			}
		case merge.StrategyAny, merge.StrategyFirst:
			if len(completed) > 0 {
				if strategy == merge.StrategyFirst {
					return []BranchResult{fastestBranch(completed)}, ""
				}

				return completed, ""
			}

			if failed == len(ancestors) {
				return nil, fmt.Sprintf("all %d predecessor branch(es) failed", len(ancestors))
			}
		}

		if time.Now().After(deadline) {
			return nil, "timed out waiting for predecessor branches"
		}

		time.Sleep(mergePollInterval)
	}
}

// fastestBranch picks the branch with the minimum recorded duration.
func fastestBranch(branches []BranchResult) BranchResult {
	fastest := branches[0]

	for _, branch := range branches[1:] {
		if branch.Result.DurationMs < fastest.Result.DurationMs {
			fastest = branch
		}
	}

	return fastest
}

// checkMergeConditions applies per-branch acceptance: a branch with no bound
// conditions passes by default; any branch failing its conditions fails the
// whole merge.
func (r *Runner) checkMergeConditions(config merge.Config, branches []BranchResult) string {
	for i, branch := range branches {
		conditions := config.ConditionsForBranch(i)
		if len(conditions) == 0 {
			continue
		}

		target := assertion.Target{Result: branch.Result.Data, Variables: r.execCtx.Variables()}

		passed := 0

		for _, condition := range conditions {
			expected := r.execCtx.Resolve(condition.Value)
			if assertion.Evaluate(condition.Source, condition.Path, condition.Operator, expected, target).Passed {
				passed++
			}
		}

		accepted := passed == len(conditions)
		if config.ConditionLogic == merge.LogicOr {
			accepted = passed > 0
		}

		if !accepted {
			return fmt.Sprintf("branch %d (%s) failed merge conditions", i, branch.NodeID)
		}
	}

	return ""
}

// dataAncestor walks backward through single-predecessor chains until a
// data-producing node is found. Nodes with multiple predecessors are
// returned as-is.
func (r *Runner) dataAncestor(nodeID string) string {
	current := nodeID

	for range r.workflow.Nodes {
		node, ok := r.workflow.NodeByID(current)
		if !ok || node.Kind.DataProducing() {
			return current
		}

		incoming := r.workflow.IncomingEdges(current)
		if len(incoming) != 1 {
			return current
		}

		current = incoming[0].Source
	}

	return current
}
