package runner

import (
	"sync"
	"sync/atomic"

	"github.com/probeflow/probeflow/pkg/assertion"
	"github.com/probeflow/probeflow/pkg/functions"
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/template"
)

// BranchResult is one predecessor result kept by a merge node, in branch
// order.
type BranchResult struct {
	NodeID string
	Result *models.NodeResult
}

// MergeState synchronizes concurrent arrivals at a single merge node. The
// completed flag is checked before and after acquiring the lock so late
// arrivals short-circuit instead of re-running the merge body.
type MergeState struct {
	mu        sync.Mutex
	completed atomic.Bool
	failed    atomic.Bool
	results   []BranchResult
}

// Completed reports whether the merge body already ran, successfully or not.
func (s *MergeState) Completed() bool {
	return s.completed.Load()
}

// Failed reports whether the merge body ran and raised a failure.
func (s *MergeState) Failed() bool {
	return s.failed.Load()
}

// Results returns the branch results chosen by the merge strategy. Only
// valid once Completed reports true.
func (s *MergeState) Results() []BranchResult {
	if !s.completed.Load() {
		return nil
	}

	return s.results
}

// complete publishes the merge verdict. The results slice must not be
// mutated afterwards; the atomic store orders it for late readers.
func (s *MergeState) complete(results []BranchResult, failed bool) {
	s.results = results
	s.failed.Store(failed)
	s.completed.Store(true)
}

// ExecutionContext is the mutable state of one run: recorded results in
// insertion order, the failure list, the current branch context and the
// per-merge-node synchronization states. It is owned by exactly one Runner
// and never shared across runs.
type ExecutionContext struct {
	runID      string
	workflowID string
	resolver   *template.Resolver
	secrets    map[string]string
	env        map[string]any
	vars       map[string]any

	mu          sync.Mutex
	results     map[string]*models.NodeResult
	order       []string
	failedNodes []string
	firstErr    string
	values      map[string]any
	branch      []BranchResult

	mergeStates sync.Map
}

// NewExecutionContext creates the context for a run. Caller-supplied secret
// overrides take precedence over the environment's secrets and are never
// persisted.
func NewExecutionContext(run *models.Run, env *models.Environment, secretOverrides map[string]string) *ExecutionContext {
	var envVars map[string]any
	if env != nil {
		envVars = env.Variables
	}

	return &ExecutionContext{
		runID:      run.ID,
		workflowID: run.WorkflowID,
		resolver:   template.NewResolver(functions.NewRegistry()),
		secrets:    env.MergedSecrets(secretOverrides),
		env:        envVars,
		vars:       run.Variables,
		results:    make(map[string]*models.NodeResult),
		values:     make(map[string]any),
	}
}

// RunID returns the id of the current run.
func (c *ExecutionContext) RunID() string {
	return c.runID
}

// WorkflowID returns the id of the workflow being executed.
func (c *ExecutionContext) WorkflowID() string {
	return c.workflowID
}

// Resolve substitutes {{...}} placeholders against the run's scopes.
func (c *ExecutionContext) Resolve(text string) string {
	return c.resolver.Resolve(text, &template.Scope{
		Secrets:   c.secrets,
		Env:       c.env,
		Variables: c.vars,
		Results:   c,
	})
}

// Variables returns the run's immutable variable snapshot.
func (c *ExecutionContext) Variables() map[string]any {
	return c.vars
}

// SetValue stores a flat execution-context value, reachable from templates
// by bare name.
func (c *ExecutionContext) SetValue(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[name] = value
}

// Value implements template.ResultSource over the flat value store.
func (c *ExecutionContext) Value(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.values[name]

	return value, ok
}

// RecordResult stores a node result. Insertion order is preserved for
// indexed prev[N] lookups outside a branch context.
func (c *ExecutionContext) RecordResult(result *models.NodeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.results[result.NodeID]; !seen {
		c.order = append(c.order, result.NodeID)
	}

	c.results[result.NodeID] = result
}

// ResultFor returns the recorded result of a node, if any.
func (c *ExecutionContext) ResultFor(nodeID string) (*models.NodeResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, ok := c.results[nodeID]

	return result, ok
}

// ResultAt implements template.ResultSource: prev[N] resolves against the
// current branch context when one is set, otherwise against the Nth globally
// recorded result in insertion order.
func (c *ExecutionContext) ResultAt(index int) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.branch) > 0 {
		if index < 0 || index >= len(c.branch) {
			return nil, false
		}

		return c.branch[index].Result.Data, true
	}

	if index < 0 || index >= len(c.order) {
		return nil, false
	}

	return c.results[c.order[index]].Data, true
}

// LatestDataResult implements template.ResultSource: the most recently
// recorded result of a data-producing node, unindexed.
func (c *ExecutionContext) LatestDataResult() (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.order) - 1; i >= 0; i-- {
		result := c.results[c.order[i]]
		if result.Kind.DataProducing() {
			return result.Data, true
		}
	}

	return nil, false
}

// AssertionTarget returns the nearest preceding data-producing payload
// together with the run variables.
func (c *ExecutionContext) AssertionTarget() assertion.Target {
	result, _ := c.LatestDataResult()

	return assertion.Target{Result: result, Variables: c.vars}
}

// RecordFailure appends the node to the failure list and captures the first
// failure message for run-level error reporting.
func (c *ExecutionContext) RecordFailure(nodeID, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.failedNodes {
		if id == nodeID {
			return
		}
	}

	c.failedNodes = append(c.failedNodes, nodeID)

	if c.firstErr == "" {
		c.firstErr = message
	}
}

// HasFailed reports whether the node is on the failure list.
func (c *ExecutionContext) HasFailed(nodeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.failedNodes {
		if id == nodeID {
			return true
		}
	}

	return false
}

// FailedNodes returns a copy of the failure list.
func (c *ExecutionContext) FailedNodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	failed := make([]string, len(c.failedNodes))
	copy(failed, c.failedNodes)

	return failed
}

// FirstError returns the first captured failure message.
func (c *ExecutionContext) FirstError() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.firstErr
}

// SetBranchContext installs the ordered merge results visible to prev[N]
// until the next branch point.
func (c *ExecutionContext) SetBranchContext(branch []BranchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.branch = branch
}

// ClearBranchContext drops the current branch context.
func (c *ExecutionContext) ClearBranchContext() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.branch = nil
}

// MergeState returns the synchronization state for a merge node, creating it
// exactly once even under concurrent arrivals.
func (c *ExecutionContext) MergeState(nodeID string) *MergeState {
	state, _ := c.mergeStates.LoadOrStore(nodeID, &MergeState{})

	return state.(*MergeState)
}

// NodeStatuses returns the per-node status map for run finalization.
func (c *ExecutionContext) NodeStatuses() map[string]models.ResultStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make(map[string]models.ResultStatus, len(c.results))
	for id, result := range c.results {
		statuses[id] = result.Status
	}

	return statuses
}

// MaskResult returns a copy of the result with every secret value replaced
// by the redaction marker, for handing off to the result sink.
func (c *ExecutionContext) MaskResult(result *models.NodeResult) *models.NodeResult {
	if len(c.secrets) == 0 {
		return result
	}

	masked := *result

	if data, ok := template.MaskSecrets(result.Data, c.secrets).(map[string]any); ok {
		masked.Data = data
	}

	if message, ok := template.MaskSecrets(result.Error, c.secrets).(string); ok {
		masked.Error = message
	}

	return &masked
}

// MaskError redacts secret values embedded in a run-level error message.
// Dispatch errors can echo the fully resolved request URL, so the message
// must pass through the same boundary as node results.
func (c *ExecutionContext) MaskError(message string) string {
	if message == "" || len(c.secrets) == 0 {
		return message
	}

	masked, _ := template.MaskSecrets(message, c.secrets).(string)

	return masked
}
