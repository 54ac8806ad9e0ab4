package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/pkg/httpclient"
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/registry"
	"github.com/probeflow/probeflow/pkg/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *registry.Registry {
	r := registry.NewRegistry(testLogger())
	r.RegisterDefaultNodes(httpclient.NewClient(), "")

	return r
}

func runWorkflow(t *testing.T, workflow *models.Workflow) *models.Run {
	t.Helper()

	run := models.NewRun(workflow, "", nil)
	r := New(workflow, run, nil, nil, testRegistry(), nil, testLogger())

	finished, err := r.Run(context.Background())
	require.NoError(t, err)

	return finished
}

// countingServer responds with the given payload and counts hits per path.
type countingServer struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newCountingServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *countingServer {
	t.Helper()

	server := &countingServer{hits: make(map[string]int)}

	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.mu.Lock()
		server.hits[r.URL.Path]++
		server.mu.Unlock()

		if handler != nil {
			handler(w, r)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))

	t.Cleanup(server.Close)

	return server
}

func (s *countingServer) hitsFor(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hits[path]
}

func httpNode(id, url string) *models.Node {
	return testutil.CreateTestNode(testutil.WithID(id), testutil.WithConfig(map[string]any{"url": url}))
}

func mergeNode(id, strategy string) *models.Node {
	return testutil.CreateTestNode(
		testutil.WithID(id),
		testutil.WithKind(models.NodeKindMerge),
		testutil.WithConfig(map[string]any{"mergeStrategy": strategy}),
	)
}

func edge(source, target string) *models.Edge {
	return testutil.CreateTestEdge(source, target)
}

func TestRunner_LinearWorkflow(t *testing.T) {
	server := newCountingServer(t, nil)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("fetch", server.URL+"/fetch"),
			testutil.CreateTestNode(testutil.WithID("check"), testutil.WithKind(models.NodeKindAssertion), testutil.WithConfig(map[string]any{
				"assertions": []any{
					map[string]any{"source": "status", "operator": "equals", "value": "200"},
				},
			})),
			testutil.CreateTestNode(testutil.WithID("done"), testutil.WithKind(models.NodeKindEnd), testutil.WithConfig(nil)),
		},
		[]*models.Edge{edge("fetch", "check"), edge("check", "done")},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Empty(t, run.FailedNodes)
	assert.Equal(t, 1, server.hitsFor("/fetch"), "each node is visited exactly once")
	assert.Equal(t, models.ResultStatusSuccess, run.NodeStatuses["fetch"])
	assert.Equal(t, models.ResultStatusSuccess, run.NodeStatuses["check"])
	assert.NotNil(t, run.CompletedAt)
}

func TestRunner_FailureAbortsBranch(t *testing.T) {
	server := newCountingServer(t, nil)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("a", "http://127.0.0.1:1/unreachable"),
			httpNode("b", server.URL+"/b"),
		},
		[]*models.Edge{edge("a", "b")},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, []string{"a"}, run.FailedNodes)
	assert.NotEmpty(t, run.Error)
	assert.Equal(t, 0, server.hitsFor("/b"), "downstream of a failed node must not run")
}

func TestRunner_ContinueOnFailProceedsDownstream(t *testing.T) {
	server := newCountingServer(t, nil)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("a", "http://127.0.0.1:1/unreachable"),
			httpNode("b", server.URL+"/b"),
		},
		[]*models.Edge{edge("a", "b")},
	)
	workflow.Settings.ContinueOnFail = true

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusFailed, run.Status, "failed nodes still fail the run at completion")
	assert.Contains(t, run.FailedNodes, "a")
	assert.Equal(t, 1, server.hitsFor("/b"))
}

func TestRunner_MergeAll_PredecessorErrorFailsMerge(t *testing.T) {
	server := newCountingServer(t, nil)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("a", server.URL+"/a"),
			httpNode("b", "http://127.0.0.1:1/unreachable"),
			mergeNode("join", "all"),
			httpNode("c", server.URL+"/c"),
		},
		[]*models.Edge{
			edge("start", "a"),
			edge("start", "b"),
			edge("a", "join"),
			edge("b", "join"),
			edge("join", "c"),
		},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.FailedNodes, "b")
	assert.Contains(t, run.FailedNodes, "join")
	assert.Equal(t, models.ResultStatusError, run.NodeStatuses["join"], "the merge produces no success result")
	assert.Equal(t, 0, server.hitsFor("/c"))
}

func TestRunner_MergeAll_UnsettledBranchTimesOut(t *testing.T) {
	savedTimeout, savedPoll := mergeWaitTimeout, mergePollInterval
	mergeWaitTimeout, mergePollInterval = 250*time.Millisecond, 10*time.Millisecond

	t.Cleanup(func() {
		mergeWaitTimeout, mergePollInterval = savedTimeout, savedPoll
	})

	server := newCountingServer(t, nil)

	// "orphan" feeds the merge but is never reached from start, so its
	// branch never settles and the bounded wait has to run out.
	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("a", server.URL+"/a"),
			httpNode("orphan", server.URL+"/orphan"),
			mergeNode("join", "all"),
			httpNode("c", server.URL+"/c"),
		},
		[]*models.Edge{
			edge("start", "a"),
			edge("a", "join"),
			edge("orphan", "join"),
			edge("join", "c"),
		},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.FailedNodes, "join")
	assert.Contains(t, run.Error, "timed out waiting for predecessor branches")
	assert.Equal(t, 0, server.hitsFor("/c"))
}

func TestRunner_ConcurrentMerge_SingleDownstreamExecution(t *testing.T) {
	server := newCountingServer(t, nil)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("a", server.URL+"/a"),
			httpNode("b", server.URL+"/b"),
			mergeNode("join", "all"),
			httpNode("c", server.URL+"/c"),
		},
		[]*models.Edge{
			edge("start", "a"),
			edge("start", "b"),
			edge("a", "join"),
			edge("b", "join"),
			edge("join", "c"),
		},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, server.hitsFor("/c"), "exactly one arrival executes the merge body")
	assert.Equal(t, models.ResultStatusSuccess, run.NodeStatuses["join"])
}

func TestRunner_MergeFirst_KeepsFastestBranch(t *testing.T) {
	var checked atomic.Value

	server := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fast":
			time.Sleep(50 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tag": "fast"}`))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tag": "slow"}`))
		default:
			checked.Store(r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}
	})

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("slow", server.URL+"/slow"),
			httpNode("fast", server.URL+"/fast"),
			mergeNode("join", "first"),
			httpNode("probe", server.URL+"/check/{{prev[0].body.tag}}"),
		},
		[]*models.Edge{
			edge("start", "slow"),
			edge("start", "fast"),
			edge("slow", "join"),
			edge("fast", "join"),
			edge("join", "probe"),
		},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "/check/fast", checked.Load(), "prev[0] resolves to the fastest branch regardless of edge order")
}

func TestRunner_MergeAny_ToleratesPartialFailure(t *testing.T) {
	server := newCountingServer(t, nil)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("a", server.URL+"/a"),
			httpNode("b", "http://127.0.0.1:1/unreachable"),
			mergeNode("join", "any"),
			httpNode("c", server.URL+"/c"),
		},
		[]*models.Edge{
			edge("start", "a"),
			edge("start", "b"),
			edge("a", "join"),
			edge("b", "join"),
			edge("join", "c"),
		},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusFailed, run.Status, "the failed branch still fails the run at completion")
	assert.Contains(t, run.FailedNodes, "b")
	assert.NotContains(t, run.FailedNodes, "join")
	assert.Equal(t, 1, server.hitsFor("/c"), "the merge proceeds on the surviving branch")
}

func TestRunner_MergeConditional(t *testing.T) {
	payload := func(status int) func(w http.ResponseWriter, r *http.Request) {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{"path": r.URL.Path})
		}
	}

	server := newCountingServer(t, payload(http.StatusOK))

	build := func(operatorValue string) *models.Workflow {
		join := testutil.CreateTestNode(
			testutil.WithID("join"),
			testutil.WithKind(models.NodeKindMerge),
			testutil.WithConfig(map[string]any{
				"mergeStrategy": "conditional",
				"conditions": []any{
					map[string]any{"branch": float64(0), "source": "status", "operator": "equals", "value": operatorValue},
				},
			}),
		)

		return testutil.CreateTestWorkflow(
			[]*models.Node{
				httpNode("a", server.URL+"/a"),
				httpNode("b", server.URL+"/b"),
				join,
				httpNode("c", server.URL+"/c"),
			},
			[]*models.Edge{
				edge("start", "a"),
				edge("start", "b"),
				edge("a", "join"),
				edge("b", "join"),
				edge("join", "c"),
			},
		)
	}

	run := runWorkflow(t, build("200"))
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	run = runWorkflow(t, build("500"))
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.FailedNodes, "join")
}

func TestRunner_AssertionRouting_HandleTagged(t *testing.T) {
	server := newCountingServer(t, nil)

	check := testutil.CreateTestNode(
		testutil.WithID("check"),
		testutil.WithKind(models.NodeKindAssertion),
		testutil.WithConfig(map[string]any{
			"assertions": []any{
				map[string]any{"source": "status", "operator": "equals", "value": "500"},
			},
		}),
	)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("fetch", server.URL+"/fetch"),
			check,
			httpNode("onpass", server.URL+"/onpass"),
			httpNode("onfail", server.URL+"/onfail"),
		},
		[]*models.Edge{
			edge("fetch", "check"),
			testutil.CreateTestEdge("check", "onpass", testutil.WithSourceHandle("pass")),
			testutil.CreateTestEdge("check", "onfail", testutil.WithSourceHandle("fail")),
		},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusCompleted, run.Status, "a routed failure is not escalated")
	assert.Empty(t, run.FailedNodes)
	assert.Equal(t, 0, server.hitsFor("/onpass"))
	assert.Equal(t, 1, server.hitsFor("/onfail"))
}

func TestRunner_AssertionRouting_UnmatchedHandleStopsBranch(t *testing.T) {
	server := newCountingServer(t, nil)

	check := testutil.CreateTestNode(
		testutil.WithID("check"),
		testutil.WithKind(models.NodeKindAssertion),
		testutil.WithConfig(map[string]any{
			"assertions": []any{
				map[string]any{"source": "status", "operator": "equals", "value": "500"},
			},
		}),
	)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("fetch", server.URL+"/fetch"),
			check,
			httpNode("onpass", server.URL+"/onpass"),
		},
		[]*models.Edge{
			edge("fetch", "check"),
			testutil.CreateTestEdge("check", "onpass", testutil.WithSourceHandle("pass")),
		},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusFailed, run.Status, "an unrouted failure is still recorded")
	assert.Equal(t, []string{"check"}, run.FailedNodes)
	assert.Equal(t, 0, server.hitsFor("/onpass"))
}

func TestRunner_AssertionLegacyEdge_FailAborts(t *testing.T) {
	server := newCountingServer(t, nil)

	check := testutil.CreateTestNode(
		testutil.WithID("check"),
		testutil.WithKind(models.NodeKindAssertion),
		testutil.WithConfig(map[string]any{
			"assertions": []any{
				map[string]any{"source": "status", "operator": "equals", "value": "500"},
			},
		}),
	)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("fetch", server.URL+"/fetch"),
			check,
			httpNode("next", server.URL+"/next"),
		},
		[]*models.Edge{edge("fetch", "check"), edge("check", "next")},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, []string{"check"}, run.FailedNodes)
	assert.Equal(t, 0, server.hitsFor("/next"))
}

func TestRunner_ConditionRouting(t *testing.T) {
	server := newCountingServer(t, nil)

	branch := testutil.CreateTestNode(
		testutil.WithID("branch"),
		testutil.WithKind(models.NodeKindCondition),
		testutil.WithConfig(map[string]any{
			"left":     "{{variables.mode}}",
			"operator": "equals",
			"right":    "full",
		}),
	)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			branch,
			httpNode("full", server.URL+"/full"),
			httpNode("quick", server.URL+"/quick"),
		},
		[]*models.Edge{
			testutil.CreateTestEdge("branch", "full", testutil.WithSourceHandle("true")),
			testutil.CreateTestEdge("branch", "quick", testutil.WithSourceHandle("false")),
		},
	)
	workflow.Variables = map[string]any{"mode": "full"}

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, server.hitsFor("/full"))
	assert.Equal(t, 0, server.hitsFor("/quick"))
}

func TestRunner_ParallelBranches_PartialFailureTolerated(t *testing.T) {
	server := newCountingServer(t, nil)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("a", server.URL+"/a"),
			httpNode("b", "http://127.0.0.1:1/unreachable"),
		},
		[]*models.Edge{
			edge("start", "a"),
			edge("start", "b"),
		},
	)

	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusFailed, run.Status, "the failed node fails the run at completion")
	assert.Equal(t, []string{"b"}, run.FailedNodes)
	assert.Equal(t, 1, server.hitsFor("/a"), "one branch's failure must not cancel its sibling")
}

func TestRunner_TemplatesAcrossNodes(t *testing.T) {
	var gotPath atomic.Value

	server := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "user-9"}`))

			return
		}

		gotPath.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("create", server.URL+"/users"),
			httpNode("fetch", server.URL+"/users/{{prev.body.id}}"),
		},
		[]*models.Edge{edge("create", "fetch")},
	)

	run := runWorkflow(t, workflow)

	require.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "/users/user-9", gotPath.Load())
}

func TestRunner_DelayBetweenNodes(t *testing.T) {
	server := newCountingServer(t, nil)

	pause := testutil.CreateTestNode(
		testutil.WithID("pause"),
		testutil.WithKind(models.NodeKindDelay),
		testutil.WithConfig(map[string]any{"delayMs": float64(30)}),
	)

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{
			httpNode("a", server.URL+"/a"),
			pause,
			httpNode("b", server.URL+"/b"),
		},
		[]*models.Edge{edge("a", "pause"), edge("pause", "b")},
	)

	start := time.Now()
	run := runWorkflow(t, workflow)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 1, server.hitsFor("/b"))
}

func TestRunner_NoStartNode(t *testing.T) {
	workflow := &models.Workflow{ID: "wf", Name: "broken", Nodes: []*models.Node{
		testutil.CreateTestNode(testutil.WithID("a")),
	}}

	run := models.NewRun(workflow, "", nil)
	r := New(workflow, run, nil, nil, testRegistry(), nil, testLogger())

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

// recordingSink captures sink updates for inspection.
type recordingSink struct {
	mu      sync.Mutex
	results []*models.NodeResult
	runs    []models.RunStatus
}

func (s *recordingSink) NodeCompleted(_ context.Context, _ string, result *models.NodeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, result)
}

func (s *recordingSink) RunUpdated(_ context.Context, run *models.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, run.Status)
}

func TestRunner_SinkReceivesMaskedResults(t *testing.T) {
	server := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"token": %q}`, "super-secret")
	})

	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{httpNode("fetch", server.URL+"/fetch")},
		nil,
	)

	env := &models.Environment{
		ID:      "env-1",
		Name:    "staging",
		Secrets: map[string]string{"apiToken": "super-secret"},
	}

	sink := &recordingSink{}
	run := models.NewRun(workflow, env.ID, nil)
	r := New(workflow, run, env, nil, testRegistry(), sink, testLogger())

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, sink.results)

	var fetched *models.NodeResult

	for _, result := range sink.results {
		if result.NodeID == "fetch" {
			fetched = result
		}
	}

	require.NotNil(t, fetched)

	body, _ := fetched.Data["body"].(map[string]any)
	assert.Equal(t, "*****", body["token"], "secret values are redacted before reaching the sink")

	assert.Equal(t, []models.RunStatus{models.RunStatusRunning, models.RunStatusCompleted}, sink.runs)
}

func TestRunner_RunErrorRedactsSecrets(t *testing.T) {
	// A dispatch failure echoes the resolved URL, secret included, so the
	// run-level error must pass the same redaction boundary as node results.
	workflow := testutil.CreateTestWorkflow(
		[]*models.Node{httpNode("fetch", "http://127.0.0.1:1/x?key={{secrets.apiToken}}")},
		nil,
	)

	env := &models.Environment{
		ID:      "env-1",
		Name:    "staging",
		Secrets: map[string]string{"apiToken": "sup3r-s3cret"},
	}

	run := models.NewRun(workflow, env.ID, nil)
	r := New(workflow, run, env, nil, testRegistry(), nil, testLogger())

	finished, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, finished.Status)
	require.NotEmpty(t, finished.Error)
	assert.NotContains(t, finished.Error, "sup3r-s3cret")
	assert.Contains(t, finished.Error, "*****")
}
