package models

import "time"

// ResultStatus classifies the outcome of a single node execution.
type ResultStatus string

const (
	ResultStatusSuccess     ResultStatus = "success"
	ResultStatusRedirect    ResultStatus = "redirect"
	ResultStatusClientError ResultStatus = "client_error"
	ResultStatusServerError ResultStatus = "server_error"
	ResultStatusError       ResultStatus = "error"
	ResultStatusSkipped     ResultStatus = "skipped"
	ResultStatusFailed      ResultStatus = "failed"
)

// Failed reports whether the status counts as a node failure.
func (s ResultStatus) Failed() bool {
	return s == ResultStatusError || s == ResultStatusFailed
}

// ClassifyStatusCode maps an HTTP status code to a result status.
// Transport-level failures are classified separately as ResultStatusError.
func ClassifyStatusCode(code int) ResultStatus {
	switch {
	case code >= 200 && code < 300:
		return ResultStatusSuccess
	case code >= 300 && code < 400:
		return ResultStatusRedirect
	case code >= 400 && code < 500:
		return ResultStatusClientError
	default:
		return ResultStatusServerError
	}
}

// NodeResult represents the result of executing a single node. Kind is kept
// on the result so later consumers can distinguish data-producing results
// (HTTP responses) from control-node results without re-reading the graph.
type NodeResult struct {
	NodeID     string         `json:"node_id"`
	Kind       NodeKind       `json:"kind"`
	Status     ResultStatus   `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Failed reports whether the result counts as a node failure.
func (r *NodeResult) Failed() bool {
	return r.Status.Failed()
}
