// Package httprequest provides the HTTP request node executor, the only
// data-producing node kind: its results carry response data usable by
// assertions and merges downstream.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/probeflow/probeflow/pkg/httpclient"
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/protocol"
)

// Config defines the configuration payload for http-request nodes.
type Config struct {
	URL             string                  `json:"url"`
	Method          string                  `json:"method"`
	Headers         map[string]string       `json:"headers"`
	Body            string                  `json:"body,omitempty"`
	Timeout         int                     `json:"timeout"`
	FollowRedirects bool                    `json:"followRedirects"`
	Files           []httpclient.FileSource `json:"files,omitempty"`
}

// Executor performs HTTP request nodes by delegating the dispatch itself to
// the httpclient capability.
type Executor struct {
	dispatcher httpclient.Dispatcher
	fileRoot   string
}

// NewExecutor creates an Executor. fileRoot confines path-based upload
// sources.
func NewExecutor(dispatcher httpclient.Dispatcher, fileRoot string) *Executor {
	return &Executor{dispatcher: dispatcher, fileRoot: fileRoot}
}

// Kind returns the node kind this executor handles.
func (e *Executor) Kind() models.NodeKind {
	return models.NodeKindHTTPRequest
}

// ParseConfig parses and defaults an http-request config payload.
func ParseConfig(config map[string]any) (Config, error) {
	parsed := Config{
		Method:          "GET",
		Headers:         make(map[string]string),
		Timeout:         30,
		FollowRedirects: true,
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return parsed, errors.New("missing required field 'url'")
	}

	parsed.URL = url

	if method, ok := config["method"].(string); ok {
		parsed.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if value, ok := v.(string); ok {
				parsed.Headers[k] = value
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		parsed.Body = body
	}

	if timeout, ok := config["timeout"].(float64); ok {
		parsed.Timeout = int(timeout)
	}

	if follow, ok := config["followRedirects"].(bool); ok {
		parsed.FollowRedirects = follow
	}

	if files, ok := config["files"].([]any); ok {
		for _, raw := range files {
			fileMap, ok := raw.(map[string]any)
			if !ok {
				continue
			}

			src := httpclient.FileSource{}
			if kind, ok := fileMap["kind"].(string); ok {
				src.Kind = httpclient.FileSourceKind(kind)
			}

			src.Value, _ = fileMap["value"].(string)
			src.FieldName, _ = fileMap["fieldName"].(string)
			src.FileName, _ = fileMap["fileName"].(string)
			src.MimeType, _ = fileMap["mimeType"].(string)

			parsed.Files = append(parsed.Files, src)
		}
	}

	return parsed, nil
}

// Execute resolves templates in the node config, dispatches the request and
// classifies the response. Transport failures are surfaced as a result with
// status error, not returned as an execution error.
func (e *Executor) Execute(ctx context.Context, node *models.Node, view protocol.ExecutionView) (*models.NodeResult, error) {
	config, err := ParseConfig(node.Config)
	if err != nil {
		return nil, fmt.Errorf("invalid http-request config for node %s: %w", node.ID, err)
	}

	url := view.Resolve(config.URL)
	body := view.Resolve(config.Body)

	headers := make(map[string]string, len(config.Headers))
	for key, value := range config.Headers {
		headers[key] = view.Resolve(value)
	}

	files := make([]httpclient.File, 0, len(config.Files))

	for _, src := range config.Files {
		content, err := httpclient.ResolveFileContent(src, view.Variables(), e.fileRoot)
		if err != nil {
			return errorResult(node, config.Method, url, fmt.Sprintf("failed to resolve file %q: %v", src.FieldName, err)), nil
		}

		files = append(files, httpclient.File{
			FieldName: src.FieldName,
			FileName:  src.FileName,
			MimeType:  src.MimeType,
			Content:   content,
		})
	}

	resp, err := e.dispatcher.Dispatch(ctx, httpclient.Request{
		Method:          config.Method,
		URL:             url,
		Headers:         headers,
		Body:            body,
		Timeout:         time.Duration(config.Timeout) * time.Second,
		FollowRedirects: config.FollowRedirects,
		Files:           files,
	})
	if err != nil {
		return errorResult(node, config.Method, url, err.Error()), nil
	}

	respHeaders := make(map[string]any, len(resp.Headers))
	for k, v := range resp.Headers {
		respHeaders[k] = v
	}

	respCookies := make(map[string]any, len(resp.Cookies))
	for k, v := range resp.Cookies {
		respCookies[k] = v
	}

	return &models.NodeResult{
		NodeID: node.ID,
		Kind:   models.NodeKindHTTPRequest,
		Status: models.ClassifyStatusCode(resp.StatusCode),
		Data: map[string]any{
			"method":     config.Method,
			"url":        url,
			"statusCode": float64(resp.StatusCode),
			"headers":    respHeaders,
			"body":       parseBody(resp.Body),
			"cookies":    respCookies,
			"durationMs": resp.DurationMs,
		},
		DurationMs: resp.DurationMs,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func errorResult(node *models.Node, method, url, message string) *models.NodeResult {
	return &models.NodeResult{
		NodeID: node.ID,
		Kind:   models.NodeKindHTTPRequest,
		Status: models.ResultStatusError,
		Error:  message,
		Data: map[string]any{
			"method": method,
			"url":    url,
			"error":  message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// parseBody decodes JSON bodies so downstream path navigation works; other
// payloads stay raw strings.
func parseBody(body string) any {
	trimmed := strings.TrimSpace(body)

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}

	return body
}
