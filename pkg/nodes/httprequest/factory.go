package httprequest

import (
	"github.com/probeflow/probeflow/pkg/httpclient"
	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/protocol"
)

// Factory creates http-request executors.
type Factory struct {
	dispatcher httpclient.Dispatcher
	fileRoot   string
}

// NewFactory creates a Factory backed by the given dispatcher.
func NewFactory(dispatcher httpclient.Dispatcher, fileRoot string) *Factory {
	return &Factory{dispatcher: dispatcher, fileRoot: fileRoot}
}

// Kind returns the node kind this factory serves.
func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindHTTPRequest
}

// Name returns the human-readable name for the node kind.
func (f *Factory) Name() string {
	return "HTTP Request"
}

// Description returns a description of what the node does.
func (f *Factory) Description() string {
	return "Dispatches an HTTP request with templated URL, headers and body, classifying the response status"
}

// Create creates the executor.
func (f *Factory) Create() (protocol.NodeExecutor, error) {
	return NewExecutor(f.dispatcher, f.fileRoot), nil
}

// Schema returns the JSON schema for http-request node configuration.
func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL; {{...}} placeholders are resolved before dispatch",
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
				"default": "GET",
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type": "string",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     30,
			},
			"followRedirects": map[string]any{
				"type":    "boolean",
				"default": true,
			},
			"files": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"kind":      map[string]any{"type": "string", "enum": []string{"base64", "path", "variable"}},
						"value":     map[string]any{"type": "string"},
						"fieldName": map[string]any{"type": "string"},
						"fileName":  map[string]any{"type": "string"},
						"mimeType":  map[string]any{"type": "string"},
					},
					"required": []string{"kind", "value", "fieldName"},
				},
			},
		},
		"required": []string{"url"},
	}
}
