package cmd

import (
	"log/slog"

	"github.com/probeflow/probeflow/pkg/httpclient"
	"github.com/probeflow/probeflow/pkg/registry"
)

// NewRegistry creates a node registry with every built-in node kind
// registered. fileRoot confines path-based upload sources of http-request
// nodes; empty disables them.
func NewRegistry(logger *slog.Logger, fileRoot string) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(httpclient.NewClient(), fileRoot)

	return reg
}
