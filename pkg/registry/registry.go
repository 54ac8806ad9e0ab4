// Package registry keeps the node executor factories and the JSON schemas
// used to validate node configuration payloads.
package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/protocol"
)

// Registry maps node kinds to executor factories. Kinds without an executor
// (start, end, merge) can still carry a schema for config validation.
type Registry struct {
	logger    *slog.Logger
	factories map[models.NodeKind]protocol.ExecutorFactory
	schemas   map[models.NodeKind]map[string]any
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[models.NodeKind]protocol.ExecutorFactory),
		schemas:   make(map[models.NodeKind]map[string]any),
	}
}

// RegisterExecutor registers a factory and its schema for a node kind.
func (r *Registry) RegisterExecutor(factory protocol.ExecutorFactory) {
	r.factories[factory.Kind()] = factory
	r.schemas[factory.Kind()] = factory.Schema()
}

// RegisterSchema registers a config schema for a kind that has no executor.
func (r *Registry) RegisterSchema(kind models.NodeKind, schema map[string]any) {
	r.schemas[kind] = schema
}

// CreateExecutor creates the executor for a node kind.
func (r *Registry) CreateExecutor(kind models.NodeKind) (protocol.NodeExecutor, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("node kind '%s' not registered", kind)
	}

	return factory.Create()
}

// HasExecutor reports whether the kind has an executor factory registered.
func (r *Registry) HasExecutor(kind models.NodeKind) bool {
	_, ok := r.factories[kind]

	return ok
}

// Kinds returns every kind known to the registry, executors and
// schema-only entries alike.
func (r *Registry) Kinds() []models.NodeKind {
	kinds := make([]models.NodeKind, 0, len(r.schemas))
	for kind := range r.schemas {
		kinds = append(kinds, kind)
	}

	return kinds
}

// Factories returns the registered executor factories, for capability
// listings in the HTTP API.
func (r *Registry) Factories() []protocol.ExecutorFactory {
	factories := make([]protocol.ExecutorFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		factories = append(factories, factory)
	}

	return factories
}

// ValidateConfig validates a node's config payload against the registered
// schema for its kind. Kinds without a schema validate trivially.
func (r *Registry) ValidateConfig(kind models.NodeKind, config map[string]any) error {
	schema, ok := r.schemas[kind]
	if !ok || schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate config for kind '%s': %w", kind, err)
	}

	if !result.Valid() {
		var details []string
		for _, violation := range result.Errors() {
			details = append(details, violation.String())
		}

		return fmt.Errorf("invalid config for kind '%s': %s", kind, strings.Join(details, "; "))
	}

	return nil
}
