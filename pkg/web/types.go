// Package web provides HTTP handlers and request/response types for the
// workflow API.
package web

import (
	"sort"

	"github.com/probeflow/probeflow/pkg/models"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name      string                  `json:"name"      validate:"required,min=3"`
	Nodes     []*models.Node          `json:"nodes"     validate:"required,min=1,dive"`
	Edges     []*models.Edge          `json:"edges"     validate:"dive"`
	Variables map[string]any          `json:"variables,omitempty"`
	Settings  models.WorkflowSettings `json:"settings"`
}

// UpdateWorkflowRequest represents the request body for updating an existing
// workflow. Nil fields keep the stored value.
type UpdateWorkflowRequest struct {
	Name      *string                  `json:"name,omitempty"     validate:"omitempty,min=3"`
	Nodes     []*models.Node           `json:"nodes,omitempty"    validate:"omitempty,min=1,dive"`
	Edges     []*models.Edge           `json:"edges,omitempty"    validate:"omitempty,dive"`
	Variables map[string]any           `json:"variables,omitempty"`
	Settings  *models.WorkflowSettings `json:"settings,omitempty"`
}

// EnvironmentRequest represents the request body for creating or updating an
// environment.
type EnvironmentRequest struct {
	Name      string            `json:"name"      validate:"required"`
	Variables map[string]any    `json:"variables,omitempty"`
	Secrets   map[string]string `json:"secrets,omitempty"`
}

// EnvironmentResponse is an environment with its secret values withheld.
// Only the secret names are exposed.
type EnvironmentResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Variables   map[string]any `json:"variables,omitempty"`
	SecretNames []string       `json:"secret_names,omitempty"`
}

// TransformEnvironmentResponse strips secret values from an environment.
func TransformEnvironmentResponse(environment *models.Environment) EnvironmentResponse {
	response := EnvironmentResponse{
		ID:        environment.ID,
		Name:      environment.Name,
		Variables: environment.Variables,
	}

	for name := range environment.Secrets {
		response.SecretNames = append(response.SecretNames, name)
	}

	sort.Strings(response.SecretNames)

	return response
}
