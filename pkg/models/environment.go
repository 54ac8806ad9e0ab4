package models

import "time"

// Environment holds the variable and secret maps a run resolves `env.*` and
// `secrets.*` placeholders against. Secrets are referenced by id and never
// returned unmasked by the API layer.
type Environment struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"      validate:"required"`
	Variables map[string]any    `json:"variables,omitempty"`
	Secrets   map[string]string `json:"secrets,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// MergedSecrets returns the environment secrets overlaid with caller-supplied
// runtime overrides. Overrides take precedence and are never persisted.
func (e *Environment) MergedSecrets(overrides map[string]string) map[string]string {
	if e == nil {
		e = &Environment{}
	}

	merged := make(map[string]string, len(e.Secrets)+len(overrides))

	for k, v := range e.Secrets {
		merged[k] = v
	}

	for k, v := range overrides {
		merged[k] = v
	}

	return merged
}
