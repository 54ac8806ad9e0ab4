package persistence

import (
	"errors"
	"fmt"
)

// Standard error types shared by all storage backends.
var (
	// ErrWorkflowNotFound indicates no workflow exists for the identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrEnvironmentNotFound indicates no environment exists for the identifier.
	ErrEnvironmentNotFound = errors.New("environment not found")

	// ErrRunNotFound indicates no run exists for the identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoPendingRuns indicates there is currently no pending run to claim.
	ErrNoPendingRuns = errors.New("no pending runs")
)

// StoreError wraps a storage failure with the operation and entity involved.
type StoreError struct {
	Op     string // operation being performed, e.g. "Save", "ClaimPending"
	Entity string // entity kind, e.g. "workflow", "run"
	ID     string // entity id if applicable
	Err    error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a StoreError.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound reports whether the error is any of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrEnvironmentNotFound) ||
		errors.Is(err, ErrRunNotFound)
}
