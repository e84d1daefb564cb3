package idea

import (
	"errors"
	"fmt"
)

// Sentinel errors for idea operations.
var (
	// ErrNotFound is returned when an idea ID does not exist.
	ErrNotFound = errors.New("idea not found")

	// ErrSealed is returned when a mutation targets an archived idea.
	ErrSealed = errors.New("idea is archived and immutable")
)

// ValidationError indicates malformed input: an empty quote, an unknown
// source, or a self-referential link. Rejected synchronously with no
// state change.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// InvalidTransitionError indicates an illegal status move. The idea is
// left untouched.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// CrossReferenceError indicates a link to a nonexistent idea.
type CrossReferenceError struct {
	ID int64
}

func (e *CrossReferenceError) Error() string {
	return fmt.Sprintf("cross-reference target %d does not exist", e.ID)
}

// AllocationError indicates the durable ID watermark could not be
// persisted. The capture fails and no ID is issued.
type AllocationError struct {
	Err error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("id allocation failed: %v", e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}
