package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence is matched by every PersistenceError.
	ErrPersistence = errors.New("persistence failure")
	// ErrConcurrencyConflict is returned by a backend when the stored
	// version no longer matches the version a write was based on.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrCorrupt is returned when a snapshot breaks an ordering invariant.
	ErrCorrupt = errors.New("snapshot invariant violated")
)

// NotFoundError reports a missing entity, or an entity missing from the
// collection it was expected in (Parent set).
type NotFoundError struct {
	Kind   string
	ID     string
	Parent string
}

func (e *NotFoundError) Error() string {
	if e.Parent != "" {
		return fmt.Sprintf("%s %q not found in %s", e.Kind, e.ID, e.Parent)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PersistenceError wraps a failed read or write of the document.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return "persistence " + e.Op + " failed"
	}
	return "persistence " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func notIn(kind, id, parentKind, parentID string) error {
	return &NotFoundError{Kind: kind, ID: id, Parent: fmt.Sprintf("%s %q", parentKind, parentID)}
}
