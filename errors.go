package procview

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrencyConflict is returned when an optimistic locking check fails.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDuplicateID is returned when inserting a document with an ID that already exists.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrUnknownEventType is returned when no handler is registered for an event type.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrReferencedEntityNotFound is returned when a follow-up event references
	// an entity that was never created.
	ErrReferencedEntityNotFound = errors.New("referenced entity not found")

	// ErrValidation is returned for malformed event payloads.
	ErrValidation = errors.New("validation failure")

	// ErrPersistence marks storage-layer failures attributed to a single event.
	ErrPersistence = errors.New("persistence failure")

	// ErrDuplicateHandler is returned when two handlers claim the same event type.
	ErrDuplicateHandler = errors.New("duplicate handler")
)

// EntityNotFoundError reports a follow-up event whose target entity is missing.
type EntityNotFoundError struct {
	Entity string
	ID     string
	Msg    string
}

// NotFound builds an EntityNotFoundError for the given entity kind and id.
func NotFound(entity, id, msg string) *EntityNotFoundError {
	return &EntityNotFoundError{Entity: entity, ID: id, Msg: msg}
}

func (e *EntityNotFoundError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("unable to find %s with id: %s", e.Entity, e.ID)
}

func (e *EntityNotFoundError) Is(target error) bool {
	return target == ErrReferencedEntityNotFound
}

// PersistenceError wraps a storage failure with the id of the event being applied.
type PersistenceError struct {
	EventID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("event %s: %s: %v", e.EventID, ErrPersistence, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
