package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an instance does not exist.
	ErrNotFound = errors.New("instance not found")

	// ErrOptimisticLock is returned when a conditional write finds a
	// different version than expected.
	ErrOptimisticLock = errors.New("optimistic locking failed")

	// ErrUnknownType is returned for an alias that was never registered.
	ErrUnknownType = errors.New("unknown entity type")

	// ErrUnknownField is returned for a field the entity does not declare.
	ErrUnknownField = errors.New("unknown field")

	// ErrStateNotFound is returned when a snapshot is requested for a
	// state that was never committed.
	ErrStateNotFound = errors.New("state not found")

	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("transaction already finished")
)

// VerificationError reports a change rejected by a Verifier plugin.
type VerificationError struct {
	Plugin string
	Alias  string
	ID     int64
	Err    error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s rejected %s %d: %v", e.Plugin, e.Alias, e.ID, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// Detail returns the verifier's own message.
func (e *VerificationError) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
