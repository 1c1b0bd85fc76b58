package database

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup by name or id matches nothing.
	ErrNotFound = errors.New("entity not found")
	// ErrSelfRelationship is returned when both ends of a relationship are the same entity.
	ErrSelfRelationship = errors.New("relationship endpoints must be distinct entities")
)

// ReferentialError reports a relationship that points at an entity id that does not exist.
type ReferentialError struct {
	EntityID int64
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("relationship references unknown entity id %d", e.EntityID)
}

// StorageError wraps a failure of the underlying database. It is fatal to the operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError reports an input record missing or violating a required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsRecordError reports whether err is a per-record failure that should be counted
// and skipped rather than aborting a batch.
func IsRecordError(err error) bool {
	var re *ReferentialError
	var ve *ValidationError
	return errors.As(err, &re) || errors.As(err, &ve) || errors.Is(err, ErrSelfRelationship)
}
