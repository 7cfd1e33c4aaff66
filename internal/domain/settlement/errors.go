package settlement

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError
	ErrValidation = errors.New("settlement validation failed")

	// ErrQuotaRace is returned when the usage a settlement was computed from no
	// longer matches storage at commit time. Callers retry the whole computation.
	ErrQuotaRace = errors.New("voucher quota changed during settlement")

	// ErrPersistence is matched by every *PersistenceError
	ErrPersistence = errors.New("settlement persistence failed")

	// ErrNotFound is returned when a referenced master record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrResetNotConfirmed is returned when a bulk reset lacks its confirmation
	ErrResetNotConfirmed = errors.New("session reset not confirmed")
)

// ValidationError describes a request that cannot be settled. Nothing is
// written when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid settlement request: " + e.Reason
	}
	return fmt.Sprintf("invalid settlement request: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// PersistenceError wraps a store failure during read or commit
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPersistence) true
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// WrapPersistence wraps err as a PersistenceError unless it is nil or already
// one of the settlement taxonomy errors
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrValidation, ErrQuotaRace, ErrPersistence, ErrNotFound, ErrResetNotConfirmed} {
		if errors.Is(err, known) {
			return err
		}
	}
	return &PersistenceError{Op: op, Err: err}
}
