package memory

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks. The typed errors below unwrap to them.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation")
	ErrConflict   = errors.New("conflict")
)

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	Key    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s %v", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports a violated cross-entity constraint or a bad field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Entity string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s: %s", e.Entity, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// DegradedModeWarning is carried alongside a successful result when the
// vector channel was unavailable. It satisfies error so it can be logged,
// but it is never returned as the failure of a call.
type DegradedModeWarning struct {
	Channel string
	Cause   error
}

func (w *DegradedModeWarning) Error() string {
	if w.Cause == nil {
		return fmt.Sprintf("degraded: %s channel unavailable", w.Channel)
	}
	return fmt.Sprintf("degraded: %s channel unavailable: %v", w.Channel, w.Cause)
}

func (w *DegradedModeWarning) Unwrap() error { return w.Cause }

func notFound(entity string, key any) error {
	return &NotFoundError{Entity: entity, Key: key}
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
