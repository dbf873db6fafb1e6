package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is usually wrapped in a ValidationError naming the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is zero, negative or malformed.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidExerciseResult is returned for a result outside success/hint/fail.
	ErrInvalidExerciseResult = errors.New("invalid exercise result")

	// ErrInvalidLessonKind is returned for a lesson kind outside new/learned/all.
	ErrInvalidLessonKind = errors.New("invalid lesson kind")

	// ErrInvalidAlgorithm is returned for an unknown scheduling algorithm identifier.
	ErrInvalidAlgorithm = errors.New("invalid scheduling algorithm")

	// ErrInvalidTimeRange is returned when an end time precedes its start time.
	ErrInvalidTimeRange = errors.New("end time precedes start time")

	// ErrBinOutOfRange is returned when a persisted bin lies outside [0, maxBins-1].
	// It signals corrupted data rather than bad input.
	ErrBinOutOfRange = errors.New("bin out of range")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)

// ValidationError describes a single field that failed validation.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError for the given field.
// When err is nil the error wraps ErrValidation so callers can match it with errors.Is.
func NewValidationError(field, message string, err error) *ValidationError {
	if err == nil {
		err = ErrValidation
	}
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// IsValidationError reports whether err is, or wraps, a domain validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrValidation)
}
