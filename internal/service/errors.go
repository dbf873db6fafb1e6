package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/domain/srs"
	"github.com/phrazzld/lexis-api/internal/store"
)

// Error categories shared by every service. Callers classify failures with
// errors.Is against these; the API layer maps each one to a status code.
//
// Error handling principles:
// 1. Service methods return a ServiceError whose chain contains exactly one category
// 2. Store and domain errors stay in the chain below the category
// 3. The API layer never inspects store errors directly
var (
	// ErrValidation indicates malformed input, or input that conflicts with
	// immutable data such as a completed lesson.
	// API layer should map this to HTTP 400 Bad Request.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown user, lesson or vocabulary item.
	// API layer should map this to HTTP 404 Not Found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates persisted review data violates its invariants,
	// typically a bin outside the user's configured range.
	// API layer should map this to HTTP 409 Conflict and log it as an error.
	ErrInvalidState = errors.New("invalid review state")

	// ErrInconsistentState indicates a client-proposed schedule disagrees with
	// the schedule derived on the server while strict proposal checking is on.
	// API layer should map this to HTTP 409 Conflict.
	ErrInconsistentState = errors.New("proposed state does not match derived state")

	// ErrPersistence indicates the storage layer failed. The operation left
	// no trace and may be retried.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrPersistence = errors.New("persistence failure")
)

// ServiceError wraps errors from services with the failed operation.
// This allows consumers to differentiate between different types of service errors
// using errors.As instead of string matching.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "complete_lesson", "classify_due")
	Operation string
	// Message is a human-readable description of the error, safe to show to clients
	Message string
	// Err is the underlying error chain, headed by an error category
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a ServiceError of the given category. cause may be nil.
func NewServiceError(operation string, category error, message string, cause error) *ServiceError {
	err := category
	if cause != nil {
		err = fmt.Errorf("%w: %w", category, cause)
	}
	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// Category returns the error category err belongs to, or nil when err does
// not carry one.
func Category(err error) error {
	for _, c := range []error{ErrValidation, ErrNotFound, ErrInvalidState, ErrInconsistentState, ErrPersistence} {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}

// Wrap classifies an error raised below the service layer and wraps it in a
// ServiceError for operation. Errors that already carry a category keep it.
func Wrap(operation string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}

	switch {
	case Category(err) != nil:
		return &ServiceError{Operation: operation, Message: messageFor(Category(err)), Err: err}
	case errors.Is(err, store.ErrUserNotFound):
		return NewServiceError(operation, ErrNotFound, "user not found", err)
	case errors.Is(err, store.ErrLessonNotFound):
		return NewServiceError(operation, ErrNotFound, "lesson not found", err)
	case errors.Is(err, store.ErrItemNotFound):
		return NewServiceError(operation, ErrNotFound, "vocabulary item not found", err)
	case errors.Is(err, store.ErrNotFound):
		return NewServiceError(operation, ErrNotFound, "resource not found", err)
	case errors.Is(err, store.ErrLessonCompleted):
		return NewServiceError(operation, ErrValidation, "lesson is already completed", err)
	case errors.Is(err, srs.ErrInvalidState):
		return NewServiceError(operation, ErrInvalidState, "review state is out of range", err)
	case errors.Is(err, srs.ErrReviewOutOfOrder):
		return NewServiceError(operation, ErrValidation, "exercise precedes the last review", err)
	case domain.IsValidationError(err), errors.Is(err, srs.ErrInvalidResult):
		return NewServiceError(operation, ErrValidation, "invalid request", err)
	default:
		return NewServiceError(operation, ErrPersistence, "storage unavailable, retry later", err)
	}
}

func messageFor(category error) string {
	switch category {
	case ErrValidation:
		return "invalid request"
	case ErrNotFound:
		return "resource not found"
	case ErrInvalidState:
		return "review state is out of range"
	case ErrInconsistentState:
		return "proposed schedule does not match"
	default:
		return "storage unavailable, retry later"
	}
}
