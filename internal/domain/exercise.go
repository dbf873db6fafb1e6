package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExerciseResult is the outcome of one exercise.
type ExerciseResult string

// Possible exercise results
const (
	ExerciseResultSuccess ExerciseResult = "success"
	ExerciseResultHint    ExerciseResult = "hint"
	ExerciseResultFail    ExerciseResult = "fail"
)

// ParseExerciseResult converts a string into an ExerciseResult.
func ParseExerciseResult(s string) (ExerciseResult, error) {
	switch r := ExerciseResult(s); r {
	case ExerciseResultSuccess, ExerciseResultHint, ExerciseResultFail:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidExerciseResult, s)
	}
}

// Valid reports whether r is one of the known results.
func (r ExerciseResult) Valid() bool {
	_, err := ParseExerciseResult(string(r))
	return err == nil
}

// ExerciseRecord is the immutable record of a single exercise.
// ID is supplied by the client when available and acts as an idempotency key.
type ExerciseRecord struct {
	ID           uuid.UUID      `json:"id"`
	UserID       int64          `json:"userId"`
	ItemID       int64          `json:"itemId"`
	LessonID     *int64         `json:"lessonId,omitempty"`
	ExerciseType string         `json:"exerciseType"`
	Result       ExerciseResult `json:"result"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      time.Time      `json:"endTime"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Validate checks if the ExerciseRecord has valid data.
func (e *ExerciseRecord) Validate() error {
	if e.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if e.UserID <= 0 {
		return NewValidationError("userId", "must be positive", ErrInvalidID)
	}
	if e.ItemID <= 0 {
		return NewValidationError("itemId", "must be positive", ErrInvalidID)
	}
	if e.LessonID != nil && *e.LessonID <= 0 {
		return NewValidationError("lessonId", "must be positive", ErrInvalidID)
	}
	if strings.TrimSpace(e.ExerciseType) == "" {
		return NewValidationError("exerciseType", "cannot be empty", nil)
	}
	if !e.Result.Valid() {
		return NewValidationError("result", "must be one of success, hint, fail", ErrInvalidExerciseResult)
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return NewValidationError("startTime/endTime", "are required", nil)
	}
	if e.EndTime.Before(e.StartTime) {
		return NewValidationError("endTime", "must not precede startTime", ErrInvalidTimeRange)
	}
	return nil
}

// SameAs reports whether two records describe the same exercise.
// CreatedAt is ignored so a replayed submission can be recognised.
func (e *ExerciseRecord) SameAs(o *ExerciseRecord) bool {
	if e.ID != o.ID || e.UserID != o.UserID || e.ItemID != o.ItemID ||
		e.ExerciseType != o.ExerciseType || e.Result != o.Result ||
		!e.StartTime.Equal(o.StartTime) || !e.EndTime.Equal(o.EndTime) {
		return false
	}
	if (e.LessonID == nil) != (o.LessonID == nil) {
		return false
	}
	return e.LessonID == nil || *e.LessonID == *o.LessonID
}
