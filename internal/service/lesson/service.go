package lesson

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
)

// ExerciseEntry is one exercise performed during the lesson.
type ExerciseEntry struct {
	// ID is the client-supplied idempotency key. A nil ID gets a fresh one.
	ID           *uuid.UUID
	ItemID       int64
	ExerciseType string
	Result       domain.ExerciseResult
	StartTime    time.Time
	EndTime      time.Time
}

// ItemUpdate is the schedule a client computed for an item on its own.
type ItemUpdate struct {
	ItemID               int64
	ProposedBin          int
	ProposedNextReviewAt *time.Time
}

// CompleteRequest is a batch of exercises submitted when a lesson ends.
type CompleteRequest struct {
	UserID int64
	// LessonID, when set, attaches the exercises to that lesson and
	// completes it.
	LessonID    *int64
	Exercises   []ExerciseEntry
	ItemUpdates []ItemUpdate
}

// CompleteResult reports what a completion wrote.
type CompleteResult struct {
	ExercisesCreated    int
	ReviewStatesUpdated int
	// Replayed is true when the batch had already been applied and nothing
	// was written this time.
	Replayed bool
	// States holds the resulting review state of every touched item, ordered by item id.
	States []*domain.ReviewState
}

// Service completes lessons.
type Service interface {
	// Complete validates the batch, applies every exercise to its item's
	// review state in list order and persists records, states and the
	// lesson's completion in one transaction.
	//
	// Errors carry one of the service error categories:
	//   - service.ErrValidation: malformed batch or already completed lesson
	//   - service.ErrNotFound: unknown user, lesson or item
	//   - service.ErrInvalidState: a stored bin lies outside the user's range
	//   - service.ErrInconsistentState: proposals disagree in strict mode
	//   - service.ErrPersistence: storage failure or deadline; safe to retry
	//
	// On any error nothing is persisted.
	Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error)
}

// Options tunes the completion policy.
type Options struct {
	// StrictProposals rejects mismatching client proposals instead of
	// overwriting them with the derived schedule.
	StrictProposals bool
	// Timeout bounds the whole transaction. Zero means only the caller's
	// deadline applies.
	Timeout time.Duration
	// Now returns the current time. Defaults to time.Now in UTC.
	Now func() time.Time
}
