package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/lesson"
)

// ExerciseRequest is one exercise of a lesson completion request.
type ExerciseRequest struct {
	// ID is the client's idempotency key for the exercise.
	ID           *uuid.UUID `json:"id,omitempty"`
	ItemID       int64      `json:"itemId"       validate:"required,gt=0"`
	ExerciseType string     `json:"exerciseType" validate:"required,max=64"`
	Result       string     `json:"result"       validate:"required,oneof=success hint fail"`
	StartTime    time.Time  `json:"startTime"    validate:"required"`
	EndTime      time.Time  `json:"endTime"      validate:"required"`
}

// ItemUpdateRequest is a schedule the client computed for one item.
type ItemUpdateRequest struct {
	ItemID               int64      `json:"itemId"                         validate:"required,gt=0"`
	ProposedBin          int        `json:"proposedBin"                    validate:"gte=0"`
	ProposedNextReviewAt *time.Time `json:"proposedNextReviewAt,omitempty"`
}

// CompleteLessonRequest defines the payload for POST /api/lessons/complete.
type CompleteLessonRequest struct {
	// UserID is optional; when present it must match the authenticated user.
	UserID      *int64              `json:"userId,omitempty"`
	LessonID    *int64              `json:"lessonId,omitempty"   validate:"omitempty,gt=0"`
	Exercises   []ExerciseRequest   `json:"exercises"            validate:"required,min=1,max=500,dive"`
	ItemUpdates []ItemUpdateRequest `json:"itemUpdates,omitempty" validate:"omitempty,max=500,dive"`
}

// CompleteLessonResponse is returned after a successful completion.
type CompleteLessonResponse struct {
	Message             string                `json:"message"`
	ExercisesCreated    int                   `json:"exercisesCreated"`
	ReviewStatesUpdated int                   `json:"reviewStatesUpdated"`
	Replayed            bool                  `json:"replayed,omitempty"`
	ReviewStates        []ReviewStateResponse `json:"reviewStates"`
}

// ReviewStateResponse is the client view of an item's schedule.
type ReviewStateResponse struct {
	ItemID         int64      `json:"itemId"`
	Bin            int        `json:"bin"`
	LastReviewTime *time.Time `json:"lastReviewTime,omitempty"`
	NextReviewAt   *time.Time `json:"nextReviewAt,omitempty"`
}

// CandidatesResponse lists due item ids, most overdue first.
type CandidatesResponse struct {
	LanguageCode string    `json:"languageCode"`
	AsOf         time.Time `json:"asOf"`
	ItemIDs      []int64   `json:"itemIds"`
}

// SchedulerConfigRequest defines the payload for PUT /api/users/me/scheduler.
type SchedulerConfigRequest struct {
	MaxBins        int      `json:"maxBins"                  validate:"required"`
	Algorithm      string   `json:"algorithm"                validate:"required"`
	IntervalStart  int      `json:"intervalStart"            validate:"required"`
	IntervalFactor *float64 `json:"intervalFactor,omitempty"`
}

// SchedulerConfigResponse is the user's scheduler configuration.
type SchedulerConfigResponse struct {
	MaxBins        int      `json:"maxBins"`
	Algorithm      string   `json:"algorithm"`
	IntervalStart  int      `json:"intervalStart"`
	IntervalFactor *float64 `json:"intervalFactor,omitempty"`
}

// ProvisionResponse is returned by POST /api/users/me.
type ProvisionResponse struct {
	UserID    int64                   `json:"userId"`
	Created   bool                    `json:"created"`
	Scheduler SchedulerConfigResponse `json:"scheduler"`
}

func (req *CompleteLessonRequest) toServiceRequest(userID int64) lesson.CompleteRequest {
	exercises := make([]lesson.ExerciseEntry, len(req.Exercises))
	for i, e := range req.Exercises {
		exercises[i] = lesson.ExerciseEntry{
			ID:           e.ID,
			ItemID:       e.ItemID,
			ExerciseType: e.ExerciseType,
			Result:       domain.ExerciseResult(e.Result),
			StartTime:    e.StartTime,
			EndTime:      e.EndTime,
		}
	}
	updates := make([]lesson.ItemUpdate, len(req.ItemUpdates))
	for i, u := range req.ItemUpdates {
		updates[i] = lesson.ItemUpdate{
			ItemID:               u.ItemID,
			ProposedBin:          u.ProposedBin,
			ProposedNextReviewAt: u.ProposedNextReviewAt,
		}
	}
	return lesson.CompleteRequest{
		UserID:      userID,
		LessonID:    req.LessonID,
		Exercises:   exercises,
		ItemUpdates: updates,
	}
}

func (req *SchedulerConfigRequest) toServiceUpdate() service.SchedulerConfigUpdate {
	return service.SchedulerConfigUpdate{
		MaxBins:        req.MaxBins,
		Algorithm:      req.Algorithm,
		IntervalStart:  req.IntervalStart,
		IntervalFactor: req.IntervalFactor,
	}
}

func completeResultToResponse(res *lesson.CompleteResult) CompleteLessonResponse {
	msg := "Lesson completed"
	if res.Replayed {
		msg = "Lesson already completed with these exercises"
	}
	states := make([]ReviewStateResponse, len(res.States))
	for i, s := range res.States {
		states[i] = ReviewStateResponse{
			ItemID:         s.ItemID,
			Bin:            s.Bin,
			LastReviewTime: s.LastReviewTime,
			NextReviewAt:   s.NextReviewAt,
		}
	}
	return CompleteLessonResponse{
		Message:             msg,
		ExercisesCreated:    res.ExercisesCreated,
		ReviewStatesUpdated: res.ReviewStatesUpdated,
		Replayed:            res.Replayed,
		ReviewStates:        states,
	}
}

func schedulerConfigToResponse(cfg domain.SchedulerConfig) SchedulerConfigResponse {
	return SchedulerConfigResponse{
		MaxBins:        cfg.MaxBins,
		Algorithm:      string(cfg.Algorithm),
		IntervalStart:  cfg.IntervalStartHours,
		IntervalFactor: cfg.IntervalFactor,
	}
}
