package lesson

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/service"
)

// buildRecords validates the batch shape and turns the entries into exercise
// records. It touches no storage.
func buildRecords(req CompleteRequest) ([]*domain.ExerciseRecord, error) {
	if req.UserID <= 0 {
		return nil, invalid("userId must be positive", domain.ErrInvalidID)
	}
	if req.LessonID != nil && *req.LessonID <= 0 {
		return nil, invalid("lessonId must be positive", domain.ErrInvalidID)
	}
	if len(req.Exercises) == 0 {
		return nil, invalid("exercises cannot be empty", nil)
	}

	records := make([]*domain.ExerciseRecord, len(req.Exercises))
	ids := make(map[uuid.UUID]bool, len(req.Exercises))
	items := make(map[int64]bool)
	for i, e := range req.Exercises {
		id := uuid.New()
		if e.ID != nil {
			id = *e.ID
			if ids[id] {
				return nil, invalid(fmt.Sprintf("exercises[%d]: duplicate id %s", i, id), nil)
			}
			ids[id] = true
		}
		r := &domain.ExerciseRecord{
			ID:           id,
			UserID:       req.UserID,
			ItemID:       e.ItemID,
			LessonID:     req.LessonID,
			ExerciseType: e.ExerciseType,
			Result:       e.Result,
			StartTime:    e.StartTime.UTC(),
			EndTime:      e.EndTime.UTC(),
		}
		if err := r.Validate(); err != nil {
			return nil, invalid(fmt.Sprintf("exercises[%d]: %v", i, err), err)
		}
		records[i] = r
		items[e.ItemID] = true
	}

	seen := make(map[int64]bool, len(req.ItemUpdates))
	for i, u := range req.ItemUpdates {
		if !items[u.ItemID] {
			return nil, invalid(fmt.Sprintf("itemUpdates[%d]: item %d has no exercise in the batch", i, u.ItemID), nil)
		}
		if seen[u.ItemID] {
			return nil, invalid(fmt.Sprintf("itemUpdates[%d]: duplicate item %d", i, u.ItemID), nil)
		}
		seen[u.ItemID] = true
		if u.ProposedBin < 0 {
			return nil, invalid(fmt.Sprintf("itemUpdates[%d]: proposedBin must not be negative", i), nil)
		}
	}
	return records, nil
}

// hasClientIDs reports whether every entry carries a client id.
func hasClientIDs(req CompleteRequest) bool {
	for _, e := range req.Exercises {
		if e.ID == nil {
			return false
		}
	}
	return true
}

func invalid(message string, cause error) *service.ServiceError {
	return service.NewServiceError(opComplete, service.ErrValidation, message, cause)
}
