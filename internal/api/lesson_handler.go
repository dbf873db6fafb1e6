package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/service/dueset"
	"github.com/phrazzld/lexis-api/internal/service/lesson"
)

// LessonHandler handles lesson completion and lesson candidate requests.
type LessonHandler struct {
	lessons lesson.Service
	dueSet  dueset.Service
	now     func() time.Time
	logger  *slog.Logger
}

// NewLessonHandler creates a new LessonHandler
func NewLessonHandler(lessons lesson.Service, dueSet dueset.Service, logger *slog.Logger) *LessonHandler {
	if lessons == nil {
		panic("lesson service cannot be nil for LessonHandler")
	}
	if dueSet == nil {
		panic("due-set service cannot be nil for LessonHandler")
	}
	if logger == nil {
		panic("logger cannot be nil for LessonHandler")
	}
	return &LessonHandler{
		lessons: lessons,
		dueSet:  dueSet,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "lesson_handler")),
	}
}

// CompleteLesson handles POST /api/lessons/complete.
// It records the lesson's exercises and advances the touched review states.
// A replayed batch answers 200 instead of 201.
func (h *LessonHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	log := logFromRequest(r, h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	var req CompleteLessonRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if req.UserID != nil && *req.UserID != userID {
		log.Warn("completion names another user",
			slog.Int64("user_id", userID),
			slog.Int64("requested_user_id", *req.UserID))
		HandleAPIError(w, r, ErrForbidden, "")
		return
	}

	result, err := h.lessons.Complete(r.Context(), req.toServiceRequest(userID))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to complete lesson")
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	log.Debug("lesson completion handled",
		slog.Int64("user_id", userID),
		slog.Int("exercises_created", result.ExercisesCreated),
		slog.Bool("replayed", result.Replayed))
	shared.RespondWithJSON(w, r, status, completeResultToResponse(result))
}

// GetCandidates handles GET /api/lessons/candidates.
// It lists the ids of due items for the given language, most overdue first.
func (h *LessonHandler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	log := logFromRequest(r, h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	q, err := parseDueQuery(r, userID, h.now)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	limit, err := getLimit(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	ids, err := h.dueSet.DueCandidates(r.Context(), q, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list lesson candidates")
		return
	}
	if ids == nil {
		ids = []int64{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CandidatesResponse{
		LanguageCode: q.LanguageCode,
		AsOf:         q.AsOf,
		ItemIDs:      ids,
	})
}

func parseDueQuery(r *http.Request, userID int64, now func() time.Time) (dueset.Query, error) {
	lang, err := getLanguage(r)
	if err != nil {
		return dueset.Query{}, err
	}
	asOf, err := getAsOf(r, now)
	if err != nil {
		return dueset.Query{}, err
	}
	return dueset.Query{UserID: userID, LanguageCode: lang, AsOf: asOf}, nil
}
