package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/mocks"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/dueset"
	"github.com/phrazzld/lexis-api/internal/service/lesson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// newRequest builds a request authenticated as userID (0 for none).
func newRequest(t *testing.T, method, target string, userID int64, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := shared.SetTraceID(req.Context())
	if userID > 0 {
		ctx = shared.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

func TestCompleteLessonHandler(t *testing.T) {
	t.Parallel()

	_, log := logger.NewTestLogger(t)
	exerciseID := uuid.New()
	lessonID := int64(8)
	proposed := fixedNow.Add(46 * time.Hour)

	body := CompleteLessonRequest{
		LessonID: &lessonID,
		Exercises: []ExerciseRequest{{
			ID:           &exerciseID,
			ItemID:       10,
			ExerciseType: "translate",
			Result:       "success",
			StartTime:    fixedNow,
			EndTime:      fixedNow.Add(time.Minute),
		}},
		ItemUpdates: []ItemUpdateRequest{{ItemID: 10, ProposedBin: 1, ProposedNextReviewAt: &proposed}},
	}

	t.Run("created", func(t *testing.T) {
		t.Parallel()

		next := fixedNow.Add(47 * time.Hour)
		svc := mocks.NewMockLessonService(mocks.WithCompleteResult(&lesson.CompleteResult{
			ExercisesCreated:    1,
			ReviewStatesUpdated: 1,
			States:              []*domain.ReviewState{{UserID: 3, ItemID: 10, Bin: 1, NextReviewAt: &next}},
		}))
		h := NewLessonHandler(svc, &mocks.MockDueSetService{}, log)

		rr := httptest.NewRecorder()
		h.CompleteLesson(rr, newRequest(t, http.MethodPost, "/api/lessons/complete", 3, body))

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var resp CompleteLessonResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "Lesson completed", resp.Message)
		require.Len(t, resp.ReviewStates, 1)
		assert.Equal(t, int64(10), resp.ReviewStates[0].ItemID)
		assert.Equal(t, 1, resp.ReviewStates[0].Bin)
		require.NotNil(t, resp.ReviewStates[0].NextReviewAt)
		assert.True(t, next.Equal(*resp.ReviewStates[0].NextReviewAt))

		got, ok := svc.LastRequest()
		require.True(t, ok)
		assert.Equal(t, int64(3), got.UserID)
		assert.Equal(t, &lessonID, got.LessonID)
		require.Len(t, got.Exercises, 1)
		assert.Equal(t, &exerciseID, got.Exercises[0].ID)
		assert.Equal(t, domain.ExerciseResultSuccess, got.Exercises[0].Result)
		require.Len(t, got.ItemUpdates, 1)
		assert.Equal(t, 1, got.ItemUpdates[0].ProposedBin)
		assert.True(t, proposed.Equal(*got.ItemUpdates[0].ProposedNextReviewAt))
	})

	t.Run("replay answers 200", func(t *testing.T) {
		t.Parallel()

		svc := mocks.NewMockLessonService(mocks.WithCompleteResult(&lesson.CompleteResult{Replayed: true}))
		h := NewLessonHandler(svc, &mocks.MockDueSetService{}, log)

		rr := httptest.NewRecorder()
		h.CompleteLesson(rr, newRequest(t, http.MethodPost, "/api/lessons/complete", 3, body))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"replayed":true`)
	})

	t.Run("service errors are mapped", func(t *testing.T) {
		t.Parallel()

		svc := mocks.NewMockLessonService(mocks.WithCompleteError(
			service.NewServiceError("complete_lesson", service.ErrNotFound, "vocabulary item not found", nil)))
		h := NewLessonHandler(svc, &mocks.MockDueSetService{}, log)

		rr := httptest.NewRecorder()
		h.CompleteLesson(rr, newRequest(t, http.MethodPost, "/api/lessons/complete", 3, body))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "Vocabulary item not found")
	})

	t.Run("rejected before reaching the service", func(t *testing.T) {
		t.Parallel()

		other := int64(4)
		withOther := body
		withOther.UserID = &other

		cases := []struct {
			name   string
			userID int64
			body   any
			status int
		}{
			{"unauthenticated", 0, body, http.StatusUnauthorized},
			{"other user", 3, withOther, http.StatusForbidden},
			{"no exercises", 3, CompleteLessonRequest{}, http.StatusBadRequest},
			{"bad lesson id", 3, CompleteLessonRequest{LessonID: new(int64), Exercises: body.Exercises}, http.StatusBadRequest},
		}

		svc := mocks.NewMockLessonService()
		h := NewLessonHandler(svc, &mocks.MockDueSetService{}, log)
		for _, c := range cases {
			rr := httptest.NewRecorder()
			h.CompleteLesson(rr, newRequest(t, http.MethodPost, "/api/lessons/complete", c.userID, c.body))
			assert.Equal(t, c.status, rr.Code, c.name)
		}
		assert.Zero(t, svc.CompleteCalls.Count)
	})
}

func TestGetCandidatesHandler(t *testing.T) {
	t.Parallel()

	_, log := logger.NewTestLogger(t)

	var gotQuery dueset.Query
	var gotLimit int
	dueSet := &mocks.MockDueSetService{
		DueCandidatesFn: func(_ context.Context, q dueset.Query, limit int) ([]int64, error) {
			gotQuery, gotLimit = q, limit
			return nil, nil
		},
	}
	h := NewLessonHandler(mocks.NewMockLessonService(), dueSet, log)
	h.now = func() time.Time { return fixedNow }

	rr := httptest.NewRecorder()
	h.GetCandidates(rr, newRequest(t, http.MethodGet, "/api/lessons/candidates?language=pt", 3, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"languageCode":"pt","asOf":"2026-03-01T09:00:00Z","itemIds":[]}`, rr.Body.String())
	assert.Equal(t, dueset.Query{UserID: 3, LanguageCode: "pt", AsOf: fixedNow}, gotQuery)
	assert.Equal(t, DefaultCandidateLimit, gotLimit)

	rr = httptest.NewRecorder()
	h.GetCandidates(rr, newRequest(t, http.MethodGet,
		"/api/lessons/candidates?language=pt&limit=7&as_of=2026-04-01T12:00:00%2B02:00", 3, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 7, gotLimit)
	assert.Equal(t, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), gotQuery.AsOf)
}

func TestGetDueStatsHandler(t *testing.T) {
	t.Parallel()

	_, log := logger.NewTestLogger(t)
	summary := &domain.DueSummary{
		UserID:       3,
		LanguageCode: "pt",
		AsOf:         fixedNow,
		Bins:         []domain.BinCount{{Bin: 0, Due: 2}, {Bin: 1, NotDue: 1}},
		TotalDue:     2,
		TotalNotDue:  1,
	}

	h := NewStatsHandler(&mocks.MockDueSetService{Summary: summary}, log)
	rr := httptest.NewRecorder()
	h.GetDueStats(rr, newRequest(t, http.MethodGet, "/api/stats/due?language=pt", 3, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var got domain.DueSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 2, got.TotalDue)
	assert.Len(t, got.Bins, 2)

	failing := NewStatsHandler(&mocks.MockDueSetService{
		Err: service.NewServiceError("classify_due", service.ErrInvalidState, "review state is out of range", nil),
	}, log)
	rr = httptest.NewRecorder()
	failing.GetDueStats(rr, newRequest(t, http.MethodGet, "/api/stats/due?language=pt", 3, nil))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSchedulerHandler(t *testing.T) {
	t.Parallel()

	_, log := logger.NewTestLogger(t)
	cfg := domain.DefaultSchedulerConfig()

	t.Run("provision reports creation", func(t *testing.T) {
		t.Parallel()

		h := NewSchedulerHandler(&mocks.MockSchedulerConfigService{Config: cfg, Created: true}, log)
		rr := httptest.NewRecorder()
		h.Provision(rr, newRequest(t, http.MethodPost, "/api/users/me", 3, nil))
		assert.Equal(t, http.StatusCreated, rr.Code)

		h = NewSchedulerHandler(&mocks.MockSchedulerConfigService{Config: cfg}, log)
		rr = httptest.NewRecorder()
		h.Provision(rr, newRequest(t, http.MethodPost, "/api/users/me", 3, nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"maxBins":7`)
	})

	t.Run("update converts the request", func(t *testing.T) {
		t.Parallel()

		var got service.SchedulerConfigUpdate
		svc := &mocks.MockSchedulerConfigService{
			UpdateFn: func(_ context.Context, userID int64, u service.SchedulerConfigUpdate) (domain.SchedulerConfig, error) {
				got = u
				return cfg, nil
			},
		}
		h := NewSchedulerHandler(svc, log)
		factor := 2.0
		rr := httptest.NewRecorder()
		h.UpdateConfig(rr, newRequest(t, http.MethodPut, "/api/users/me/scheduler", 3, SchedulerConfigRequest{
			MaxBins: 9, Algorithm: "fibonacci", IntervalStart: 6, IntervalFactor: &factor,
		}))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, service.SchedulerConfigUpdate{
			MaxBins: 9, Algorithm: "fibonacci", IntervalStart: 6, IntervalFactor: &factor,
		}, got)
	})

	t.Run("update requires every field", func(t *testing.T) {
		t.Parallel()

		h := NewSchedulerHandler(&mocks.MockSchedulerConfigService{}, log)
		rr := httptest.NewRecorder()
		h.UpdateConfig(rr, newRequest(t, http.MethodPut, "/api/users/me/scheduler", 3, map[string]any{"maxBins": 9}))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid algorithm: required field")
	})

	t.Run("get maps not found", func(t *testing.T) {
		t.Parallel()

		h := NewSchedulerHandler(&mocks.MockSchedulerConfigService{
			Err: service.NewServiceError("get_scheduler_config", service.ErrNotFound, "user not found", nil),
		}, log)
		rr := httptest.NewRecorder()
		h.GetConfig(rr, newRequest(t, http.MethodGet, "/api/users/me/scheduler", 3, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHandlerConstructorsPanicOnNil(t *testing.T) {
	t.Parallel()

	_, log := logger.NewTestLogger(t)
	assert.Panics(t, func() { NewLessonHandler(nil, &mocks.MockDueSetService{}, log) })
	assert.Panics(t, func() { NewLessonHandler(mocks.NewMockLessonService(), nil, log) })
	assert.Panics(t, func() { NewStatsHandler(&mocks.MockDueSetService{}, nil) })
	assert.Panics(t, func() { NewSchedulerHandler(nil, log) })
}
