package lesson

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/domain/srs"
	"github.com/phrazzld/lexis-api/internal/events"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const opComplete = "complete_lesson"

// nextReviewTolerance absorbs clients that send timestamps with second precision.
const nextReviewTolerance = time.Second

// Verify interface compliance at compile time
var _ Service = (*serviceImpl)(nil)

type serviceImpl struct {
	tx      store.Transactor
	srs     srs.Service
	emitter events.EventEmitter
	opts    Options
	logger  *slog.Logger
}

// NewService creates the lesson completion service. emitter may be nil.
func NewService(
	tx store.Transactor,
	srsService srs.Service,
	emitter events.EventEmitter,
	opts Options,
	logger *slog.Logger,
) Service {
	if tx == nil {
		panic("transactor cannot be nil")
	}
	if srsService == nil {
		panic("srsService cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &serviceImpl{
		tx:      tx,
		srs:     srsService,
		emitter: emitter,
		opts:    opts,
		logger:  logger.With(slog.String("component", "lesson_service")),
	}
}

// Complete implements Service.Complete.
func (s *serviceImpl) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	start := time.Now()
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.Int64("user_id", req.UserID))

	ctx, span := tracer.Start(ctx, "lesson.Complete", trace.WithAttributes(
		attribute.Int64("lexis.user_id", req.UserID),
		attribute.Int("lexis.exercises", len(req.Exercises)),
	))
	defer span.End()

	result, err := s.complete(ctx, log, req)
	completionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		err = service.Wrap(opComplete, err)
		completionsTotal.WithLabelValues(outcomeOf(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeOf(err))
		s.logFailure(log, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("lexis.replayed", result.Replayed),
		attribute.Int("lexis.review_states", result.ReviewStatesUpdated),
	)
	span.SetStatus(codes.Ok, "")
	if result.Replayed {
		completionsTotal.WithLabelValues("replayed").Inc()
		log.Info("lesson completion replayed", slog.Int("exercises", result.ExercisesCreated))
		return result, nil
	}

	completionsTotal.WithLabelValues("created").Inc()
	for _, e := range req.Exercises {
		exercisesTotal.WithLabelValues(string(e.Result)).Inc()
	}
	log.Info("lesson completed",
		slog.Int("exercises_created", result.ExercisesCreated),
		slog.Int("review_states_updated", result.ReviewStatesUpdated))

	s.emitCompleted(ctx, log, req, result)
	return result, nil
}

func (s *serviceImpl) complete(ctx context.Context, log *slog.Logger, req CompleteRequest) (*CompleteResult, error) {
	records, err := buildRecords(req)
	if err != nil {
		return nil, err
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	var result *CompleteResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		var err error
		result, err = s.apply(ctx, log, st, req, records)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// apply is the unit of work. Any error it returns rolls everything back.
func (s *serviceImpl) apply(
	ctx context.Context,
	log *slog.Logger,
	st store.Stores,
	req CompleteRequest,
	records []*domain.ExerciseRecord,
) (*CompleteResult, error) {
	user, err := st.Users.GetForUpdate(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	cfg := user.SchedulerConfig
	if err := cfg.Validate(); err != nil {
		return nil, service.NewServiceError(opComplete, service.ErrInvalidState, "stored scheduler config is invalid", err)
	}

	itemIDs := distinctItems(records)

	replayed, err := s.checkReplay(ctx, st, req, records)
	if err != nil {
		return nil, err
	}
	if replayed {
		states, err := st.ReviewStates.GetForUpdate(ctx, req.UserID, itemIDs)
		if err != nil {
			return nil, fmt.Errorf("load review states: %w", err)
		}
		return &CompleteResult{
			ExercisesCreated:    len(records),
			ReviewStatesUpdated: len(itemIDs),
			Replayed:            true,
			States:              sortedStates(states),
		}, nil
	}

	var lesson *domain.Lesson
	if req.LessonID != nil {
		lesson, err = st.Lessons.GetForUpdate(ctx, *req.LessonID)
		if err != nil {
			return nil, fmt.Errorf("lock lesson: %w", err)
		}
		if lesson.UserID != req.UserID {
			return nil, service.NewServiceError(opComplete, service.ErrNotFound, "lesson not found", store.ErrLessonNotFound)
		}
		if lesson.IsCompleted() {
			return nil, service.NewServiceError(opComplete, service.ErrValidation, "lesson is already completed", store.ErrLessonCompleted)
		}
	}

	states, err := s.resolveStates(ctx, st, req.UserID, itemIDs)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	for _, r := range records {
		cur := states[r.ItemID]
		if err := cur.CheckBin(cfg.MaxBins); err != nil {
			return nil, err
		}
		next, err := s.srs.Apply(cur, r.Result, r.EndTime, cfg)
		if errors.Is(err, srs.ErrReviewOutOfOrder) {
			return nil, service.NewServiceError(opComplete, service.ErrValidation,
				fmt.Sprintf("exercise for item %d ends before the item's last review", r.ItemID), err)
		}
		if err != nil {
			return nil, fmt.Errorf("apply exercise %s: %w", r.ID, err)
		}
		next.UpdatedAt = now
		states[r.ItemID] = next
	}

	if err := s.checkProposals(log, req.ItemUpdates, states); err != nil {
		return nil, err
	}

	for _, r := range records {
		r.CreatedAt = now
	}
	if err := st.Exercises.CreateMultiple(ctx, records); err != nil {
		if errors.Is(err, store.ErrExerciseExists) {
			return nil, service.NewServiceError(opComplete, service.ErrValidation, "exercise id is already in use", err)
		}
		return nil, fmt.Errorf("insert exercise records: %w", err)
	}

	ordered := sortedStates(states)
	for _, state := range ordered {
		if err := st.ReviewStates.Upsert(ctx, state); err != nil {
			return nil, fmt.Errorf("upsert review state of item %d: %w", state.ItemID, err)
		}
	}

	if lesson != nil {
		lesson.Complete(latestEnd(records), now)
		if err := st.Lessons.MarkCompleted(ctx, lesson); err != nil {
			return nil, fmt.Errorf("complete lesson %d: %w", lesson.ID, err)
		}
	}

	return &CompleteResult{
		ExercisesCreated:    len(records),
		ReviewStatesUpdated: len(ordered),
		States:              ordered,
	}, nil
}

// checkReplay reports whether the batch has already been applied. A batch
// that only partly matches stored records is rejected.
func (s *serviceImpl) checkReplay(
	ctx context.Context,
	st store.Stores,
	req CompleteRequest,
	records []*domain.ExerciseRecord,
) (bool, error) {
	var ids []uuid.UUID
	for _, e := range req.Exercises {
		if e.ID != nil {
			ids = append(ids, *e.ID)
		}
	}
	if len(ids) == 0 {
		return false, nil
	}

	stored, err := st.Exercises.GetByIDs(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("look up exercise ids: %w", err)
	}
	if len(stored) == 0 {
		return false, nil
	}

	byID := make(map[uuid.UUID]*domain.ExerciseRecord, len(stored))
	for _, r := range stored {
		byID[r.ID] = r
	}
	if !hasClientIDs(req) || len(byID) != len(records) {
		return false, service.NewServiceError(opComplete, service.ErrValidation,
			"batch partially overlaps already recorded exercises", store.ErrExerciseExists)
	}
	for _, r := range records {
		if prev, ok := byID[r.ID]; !ok || !prev.SameAs(r) {
			return false, service.NewServiceError(opComplete, service.ErrValidation,
				fmt.Sprintf("exercise %s was already recorded with different content", r.ID), store.ErrExerciseExists)
		}
	}
	return true, nil
}

// resolveStates locks the existing states of itemIDs and creates fresh ones
// for items the user never exercised. Every item must exist in the catalog.
func (s *serviceImpl) resolveStates(
	ctx context.Context,
	st store.Stores,
	userID int64,
	itemIDs []int64,
) (map[int64]*domain.ReviewState, error) {
	states, err := st.ReviewStates.GetForUpdate(ctx, userID, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("lock review states: %w", err)
	}

	var missing []int64
	for _, id := range itemIDs {
		if _, ok := states[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return states, nil
	}

	exists, err := st.Items.ExistingIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("resolve items: %w", err)
	}
	now := s.opts.Now()
	for _, id := range missing {
		if !exists[id] {
			return nil, service.NewServiceError(opComplete, service.ErrNotFound,
				fmt.Sprintf("vocabulary item %d not found", id), store.ErrItemNotFound)
		}
		states[id] = domain.NewReviewState(userID, id, now)
	}
	return states, nil
}

// checkProposals compares client proposals with the derived states. Derived
// states always win; in strict mode a mismatch aborts the batch.
func (s *serviceImpl) checkProposals(
	log *slog.Logger,
	updates []ItemUpdate,
	states map[int64]*domain.ReviewState,
) error {
	for _, u := range updates {
		derived := states[u.ItemID]
		if proposalMatches(u, derived) {
			continue
		}
		proposalMismatchesTotal.Inc()

		if s.opts.StrictProposals {
			return service.NewServiceError(opComplete, service.ErrInconsistentState,
				fmt.Sprintf("proposed state for item %d does not match", u.ItemID), nil)
		}
		attrs := []any{
			slog.Int64("item_id", u.ItemID),
			slog.Int("proposed_bin", u.ProposedBin),
			slog.Int("derived_bin", derived.Bin),
		}
		if u.ProposedNextReviewAt != nil {
			attrs = append(attrs, slog.Time("proposed_next_review_at", *u.ProposedNextReviewAt))
		}
		log.Warn("client proposal overwritten by derived state", attrs...)
	}
	return nil
}

func proposalMatches(u ItemUpdate, derived *domain.ReviewState) bool {
	if u.ProposedBin != derived.Bin {
		return false
	}
	if u.ProposedNextReviewAt == nil {
		return true
	}
	if derived.NextReviewAt == nil {
		return false
	}
	diff := u.ProposedNextReviewAt.Sub(*derived.NextReviewAt)
	return diff <= nextReviewTolerance && diff >= -nextReviewTolerance
}

func (s *serviceImpl) emitCompleted(ctx context.Context, log *slog.Logger, req CompleteRequest, result *CompleteResult) {
	if s.emitter == nil {
		return
	}
	itemIDs := make([]int64, len(result.States))
	for i, st := range result.States {
		itemIDs[i] = st.ItemID
	}
	event, err := events.NewEvent(events.TypeLessonCompleted, events.LessonCompleted{
		UserID:              req.UserID,
		LessonID:            req.LessonID,
		ExercisesCreated:    result.ExercisesCreated,
		ReviewStatesUpdated: result.ReviewStatesUpdated,
		ItemIDs:             itemIDs,
	})
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		// the batch is committed; a handler failure must not fail the request
		log.Error("failed to emit lesson completed event", slog.String("error", err.Error()))
	}
}

func (s *serviceImpl) logFailure(log *slog.Logger, err error) {
	switch service.Category(err) {
	case service.ErrValidation, service.ErrNotFound:
		log.Debug("lesson completion rejected", slog.String("error", err.Error()))
	case service.ErrInconsistentState:
		log.Warn("lesson completion rejected", slog.String("error", err.Error()))
	default:
		log.Error("lesson completion failed", slog.String("error", err.Error()))
	}
}

func outcomeOf(err error) string {
	switch service.Category(err) {
	case service.ErrValidation:
		return "validation"
	case service.ErrNotFound:
		return "not_found"
	case service.ErrInvalidState:
		return "invalid_state"
	case service.ErrInconsistentState:
		return "inconsistent_state"
	default:
		return "persistence"
	}
}

func distinctItems(records []*domain.ExerciseRecord) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, r := range records {
		if !seen[r.ItemID] {
			seen[r.ItemID] = true
			ids = append(ids, r.ItemID)
		}
	}
	// lock rows in a fixed order
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedStates(states map[int64]*domain.ReviewState) []*domain.ReviewState {
	out := make([]*domain.ReviewState, 0, len(states))
	for _, st := range states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func latestEnd(records []*domain.ExerciseRecord) time.Time {
	var last time.Time
	for _, r := range records {
		if r.EndTime.After(last) {
			last = r.EndTime
		}
	}
	return last
}
