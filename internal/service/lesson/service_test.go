package lesson_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/domain/srs"
	"github.com/phrazzld/lexis-api/internal/events"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/platform/memory"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/lesson"
	"github.com/phrazzld/lexis-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userID = int64(1)
	itemA  = int64(10)
	itemB  = int64(20)
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db  *memory.DB
	svc lesson.Service
	log *logger.TestLogBuffer
}

func newFixture(t *testing.T, opts lesson.Options) *fixture {
	t.Helper()
	return newFixtureWith(t, opts, nil, nil)
}

// newFixtureWith seeds one user with the default config and two items. wrap,
// when set, decorates the transactor handed to the service.
func newFixtureWith(
	t *testing.T,
	opts lesson.Options,
	wrap func(store.Transactor) store.Transactor,
	emitter events.EventEmitter,
) *fixture {
	t.Helper()

	db := memory.New()
	s := db.Stores()
	ctx := context.Background()
	require.NoError(t, s.Users.Create(ctx, &domain.User{ID: userID, SchedulerConfig: domain.DefaultSchedulerConfig()}))
	require.NoError(t, s.Items.Create(ctx, &domain.VocabularyItem{ID: itemA, LanguageCode: "pt", Lemma: "casa"}))
	require.NoError(t, s.Items.Create(ctx, &domain.VocabularyItem{ID: itemB, LanguageCode: "pt", Lemma: "gato"}))

	if opts.Now == nil {
		opts.Now = func() time.Time { return t0.Add(time.Hour) }
	}
	var tx store.Transactor = db
	if wrap != nil {
		tx = wrap(db)
	}
	buf, l := logger.NewTestLogger(t)
	return &fixture{
		db:  db,
		svc: lesson.NewService(tx, srs.NewDefaultService(), emitter, opts, l),
		log: buf,
	}
}

func entry(itemID int64, result domain.ExerciseResult, end time.Time) lesson.ExerciseEntry {
	return lesson.ExerciseEntry{
		ItemID:       itemID,
		ExerciseType: "translate",
		Result:       result,
		StartTime:    end.Add(-time.Minute),
		EndTime:      end,
	}
}

func withID(e lesson.ExerciseEntry) lesson.ExerciseEntry {
	id := uuid.New()
	e.ID = &id
	return e
}

func (f *fixture) state(t *testing.T, itemID int64) *domain.ReviewState {
	t.Helper()
	states, err := f.db.Stores().ReviewStates.GetForUpdate(context.Background(), userID, []int64{itemID})
	require.NoError(t, err)
	st, ok := states[itemID]
	require.True(t, ok, "no review state for item %d", itemID)
	return st
}

func (f *fixture) assertNothingWritten(t *testing.T) {
	t.Helper()
	assert.Zero(t, f.db.ExerciseCount(), "exercise records")
	assert.Zero(t, f.db.ReviewStateCount(), "review states")
}

func TestComplete_SuccessThenFail(t *testing.T) {
	f := newFixture(t, lesson.Options{})
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID:    userID,
		Exercises: []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)},
	})
	require.NoError(t, err)

	st := f.state(t, itemA)
	assert.Equal(t, 1, st.Bin)
	require.NotNil(t, st.NextReviewAt)
	assert.Equal(t, t0.Add(46*time.Hour), *st.NextReviewAt)
	assert.Equal(t, t0, *st.LastReviewTime)

	t1 := t0.Add(72 * time.Hour)
	_, err = f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID:    userID,
		Exercises: []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultFail, t1)},
	})
	require.NoError(t, err)

	st = f.state(t, itemA)
	assert.Equal(t, 0, st.Bin)
	assert.Equal(t, t1.Add(23*time.Hour), *st.NextReviewAt)
	assert.Equal(t, int64(2), st.Version)
}

func TestComplete_ScheduleNeverMovesBackwards(t *testing.T) {
	f := newFixture(t, lesson.Options{})
	ctx := context.Background()
	later := t0.Add(100 * time.Hour)

	_, err := f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID:    userID,
		Exercises: []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, later)},
	})
	require.NoError(t, err)
	before := f.state(t, itemA)

	// a delayed batch from another device
	_, err = f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID: userID,
		Exercises: []lesson.ExerciseEntry{
			entry(itemB, domain.ExerciseResultSuccess, t0),
			entry(itemA, domain.ExerciseResultSuccess, t0),
		},
	})
	require.ErrorIs(t, err, service.ErrValidation)
	assert.Contains(t, err.Error(), "before the item's last review")

	after := f.state(t, itemA)
	assert.Equal(t, before.Bin, after.Bin)
	assert.Equal(t, later, *after.LastReviewTime)
	assert.Equal(t, *before.NextReviewAt, *after.NextReviewAt)
	assert.Equal(t, 1, f.db.ExerciseCount(), "rejected batch leaves no records")
	assert.Equal(t, 1, f.db.ReviewStateCount(), "item B was not created")

	// the same holds for out-of-order entries inside one batch
	_, err = f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID: userID,
		Exercises: []lesson.ExerciseEntry{
			entry(itemB, domain.ExerciseResultSuccess, t0.Add(time.Hour)),
			entry(itemB, domain.ExerciseResultSuccess, t0),
		},
	})
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.Equal(t, 1, f.db.ReviewStateCount())
}

func TestComplete_BatchAppliesSequentiallyPerItem(t *testing.T) {
	f := newFixture(t, lesson.Options{})

	res, err := f.svc.Complete(context.Background(), lesson.CompleteRequest{
		UserID: userID,
		Exercises: []lesson.ExerciseEntry{
			entry(itemA, domain.ExerciseResultSuccess, t0),
			entry(itemB, domain.ExerciseResultSuccess, t0.Add(time.Minute)),
			entry(itemA, domain.ExerciseResultFail, t0.Add(2*time.Minute)),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExercisesCreated)
	assert.Equal(t, 2, res.ReviewStatesUpdated)
	assert.False(t, res.Replayed)
	require.Len(t, res.States, 2)
	assert.Equal(t, itemA, res.States[0].ItemID)
	assert.Equal(t, 0, res.States[0].Bin, "last transition wins")
	assert.Equal(t, 1, res.States[1].Bin)

	assert.Equal(t, 3, f.db.ExerciseCount())
	assert.Equal(t, 2, f.db.ReviewStateCount())
	assert.Equal(t, int64(1), f.state(t, itemA).Version, "each state is written once")
}

func TestComplete_RejectsMalformedBatch(t *testing.T) {
	dup := uuid.New()
	bad := entry(itemB, domain.ExerciseResultSuccess, t0)
	bad.EndTime = bad.StartTime.Add(-time.Second)

	tests := []struct {
		name string
		req  lesson.CompleteRequest
	}{
		{
			name: "end before start",
			req: lesson.CompleteRequest{UserID: userID, Exercises: []lesson.ExerciseEntry{
				entry(itemA, domain.ExerciseResultSuccess, t0), bad,
			}},
		},
		{
			name: "empty batch",
			req:  lesson.CompleteRequest{UserID: userID},
		},
		{
			name: "unknown result",
			req: lesson.CompleteRequest{UserID: userID, Exercises: []lesson.ExerciseEntry{
				entry(itemA, domain.ExerciseResult("skipped"), t0),
			}},
		},
		{
			name: "missing exercise type",
			req: lesson.CompleteRequest{UserID: userID, Exercises: []lesson.ExerciseEntry{
				{ItemID: itemA, Result: domain.ExerciseResultHint, StartTime: t0, EndTime: t0},
			}},
		},
		{
			name: "duplicate exercise id",
			req: lesson.CompleteRequest{UserID: userID, Exercises: []lesson.ExerciseEntry{
				{ID: &dup, ItemID: itemA, ExerciseType: "t", Result: domain.ExerciseResultHint, StartTime: t0, EndTime: t0},
				{ID: &dup, ItemID: itemB, ExerciseType: "t", Result: domain.ExerciseResultHint, StartTime: t0, EndTime: t0},
			}},
		},
		{
			name: "update for item outside batch",
			req: lesson.CompleteRequest{
				UserID:      userID,
				Exercises:   []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)},
				ItemUpdates: []lesson.ItemUpdate{{ItemID: itemB, ProposedBin: 1}},
			},
		},
		{
			name: "non-positive user",
			req:  lesson.CompleteRequest{Exercises: []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, lesson.Options{})
			_, err := f.svc.Complete(context.Background(), tt.req)

			assert.ErrorIs(t, err, service.ErrValidation)
			f.assertNothingWritten(t)
		})
	}
}

func TestComplete_UnknownReferences(t *testing.T) {
	f := newFixture(t, lesson.Options{})
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID:    99,
		Exercises: []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)},
	})
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID: userID,
		Exercises: []lesson.ExerciseEntry{
			entry(itemA, domain.ExerciseResultSuccess, t0),
			entry(404, domain.ExerciseResultSuccess, t0),
		},
	})
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.ErrorIs(t, err, store.ErrItemNotFound)

	missing := int64(77)
	_, err = f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID:    userID,
		LessonID:  &missing,
		Exercises: []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)},
	})
	assert.ErrorIs(t, err, service.ErrNotFound)

	f.assertNothingWritten(t)
}

func TestComplete_LessonIsWriteOnce(t *testing.T) {
	f := newFixture(t, lesson.Options{})
	ctx := context.Background()
	s := f.db.Stores()

	l := &domain.Lesson{UserID: userID, LearningLanguage: "pt", Kind: domain.LessonKindAll, StartTime: t0.Add(-time.Hour)}
	require.NoError(t, s.Lessons.Create(ctx, l))

	_, err := f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID:    userID,
		LessonID:  &l.ID,
		Exercises: []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)},
	})
	require.NoError(t, err)

	stored, err := s.Lessons.GetForUpdate(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, stored.IsCompleted())
	assert.Equal(t, t0, *stored.EndTime)
	n, err := s.Exercises.CountByLesson(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID:    userID,
		LessonID:  &l.ID,
		Exercises: []lesson.ExerciseEntry{entry(itemB, domain.ExerciseResultSuccess, t0)},
	})
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.Equal(t, 1, f.db.ExerciseCount())
}

func TestComplete_ForeignLessonIsNotFound(t *testing.T) {
	f := newFixture(t, lesson.Options{})
	ctx := context.Background()
	s := f.db.Stores()

	require.NoError(t, s.Users.Create(ctx, &domain.User{ID: 2, SchedulerConfig: domain.DefaultSchedulerConfig()}))
	l := &domain.Lesson{UserID: 2, LearningLanguage: "pt", Kind: domain.LessonKindNew, StartTime: t0}
	require.NoError(t, s.Lessons.Create(ctx, l))

	_, err := f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID:    userID,
		LessonID:  &l.ID,
		Exercises: []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)},
	})
	assert.ErrorIs(t, err, service.ErrNotFound)
	f.assertNothingWritten(t)
}

func TestComplete_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, lesson.Options{})
	ctx := context.Background()
	s := f.db.Stores()

	l := &domain.Lesson{UserID: userID, LearningLanguage: "pt", Kind: domain.LessonKindAll, StartTime: t0}
	require.NoError(t, s.Lessons.Create(ctx, l))

	req := lesson.CompleteRequest{
		UserID:   userID,
		LessonID: &l.ID,
		Exercises: []lesson.ExerciseEntry{
			withID(entry(itemA, domain.ExerciseResultSuccess, t0)),
			withID(entry(itemB, domain.ExerciseResultHint, t0)),
		},
	}

	first, err := f.svc.Complete(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	again, err := f.svc.Complete(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.ExercisesCreated, again.ExercisesCreated)
	assert.Equal(t, first.ReviewStatesUpdated, again.ReviewStatesUpdated)
	assert.Equal(t, 2, f.db.ExerciseCount())
	assert.Equal(t, int64(1), f.state(t, itemA).Version, "replay writes nothing")
	assert.Equal(t, 1, f.state(t, itemA).Bin)

	t.Run("partial overlap is rejected", func(t *testing.T) {
		overlap := req
		overlap.LessonID = nil
		overlap.Exercises = []lesson.ExerciseEntry{
			req.Exercises[0],
			withID(entry(itemB, domain.ExerciseResultFail, t0)),
		}
		_, err := f.svc.Complete(ctx, overlap)
		assert.ErrorIs(t, err, service.ErrValidation)
		assert.Equal(t, 2, f.db.ExerciseCount())
	})

	t.Run("changed content is rejected", func(t *testing.T) {
		changed := req
		changed.Exercises = []lesson.ExerciseEntry{req.Exercises[0], req.Exercises[1]}
		changed.Exercises[1].Result = domain.ExerciseResultFail
		_, err := f.svc.Complete(ctx, changed)
		assert.ErrorIs(t, err, service.ErrValidation)
	})
}

func TestComplete_StrictProposals(t *testing.T) {
	f := newFixture(t, lesson.Options{StrictProposals: true})
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID:      userID,
		Exercises:   []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)},
		ItemUpdates: []lesson.ItemUpdate{{ItemID: itemA, ProposedBin: 2}},
	})
	assert.ErrorIs(t, err, service.ErrInconsistentState)
	f.assertNothingWritten(t)

	// a matching proposal, at second precision, is accepted
	next := t0.Add(46*time.Hour + 300*time.Millisecond)
	_, err = f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID:      userID,
		Exercises:   []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)},
		ItemUpdates: []lesson.ItemUpdate{{ItemID: itemA, ProposedBin: 1, ProposedNextReviewAt: &next}},
	})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(46*time.Hour), *f.state(t, itemA).NextReviewAt)
}

func TestComplete_LenientProposalsAreOverwritten(t *testing.T) {
	f := newFixture(t, lesson.Options{})

	wrong := t0.Add(1000 * time.Hour)
	res, err := f.svc.Complete(context.Background(), lesson.CompleteRequest{
		UserID:      userID,
		Exercises:   []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)},
		ItemUpdates: []lesson.ItemUpdate{{ItemID: itemA, ProposedBin: 5, ProposedNextReviewAt: &wrong}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.States[0].Bin)
	assert.Equal(t, t0.Add(46*time.Hour), *f.state(t, itemA).NextReviewAt)

	warnings := f.log.EntriesWithLevel(t, "WARN")
	require.Len(t, warnings, 1)
	assert.Equal(t, float64(itemA), warnings[0]["item_id"])
	assert.Equal(t, float64(5), warnings[0]["proposed_bin"])
	assert.Equal(t, float64(1), warnings[0]["derived_bin"])
}

func TestComplete_OutOfRangeBinIsInvalidState(t *testing.T) {
	f := newFixture(t, lesson.Options{})
	ctx := context.Background()
	s := f.db.Stores()

	corrupt := domain.NewReviewState(userID, itemA, t0)
	corrupt.Bin = 6
	require.NoError(t, s.ReviewStates.Upsert(ctx, corrupt))

	factor := 1.0
	require.NoError(t, s.Users.UpdateSchedulerConfig(ctx, userID, domain.SchedulerConfig{
		MaxBins: 5, Algorithm: domain.AlgorithmFibonacci, IntervalStartHours: 23, IntervalFactor: &factor,
	}))

	_, err := f.svc.Complete(ctx, lesson.CompleteRequest{
		UserID: userID,
		Exercises: []lesson.ExerciseEntry{
			entry(itemB, domain.ExerciseResultSuccess, t0),
			entry(itemA, domain.ExerciseResultSuccess, t0),
		},
	})
	assert.ErrorIs(t, err, service.ErrInvalidState)

	assert.Zero(t, f.db.ExerciseCount())
	assert.Equal(t, 6, f.state(t, itemA).Bin, "not silently repaired")
	assert.Equal(t, 1, f.db.ReviewStateCount())
	assert.NotEmpty(t, f.log.EntriesWithLevel(t, "ERROR"))
}

type faultyExercises struct {
	store.ExerciseStore
	failAfter int
}

// CreateMultiple writes the first failAfter records, then fails.
func (f faultyExercises) CreateMultiple(ctx context.Context, records []*domain.ExerciseRecord) error {
	if err := f.ExerciseStore.CreateMultiple(ctx, records[:f.failAfter]); err != nil {
		return err
	}
	return errors.New("connection reset by peer")
}

type faultyTransactor struct {
	inner     store.Transactor
	failAfter int
}

func (f faultyTransactor) WithinTx(ctx context.Context, fn store.TxFunc) error {
	return f.inner.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
		s.Exercises = faultyExercises{ExerciseStore: s.Exercises, failAfter: f.failAfter}
		return fn(ctx, s)
	})
}

func TestComplete_FailureAfterPartialInsertLeavesNoTrace(t *testing.T) {
	for failAfter := 0; failAfter <= 2; failAfter++ {
		f := newFixtureWith(t, lesson.Options{}, func(inner store.Transactor) store.Transactor {
			return faultyTransactor{inner: inner, failAfter: failAfter}
		}, nil)

		_, err := f.svc.Complete(context.Background(), lesson.CompleteRequest{
			UserID: userID,
			Exercises: []lesson.ExerciseEntry{
				entry(itemA, domain.ExerciseResultSuccess, t0),
				entry(itemB, domain.ExerciseResultSuccess, t0),
				entry(itemA, domain.ExerciseResultSuccess, t0),
			},
		})
		assert.ErrorIs(t, err, service.ErrPersistence, "failAfter=%d", failAfter)
		f.assertNothingWritten(t)
	}
}

func TestComplete_DeadlineRollsBack(t *testing.T) {
	f := newFixture(t, lesson.Options{Timeout: 20 * time.Millisecond})

	// another unit of work holds the user's lock past the deadline
	locked := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.db.WithinTx(context.Background(), func(ctx context.Context, s store.Stores) error {
			_, err := s.Users.GetForUpdate(ctx, userID)
			close(locked)
			<-release
			return err
		})
	}()
	<-locked

	_, err := f.svc.Complete(context.Background(), lesson.CompleteRequest{
		UserID:    userID,
		Exercises: []lesson.ExerciseEntry{entry(itemA, domain.ExerciseResultSuccess, t0)},
	})
	assert.ErrorIs(t, err, service.ErrPersistence)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	wg.Wait()
	f.assertNothingWritten(t)
}

func TestComplete_EmitsEventAfterCommit(t *testing.T) {
	_, l := logger.NewTestLogger(t)
	emitter := events.NewInMemoryEventEmitter(l)

	var got []*events.Event
	emitter.RegisterHandler(events.HandlerFunc(func(ctx context.Context, e *events.Event) error {
		got = append(got, e)
		return errors.New("handler failures do not fail the request")
	}))

	f := newFixtureWith(t, lesson.Options{}, nil, emitter)
	_, err := f.svc.Complete(context.Background(), lesson.CompleteRequest{
		UserID: userID,
		Exercises: []lesson.ExerciseEntry{
			entry(itemB, domain.ExerciseResultSuccess, t0),
			entry(itemA, domain.ExerciseResultHint, t0),
		},
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, events.TypeLessonCompleted, got[0].Type)
	var payload events.LessonCompleted
	require.NoError(t, got[0].UnmarshalPayload(&payload))
	assert.Equal(t, events.LessonCompleted{
		UserID:              userID,
		ExercisesCreated:    2,
		ReviewStatesUpdated: 2,
		ItemIDs:             []int64{itemA, itemB},
	}, payload)

	_, err = f.svc.Complete(context.Background(), lesson.CompleteRequest{UserID: userID})
	require.Error(t, err)
	assert.Len(t, got, 1, "failed completions emit nothing")
}

func TestNewService_PanicsOnMissingDependencies(t *testing.T) {
	assert.Panics(t, func() { lesson.NewService(nil, srs.NewDefaultService(), nil, lesson.Options{}, nil) })
	assert.Panics(t, func() { lesson.NewService(memory.New(), nil, nil, lesson.Options{}, nil) })
}
