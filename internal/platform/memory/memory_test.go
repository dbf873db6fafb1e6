package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/memory"
	"github.com/phrazzld/lexis-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func seed(t *testing.T) (*memory.DB, int64, int64) {
	t.Helper()
	db := memory.New()
	s := db.Stores()
	ctx := context.Background()

	require.NoError(t, s.Users.Create(ctx, &domain.User{ID: 1, SchedulerConfig: domain.DefaultSchedulerConfig()}))
	item := &domain.VocabularyItem{LanguageCode: "pt", Lemma: "casa"}
	require.NoError(t, s.Items.Create(ctx, item))
	return db, 1, item.ID
}

func exercise(userID, itemID int64) *domain.ExerciseRecord {
	now := time.Now().UTC()
	return &domain.ExerciseRecord{
		ID: uuid.New(), UserID: userID, ItemID: itemID, ExerciseType: "translate",
		Result: domain.ExerciseResultSuccess, StartTime: now, EndTime: now,
	}
}

func TestWithinTx_CommitMakesWritesVisible(t *testing.T) {
	db, userID, itemID := seed(t)
	ctx := context.Background()

	err := db.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
		if _, err := s.Users.GetForUpdate(ctx, userID); err != nil {
			return err
		}
		if err := s.Exercises.CreateMultiple(ctx, []*domain.ExerciseRecord{exercise(userID, itemID)}); err != nil {
			return err
		}
		st := domain.NewReviewState(userID, itemID, time.Now())
		if err := s.ReviewStates.Upsert(ctx, st); err != nil {
			return err
		}

		// reads inside the tx see staged writes, reads outside do not
		inside, err := s.ReviewStates.GetForUpdate(ctx, userID, []int64{itemID})
		require.NoError(t, err)
		assert.Len(t, inside, 1)
		assert.Equal(t, 0, db.ReviewStateCount())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, db.ExerciseCount())
	states, err := db.Stores().ReviewStates.ListByUserLanguage(ctx, userID, "pt")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, int64(1), states[0].Version)
}

func TestWithinTx_ErrorDiscardsWrites(t *testing.T) {
	db, userID, itemID := seed(t)
	boom := errors.New("boom")

	err := db.WithinTx(context.Background(), func(ctx context.Context, s store.Stores) error {
		require.NoError(t, s.Exercises.CreateMultiple(ctx, []*domain.ExerciseRecord{exercise(userID, itemID)}))
		require.NoError(t, s.ReviewStates.Upsert(ctx, domain.NewReviewState(userID, itemID, time.Now())))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, db.ExerciseCount())
	assert.Zero(t, db.ReviewStateCount())
}

func TestWithinTx_PanicRollsBack(t *testing.T) {
	db, userID, itemID := seed(t)

	assert.Panics(t, func() {
		_ = db.WithinTx(context.Background(), func(ctx context.Context, s store.Stores) error {
			_, _ = s.Users.GetForUpdate(ctx, userID)
			_ = s.Exercises.CreateMultiple(ctx, []*domain.ExerciseRecord{exercise(userID, itemID)})
			panic("boom")
		})
	})
	assert.Zero(t, db.ExerciseCount())

	// the user lock was released
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := db.Stores().Users.GetForUpdate(ctx, userID)
	assert.NoError(t, err)
}

func TestWithinTx_ExpiredContextRollsBack(t *testing.T) {
	db, userID, itemID := seed(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := db.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
		require.NoError(t, s.Exercises.CreateMultiple(ctx, []*domain.ExerciseRecord{exercise(userID, itemID)}))
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, store.ErrTransactionFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, db.ExerciseCount())
}

func TestUserLock_WaitRespectsDeadline(t *testing.T) {
	db, userID, _ := seed(t)

	locked := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = db.WithinTx(context.Background(), func(ctx context.Context, s store.Stores) error {
			_, err := s.Users.GetForUpdate(ctx, userID)
			close(locked)
			<-release
			return err
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := db.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
		_, err := s.Users.GetForUpdate(ctx, userID)
		return err
	})
	assert.ErrorIs(t, err, store.ErrTransactionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	wg.Wait()
}

func TestUserLock_SerializesSameUser(t *testing.T) {
	db, userID, itemID := seed(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
				if _, err := s.Users.GetForUpdate(ctx, userID); err != nil {
					return err
				}
				states, err := s.ReviewStates.GetForUpdate(ctx, userID, []int64{itemID})
				if err != nil {
					return err
				}
				st, ok := states[itemID]
				if !ok {
					st = domain.NewReviewState(userID, itemID, time.Now())
				}
				st.Bin++
				return s.ReviewStates.Upsert(ctx, st)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	states, err := db.Stores().ReviewStates.GetForUpdate(ctx, userID, []int64{itemID})
	require.NoError(t, err)
	assert.Equal(t, workers, states[itemID].Bin, "every increment must survive")
	assert.Equal(t, int64(workers), states[itemID].Version)
}

func TestReviewStateUpsert_VersionGuard(t *testing.T) {
	db, userID, itemID := seed(t)
	ctx := context.Background()
	s := db.Stores()

	first := domain.NewReviewState(userID, itemID, time.Now())
	require.NoError(t, s.ReviewStates.Upsert(ctx, first))

	// a second writer that also believes the state is new loses
	dup := domain.NewReviewState(userID, itemID, time.Now())
	assert.ErrorIs(t, s.ReviewStates.Upsert(ctx, dup), store.ErrReviewStateConflict)

	stale := first.Clone()
	require.NoError(t, s.ReviewStates.Upsert(ctx, first))
	assert.ErrorIs(t, s.ReviewStates.Upsert(ctx, stale), store.ErrReviewStateConflict)

	assert.ErrorIs(t, s.ReviewStates.Upsert(ctx, domain.NewReviewState(userID, 999, time.Now())),
		store.ErrItemNotFound)
}

func TestReviewStateMaxBin(t *testing.T) {
	db, userID, itemID := seed(t)
	ctx := context.Background()
	s := db.Stores()

	top, err := s.ReviewStates.MaxBin(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, -1, top, "no states yet")

	st := domain.NewReviewState(userID, itemID, time.Now())
	st.Bin = 3
	require.NoError(t, s.ReviewStates.Upsert(ctx, st))

	errRollback := errors.New("rollback")
	err = db.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
		lowered := st.Clone()
		lowered.Bin = 1
		require.NoError(t, s.ReviewStates.Upsert(ctx, lowered))

		top, err := s.ReviewStates.MaxBin(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 1, top, "staged writes shadow committed ones")
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	top, err = s.ReviewStates.MaxBin(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, top)

	top, err = s.ReviewStates.MaxBin(ctx, userID+1)
	require.NoError(t, err)
	assert.Equal(t, -1, top, "other users are not counted")
}

func TestReviewStateCommit_DetectsConcurrentWriter(t *testing.T) {
	db, userID, itemID := seed(t)
	ctx := context.Background()

	// without the user lock two units of work can stage the same state;
	// the second commit must fail
	err := db.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
		st := domain.NewReviewState(userID, itemID, time.Now())
		require.NoError(t, s.ReviewStates.Upsert(ctx, st))

		inner := db.Stores().ReviewStates.Upsert(ctx, domain.NewReviewState(userID, itemID, time.Now()))
		require.NoError(t, inner)
		return nil
	})
	assert.ErrorIs(t, err, store.ErrReviewStateConflict)
}

func TestExerciseStore(t *testing.T) {
	db, userID, itemID := seed(t)
	ctx := context.Background()
	s := db.Stores()

	lesson := &domain.Lesson{UserID: userID, LearningLanguage: "pt", Kind: domain.LessonKindAll, StartTime: time.Now()}
	require.NoError(t, s.Lessons.Create(ctx, lesson))
	lessonID := lesson.ID

	a, b := exercise(userID, itemID), exercise(userID, itemID)
	a.LessonID, b.LessonID = &lessonID, &lessonID
	require.NoError(t, s.Exercises.CreateMultiple(ctx, []*domain.ExerciseRecord{a, b}))

	assert.ErrorIs(t, s.Exercises.CreateMultiple(ctx, []*domain.ExerciseRecord{a}), store.ErrExerciseExists)

	c := exercise(userID, itemID)
	assert.ErrorIs(t, s.Exercises.CreateMultiple(ctx, []*domain.ExerciseRecord{c, c}), store.ErrExerciseExists)
	assert.Equal(t, 2, db.ExerciseCount())

	got, err := s.Exercises.GetByIDs(ctx, []uuid.UUID{a.ID, a.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, a.SameAs(got[0]))

	n, err := s.Exercises.CountByLesson(ctx, lessonID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLessonStore(t *testing.T) {
	db, userID, _ := seed(t)
	ctx := context.Background()
	s := db.Stores()

	assert.ErrorIs(t, s.Lessons.Create(ctx, &domain.Lesson{UserID: 42}), store.ErrUserNotFound)

	lesson := &domain.Lesson{UserID: userID, LearningLanguage: "pt", Kind: domain.LessonKindNew, StartTime: time.Now()}
	require.NoError(t, s.Lessons.Create(ctx, lesson))
	assert.NotZero(t, lesson.ID)

	l, err := s.Lessons.GetForUpdate(ctx, lesson.ID)
	require.NoError(t, err)
	l.Complete(time.Now(), time.Now())
	require.NoError(t, s.Lessons.MarkCompleted(ctx, l))
	assert.ErrorIs(t, s.Lessons.MarkCompleted(ctx, l), store.ErrLessonCompleted)

	_, err = s.Lessons.GetForUpdate(ctx, 999)
	assert.ErrorIs(t, err, store.ErrLessonNotFound)
}

func TestUserStore(t *testing.T) {
	db, userID, _ := seed(t)
	ctx := context.Background()
	s := db.Stores()

	assert.ErrorIs(t, s.Users.Create(ctx, &domain.User{ID: userID, SchedulerConfig: domain.DefaultSchedulerConfig()}),
		store.ErrUserExists)

	factor := 2.0
	cfg := domain.SchedulerConfig{MaxBins: 12, Algorithm: domain.AlgorithmFibonacci, IntervalStartHours: 4, IntervalFactor: &factor}
	require.NoError(t, s.Users.UpdateSchedulerConfig(ctx, userID, cfg))

	u, err := s.Users.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 12, u.SchedulerConfig.MaxBins)
	require.NotNil(t, u.SchedulerConfig.IntervalFactor)
	assert.Equal(t, 2.0, *u.SchedulerConfig.IntervalFactor)

	// returned values are copies
	*u.SchedulerConfig.IntervalFactor = 9
	again, err := s.Users.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, *again.SchedulerConfig.IntervalFactor)

	assert.ErrorIs(t, s.Users.UpdateSchedulerConfig(ctx, 77, cfg), store.ErrUserNotFound)
	_, err = s.Users.GetByID(ctx, 77)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}
