package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.SchedulerConfig.IntervalFactor != nil {
		f := *u.SchedulerConfig.IntervalFactor
		c.SchedulerConfig.IntervalFactor = &f
	}
	return &c
}

func cloneLesson(l *domain.Lesson) *domain.Lesson {
	c := *l
	if l.EndTime != nil {
		e := *l.EndTime
		c.EndTime = &e
	}
	if l.CompletedAt != nil {
		ca := *l.CompletedAt
		c.CompletedAt = &ca
	}
	return &c
}

func cloneExercise(r *domain.ExerciseRecord) *domain.ExerciseRecord {
	c := *r
	if r.LessonID != nil {
		id := *r.LessonID
		c.LessonID = &id
	}
	return &c
}

// UserStore implements store.UserStore.
type UserStore struct{ b binding }

var _ store.UserStore = (*UserStore)(nil)

// Create implements store.UserStore.Create.
func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	return s.b.run(ctx, func(t *tx) error {
		if _, ok := t.user(user.ID); ok {
			return store.ErrUserExists
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now().UTC()
		}
		user.UpdatedAt = user.CreatedAt
		t.users[user.ID] = cloneUser(user)
		t.newUsers[user.ID] = true
		return nil
	})
}

// GetByID implements store.UserStore.GetByID.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var out *domain.User
	err := s.b.run(ctx, func(t *tx) error {
		u, ok := t.user(id)
		if !ok {
			return store.ErrUserNotFound
		}
		out = cloneUser(u)
		return nil
	})
	return out, err
}

// GetForUpdate implements store.UserStore.GetForUpdate by taking the user's
// lock for the rest of the transaction.
func (s *UserStore) GetForUpdate(ctx context.Context, id int64) (*domain.User, error) {
	var out *domain.User
	err := s.b.run(ctx, func(t *tx) error {
		if err := t.lockUser(id); err != nil {
			return err
		}
		u, ok := t.user(id)
		if !ok {
			return store.ErrUserNotFound
		}
		out = cloneUser(u)
		return nil
	})
	return out, err
}

// UpdateSchedulerConfig implements store.UserStore.UpdateSchedulerConfig.
func (s *UserStore) UpdateSchedulerConfig(ctx context.Context, id int64, cfg domain.SchedulerConfig) error {
	return s.b.run(ctx, func(t *tx) error {
		if err := t.lockUser(id); err != nil {
			return err
		}
		u, ok := t.user(id)
		if !ok {
			return store.ErrUserNotFound
		}
		updated := cloneUser(u)
		updated.SchedulerConfig = cfg
		updated.UpdatedAt = time.Now().UTC()
		t.users[id] = cloneUser(updated)
		return nil
	})
}

// ItemStore implements store.ItemStore.
type ItemStore struct{ b binding }

var _ store.ItemStore = (*ItemStore)(nil)

// Create implements store.ItemStore.Create. A zero ID is assigned.
func (s *ItemStore) Create(ctx context.Context, item *domain.VocabularyItem) error {
	return s.b.run(ctx, func(t *tx) error {
		t.db.mu.Lock()
		if item.ID == 0 {
			t.db.nextItemID++
			item.ID = t.db.nextItemID
		} else if item.ID > t.db.nextItemID {
			t.db.nextItemID = item.ID
		}
		t.db.mu.Unlock()

		if t.item(item.ID) {
			return store.ErrDuplicate
		}
		c := *item
		t.items[item.ID] = &c
		return nil
	})
}

// ExistingIDs implements store.ItemStore.ExistingIDs.
func (s *ItemStore) ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	err := s.b.run(ctx, func(t *tx) error {
		for _, id := range ids {
			if t.item(id) {
				found[id] = true
			}
		}
		return nil
	})
	return found, err
}

// LessonStore implements store.LessonStore.
type LessonStore struct{ b binding }

var _ store.LessonStore = (*LessonStore)(nil)

// Create implements store.LessonStore.Create.
func (s *LessonStore) Create(ctx context.Context, lesson *domain.Lesson) error {
	return s.b.run(ctx, func(t *tx) error {
		if _, ok := t.user(lesson.UserID); !ok {
			return store.ErrUserNotFound
		}
		t.db.mu.Lock()
		t.db.nextLessonID++
		lesson.ID = t.db.nextLessonID
		t.db.mu.Unlock()

		t.lessons[lesson.ID] = cloneLesson(lesson)
		return nil
	})
}

// GetForUpdate implements store.LessonStore.GetForUpdate. Writers of a lesson
// hold its owner's lock, which serializes them.
func (s *LessonStore) GetForUpdate(ctx context.Context, id int64) (*domain.Lesson, error) {
	var out *domain.Lesson
	err := s.b.run(ctx, func(t *tx) error {
		l, ok := t.lesson(id)
		if !ok {
			return store.ErrLessonNotFound
		}
		out = cloneLesson(l)
		return nil
	})
	return out, err
}

// MarkCompleted implements store.LessonStore.MarkCompleted.
func (s *LessonStore) MarkCompleted(ctx context.Context, lesson *domain.Lesson) error {
	return s.b.run(ctx, func(t *tx) error {
		cur, ok := t.lesson(lesson.ID)
		if !ok {
			return store.ErrLessonNotFound
		}
		if cur.IsCompleted() {
			return store.ErrLessonCompleted
		}
		updated := cloneLesson(cur)
		updated.EndTime = lesson.EndTime
		updated.CompletedAt = lesson.CompletedAt
		t.lessons[lesson.ID] = cloneLesson(updated)
		t.completed[lesson.ID] = true
		return nil
	})
}

// ReviewStateStore implements store.ReviewStateStore.
type ReviewStateStore struct{ b binding }

var _ store.ReviewStateStore = (*ReviewStateStore)(nil)

// GetForUpdate implements store.ReviewStateStore.GetForUpdate. Review states
// are only written under their user's lock, so reading them is enough.
func (s *ReviewStateStore) GetForUpdate(
	ctx context.Context,
	userID int64,
	itemIDs []int64,
) (map[int64]*domain.ReviewState, error) {
	out := make(map[int64]*domain.ReviewState, len(itemIDs))
	err := s.b.run(ctx, func(t *tx) error {
		for _, id := range itemIDs {
			if st, ok := t.state(stateKey{userID, id}); ok {
				out[id] = st.Clone()
			}
		}
		return nil
	})
	return out, err
}

// Upsert implements store.ReviewStateStore.Upsert.
func (s *ReviewStateStore) Upsert(ctx context.Context, st *domain.ReviewState) error {
	return s.b.run(ctx, func(t *tx) error {
		k := stateKey{st.UserID, st.ItemID}
		if !t.item(st.ItemID) {
			return store.ErrItemNotFound
		}

		var current int64
		if cur, ok := t.state(k); ok {
			current = cur.Version
		}
		if current != st.Version {
			return store.ErrReviewStateConflict
		}

		if _, staged := t.states[k]; !staged {
			t.baseVersions[k] = st.Version
		}
		st.Version++
		t.states[k] = st.Clone()
		return nil
	})
}

// ListByUserLanguage implements store.ReviewStateStore.ListByUserLanguage.
func (s *ReviewStateStore) ListByUserLanguage(
	ctx context.Context,
	userID int64,
	languageCode string,
) ([]*domain.ReviewState, error) {
	var out []*domain.ReviewState
	err := s.b.run(ctx, func(t *tx) error {
		t.db.mu.RLock()
		merged := make(map[stateKey]*domain.ReviewState)
		for k, st := range t.db.states {
			if k.userID == userID {
				merged[k] = st
			}
		}
		languages := make(map[int64]string, len(t.db.items))
		for id, it := range t.db.items {
			languages[id] = it.LanguageCode
		}
		t.db.mu.RUnlock()

		for k, st := range t.states {
			if k.userID == userID {
				merged[k] = st
			}
		}
		for id, it := range t.items {
			languages[id] = it.LanguageCode
		}

		for k, st := range merged {
			if languages[k.itemID] == languageCode {
				out = append(out, st.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, err
}

// MaxBin implements store.ReviewStateStore.MaxBin.
func (s *ReviewStateStore) MaxBin(ctx context.Context, userID int64) (int, error) {
	top := -1
	err := s.b.run(ctx, func(t *tx) error {
		t.db.mu.RLock()
		for k, st := range t.db.states {
			if _, staged := t.states[k]; staged || k.userID != userID {
				continue
			}
			top = max(top, st.Bin)
		}
		t.db.mu.RUnlock()

		for k, st := range t.states {
			if k.userID == userID {
				top = max(top, st.Bin)
			}
		}
		return nil
	})
	return top, err
}

// ExerciseStore implements store.ExerciseStore.
type ExerciseStore struct{ b binding }

var _ store.ExerciseStore = (*ExerciseStore)(nil)

// CreateMultiple implements store.ExerciseStore.CreateMultiple.
func (s *ExerciseStore) CreateMultiple(ctx context.Context, records []*domain.ExerciseRecord) error {
	return s.b.run(ctx, func(t *tx) error {
		seen := make(map[uuid.UUID]bool, len(records))
		for _, r := range records {
			if seen[r.ID] || t.exerciseExists(r.ID) {
				return store.ErrExerciseExists
			}
			seen[r.ID] = true
		}

		now := time.Now().UTC()
		for _, r := range records {
			if r.CreatedAt.IsZero() {
				r.CreatedAt = now
			}
			t.exercises = append(t.exercises, cloneExercise(r))
			t.exerciseIDs[r.ID] = true
		}
		return nil
	})
}

// GetByIDs implements store.ExerciseStore.GetByIDs.
func (s *ExerciseStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.ExerciseRecord, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var out []*domain.ExerciseRecord
	err := s.b.run(ctx, func(t *tx) error {
		for _, r := range t.exercises {
			if want[r.ID] {
				out = append(out, cloneExercise(r))
			}
		}
		t.db.mu.RLock()
		defer t.db.mu.RUnlock()
		for id := range want {
			if r, ok := t.db.exercises[id]; ok {
				out = append(out, cloneExercise(r))
			}
		}
		return nil
	})
	return out, err
}

// CountByLesson implements store.ExerciseStore.CountByLesson.
func (s *ExerciseStore) CountByLesson(ctx context.Context, lessonID int64) (int, error) {
	var n int
	err := s.b.run(ctx, func(t *tx) error {
		match := func(r *domain.ExerciseRecord) bool {
			return r.LessonID != nil && *r.LessonID == lessonID
		}
		for _, r := range t.exercises {
			if match(r) {
				n++
			}
		}
		t.db.mu.RLock()
		defer t.db.mu.RUnlock()
		for _, r := range t.db.exercises {
			if match(r) {
				n++
			}
		}
		return nil
	})
	return n, err
}
