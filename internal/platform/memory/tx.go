package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

// tx stages writes on top of the committed data.
type tx struct {
	db  *DB
	ctx context.Context

	users     map[int64]*domain.User
	newUsers  map[int64]bool
	items     map[int64]*domain.VocabularyItem
	lessons   map[int64]*domain.Lesson
	completed map[int64]bool
	states    map[stateKey]*domain.ReviewState
	// baseVersions records the committed version each staged state was read at.
	baseVersions map[stateKey]int64
	exercises    []*domain.ExerciseRecord
	exerciseIDs  map[uuid.UUID]bool

	held []chan struct{}
	// heldUsers marks users whose lock this tx owns.
	heldUsers map[int64]bool
	done      bool
}

func (db *DB) begin(ctx context.Context) *tx {
	return &tx{
		db:           db,
		ctx:          ctx,
		users:        make(map[int64]*domain.User),
		newUsers:     make(map[int64]bool),
		items:        make(map[int64]*domain.VocabularyItem),
		lessons:      make(map[int64]*domain.Lesson),
		completed:    make(map[int64]bool),
		states:       make(map[stateKey]*domain.ReviewState),
		baseVersions: make(map[stateKey]int64),
		exerciseIDs:  make(map[uuid.UUID]bool),
		heldUsers:    make(map[int64]bool),
	}
}

// lockUser blocks until the user's lock is free or the context ends.
func (t *tx) lockUser(id int64) error {
	if t.heldUsers[id] {
		return nil
	}
	ch := t.db.userLock(id)
	select {
	case ch <- struct{}{}:
		t.held = append(t.held, ch)
		t.heldUsers[id] = true
		return nil
	case <-t.ctx.Done():
		return fmt.Errorf("%w: waiting for user lock: %w", store.ErrTransactionFailed, t.ctx.Err())
	}
}

func (t *tx) release() {
	for _, ch := range t.held {
		<-ch
	}
	t.held = nil
	t.heldUsers = map[int64]bool{}
	t.done = true
}

func (t *tx) rollback() {
	if t.done {
		return
	}
	t.release()
}

// commit validates the staged writes against the committed data and applies
// them all, or none.
func (t *tx) commit() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", store.ErrTransactionFailed)
	}
	defer t.release()

	db := t.db
	db.mu.Lock()
	defer db.mu.Unlock()

	for id := range t.newUsers {
		if _, ok := db.users[id]; ok {
			return store.ErrUserExists
		}
	}
	for _, r := range t.exercises {
		if _, ok := db.exercises[r.ID]; ok {
			return store.ErrExerciseExists
		}
	}
	for k := range t.states {
		base := t.baseVersions[k]
		var current int64
		if cur, ok := db.states[k]; ok {
			current = cur.Version
		}
		if current != base {
			return store.ErrReviewStateConflict
		}
	}
	for id := range t.completed {
		if cur, ok := db.lessons[id]; ok && cur.IsCompleted() {
			return store.ErrLessonCompleted
		}
	}

	for id, u := range t.users {
		db.users[id] = u
	}
	for id, it := range t.items {
		db.items[id] = it
	}
	for id, l := range t.lessons {
		db.lessons[id] = l
	}
	for k, st := range t.states {
		db.states[k] = st
	}
	for _, r := range t.exercises {
		db.exercises[r.ID] = r
	}
	return nil
}

func (t *tx) user(id int64) (*domain.User, bool) {
	if u, ok := t.users[id]; ok {
		return u, true
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	u, ok := t.db.users[id]
	return u, ok
}

func (t *tx) item(id int64) bool {
	if _, ok := t.items[id]; ok {
		return true
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	_, ok := t.db.items[id]
	return ok
}

func (t *tx) lesson(id int64) (*domain.Lesson, bool) {
	if l, ok := t.lessons[id]; ok {
		return l, true
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	l, ok := t.db.lessons[id]
	return l, ok
}

func (t *tx) state(k stateKey) (*domain.ReviewState, bool) {
	if st, ok := t.states[k]; ok {
		return st, true
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	st, ok := t.db.states[k]
	return st, ok
}

func (t *tx) exerciseExists(id uuid.UUID) bool {
	if t.exerciseIDs[id] {
		return true
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	_, ok := t.db.exercises[id]
	return ok
}
