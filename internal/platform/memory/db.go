package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
)

type stateKey struct {
	userID int64
	itemID int64
}

// DB holds committed data. All access goes through a tx.
type DB struct {
	mu        sync.RWMutex
	users     map[int64]*domain.User
	items     map[int64]*domain.VocabularyItem
	lessons   map[int64]*domain.Lesson
	states    map[stateKey]*domain.ReviewState
	exercises map[uuid.UUID]*domain.ExerciseRecord

	nextItemID   int64
	nextLessonID int64

	locksMu   sync.Mutex
	userLocks map[int64]chan struct{}
}

var _ store.Transactor = (*DB)(nil)

// New creates an empty database.
func New() *DB {
	return &DB{
		users:     make(map[int64]*domain.User),
		items:     make(map[int64]*domain.VocabularyItem),
		lessons:   make(map[int64]*domain.Lesson),
		states:    make(map[stateKey]*domain.ReviewState),
		exercises: make(map[uuid.UUID]*domain.ExerciseRecord),
		userLocks: make(map[int64]chan struct{}),
	}
}

// userLock returns the lock channel of a user. Holding the lock means
// having sent into the channel.
func (db *DB) userLock(id int64) chan struct{} {
	db.locksMu.Lock()
	defer db.locksMu.Unlock()

	ch, ok := db.userLocks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		db.userLocks[id] = ch
	}
	return ch
}

// Stores returns autocommit stores: each call runs in its own transaction.
func (db *DB) Stores() store.Stores {
	return stores(db, nil)
}

// WithinTx implements store.Transactor.WithinTx.
// A context that ends before commit rolls the unit of work back.
func (db *DB) WithinTx(ctx context.Context, fn store.TxFunc) (err error) {
	log := logger.FromContext(ctx)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: begin: %w", store.ErrTransactionFailed, err)
	}

	t := db.begin(ctx)
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			log.Error("rolled back transaction after panic", slog.Any("panic", p))
			// ALLOW-PANIC: propagating caught panic from transaction
			panic(p)
		}
	}()

	if err := fn(ctx, stores(db, t)); err != nil {
		t.rollback()
		log.Debug("rolled back transaction due to error", slog.String("error", err.Error()))
		return err
	}

	if err := ctx.Err(); err != nil {
		t.rollback()
		log.Warn("rolled back transaction after context ended", slog.String("error", err.Error()))
		return fmt.Errorf("%w: commit: %w", store.ErrTransactionFailed, err)
	}

	if err := t.commit(); err != nil {
		log.Error("failed to commit transaction", slog.String("error", err.Error()))
		return err
	}
	log.Debug("transaction committed successfully")
	return nil
}

// ExerciseCount returns the number of committed exercise records.
func (db *DB) ExerciseCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.exercises)
}

// ReviewStateCount returns the number of committed review states.
func (db *DB) ReviewStateCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.states)
}

func stores(db *DB, t *tx) store.Stores {
	b := binding{db: db, tx: t}
	return store.Stores{
		Users:        &UserStore{b},
		Items:        &ItemStore{b},
		Lessons:      &LessonStore{b},
		ReviewStates: &ReviewStateStore{b},
		Exercises:    &ExerciseStore{b},
	}
}

// binding ties a store to an explicit transaction, or to none for autocommit.
type binding struct {
	db *DB
	tx *tx
}

func (b binding) run(ctx context.Context, fn func(t *tx) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	t := b.db.begin(ctx)
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	return t.commit()
}
