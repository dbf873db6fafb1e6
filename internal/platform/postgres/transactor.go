package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/lexis-api/internal/store"
)

// Transactor implements store.Transactor with one database transaction per
// unit of work.
type Transactor struct {
	db        *sql.DB
	users     *PostgresUserStore
	items     *PostgresItemStore
	lessons   *PostgresLessonStore
	states    *PostgresReviewStateStore
	exercises *PostgresExerciseStore
}

var _ store.Transactor = (*Transactor)(nil)

// NewTransactor creates a Transactor over db.
func NewTransactor(db *sql.DB, logger *slog.Logger) *Transactor {
	if db == nil {
		panic("db cannot be nil")
	}
	return &Transactor{
		db:        db,
		users:     NewPostgresUserStore(db, logger),
		items:     NewPostgresItemStore(db, logger),
		lessons:   NewPostgresLessonStore(db, logger),
		states:    NewPostgresReviewStateStore(db, logger),
		exercises: NewPostgresExerciseStore(db, logger),
	}
}

// Stores returns the stores bound to the connection pool, for reads and
// single-statement writes outside a unit of work.
func (t *Transactor) Stores() store.Stores {
	return store.Stores{
		Users:        t.users,
		Items:        t.items,
		Lessons:      t.lessons,
		ReviewStates: t.states,
		Exercises:    t.exercises,
	}
}

// WithinTx implements store.Transactor.WithinTx.
func (t *Transactor) WithinTx(ctx context.Context, fn store.TxFunc) error {
	return store.RunInTransaction(ctx, t.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, store.Stores{
			Users:        t.users.WithTx(tx),
			Items:        t.items.WithTx(tx),
			Lessons:      t.lessons.WithTx(tx),
			ReviewStates: t.states.WithTx(tx),
			Exercises:    t.exercises.WithTx(tx),
		})
	})
}
