package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
)

// UserStore defines the interface for the scheduler's view of users.
type UserStore interface {
	// Create saves a new user with its scheduler configuration.
	// Returns ErrUserExists if the id is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by id without locking.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetForUpdate retrieves a user and locks the row until the enclosing
	// transaction ends. All writes for a user are serialized on this lock.
	// Returns ErrUserNotFound if the user does not exist.
	GetForUpdate(ctx context.Context, id int64) (*domain.User, error)

	// UpdateSchedulerConfig replaces the user's scheduler configuration.
	// Returns ErrUserNotFound if the user does not exist.
	UpdateSchedulerConfig(ctx context.Context, id int64, cfg domain.SchedulerConfig) error
}

// ItemStore is the read side of the vocabulary catalog.
type ItemStore interface {
	// Create adds an item to the catalog. Used for seeding; the catalog is
	// otherwise owned elsewhere.
	Create(ctx context.Context, item *domain.VocabularyItem) error

	// ExistingIDs returns the subset of ids that exist in the catalog.
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
}

// LessonStore defines the interface for lesson persistence.
type LessonStore interface {
	// Create saves a new lesson and assigns its id.
	Create(ctx context.Context, lesson *domain.Lesson) error

	// GetForUpdate retrieves a lesson and locks it until the enclosing
	// transaction ends. Returns ErrLessonNotFound if it does not exist.
	GetForUpdate(ctx context.Context, id int64) (*domain.Lesson, error)

	// MarkCompleted persists the lesson's EndTime and CompletedAt.
	// Returns ErrLessonCompleted if the lesson was already completed.
	MarkCompleted(ctx context.Context, lesson *domain.Lesson) error
}

// ReviewStateStore defines the interface for per-user, per-item review states.
type ReviewStateStore interface {
	// GetForUpdate returns the existing states for the given items keyed by
	// item id, locking each row. Items without a state are absent from the map.
	GetForUpdate(ctx context.Context, userID int64, itemIDs []int64) (map[int64]*domain.ReviewState, error)

	// Upsert writes a state guarded by its Version. A new state (Version 0)
	// is inserted; an existing one is updated only if the stored version
	// still matches. On success Version is incremented in place.
	// Returns ErrReviewStateConflict when the guard fails.
	Upsert(ctx context.Context, state *domain.ReviewState) error

	// ListByUserLanguage returns every state of the user whose item belongs
	// to the given language.
	ListByUserLanguage(ctx context.Context, userID int64, languageCode string) ([]*domain.ReviewState, error)

	// MaxBin returns the highest bin among the user's states, or -1 when
	// the user has none.
	MaxBin(ctx context.Context, userID int64) (int, error)
}

// ExerciseStore defines the interface for the append-only exercise log.
type ExerciseStore interface {
	// CreateMultiple inserts all records as one statement.
	// Returns ErrExerciseExists if any id is already stored.
	CreateMultiple(ctx context.Context, records []*domain.ExerciseRecord) error

	// GetByIDs returns the stored records among ids.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.ExerciseRecord, error)

	// CountByLesson returns the number of records attached to a lesson.
	CountByLesson(ctx context.Context, lessonID int64) (int, error)
}

// Stores bundles the stores a unit of work may touch. Inside
// Transactor.WithinTx every member is bound to the same transaction.
type Stores struct {
	Users        UserStore
	Items        ItemStore
	Lessons      LessonStore
	ReviewStates ReviewStateStore
	Exercises    ExerciseStore
}

// TxFunc is a unit of work run by a Transactor.
type TxFunc func(ctx context.Context, s Stores) error

// Transactor runs units of work atomically. If fn returns an error or the
// context ends before commit, none of its writes become visible.
type Transactor interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}
