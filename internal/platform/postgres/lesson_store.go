package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

// PostgresLessonStore implements store.LessonStore.
type PostgresLessonStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLessonStore creates a new PostgreSQL implementation of the LessonStore interface.
func NewPostgresLessonStore(db store.DBTX, logger *slog.Logger) *PostgresLessonStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLessonStore{
		db:     db,
		logger: logger.With(slog.String("component", "lesson_store")),
	}
}

var _ store.LessonStore = (*PostgresLessonStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresLessonStore) WithTx(tx *sql.Tx) *PostgresLessonStore {
	return &PostgresLessonStore{db: tx, logger: s.logger}
}

// Create implements store.LessonStore.Create.
func (s *PostgresLessonStore) Create(ctx context.Context, lesson *domain.Lesson) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO lessons (user_id, learning_language, kind, start_time, end_time, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		lesson.UserID, lesson.LearningLanguage, string(lesson.Kind), lesson.StartTime,
		nullTime(lesson.EndTime), nullTime(lesson.CompletedAt),
	).Scan(&lesson.ID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return store.ErrUserNotFound
		}
		return MapError(err)
	}
	return nil
}

// GetForUpdate implements store.LessonStore.GetForUpdate.
func (s *PostgresLessonStore) GetForUpdate(ctx context.Context, id int64) (*domain.Lesson, error) {
	var (
		l         domain.Lesson
		kind      string
		end       sql.NullTime
		completed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, learning_language, kind, start_time, end_time, completed_at
		FROM lessons WHERE id = $1 FOR UPDATE`, id,
	).Scan(&l.ID, &l.UserID, &l.LearningLanguage, &kind, &l.StartTime, &end, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrLessonNotFound
		}
		return nil, MapError(err)
	}
	l.Kind = domain.LessonKind(kind)
	l.StartTime = l.StartTime.UTC()
	l.EndTime = timePtr(end)
	l.CompletedAt = timePtr(completed)
	return &l, nil
}

// MarkCompleted implements store.LessonStore.MarkCompleted.
func (s *PostgresLessonStore) MarkCompleted(ctx context.Context, lesson *domain.Lesson) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE lessons SET end_time = $2, completed_at = $3
		WHERE id = $1 AND completed_at IS NULL`,
		lesson.ID, nullTime(lesson.EndTime), nullTime(lesson.CompletedAt),
	)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrLessonCompleted)
}
