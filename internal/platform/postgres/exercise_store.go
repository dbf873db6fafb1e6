package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

const exerciseColumns = `id, user_id, item_id, lesson_id, exercise_type, result, start_time, end_time, created_at`

// PostgresExerciseStore implements store.ExerciseStore over the append-only
// exercise_records table.
type PostgresExerciseStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresExerciseStore creates a new PostgreSQL implementation of the ExerciseStore interface.
func NewPostgresExerciseStore(db store.DBTX, logger *slog.Logger) *PostgresExerciseStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresExerciseStore{
		db:     db,
		logger: logger.With(slog.String("component", "exercise_store")),
	}
}

var _ store.ExerciseStore = (*PostgresExerciseStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresExerciseStore) WithTx(tx *sql.Tx) *PostgresExerciseStore {
	return &PostgresExerciseStore{db: tx, logger: s.logger}
}

// CreateMultiple implements store.ExerciseStore.CreateMultiple.
func (s *PostgresExerciseStore) CreateMultiple(ctx context.Context, records []*domain.ExerciseRecord) error {
	if len(records) == 0 {
		return nil
	}

	const perRow = 9
	var sb strings.Builder
	args := make([]any, 0, len(records)*perRow)
	sb.WriteString(`INSERT INTO exercise_records (` + exerciseColumns + `) VALUES `)

	now := time.Now().UTC()
	for i, r := range records {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * perRow
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		args = append(args, r.ID, r.UserID, r.ItemID, nullInt64(r.LessonID), r.ExerciseType,
			string(r.Result), r.StartTime, r.EndTime, r.CreatedAt)
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		s.logger.Error("failed to insert exercise records",
			slog.Int("count", len(records)),
			slog.String("error", err.Error()))
		return MapUniqueViolation(err, store.ErrExerciseExists)
	}
	return nil
}

// GetByIDs implements store.ExerciseStore.GetByIDs.
func (s *PostgresExerciseStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.ExerciseRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+exerciseColumns+` FROM exercise_records WHERE id = ANY($1::uuid[]) ORDER BY created_at, id`,
		strIDs)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.ExerciseRecord
	for rows.Next() {
		var (
			r        domain.ExerciseRecord
			lessonID sql.NullInt64
			result   string
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.ItemID, &lessonID, &r.ExerciseType, &result,
			&r.StartTime, &r.EndTime, &r.CreatedAt); err != nil {
			return nil, MapError(err)
		}
		r.LessonID = int64Ptr(lessonID)
		r.Result = domain.ExerciseResult(result)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

// CountByLesson implements store.ExerciseStore.CountByLesson.
func (s *PostgresExerciseStore) CountByLesson(ctx context.Context, lessonID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM exercise_records WHERE lesson_id = $1`, lessonID).Scan(&n)
	if err != nil {
		return 0, MapError(err)
	}
	return n, nil
}
