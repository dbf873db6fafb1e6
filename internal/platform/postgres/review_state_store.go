package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

const reviewStateColumns = `user_id, item_id, bin, last_review_time, next_review_at, version, created_at, updated_at`

// PostgresReviewStateStore implements store.ReviewStateStore.
type PostgresReviewStateStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresReviewStateStore creates a new PostgreSQL implementation of the ReviewStateStore interface.
func NewPostgresReviewStateStore(db store.DBTX, logger *slog.Logger) *PostgresReviewStateStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReviewStateStore{
		db:     db,
		logger: logger.With(slog.String("component", "review_state_store")),
	}
}

var _ store.ReviewStateStore = (*PostgresReviewStateStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresReviewStateStore) WithTx(tx *sql.Tx) *PostgresReviewStateStore {
	return &PostgresReviewStateStore{db: tx, logger: s.logger}
}

// GetForUpdate implements store.ReviewStateStore.GetForUpdate.
// Rows are locked in item order so concurrent batches cannot deadlock on each other.
func (s *PostgresReviewStateStore) GetForUpdate(
	ctx context.Context,
	userID int64,
	itemIDs []int64,
) (map[int64]*domain.ReviewState, error) {
	out := make(map[int64]*domain.ReviewState, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}

	states, err := s.query(ctx, `
		SELECT `+reviewStateColumns+`
		FROM review_states
		WHERE user_id = $1 AND item_id = ANY($2)
		ORDER BY item_id
		FOR UPDATE`, userID, itemIDs)
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		out[st.ItemID] = st
	}
	return out, nil
}

// ListByUserLanguage implements store.ReviewStateStore.ListByUserLanguage.
func (s *PostgresReviewStateStore) ListByUserLanguage(
	ctx context.Context,
	userID int64,
	languageCode string,
) ([]*domain.ReviewState, error) {
	return s.query(ctx, `
		SELECT rs.user_id, rs.item_id, rs.bin, rs.last_review_time, rs.next_review_at,
		       rs.version, rs.created_at, rs.updated_at
		FROM review_states rs
		JOIN vocabulary_items vi ON vi.id = rs.item_id
		WHERE rs.user_id = $1 AND vi.language_code = $2
		ORDER BY rs.item_id`, userID, languageCode)
}

// MaxBin implements store.ReviewStateStore.MaxBin.
func (s *PostgresReviewStateStore) MaxBin(ctx context.Context, userID int64) (int, error) {
	var top int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(bin), -1)
		FROM review_states
		WHERE user_id = $1`, userID).Scan(&top)
	if err != nil {
		return 0, MapError(err)
	}
	return top, nil
}

// Upsert implements store.ReviewStateStore.Upsert.
func (s *PostgresReviewStateStore) Upsert(ctx context.Context, st *domain.ReviewState) error {
	var (
		result sql.Result
		err    error
	)
	if st.IsNew() {
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO review_states (`+reviewStateColumns+`)
			VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
			ON CONFLICT (user_id, item_id) DO NOTHING`,
			st.UserID, st.ItemID, st.Bin, nullTime(st.LastReviewTime), nullTime(st.NextReviewAt),
			st.CreatedAt, st.UpdatedAt,
		)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE review_states
			SET bin = $3, last_review_time = $4, next_review_at = $5,
			    version = version + 1, updated_at = $6
			WHERE user_id = $1 AND item_id = $2 AND version = $7`,
			st.UserID, st.ItemID, st.Bin, nullTime(st.LastReviewTime), nullTime(st.NextReviewAt),
			st.UpdatedAt, st.Version,
		)
	}
	if err != nil {
		if IsForeignKeyViolation(err) {
			return store.ErrItemNotFound
		}
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrReviewStateConflict); err != nil {
		s.logger.Warn("review state version guard failed",
			slog.Int64("user_id", st.UserID),
			slog.Int64("item_id", st.ItemID),
			slog.Int64("version", st.Version))
		return err
	}
	st.Version++
	return nil
}

func (s *PostgresReviewStateStore) query(ctx context.Context, query string, args ...any) ([]*domain.ReviewState, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var states []*domain.ReviewState
	for rows.Next() {
		var (
			st         domain.ReviewState
			lastReview sql.NullTime
			nextReview sql.NullTime
		)
		if err := rows.Scan(&st.UserID, &st.ItemID, &st.Bin, &lastReview, &nextReview,
			&st.Version, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, MapError(err)
		}
		st.LastReviewTime = timePtr(lastReview)
		st.NextReviewAt = timePtr(nextReview)
		states = append(states, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return states, nil
}
