package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

const userColumns = `id, max_bins, algorithm, interval_start_hours, interval_factor, created_at, updated_at`

// PostgresUserStore implements the store.UserStore interface
// using a PostgreSQL database as the storage backend.
type PostgresUserStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresUserStore creates a new PostgreSQL implementation of the UserStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresUserStore(db store.DBTX, logger *slog.Logger) *PostgresUserStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUserStore{
		db:     db,
		logger: logger.With(slog.String("component", "user_store")),
	}
}

// Ensure PostgresUserStore implements store.UserStore interface
var _ store.UserStore = (*PostgresUserStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresUserStore) WithTx(tx *sql.Tx) *PostgresUserStore {
	return &PostgresUserStore{db: tx, logger: s.logger}
}

// Create implements store.UserStore.Create.
func (s *PostgresUserStore) Create(ctx context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt

	cfg := user.SchedulerConfig
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, cfg.MaxBins, string(cfg.Algorithm), cfg.IntervalStartHours,
		nullFloat(cfg.IntervalFactor), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to insert user",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()))
		return MapUniqueViolation(err, store.ErrUserExists)
	}
	return nil
}

// GetByID implements store.UserStore.GetByID.
func (s *PostgresUserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetForUpdate implements store.UserStore.GetForUpdate.
func (s *PostgresUserStore) GetForUpdate(ctx context.Context, id int64) (*domain.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (s *PostgresUserStore) get(ctx context.Context, query string, id int64) (*domain.User, error) {
	var (
		u         domain.User
		algorithm string
		factor    sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.SchedulerConfig.MaxBins,
		&algorithm,
		&u.SchedulerConfig.IntervalStartHours,
		&factor,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, MapError(err)
	}
	u.SchedulerConfig.Algorithm = domain.Algorithm(algorithm)
	u.SchedulerConfig.IntervalFactor = floatPtr(factor)
	return &u, nil
}

// UpdateSchedulerConfig implements store.UserStore.UpdateSchedulerConfig.
func (s *PostgresUserStore) UpdateSchedulerConfig(ctx context.Context, id int64, cfg domain.SchedulerConfig) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET max_bins = $2, algorithm = $3, interval_start_hours = $4, interval_factor = $5, updated_at = $6
		WHERE id = $1`,
		id, cfg.MaxBins, string(cfg.Algorithm), cfg.IntervalStartHours,
		nullFloat(cfg.IntervalFactor), time.Now().UTC(),
	)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrUserNotFound)
}
