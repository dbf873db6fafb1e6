package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

// PostgresItemStore implements store.ItemStore over the vocabulary_items table.
type PostgresItemStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresItemStore creates a new PostgreSQL implementation of the ItemStore interface.
func NewPostgresItemStore(db store.DBTX, logger *slog.Logger) *PostgresItemStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresItemStore{
		db:     db,
		logger: logger.With(slog.String("component", "item_store")),
	}
}

var _ store.ItemStore = (*PostgresItemStore)(nil)

// WithTx returns a store bound to tx.
func (s *PostgresItemStore) WithTx(tx *sql.Tx) *PostgresItemStore {
	return &PostgresItemStore{db: tx, logger: s.logger}
}

// Create implements store.ItemStore.Create. A zero ID is assigned by the database.
func (s *PostgresItemStore) Create(ctx context.Context, item *domain.VocabularyItem) error {
	if item.ID == 0 {
		return MapError(s.db.QueryRowContext(ctx,
			`INSERT INTO vocabulary_items (language_code, lemma) VALUES ($1, $2) RETURNING id`,
			item.LanguageCode, item.Lemma,
		).Scan(&item.ID))
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vocabulary_items (id, language_code, lemma) VALUES ($1, $2, $3)`,
		item.ID, item.LanguageCode, item.Lemma,
	)
	return MapError(err)
}

// ExistingIDs implements store.ItemStore.ExistingIDs.
func (s *PostgresItemStore) ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	found := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM vocabulary_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, MapError(err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return found, nil
}
