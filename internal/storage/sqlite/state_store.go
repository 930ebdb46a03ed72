package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// StateStore implements storage.StateStore using SQLite.
type StateStore struct {
	db  *DB
	log zerolog.Logger
	now func() time.Time
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

// NewStateStore creates a new StateStore.
func NewStateStore(db *DB, log zerolog.Logger) *StateStore {
	return &StateStore{db: db, log: log.With().Str("component", "sqlite_store").Logger(), now: time.Now}
}

// Load returns the state for pair. Returns ErrNotFound if no row exists.
func (s *StateStore) Load(ctx context.Context, pair string) (*domain.StrategyState, error) {
	var (
		version int64
		blob    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, state FROM strategy_state WHERE pair = ?`, pair,
	).Scan(&version, &blob)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load state: %w", err)
	}

	st, warnings, err := storage.DecodeState([]byte(blob), pair)
	if err != nil {
		// Hand back defaults at the row's version so the caller can overwrite the blob.
		fresh := domain.NewStrategyState(pair)
		fresh.Version = version
		return fresh, err
	}
	for _, w := range warnings {
		s.log.Warn().Str("pair", pair).Msg(w)
	}
	// The row's version column is authoritative.
	st.Version = version
	return st, nil
}

// Save writes st when the stored version equals st.Version.
func (s *StateStore) Save(ctx context.Context, st *domain.StrategyState) error {
	if st == nil || st.Pair == "" {
		return storage.ErrInvalidInput
	}

	next := st.Clone()
	next.Version++
	next.UpdatedAt = s.now().UTC()

	blob, err := storage.EncodeState(next)
	if err != nil {
		return err
	}
	updatedAt := next.UpdatedAt.Format(time.RFC3339Nano)

	var query string
	var args []any
	if st.Version == 0 {
		query = `INSERT INTO strategy_state (pair, version, state, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(pair) DO NOTHING`
		args = []any{next.Pair, next.Version, string(blob), updatedAt}
	} else {
		query = `UPDATE strategy_state SET version = ?, state = ?, updated_at = ?
			WHERE pair = ? AND version = ?`
		args = []any{next.Version, string(blob), updatedAt, next.Pair, st.Version}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save state rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrVersionConflict
	}

	st.Version = next.Version
	st.UpdatedAt = next.UpdatedAt
	return nil
}
