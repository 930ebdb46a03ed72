package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// StateStore implements storage.StateStore using PostgreSQL.
type StateStore struct {
	pool *Pool
	log  zerolog.Logger
	now  func() time.Time
}

// Compile-time interface check.
var _ storage.StateStore = (*StateStore)(nil)

// NewStateStore creates a new StateStore.
func NewStateStore(pool *Pool, log zerolog.Logger) *StateStore {
	return &StateStore{
		pool: pool,
		log:  log.With().Str("component", "postgres_store").Logger(),
		now:  time.Now,
	}
}

// Load retrieves the state for pair. Returns ErrNotFound if not exists.
func (s *StateStore) Load(ctx context.Context, pair string) (*domain.StrategyState, error) {
	var (
		version int64
		blob    []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT version, state FROM strategy_state WHERE pair = $1`, pair,
	).Scan(&version, &blob)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load strategy state: %w", err)
	}

	st, warnings, err := storage.DecodeState(blob, pair)
	if err != nil {
		// Hand back defaults at the row's version so the caller can overwrite the blob.
		fresh := domain.NewStrategyState(pair)
		fresh.Version = version
		return fresh, err
	}
	for _, w := range warnings {
		s.log.Warn().Str("pair", pair).Msg(w)
	}
	st.Version = version
	return st, nil
}

// Save writes st if the stored version still equals st.Version.
// Version 0 inserts; anything else is a conditional update.
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

	var query string
	var args []any
	if st.Version == 0 {
		query = `
			INSERT INTO strategy_state (pair, version, state, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (pair) DO NOTHING
		`
		args = []any{next.Pair, next.Version, blob, next.UpdatedAt}
	} else {
		query = `
			UPDATE strategy_state
			SET version = $2, state = $3, updated_at = $4
			WHERE pair = $1 AND version = $5
		`
		args = []any{next.Pair, next.Version, blob, next.UpdatedAt, st.Version}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save strategy state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrVersionConflict
	}

	st.Version = next.Version
	st.UpdatedAt = next.UpdatedAt
	return nil
}
