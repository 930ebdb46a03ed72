package storage

import (
	"context"
	"time"

	"btc-dca-agent/internal/domain"
)

// StateStore provides durable storage for the per-pair strategy state.
// Save is a compare-and-swap on StrategyState.Version: it succeeds only when the stored
// version equals st.Version (0 for a record that was never saved) and then increments
// st.Version. This gives mutual exclusion between overlapping ticks.
type StateStore interface {
	// Load retrieves the state for pair. Returns ErrNotFound if nothing was saved yet,
	// ErrCorruptState if the stored blob is undecodable; stores with a version column
	// then also return a default state carrying that version.
	Load(ctx context.Context, pair string) (*domain.StrategyState, error)

	// Save durably writes st. Returns ErrVersionConflict on a lost race,
	// ErrInvalidInput if st has no pair.
	Save(ctx context.Context, st *domain.StrategyState) error
}

// TradeJournal provides access to the append-only trade_journal.
type TradeJournal interface {
	// InsertTrades appends trades. Returns ErrDuplicateKey if any trade id exists;
	// the whole batch is rejected in that case.
	InsertTrades(ctx context.Context, trades []domain.TradeRecord) error

	// GetTradesByPair retrieves all trades for pair, ordered by timestamp ASC.
	GetTradesByPair(ctx context.Context, pair string) ([]domain.TradeRecord, error)
}

// EquityJournal provides access to equity_snapshots storage.
type EquityJournal interface {
	// InsertSnapshot appends one tick reading. Returns ErrDuplicateKey if tick id exists.
	InsertSnapshot(ctx context.Context, s *domain.EquitySnapshot) error

	// GetSnapshots retrieves snapshots for pair within [start, end] (inclusive), ordered by timestamp ASC.
	GetSnapshots(ctx context.Context, pair string, start, end time.Time) ([]*domain.EquitySnapshot, error)
}

// Journal is the analytics sink written at the end of each tick.
type Journal interface {
	TradeJournal
	EquityJournal
}
