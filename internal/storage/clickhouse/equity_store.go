package clickhouse

import (
	"context"
	"fmt"
	"time"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// EquityJournal implements storage.EquityJournal using ClickHouse.
type EquityJournal struct {
	conn *Conn
}

// NewEquityJournal creates a new EquityJournal.
func NewEquityJournal(conn *Conn) *EquityJournal {
	return &EquityJournal{conn: conn}
}

// Compile-time interface check.
var _ storage.EquityJournal = (*EquityJournal)(nil)

// InsertSnapshot appends one tick reading. MergeTree does not enforce keys, so the
// tick id is checked first.
func (s *EquityJournal) InsertSnapshot(ctx context.Context, snap *domain.EquitySnapshot) error {
	if snap == nil || snap.TickID == "" || snap.Pair == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, snap.TickID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO equity_snapshots (
			tick_id, pair, timestamp_ms,
			price, free_fiat, btc_balance, equity, equity_peak,
			drawdown, max_drawdown, position_btc, position_cost,
			remaining_budget, realized_pnl, unrealized_pnl
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		snap.TickID, snap.Pair, uint64(snap.Timestamp.UnixMilli()),
		snap.Price, snap.FreeFiat, snap.BtcBalance, snap.Equity, snap.EquityPeak,
		snap.Drawdown, snap.MaxDrawdown, snap.PositionBtc, snap.PositionCost,
		snap.RemainingBudget, snap.RealizedPnl, snap.UnrealizedPnl,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetSnapshots retrieves snapshots for pair within [start, end] (inclusive).
func (s *EquityJournal) GetSnapshots(ctx context.Context, pair string, start, end time.Time) ([]*domain.EquitySnapshot, error) {
	query := `
		SELECT
			tick_id, pair, timestamp_ms,
			price, free_fiat, btc_balance, equity, equity_peak,
			drawdown, max_drawdown, position_btc, position_cost,
			remaining_budget, realized_pnl, unrealized_pnl
		FROM equity_snapshots
		WHERE pair = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, tick_id ASC
	`

	rows, err := s.conn.Query(ctx, query, pair, uint64(start.UnixMilli()), uint64(end.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (s *EquityJournal) exists(ctx context.Context, tickID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM equity_snapshots WHERE tick_id = ?`, tickID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanSnapshots(rows rowScanner) ([]*domain.EquitySnapshot, error) {
	var snaps []*domain.EquitySnapshot

	for rows.Next() {
		var snap domain.EquitySnapshot
		var timestampMs uint64
		err := rows.Scan(
			&snap.TickID, &snap.Pair, &timestampMs,
			&snap.Price, &snap.FreeFiat, &snap.BtcBalance, &snap.Equity, &snap.EquityPeak,
			&snap.Drawdown, &snap.MaxDrawdown, &snap.PositionBtc, &snap.PositionCost,
			&snap.RemainingBudget, &snap.RealizedPnl, &snap.UnrealizedPnl,
		)
		if err != nil {
			return nil, fmt.Errorf("scan equity row: %w", err)
		}
		snap.Timestamp = time.UnixMilli(int64(timestampMs)).UTC()
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity rows: %w", err)
	}
	return snaps, nil
}
