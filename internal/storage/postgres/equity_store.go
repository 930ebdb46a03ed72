package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// EquityJournal implements storage.EquityJournal using PostgreSQL.
type EquityJournal struct {
	pool *Pool
}

// NewEquityJournal creates a new EquityJournal.
func NewEquityJournal(pool *Pool) *EquityJournal {
	return &EquityJournal{pool: pool}
}

// Compile-time interface check.
var _ storage.EquityJournal = (*EquityJournal)(nil)

// InsertSnapshot stores one tick reading. Returns ErrDuplicateKey if tick_id exists.
func (s *EquityJournal) InsertSnapshot(ctx context.Context, snap *domain.EquitySnapshot) error {
	if snap == nil || snap.TickID == "" || snap.Pair == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO equity_snapshots (
			tick_id, pair, ts,
			price, free_fiat, btc_balance, equity, equity_peak,
			drawdown, max_drawdown, position_btc, position_cost,
			remaining_budget, realized_pnl, unrealized_pnl
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15
		)
	`

	_, err := s.pool.Exec(ctx, query,
		snap.TickID, snap.Pair, snap.Timestamp.UTC(),
		numeric(snap.Price), numeric(snap.FreeFiat), numeric(snap.BtcBalance),
		numeric(snap.Equity), numeric(snap.EquityPeak),
		numeric(snap.Drawdown), numeric(snap.MaxDrawdown),
		numeric(snap.PositionBtc), numeric(snap.PositionCost),
		numeric(snap.RemainingBudget), numeric(snap.RealizedPnl), numeric(snap.UnrealizedPnl),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert equity snapshot: %w", err)
	}
	return nil
}

// GetSnapshots retrieves snapshots for pair within [start, end] (inclusive).
func (s *EquityJournal) GetSnapshots(ctx context.Context, pair string, start, end time.Time) ([]*domain.EquitySnapshot, error) {
	query := `
		SELECT
			tick_id, pair, ts,
			price::text, free_fiat::text, btc_balance::text, equity::text, equity_peak::text,
			drawdown::text, max_drawdown::text, position_btc::text, position_cost::text,
			remaining_budget::text, realized_pnl::text, unrealized_pnl::text
		FROM equity_snapshots
		WHERE pair = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC, tick_id ASC
	`

	rows, err := s.pool.Query(ctx, query, pair, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("get equity snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.EquitySnapshot
	for rows.Next() {
		var (
			snap domain.EquitySnapshot
			nums [12]string
		)
		err := rows.Scan(
			&snap.TickID, &snap.Pair, &snap.Timestamp,
			&nums[0], &nums[1], &nums[2], &nums[3], &nums[4],
			&nums[5], &nums[6], &nums[7], &nums[8],
			&nums[9], &nums[10], &nums[11],
		)
		if err != nil {
			return nil, fmt.Errorf("scan equity row: %w", err)
		}
		snap.Timestamp = snap.Timestamp.UTC()

		dsts := []*decimal.Decimal{
			&snap.Price, &snap.FreeFiat, &snap.BtcBalance, &snap.Equity, &snap.EquityPeak,
			&snap.Drawdown, &snap.MaxDrawdown, &snap.PositionBtc, &snap.PositionCost,
			&snap.RemainingBudget, &snap.RealizedPnl, &snap.UnrealizedPnl,
		}
		for i, dst := range dsts {
			if *dst, err = parseNumeric(nums[i]); err != nil {
				return nil, err
			}
		}
		snaps = append(snaps, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity rows: %w", err)
	}
	return snaps, nil
}

// Journal combines the PostgreSQL trade and equity journals.
type Journal struct {
	*TradeJournal
	*EquityJournal
}

// Compile-time interface check.
var _ storage.Journal = (*Journal)(nil)

// NewJournal creates a Journal over pool.
func NewJournal(pool *Pool) *Journal {
	return &Journal{TradeJournal: NewTradeJournal(pool), EquityJournal: NewEquityJournal(pool)}
}
