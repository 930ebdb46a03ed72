package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// Journal implements storage.Journal using SQLite.
type Journal struct {
	db *DB
}

// Compile-time interface check.
var _ storage.Journal = (*Journal)(nil)

// NewJournal creates a new Journal.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db}
}

// InsertTrades adds trades atomically. Fails the whole batch on a duplicate trade_id.
func (j *Journal) InsertTrades(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range trades {
		if t.ID == "" {
			return storage.ErrInvalidInput
		}
		var profit sql.NullString
		if t.RealizedProfit.Valid {
			profit = sql.NullString{String: t.RealizedProfit.Decimal.String(), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trade_journal (
				trade_id, pair, ts, side, kind, amount, price, cost,
				realized_profit, partial, order_id, dry_run
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Pair, t.Timestamp.UnixMilli(), string(t.Side), t.Kind,
			t.Amount.String(), t.Price.String(), t.Cost.String(),
			profit, t.Partial, t.OrderID, t.DryRun,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetTradesByPair returns all trades for pair ordered by time.
func (j *Journal) GetTradesByPair(ctx context.Context, pair string) ([]domain.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_id, pair, ts, side, kind, amount, price, cost,
			realized_profit, partial, order_id, dry_run
		FROM trade_journal
		WHERE pair = ?
		ORDER BY ts ASC, trade_id ASC`, pair)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t                   domain.TradeRecord
			ts                  int64
			side                string
			amount, price, cost string
			profit              sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Pair, &ts, &side, &t.Kind, &amount, &price, &cost,
			&profit, &t.Partial, &t.OrderID, &t.DryRun); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		t.Timestamp = fromMillis(ts)
		t.Side = domain.Side(side)
		if t.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if t.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if t.Cost, err = parseDecimal(cost); err != nil {
			return nil, err
		}
		if profit.Valid {
			p, err := parseDecimal(profit.String)
			if err != nil {
				return nil, err
			}
			t.RealizedProfit = decimal.NewNullDecimal(p)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}

// InsertSnapshot stores one tick's equity snapshot.
func (j *Journal) InsertSnapshot(ctx context.Context, s *domain.EquitySnapshot) error {
	if s == nil || s.TickID == "" || s.Pair == "" {
		return storage.ErrInvalidInput
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO equity_snapshots (
			tick_id, pair, ts, price, free_fiat, btc_balance, equity, equity_peak,
			drawdown, max_drawdown, position_btc, position_cost, remaining_budget,
			realized_pnl, unrealized_pnl
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TickID, s.Pair, s.Timestamp.UnixMilli(),
		s.Price.String(), s.FreeFiat.String(), s.BtcBalance.String(),
		s.Equity.String(), s.EquityPeak.String(), s.Drawdown.String(), s.MaxDrawdown.String(),
		s.PositionBtc.String(), s.PositionCost.String(), s.RemainingBudget.String(),
		s.RealizedPnl.String(), s.UnrealizedPnl.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert equity snapshot: %w", err)
	}
	return nil
}

// GetSnapshots returns snapshots for pair within [start, end], oldest first.
func (j *Journal) GetSnapshots(ctx context.Context, pair string, start, end time.Time) ([]*domain.EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT tick_id, pair, ts, price, free_fiat, btc_balance, equity, equity_peak,
			drawdown, max_drawdown, position_btc, position_cost, remaining_budget,
			realized_pnl, unrealized_pnl
		FROM equity_snapshots
		WHERE pair = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, tick_id ASC`, pair, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query equity snapshots: %w", err)
	}
	defer rows.Close()

	var out []*domain.EquitySnapshot
	for rows.Next() {
		var (
			s    domain.EquitySnapshot
			ts   int64
			nums [12]string
		)
		if err := rows.Scan(&s.TickID, &s.Pair, &ts,
			&nums[0], &nums[1], &nums[2], &nums[3], &nums[4], &nums[5],
			&nums[6], &nums[7], &nums[8], &nums[9], &nums[10], &nums[11]); err != nil {
			return nil, fmt.Errorf("scan equity row: %w", err)
		}
		s.Timestamp = fromMillis(ts)
		dsts := []*decimal.Decimal{
			&s.Price, &s.FreeFiat, &s.BtcBalance, &s.Equity, &s.EquityPeak, &s.Drawdown,
			&s.MaxDrawdown, &s.PositionBtc, &s.PositionCost, &s.RemainingBudget,
			&s.RealizedPnl, &s.UnrealizedPnl,
		}
		for i, dst := range dsts {
			v, err := parseDecimal(nums[i])
			if err != nil {
				return nil, err
			}
			*dst = v
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity rows: %w", err)
	}
	return out, nil
}
