package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// TradeJournal implements storage.TradeJournal using PostgreSQL.
type TradeJournal struct {
	pool *Pool
}

// NewTradeJournal creates a new TradeJournal.
func NewTradeJournal(pool *Pool) *TradeJournal {
	return &TradeJournal{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeJournal = (*TradeJournal)(nil)

const insertTradeQuery = `
	INSERT INTO trade_journal (
		trade_id, pair, ts, side, kind,
		amount, price, cost, realized_profit,
		partial, order_id, dry_run
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12
	)
`

// InsertTrades adds trades atomically. Fails entire batch on any duplicate.
func (s *TradeJournal) InsertTrades(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		if t.ID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, insertTradeQuery,
			t.ID, t.Pair, t.Timestamp.UTC(), string(t.Side), t.Kind,
			numeric(t.Amount), numeric(t.Price), numeric(t.Cost), nullableNumeric(t.RealizedProfit),
			t.Partial, t.OrderID, t.DryRun,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetTradesByPair retrieves all trades for a pair, oldest first.
func (s *TradeJournal) GetTradesByPair(ctx context.Context, pair string) ([]domain.TradeRecord, error) {
	query := `
		SELECT
			trade_id, pair, ts, side, kind,
			amount::text, price::text, cost::text, realized_profit::text,
			partial, order_id, dry_run
		FROM trade_journal
		WHERE pair = $1
		ORDER BY ts ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, pair)
	if err != nil {
		return nil, fmt.Errorf("get trades by pair: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrades scans multiple rows into TradeRecords.
func scanTrades(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord

	for rows.Next() {
		var (
			t                   domain.TradeRecord
			side                string
			amount, price, cost string
			profit              *string
		)
		err := rows.Scan(
			&t.ID, &t.Pair, &t.Timestamp, &side, &t.Kind,
			&amount, &price, &cost, &profit,
			&t.Partial, &t.OrderID, &t.DryRun,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.Timestamp = t.Timestamp.UTC()
		t.Side = domain.Side(side)
		if t.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		if t.Price, err = parseNumeric(price); err != nil {
			return nil, err
		}
		if t.Cost, err = parseNumeric(cost); err != nil {
			return nil, err
		}
		if profit != nil {
			p, err := parseNumeric(*profit)
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
