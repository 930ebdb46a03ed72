package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"btc-dca-agent/internal/domain"
	"btc-dca-agent/internal/storage"
)

// TradeJournal implements storage.TradeJournal using ClickHouse.
type TradeJournal struct {
	conn *Conn
}

// NewTradeJournal creates a new TradeJournal.
func NewTradeJournal(conn *Conn) *TradeJournal {
	return &TradeJournal{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeJournal = (*TradeJournal)(nil)

// InsertTrades adds trades in one batch. Fails entire batch on duplicate trade_id.
func (s *TradeJournal) InsertTrades(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(trades))
	ids := make([]string, 0, len(trades))
	for _, t := range trades {
		if t.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[t.ID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[t.ID] = struct{}{}
		ids = append(ids, t.ID)
	}

	// Check for duplicates against existing rows
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM trade_journal WHERE trade_id IN ?`, ids).Scan(&count); err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_journal (
			trade_id, pair, timestamp_ms, side, kind,
			amount, price, cost, realized_profit,
			partial, order_id, dry_run
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range trades {
		var profit *decimal.Decimal
		if t.RealizedProfit.Valid {
			p := t.RealizedProfit.Decimal
			profit = &p
		}
		err = batch.Append(
			t.ID, t.Pair, uint64(t.Timestamp.UnixMilli()), string(t.Side), t.Kind,
			t.Amount, t.Price, t.Cost, profit,
			flag(t.Partial), t.OrderID, flag(t.DryRun),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetTradesByPair retrieves all trades for pair ordered by timestamp ASC.
func (s *TradeJournal) GetTradesByPair(ctx context.Context, pair string) ([]domain.TradeRecord, error) {
	query := `
		SELECT
			trade_id, pair, timestamp_ms, side, kind,
			amount, price, cost, realized_profit,
			partial, order_id, dry_run
		FROM trade_journal
		WHERE pair = ?
		ORDER BY timestamp_ms ASC, trade_id ASC
	`

	rows, err := s.conn.Query(ctx, query, pair)
	if err != nil {
		return nil, fmt.Errorf("query by pair: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows rowScanner) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord

	for rows.Next() {
		var (
			t               domain.TradeRecord
			timestampMs     uint64
			side            string
			profit          *decimal.Decimal
			partial, dryRun uint8
		)
		err := rows.Scan(
			&t.ID, &t.Pair, &timestampMs, &side, &t.Kind,
			&t.Amount, &t.Price, &t.Cost, &profit,
			&partial, &t.OrderID, &dryRun,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		t.Timestamp = time.UnixMilli(int64(timestampMs)).UTC()
		t.Side = domain.Side(side)
		if profit != nil {
			t.RealizedProfit = decimal.NewNullDecimal(*profit)
		}
		t.Partial = partial == 1
		t.DryRun = dryRun == 1
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}

// Journal combines the ClickHouse trade and equity journals.
type Journal struct {
	*TradeJournal
	*EquityJournal
}

// Compile-time interface check.
var _ storage.Journal = (*Journal)(nil)

// NewJournal creates a Journal over conn.
func NewJournal(conn *Conn) *Journal {
	return &Journal{TradeJournal: NewTradeJournal(conn), EquityJournal: NewEquityJournal(conn)}
}
