// Package sqlite implements the state store and journals on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS strategy_state (
	pair       TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_journal (
	trade_id        TEXT PRIMARY KEY,
	pair            TEXT NOT NULL,
	ts              INTEGER NOT NULL,
	side            TEXT NOT NULL,
	kind            TEXT NOT NULL,
	amount          TEXT NOT NULL,
	price           TEXT NOT NULL,
	cost            TEXT NOT NULL,
	realized_profit TEXT,
	partial         INTEGER NOT NULL DEFAULT 0,
	order_id        TEXT NOT NULL,
	dry_run         INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_trade_journal_pair_ts ON trade_journal (pair, ts);

CREATE TABLE IF NOT EXISTS equity_snapshots (
	tick_id          TEXT PRIMARY KEY,
	pair             TEXT NOT NULL,
	ts               INTEGER NOT NULL,
	price            TEXT NOT NULL,
	free_fiat        TEXT NOT NULL,
	btc_balance      TEXT NOT NULL,
	equity           TEXT NOT NULL,
	equity_peak      TEXT NOT NULL,
	drawdown         TEXT NOT NULL,
	max_drawdown     TEXT NOT NULL,
	position_btc     TEXT NOT NULL,
	position_cost    TEXT NOT NULL,
	remaining_budget TEXT NOT NULL,
	realized_pnl     TEXT NOT NULL,
	unrealized_pnl   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_equity_snapshots_pair_ts ON equity_snapshots (pair, ts);
`

// DB wraps the sql.DB handle shared by the stores.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; keeps CAS updates serialized inside the process.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &DB{DB: db}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
