// Package tradesink implements the embedded-SQLite-per-strategy trade sink
// (spec.md §4.5 C5), resolving the Open Question in favor of an embedded
// store behind a narrow interface. Grounded on the teacher's
// internal/engine/simple/store_sqlite.go for WAL mode, transaction shape,
// and driver usage; the checksum-guarded JSON blob is replaced with a
// normal relational schema since trade records, unlike the teacher's whole
// engine state, are naturally tabular.
package tradesink

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"gridwarden/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_key    TEXT PRIMARY KEY,
	strategy_id  TEXT NOT NULL,
	order_id     TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	price        TEXT NOT NULL,
	quantity     TEXT NOT NULL,
	fee          TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	executed_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_id);
`

// SQLiteSink is an embedded, append-only trade sink: one SQLite file per
// strategy. Appends are idempotent under retries because trade_key is the
// primary key and duplicate inserts are ignored rather than erroring.
type SQLiteSink struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at dbPath and
// ensures its schema exists.
func Open(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Append inserts t, silently ignoring the insert if its idempotency key
// already exists (a retried append of the same fill delta).
func (s *SQLiteSink) Append(ctx context.Context, t core.TradeRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades
			(trade_key, strategy_id, order_id, symbol, side, price, quantity, fee, realized_pnl, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeKey(), t.StrategyID, t.OrderID, t.Symbol, string(t.Side),
		t.Price.String(), t.Quantity.String(), t.Fee.String(), t.RealizedPnL.String(),
		t.ExecutedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return tx.Commit()
}

// RealizedPnLTotal sums the realized PnL of every trade recorded for
// strategyID.
func (s *SQLiteSink) RealizedPnLTotal(ctx context.Context, strategyID string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT realized_pnl FROM trades WHERE strategy_id = ?`, strategyID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("scan trade: %w", err)
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse realized pnl: %w", err)
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}

// Close closes the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

var _ core.ITradeSink = (*SQLiteSink)(nil)
