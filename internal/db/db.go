// Package db persists the exchange state in SQLite.
//
// The store is the system of record: everything the engine holds in memory
// can be rebuilt from these tables on restart. All decimals are stored as
// TEXT so values round-trip exactly. The driver is modernc.org/sqlite, so
// builds stay pure Go.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs the schema.
// WAL keeps readers from blocking the write path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &Store{db: sqlDB}
	if err := s.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS traders (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		type TEXT NOT NULL DEFAULT 'human',
		balance TEXT NOT NULL DEFAULT '10000',
		total_pnl TEXT NOT NULL DEFAULT '0',
		trade_count INTEGER NOT NULL DEFAULT 0,
		max_leverage_used INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS positions (
		trader_id TEXT NOT NULL,
		instrument TEXT NOT NULL,
		size TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		leverage INTEGER NOT NULL DEFAULT 1,
		margin TEXT NOT NULL DEFAULT '0',
		unrealized_pnl TEXT NOT NULL DEFAULT '0',
		realized_pnl TEXT NOT NULL DEFAULT '0',
		liquidation_price TEXT NOT NULL DEFAULT '0',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (trader_id) REFERENCES traders(id),
		PRIMARY KEY(trader_id, instrument)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		trader_id TEXT NOT NULL,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		price TEXT NOT NULL,
		size TEXT NOT NULL,
		filled_size TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'pending',
		leverage INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (trader_id) REFERENCES traders(id)
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		instrument TEXT NOT NULL,
		price TEXT NOT NULL,
		size TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		buyer_order_id TEXT NOT NULL DEFAULT '',
		seller_order_id TEXT NOT NULL DEFAULT '',
		buyer_leverage INTEGER NOT NULL DEFAULT 1,
		seller_leverage INTEGER NOT NULL DEFAULT 1,
		buyer_effect TEXT NOT NULL DEFAULT 'open',
		seller_effect TEXT NOT NULL DEFAULT 'open',
		buyer_new_position TEXT NOT NULL DEFAULT '0',
		seller_new_position TEXT NOT NULL DEFAULT '0',
		aggressor_side TEXT NOT NULL,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (buyer_id) REFERENCES traders(id),
		FOREIGN KEY (seller_id) REFERENCES traders(id)
	);

	CREATE TABLE IF NOT EXISTS liquidations (
		id TEXT PRIMARY KEY,
		trader_id TEXT NOT NULL,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL,
		size TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		liquidation_price TEXT NOT NULL,
		mark_price TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		loss TEXT NOT NULL,
		insurance_fund_hit INTEGER NOT NULL DEFAULT 0,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (trader_id) REFERENCES traders(id)
	);

	CREATE TABLE IF NOT EXISTS market_stats (
		instrument TEXT PRIMARY KEY,
		last_price TEXT NOT NULL DEFAULT '1000',
		mark_price TEXT NOT NULL DEFAULT '1000',
		high_24h TEXT NOT NULL DEFAULT '0',
		low_24h TEXT NOT NULL DEFAULT '0',
		volume_24h TEXT NOT NULL DEFAULT '0',
		open_interest TEXT NOT NULL DEFAULT '0',
		insurance_fund TEXT NOT NULL DEFAULT '0',
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_positions_trader ON positions(trader_id);
	CREATE INDEX IF NOT EXISTS idx_orders_trader ON orders(trader_id);
	CREATE INDEX IF NOT EXISTS idx_orders_instrument_status ON orders(instrument, status);
	CREATE INDEX IF NOT EXISTS idx_trades_instrument ON trades(instrument);
	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_trades_buyer ON trades(buyer_id);
	CREATE INDEX IF NOT EXISTS idx_trades_seller ON trades(seller_id);
	CREATE INDEX IF NOT EXISTS idx_liquidations_instrument ON liquidations(instrument);
	`
	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx so every write helper can
// run standalone or inside ApplyFill's transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// rowParser keeps the first uuid or decimal parse failure while a scan
// helper fills a struct, so a corrupt row surfaces as an error instead of
// silently coming back as zero values.
type rowParser struct{ err error }

func (p *rowParser) id(s string) uuid.UUID {
	v, err := uuid.Parse(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("uuid %q: %w", s, err)
	}
	return v
}

func (p *rowParser) dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("decimal %q: %w", s, err)
	}
	return v
}
