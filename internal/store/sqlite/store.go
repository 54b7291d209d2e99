// Package sqlite is the SQLite-backed trade ledger, report archive and bot
// configuration store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the SQLite connection. One Store serves the TradeStore,
// ReportStore and BotConfigStore ports.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the database with WAL mode and ensures the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	logger.Info("opened database", "component", "sqlite", "path", path)
	return &Store{db: db, logger: logger.With("component", "sqlite")}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id               TEXT    PRIMARY KEY,
			order_id         TEXT    NOT NULL,
			symbol           TEXT    NOT NULL,
			side             TEXT    NOT NULL,
			type             TEXT    NOT NULL,
			status           TEXT    NOT NULL,
			quantity         REAL    NOT NULL,
			price            REAL    NOT NULL,
			quote_quantity   REAL    NOT NULL,
			commission       REAL,
			commission_asset TEXT,
			strategy         TEXT,
			related_trade_id TEXT,
			pnl              REAL,
			pnl_percent      REAL,
			version          INTEGER NOT NULL DEFAULT 0,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades(created_at);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, created_at);
		CREATE INDEX IF NOT EXISTS idx_trades_open ON trades(side, status, related_trade_id);

		CREATE TABLE IF NOT EXISTS reports (
			date                TEXT    PRIMARY KEY,
			trades_count        INTEGER NOT NULL,
			pnl_absolute        REAL    NOT NULL,
			pnl_percent         REAL    NOT NULL,
			total_balance_quote REAL    NOT NULL,
			created_at          INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS bot_config (
			id             INTEGER PRIMARY KEY CHECK (id = 1),
			enabled        INTEGER NOT NULL,
			symbol         TEXT    NOT NULL,
			strategy       TEXT    NOT NULL,
			amount         REAL    NOT NULL,
			last_execution INTEGER,
			last_signal    TEXT,
			updated_at     INTEGER NOT NULL
		);
	`)
	return err
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
