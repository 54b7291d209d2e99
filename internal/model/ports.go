package model

import (
	"context"
	"errors"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple business logic from concrete storage implementations
// (SQLite, Redis). Each implementation satisfies one or more of these interfaces.

// ErrVersionConflict is returned by TradeStore.Update when a trade was modified
// after it was read.
var ErrVersionConflict = errors.New("trade version conflict")

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// TradeStore is the append-mostly trade ledger.
type TradeStore interface {
	// Create inserts a new trade. The ID must be unique.
	Create(ctx context.Context, t Trade) error

	// FindByID returns the trade or ErrNotFound.
	FindByID(ctx context.Context, id string) (Trade, error)

	// FindByDateRange returns trades created in [from, to), oldest first.
	FindByDateRange(ctx context.Context, from, to time.Time) ([]Trade, error)

	// FindBySymbol returns the most recent trades for symbol, newest first.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]Trade, error)

	// OpenPositions returns filled BUY trades without a related trade,
	// oldest first. An empty symbol matches all symbols.
	OpenPositions(ctx context.Context, symbol string) ([]Trade, error)

	// Update writes all given trades in one transaction. Each trade's Version
	// must equal the stored version; on success the stored version is bumped.
	// Any mismatch rolls back everything and returns ErrVersionConflict.
	Update(ctx context.Context, trades ...Trade) error

	// CountSince returns how many trades were created at or after since.
	CountSince(ctx context.Context, since time.Time) (int, error)

	// LastTrade returns the most recent trade for symbol or ErrNotFound.
	LastTrade(ctx context.Context, symbol string) (Trade, error)
}

// ReportStore archives daily reports.
type ReportStore interface {
	// SaveReport inserts or replaces the report for its date.
	SaveReport(ctx context.Context, r ReportRecord) error

	// FindReport returns the report archived for date or ErrNotFound.
	FindReport(ctx context.Context, date time.Time) (ReportRecord, error)

	// RecentReports returns up to limit reports, newest first.
	RecentReports(ctx context.Context, limit int) ([]ReportRecord, error)
}

// BotConfigStore persists the single bot configuration row.
type BotConfigStore interface {
	// LoadBotConfig returns the stored configuration or ErrNotFound.
	LoadBotConfig(ctx context.Context) (BotConfig, error)

	// SaveBotConfig upserts the configuration.
	SaveBotConfig(ctx context.Context, c BotConfig) error
}
