package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spot-trader/internal/model"
)

const tradeColumns = `id, order_id, symbol, side, type, status, quantity, price, quote_quantity,
	commission, commission_asset, strategy, related_trade_id, pnl, pnl_percent,
	version, created_at, updated_at`

// Create inserts a new trade.
func (s *Store) Create(ctx context.Context, t model.Trade) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrderID, t.Symbol, string(t.Side), string(t.Type), string(t.Status),
		t.Quantity, t.Price, t.QuoteQuantity,
		nullFloat(t.Commission), nullString(t.CommissionAsset), nullString(t.Strategy),
		nullString(t.RelatedTradeID), nullFloat(t.PnL), nullFloat(t.PnLPercent),
		t.Version, t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert trade %s: %w", t.ID, err)
	}
	return nil
}

// FindByID returns the trade or model.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id string) (model.Trade, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Trade{}, fmt.Errorf("trade %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Trade{}, fmt.Errorf("sqlite find trade %s: %w", id, err)
	}
	return t, nil
}

// FindByDateRange returns trades created in [from, to), oldest first.
func (s *Store) FindByDateRange(ctx context.Context, from, to time.Time) ([]model.Trade, error) {
	return s.query(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, rowid ASC`, from.UnixMilli(), to.UnixMilli())
}

// FindBySymbol returns the most recent trades for symbol, newest first.
func (s *Store) FindBySymbol(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	return s.query(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE symbol = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, symbol, limit)
}

// OpenPositions returns filled BUY trades not yet matched, oldest first.
func (s *Store) OpenPositions(ctx context.Context, symbol string) ([]model.Trade, error) {
	return s.query(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE side = 'BUY' AND status = 'FILLED'
		  AND (related_trade_id IS NULL OR related_trade_id = '')
		  AND (? = '' OR symbol = ?)
		ORDER BY created_at ASC, rowid ASC`, symbol, symbol)
}

// CountSince returns how many trades were created at or after since.
func (s *Store) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE created_at >= ?`, since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite count trades: %w", err)
	}
	return n, nil
}

// LastTrade returns the most recent trade for symbol or model.ErrNotFound.
func (s *Store) LastTrade(ctx context.Context, symbol string) (model.Trade, error) {
	trades, err := s.FindBySymbol(ctx, symbol, 1)
	if err != nil {
		return model.Trade{}, err
	}
	if len(trades) == 0 {
		return model.Trade{}, fmt.Errorf("last trade for %s: %w", symbol, model.ErrNotFound)
	}
	return trades[0], nil
}

// Update writes all trades in one transaction with an optimistic version
// check per row. On any mismatch nothing is written.
func (s *Store) Update(ctx context.Context, trades ...model.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, t := range trades {
		res, err := tx.ExecContext(ctx, `UPDATE trades SET
				status = ?, quantity = ?, price = ?, quote_quantity = ?,
				commission = ?, commission_asset = ?, strategy = ?,
				related_trade_id = ?, pnl = ?, pnl_percent = ?,
				version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			string(t.Status), t.Quantity, t.Price, t.QuoteQuantity,
			nullFloat(t.Commission), nullString(t.CommissionAsset), nullString(t.Strategy),
			nullString(t.RelatedTradeID), nullFloat(t.PnL), nullFloat(t.PnLPercent),
			t.UpdatedAt.UnixMilli(), t.ID, t.Version,
		)
		if err != nil {
			return fmt.Errorf("sqlite update trade %s: %w", t.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite update trade %s: %w", t.ID, err)
		}
		if n != 1 {
			return fmt.Errorf("trade %s at version %d: %w", t.ID, t.Version, model.ErrVersionConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(sc scanner) (model.Trade, error) {
	var (
		t                                    model.Trade
		side, typ, status                    string
		commission, pnl, pnlPct              sql.NullFloat64
		commissionAsset, strategy, relatedID sql.NullString
		createdAt, updatedAt                 int64
	)
	err := sc.Scan(&t.ID, &t.OrderID, &t.Symbol, &side, &typ, &status,
		&t.Quantity, &t.Price, &t.QuoteQuantity,
		&commission, &commissionAsset, &strategy, &relatedID, &pnl, &pnlPct,
		&t.Version, &createdAt, &updatedAt)
	if err != nil {
		return model.Trade{}, err
	}
	t.Side = model.Side(side)
	t.Type = model.OrderType(typ)
	t.Status = model.OrderStatus(status)
	t.Commission = floatPtr(commission)
	t.CommissionAsset = commissionAsset.String
	t.Strategy = strategy.String
	t.RelatedTradeID = relatedID.String
	t.PnL = floatPtr(pnl)
	t.PnLPercent = floatPtr(pnlPct)
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return t, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
