package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spot-trader/internal/model"
)

// SaveReport inserts or replaces the archived report for its date.
func (s *Store) SaveReport(ctx context.Context, r model.ReportRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO reports
			(date, trades_count, pnl_absolute, pnl_percent, total_balance_quote, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			trades_count = excluded.trades_count,
			pnl_absolute = excluded.pnl_absolute,
			pnl_percent = excluded.pnl_percent,
			total_balance_quote = excluded.total_balance_quote,
			created_at = excluded.created_at`,
		r.Date, r.TradesCount, r.PnLAbsolute, r.PnLPercent, r.TotalBalanceQuote, r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite save report %s: %w", r.Date, err)
	}
	return nil
}

// FindReport returns the report archived for date or model.ErrNotFound.
func (s *Store) FindReport(ctx context.Context, date time.Time) (model.ReportRecord, error) {
	key := date.Format(model.DateLayout)
	row := s.db.QueryRowContext(ctx, `SELECT date, trades_count, pnl_absolute, pnl_percent, total_balance_quote, created_at
		FROM reports WHERE date = ?`, key)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReportRecord{}, fmt.Errorf("report %s: %w", key, model.ErrNotFound)
	}
	if err != nil {
		return model.ReportRecord{}, fmt.Errorf("sqlite find report %s: %w", key, err)
	}
	return r, nil
}

// RecentReports returns up to limit reports, newest first.
func (s *Store) RecentReports(ctx context.Context, limit int) ([]model.ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, trades_count, pnl_absolute, pnl_percent, total_balance_quote, created_at
		FROM reports ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query reports: %w", err)
	}
	defer rows.Close()

	var out []model.ReportRecord
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReport(sc scanner) (model.ReportRecord, error) {
	var (
		r         model.ReportRecord
		createdAt int64
	)
	if err := sc.Scan(&r.Date, &r.TradesCount, &r.PnLAbsolute, &r.PnLPercent, &r.TotalBalanceQuote, &createdAt); err != nil {
		return model.ReportRecord{}, err
	}
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	return r, nil
}
