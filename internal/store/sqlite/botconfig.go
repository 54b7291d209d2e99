package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spot-trader/internal/model"
)

// LoadBotConfig returns the stored configuration or model.ErrNotFound.
func (s *Store) LoadBotConfig(ctx context.Context) (model.BotConfig, error) {
	var (
		c          model.BotConfig
		enabled    int
		strategy   string
		lastExec   sql.NullInt64
		lastSignal sql.NullString
		updatedAt  int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT enabled, symbol, strategy, amount, last_execution, last_signal, updated_at
		FROM bot_config WHERE id = 1`).
		Scan(&enabled, &c.Symbol, &strategy, &c.Amount, &lastExec, &lastSignal, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BotConfig{}, fmt.Errorf("bot config: %w", model.ErrNotFound)
	}
	if err != nil {
		return model.BotConfig{}, fmt.Errorf("sqlite load bot config: %w", err)
	}

	c.Enabled = enabled != 0
	c.Strategy = model.StrategyKind(strategy)
	c.LastSignal = model.Signal(lastSignal.String)
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if lastExec.Valid {
		t := time.UnixMilli(lastExec.Int64).UTC()
		c.LastExecution = &t
	}
	return c, nil
}

// SaveBotConfig upserts the single configuration row.
func (s *Store) SaveBotConfig(ctx context.Context, c model.BotConfig) error {
	var lastExec sql.NullInt64
	if c.LastExecution != nil {
		lastExec = sql.NullInt64{Int64: c.LastExecution.UnixMilli(), Valid: true}
	}
	enabled := 0
	if c.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO bot_config
			(id, enabled, symbol, strategy, amount, last_execution, last_signal, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			symbol = excluded.symbol,
			strategy = excluded.strategy,
			amount = excluded.amount,
			last_execution = excluded.last_execution,
			last_signal = excluded.last_signal,
			updated_at = excluded.updated_at`,
		enabled, c.Symbol, string(c.Strategy), c.Amount, lastExec,
		nullString(string(c.LastSignal)), c.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite save bot config: %w", err)
	}
	return nil
}
