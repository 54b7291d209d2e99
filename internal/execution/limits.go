package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spot-trader/internal/model"
)

// Limits defines configurable safety thresholds. A zero value disables
// the corresponding check.
type Limits struct {
	MaxTradesPerDay   int           `yaml:"max_trades_per_day" json:"max_trades_per_day" validate:"gte=0"`
	MaxAmountPerTrade float64       `yaml:"max_amount_per_trade" json:"max_amount_per_trade" validate:"gte=0"`
	MinQuoteBalance   float64       `yaml:"min_quote_balance" json:"min_quote_balance" validate:"gte=0"` // quote asset kept in reserve after a buy
	Cooldown          time.Duration `yaml:"cooldown" json:"cooldown" validate:"gte=0"`                   // minimum gap between trades on a symbol
}

// DefaultLimits is a conservative preset. Limits are off unless configured.
func DefaultLimits() Limits {
	return Limits{
		MaxTradesPerDay:   50,
		MaxAmountPerTrade: 1000,
		MinQuoteBalance:   100,
		Cooldown:          5 * time.Minute,
	}
}

// Guard validates a pending order against Limits using the trade ledger.
type Guard struct {
	limits Limits
	trades model.TradeStore
	now    func() time.Time
}

// NewGuard creates a Guard. now may be nil.
func NewGuard(limits Limits, trades model.TradeStore, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{limits: limits, trades: trades, now: now}
}

// Limits returns the configured thresholds.
func (g *Guard) Limits() Limits { return g.limits }

// CanTrade checks the ledger-based limits for an order on symbol.
// amount is the quote amount of a buy and is ignored for sells.
// A violation is reported as ok=false with a reason; err is only set when
// the ledger cannot be read.
func (g *Guard) CanTrade(ctx context.Context, symbol string, side model.Side, amount float64) (ok bool, reason string, err error) {
	if side == model.SideBuy && g.limits.MaxAmountPerTrade > 0 && amount > g.limits.MaxAmountPerTrade {
		return false, fmt.Sprintf("Safety limit: amount %s exceeds max %s per trade",
			trimFloat(amount), trimFloat(g.limits.MaxAmountPerTrade)), nil
	}

	now := g.now()
	if g.limits.MaxTradesPerDay > 0 {
		n, err := g.trades.CountSince(ctx, startOfDay(now))
		if err != nil {
			return false, "", fmt.Errorf("count today's trades: %w", err)
		}
		if n >= g.limits.MaxTradesPerDay {
			return false, fmt.Sprintf("Safety limit: %d trades today, max %d", n, g.limits.MaxTradesPerDay), nil
		}
	}

	if g.limits.Cooldown > 0 {
		last, err := g.trades.LastTrade(ctx, symbol)
		switch {
		case errors.Is(err, model.ErrNotFound):
		case err != nil:
			return false, "", fmt.Errorf("load last trade: %w", err)
		default:
			if wait := g.limits.Cooldown - now.Sub(last.CreatedAt); wait > 0 {
				return false, fmt.Sprintf("Safety limit: cooldown active for %s, %s remaining",
					symbol, wait.Round(time.Second)), nil
			}
		}
	}
	return true, "", nil
}

// CheckReserve verifies a buy of amount leaves at least MinQuoteBalance free.
func (g *Guard) CheckReserve(quoteFree, amount float64) (ok bool, reason string) {
	if g.limits.MinQuoteBalance <= 0 {
		return true, ""
	}
	if left := quoteFree - amount; left < g.limits.MinQuoteBalance {
		return false, fmt.Sprintf("Safety limit: buy would leave %s, min reserve %s",
			trimFloat(left), trimFloat(g.limits.MinQuoteBalance))
	}
	return true, ""
}

// Status is a snapshot of limit usage for operators.
type Status struct {
	TradesToday   int        `json:"trades_today"`
	LastTradeAt   *time.Time `json:"last_trade_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Limits        Limits     `json:"limits"`
}

// Status returns current limit usage for symbol.
func (g *Guard) Status(ctx context.Context, symbol string) (Status, error) {
	now := g.now()
	st := Status{Limits: g.limits}

	n, err := g.trades.CountSince(ctx, startOfDay(now))
	if err != nil {
		return st, fmt.Errorf("count today's trades: %w", err)
	}
	st.TradesToday = n

	last, err := g.trades.LastTrade(ctx, symbol)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return st, fmt.Errorf("load last trade: %w", err)
	default:
		at := last.CreatedAt
		st.LastTradeAt = &at
		if until := at.Add(g.limits.Cooldown); g.limits.Cooldown > 0 && until.After(now) {
			st.CooldownUntil = &until
		}
	}
	return st, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
