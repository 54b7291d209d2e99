// Package portfolio computes realized P&L from the trade ledger, values the
// account and builds the daily report.
//
// Sells are matched against open buys first-in first-out per symbol. A
// fresh match is written back to both trades in one versioned update, so
// a sell is matched at most once even with concurrent report runs.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spot-trader/internal/metrics"
	"spot-trader/internal/model"
)

var (
	ErrTradeNotFound = errors.New("trade not found")
	ErrNotSellTrade  = errors.New("trade is not a sell")
	ErrMatchNotFound = errors.New("no matching buy trade")
)

// Match is the realized P&L of one sell against one buy.
type Match struct {
	SellID     string  `json:"sell_id"`
	BuyID      string  `json:"buy_id"`
	Revenue    float64 `json:"revenue"` // sell quantity * price
	Cost       float64 `json:"cost"`    // buy quantity * price
	Fees       float64 `json:"fees"`
	PnL        float64 `json:"pnl"`
	PnLPercent float64 `json:"pnl_percent"`
	Reused     bool    `json:"reused"` // the sell was already linked to its buy
}

// Compute returns the P&L of sell against buy. A missing commission counts
// as 0.1% of the trade's notional.
func Compute(sell, buy model.Trade) Match {
	m := Match{
		SellID:  sell.ID,
		BuyID:   buy.ID,
		Revenue: sell.Notional(),
		Cost:    buy.Notional(),
		Fees:    sell.Fee() + buy.Fee(),
	}
	m.PnL = m.Revenue - m.Cost - m.Fees
	if m.Cost > 0 {
		m.PnLPercent = m.PnL / m.Cost * 100
	}
	return m
}

// PeriodPnl is realized P&L over the filled sells of a time range.
type PeriodPnl struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	PnL           float64   `json:"pnl"`
	PnLPercent    float64   `json:"pnl_percent"` // over buy quote notional in range
	Invested      float64   `json:"invested"`
	WinningTrades int       `json:"winning_trades"`
	LosingTrades  int       `json:"losing_trades"`
	Matched       int       `json:"matched"`   // sells matched during this call
	Unmatched     int       `json:"unmatched"` // sells skipped for lack of a buy
}

// Engine matches sells to buys and aggregates realized P&L.
type Engine struct {
	trades  model.TradeStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an Engine. m and logger may be nil.
func NewEngine(trades model.TradeStore, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		trades:  trades,
		metrics: m,
		logger:  logger.With("component", "pnl"),
		now:     time.Now,
	}
}

// CalculateTradePnl returns the realized P&L of the sell trade sellID.
//
// A sell already linked to a buy reuses that buy and writes nothing.
// Otherwise the earliest open buy of the symbol is matched and both trades
// are backfilled atomically.
func (e *Engine) CalculateTradePnl(ctx context.Context, sellID string) (Match, error) {
	sell, err := e.loadSell(ctx, sellID)
	if err != nil {
		return Match{}, err
	}
	if sell.RelatedTradeID != "" {
		return e.reuse(ctx, sell)
	}

	open, err := e.trades.OpenPositions(ctx, sell.Symbol)
	if err != nil {
		return Match{}, fmt.Errorf("load open positions: %w", err)
	}
	return e.matchAndRecord(ctx, sell, newFIFO(open), true)
}

// CalculatePnl sums realized P&L over filled sells created in [from, to).
// Sells without a recorded P&L are matched on the fly; a sell that cannot
// be matched is logged and left out of the totals.
func (e *Engine) CalculatePnl(ctx context.Context, from, to time.Time) (PeriodPnl, error) {
	p, _, err := e.calculate(ctx, from, to, true)
	return p, err
}

// calculate also returns the trades of the range with fresh matches applied.
// Fresh matches are written back only when persist is set.
func (e *Engine) calculate(ctx context.Context, from, to time.Time, persist bool) (PeriodPnl, []model.Trade, error) {
	p := PeriodPnl{From: from, To: to}

	trades, err := e.trades.FindByDateRange(ctx, from, to)
	if err != nil {
		return p, nil, fmt.Errorf("load trades: %w", err)
	}

	var queue *fifo
	for i, t := range trades {
		if t.Status != model.StatusFilled {
			continue
		}
		if t.Side == model.SideBuy {
			p.Invested += t.QuoteQuantity
			continue
		}

		var pnl float64
		switch {
		case t.PnL != nil:
			pnl = *t.PnL
		default:
			if queue == nil {
				open, err := e.trades.OpenPositions(ctx, "")
				if err != nil {
					return p, nil, fmt.Errorf("load open positions: %w", err)
				}
				queue = newFIFO(open)
			}
			m, err := e.resolve(ctx, t, queue, persist)
			if err != nil {
				p.Unmatched++
				e.logger.Warn("sell trade skipped", "trade_id", t.ID, "symbol", t.Symbol,
					"open_positions", queue.size(t.Symbol), "error", err)
				continue
			}
			pnl = m.PnL
			trades[i] = t.WithMatch(m.BuyID, m.PnL, m.PnLPercent, e.now())
			if !m.Reused {
				p.Matched++
			}
		}

		p.PnL += pnl
		switch {
		case pnl > 0:
			p.WinningTrades++
		case pnl < 0:
			p.LosingTrades++
		}
	}

	if p.Invested > 0 {
		p.PnLPercent = p.PnL / p.Invested * 100
	}
	e.logger.Debug("period pnl calculated", "from", from, "to", to, "pnl", p.PnL,
		"matched", p.Matched, "unmatched", p.Unmatched)
	return p, trades, nil
}

// resolve returns the match of a sell without a recorded P&L. A sell
// linked to a buy but missing its P&L is recomputed from that buy.
func (e *Engine) resolve(ctx context.Context, sell model.Trade, queue *fifo, persist bool) (Match, error) {
	if sell.RelatedTradeID != "" {
		return e.reuse(ctx, sell)
	}
	return e.matchAndRecord(ctx, sell, queue, persist)
}

func (e *Engine) loadSell(ctx context.Context, id string) (model.Trade, error) {
	sell, err := e.trades.FindByID(ctx, id)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return model.Trade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	case err != nil:
		return model.Trade{}, fmt.Errorf("load trade %s: %w", id, err)
	case sell.Side != model.SideSell:
		return model.Trade{}, fmt.Errorf("%w: %s is %s", ErrNotSellTrade, id, sell.Side)
	}
	return sell, nil
}

func (e *Engine) reuse(ctx context.Context, sell model.Trade) (Match, error) {
	buy, err := e.trades.FindByID(ctx, sell.RelatedTradeID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return Match{}, fmt.Errorf("%w: linked buy %s of sell %s is missing",
			ErrMatchNotFound, sell.RelatedTradeID, sell.ID)
	case err != nil:
		return Match{}, fmt.Errorf("load trade %s: %w", sell.RelatedTradeID, err)
	}
	m := Compute(sell, buy)
	m.Reused = true
	return m, nil
}

// matchAndRecord pairs sell with the next open buy in queue. Without
// persist the match is only reflected in queue.
func (e *Engine) matchAndRecord(ctx context.Context, sell model.Trade, queue *fifo, persist bool) (Match, error) {
	buy, ok := queue.match(sell.Symbol, sell.Quantity)
	if !ok {
		e.metrics.ObserveMatch(false)
		return Match{}, fmt.Errorf("%w: sell %s on %s", ErrMatchNotFound, sell.ID, sell.Symbol)
	}
	if buy.Quantity < sell.Quantity {
		e.logger.Warn("matching sell against smaller buy", "sell_id", sell.ID, "buy_id", buy.ID,
			"sell_qty", sell.Quantity, "buy_qty", buy.Quantity)
	}

	m := Compute(sell, buy)
	if !persist {
		queue.remove(sell.Symbol, buy.ID)
		return m, nil
	}
	now := e.now()
	err := e.trades.Update(ctx,
		sell.WithMatch(buy.ID, m.PnL, m.PnLPercent, now),
		buy.WithClosedBy(sell.ID, now))
	if errors.Is(err, model.ErrVersionConflict) {
		// Someone else matched first; their link wins.
		fresh, ferr := e.loadSell(ctx, sell.ID)
		if ferr == nil && fresh.RelatedTradeID != "" {
			queue.remove(sell.Symbol, fresh.RelatedTradeID)
			return e.reuse(ctx, fresh)
		}
		return Match{}, fmt.Errorf("record match of sell %s: %w", sell.ID, err)
	}
	if err != nil {
		return Match{}, fmt.Errorf("record match of sell %s: %w", sell.ID, err)
	}

	queue.remove(sell.Symbol, buy.ID)
	e.metrics.ObserveMatch(true)
	e.logger.Info("sell matched", "sell_id", sell.ID, "buy_id", buy.ID,
		"pnl", m.PnL, "pnl_percent", m.PnLPercent, "fees", m.Fees)
	return m, nil
}
