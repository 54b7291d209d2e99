package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spot-trader/internal/model"
)

// Account is the part of the exchange gateway the reporter needs.
type Account interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	Balances(ctx context.Context) (model.Balances, error)
}

const (
	valuationQuote = "USDT"
	maxConversions = 10
)

// stablecoins are valued 1:1 against the quote asset.
var stablecoins = map[string]bool{"USDT": true, "USDC": true, "BUSD": true, "TUSD": true}

// pricedAssets are converted through their <ASSET>USDT price. Anything else
// is listed in the balances but not valued.
var pricedAssets = map[string]bool{
	"BTC": true, "ETH": true, "BNB": true, "XRP": true, "SOL": true, "ADA": true, "DOGE": true,
}

// Valuation is the account value in the quote asset.
type Valuation struct {
	Balances   map[string]float64 `json:"balances"` // free + locked per asset
	TotalQuote float64            `json:"total_quote"`
	Converted  int                `json:"converted"` // assets priced through the exchange
}

// Reporter builds, values and archives daily reports.
type Reporter struct {
	account Account
	trades  model.TradeStore
	reports model.ReportStore
	engine  *Engine
	logger  *slog.Logger
	now     func() time.Time
}

// NewReporter creates a Reporter.
func NewReporter(account Account, trades model.TradeStore, reports model.ReportStore, engine *Engine, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		account: account,
		trades:  trades,
		reports: reports,
		engine:  engine,
		logger:  logger.With("component", "reporter"),
		now:     time.Now,
	}
}

// PortfolioValue values every asset with a positive total. At most
// maxConversions assets are priced; a failed price lookup is logged and the
// asset is left out of the total.
func (r *Reporter) PortfolioValue(ctx context.Context) (Valuation, error) {
	balances, err := r.account.Balances(ctx)
	if err != nil {
		return Valuation{}, fmt.Errorf("fetch balances: %w", err)
	}

	v := Valuation{Balances: make(map[string]float64)}
	for _, b := range balances {
		total := b.Total()
		if total <= 0 {
			continue
		}
		v.Balances[b.Asset] = total

		switch {
		case stablecoins[b.Asset]:
			v.TotalQuote += total
		case pricedAssets[b.Asset] && v.Converted < maxConversions:
			price, err := r.account.CurrentPrice(ctx, b.Asset+valuationQuote)
			if err != nil {
				r.logger.Warn("failed to price asset", "asset", b.Asset, "error", err)
				continue
			}
			v.TotalQuote += total * price
			v.Converted++
		}
	}

	r.logger.Info("portfolio valued", "total_quote", v.TotalQuote,
		"assets", len(v.Balances), "converted", v.Converted)
	return v, nil
}

// OpenPositions aggregates open buys per symbol and marks them at the
// current price. A failed price lookup leaves LastPrice at 0.
func (r *Reporter) OpenPositions(ctx context.Context) ([]Position, error) {
	open, err := r.trades.OpenPositions(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}
	positions := Positions(open)
	for i := range positions {
		price, err := r.account.CurrentPrice(ctx, positions[i].Symbol)
		if err != nil {
			r.logger.Warn("failed to mark position", "symbol", positions[i].Symbol, "error", err)
			continue
		}
		positions[i].LastPrice = price
	}
	return positions, nil
}

// GenerateDailyReport builds the report for the calendar day of date, in
// date's location. Unmatched sells of the day are matched on the way.
func (r *Reporter) GenerateDailyReport(ctx context.Context, date time.Time) (model.DailyReport, error) {
	return r.dailyReport(ctx, date, true)
}

// PreviewDailyReport builds the same report as GenerateDailyReport without
// writing fresh matches to the ledger.
func (r *Reporter) PreviewDailyReport(ctx context.Context, date time.Time) (model.DailyReport, error) {
	return r.dailyReport(ctx, date, false)
}

func (r *Reporter) dailyReport(ctx context.Context, date time.Time, persist bool) (model.DailyReport, error) {
	from := startOfDay(date)
	to := from.AddDate(0, 0, 1)
	log := r.logger.With("date", from.Format(model.DateLayout), "preview", !persist)
	log.Info("generating daily report")

	period, trades, err := r.engine.calculate(ctx, from, to, persist)
	if err != nil {
		return model.DailyReport{}, err
	}
	value, err := r.PortfolioValue(ctx)
	if err != nil {
		return model.DailyReport{}, err
	}

	stats := StatsFromTrades(trades, 0)
	stats.TotalPnLPercent = period.PnLPercent

	report := model.DailyReport{
		Date:              from,
		Stats:             stats,
		Trades:            trades,
		Balances:          value.Balances,
		TotalBalanceQuote: value.TotalQuote,
	}

	prev, err := r.reports.FindReport(ctx, from.AddDate(0, 0, -1))
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		log.Warn("previous report unavailable", "error", err)
	default:
		balance := prev.TotalBalanceQuote
		report.PreviousDayBalance = &balance
	}

	log.Info("daily report generated", "trades", stats.TotalTrades, "pnl", stats.TotalPnL,
		"total_quote", report.TotalBalanceQuote)
	return report, nil
}

// ArchiveReport stores the report, replacing any earlier one for the date.
func (r *Reporter) ArchiveReport(ctx context.Context, report model.DailyReport) error {
	if err := r.reports.SaveReport(ctx, report.Record(r.now())); err != nil {
		return fmt.Errorf("archive report %s: %w", report.Date.Format(model.DateLayout), err)
	}
	r.logger.Info("daily report archived", "date", report.Date.Format(model.DateLayout))
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
