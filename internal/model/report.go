package model

import "time"

// TradeStats aggregates a set of trades. Win rate, average, best and worst
// are computed over trades with a known P&L only.
type TradeStats struct {
	TotalTrades     int     `json:"total_trades"`
	BuyCount        int     `json:"buy_count"`
	SellCount       int     `json:"sell_count"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	TotalPnL        float64 `json:"total_pnl"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
	AveragePnL      float64 `json:"average_pnl"`
	BestTrade       float64 `json:"best_trade"`
	WorstTrade      float64 `json:"worst_trade"`
	TotalVolume     float64 `json:"total_volume"`
	TotalFees       float64 `json:"total_fees"`
}

// DailyReport is the end-of-day summary sent to the operator.
type DailyReport struct {
	Date               time.Time          `json:"date"`
	Stats              TradeStats         `json:"stats"`
	Trades             []Trade            `json:"trades"`
	Balances           map[string]float64 `json:"balances"`
	TotalBalanceQuote  float64            `json:"total_balance_quote"`
	PreviousDayBalance *float64           `json:"previous_day_balance,omitempty"`
}

// DailyChangePercent is the balance change versus the previous day in percent.
// ok is false without a positive previous balance.
func (r DailyReport) DailyChangePercent() (pct float64, ok bool) {
	if r.PreviousDayBalance == nil || *r.PreviousDayBalance <= 0 {
		return 0, false
	}
	return (r.TotalBalanceQuote - *r.PreviousDayBalance) / *r.PreviousDayBalance * 100, true
}

// DailyChangeAbsolute is the balance change versus the previous day.
func (r DailyReport) DailyChangeAbsolute() (delta float64, ok bool) {
	if r.PreviousDayBalance == nil {
		return 0, false
	}
	return r.TotalBalanceQuote - *r.PreviousDayBalance, true
}

// IsPositiveDay reports whether realized P&L for the day is above zero.
func (r DailyReport) IsPositiveDay() bool {
	return r.Stats.TotalPnL > 0
}

// ReportRecord is the archived form of a DailyReport, keyed by date.
type ReportRecord struct {
	Date              string    `json:"date"` // YYYY-MM-DD
	TradesCount       int       `json:"trades_count"`
	PnLAbsolute       float64   `json:"pnl_absolute"`
	PnLPercent        float64   `json:"pnl_percent"`
	TotalBalanceQuote float64   `json:"total_balance_quote"`
	CreatedAt         time.Time `json:"created_at"`
}

// DateLayout is the key format for archived reports and trade day lookups.
const DateLayout = "2006-01-02"

// Record converts the report into its archived form.
func (r DailyReport) Record(now time.Time) ReportRecord {
	return ReportRecord{
		Date:              r.Date.Format(DateLayout),
		TradesCount:       r.Stats.TotalTrades,
		PnLAbsolute:       r.Stats.TotalPnL,
		PnLPercent:        r.Stats.TotalPnLPercent,
		TotalBalanceQuote: r.TotalBalanceQuote,
		CreatedAt:         now,
	}
}

// BotConfig is the persisted on/off switch and defaults of the scheduled bot.
type BotConfig struct {
	Enabled       bool         `json:"enabled"`
	Symbol        string       `json:"symbol"`
	Strategy      StrategyKind `json:"strategy"`
	Amount        float64      `json:"amount"`
	LastExecution *time.Time   `json:"last_execution,omitempty"`
	LastSignal    Signal       `json:"last_signal,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// DefaultBotConfig is used when nothing has been persisted yet. The bot starts disabled.
func DefaultBotConfig(symbol string, kind StrategyKind, amount float64) BotConfig {
	return BotConfig{
		Symbol:   symbol,
		Strategy: kind,
		Amount:   amount,
	}
}
