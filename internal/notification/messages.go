package notification

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"spot-trader/internal/model"
)

// TradeExecuted describes a trade that reached the exchange. persisted is
// false when the ledger write failed and the operator must reconcile.
func TradeExecuted(t model.Trade, persisted bool, now time.Time) Alert {
	emoji := "🟢"
	if t.Side == model.SideSell {
		emoji = "🔴"
	}
	a := Alert{
		Level:   AlertInfo,
		Title:   "Trade executed",
		Message: fmt.Sprintf("%s %s %s", emoji, t.Side, t.Symbol),
		Fields: []Field{
			{"Quantity", formatAmount(t.Quantity, 8)},
			{"Price", formatAmount(t.Price, 8)},
			{"Total", formatAmount(t.QuoteQuantity, 2)},
			{"Status", string(t.Status)},
			{"Order", t.OrderID},
		},
		Time: now,
	}
	if t.Strategy != "" {
		a.Fields = append(a.Fields, Field{"Strategy", t.Strategy})
	}
	if t.PnL != nil {
		a.Fields = append(a.Fields, Field{"P&L", signed(*t.PnL)})
	}
	if !persisted {
		a.Level = AlertWarning
		a.Fields = append(a.Fields, Field{"Ledger", "NOT RECORDED, reconcile manually"})
	}
	return a
}

// CriticalError reports a failed pass or job.
func CriticalError(kind string, err error, now time.Time) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   "Critical error",
		Message: err.Error(),
		Fields:  []Field{{"Type", kind}},
		Time:    now,
	}
}

// LowBalance warns that the free quote balance fell under threshold.
func LowBalance(asset string, balance, threshold float64, now time.Time) Alert {
	usage := 0.0
	if threshold > 0 {
		usage = balance / threshold * 100
	}
	return Alert{
		Level:   AlertWarning,
		Title:   "Low balance",
		Message: fmt.Sprintf("Your %s balance is below the configured threshold.", asset),
		Fields: []Field{
			{"Balance", formatAmount(balance, 2) + " " + asset},
			{"Threshold", formatAmount(threshold, 2) + " " + asset},
			{"Usage", fmt.Sprintf("%.1f%%", usage)},
		},
		Time: now,
	}
}

// DailyReport summarizes a day of trading.
func DailyReport(r model.DailyReport, quote string, now time.Time) Alert {
	s := r.Stats
	var b strings.Builder
	fmt.Fprintf(&b, "Trades: %d (%d buys, %d sells)\n", s.TotalTrades, s.BuyCount, s.SellCount)
	fmt.Fprintf(&b, "P&L: %s %s (%s%%)\n", signed(s.TotalPnL), quote, signed(s.TotalPnLPercent))
	if s.WinningTrades+s.LosingTrades > 0 {
		fmt.Fprintf(&b, "Win rate: %.1f%% (%d W / %d L)\n", s.WinRate, s.WinningTrades, s.LosingTrades)
	}
	fmt.Fprintf(&b, "Balance: %s %s", formatAmount(r.TotalBalanceQuote, 2), quote)
	if pct, ok := r.DailyChangePercent(); ok {
		delta, _ := r.DailyChangeAbsolute()
		fmt.Fprintf(&b, " (%s %s, %s%%)", signed(delta), quote, signed(pct))
	}

	assets := make([]string, 0, len(r.Balances))
	for a := range r.Balances {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	fields := make([]Field, 0, len(assets))
	for _, a := range assets {
		fields = append(fields, Field{a, formatAmount(r.Balances[a], 8)})
	}

	level := AlertInfo
	if s.TotalPnL < 0 {
		level = AlertWarning
	}
	return Alert{
		Level:   level,
		Title:   "Daily report " + r.Date.Format("02/01/2006"),
		Message: b.String(),
		Fields:  fields,
		Time:    now,
	}
}

func signed(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.2f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// formatAmount prints v with at most prec decimals and no trailing zeros.
func formatAmount(v float64, prec int) string {
	s := fmt.Sprintf("%.*f", prec, v)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
