package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-trader/internal/model"
)

var at = time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `BTCUSDT \+1\.5%`, escapeMarkdown("BTCUSDT +1.5%"))
	assert.Equal(t, `a\_b\*c\[d\]`, escapeMarkdown("a_b*c[d]"))
	assert.Equal(t, `back\\slash`, escapeMarkdown(`back\slash`))
}

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", nil).WithBaseURL(srv.URL)
	err := n.Send(context.Background(), Alert{
		Level:   AlertCritical,
		Title:   "Critical error",
		Message: "fetch price: timeout",
		Fields:  []Field{{"Type", "bot.run"}},
		Time:    at,
	})
	require.NoError(t, err)

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "MarkdownV2", got["parse_mode"])
	text := got["text"].(string)
	assert.True(t, strings.HasPrefix(text, "🚨 *Critical error*"), text)
	assert.Contains(t, text, `*Type:* bot\.run`)
	assert.Contains(t, text, "02/05/2024 08:30:00")
}

func TestTelegramNotifier_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: can't parse entities"}`))
	}))
	defer srv.Close()

	err := NewTelegramNotifier("T", "1", nil).WithBaseURL(srv.URL).Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "can't parse entities")
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, nil).Send(context.Background(), Alert{
		Level: AlertWarning, Title: "Low balance", Message: "m",
		Fields: []Field{{"Balance", "50 USDT"}}, Time: at,
	})
	require.NoError(t, err)
	assert.Equal(t, "WARNING", got["level"])
	assert.Equal(t, "Low balance", got["title"])
	assert.Equal(t, "2024-05-02T08:30:00Z", got["ts"])
	assert.Equal(t, map[string]any{"Balance": "50 USDT"}, got["fields"])
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, nil).Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "status 502")
}

type recorder struct {
	alerts []Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	bad := &recorder{err: errors.New("down")}
	good := &recorder{}
	m := NewMulti(nil, bad, nil, good, NewLogNotifier(nil))
	assert.Equal(t, 3, m.Len())

	err := m.Send(context.Background(), Alert{Title: "hello"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "down")
	require.Len(t, good.alerts, 1)
	assert.False(t, good.alerts[0].Time.IsZero(), "time is stamped once for all backends")
	assert.Equal(t, good.alerts[0].Time, bad.alerts[0].Time)
}

// ────────────────────────────────────────────────────────────
// Message builders
// ────────────────────────────────────────────────────────────

func fieldValue(a Alert, name string) string {
	for _, f := range a.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func TestTradeExecuted(t *testing.T) {
	pnl := -1.234
	tr := model.Trade{
		OrderID: "77", Symbol: "BTCUSDT", Side: model.SideSell, Status: model.StatusFilled,
		Quantity: 0.0015, Price: 65000.5, QuoteQuantity: 97.50075, Strategy: "RSI Strategy", PnL: &pnl,
	}

	a := TradeExecuted(tr, true, at)
	assert.Equal(t, AlertInfo, a.Level)
	assert.Equal(t, "🔴 SELL BTCUSDT", a.Message)
	assert.Equal(t, "0.0015", fieldValue(a, "Quantity"))
	assert.Equal(t, "65000.5", fieldValue(a, "Price"))
	assert.Equal(t, "97.5", fieldValue(a, "Total"))
	assert.Equal(t, "-1.23", fieldValue(a, "P&L"))
	assert.Empty(t, fieldValue(a, "Ledger"))

	a = TradeExecuted(tr, false, at)
	assert.Equal(t, AlertWarning, a.Level)
	assert.NotEmpty(t, fieldValue(a, "Ledger"))
}

func TestLowBalance(t *testing.T) {
	a := LowBalance("USDT", 50, 200, at)
	assert.Equal(t, AlertWarning, a.Level)
	assert.Equal(t, "50 USDT", fieldValue(a, "Balance"))
	assert.Equal(t, "25.0%", fieldValue(a, "Usage"))
}

func TestCriticalError(t *testing.T) {
	a := CriticalError("bot.run", errors.New("boom"), at)
	assert.Equal(t, AlertCritical, a.Level)
	assert.Equal(t, "boom", a.Message)
	assert.Equal(t, "bot.run", fieldValue(a, "Type"))
}

func TestDailyReportMessage(t *testing.T) {
	prev := 10000.0
	r := model.DailyReport{
		Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Stats: model.TradeStats{
			TotalTrades: 3, BuyCount: 2, SellCount: 1,
			WinningTrades: 1, WinRate: 100, TotalPnL: 4.976, TotalPnLPercent: 22.61,
		},
		Balances:           map[string]float64{"USDT": 10100, "BTC": 0.00012},
		TotalBalanceQuote:  10100,
		PreviousDayBalance: &prev,
	}

	a := DailyReport(r, "USDT", at)
	assert.Equal(t, "Daily report 01/05/2024", a.Title)
	assert.Equal(t, AlertInfo, a.Level)
	assert.Contains(t, a.Message, "Trades: 3 (2 buys, 1 sells)")
	assert.Contains(t, a.Message, "P&L: +4.98 USDT (+22.61%)")
	assert.Contains(t, a.Message, "Win rate: 100.0% (1 W / 0 L)")
	assert.Contains(t, a.Message, "Balance: 10100 USDT (+100.00 USDT, +1.00%)")
	require.Len(t, a.Fields, 2)
	assert.Equal(t, "BTC", a.Fields[0].Name, "assets are sorted")
	assert.Equal(t, "0.00012", a.Fields[0].Value)
}
