package bot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-trader/internal/exchange"
	"spot-trader/internal/execution"
	"spot-trader/internal/metrics"
	"spot-trader/internal/model"
	"spot-trader/internal/notification"
	"spot-trader/internal/portfolio"
	"spot-trader/internal/store/memory"
	"spot-trader/internal/strategy"
)

var testNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// market serves a fixed close series. A falling series drives RSI to 0.
type market struct {
	closes []float64
	err    error
}

func falling() *market {
	closes := make([]float64, 250)
	for i := range closes {
		closes[i] = 400 - float64(i)
	}
	return &market{closes: closes}
}

func (m *market) CurrentPrice(context.Context, string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.closes[len(m.closes)-1], nil
}

func (m *market) Klines(_ context.Context, _ string, _ model.KlineInterval, limit int) ([]model.Candle, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]model.Candle, 0, limit)
	start := testNow.Add(-time.Duration(len(m.closes)) * 5 * time.Minute)
	for i, c := range m.closes {
		open := start.Add(time.Duration(i) * 5 * time.Minute)
		out = append(out, model.Candle{OpenTime: open, CloseTime: open.Add(5 * time.Minute), Open: c, High: c, Low: c, Close: c})
	}
	return out, nil
}

type recorder struct {
	mu     sync.Mutex
	alerts []notification.Alert
	events map[string][]any
}

func (r *recorder) Send(_ context.Context, a notification.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recorder) Publish(channel string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string][]any)
	}
	r.events[channel] = append(r.events[channel], v)
	return nil
}

func (r *recorder) titles() []string {
	out := make([]string, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Title
	}
	return out
}

type fixture struct {
	store  *memory.Store
	paper  *exchange.Paper
	rec    *recorder
	health *metrics.HealthStatus
	runner *Runner
}

func newFixture(t *testing.T, m *market, opts ...RunnerOption) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		paper:  exchange.NewPaper(m, map[string]float64{"USDT": 1000}, 0, quietLogger()),
		rec:    &recorder{},
		health: metrics.NewHealthStatus(),
	}
	orch := execution.NewOrchestrator(f.paper, f.store, quietLogger(),
		execution.WithClock(func() time.Time { return testNow }))
	defaults := model.DefaultBotConfig("BTCUSDT", model.StrategyRSI, 100)
	opts = append([]RunnerOption{
		WithNotifier(f.rec), WithPublisher(f.rec), WithHealth(f.health),
		WithRunnerClock(func() time.Time { return testNow }),
	}, opts...)
	f.runner = NewRunner(orch, f.paper, f.store, defaults, strategy.DefaultConfig(model.StrategyRSI), quietLogger(), opts...)
	return f
}

func TestRunOnce_DisabledSkips(t *testing.T) {
	f := newFixture(t, falling())

	res, err := f.runner.RunOnce(context.Background(), Params{})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Nil(t, res)

	cfg, err := f.store.LoadBotConfig(context.Background())
	require.NoError(t, err, "defaults are persisted on first load")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
}

func TestRunOnce_ForcedTradeNotifiesAndRecords(t *testing.T) {
	f := newFixture(t, falling(), WithLowBalanceAlert(950))
	ctx := context.Background()

	res, err := f.runner.RunOnce(ctx, Params{Force: true})
	require.NoError(t, err)
	require.True(t, res.Executed())
	assert.Equal(t, model.SignalBuy, res.Signal)
	assert.True(t, res.Persisted)

	assert.Equal(t, []string{"Trade executed", "Low balance"}, f.rec.titles())
	require.Len(t, f.rec.events["result"], 1)
	assert.Equal(t, "trade", f.health.LastOutcome)

	cfg, err := f.store.LoadBotConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg.LastExecution)
	assert.Equal(t, model.SignalBuy, cfg.LastSignal)
	assert.False(t, cfg.Enabled, "forcing does not enable the bot")

	trades, err := f.store.OpenPositions(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestRunOnce_EnabledDryRun(t *testing.T) {
	f := newFixture(t, falling())
	ctx := context.Background()
	_, err := SetEnabled(ctx, f.store, model.DefaultBotConfig("BTCUSDT", model.StrategyRSI, 100), true, testNow)
	require.NoError(t, err)

	res, err := f.runner.RunOnce(ctx, Params{DryRun: true})
	require.NoError(t, err)
	assert.False(t, res.Executed())
	assert.Equal(t, "Dry-run mode: no real trade executed", res.Reason)
	assert.Empty(t, f.rec.alerts)
	assert.Len(t, f.rec.events["result"], 1)

	cfg, _ := f.store.LoadBotConfig(ctx)
	assert.Nil(t, cfg.LastExecution, "dry runs are not recorded")
}

func TestRunOnce_ParamsOverrideStoredConfig(t *testing.T) {
	f := newFixture(t, falling())
	ma := strategy.DefaultConfig(model.StrategyMovingAverage)

	res, err := f.runner.RunOnce(context.Background(), Params{Symbol: "ETHUSDT", Strategy: &ma, Amount: 50, DryRun: true, Force: true})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", res.Symbol)
	assert.Equal(t, model.StrategyMovingAverage, res.Config.Kind)
}

type busyLocker struct{}

var errBusy = errors.New("busy")

func (busyLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return nil, errBusy
}

type countingLocker struct{ acquired, released int }

func (l *countingLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	l.acquired++
	return func(context.Context) error { l.released++; return nil }, nil
}

func TestRunOnce_Locking(t *testing.T) {
	f := newFixture(t, falling(), WithLocker(busyLocker{}))
	_, err := f.runner.RunOnce(context.Background(), Params{Force: true})
	assert.ErrorIs(t, err, errBusy)
	assert.Empty(t, f.rec.alerts)

	l := &countingLocker{}
	f = newFixture(t, falling(), WithLocker(l))
	_, err = f.runner.RunOnce(context.Background(), Params{Force: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, l.acquired)
	assert.Equal(t, 1, l.released)
}

func TestRunOnce_FailureSendsCriticalAlert(t *testing.T) {
	m := falling()
	m.err = errors.New("connection reset")
	f := newFixture(t, m)

	_, err := f.runner.RunOnce(context.Background(), Params{Force: true})
	require.Error(t, err)
	assert.Equal(t, []string{"Critical error"}, f.rec.titles())
	assert.Len(t, f.rec.events["error"], 1)
	assert.False(t, f.health.ExchangeOK)
	assert.Equal(t, "error", f.health.LastOutcome)
}

// ────────────────────────────────────────────────────────────
// Control
// ────────────────────────────────────────────────────────────

func TestSetEnabled_Toggle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defaults := model.DefaultBotConfig("BTCUSDT", model.StrategyCombined, 20)

	cfg, err := SetEnabled(ctx, store, defaults, true, testNow)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, model.StrategyCombined, cfg.Strategy)

	cfg, err = SetEnabled(ctx, store, defaults, false, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, testNow.Add(time.Hour), cfg.UpdatedAt)
}

func TestVerifyOTP(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"

	code, err := totp.GenerateCode(secret, testNow)
	require.NoError(t, err)

	assert.NoError(t, VerifyOTP(secret, code, testNow))
	assert.NoError(t, VerifyOTP(secret, code, testNow.Add(30*time.Second)), "one step of skew")
	assert.ErrorIs(t, VerifyOTP(secret, code, testNow.Add(5*time.Minute)), ErrInvalidOTP)
	assert.ErrorIs(t, VerifyOTP(secret, "", testNow), ErrInvalidOTP)
	assert.NoError(t, VerifyOTP("", "", testNow), "no secret, no check")
}

// ────────────────────────────────────────────────────────────
// Daily report
// ────────────────────────────────────────────────────────────

func TestReportJob_RunArchivesAndSends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, falling())
	_, err := f.runner.RunOnce(ctx, Params{Force: true})
	require.NoError(t, err)

	engine := portfolio.NewEngine(f.store, nil, quietLogger())
	reporter := portfolio.NewReporter(f.paper, f.store, f.store, engine, quietLogger())
	rec := &recorder{}
	job := NewReportJob(reporter, rec, rec, "USDT", quietLogger())

	report, err := job.Run(ctx, testNow, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.TotalTrades)
	assert.Empty(t, rec.alerts, "dry run sends nothing")
	_, err = f.store.FindReport(ctx, testNow)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = job.Run(ctx, testNow, false)
	require.NoError(t, err)
	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "Daily report 02/05/2024", rec.alerts[0].Title)
	assert.Len(t, rec.events["report"], 1)

	stored, err := f.store.FindReport(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TradesCount)
}

func TestReportJob_DryRunKeepsLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, falling())
	for _, tr := range []model.Trade{
		{ID: "b1", OrderID: "1", Symbol: "BTCUSDT", Side: model.SideBuy, Type: model.OrderTypeMarket,
			Status: model.StatusFilled, Quantity: 1, Price: 100, QuoteQuantity: 100,
			CreatedAt: testNow.Add(-2 * time.Hour), UpdatedAt: testNow.Add(-2 * time.Hour)},
		{ID: "s1", OrderID: "2", Symbol: "BTCUSDT", Side: model.SideSell, Type: model.OrderTypeMarket,
			Status: model.StatusFilled, Quantity: 1, Price: 110, QuoteQuantity: 110,
			CreatedAt: testNow.Add(-time.Hour), UpdatedAt: testNow.Add(-time.Hour)},
	} {
		require.NoError(t, f.store.Create(ctx, tr))
	}

	engine := portfolio.NewEngine(f.store, nil, quietLogger())
	reporter := portfolio.NewReporter(f.paper, f.store, f.store, engine, quietLogger())
	job := NewReportJob(reporter, f.rec, f.rec, "USDT", quietLogger())

	report, err := job.Run(ctx, testNow, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.WinningTrades)

	sell, err := f.store.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sell.RelatedTradeID, "dry run writes no match")
	assert.Nil(t, sell.PnL)
}

type brokenLedger struct{ *memory.Store }

func (brokenLedger) FindByDateRange(context.Context, time.Time, time.Time) ([]model.Trade, error) {
	return nil, errors.New("disk I/O error")
}

type downNotifier struct{}

func (downNotifier) Send(context.Context, notification.Alert) error {
	return errors.New("telegram: status 502")
}

func TestReportJob_FailedAlertIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	f := newFixture(t, falling())
	ledger := brokenLedger{f.store}
	reporter := portfolio.NewReporter(f.paper, ledger, f.store, portfolio.NewEngine(ledger, nil, logger), logger)
	job := NewReportJob(reporter, downNotifier{}, nil, "USDT", logger)

	_, err := job.Run(context.Background(), testNow, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Contains(t, buf.String(), "alert delivery failed")
	assert.Contains(t, buf.String(), "status 502")
}
