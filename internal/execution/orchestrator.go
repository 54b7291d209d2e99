package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spot-trader/internal/exchange"
	"spot-trader/internal/indicator"
	applog "spot-trader/internal/logger"
	"spot-trader/internal/metrics"
	"spot-trader/internal/model"
	"spot-trader/internal/strategy"
)

const (
	// DefaultKlineLimit covers the 200-period long MA plus a buffer.
	DefaultKlineLimit = 250
	DefaultInterval   = model.Interval5m
)

const (
	reasonHold   = "Signal %s: no action required"
	reasonDryRun = "Dry-run mode: no real trade executed"
)

// Orchestrator runs strategy passes against a Gateway and records the
// resulting trades. Passes for the same symbol must be serialized by the
// caller (cmd/bot takes a redis lock when one is configured).
type Orchestrator struct {
	gw         exchange.Gateway
	trades     model.TradeStore
	aggregator indicator.Aggregator
	limits     *Limits
	guard      *Guard
	interval   model.KlineInterval
	klineLimit int
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithInterval sets the candle interval used for indicators.
func WithInterval(i model.KlineInterval) Option {
	return func(o *Orchestrator) { o.interval = i }
}

// WithKlineLimit sets how many candles are fetched per pass.
func WithKlineLimit(n int) Option {
	return func(o *Orchestrator) { o.klineLimit = n }
}

// WithAggregator replaces the default 14/50/200 indicator periods.
func WithAggregator(a indicator.Aggregator) Option {
	return func(o *Orchestrator) { o.aggregator = a }
}

// WithLimits enables the safety limits.
func WithLimits(l Limits) Option {
	return func(o *Orchestrator) { o.limits = &l }
}

// WithMetrics records cycle, signal and order metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(gw exchange.Gateway, trades model.TradeStore, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		gw:         gw,
		trades:     trades,
		aggregator: indicator.NewAggregator(),
		interval:   DefaultInterval,
		klineLimit: DefaultKlineLimit,
		logger:     logger.With("component", "orchestrator"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.limits != nil {
		o.guard = NewGuard(*o.limits, o.trades, o.now)
	}
	return o
}

// Analyze evaluates the strategy without trading.
func (o *Orchestrator) Analyze(ctx context.Context, symbol string, cfg strategy.Config) (*Result, error) {
	return o.ExecuteStrategy(ctx, symbol, cfg, 0, true)
}

// HasOpenPosition reports whether the account holds any free base asset of symbol.
func (o *Orchestrator) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	balances, err := o.gw.Balances(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch balances: %w", err)
	}
	return balances.Free(exchange.BaseAsset(symbol)) > 0, nil
}

// ExecuteStrategy runs one pass. amount is the quote amount spent on a buy;
// sells always liquidate the full free base balance. Gateway failures that
// survive the retry policy are returned as errors and nothing is recorded.
func (o *Orchestrator) ExecuteStrategy(ctx context.Context, symbol string, cfg strategy.Config, amount float64, dryRun bool) (*Result, error) {
	start := o.now()
	res, err := o.run(ctx, symbol, cfg, amount, dryRun)

	outcome := "error"
	if err == nil {
		outcome = res.Outcome()
	}
	o.metrics.ObserveCycle(outcome, o.now().Sub(start))
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, symbol string, cfg strategy.Config, amount float64, dryRun bool) (*Result, error) {
	log := o.logger.With(applog.LogWithTrace(ctx)...).With("symbol", symbol, "strategy", string(cfg.Kind))

	if !dryRun && amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %v", amount)
	}
	eval, err := strategy.New(cfg, o.logger)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Symbol:   symbol,
		Strategy: eval.Name(),
		Config:   cfg,
		DryRun:   dryRun,
		At:       o.now(),
	}
	log.Info("strategy execution started", "amount", amount, "dry_run", dryRun, "stage", StageIdle.String())

	fail := func(stage string, err error) (*Result, error) {
		log.Error("strategy execution failed", "stage", StageFailed.String(), "during", stage, "error", err)
		return nil, fmt.Errorf("%s %s: %w", stage, symbol, err)
	}

	price, err := o.gw.CurrentPrice(ctx, symbol)
	if err != nil {
		return fail("fetch price", err)
	}
	res.Price = price
	log.Debug("current price fetched", "stage", StagePriceFetched.String(), "price", price)

	candles, err := o.gw.Klines(ctx, symbol, o.interval, o.klineLimit)
	if err != nil {
		return fail("fetch klines", err)
	}
	res.Snapshot = o.aggregator.FromCandles(candles).WithCurrentPrice(price)
	log.Debug("indicators computed", "stage", StageIndicatorsComputed.String(),
		"candles", len(candles), "rsi", res.Snapshot.RSI, "trend", res.Snapshot.Trend)

	res.Signal = eval.Analyze(res.Snapshot, price)
	o.metrics.ObserveSignal(string(res.Signal))
	log.Info("strategy analysis completed", "stage", StageSignalDetermined.String(), "signal", res.Signal)

	side, actionable := res.Signal.Side()
	switch {
	case !actionable:
		return o.done(log, res.noTrade(fmt.Sprintf(reasonHold, res.Signal))), nil
	case dryRun:
		return o.done(log, res.noTrade(reasonDryRun)), nil
	}

	if o.guard != nil {
		ok, reason, err := o.guard.CanTrade(ctx, symbol, side, amount)
		if err != nil {
			return fail("check limits", err)
		}
		if !ok {
			return o.done(log, res.noTrade(reason)), nil
		}
	}

	balances, err := o.gw.Balances(ctx)
	if err != nil {
		return fail("fetch balances", err)
	}

	var order *model.OrderResult
	if side == model.SideBuy {
		order, err = o.buy(ctx, log, symbol, amount, balances)
	} else {
		order, err = o.sell(ctx, log, symbol, balances)
	}

	var insufficient *InsufficientBalanceError
	var limited *limitError
	switch {
	case errors.As(err, &insufficient):
		log.Warn("trade skipped: insufficient balance", "asset", insufficient.Asset,
			"required", insufficient.Required, "available", insufficient.Available)
		return o.done(log, res.noTrade("Insufficient balance: "+insufficient.Error())), nil
	case errors.As(err, &limited):
		return o.done(log, res.noTrade(limited.reason)), nil
	case err != nil:
		return fail("submit order", err)
	}

	o.metrics.ObserveOrder(string(order.Side), string(order.Status))
	log.Info("trade executed", "stage", StageOrderSubmitted.String(),
		"order_id", order.OrderID, "side", order.Side, "status", order.Status,
		"quantity", order.Quantity, "price", order.Price)

	trade := model.NewTrade(order, eval.Name(), o.now())
	if err := o.trades.Create(ctx, trade); err != nil {
		// The order is already live on the exchange; never hide it.
		o.metrics.IncPersistenceFailure()
		log.Error("trade executed but not recorded", "trade_id", trade.ID, "order_id", trade.OrderID, "error", err)
	} else {
		res.Persisted = true
		log.Info("trade recorded", "stage", StageTradeRecorded.String(), "trade_id", trade.ID)
	}
	return o.done(log, res.withTrade(trade)), nil
}

func (o *Orchestrator) buy(ctx context.Context, log *slog.Logger, symbol string, amount float64, balances model.Balances) (*model.OrderResult, error) {
	quote := exchange.QuoteAsset(symbol)
	free := balances.Free(quote)
	if free < amount {
		return nil, &InsufficientBalanceError{Asset: quote, Required: amount, Available: free}
	}
	if o.guard != nil {
		if ok, reason := o.guard.CheckReserve(free, amount); !ok {
			return nil, &limitError{reason: reason}
		}
	}
	log.Debug("balance checked", "stage", StageBalanceChecked.String(), "asset", quote, "free", free)
	return o.gw.MarketBuy(ctx, symbol, amount)
}

func (o *Orchestrator) sell(ctx context.Context, log *slog.Logger, symbol string, balances model.Balances) (*model.OrderResult, error) {
	base := exchange.BaseAsset(symbol)
	free := balances.Free(base)
	if free <= 0 {
		return nil, &InsufficientBalanceError{Asset: base, Available: free}
	}
	log.Debug("balance checked", "stage", StageBalanceChecked.String(), "asset", base, "free", free)
	return o.gw.MarketSell(ctx, symbol, free)
}

func (o *Orchestrator) done(log *slog.Logger, res *Result) *Result {
	if res.Executed() {
		log.Info("strategy execution finished", "stage", StageDone.String(), "trade_id", res.Trade.ID)
	} else {
		log.Info("no trade executed", "stage", StageDone.String(), "signal", res.Signal, "reason", res.Reason)
	}
	return res
}

// limitError carries a safety limit violation found after balances were read.
type limitError struct{ reason string }

func (e *limitError) Error() string { return e.reason }
