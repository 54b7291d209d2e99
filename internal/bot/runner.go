// Package bot drives scheduled trading: one guarded pass per invocation,
// the daily report job, and the operator on/off switch.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spot-trader/internal/exchange"
	"spot-trader/internal/execution"
	applog "spot-trader/internal/logger"
	"spot-trader/internal/metrics"
	"spot-trader/internal/model"
	"spot-trader/internal/notification"
	"spot-trader/internal/strategy"
	"spot-trader/internal/stream"
)

// ErrDisabled is returned by RunOnce when the bot is switched off and the
// pass was not forced.
var ErrDisabled = errors.New("bot is disabled")

// Locker serializes passes on a symbol across processes.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(context.Context) error, err error)
}

// Publisher pushes events to live subscribers.
type Publisher interface {
	Publish(channel string, v any) error
}

// Params selects what a pass trades. Zero values fall back to the
// persisted bot configuration.
type Params struct {
	Symbol   string
	Strategy *strategy.Config
	Amount   float64
	DryRun   bool
	Force    bool
}

// Runner executes one guarded pass: enabled check, lock, strategy
// execution, notifications and bookkeeping.
type Runner struct {
	orch     *execution.Orchestrator
	gw       exchange.Gateway
	configs  model.BotConfigStore
	defaults model.BotConfig
	stratCfg strategy.Config

	notifier   notification.Notifier
	locker     Locker
	publisher  Publisher
	health     *metrics.HealthStatus
	lowBalance float64

	logger *slog.Logger
	now    func() time.Time
}

// RunnerOption configures optional collaborators.
type RunnerOption func(*Runner)

// WithNotifier sets the alert sink.
func WithNotifier(n notification.Notifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

// WithLocker enables cross-process locking.
func WithLocker(l Locker) RunnerOption {
	return func(r *Runner) { r.locker = l }
}

// WithPublisher streams results to subscribers.
func WithPublisher(p Publisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

// WithHealth records pass outcomes for /healthz.
func WithHealth(h *metrics.HealthStatus) RunnerOption {
	return func(r *Runner) { r.health = h }
}

// WithLowBalanceAlert warns when the free quote balance drops under threshold.
func WithLowBalanceAlert(threshold float64) RunnerOption {
	return func(r *Runner) { r.lowBalance = threshold }
}

// WithRunnerClock overrides the time source.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner. defaults seeds the bot configuration the
// first time it is loaded; stratCfg supplies RSI thresholds for passes
// that do not override the strategy.
func NewRunner(orch *execution.Orchestrator, gw exchange.Gateway, configs model.BotConfigStore,
	defaults model.BotConfig, stratCfg strategy.Config, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		orch:     orch,
		gw:       gw,
		configs:  configs,
		defaults: defaults,
		stratCfg: stratCfg,
		notifier: notification.NewLogNotifier(logger),
		logger:   logger.With("component", "bot"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// LoadConfig returns the persisted bot configuration, creating it from the
// defaults when none exists yet.
func (r *Runner) LoadConfig(ctx context.Context) (model.BotConfig, error) {
	return LoadOrInit(ctx, r.configs, r.defaults, r.now())
}

// RunOnce performs a single pass. It returns ErrDisabled when the bot is
// off and p.Force is false, and wraps the Locker's error when another
// process holds the symbol.
func (r *Runner) RunOnce(ctx context.Context, p Params) (*execution.Result, error) {
	cfg, err := r.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled && !p.Force {
		r.logger.Info("bot disabled, skipping pass (use -force to override)")
		return nil, ErrDisabled
	}

	symbol := p.Symbol
	if symbol == "" {
		symbol = cfg.Symbol
	}
	amount := p.Amount
	if amount == 0 {
		amount = cfg.Amount
	}
	sc := r.stratCfg
	if p.Strategy != nil {
		sc = *p.Strategy
	} else if cfg.Strategy != "" {
		sc.Kind = cfg.Strategy
	}

	ctx = applog.WithTraceID(ctx, applog.GenerateTraceID(symbol, r.now()))
	log := r.logger.With(applog.LogWithTrace(ctx)...)

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", symbol, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release lock failed", "symbol", symbol, "error", err)
			}
		}()
	}

	log.Info("starting pass", "symbol", symbol, "strategy", sc.Kind, "amount", amount, "dry_run", p.DryRun, "forced", p.Force && !cfg.Enabled)
	res, err := r.orch.ExecuteStrategy(ctx, symbol, sc, amount, p.DryRun)
	if err != nil {
		r.health.RecordCycle("error", r.now())
		r.alert(ctx, notification.CriticalError("bot.run", err, r.now()))
		r.publish(stream.ChannelError, map[string]string{"symbol": symbol, "error": err.Error()})
		return nil, err
	}
	r.health.RecordCycle(res.Outcome(), r.now())
	r.publish(stream.ChannelResult, res)

	if res.Executed() {
		r.alert(ctx, notification.TradeExecuted(*res.Trade, res.Persisted, r.now()))
	}
	if !p.DryRun {
		r.recordExecution(ctx, cfg, res)
		r.checkBalance(ctx, symbol)
	}
	return res, nil
}

// Loop runs a pass every interval until ctx is done. Pass errors are
// logged and the loop continues.
func (r *Runner) Loop(ctx context.Context, interval time.Duration, p Params) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx, p); err != nil && !errors.Is(err, ErrDisabled) {
			r.logger.Error("pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) recordExecution(ctx context.Context, cfg model.BotConfig, res *execution.Result) {
	at := res.At
	cfg.LastExecution = &at
	cfg.LastSignal = res.Signal
	cfg.UpdatedAt = r.now()
	if err := r.configs.SaveBotConfig(ctx, cfg); err != nil {
		r.logger.Warn("failed to record last execution", "error", err)
	}
}

func (r *Runner) checkBalance(ctx context.Context, symbol string) {
	if r.lowBalance <= 0 {
		return
	}
	balances, err := r.gw.Balances(ctx)
	if err != nil {
		r.logger.Warn("balance check failed", "error", err)
		return
	}
	quote := exchange.QuoteAsset(symbol)
	if free := balances.Free(quote); free < r.lowBalance {
		r.alert(ctx, notification.LowBalance(quote, free, r.lowBalance, r.now()))
	}
}

func (r *Runner) alert(ctx context.Context, a notification.Alert) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Send(ctx, a); err != nil {
		r.logger.Warn("notification failed", "title", a.Title, "error", err)
	}
}

func (r *Runner) publish(channel string, v any) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(channel, v); err != nil {
		r.logger.Warn("stream publish failed", "channel", channel, "error", err)
	}
}
