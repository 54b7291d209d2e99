package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spot-trader/config"
	"spot-trader/internal/api"
	"spot-trader/internal/app"
	"spot-trader/internal/bot"
	"spot-trader/internal/execution"
	applog "spot-trader/internal/logger"
	"spot-trader/internal/metrics"
	"spot-trader/internal/model"
	"spot-trader/internal/portfolio"
	"spot-trader/internal/strategy"
	"spot-trader/internal/stream"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup always runs.
func run() int {
	var (
		configPath = flag.String("config", "", "optional YAML config file")
		dryRun     = flag.Bool("dry-run", false, "analyze only, never place orders")
		force      = flag.Bool("force", false, "run even when the bot is disabled")
		symbol     = flag.String("symbol", "", "trading pair, e.g. BTCUSDT (default from bot config)")
		strat      = flag.String("strategy", "", "rsi, ma or combined (default from bot config)")
		amount     = flag.Float64("amount", 0, "quote amount per buy (default from bot config)")
		paper      = flag.Bool("paper", false, "simulate fills against live prices")
		memory     = flag.Bool("memory", false, "keep the ledger in memory")
		interval   = flag.Duration("interval", 0, "repeat every interval; 0 runs one pass")
	)
	flag.Parse()

	if *paper {
		os.Setenv("BOT_PAPER", "true")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger := applog.Init("bot", applog.ParseLevel(cfg.LogLevel))

	stratCfg, err := cfg.StrategyConfig()
	if err != nil {
		logger.Error("invalid strategy config", "error", err)
		return 2
	}
	var override *strategy.Config
	if *strat != "" {
		kind, err := model.ParseStrategyKind(*strat)
		if err != nil {
			logger.Error("invalid -strategy", "error", err)
			return 2
		}
		sc := stratCfg
		sc.Kind = kind
		override = &sc
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.NewMetrics(nil)
	deps, err := app.Build(ctx, cfg, m, logger, app.Options{MemoryStore: *memory})
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer deps.Close()

	orch := execution.NewOrchestrator(deps.Gateway, deps.Store, logger,
		execution.WithInterval(cfg.Bot.Interval),
		execution.WithKlineLimit(cfg.Bot.KlineLimit),
		execution.WithLimits(cfg.Limits),
		execution.WithMetrics(m),
	)

	opts := []bot.RunnerOption{
		bot.WithNotifier(deps.Notify),
		bot.WithHealth(deps.Health),
		bot.WithLowBalanceAlert(cfg.Notify.LowBalanceThreshold),
	}
	if l := deps.Locker(); l != nil {
		opts = append(opts, bot.WithLocker(l))
	}

	var hub *stream.Hub
	var srv *metrics.Server
	if *interval > 0 && cfg.MetricsAddr != "" {
		hub = stream.NewHub(stream.DefaultReplaySize, m, logger)
		opts = append(opts, bot.WithPublisher(hub))
		srv = metrics.NewServer(cfg.MetricsAddr, deps.Health, logger)
		srv.Handle("/ws", hub)
		engine := portfolio.NewEngine(deps.Store, m, logger)
		srv.Handle("/api/", api.NewRouter(api.Handlers{
			Positions: portfolio.NewReporter(deps.Gateway, deps.Store, deps.Store, engine, logger),
			PnL:       engine,
			Limits:    execution.NewGuard(cfg.Limits, deps.Store, time.Now),
			Symbol:    cfg.Bot.Symbol,
			Location:  cfg.Location(),
		}, logger))
		srv.Start()
		deps.StartLiveness(ctx, 15*time.Second)
	}

	defaults := model.DefaultBotConfig(cfg.Bot.Symbol, stratCfg.Kind, cfg.Bot.Amount)
	runner := bot.NewRunner(orch, deps.Gateway, deps.Store, defaults, stratCfg, logger, opts...)
	params := bot.Params{
		Symbol:   *symbol,
		Strategy: override,
		Amount:   *amount,
		DryRun:   *dryRun,
		Force:    *force,
	}

	if *interval > 0 {
		logger.Info("bot loop started", "interval", interval.String())
		runner.Loop(ctx, *interval, params)
		if srv != nil {
			hub.Close()
			shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Stop(shutdown)
		}
		return 0
	}

	res, err := runner.RunOnce(ctx, params)
	if err != nil {
		if !errors.Is(err, bot.ErrDisabled) {
			logger.Error("pass failed", "error", err)
		}
		return exitCode(err)
	}
	if res.Executed() {
		logger.Info("trade executed", "symbol", res.Symbol, "side", res.Trade.Side,
			"quantity", res.Trade.Quantity, "price", res.Trade.Price, "persisted", res.Persisted)
		return 0
	}
	logger.Info("no trade", "symbol", res.Symbol, "signal", res.Signal, "reason", res.Reason)
	return 0
}

// exitCode maps a one-shot pass error to the process exit code. A disabled
// bot is not a failure.
func exitCode(err error) int {
	if err == nil || errors.Is(err, bot.ErrDisabled) {
		return 0
	}
	return 1
}
