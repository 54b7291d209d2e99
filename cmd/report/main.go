package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spot-trader/config"
	"spot-trader/internal/app"
	"spot-trader/internal/bot"
	"spot-trader/internal/exchange"
	applog "spot-trader/internal/logger"
	"spot-trader/internal/metrics"
	"spot-trader/internal/model"
	"spot-trader/internal/portfolio"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "optional YAML config file")
		date       = flag.String("date", "", "report day as YYYY-MM-DD (default yesterday)")
		dryRun     = flag.Bool("dry-run", false, "log the report without sending or archiving it")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger := applog.Init("report", applog.ParseLevel(cfg.LogLevel))

	day, err := reportDay(*date, time.Now().In(cfg.Location()))
	if err != nil {
		logger.Error("invalid -date", "error", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.NewMetrics(nil)
	deps, err := app.Build(ctx, cfg, m, logger, app.Options{})
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer deps.Close()

	engine := portfolio.NewEngine(deps.Store, m, logger)
	reporter := portfolio.NewReporter(deps.Gateway, deps.Store, deps.Store, engine, logger)
	job := bot.NewReportJob(reporter, deps.Notify, nil, exchange.QuoteAsset(cfg.Bot.Symbol), logger)

	if _, err := job.Run(ctx, day, *dryRun); err != nil {
		logger.Error("daily report failed", "error", err)
		return 1
	}
	return 0
}

// reportDay parses s in now's location; an empty s means the day before now.
func reportDay(s string, now time.Time) (time.Time, error) {
	if s == "" {
		y, m, d := now.AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	}
	return time.ParseInLocation(model.DateLayout, s, now.Location())
}
