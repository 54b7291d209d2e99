// Package app assembles the runtime dependency graph from a Config. The
// binaries under cmd/ share it so that every entry point wires storage,
// the gateway stack and notifications the same way.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"spot-trader/config"
	"spot-trader/internal/exchange"
	"spot-trader/internal/metrics"
	"spot-trader/internal/model"
	"spot-trader/internal/notification"
	"spot-trader/internal/store/memory"
	"spot-trader/internal/store/redis"
	"spot-trader/internal/store/sqlite"
)

// Store is everything the binaries persist.
type Store interface {
	model.TradeStore
	model.ReportStore
	model.BotConfigStore
}

// Deps holds the shared runtime components. Close releases them.
type Deps struct {
	Config  *config.Config
	Store   Store
	SQLite  *sqlite.Store // nil for in-memory runs
	Redis   *goredis.Client
	Gateway exchange.Gateway
	Paper   *exchange.Paper // set in paper mode
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	Notify  *notification.Multi
	Logger  *slog.Logger
}

// Options tweak what Build wires.
type Options struct {
	// MemoryStore keeps the ledger in memory instead of SQLite.
	MemoryStore bool
	// SkipGateway leaves Gateway nil, for tools that only touch storage.
	SkipGateway bool
}

// Build connects storage and constructs the gateway stack:
// Binance or Paper, wrapped in retries, wrapped in the Redis kline cache.
// Redis is optional; a connection failure is logged and the bot runs
// without cache and lock.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger, opts Options) (*Deps, error) {
	d := &Deps{
		Config:  cfg,
		Metrics: m,
		Health:  metrics.NewHealthStatus(),
		Logger:  logger,
	}

	if opts.MemoryStore {
		d.Store = memory.New()
		d.Health.SetSQLiteOK(true)
	} else {
		st, err := sqlite.Open(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
		d.SQLite = st
		d.Store = st
		d.Health.SetSQLiteOK(true)
	}

	if cfg.RedisEnabled() {
		d.Health.SetRedisEnabled(true)
		rdb, err := redis.Connect(ctx, redis.Config{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache and lock", "error", err)
		} else {
			d.Redis = rdb
		}
	}

	d.Notify = notification.NewMulti(logger, notifiers(cfg, logger)...)

	if !opts.SkipGateway {
		d.Gateway = d.gateway(cfg, logger)
	}
	return d, nil
}

func (d *Deps) gateway(cfg *config.Config, logger *slog.Logger) exchange.Gateway {
	var gw exchange.Gateway
	if cfg.Exchange.Paper {
		market := exchange.NewBinance("", "", cfg.Exchange.Testnet, logger)
		quote := exchange.QuoteAsset(cfg.Bot.Symbol)
		d.Paper = exchange.NewPaper(market, map[string]float64{quote: cfg.Exchange.PaperQuote}, cfg.Exchange.SlippageBps, logger)
		gw = d.Paper
		logger.Info("paper trading enabled", "quote", quote, "balance", cfg.Exchange.PaperQuote)
	} else {
		gw = exchange.NewBinance(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.Testnet, logger)
	}

	gw = exchange.NewRetrying(gw, cfg.RetryPolicy(), logger, exchange.WithRetryHook(d.Metrics.ObserveRetry))

	if d.Redis != nil && cfg.Storage.KlineCacheTTL > 0 {
		breaker := redis.NewCircuitBreaker(5, 10*time.Second)
		breaker.OnStateChange = func(from, to redis.State) {
			d.Metrics.ObserveBreaker(int(to))
			logger.Warn("redis circuit breaker transition", "from", from, "to", to)
		}
		cache := redis.NewCache(d.Redis, breaker, "spottrader:")
		gw = exchange.NewCached(gw, cache, cfg.Storage.KlineCacheTTL, logger, d.Metrics.ObserveCache)
	}
	return gw
}

// Locker returns the Redis symbol lock, or nil without Redis.
func (d *Deps) Locker() *redis.Locker {
	if d.Redis == nil {
		return nil
	}
	return redis.NewLocker(d.Redis, "spottrader:", d.Config.Storage.LockTTL)
}

// StartLiveness probes SQLite and Redis in the background until ctx ends.
func (d *Deps) StartLiveness(ctx context.Context, interval time.Duration) {
	if d.SQLite == nil {
		return
	}
	d.Health.StartLivenessChecker(ctx, d.Redis, d.SQLite.DB(), interval)
}

// Close releases storage connections.
func (d *Deps) Close() {
	if d.Redis != nil {
		d.Redis.Close()
	}
	if d.SQLite != nil {
		d.SQLite.Close()
	}
}

func notifiers(cfg *config.Config, logger *slog.Logger) []notification.Notifier {
	out := []notification.Notifier{notification.NewLogNotifier(logger)}
	if cfg.Notify.TelegramToken != "" {
		out = append(out, notification.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, logger))
	}
	if cfg.Notify.WebhookURL != "" {
		out = append(out, notification.NewWebhookNotifier(cfg.Notify.WebhookURL, logger))
	}
	return out
}
