package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"spot-trader/internal/model"
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value and true, or false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cached wraps a Gateway and serves klines from a Cache. Prices, balances
// and orders always go to the wrapped gateway. Cache failures are logged
// and the call falls through.
type Cached struct {
	Gateway
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	observe func(hit bool)
}

// NewCached caches klines for ttl. observe may be nil.
func NewCached(next Gateway, cache Cache, ttl time.Duration, logger *slog.Logger, observe func(hit bool)) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	if observe == nil {
		observe = func(bool) {}
	}
	return &Cached{Gateway: next, cache: cache, ttl: ttl, logger: logger, observe: observe}
}

// KlinesKey is the cache key for a klines request.
func KlinesKey(symbol string, interval model.KlineInterval, limit int) string {
	return fmt.Sprintf("klines:%s:%s:%d", symbol, interval, limit)
}

func (c *Cached) Klines(ctx context.Context, symbol string, interval model.KlineInterval, limit int) ([]model.Candle, error) {
	key := KlinesKey(symbol, interval, limit)

	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("kline cache read failed", "key", key, "error", err)
	} else if ok {
		var candles []model.Candle
		if err := json.Unmarshal(raw, &candles); err == nil {
			c.observe(true)
			return candles, nil
		}
		c.logger.Warn("kline cache entry corrupt", "key", key)
	}
	c.observe(false)

	candles, err := c.Gateway.Klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(candles); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("kline cache write failed", "key", key, "error", err)
		}
	}
	return candles, nil
}
