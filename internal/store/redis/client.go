// Package redis holds the Redis-backed kline cache and the per-symbol
// trading lock. Both are optional: the bot runs without Redis.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if logger != nil {
		logger.Info("connected", "component", "redis", "addr", cfg.Addr)
	}
	return client, nil
}
