package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Cache is a key/value cache with expiry. Every call goes through a
// circuit breaker; while it is open calls fail fast with ErrCircuitOpen.
type Cache struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	prefix  string
}

// NewCache namespaces all keys under prefix (e.g. "spot-trader:").
func NewCache(client *goredis.Client, breaker *CircuitBreaker, prefix string) *Cache {
	return &Cache{client: client, breaker: breaker, prefix: prefix}
}

// Get returns the value and true, or false on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	found := false
	err := c.breaker.Execute(func() error {
		b, err := c.client.Get(ctx, c.prefix+key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		val, found = b, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, found, nil
}

// Set stores value under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.breaker.Execute(func() error {
		return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
