package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock held by another process")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out expiring mutual-exclusion locks, used to keep two bot
// instances from trading the same symbol in the same cycle.
type Locker struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewLocker creates locks under prefix that expire after ttl if never released.
func NewLocker(client *goredis.Client, prefix string, ttl time.Duration) *Locker {
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire takes the lock for name. The returned release func is safe to
// call once the lock may already have expired.
func (l *Locker) Acquire(ctx context.Context, name string) (release func(context.Context) error, err error) {
	key := l.prefix + "lock:" + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis lock %s: %w", name, ErrLocked)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("redis unlock %s: %w", name, err)
		}
		return nil
	}, nil
}
