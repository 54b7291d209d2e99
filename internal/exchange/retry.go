package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spot-trader/internal/model"
)

// RetryPolicy retries retryable errors with a linear backoff:
// the wait after attempt n is BaseDelay*n.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy allows 3 attempts with 1s, then 2s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Backoff returns the wait after the given 1-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

// Sleeper waits between attempts. It returns early with ctx.Err() when the
// context is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper sleeps on a real timer.
var TimerSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

// RetryHook is notified before each wait. Used for metrics.
type RetryHook func(op string, attempt int, err error)

// Retry runs fn under the policy. Non-retryable errors return immediately;
// after the last attempt the last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, s Sleeper, logger *slog.Logger, hook RetryHook,
	op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := p.Backoff(attempt)
		logger.Warn("retrying exchange call",
			"op", op, "attempt", attempt, "max_attempts", attempts,
			"delay", delay, "error", err)
		if hook != nil {
			hook(op, attempt, err)
		}
		if err := s.Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("exchange %s: retry wait interrupted: %w", op, err)
		}
	}
	return zero, fmt.Errorf("exchange %s: giving up after %d attempts: %w", op, attempts, lastErr)
}

// Retrying applies a RetryPolicy to every call of the wrapped Gateway.
// Calls are retried serially; the same order is never in flight twice.
type Retrying struct {
	next    Gateway
	policy  RetryPolicy
	sleeper Sleeper
	logger  *slog.Logger
	hook    RetryHook
}

// RetryOption configures Retrying.
type RetryOption func(*Retrying)

// WithSleeper replaces the real timer, mainly for tests.
func WithSleeper(s Sleeper) RetryOption {
	return func(r *Retrying) { r.sleeper = s }
}

// WithRetryHook registers a hook called before every wait.
func WithRetryHook(h RetryHook) RetryOption {
	return func(r *Retrying) { r.hook = h }
}

// NewRetrying wraps next with policy.
func NewRetrying(next Gateway, policy RetryPolicy, logger *slog.Logger, opts ...RetryOption) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retrying{next: next, policy: policy, sleeper: TimerSleeper, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Retrying) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return Retry(ctx, r.policy, r.sleeper, r.logger, r.hook, "CurrentPrice",
		func(ctx context.Context) (float64, error) { return r.next.CurrentPrice(ctx, symbol) })
}

func (r *Retrying) Klines(ctx context.Context, symbol string, interval model.KlineInterval, limit int) ([]model.Candle, error) {
	return Retry(ctx, r.policy, r.sleeper, r.logger, r.hook, "Klines",
		func(ctx context.Context) ([]model.Candle, error) { return r.next.Klines(ctx, symbol, interval, limit) })
}

func (r *Retrying) Balances(ctx context.Context) (model.Balances, error) {
	return Retry(ctx, r.policy, r.sleeper, r.logger, r.hook, "Balances", r.next.Balances)
}

func (r *Retrying) MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (*model.OrderResult, error) {
	return Retry(ctx, r.policy, r.sleeper, r.logger, r.hook, "MarketBuy",
		func(ctx context.Context) (*model.OrderResult, error) { return r.next.MarketBuy(ctx, symbol, quoteAmount) })
}

func (r *Retrying) MarketSell(ctx context.Context, symbol string, quantity float64) (*model.OrderResult, error) {
	return Retry(ctx, r.policy, r.sleeper, r.logger, r.hook, "MarketSell",
		func(ctx context.Context) (*model.OrderResult, error) { return r.next.MarketSell(ctx, symbol, quantity) })
}

func (r *Retrying) LimitBuy(ctx context.Context, symbol string, quantity, price float64) (*model.OrderResult, error) {
	return Retry(ctx, r.policy, r.sleeper, r.logger, r.hook, "LimitBuy",
		func(ctx context.Context) (*model.OrderResult, error) { return r.next.LimitBuy(ctx, symbol, quantity, price) })
}

func (r *Retrying) LimitSell(ctx context.Context, symbol string, quantity, price float64) (*model.OrderResult, error) {
	return Retry(ctx, r.policy, r.sleeper, r.logger, r.hook, "LimitSell",
		func(ctx context.Context) (*model.OrderResult, error) { return r.next.LimitSell(ctx, symbol, quantity, price) })
}

func (r *Retrying) Order(ctx context.Context, symbol, orderID string) (*model.OrderResult, error) {
	return Retry(ctx, r.policy, r.sleeper, r.logger, r.hook, "Order",
		func(ctx context.Context) (*model.OrderResult, error) { return r.next.Order(ctx, symbol, orderID) })
}

func (r *Retrying) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := Retry(ctx, r.policy, r.sleeper, r.logger, r.hook, "CancelOrder",
		func(ctx context.Context) (struct{}, error) { return struct{}{}, r.next.CancelOrder(ctx, symbol, orderID) })
	return err
}
