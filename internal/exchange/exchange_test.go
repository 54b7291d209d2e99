package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-trader/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSleeper records requested waits without sleeping.
type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

// stubGateway returns scripted errors from CurrentPrice and records calls.
type stubGateway struct {
	Gateway
	mu     sync.Mutex
	errs   []error
	price  float64
	calls  int
	klines []model.Candle
}

func (g *stubGateway) CurrentPrice(_ context.Context, _ string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return g.price, nil
}

func (g *stubGateway) Klines(_ context.Context, _ string, _ model.KlineInterval, _ int) ([]model.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.klines, nil
}

// ────────────────────────────────────────────────────────────
// Error classification
// ────────────────────────────────────────────────────────────

func TestClassify_APIError(t *testing.T) {
	for code, want := range map[int64]bool{
		-1000: true, -1001: true, -1003: true, -1007: true,
		-1013: false, -2010: false, -1121: false,
	} {
		err := Classify("op", &common.APIError{Code: code, Message: "m"})
		assert.Equal(t, want, IsRetryable(err), "code %d", code)

		var ee *Error
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, code, ee.Code)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify_Transport(t *testing.T) {
	assert.True(t, IsRetryable(Classify("op", timeoutErr{})))
	assert.True(t, IsRetryable(Classify("op", fmt.Errorf("read: %w", io.ErrUnexpectedEOF))))
	assert.True(t, IsRetryable(Classify("op", errors.New("read tcp: connection reset by peer"))))
	assert.False(t, IsRetryable(Classify("op", errors.New("json: cannot unmarshal"))))
	assert.Nil(t, Classify("op", nil))
}

func TestIsRetryable_UnclassifiedIsPermanent(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", NewAPIError("op", CodeTooManyRequests, "slow down"))))
}

// ────────────────────────────────────────────────────────────
// Retry policy
// ────────────────────────────────────────────────────────────

func TestRetryPolicy_LinearBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 3*time.Second, p.Backoff(3))
}

func TestRetrying_SucceedsOnThirdAttempt(t *testing.T) {
	stub := &stubGateway{
		price: 42000,
		errs: []error{
			NewAPIError("CurrentPrice", CodeDisconnected, "disconnected"),
			NewAPIError("CurrentPrice", CodeTimeout, "timeout"),
		},
	}
	sleeper := &recordingSleeper{}
	var hooked []int
	gw := NewRetrying(stub, DefaultRetryPolicy(), quietLogger(),
		WithSleeper(sleeper),
		WithRetryHook(func(_ string, attempt int, _ error) { hooked = append(hooked, attempt) }))

	price, err := gw.CurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 42000.0, price)
	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	assert.Equal(t, []int{1, 2}, hooked)
}

// orderStub fails MarketBuy with scripted errors before filling.
type orderStub struct {
	Gateway
	errs   []error
	calls  int
	result *model.OrderResult
}

func (g *orderStub) MarketBuy(_ context.Context, _ string, _ float64) (*model.OrderResult, error) {
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return nil, err
	}
	return g.result, nil
}

func TestRetrying_MarketBuySucceedsOnThirdAttempt(t *testing.T) {
	fill := &model.OrderResult{
		OrderID: "7", Symbol: "BTCUSDT", Side: model.SideBuy, Type: model.OrderTypeMarket,
		Status: model.StatusFilled, Quantity: 0.002, Price: 50000, QuoteQuantity: 100,
	}
	stub := &orderStub{
		result: fill,
		errs: []error{
			NewAPIError("MarketBuy", CodeUnknown, "unknown"),
			NewAPIError("MarketBuy", CodeTooManyRequests, "too many requests"),
		},
	}
	sleeper := &recordingSleeper{}
	gw := NewRetrying(stub, DefaultRetryPolicy(), quietLogger(), WithSleeper(sleeper))

	got, err := gw.MarketBuy(context.Background(), "BTCUSDT", 100)
	require.NoError(t, err)
	assert.Same(t, fill, got)
	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
}

func TestRetrying_NonRetryableFailsImmediately(t *testing.T) {
	stub := &stubGateway{errs: []error{NewAPIError("CurrentPrice", -2010, "insufficient balance")}}
	sleeper := &recordingSleeper{}
	gw := NewRetrying(stub, DefaultRetryPolicy(), quietLogger(), WithSleeper(sleeper))

	_, err := gw.CurrentPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Empty(t, sleeper.waits)

	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, int64(-2010), ee.Code)
}

func TestRetrying_ExhaustionReturnsLastError(t *testing.T) {
	stub := &stubGateway{errs: []error{
		NewAPIError("CurrentPrice", CodeUnknown, "first"),
		NewAPIError("CurrentPrice", CodeUnknown, "second"),
		NewAPIError("CurrentPrice", CodeTooManyRequests, "third"),
	}}
	sleeper := &recordingSleeper{}
	gw := NewRetrying(stub, DefaultRetryPolicy(), quietLogger(), WithSleeper(sleeper))

	_, err := gw.CurrentPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Equal(t, 3, stub.calls)
	assert.Len(t, sleeper.waits, 2)

	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, CodeTooManyRequests, ee.Code)
	assert.Contains(t, err.Error(), "third")
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, DefaultRetryPolicy(), TimerSleeper, quietLogger(), nil, "op",
		func(context.Context) (int, error) {
			calls++
			return 0, NewAPIError("op", CodeUnknown, "unknown")
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

// ────────────────────────────────────────────────────────────
// Assets
// ────────────────────────────────────────────────────────────

func TestAssets(t *testing.T) {
	assert.Equal(t, "BTC", BaseAsset("BTCUSDT"))
	assert.Equal(t, "ETH", BaseAsset("ETHBUSD"))
	assert.Equal(t, "SOL", BaseAsset("SOLUSDC"))
	assert.Equal(t, "BTCEUR", BaseAsset("BTCEUR"))
	assert.Equal(t, "USDT", BaseAsset("USDT"))

	assert.Equal(t, "USDT", QuoteAsset("BTCUSDT"))
	assert.Equal(t, "USDC", QuoteAsset("SOLUSDC"))
}

// ────────────────────────────────────────────────────────────
// Order mapping
// ────────────────────────────────────────────────────────────

func TestOrderFromResponse_AveragesFills(t *testing.T) {
	res := &binance.CreateOrderResponse{
		Symbol:                   "BTCUSDT",
		OrderID:                  12345,
		ClientOrderID:            "abc",
		TransactTime:             1700000000000,
		ExecutedQuantity:         "0.003",
		CummulativeQuoteQuantity: "120.5",
		Status:                   binance.OrderStatusTypeFilled,
		Type:                     binance.OrderTypeMarket,
		Side:                     binance.SideTypeBuy,
		Fills: []*binance.Fill{
			{Price: "40000", Quantity: "0.001", Commission: "0.0000010", CommissionAsset: "BTC"},
			{Price: "40250", Quantity: "0.002", Commission: "0.0000020", CommissionAsset: "BTC"},
		},
	}

	o := orderFromResponse(res)
	assert.Equal(t, "12345", o.OrderID)
	assert.Equal(t, model.SideBuy, o.Side)
	assert.Equal(t, model.StatusFilled, o.Status)
	assert.InDelta(t, 0.003, o.Quantity, 1e-12)
	// (40000*0.001 + 40250*0.002) / 0.003 = 40166.67
	assert.InDelta(t, 40166.6667, o.Price, 1e-3)
	require.NotNil(t, o.Commission)
	assert.InDelta(t, 0.000003, *o.Commission, 1e-12)
	assert.Equal(t, "BTC", o.CommissionAsset)
}

func TestOrderFromResponse_NoFillsUsesOrderPrice(t *testing.T) {
	res := &binance.CreateOrderResponse{
		OrderID: 1, Price: "39000", Status: binance.OrderStatusTypeNew,
		Type: binance.OrderTypeLimit, Side: binance.SideTypeSell,
	}
	o := orderFromResponse(res)
	assert.Equal(t, 39000.0, o.Price)
	assert.Nil(t, o.Commission)
	assert.Equal(t, model.StatusNew, o.Status)
}

func TestFormatNum(t *testing.T) {
	assert.Equal(t, "100", formatNum(100))
	assert.Equal(t, "0.00123456", formatNum(0.001234567))
	assert.Equal(t, "0.5", formatNum(0.5))
}

// ────────────────────────────────────────────────────────────
// Paper gateway
// ────────────────────────────────────────────────────────────

func TestPaper_BuyThenSell(t *testing.T) {
	market := &stubGateway{price: 100}
	p := NewPaper(market, map[string]float64{"USDT": 1000}, 0, quietLogger())
	ctx := context.Background()

	buy, err := p.MarketBuy(ctx, "BTCUSDT", 500)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFilled, buy.Status)
	assert.InDelta(t, 5.0, buy.Quantity, 1e-9)
	require.NotNil(t, buy.Commission)
	assert.InDelta(t, 0.5, *buy.Commission, 1e-9)

	bals, err := p.Balances(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 499.5, bals.Free("USDT"), 1e-9)
	assert.InDelta(t, 5.0, bals.Free("BTC"), 1e-9)

	sell, err := p.MarketSell(ctx, "BTCUSDT", 5)
	require.NoError(t, err)
	assert.InDelta(t, 500.0, sell.QuoteQuantity, 1e-9)

	bals, _ = p.Balances(ctx)
	assert.InDelta(t, 999.0, bals.Free("USDT"), 1e-9)
	assert.InDelta(t, 0, bals.Free("BTC"), 1e-9)
}

func TestPaper_Slippage(t *testing.T) {
	market := &stubGateway{price: 100}
	p := NewPaper(market, map[string]float64{"USDT": 1000, "BTC": 1}, 50, quietLogger()) // 0.5%

	buy, err := p.MarketBuy(context.Background(), "BTCUSDT", 100.5)
	require.NoError(t, err)
	assert.InDelta(t, 100.5, buy.Price, 1e-9)

	sell, err := p.MarketSell(context.Background(), "BTCUSDT", 1)
	require.NoError(t, err)
	assert.InDelta(t, 99.5, sell.Price, 1e-9)
}

func TestPaper_InsufficientBalance(t *testing.T) {
	p := NewPaper(&stubGateway{price: 100}, map[string]float64{"USDT": 10}, 0, quietLogger())
	_, err := p.MarketBuy(context.Background(), "BTCUSDT", 50)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestPaper_LimitOrderLifecycle(t *testing.T) {
	p := NewPaper(&stubGateway{price: 100}, nil, 0, quietLogger())
	ctx := context.Background()

	o, err := p.LimitBuy(ctx, "BTCUSDT", 1, 90)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, o.Status)

	require.NoError(t, p.CancelOrder(ctx, "BTCUSDT", o.OrderID))
	got, err := p.Order(ctx, "BTCUSDT", o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, got.Status)

	assert.Error(t, p.CancelOrder(ctx, "BTCUSDT", o.OrderID), "cancelled order cannot be cancelled twice")
}

// ────────────────────────────────────────────────────────────
// Cached gateway
// ────────────────────────────────────────────────────────────

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func TestCached_Klines(t *testing.T) {
	stub := &stubGateway{klines: []model.Candle{{Close: 1}, {Close: 2}}}
	cache := newMemCache()
	var hits, misses int
	gw := NewCached(stub, cache, 30*time.Second, quietLogger(), func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})
	ctx := context.Background()

	first, err := gw.Klines(ctx, "BTCUSDT", model.Interval5m, 250)
	require.NoError(t, err)
	second, err := gw.Klines(ctx, "BTCUSDT", model.Interval5m, 250)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, stub.calls, "second call served from cache")
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
	assert.Equal(t, 30*time.Second, cache.ttls[KlinesKey("BTCUSDT", model.Interval5m, 250)])

	// Prices always pass through.
	stub.price = 7
	price, err := gw.CurrentPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 7.0, price)
}
