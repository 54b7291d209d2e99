package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spot-trader/internal/model"
)

// MarketData is the read-only half of a Gateway. Paper uses it for prices
// and klines.
type MarketData interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	Klines(ctx context.Context, symbol string, interval model.KlineInterval, limit int) ([]model.Candle, error)
}

// Paper simulates order execution against live market data and in-memory
// balances. Market orders fill immediately with slippage and a commission
// charged in the quote asset. Limit orders are recorded as NEW and never
// fill.
type Paper struct {
	market MarketData
	logger *slog.Logger

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	orders   map[string]*model.OrderResult
	orderSeq int64

	slippageBps int64 // basis points of slippage (e.g., 5 = 0.05%)
	feeRate     decimal.Decimal
	now         func() time.Time
}

// NewPaper creates a paper gateway seeded with balances.
// slippageBps controls simulated slippage in basis points.
func NewPaper(market MarketData, balances map[string]float64, slippageBps int64, logger *slog.Logger) *Paper {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Paper{
		market:      market,
		logger:      logger.With("component", "paper"),
		balances:    make(map[string]decimal.Decimal, len(balances)),
		orders:      make(map[string]*model.OrderResult),
		slippageBps: slippageBps,
		feeRate:     decimal.NewFromFloat(model.DefaultFeeRate),
		now:         time.Now,
	}
	for asset, amt := range balances {
		p.balances[asset] = decimal.NewFromFloat(amt)
	}
	return p
}

func (p *Paper) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return p.market.CurrentPrice(ctx, symbol)
}

func (p *Paper) Klines(ctx context.Context, symbol string, interval model.KlineInterval, limit int) ([]model.Candle, error) {
	return p.market.Klines(ctx, symbol, interval, limit)
}

func (p *Paper) Balances(_ context.Context) (model.Balances, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(model.Balances, 0, len(p.balances))
	for asset, amt := range p.balances {
		out = append(out, model.Balance{Asset: asset, Free: amt.InexactFloat64()})
	}
	return out.NonZero(), nil
}

func (p *Paper) MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (*model.OrderResult, error) {
	price, err := p.market.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return p.fill(symbol, model.SideBuy, decimal.NewFromFloat(quoteAmount), decimal.Zero, decimal.NewFromFloat(price))
}

func (p *Paper) MarketSell(ctx context.Context, symbol string, quantity float64) (*model.OrderResult, error) {
	price, err := p.market.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return p.fill(symbol, model.SideSell, decimal.Zero, decimal.NewFromFloat(quantity), decimal.NewFromFloat(price))
}

// fill executes a market order. Buys spend quote, sells spend qty.
func (p *Paper) fill(symbol string, side model.Side, quote, qty, price decimal.Decimal) (*model.OrderResult, error) {
	base, quoteAsset := BaseAsset(symbol), QuoteAsset(symbol)

	slip := price.Mul(decimal.NewFromInt(p.slippageBps)).Div(decimal.NewFromInt(10000))
	if side == model.SideBuy {
		price = price.Add(slip) // buy higher
	} else {
		price = price.Sub(slip) // sell lower
	}
	if !price.IsPositive() {
		return nil, NewAPIError("paper", -1013, "invalid fill price")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var fee decimal.Decimal
	switch side {
	case model.SideBuy:
		if p.balances[quoteAsset].LessThan(quote) {
			return nil, NewAPIError("MarketBuy", -2010, "Account has insufficient balance for requested action.")
		}
		qty = quote.Div(price).Truncate(quantityPlaces)
		fee = quote.Mul(p.feeRate)
		p.balances[quoteAsset] = p.balances[quoteAsset].Sub(quote).Sub(fee)
		p.balances[base] = p.balances[base].Add(qty)
	case model.SideSell:
		if p.balances[base].LessThan(qty) {
			return nil, NewAPIError("MarketSell", -2010, "Account has insufficient balance for requested action.")
		}
		quote = qty.Mul(price)
		fee = quote.Mul(p.feeRate)
		p.balances[base] = p.balances[base].Sub(qty)
		p.balances[quoteAsset] = p.balances[quoteAsset].Add(quote).Sub(fee)
	}

	p.orderSeq++
	commission := fee.InexactFloat64()
	res := &model.OrderResult{
		OrderID:         strconv.FormatInt(p.orderSeq, 10),
		ClientOrderID:   fmt.Sprintf("PAPER-%d", p.orderSeq),
		Symbol:          symbol,
		Side:            side,
		Type:            model.OrderTypeMarket,
		Status:          model.StatusFilled,
		Quantity:        qty.InexactFloat64(),
		Price:           price.InexactFloat64(),
		QuoteQuantity:   quote.InexactFloat64(),
		Commission:      &commission,
		CommissionAsset: quoteAsset,
		TransactTime:    p.now().UTC(),
	}
	p.orders[res.OrderID] = res

	p.logger.Info("paper fill",
		"side", side, "symbol", symbol, "qty", res.Quantity, "price", res.Price,
		"slippage", slip.InexactFloat64(), "order", res.ClientOrderID)
	cp := *res
	return &cp, nil
}

func (p *Paper) LimitBuy(_ context.Context, symbol string, quantity, price float64) (*model.OrderResult, error) {
	return p.rest(symbol, model.SideBuy, quantity, price), nil
}

func (p *Paper) LimitSell(_ context.Context, symbol string, quantity, price float64) (*model.OrderResult, error) {
	return p.rest(symbol, model.SideSell, quantity, price), nil
}

func (p *Paper) rest(symbol string, side model.Side, quantity, price float64) *model.OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderSeq++
	res := &model.OrderResult{
		OrderID:       strconv.FormatInt(p.orderSeq, 10),
		ClientOrderID: fmt.Sprintf("PAPER-%d", p.orderSeq),
		Symbol:        symbol,
		Side:          side,
		Type:          model.OrderTypeLimit,
		Status:        model.StatusNew,
		Price:         price,
		TransactTime:  p.now().UTC(),
	}
	p.orders[res.OrderID] = res
	p.logger.Info("paper limit order resting", "side", side, "symbol", symbol, "qty", quantity, "price", price)
	cp := *res
	return &cp
}

func (p *Paper) Order(_ context.Context, _ string, orderID string) (*model.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return nil, NewAPIError("Order", -2013, "Order does not exist.")
	}
	cp := *o
	return &cp, nil
}

func (p *Paper) CancelOrder(_ context.Context, _ string, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok || o.Status.IsFinal() {
		return NewAPIError("CancelOrder", -2011, "Unknown order sent.")
	}
	o.Status = model.StatusCanceled
	return nil
}
