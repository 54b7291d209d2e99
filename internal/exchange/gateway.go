// Package exchange is the boundary to the spot exchange.
//
// Gateway is the port every other package depends on. Binance talks to the
// real exchange through go-binance, Paper simulates fills, Retrying adds the
// retry policy and Cached serves klines from a shared cache. Decorators wrap
// any Gateway, so the orchestrator never knows which one it has.
package exchange

import (
	"context"

	"spot-trader/internal/model"
)

// Gateway is the market data, account and order API of the exchange.
type Gateway interface {
	// CurrentPrice returns the last traded price of symbol.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)

	// Klines returns up to limit candles, oldest first.
	Klines(ctx context.Context, symbol string, interval model.KlineInterval, limit int) ([]model.Candle, error)

	// Balances returns the account balances with a positive total.
	Balances(ctx context.Context) (model.Balances, error)

	// MarketBuy spends quoteAmount of the quote asset at market.
	MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (*model.OrderResult, error)

	// MarketSell sells quantity of the base asset at market.
	MarketSell(ctx context.Context, symbol string, quantity float64) (*model.OrderResult, error)

	// LimitBuy places a GTC limit buy.
	LimitBuy(ctx context.Context, symbol string, quantity, price float64) (*model.OrderResult, error)

	// LimitSell places a GTC limit sell.
	LimitSell(ctx context.Context, symbol string, quantity, price float64) (*model.OrderResult, error)

	// Order returns the current state of an order.
	Order(ctx context.Context, symbol, orderID string) (*model.OrderResult, error)

	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, symbol, orderID string) error
}
