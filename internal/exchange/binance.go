package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"spot-trader/internal/model"
)

// quantityPlaces is the precision used when formatting quantities and prices.
const quantityPlaces = 8

// Binance is the Gateway backed by the Binance spot REST API.
type Binance struct {
	client *binance.Client
	logger *slog.Logger
}

// NewBinance creates a spot client. testnet switches the package-level
// go-binance endpoint, so it applies to every client in the process.
func NewBinance(apiKey, secretKey string, testnet bool, logger *slog.Logger) *Binance {
	binance.UseTestnet = testnet
	if logger == nil {
		logger = slog.Default()
	}
	return &Binance{
		client: binance.NewClient(apiKey, secretKey),
		logger: logger.With("component", "binance"),
	}
}

func (b *Binance) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, Classify("CurrentPrice", err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return parseNum(p.Price), nil
		}
	}
	return 0, NewAPIError("CurrentPrice", -1121, "no price for symbol "+symbol)
}

func (b *Binance) Klines(ctx context.Context, symbol string, interval model.KlineInterval, limit int) ([]model.Candle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(string(interval)).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, Classify("Klines", err)
	}

	candles := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, model.Candle{
			OpenTime:    time.UnixMilli(k.OpenTime).UTC(),
			CloseTime:   time.UnixMilli(k.CloseTime).UTC(),
			Open:        parseNum(k.Open),
			High:        parseNum(k.High),
			Low:         parseNum(k.Low),
			Close:       parseNum(k.Close),
			Volume:      parseNum(k.Volume),
			QuoteVolume: parseNum(k.QuoteAssetVolume),
			Trades:      k.TradeNum,
		})
	}
	return candles, nil
}

func (b *Binance) Balances(ctx context.Context) (model.Balances, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, Classify("Balances", err)
	}
	out := make(model.Balances, 0, len(acct.Balances))
	for _, bal := range acct.Balances {
		out = append(out, model.Balance{
			Asset:  bal.Asset,
			Free:   parseNum(bal.Free),
			Locked: parseNum(bal.Locked),
		})
	}
	return out.NonZero(), nil
}

func (b *Binance) MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (*model.OrderResult, error) {
	b.logger.Info("submitting market buy", "symbol", symbol, "quote_amount", quoteAmount)
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(formatNum(quoteAmount)).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return nil, Classify("MarketBuy", err)
	}
	return orderFromResponse(res), nil
}

func (b *Binance) MarketSell(ctx context.Context, symbol string, quantity float64) (*model.OrderResult, error) {
	b.logger.Info("submitting market sell", "symbol", symbol, "quantity", quantity)
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(formatNum(quantity)).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return nil, Classify("MarketSell", err)
	}
	return orderFromResponse(res), nil
}

func (b *Binance) LimitBuy(ctx context.Context, symbol string, quantity, price float64) (*model.OrderResult, error) {
	return b.limit(ctx, "LimitBuy", binance.SideTypeBuy, symbol, quantity, price)
}

func (b *Binance) LimitSell(ctx context.Context, symbol string, quantity, price float64) (*model.OrderResult, error) {
	return b.limit(ctx, "LimitSell", binance.SideTypeSell, symbol, quantity, price)
}

func (b *Binance) limit(ctx context.Context, op string, side binance.SideType, symbol string, quantity, price float64) (*model.OrderResult, error) {
	b.logger.Info("submitting limit order", "side", side, "symbol", symbol, "quantity", quantity, "price", price)
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatNum(quantity)).
		Price(formatNum(price)).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return nil, Classify(op, err)
	}
	return orderFromResponse(res), nil
}

func (b *Binance) Order(ctx context.Context, symbol, orderID string) (*model.OrderResult, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("exchange Order: invalid order id %q: %w", orderID, err)
	}
	o, err := b.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return nil, Classify("Order", err)
	}
	executed := parseNum(o.ExecutedQuantity)
	quote := parseNum(o.CummulativeQuoteQuantity)
	price := parseNum(o.Price)
	if executed > 0 {
		price = quote / executed
	}
	return &model.OrderResult{
		OrderID:       strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          model.Side(o.Side),
		Type:          model.OrderType(o.Type),
		Status:        model.ParseOrderStatus(string(o.Status)),
		Quantity:      executed,
		Price:         price,
		QuoteQuantity: quote,
		TransactTime:  time.UnixMilli(o.UpdateTime).UTC(),
	}, nil
}

func (b *Binance) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("exchange CancelOrder: invalid order id %q: %w", orderID, err)
	}
	if _, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return Classify("CancelOrder", err)
	}
	b.logger.Info("order cancelled", "symbol", symbol, "order_id", orderID)
	return nil
}

// orderFromResponse maps a create-order response. The price is the
// quantity-weighted average of the fills, or the order price without fills.
func orderFromResponse(res *binance.CreateOrderResponse) *model.OrderResult {
	fills := make([]model.Fill, 0, len(res.Fills))
	for _, f := range res.Fills {
		fills = append(fills, model.Fill{
			Price:           parseNum(f.Price),
			Quantity:        parseNum(f.Quantity),
			Commission:      parseNum(f.Commission),
			CommissionAsset: f.CommissionAsset,
		})
	}

	out := &model.OrderResult{
		OrderID:       strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Side:          model.Side(res.Side),
		Type:          model.OrderType(res.Type),
		Status:        model.ParseOrderStatus(string(res.Status)),
		Quantity:      parseNum(res.ExecutedQuantity),
		Price:         averageFillPrice(fills, parseNum(res.Price)),
		QuoteQuantity: parseNum(res.CummulativeQuoteQuantity),
		TransactTime:  time.UnixMilli(res.TransactTime).UTC(),
	}
	if commission, asset, ok := model.SummarizeFills(fills); ok {
		out.Commission = &commission
		out.CommissionAsset = asset
	}
	return out
}

func averageFillPrice(fills []model.Fill, fallback float64) float64 {
	var qty, value float64
	for _, f := range fills {
		qty += f.Quantity
		value += f.Price * f.Quantity
	}
	if qty == 0 {
		return fallback
	}
	return value / qty
}

// parseNum reads an exchange decimal string. Malformed input yields 0.
func parseNum(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// formatNum renders v for the API without exponent and without trailing zeros.
func formatNum(v float64) string {
	return decimal.NewFromFloat(v).Truncate(quantityPlaces).String()
}
