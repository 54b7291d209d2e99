package model

import (
	"fmt"
	"strings"
)

// Signal is the decision a strategy derives from an indicator snapshot.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// IsActionable reports whether the signal should result in an order.
// HOLD never is.
func (s Signal) IsActionable() bool {
	return s == SignalBuy || s == SignalSell
}

// Side maps the signal onto an order side. ok is false for HOLD.
func (s Signal) Side() (side Side, ok bool) {
	switch s {
	case SignalBuy:
		return SideBuy, true
	case SignalSell:
		return SideSell, true
	}
	return "", false
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType mirrors the exchange order types the bot can record.
type OrderType string

const (
	OrderTypeMarket          OrderType = "MARKET"
	OrderTypeLimit           OrderType = "LIMIT"
	OrderTypeStopLoss        OrderType = "STOP_LOSS"
	OrderTypeStopLossLimit   OrderType = "STOP_LOSS_LIMIT"
	OrderTypeTakeProfit      OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitLimit OrderType = "TAKE_PROFIT_LIMIT"
)

// RequiresPrice reports whether the order type carries a limit price.
func (t OrderType) RequiresPrice() bool {
	switch t {
	case OrderTypeLimit, OrderTypeStopLossLimit, OrderTypeTakeProfitLimit:
		return true
	}
	return false
}

// OrderStatus is the lifecycle state of an exchange order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusPendingCancel   OrderStatus = "PENDING_CANCEL"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusError           OrderStatus = "ERROR"
)

// ParseOrderStatus maps an exchange status string; unknown values become ERROR.
func ParseOrderStatus(s string) OrderStatus {
	switch st := OrderStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusNew, StatusPartiallyFilled, StatusFilled, StatusCanceled,
		StatusPendingCancel, StatusRejected, StatusExpired:
		return st
	case "EXPIRED_IN_MATCH":
		return StatusExpired
	}
	return StatusError
}

// IsFinal reports whether the order will not change any more.
func (s OrderStatus) IsFinal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired, StatusError:
		return true
	}
	return false
}

// IsExecuted reports whether at least part of the order was filled.
func (s OrderStatus) IsExecuted() bool {
	return s == StatusFilled || s == StatusPartiallyFilled
}

// StrategyKind selects one of the built-in strategies.
type StrategyKind string

const (
	StrategyRSI           StrategyKind = "rsi"
	StrategyMovingAverage StrategyKind = "ma"
	StrategyCombined      StrategyKind = "combined"
)

// ParseStrategyKind accepts the short names plus a few long aliases.
func ParseStrategyKind(s string) (StrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rsi":
		return StrategyRSI, nil
	case "ma", "moving_average", "movingaverage":
		return StrategyMovingAverage, nil
	case "combined", "rsi+ma":
		return StrategyCombined, nil
	}
	return "", fmt.Errorf("unknown strategy %q (want rsi, ma or combined)", s)
}

// DisplayName is the human-readable name of the strategy kind.
func (k StrategyKind) DisplayName() string {
	switch k {
	case StrategyRSI:
		return "RSI Strategy"
	case StrategyMovingAverage:
		return "Moving Average Strategy"
	case StrategyCombined:
		return "Combined Strategy (RSI + MA)"
	}
	return string(k)
}
