package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultFeeRate is applied when a trade has no recorded commission.
const DefaultFeeRate = 0.001

// Trade is a persisted execution record.
//
// A BUY is an open position until RelatedTradeID is set; a SELL is matched
// once RelatedTradeID, PnL and PnLPercent are set. Trades are values: the
// With* helpers return modified copies and never touch the receiver.
type Trade struct {
	ID              string      `json:"id"`
	OrderID         string      `json:"order_id"`
	Symbol          string      `json:"symbol"`
	Side            Side        `json:"side"`
	Type            OrderType   `json:"type"`
	Status          OrderStatus `json:"status"`
	Quantity        float64     `json:"quantity"`
	Price           float64     `json:"price"`
	QuoteQuantity   float64     `json:"quote_quantity"`
	Commission      *float64    `json:"commission,omitempty"`
	CommissionAsset string      `json:"commission_asset,omitempty"`
	Strategy        string      `json:"strategy,omitempty"`
	RelatedTradeID  string      `json:"related_trade_id,omitempty"`
	PnL             *float64    `json:"pnl,omitempty"`
	PnLPercent      *float64    `json:"pnl_percent,omitempty"`
	Version         int         `json:"version"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NewTrade builds a trade record from an order result.
func NewTrade(res *OrderResult, strategy string, now time.Time) Trade {
	return Trade{
		ID:              uuid.NewString(),
		OrderID:         res.OrderID,
		Symbol:          res.Symbol,
		Side:            res.Side,
		Type:            res.Type,
		Status:          res.Status,
		Quantity:        res.Quantity,
		Price:           res.Price,
		QuoteQuantity:   res.QuoteQuantity,
		Commission:      res.Commission,
		CommissionAsset: res.CommissionAsset,
		Strategy:        strategy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Notional returns quantity * price.
func (t Trade) Notional() float64 {
	return t.Quantity * t.Price
}

// Fee returns the recorded commission, or Notional()*DefaultFeeRate when missing.
func (t Trade) Fee() float64 {
	if t.Commission != nil {
		return *t.Commission
	}
	return t.Notional() * DefaultFeeRate
}

// IsOpenPosition reports whether t is a filled BUY not yet consumed by a SELL.
func (t Trade) IsOpenPosition() bool {
	return t.Side == SideBuy && t.Status == StatusFilled && t.RelatedTradeID == ""
}

// IsMatched reports whether t is a SELL carrying a realized P&L.
func (t Trade) IsMatched() bool {
	return t.Side == SideSell && t.RelatedTradeID != "" && t.PnL != nil
}

// WithMatch returns a copy of the sell with its buy link and realized P&L set.
func (t Trade) WithMatch(buyID string, pnl, pnlPercent float64, now time.Time) Trade {
	t.RelatedTradeID = buyID
	t.PnL = &pnl
	t.PnLPercent = &pnlPercent
	t.UpdatedAt = now
	return t
}

// WithClosedBy returns a copy of the buy linked to the sell that closed it.
func (t Trade) WithClosedBy(sellID string, now time.Time) Trade {
	t.RelatedTradeID = sellID
	t.UpdatedAt = now
	return t
}
