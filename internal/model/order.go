package model

import "time"

// OrderResult is the exchange's answer to an order submission.
// Price is the average fill price for market orders (CummulativeQuote / Executed).
type OrderResult struct {
	OrderID         string      `json:"order_id"`
	ClientOrderID   string      `json:"client_order_id"`
	Symbol          string      `json:"symbol"`
	Side            Side        `json:"side"`
	Type            OrderType   `json:"type"`
	Status          OrderStatus `json:"status"`
	Quantity        float64     `json:"quantity"`       // executed base quantity
	Price           float64     `json:"price"`          // average fill price
	QuoteQuantity   float64     `json:"quote_quantity"` // cumulative quote spent or received
	Commission      *float64    `json:"commission,omitempty"`
	CommissionAsset string      `json:"commission_asset,omitempty"`
	TransactTime    time.Time   `json:"transact_time"`
}

// Fill is a single exchange execution belonging to an order.
type Fill struct {
	Price           float64 `json:"price"`
	Quantity        float64 `json:"quantity"`
	Commission      float64 `json:"commission"`
	CommissionAsset string  `json:"commission_asset"`
}

// SummarizeFills returns the total commission and the commission asset of the
// first fill. ok is false when there were no fills.
func SummarizeFills(fills []Fill) (commission float64, asset string, ok bool) {
	if len(fills) == 0 {
		return 0, "", false
	}
	for _, f := range fills {
		commission += f.Commission
	}
	return commission, fills[0].CommissionAsset, true
}
