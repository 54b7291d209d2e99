package portfolio

import (
	"sort"

	"spot-trader/internal/model"
)

// Position is the aggregate of all open buys of one symbol.
type Position struct {
	Symbol    string  `json:"symbol"`
	Quantity  float64 `json:"quantity"`
	AvgPrice  float64 `json:"avg_price"` // quantity-weighted entry price
	LastPrice float64 `json:"last_price"`
	Trades    int     `json:"trades"`
}

// Cost returns the entry value of the position.
func (p Position) Cost() float64 {
	return p.AvgPrice * p.Quantity
}

// UnrealizedPnL returns the mark-to-market P&L at LastPrice, before fees.
// It is 0 until a price is known.
func (p Position) UnrealizedPnL() float64 {
	if p.LastPrice <= 0 {
		return 0
	}
	return (p.LastPrice - p.AvgPrice) * p.Quantity
}

// Positions aggregates open buy trades per symbol, sorted by symbol.
func Positions(open []model.Trade) []Position {
	bySymbol := make(map[string]*Position)
	for _, t := range open {
		if !t.IsOpenPosition() {
			continue
		}
		p, ok := bySymbol[t.Symbol]
		if !ok {
			p = &Position{Symbol: t.Symbol}
			bySymbol[t.Symbol] = p
		}
		totalCost := p.AvgPrice*p.Quantity + t.Price*t.Quantity
		p.Quantity += t.Quantity
		if p.Quantity > 0 {
			p.AvgPrice = totalCost / p.Quantity
		}
		p.Trades++
	}

	out := make([]Position, 0, len(bySymbol))
	for _, p := range bySymbol {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// TotalUnrealizedPnL sums the unrealized P&L of all positions.
func TotalUnrealizedPnL(positions []Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.UnrealizedPnL()
	}
	return total
}
