package portfolio

import (
	"sort"

	"spot-trader/internal/model"
)

// fifo is a per-symbol, creation-ordered queue of open buy positions.
// It is built once per matching pass instead of rescanning the ledger
// for every sell.
type fifo struct {
	bySymbol map[string][]model.Trade
}

func newFIFO(open []model.Trade) *fifo {
	f := &fifo{bySymbol: make(map[string][]model.Trade)}
	for _, t := range open {
		if t.IsOpenPosition() {
			f.bySymbol[t.Symbol] = append(f.bySymbol[t.Symbol], t)
		}
	}
	for _, q := range f.bySymbol {
		sort.SliceStable(q, func(i, j int) bool { return q[i].CreatedAt.Before(q[j].CreatedAt) })
	}
	return f
}

// match returns the earliest position whose quantity covers qty. When none
// does, the earliest position is returned regardless of quantity; partial
// positions are never split.
func (f *fifo) match(symbol string, qty float64) (model.Trade, bool) {
	q := f.bySymbol[symbol]
	if len(q) == 0 {
		return model.Trade{}, false
	}
	for _, t := range q {
		if t.Quantity >= qty {
			return t, true
		}
	}
	return q[0], true
}

// remove drops a consumed position.
func (f *fifo) remove(symbol, id string) {
	q := f.bySymbol[symbol]
	for i, t := range q {
		if t.ID == id {
			f.bySymbol[symbol] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}

// size returns the number of open positions queued for symbol.
func (f *fifo) size(symbol string) int {
	return len(f.bySymbol[symbol])
}
