package exchange

import "strings"

// QuoteAssets are the quote currencies recognised in symbol names, longest
// match first.
var QuoteAssets = []string{"USDT", "BUSD", "USDC"}

// BaseAsset strips the quote suffix: BTCUSDT → BTC. Unknown suffixes return
// the symbol unchanged.
func BaseAsset(symbol string) string {
	for _, q := range QuoteAssets {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return strings.TrimSuffix(symbol, q)
		}
	}
	return symbol
}

// QuoteAsset returns the quote suffix of symbol, defaulting to USDT.
func QuoteAsset(symbol string) string {
	for _, q := range QuoteAssets {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return q
		}
	}
	return "USDT"
}
