package model

// Balance is one asset line of the exchange account.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Total returns free + locked.
func (b Balance) Total() float64 {
	return b.Free + b.Locked
}

// Balances is the account snapshot returned by the gateway.
type Balances []Balance

// Free returns the free amount of asset, 0 when the asset is not held.
func (bs Balances) Free(asset string) float64 {
	for _, b := range bs {
		if b.Asset == asset {
			return b.Free
		}
	}
	return 0
}

// NonZero keeps only assets with a positive total.
func (bs Balances) NonZero() Balances {
	out := make(Balances, 0, len(bs))
	for _, b := range bs {
		if b.Total() > 0 {
			out = append(out, b)
		}
	}
	return out
}
