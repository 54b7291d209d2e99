package model

import (
	"encoding/json"
	"time"
)

// Candle represents one exchange kline for a single symbol.
// Candles are produced by the gateway and never mutated afterwards.
type Candle struct {
	OpenTime    time.Time `json:"open_time"`
	CloseTime   time.Time `json:"close_time"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`       // base asset volume
	QuoteVolume float64   `json:"quote_volume"` // quote asset volume
	Trades      int64     `json:"trades"`       // number of exchange trades in the bucket
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts close prices in the order the candles were given.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// KlineInterval is an exchange candle interval ("1m", "5m", "1h", ...).
type KlineInterval string

const (
	Interval1m  KlineInterval = "1m"
	Interval3m  KlineInterval = "3m"
	Interval5m  KlineInterval = "5m"
	Interval15m KlineInterval = "15m"
	Interval30m KlineInterval = "30m"
	Interval1h  KlineInterval = "1h"
	Interval2h  KlineInterval = "2h"
	Interval4h  KlineInterval = "4h"
	Interval6h  KlineInterval = "6h"
	Interval8h  KlineInterval = "8h"
	Interval12h KlineInterval = "12h"
	Interval1d  KlineInterval = "1d"
	Interval3d  KlineInterval = "3d"
	Interval1w  KlineInterval = "1w"
	Interval1M  KlineInterval = "1M"
)

var intervalDurations = map[KlineInterval]time.Duration{
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval6h:  6 * time.Hour,
	Interval8h:  8 * time.Hour,
	Interval12h: 12 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval3d:  72 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
	Interval1M:  30 * 24 * time.Hour,
}

// Valid reports whether the interval is one the exchange accepts.
func (i KlineInterval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// Duration returns the nominal bucket length (a month is counted as 30 days).
func (i KlineInterval) Duration() time.Duration {
	return intervalDurations[i]
}
