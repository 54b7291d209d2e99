package indicator

import "spot-trader/internal/model"

// Trend is the relation between the short and the long moving average.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
	TrendUnknown Trend = "unknown"
)

// RSI zones reported by Snapshot.RSIZone.
const (
	ZoneOversold         = "oversold"
	ZoneOverbought       = "overbought"
	ZoneNeutral          = "neutral"
	ZoneInsufficientData = "insufficient_data"
)

// Snapshot is the set of indicator values for one evaluation cycle.
// A nil field means the series was too short to compute that indicator.
type Snapshot struct {
	RSI          *float64 `json:"rsi,omitempty"`
	ShortMA      *float64 `json:"short_ma,omitempty"`
	LongMA       *float64 `json:"long_ma,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
	Trend        Trend    `json:"trend"`
	GoldenCross  bool     `json:"golden_cross"`
	DeathCross   bool     `json:"death_cross"`
}

// WithCurrentPrice returns a copy of s carrying the live price.
func (s Snapshot) WithCurrentPrice(price float64) Snapshot {
	s.CurrentPrice = &price
	return s
}

// RSIZone classifies the RSI against inclusive oversold/overbought bounds.
func (s Snapshot) RSIZone(oversold, overbought float64) string {
	switch {
	case s.RSI == nil:
		return ZoneInsufficientData
	case *s.RSI >= overbought:
		return ZoneOverbought
	case *s.RSI <= oversold:
		return ZoneOversold
	}
	return ZoneNeutral
}

// HasMovingAverages reports whether both moving averages are available.
func (s Snapshot) HasMovingAverages() bool {
	return s.ShortMA != nil && s.LongMA != nil
}

// Aggregator computes a Snapshot from a close-price series.
type Aggregator struct {
	RSIPeriod   int
	ShortPeriod int
	LongPeriod  int
}

// NewAggregator returns an Aggregator with the standard 14/50/200 periods.
func NewAggregator() Aggregator {
	return Aggregator{RSIPeriod: 14, ShortPeriod: 50, LongPeriod: 200}
}

// FromCandles builds a snapshot from candle close prices.
func (a Aggregator) FromCandles(candles []model.Candle) Snapshot {
	return a.Build(model.Closes(candles))
}

// Build computes each indicator independently. A series too short for one
// indicator leaves that field nil without affecting the others.
func (a Aggregator) Build(prices []float64) Snapshot {
	snap := Snapshot{Trend: TrendUnknown}

	snap.RSI = optional(RSI(a.RSIPeriod, prices))
	snap.ShortMA = optional(SMA(a.ShortPeriod, prices))
	snap.LongMA = optional(SMA(a.LongPeriod, prices))

	if !snap.HasMovingAverages() {
		return snap
	}

	switch short, long := *snap.ShortMA, *snap.LongMA; {
	case short > long:
		snap.Trend = TrendBullish
	case short < long:
		snap.Trend = TrendBearish
	default:
		snap.Trend = TrendNeutral
	}
	snap.GoldenCross = DetectGoldenCross(prices, a.ShortPeriod, a.LongPeriod)
	snap.DeathCross = DetectDeathCross(prices, a.ShortPeriod, a.LongPeriod)
	return snap
}

// optional turns a failed calculation into nil. Periods are validated at
// config load, so in practice the only error here is ErrInsufficientData.
func optional(v float64, err error) *float64 {
	if err != nil {
		return nil
	}
	return &v
}
