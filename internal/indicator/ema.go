package indicator

// RollingEMA calculates Exponential Moving Average.
// O(1) per update, seeded with the SMA of the first period prices.
type RollingEMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewRollingEMA creates a new EMA indicator with the given period.
func NewRollingEMA(period int) *RollingEMA {
	return &RollingEMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *RollingEMA) Name() string { return "EMA" }

func (e *RollingEMA) Update(price float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *RollingEMA) Value() float64 { return e.current }
func (e *RollingEMA) Ready() bool    { return e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *RollingEMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}

// EMA runs the exponential average over the whole series and returns the
// last value, rounded to 2 decimals.
func EMA(period int, prices []float64) (float64, error) {
	if err := checkPeriod(period, 1); err != nil {
		return 0, err
	}
	if err := checkLength(period, len(prices)); err != nil {
		return 0, err
	}
	return Round2(feed(NewRollingEMA(period), prices)), nil
}
