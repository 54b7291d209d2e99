package indicator

// RollingRSI calculates the Relative Strength Index using Wilder's smoothing.
// Gains and losses are each averaged by an SMMA, so the seed is the simple
// mean of the first period deltas. Update is O(1) per price.
type RollingRSI struct {
	period    int
	count     int
	prevClose float64
	gains     *SMMA
	losses    *SMMA
	current   float64
}

// NewRollingRSI creates a new RSI indicator with the given period (typically 14).
func NewRollingRSI(period int) *RollingRSI {
	return &RollingRSI{
		period: period,
		gains:  NewSMMA(period),
		losses: NewSMMA(period),
	}
}

func (r *RollingRSI) Name() string { return "RSI" }

func (r *RollingRSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First price: nothing to diff against yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.gains.Update(gain)
	r.losses.Update(loss)

	if r.gains.Ready() {
		r.current = rsiFromAverages(r.gains.Value(), r.losses.Value())
	}
}

func (r *RollingRSI) Value() float64 { return r.current }
func (r *RollingRSI) Ready() bool    { return r.count > r.period }

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSI returns the Wilder RSI of the series, rounded to 2 decimals.
// It needs period+1 prices (period deltas) and a period of at least 2.
func RSI(period int, prices []float64) (float64, error) {
	if err := checkPeriod(period, 2); err != nil {
		return 0, err
	}
	if err := checkLength(period+1, len(prices)); err != nil {
		return 0, err
	}
	return Round2(feed(NewRollingRSI(period), prices)), nil
}
