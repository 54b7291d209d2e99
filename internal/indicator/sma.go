package indicator

// RollingSMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type RollingSMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewRollingSMA creates a new SMA indicator with the given period.
func NewRollingSMA(period int) *RollingSMA {
	return &RollingSMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *RollingSMA) Name() string { return "SMA" }

func (s *RollingSMA) Update(price float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *RollingSMA) Value() float64 { return s.current }
func (s *RollingSMA) Ready() bool    { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *RollingSMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// SMA returns the mean of the last period prices, rounded to 2 decimals.
func SMA(period int, prices []float64) (float64, error) {
	if err := checkPeriod(period, 1); err != nil {
		return 0, err
	}
	if err := checkLength(period, len(prices)); err != nil {
		return 0, err
	}
	// Only the window is fed so the sum never carries subtraction error.
	return Round2(feed(NewRollingSMA(period), prices[len(prices)-period:])), nil
}
