package indicator

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + price) / period.
type SMMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period}
}

func (s *SMMA) Name() string { return "SMMA" }

func (s *SMMA) Update(price float64) {
	s.count++

	if s.count <= s.period {
		// Accumulate for initial SMA seed
		s.sum += price
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = (s.current*float64(s.period-1) + price) / float64(s.period)
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.count >= s.period }

// Reset clears the SMMA state for reuse.
func (s *SMMA) Reset() {
	s.count = 0
	s.sum = 0
	s.current = 0
}
