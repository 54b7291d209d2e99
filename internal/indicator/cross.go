package indicator

// crossPair returns the rounded short and long SMAs for the full series and
// for the series without its last price. ok is false when the series is too
// short for the previous long SMA.
func crossPair(prices []float64, short, long int) (prevShort, prevLong, currShort, currLong float64, ok bool) {
	if len(prices) < long+1 {
		return 0, 0, 0, 0, false
	}
	var err error
	if currShort, err = SMA(short, prices); err != nil {
		return 0, 0, 0, 0, false
	}
	if currLong, err = SMA(long, prices); err != nil {
		return 0, 0, 0, 0, false
	}
	prev := prices[:len(prices)-1]
	if prevShort, err = SMA(short, prev); err != nil {
		return 0, 0, 0, 0, false
	}
	if prevLong, err = SMA(long, prev); err != nil {
		return 0, 0, 0, 0, false
	}
	return prevShort, prevLong, currShort, currLong, true
}

// DetectGoldenCross reports whether the short SMA crossed above the long SMA
// on the last price.
func DetectGoldenCross(prices []float64, short, long int) bool {
	prevShort, prevLong, currShort, currLong, ok := crossPair(prices, short, long)
	return ok && prevShort <= prevLong && currShort > currLong
}

// DetectDeathCross reports whether the short SMA crossed below the long SMA
// on the last price.
func DetectDeathCross(prices []float64, short, long int) bool {
	prevShort, prevLong, currShort, currLong, ok := crossPair(prices, short, long)
	return ok && prevShort >= prevLong && currShort < currLong
}

// IsBullishTrend reports whether the short SMA is above the long SMA.
func IsBullishTrend(prices []float64, short, long int) bool {
	s, l, ok := trendPair(prices, short, long)
	return ok && s > l
}

// IsBearishTrend reports whether the short SMA is below the long SMA.
func IsBearishTrend(prices []float64, short, long int) bool {
	s, l, ok := trendPair(prices, short, long)
	return ok && s < l
}

func trendPair(prices []float64, short, long int) (float64, float64, bool) {
	if len(prices) < long {
		return 0, 0, false
	}
	s, err := SMA(short, prices)
	if err != nil {
		return 0, 0, false
	}
	l, err := SMA(long, prices)
	if err != nil {
		return 0, 0, false
	}
	return s, l, true
}
