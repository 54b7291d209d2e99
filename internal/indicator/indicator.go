// Package indicator provides technical indicator calculations over close prices.
//
// Each indicator exists in two forms: a rolling type that is fed one price at
// a time (RollingSMA, RollingEMA, SMMA, RollingRSI) and a batch function over
// a full price series (SMA, EMA, RSI). Batch results are rounded to 2 decimals.
package indicator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Indicator is the interface for all rolling technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "RSI").
	Name() string

	// Update feeds the next close price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

var (
	// ErrInsufficientData is returned when the series is shorter than the
	// indicator's lookback. Callers treat it as "value not available yet".
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidPeriod is returned for a period the indicator cannot use.
	ErrInvalidPeriod = errors.New("invalid period")
)

// Round2 rounds half away from zero to 2 decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func checkPeriod(period, min int) error {
	if period < min {
		return fmt.Errorf("%w: %d (minimum %d)", ErrInvalidPeriod, period, min)
	}
	return nil
}

func checkLength(need, got int) error {
	if got < need {
		return fmt.Errorf("%w: need at least %d prices, got %d", ErrInsufficientData, need, got)
	}
	return nil
}

// feed pushes every price into ind and returns its final value.
func feed(ind Indicator, prices []float64) float64 {
	for _, p := range prices {
		ind.Update(p)
	}
	return ind.Value()
}
