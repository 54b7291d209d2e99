package execution

import "fmt"

// InsufficientBalanceError reports an order that the account cannot fund.
// The orchestrator converts it into a no-trade result; it is never fatal.
type InsufficientBalanceError struct {
	Asset     string
	Required  float64
	Available float64
}

func (e *InsufficientBalanceError) Error() string {
	if e.Required <= 0 {
		return fmt.Sprintf("no %s available to sell", e.Asset)
	}
	return fmt.Sprintf("insufficient %s balance: required %s, available %s",
		e.Asset, trimFloat(e.Required), trimFloat(e.Available))
}

func trimFloat(v float64) string {
	return fmt.Sprintf("%.8g", v)
}
