// Package execution runs one strategy pass for a symbol: fetch market data,
// build an indicator snapshot, evaluate the strategy, check balances and
// safety limits, place the order and record the trade.
//
// Every pass ends in exactly one of three ways: a Result carrying the
// executed trade, a Result carrying a no-trade reason, or an error.
package execution

import (
	"time"

	"spot-trader/internal/indicator"
	"spot-trader/internal/model"
	"spot-trader/internal/strategy"
)

// Stage is the position of a pass in the execution state machine.
type Stage int

const (
	StageIdle Stage = iota
	StagePriceFetched
	StageIndicatorsComputed
	StageSignalDetermined
	StageBalanceChecked
	StageOrderSubmitted
	StageTradeRecorded
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageIdle:               "idle",
	StagePriceFetched:       "price_fetched",
	StageIndicatorsComputed: "indicators_computed",
	StageSignalDetermined:   "signal_determined",
	StageBalanceChecked:     "balance_checked",
	StageOrderSubmitted:     "order_submitted",
	StageTradeRecorded:      "trade_recorded",
	StageDone:               "done",
	StageFailed:             "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Result is the outcome of one pass. Exactly one of Trade and Reason is set.
type Result struct {
	Symbol    string             `json:"symbol"`
	Strategy  string             `json:"strategy"`
	Config    strategy.Config    `json:"config"`
	Signal    model.Signal       `json:"signal"`
	Price     float64            `json:"price"`
	Snapshot  indicator.Snapshot `json:"indicators"`
	Trade     *model.Trade       `json:"trade,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	DryRun    bool               `json:"dry_run"`
	Persisted bool               `json:"persisted"`
	At        time.Time          `json:"at"`
}

// Executed reports whether an order reached the exchange.
func (r *Result) Executed() bool {
	return r.Trade != nil
}

// Outcome is the metrics label for the pass: "trade" or "no_trade".
func (r *Result) Outcome() string {
	if r.Executed() {
		return "trade"
	}
	return "no_trade"
}

func (r *Result) noTrade(reason string) *Result {
	r.Reason = reason
	r.Trade = nil
	return r
}

func (r *Result) withTrade(t model.Trade) *Result {
	r.Trade = &t
	r.Reason = ""
	return r
}
