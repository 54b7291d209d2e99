package strategy

import (
	"fmt"
	"log/slog"

	"spot-trader/internal/indicator"
	"spot-trader/internal/model"
)

// RSI buys when the RSI is below the oversold threshold and sells when it
// is above the overbought threshold. Both comparisons are strict.
type RSI struct {
	oversold   float64
	overbought float64
	logger     *slog.Logger
}

func (s *RSI) Name() string { return model.StrategyRSI.DisplayName() }

func (s *RSI) Description() string {
	return fmt.Sprintf("Buy when RSI < %.0f (oversold), sell when RSI > %.0f (overbought)", s.oversold, s.overbought)
}

func (s *RSI) Analyze(snap indicator.Snapshot, price float64) model.Signal {
	if snap.RSI == nil {
		s.logger.Warn("RSI not available, holding", "price", price)
		return model.SignalHold
	}
	rsi := *snap.RSI

	switch {
	case rsi < s.oversold:
		s.logger.Info("RSI oversold", "rsi", rsi, "threshold", s.oversold, "price", price)
		return model.SignalBuy
	case rsi > s.overbought:
		s.logger.Info("RSI overbought", "rsi", rsi, "threshold", s.overbought, "price", price)
		return model.SignalSell
	}
	s.logger.Debug("RSI neutral", "rsi", rsi)
	return model.SignalHold
}
