package strategy

import (
	"fmt"
	"log/slog"

	"spot-trader/internal/indicator"
	"spot-trader/internal/model"
)

// Combined requires the RSI extreme and the MA trend to agree:
// oversold in a bullish trend buys, overbought in a bearish trend sells.
type Combined struct {
	oversold   float64
	overbought float64
	logger     *slog.Logger
}

func (s *Combined) Name() string { return model.StrategyCombined.DisplayName() }

func (s *Combined) Description() string {
	return fmt.Sprintf("Buy when RSI < %.0f in a bullish trend, sell when RSI > %.0f in a bearish trend",
		s.oversold, s.overbought)
}

func (s *Combined) Analyze(snap indicator.Snapshot, price float64) model.Signal {
	if snap.RSI == nil || !snap.HasMovingAverages() {
		s.logger.Warn("indicators incomplete, holding", "price", price)
		return model.SignalHold
	}
	rsi := *snap.RSI
	bullish := *snap.ShortMA > *snap.LongMA
	bearish := *snap.ShortMA < *snap.LongMA

	switch {
	case rsi < s.oversold && bullish:
		s.logger.Info("oversold in bullish trend", "rsi", rsi, "trend", snap.Trend, "price", price)
		return model.SignalBuy
	case rsi > s.overbought && bearish:
		s.logger.Info("overbought in bearish trend", "rsi", rsi, "trend", snap.Trend, "price", price)
		return model.SignalSell
	case rsi < s.oversold:
		s.logger.Info("oversold but trend not bullish, holding", "rsi", rsi, "trend", snap.Trend)
	case rsi > s.overbought:
		s.logger.Info("overbought but trend not bearish, holding", "rsi", rsi, "trend", snap.Trend)
	}
	return model.SignalHold
}
