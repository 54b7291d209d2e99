package strategy

import (
	"log/slog"

	"spot-trader/internal/indicator"
	"spot-trader/internal/model"
)

// MovingAverage implements the SMA crossover strategy.
//
// Buy signal: short SMA crosses above long SMA (golden cross)
// Sell signal: short SMA crosses below long SMA (death cross)
type MovingAverage struct {
	logger *slog.Logger
}

func (s *MovingAverage) Name() string { return model.StrategyMovingAverage.DisplayName() }

func (s *MovingAverage) Description() string {
	return "Buy on golden cross (short MA crosses above long MA), sell on death cross"
}

func (s *MovingAverage) Analyze(snap indicator.Snapshot, price float64) model.Signal {
	if !snap.HasMovingAverages() {
		s.logger.Warn("moving averages not available, holding", "price", price)
		return model.SignalHold
	}

	if snap.GoldenCross {
		s.logger.Info("golden cross detected", "short_ma", *snap.ShortMA, "long_ma", *snap.LongMA, "price", price)
		return model.SignalBuy
	}
	if snap.DeathCross {
		s.logger.Info("death cross detected", "short_ma", *snap.ShortMA, "long_ma", *snap.LongMA, "price", price)
		return model.SignalSell
	}
	s.logger.Debug("no crossover", "trend", snap.Trend)
	return model.SignalHold
}
