// Package strategy turns an indicator snapshot into a trading signal.
//
// Strategies are stateless: every Analyze call sees a fresh Snapshot built
// from the full candle history, so the same input always yields the same
// signal. Strategies are selected by kind through a dispatch table.
package strategy

import (
	"fmt"
	"log/slog"

	"spot-trader/internal/indicator"
	"spot-trader/internal/model"
)

// Default RSI thresholds.
const (
	DefaultOversold   = 30.0
	DefaultOverbought = 70.0
)

// Evaluator is the interface that all trading strategies must implement.
type Evaluator interface {
	// Name returns the human-readable strategy name.
	Name() string

	// Description explains the entry and exit rules.
	Description() string

	// Analyze returns BUY, SELL or HOLD for the snapshot. Missing indicator
	// values always produce HOLD.
	Analyze(snap indicator.Snapshot, price float64) model.Signal
}

// Config selects a strategy and its RSI thresholds.
type Config struct {
	Kind       model.StrategyKind `json:"kind" yaml:"kind"`
	Oversold   float64            `json:"oversold" yaml:"oversold"`
	Overbought float64            `json:"overbought" yaml:"overbought"`
}

// DefaultConfig returns kind with the 30/70 thresholds.
func DefaultConfig(kind model.StrategyKind) Config {
	return Config{Kind: kind, Oversold: DefaultOversold, Overbought: DefaultOverbought}
}

// Validate checks the kind and 0 <= oversold < overbought <= 100.
func (c Config) Validate() error {
	if _, ok := constructors[c.Kind]; !ok {
		return fmt.Errorf("strategy: unknown kind %q", c.Kind)
	}
	if c.Oversold < 0 || c.Overbought > 100 || c.Oversold >= c.Overbought {
		return fmt.Errorf("strategy: thresholds must satisfy 0 <= oversold < overbought <= 100, got %.2f/%.2f",
			c.Oversold, c.Overbought)
	}
	return nil
}

type constructor func(cfg Config, logger *slog.Logger) Evaluator

var constructors = map[model.StrategyKind]constructor{
	model.StrategyRSI: func(cfg Config, logger *slog.Logger) Evaluator {
		return &RSI{oversold: cfg.Oversold, overbought: cfg.Overbought, logger: logger}
	},
	model.StrategyMovingAverage: func(_ Config, logger *slog.Logger) Evaluator {
		return &MovingAverage{logger: logger}
	},
	model.StrategyCombined: func(cfg Config, logger *slog.Logger) Evaluator {
		return &Combined{oversold: cfg.Oversold, overbought: cfg.Overbought, logger: logger}
	},
}

// New validates cfg and returns the matching Evaluator.
func New(cfg Config, logger *slog.Logger) (Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return constructors[cfg.Kind](cfg, logger.With("strategy", string(cfg.Kind))), nil
}
