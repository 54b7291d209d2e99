package strategy

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-trader/internal/indicator"
	"spot-trader/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f(v float64) *float64 { return &v }

func newEvaluator(t *testing.T, kind model.StrategyKind) Evaluator {
	t.Helper()
	ev, err := New(DefaultConfig(kind), quietLogger())
	require.NoError(t, err)
	return ev
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults rsi", DefaultConfig(model.StrategyRSI), false},
		{"defaults combined", DefaultConfig(model.StrategyCombined), false},
		{"bounds inclusive", Config{Kind: model.StrategyRSI, Oversold: 0, Overbought: 100}, false},
		{"unknown kind", Config{Kind: "macd", Oversold: 30, Overbought: 70}, true},
		{"inverted thresholds", Config{Kind: model.StrategyRSI, Oversold: 70, Overbought: 30}, true},
		{"equal thresholds", Config{Kind: model.StrategyRSI, Oversold: 50, Overbought: 50}, true},
		{"negative oversold", Config{Kind: model.StrategyRSI, Oversold: -1, Overbought: 70}, true},
		{"overbought above 100", Config{Kind: model.StrategyRSI, Oversold: 30, Overbought: 101}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Dispatch(t *testing.T) {
	assert.IsType(t, &RSI{}, newEvaluator(t, model.StrategyRSI))
	assert.IsType(t, &MovingAverage{}, newEvaluator(t, model.StrategyMovingAverage))
	assert.IsType(t, &Combined{}, newEvaluator(t, model.StrategyCombined))

	_, err := New(Config{Kind: "unknown", Oversold: 30, Overbought: 70}, nil)
	assert.Error(t, err)
}

func TestRSIStrategy(t *testing.T) {
	ev := newEvaluator(t, model.StrategyRSI)

	tests := []struct {
		name string
		rsi  *float64
		want model.Signal
	}{
		{"oversold", f(25), model.SignalBuy},
		{"overbought", f(75), model.SignalSell},
		{"neutral", f(50), model.SignalHold},
		{"at oversold threshold", f(30), model.SignalHold},
		{"at overbought threshold", f(70), model.SignalHold},
		{"missing", nil, model.SignalHold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ev.Analyze(indicator.Snapshot{RSI: tt.rsi}, 100)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRSIStrategy_CustomThresholds(t *testing.T) {
	ev, err := New(Config{Kind: model.StrategyRSI, Oversold: 20, Overbought: 80}, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, model.SignalHold, ev.Analyze(indicator.Snapshot{RSI: f(25)}, 100))
	assert.Equal(t, model.SignalBuy, ev.Analyze(indicator.Snapshot{RSI: f(19.99)}, 100))
	assert.Equal(t, model.SignalSell, ev.Analyze(indicator.Snapshot{RSI: f(80.01)}, 100))
}

func TestMovingAverageStrategy(t *testing.T) {
	ev := newEvaluator(t, model.StrategyMovingAverage)
	base := indicator.Snapshot{ShortMA: f(105), LongMA: f(100), Trend: indicator.TrendBullish}

	golden := base
	golden.GoldenCross = true
	assert.Equal(t, model.SignalBuy, ev.Analyze(golden, 100))

	death := indicator.Snapshot{ShortMA: f(95), LongMA: f(100), Trend: indicator.TrendBearish, DeathCross: true}
	assert.Equal(t, model.SignalSell, ev.Analyze(death, 100))

	assert.Equal(t, model.SignalHold, ev.Analyze(base, 100), "trend without a cross holds")

	missing := indicator.Snapshot{ShortMA: f(105), GoldenCross: true}
	assert.Equal(t, model.SignalHold, ev.Analyze(missing, 100), "missing long MA holds")
}

func TestCombinedStrategy(t *testing.T) {
	ev := newEvaluator(t, model.StrategyCombined)
	bull := func(rsi float64) indicator.Snapshot {
		return indicator.Snapshot{RSI: f(rsi), ShortMA: f(110), LongMA: f(100), Trend: indicator.TrendBullish}
	}
	bear := func(rsi float64) indicator.Snapshot {
		return indicator.Snapshot{RSI: f(rsi), ShortMA: f(90), LongMA: f(100), Trend: indicator.TrendBearish}
	}

	assert.Equal(t, model.SignalBuy, ev.Analyze(bull(25), 100))
	assert.Equal(t, model.SignalSell, ev.Analyze(bear(75), 100))
	assert.Equal(t, model.SignalHold, ev.Analyze(bear(25), 100), "oversold but bearish")
	assert.Equal(t, model.SignalHold, ev.Analyze(bull(75), 100), "overbought but bullish")
	assert.Equal(t, model.SignalHold, ev.Analyze(bull(50), 100))

	flat := indicator.Snapshot{RSI: f(25), ShortMA: f(100), LongMA: f(100), Trend: indicator.TrendNeutral}
	assert.Equal(t, model.SignalHold, ev.Analyze(flat, 100), "neutral trend never buys")

	noMA := indicator.Snapshot{RSI: f(25)}
	assert.Equal(t, model.SignalHold, ev.Analyze(noMA, 100))
}

func TestStrategy_Deterministic(t *testing.T) {
	ev := newEvaluator(t, model.StrategyCombined)
	snap := indicator.Snapshot{RSI: f(25), ShortMA: f(110), LongMA: f(100)}
	first := ev.Analyze(snap, 100)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ev.Analyze(snap, 100))
	}
}

func TestSignalSide(t *testing.T) {
	side, ok := model.SignalBuy.Side()
	assert.True(t, ok)
	assert.Equal(t, model.SideBuy, side)

	side, ok = model.SignalSell.Side()
	assert.True(t, ok)
	assert.Equal(t, model.SideSell, side)

	_, ok = model.SignalHold.Side()
	assert.False(t, ok)
	assert.False(t, model.SignalHold.IsActionable())
}

func TestNamesAndDescriptions(t *testing.T) {
	for _, kind := range []model.StrategyKind{model.StrategyRSI, model.StrategyMovingAverage, model.StrategyCombined} {
		ev := newEvaluator(t, kind)
		assert.Equal(t, kind.DisplayName(), ev.Name())
		assert.NotEmpty(t, ev.Description())
	}
}
