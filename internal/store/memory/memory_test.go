package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-trader/internal/model"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func trade(id, symbol string, side model.Side, at time.Time) model.Trade {
	return model.Trade{
		ID: id, Symbol: symbol, Side: side, Status: model.StatusFilled,
		Quantity: 1, Price: 10, CreatedAt: at, UpdatedAt: at,
	}
}

func TestStore_Ordering(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, trade("b", "BTCUSDT", model.SideBuy, base.Add(time.Hour))))
	require.NoError(t, s.Create(ctx, trade("a", "BTCUSDT", model.SideBuy, base)))
	require.NoError(t, s.Create(ctx, trade("c", "ETHUSDT", model.SideBuy, base.Add(2*time.Hour))))
	require.Error(t, s.Create(ctx, trade("a", "BTCUSDT", model.SideBuy, base)))

	open, err := s.OpenPositions(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].ID)

	recent, err := s.FindBySymbol(ctx, "BTCUSDT", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].ID)

	inRange, err := s.FindByDateRange(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, inRange, 2, "upper bound is exclusive")
}

func TestStore_VersionedUpdate(t *testing.T) {
	ctx := context.Background()
	s := New()
	buy := trade("buy", "BTCUSDT", model.SideBuy, base)
	sell := trade("sell", "BTCUSDT", model.SideSell, base.Add(time.Minute))
	require.NoError(t, s.Create(ctx, buy))
	require.NoError(t, s.Create(ctx, sell))

	require.NoError(t, s.Update(ctx, buy.WithClosedBy("sell", base)))
	got, err := s.FindByID(ctx, "buy")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	// buy is stale now: nothing may be written.
	err = s.Update(ctx, sell.WithMatch("buy", 1, 10, base), buy)
	assert.True(t, errors.Is(err, model.ErrVersionConflict))
	got, _ = s.FindByID(ctx, "sell")
	assert.Nil(t, got.PnL)
}

func TestStore_ReportsAndConfig(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.LoadBotConfig(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)
	require.NoError(t, s.SaveBotConfig(ctx, model.DefaultBotConfig("BTCUSDT", model.StrategyRSI, 100)))
	cfg, err := s.LoadBotConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)

	require.NoError(t, s.SaveReport(ctx, model.ReportRecord{Date: "2024-05-01"}))
	require.NoError(t, s.SaveReport(ctx, model.ReportRecord{Date: "2024-05-02"}))
	r, err := s.FindReport(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", r.Date)

	recent, err := s.RecentReports(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2024-05-02", recent[0].Date)
}
