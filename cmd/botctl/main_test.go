package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-trader/config"
	"spot-trader/internal/bot"
	"spot-trader/internal/store/memory"
)

var now = time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

func newCtl(secret string) (*ctl, *bytes.Buffer, *memory.Store) {
	cfg := config.Default()
	cfg.AdminTOTPSecret = secret
	out := &bytes.Buffer{}
	store := memory.New()
	return &ctl{cfg: cfg, store: store, out: out, now: func() time.Time { return now }}, out, store
}

func TestCtl_EnableDisable(t *testing.T) {
	c, out, store := newCtl("")
	ctx := context.Background()

	require.NoError(t, c.run(ctx, "enable", ""))
	assert.Contains(t, out.String(), "bot enabled (BTCUSDT, RSI Strategy, 100 per trade)")
	cfg, err := store.LoadBotConfig(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)

	require.NoError(t, c.run(ctx, "disable", ""))
	cfg, _ = store.LoadBotConfig(ctx)
	assert.False(t, cfg.Enabled)
}

func TestCtl_RequiresOTPWhenConfigured(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	c, _, store := newCtl(secret)
	ctx := context.Background()

	assert.ErrorIs(t, c.run(ctx, "enable", ""), bot.ErrInvalidOTP)
	assert.ErrorIs(t, c.run(ctx, "enable", "000000"), bot.ErrInvalidOTP)
	_, err := store.LoadBotConfig(ctx)
	assert.Error(t, err, "nothing stored after a rejected code")

	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)
	require.NoError(t, c.run(ctx, "enable", code))
}

func TestCtl_Status(t *testing.T) {
	c, out, _ := newCtl("")
	require.NoError(t, c.run(context.Background(), "status", ""))

	var view struct {
		Config struct {
			Enabled bool   `json:"enabled"`
			Symbol  string `json:"symbol"`
		} `json:"config"`
		Limits struct {
			TradesToday int `json:"trades_today"`
		} `json:"limits"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.False(t, view.Config.Enabled)
	assert.Equal(t, "BTCUSDT", view.Config.Symbol)
	assert.Zero(t, view.Limits.TradesToday)
}

func TestCtl_UnknownCommand(t *testing.T) {
	c, _, _ := newCtl("")
	assert.ErrorContains(t, c.run(context.Background(), "restart", ""), "unknown command")
}
