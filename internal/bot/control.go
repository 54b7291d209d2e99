package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"spot-trader/internal/model"
)

// ErrInvalidOTP is returned when an admin code does not validate.
var ErrInvalidOTP = errors.New("invalid one-time code")

// LoadOrInit returns the stored configuration, persisting defaults (with
// the bot disabled) when nothing is stored yet.
func LoadOrInit(ctx context.Context, store model.BotConfigStore, defaults model.BotConfig, now time.Time) (model.BotConfig, error) {
	cfg, err := store.LoadBotConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.BotConfig{}, fmt.Errorf("load bot config: %w", err)
	}
	cfg = defaults
	cfg.Enabled = false
	cfg.UpdatedAt = now
	if err := store.SaveBotConfig(ctx, cfg); err != nil {
		return model.BotConfig{}, fmt.Errorf("init bot config: %w", err)
	}
	return cfg, nil
}

// SetEnabled switches the bot on or off and returns the stored result.
func SetEnabled(ctx context.Context, store model.BotConfigStore, defaults model.BotConfig, enabled bool, now time.Time) (model.BotConfig, error) {
	cfg, err := LoadOrInit(ctx, store, defaults, now)
	if err != nil {
		return model.BotConfig{}, err
	}
	cfg.Enabled = enabled
	cfg.UpdatedAt = now
	if err := store.SaveBotConfig(ctx, cfg); err != nil {
		return model.BotConfig{}, fmt.Errorf("save bot config: %w", err)
	}
	return cfg, nil
}

// VerifyOTP checks a 6-digit TOTP code against secret, accepting one
// 30-second step of clock skew. An empty secret disables the check.
func VerifyOTP(secret, code string, now time.Time) error {
	if secret == "" {
		return nil
	}
	if code == "" {
		return fmt.Errorf("%w: code required", ErrInvalidOTP)
	}
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOTP, err)
	}
	if !ok {
		return ErrInvalidOTP
	}
	return nil
}
