package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"spot-trader/config"
	"spot-trader/internal/app"
	"spot-trader/internal/bot"
	"spot-trader/internal/execution"
	applog "spot-trader/internal/logger"
	"spot-trader/internal/model"
)

const usage = `usage: botctl [-config file] [-otp code] enable|disable|status`

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional YAML config file")
	code := flag.String("otp", "", "TOTP code, required when BOT_ADMIN_TOTP_SECRET is set")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger := applog.Init("botctl", applog.ParseLevel(cfg.LogLevel))

	ctx := context.Background()
	deps, err := app.Build(ctx, cfg, nil, logger, app.Options{SkipGateway: true})
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer deps.Close()

	c := &ctl{cfg: cfg, store: deps.Store, out: os.Stdout, now: func() time.Time { return time.Now().UTC() }}
	if err := c.run(ctx, flag.Arg(0), *code); err != nil {
		fmt.Fprintln(os.Stderr, "botctl:", err)
		return 1
	}
	return 0
}

type ctl struct {
	cfg   *config.Config
	store app.Store
	out   io.Writer
	now   func() time.Time
}

type statusView struct {
	Config  model.BotConfig      `json:"config"`
	Limits  execution.Status     `json:"limits"`
	Reports []model.ReportRecord `json:"recent_reports"`
}

// defaults uses the configured strategy kind; Load has already validated
// it, so an invalid kind falls back to RSI.
func (c *ctl) defaults() model.BotConfig {
	kind := model.StrategyRSI
	if sc, err := c.cfg.StrategyConfig(); err == nil {
		kind = sc.Kind
	}
	return model.DefaultBotConfig(c.cfg.Bot.Symbol, kind, c.cfg.Bot.Amount)
}

func (c *ctl) run(ctx context.Context, cmd, code string) error {
	switch cmd {
	case "enable", "disable":
		if err := bot.VerifyOTP(c.cfg.AdminTOTPSecret, code, c.now()); err != nil {
			return err
		}
		cfg, err := bot.SetEnabled(ctx, c.store, c.defaults(), cmd == "enable", c.now())
		if err != nil {
			return err
		}
		state := "disabled"
		if cfg.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(c.out, "bot %s (%s, %s, %g per trade)\n", state, cfg.Symbol, cfg.Strategy.DisplayName(), cfg.Amount)
		return nil

	case "status":
		cfg, err := bot.LoadOrInit(ctx, c.store, c.defaults(), c.now())
		if err != nil {
			return err
		}
		guard := execution.NewGuard(c.cfg.Limits, c.store, c.now)
		limits, err := guard.Status(ctx, cfg.Symbol)
		if err != nil {
			return err
		}
		reports, err := c.store.RecentReports(ctx, 7)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(statusView{Config: cfg, Limits: limits, Reports: reports})

	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}
