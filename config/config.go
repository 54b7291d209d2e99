// Package config builds the single Config value the binaries run with:
// defaults, then an optional YAML file, then .env and process environment
// overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"spot-trader/internal/exchange"
	"spot-trader/internal/execution"
	"spot-trader/internal/model"
	"spot-trader/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	Exchange ExchangeConfig   `yaml:"exchange"`
	Bot      BotConfig        `yaml:"bot"`
	Limits   execution.Limits `yaml:"limits"`
	Retry    RetryConfig      `yaml:"retry"`
	Storage  StorageConfig    `yaml:"storage"`
	Notify   NotifyConfig     `yaml:"notify"`

	MetricsAddr     string `yaml:"metrics_addr"`
	AdminTOTPSecret string `yaml:"admin_totp_secret"`
	LogLevel        string `yaml:"log_level" validate:"oneof=debug info warn warning error"`
	Timezone        string `yaml:"timezone" validate:"required"`
}

// ExchangeConfig selects and authenticates the exchange gateway.
type ExchangeConfig struct {
	APIKey      string  `yaml:"api_key" validate:"required_if=Paper false"`
	SecretKey   string  `yaml:"secret_key" validate:"required_if=Paper false"`
	Testnet     bool    `yaml:"testnet"`
	Paper       bool    `yaml:"paper"`
	PaperQuote  float64 `yaml:"paper_quote_balance" validate:"gte=0"`
	SlippageBps int64   `yaml:"paper_slippage_bps" validate:"gte=0,lte=1000"`
}

// BotConfig holds the defaults of a scheduled pass.
type BotConfig struct {
	Symbol     string              `yaml:"symbol" validate:"required,uppercase,alphanum"`
	Strategy   string              `yaml:"strategy" validate:"required"`
	Amount     float64             `yaml:"amount" validate:"gt=0"`
	Oversold   float64             `yaml:"rsi_oversold" validate:"gte=0,lt=100"`
	Overbought float64             `yaml:"rsi_overbought" validate:"gt=0,lte=100,gtfield=Oversold"`
	Interval   model.KlineInterval `yaml:"kline_interval" validate:"oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d"`
	KlineLimit int                 `yaml:"kline_limit" validate:"gte=50,lte=1000"`
}

// RetryConfig tunes the gateway retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"gte=0"`
}

// StorageConfig locates the ledger and the optional Redis cache.
type StorageConfig struct {
	SQLitePath    string        `yaml:"sqlite_path" validate:"required"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
	KlineCacheTTL time.Duration `yaml:"kline_cache_ttl" validate:"gte=0"`
	LockTTL       time.Duration `yaml:"lock_ttl" validate:"gte=0"`
}

// NotifyConfig enables the alert backends. Empty values disable a backend.
type NotifyConfig struct {
	TelegramToken       string  `yaml:"telegram_token"`
	TelegramChatID      string  `yaml:"telegram_chat_id" validate:"required_with=TelegramToken"`
	WebhookURL          string  `yaml:"webhook_url" validate:"omitempty,url"`
	LowBalanceThreshold float64 `yaml:"low_balance_threshold" validate:"gte=0"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			Testnet:     true,
			PaperQuote:  10000,
			SlippageBps: 5,
		},
		Bot: BotConfig{
			Symbol:     "BTCUSDT",
			Strategy:   string(model.StrategyRSI),
			Amount:     100,
			Oversold:   strategy.DefaultOversold,
			Overbought: strategy.DefaultOverbought,
			Interval:   execution.DefaultInterval,
			KlineLimit: execution.DefaultKlineLimit,
		},
		Retry: RetryConfig{
			MaxAttempts: exchange.DefaultRetryPolicy().MaxAttempts,
			BaseDelay:   exchange.DefaultRetryPolicy().BaseDelay,
		},
		Storage: StorageConfig{
			SQLitePath:    "data/trades.db",
			KlineCacheTTL: 30 * time.Second,
			LockTTL:       2 * time.Minute,
		},
		Notify: NotifyConfig{
			LowBalanceThreshold: 200,
		},
		MetricsAddr: ":9090",
		LogLevel:    "info",
		Timezone:    "UTC",
	}
}

// Load builds the configuration. path names an optional YAML file; an
// empty path skips it. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	e := &env{}
	e.str("BINANCE_API_KEY", &c.Exchange.APIKey)
	e.str("BINANCE_SECRET_KEY", &c.Exchange.SecretKey)
	e.boolean("BINANCE_TESTNET", &c.Exchange.Testnet)
	e.boolean("BOT_PAPER", &c.Exchange.Paper)
	e.float("PAPER_QUOTE_BALANCE", &c.Exchange.PaperQuote)
	e.integer64("PAPER_SLIPPAGE_BPS", &c.Exchange.SlippageBps)

	e.str("BOT_SYMBOL", &c.Bot.Symbol)
	e.str("BOT_STRATEGY", &c.Bot.Strategy)
	e.float("BOT_AMOUNT", &c.Bot.Amount)
	e.float("BOT_RSI_OVERSOLD", &c.Bot.Oversold)
	e.float("BOT_RSI_OVERBOUGHT", &c.Bot.Overbought)
	var interval string
	if e.str("BOT_KLINE_INTERVAL", &interval) {
		c.Bot.Interval = model.KlineInterval(interval)
	}
	e.integer("BOT_KLINE_LIMIT", &c.Bot.KlineLimit)

	e.integer("BOT_MAX_TRADES_PER_DAY", &c.Limits.MaxTradesPerDay)
	e.float("BOT_MAX_AMOUNT_PER_TRADE", &c.Limits.MaxAmountPerTrade)
	e.float("BOT_MIN_BALANCE", &c.Limits.MinQuoteBalance)
	e.duration("BOT_COOLDOWN", &c.Limits.Cooldown)

	e.integer("EXCHANGE_RETRY_ATTEMPTS", &c.Retry.MaxAttempts)
	e.duration("EXCHANGE_RETRY_DELAY", &c.Retry.BaseDelay)

	e.str("SQLITE_PATH", &c.Storage.SQLitePath)
	e.str("REDIS_ADDR", &c.Storage.RedisAddr)
	e.str("REDIS_PASSWORD", &c.Storage.RedisPassword)
	e.integer("REDIS_DB", &c.Storage.RedisDB)
	e.duration("KLINE_CACHE_TTL", &c.Storage.KlineCacheTTL)

	e.str("TELEGRAM_BOT_TOKEN", &c.Notify.TelegramToken)
	e.str("TELEGRAM_CHAT_ID", &c.Notify.TelegramChatID)
	e.str("WEBHOOK_URL", &c.Notify.WebhookURL)
	e.float("LOW_BALANCE_THRESHOLD", &c.Notify.LowBalanceThreshold)

	e.str("METRICS_ADDR", &c.MetricsAddr)
	e.str("BOT_ADMIN_TOTP_SECRET", &c.AdminTOTPSecret)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("REPORT_TIMEZONE", &c.Timezone)
	return errors.Join(e.errs...)
}

var validate = validator.New()

// Validate checks struct constraints plus the fields validator tags cannot
// express: the strategy name and the timezone.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.StrategyConfig(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// StrategyConfig resolves the configured strategy.
func (c *Config) StrategyConfig() (strategy.Config, error) {
	kind, err := model.ParseStrategyKind(c.Bot.Strategy)
	if err != nil {
		return strategy.Config{}, err
	}
	sc := strategy.Config{Kind: kind, Oversold: c.Bot.Oversold, Overbought: c.Bot.Overbought}
	return sc, sc.Validate()
}

// RetryPolicy returns the gateway retry policy.
func (c *Config) RetryPolicy() exchange.RetryPolicy {
	return exchange.RetryPolicy{MaxAttempts: c.Retry.MaxAttempts, BaseDelay: c.Retry.BaseDelay}
}

// Location returns the timezone used for day boundaries in reports.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.Storage.RedisAddr != ""
}

// env applies environment overrides, collecting parse errors.
type env struct {
	errs []error
}

func (e *env) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(key string, dst *string) bool {
	v, ok := e.lookup(key)
	if ok {
		*dst = v
	}
	return ok
}

func (e *env) boolean(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *env) float(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *env) integer(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *env) integer64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
			return
		}
		*dst = n
	}
}

// duration accepts Go durations ("90s", "5m") or a bare number of minutes.
func (e *env) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Minute
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return
	}
	*dst = d
}
