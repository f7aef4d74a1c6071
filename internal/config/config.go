// Package config loads the signal service configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"ict-signals/internal/api"
	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/logging"
	"ict-signals/internal/marketdata"
	"ict-signals/internal/models"
	"ict-signals/internal/notify"
	"ict-signals/internal/scheduler"
	"ict-signals/internal/signal"
	"ict-signals/internal/store"
	"ict-signals/internal/stream"
)

// ErrTemplateCreated is returned by Load when config.toml was missing and a
// template was written in its place.
var ErrTemplateCreated = errors.New("config file not found, template created")

// Config holds all application configuration.
type Config struct {
	Engine      signal.Config     `mapstructure:"engine" yaml:"engine"`
	Market      MarketConfig      `mapstructure:"market" yaml:"market"`
	Store       store.Config      `mapstructure:"store" yaml:"store"`
	Server      api.ServerConfig  `mapstructure:"server" yaml:"server"`
	Scheduler   scheduler.Config  `mapstructure:"scheduler" yaml:"scheduler"`
	Hub         stream.HubConfig  `mapstructure:"hub" yaml:"hub"`
	Notify      notify.Config     `mapstructure:"notify" yaml:"notify"`
	Alerts      stream.AlertRule  `mapstructure:"alerts" yaml:"alerts"`
	Logging     logging.LogConfig `mapstructure:"logging" yaml:"logging"`
	Credentials Credentials       `mapstructure:"-" yaml:"credentials"` // loaded separately
}

// MarketConfig selects the bar source and bounds calls to it.
type MarketConfig struct {
	Symbol          string        `mapstructure:"symbol" yaml:"symbol"`
	Provider        string        `mapstructure:"provider" yaml:"provider"` // csv, kite, store
	CSVDir          string        `mapstructure:"csv_dir" yaml:"csv_dir"`
	Exchange        string        `mapstructure:"exchange" yaml:"exchange"`
	Lookback        int           `mapstructure:"lookback" yaml:"lookback"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	RedisURL        string        `mapstructure:"redis_url" yaml:"redis_url"`
	RatePerSecond   float64       `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
	Burst           int           `mapstructure:"burst" yaml:"burst"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" yaml:"breaker_timeout"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	SyncStale       time.Duration `mapstructure:"sync_stale" yaml:"sync_stale"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite" yaml:"kite"`
}

// KiteCredentials holds Kite Connect credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	AccessToken string `mapstructure:"access_token" yaml:"access_token"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: signal.DefaultConfig(),
		Market: MarketConfig{
			Symbol:          "NIFTY 50",
			Provider:        "csv",
			CSVDir:          "data",
			Exchange:        "NSE",
			Lookback:        300,
			CacheTTL:        60 * time.Second,
			RatePerSecond:   3,
			Burst:           3,
			BreakerFailures: 5,
			BreakerTimeout:  60 * time.Second,
			FetchTimeout:    10 * time.Second,
			SyncStale:       15 * time.Minute,
		},
		Store: store.Config{
			Driver: "sqlite",
			Path:   filepath.Join(DefaultConfigDir(), "signals.db"),
		},
		Server:    api.DefaultServerConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Hub:       stream.DefaultHubConfig(),
		Notify:    notify.Config{Level: string(notify.LevelSignalsOnly)},
		Alerts:    stream.DefaultAlertRule(),
		Logging:   logging.DefaultLogConfig(),
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/ict-signals"
	}
	return filepath.Join(home, ".config", "ict-signals")
}

// Load loads configuration from configDir, layering config.toml and
// credentials.toml over the defaults and then the environment.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", &cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

// loadCredentials tolerates a missing file: only the kite provider needs it.
func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ICT_SYMBOL"); v != "" {
		cfg.Market.Symbol = v
	}
	if v := os.Getenv("ICT_PROVIDER"); v != "" {
		cfg.Market.Provider = v
	}
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Market.RedisURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.Driver = "postgres"
		cfg.Store.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func invalid(field string, value interface{}, msg string) error {
	return apperrors.NewValidationError(field, value, msg, apperrors.ErrConfigInvalid)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Market.Symbol) == "" {
		return invalid("market.symbol", c.Market.Symbol, "symbol is required")
	}
	switch c.Market.Provider {
	case "csv", "kite", "store":
	default:
		return invalid("market.provider", c.Market.Provider, "must be csv, kite or store")
	}
	if c.Market.Provider == "kite" && (c.Credentials.Kite.APIKey == "" || c.Credentials.Kite.AccessToken == "") {
		return invalid("credentials.kite", "", "kite provider needs api_key and access_token")
	}
	if c.Market.RatePerSecond <= 0 {
		return invalid("market.rate_per_sec", c.Market.RatePerSecond, "must be positive")
	}

	if _, err := models.ParseTimeframe(string(c.Engine.Primary)); err != nil {
		return invalid("engine.primary", c.Engine.Primary, "unknown timeframe")
	}
	for tf, w := range c.Engine.MTF.Weights {
		if _, err := models.ParseTimeframe(string(tf)); err != nil {
			return invalid("engine.mtf.weights", tf, "unknown timeframe")
		}
		if w < 0 {
			return invalid("engine.mtf.weights", w, "weights must be non-negative")
		}
	}

	s := c.Engine.Scoring
	if s.BuyScore <= s.SellScore || s.StrongBuyScore < s.BuyScore || s.StrongSellScore > s.SellScore {
		return invalid("engine.scoring", s.BuyScore, "need strong_sell <= sell < buy <= strong_buy")
	}
	if s.MaxConfidence <= 0 || s.MaxConfidence > 100 {
		return invalid("engine.scoring.max_confidence", s.MaxConfidence, "must be in (0, 100]")
	}
	if s.ConfidenceFloor < 0 || s.ConfidenceFloor > 100 {
		return invalid("engine.scoring.confidence_floor", s.ConfidenceFloor, "must be in [0, 100]")
	}
	if s.MinRiskReward < 0 {
		return invalid("engine.scoring.min_risk_reward", s.MinRiskReward, "must be non-negative")
	}
	if s.StopATR <= 0 || s.Target1ATR <= 0 || s.Target2ATR < s.Target1ATR {
		return invalid("engine.scoring.stop_atr", s.StopATR, "need stop_atr > 0 and 0 < target1_atr <= target2_atr")
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return invalid("store.driver", c.Store.Driver, "must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return invalid("store.dsn", "", "postgres needs a dsn")
	}

	if c.Alerts.MinQuality != "" {
		if _, ok := models.ParseSignalQuality(string(c.Alerts.MinQuality)); !ok {
			return invalid("alerts.min_quality", c.Alerts.MinQuality, "unknown quality")
		}
	}
	switch notify.NotificationLevel(c.Notify.Level) {
	case "", notify.LevelAll, notify.LevelSignalsOnly, notify.LevelErrorsOnly:
	default:
		return invalid("notify.level", c.Notify.Level, "must be all, signals_only or errors_only")
	}

	return nil
}

// Resilience returns the provider limits from the market table.
func (c *Config) Resilience() marketdata.ResilienceConfig {
	r := marketdata.DefaultResilienceConfig(c.Market.Provider)
	r.RatePerSecond = c.Market.RatePerSecond
	r.Burst = c.Market.Burst
	r.BreakerFailures = c.Market.BreakerFailures
	r.BreakerTimeout = c.Market.BreakerTimeout
	r.FetchTimeout = c.Market.FetchTimeout
	return r
}

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	c.Credentials.Kite.APIKey = logging.MaskSecret(c.Credentials.Kite.APIKey)
	c.Credentials.Kite.AccessToken = logging.MaskSecret(c.Credentials.Kite.AccessToken)
	c.Server.JWTSecret = logging.MaskSecret(c.Server.JWTSecret)
	c.Notify.Telegram.BotToken = logging.MaskSecret(c.Notify.Telegram.BotToken)
	c.Store.DSN = logging.RedactURL(c.Store.DSN)
	c.Market.RedisURL = logging.RedactURL(c.Market.RedisURL)
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
