package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0600))
}

func TestLoadCreatesTemplate(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTemplateCreated))
	assert.FileExists(t, filepath.Join(dir, "config.toml"))

	// the written template must load cleanly and match the defaults
	cfg, err := Load(dir)
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Engine, cfg.Engine)
	assert.Equal(t, def.Market, cfg.Market)
	assert.Equal(t, def.Store, cfg.Store)
	assert.Equal(t, def.Scheduler, cfg.Scheduler)
	assert.Equal(t, def.Alerts, cfg.Alerts)
	assert.FileExists(t, filepath.Join(dir, "credentials.toml"))
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.toml", `
[market]
symbol = "BANKNIFTY"
cache_ttl = "2m"

[engine.scoring]
min_risk_reward = 1.2

[engine.mtf.weights]
1m = 0.0
`)
	writeFile(t, dir, "credentials.toml", `
[kite]
api_key = "key"
access_token = "tok"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "BANKNIFTY", cfg.Market.Symbol)
	assert.Equal(t, 2*time.Minute, cfg.Market.CacheTTL)
	assert.Equal(t, "csv", cfg.Market.Provider)
	assert.Equal(t, 1.2, cfg.Engine.Scoring.MinRiskReward)
	assert.Equal(t, 40.0, cfg.Engine.Scoring.RiskRewardPenalty)
	assert.Equal(t, 0.0, cfg.Engine.MTF.Weights[models.TF1m])
	assert.Equal(t, 3.0, cfg.Engine.MTF.Weights[models.TF1d])
	assert.Equal(t, "key", cfg.Credentials.Kite.APIKey)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.toml", "[market]\nsymbol = \"NIFTY 50\"\n")
	writeFile(t, dir, "credentials.toml", "")

	t.Setenv("ICT_SYMBOL", "RELIANCE")
	t.Setenv("ICT_PROVIDER", "kite")
	t.Setenv("KITE_API_KEY", "k")
	t.Setenv("KITE_ACCESS_TOKEN", "t")
	t.Setenv("DATABASE_URL", "postgres://localhost/signals")
	t.Setenv("JWT_SECRET", "shh")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE", cfg.Market.Symbol)
	assert.Equal(t, "kite", cfg.Market.Provider)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "shh", cfg.Server.JWTSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Market.RedisURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty symbol", func(c *Config) { c.Market.Symbol = " " }, "market.symbol"},
		{"bad provider", func(c *Config) { c.Market.Provider = "yahoo" }, "market.provider"},
		{"kite without creds", func(c *Config) { c.Market.Provider = "kite" }, "credentials.kite"},
		{"bad primary", func(c *Config) { c.Engine.Primary = "2h" }, "engine.primary"},
		{"bad weight tf", func(c *Config) { c.Engine.MTF.Weights["3h"] = 1 }, "engine.mtf.weights"},
		{"negative weight", func(c *Config) { c.Engine.MTF.Weights[models.TF1d] = -1 }, "engine.mtf.weights"},
		{"inverted thresholds", func(c *Config) { c.Engine.Scoring.BuyScore = 30 }, "engine.scoring"},
		{"confidence cap", func(c *Config) { c.Engine.Scoring.MaxConfidence = 120 }, "engine.scoring.max_confidence"},
		{"targets", func(c *Config) { c.Engine.Scoring.Target2ATR = 1 }, "engine.scoring.stop_atr"},
		{"store driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres dsn", func(c *Config) { c.Store.Driver = "postgres" }, "store.dsn"},
		{"alert quality", func(c *Config) { c.Alerts.MinQuality = "GREAT" }, "alerts.min_quality"},
		{"notify level", func(c *Config) { c.Notify.Level = "loud" }, "notify.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrConfigInvalid))

			var verr *apperrors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	def := Default()
	assert.NoError(t, def.Validate())
}

func TestRedactedYAML(t *testing.T) {
	cfg := Default()
	cfg.Credentials.Kite.AccessToken = "very-secret"
	cfg.Server.JWTSecret = "jwt-secret"
	cfg.Store.DSN = "postgres://ict:hunter22@db/signals"

	out, err := cfg.YAML()
	require.NoError(t, err)
	s := string(out)
	assert.NotContains(t, s, "very-secret")
	assert.NotContains(t, s, "jwt-secret")
	assert.NotContains(t, s, "hunter22")
	assert.Contains(t, s, "postgres://ict:xxxxx@db/signals")
	assert.True(t, strings.Contains(s, "symbol: NIFTY 50"))
	assert.Contains(t, s, "cache_ttl: 1m0s")

	// the original is untouched
	assert.Equal(t, "very-secret", cfg.Credentials.Kite.AccessToken)
}

func TestResilience(t *testing.T) {
	cfg := Default()
	cfg.Market.RatePerSecond = 7
	r := cfg.Resilience()
	assert.Equal(t, 7.0, r.RatePerSecond)
	assert.Equal(t, "csv", r.Name)
	assert.Equal(t, uint32(5), r.BreakerFailures)
}
