package cli

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ict-signals/internal/config"
	"ict-signals/internal/marketdata"
	"ict-signals/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Market.CSVDir = dir
	cfg.Market.RatePerSecond = 1000
	cfg.Market.Burst = 100
	cfg.Store.Path = filepath.Join(dir, "signals.db")
	return &cfg
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmdWithConfig(cfg, zerolog.Nop())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeWaveCSV writes n bars of a rising wave, so the series has swings.
func writeWaveCSV(t *testing.T, dir, name string, tf models.Timeframe, n int) string {
	t.Helper()
	start := time.Date(2024, 3, 4, 3, 45, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		mid := 22000 + float64(i)*2 + 40*math.Sin(float64(i)/6)
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * tf.Duration()),
			Open:      mid - 3,
			High:      mid + 8,
			Low:       mid - 8,
			Close:     mid + 3,
			Volume:    1000 + float64(i%7)*150,
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, marketdata.WriteCSV(f, models.BarSeries{Timeframe: tf, Bars: bars}))
	return path
}

func TestFileNameParsing(t *testing.T) {
	tests := []struct {
		path   string
		symbol string
		tf     string
	}{
		{"data/NIFTY_15m.csv", "NIFTY", "15m"},
		{"/tmp/NIFTY 50_1h.csv", "NIFTY 50", "1h"},
		{"BANK_NIFTY_1d.csv", "BANK_NIFTY", "1d"},
		{"bars.csv", "bars", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.symbol, symbolFromFile(tt.path))
			assert.Equal(t, tt.tf, timeframeFromFile(tt.path))
		})
	}
}

func TestHistoryFilter(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	f, err := historyFilter("NIFTY", "buy", "very_good", "real", "24h", 10, now)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionBuy, f.Direction)
	assert.Equal(t, models.QualityVeryGood, f.Quality)
	assert.Equal(t, models.DataReal, f.DataQuality)
	assert.Equal(t, now.Add(-24*time.Hour), f.Since)
	assert.Equal(t, 10, f.Limit)

	f, err = historyFilter("", "", "", "", "2024-03-01T00:00:00Z", 5, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), f.Since)

	for _, bad := range [][4]string{
		{"LONG", "", "", ""},
		{"", "GREAT", "", ""},
		{"", "", "SYNTHETIC", ""},
		{"", "", "", "yesterday"},
	} {
		_, err := historyFilter("", bad[0], bad[1], bad[2], bad[3], 5, now)
		assert.Error(t, err, "%v", bad)
	}
}

func TestAnalyzeCommand(t *testing.T) {
	cfg := testConfig(t)
	path := writeWaveCSV(t, t.TempDir(), "NIFTY_1h.csv", models.TF1h, 320)

	out, err := run(t, cfg, "analyze", "--file", path, "--json")
	require.NoError(t, err)

	var sig models.TradeSignal
	require.NoError(t, json.Unmarshal([]byte(out), &sig))
	assert.Equal(t, "NIFTY", sig.Symbol)
	assert.Equal(t, models.DataReal, sig.DataQuality)
	assert.Contains(t, []models.Direction{models.DirectionBuy, models.DirectionSell, models.DirectionHold}, sig.Direction)
	assert.GreaterOrEqual(t, sig.Confidence, 0.0)
	assert.LessOrEqual(t, sig.Confidence, 100.0)
	assert.NotEmpty(t, sig.Reasons)

	// Same bars, same signal.
	again, err := run(t, cfg, "analyze", "--file", path, "--json")
	require.NoError(t, err)
	assert.JSONEq(t, out, again)

	text, err := run(t, cfg, "analyze", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, text, "Market Structure")
	assert.Contains(t, text, "Multi-Timeframe")
}

func TestAnalyzeCommandErrors(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "analyze")
	assert.ErrorContains(t, err, "--file")

	path := writeWaveCSV(t, t.TempDir(), "bars.csv", models.TF1h, 10)
	_, err = run(t, cfg, "analyze", "--file", path)
	assert.ErrorContains(t, err, "--timeframe")

	_, err = run(t, cfg, "analyze", "--file", filepath.Join(t.TempDir(), "NIFTY_1h.csv"))
	assert.Error(t, err)
}

func TestSignalFallbackIsSavedAndListed(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "signal", "--symbol", "NIFTY", "--save", "--json")
	require.NoError(t, err)

	var sig models.TradeSignal
	require.NoError(t, json.Unmarshal([]byte(out), &sig))
	assert.Equal(t, models.DirectionHold, sig.Direction)
	assert.Equal(t, models.DataFallback, sig.DataQuality)

	out, err = run(t, cfg, "history", "--symbol", "NIFTY", "--data", "FALLBACK", "--json")
	require.NoError(t, err)
	var history []models.TradeSignal
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 1)
	assert.Equal(t, sig.ID, history[0].ID)

	out, err = run(t, cfg, "queue", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestSignalFromCSVProvider(t *testing.T) {
	cfg := testConfig(t)
	writeWaveCSV(t, cfg.Market.CSVDir, "NIFTY_1h.csv", models.TF1h, 320)

	out, err := run(t, cfg, "signal", "--symbol", "NIFTY", "--json")
	require.NoError(t, err)

	var sig models.TradeSignal
	require.NoError(t, json.Unmarshal([]byte(out), &sig))
	assert.Equal(t, models.DataReal, sig.DataQuality)
}

func TestSyncThenStoreProvider(t *testing.T) {
	cfg := testConfig(t)
	writeWaveCSV(t, cfg.Market.CSVDir, "NIFTY_1h.csv", models.TF1h, 320)

	out, err := run(t, cfg, "sync", "--symbol", "NIFTY", "--from", "csv", "--json")
	require.NoError(t, err)
	var report []syncEntry
	require.NoError(t, json.Unmarshal([]byte(out), &report))

	synced := map[string]int{}
	for _, e := range report {
		synced[e.Timeframe] = e.Bars
	}
	assert.Equal(t, 320, synced["1h"])

	_, err = run(t, cfg, "sync", "--from", "store")
	assert.ErrorContains(t, err, "upstream")

	out, err = run(t, cfg, "signal", "--symbol", "NIFTY", "--provider", "store", "--json")
	require.NoError(t, err)
	var sig models.TradeSignal
	require.NoError(t, json.Unmarshal([]byte(out), &sig))
	assert.Equal(t, models.DataReal, sig.DataQuality)
}

func TestIndicatorsCommand(t *testing.T) {
	cfg := testConfig(t)
	path := writeWaveCSV(t, t.TempDir(), "NIFTY_15m.csv", models.TF15m, 200)

	out, err := run(t, cfg, "indicators", "--file", path, "--json")
	require.NoError(t, err)
	var values map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &values))
	assert.Contains(t, values, "RSI_14")

	out, err = run(t, cfg, "indicators", "--file", path, "--only", "RSI_14", "--json")
	require.NoError(t, err)
	values = nil
	require.NoError(t, json.Unmarshal([]byte(out), &values))
	assert.Len(t, values, 1)
}

func TestTokenCommand(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "token")
	assert.ErrorContains(t, err, "secret")

	cfg.Server.JWTSecret = "s3cret"
	out, err := run(t, cfg, "token", "--subject", "dash", "--ttl", "1h")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."))
}

func TestCoreCommands(t *testing.T) {
	cfg := testConfig(t)
	cfg.Credentials.Kite.AccessToken = "secret-token"

	out, err := run(t, cfg, "version", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"`+Version+`","build_date":"`+BuildDate+`"}`, out)

	out, err = run(t, cfg, "config", "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: csv")
	assert.NotContains(t, out, "secret-token")

	out, err = run(t, cfg, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	cfg.Market.Provider = "ftp"
	_, err = run(t, cfg, "config", "validate")
	assert.Error(t, err)
}

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(&buf, false, false)
	table := NewTable(out, "TF", "SCORE")
	table.AddRow("15m", "+0.50")
	table.AddRow("1d", "-1.00")
	table.Render()

	assert.Equal(t, "TF   SCORE\n---  -----\n15m  +0.50\n1d   -1.00\n", buf.String())
}

func TestScanCommand(t *testing.T) {
	cfg := testConfig(t)
	writeWaveCSV(t, cfg.Market.CSVDir, "NIFTY_1h.csv", models.TF1h, 320)

	out, err := run(t, cfg, "scan", "--symbols", "NIFTY,MISSING", "--filter", "confidence>=0", "--json")
	require.NoError(t, err)
	var signals []models.TradeSignal
	require.NoError(t, json.Unmarshal([]byte(out), &signals))
	require.Len(t, signals, 1)
	assert.Equal(t, "NIFTY", signals[0].Symbol)

	_, err = run(t, cfg, "scan", "--filter", "volume>1")
	assert.ErrorContains(t, err, "unknown field")
}
