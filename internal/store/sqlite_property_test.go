package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/marketdata"
	"ict-signals/internal/models"
)

var baseTime = time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// Property: saving bars and reading them back yields the same bars.
func TestProperty_BarRoundTrip(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("bar round-trip: save then read produces equivalent data", prop.ForAll(
		func(tf models.Timeframe, count int, basePrice, baseVolume float64) bool {
			ctx := context.Background()
			run++
			symbol := fmt.Sprintf("SYM%d", run)

			series := generateTestBars(tf, count, basePrice, baseVolume)
			if err := store.SaveBars(ctx, symbol, series); err != nil {
				t.Logf("save failed: %v", err)
				return false
			}

			got, err := store.Bars(ctx, symbol, tf)
			if err != nil || got.Len() != series.Len() || got.Timeframe != tf {
				return false
			}
			for i, b := range series.Bars {
				if !barsEqual(b, got.Bars[i]) {
					t.Logf("mismatch at %d: %+v vs %+v", i, b, got.Bars[i])
					return false
				}
			}
			return true
		},
		gen.OneConstOf(models.TF1m, models.TF5m, models.TF15m, models.TF1h, models.TF4h, models.TF1d),
		gen.IntRange(1, 20),
		gen.Float64Range(100.0, 5000.0),
		gen.Float64Range(1000, 1000000),
	))

	properties.Property("saving an empty series succeeds", prop.ForAll(
		func(tf models.Timeframe) bool {
			return store.SaveBars(context.Background(), "EMPTY", models.BarSeries{Timeframe: tf}) == nil
		},
		gen.OneConstOf(models.TF1h, models.TF1d),
	))

	properties.TestingRun(t)
}

func generateTestBars(tf models.Timeframe, count int, basePrice, baseVolume float64) models.BarSeries {
	bars := make([]models.Bar, count)
	for i := range bars {
		variation := float64(i%10) * 0.01 * basePrice
		open := basePrice + variation
		close := basePrice + variation*0.5
		bars[i] = models.Bar{
			Timestamp: baseTime.Add(time.Duration(i) * tf.Duration()),
			Open:      open,
			High:      math.Max(open, close) * 1.01,
			Low:       math.Min(open, close) * 0.99,
			Close:     close,
			Volume:    baseVolume + float64(i*1000),
		}
	}
	return models.BarSeries{Timeframe: tf, Bars: bars}
}

func barsEqual(a, b models.Bar) bool {
	const tolerance = 1e-9
	return a.Timestamp.Equal(b.Timestamp) &&
		math.Abs(a.Open-b.Open) <= tolerance &&
		math.Abs(a.High-b.High) <= tolerance &&
		math.Abs(a.Low-b.Low) <= tolerance &&
		math.Abs(a.Close-b.Close) <= tolerance &&
		math.Abs(a.Volume-b.Volume) <= tolerance
}

func testSignal(id string, at time.Time, dir models.Direction, quality models.SignalQuality) models.TradeSignal {
	return models.TradeSignal{
		ID:          id,
		Symbol:      "NIFTY",
		GeneratedAt: at,
		Direction:   dir,
		Confidence:  72.5,
		Quality:     quality,
		Factors:     []string{"structure", "ema_alignment"},
		Reasons:     []string{"bullish market structure (strength 75)"},
		DataQuality: models.DataReal,
		EntryZone:   models.PriceZone{Low: 99.9, High: 100.1},
	}
}

func TestSaveSignalOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sig := testSignal("a", baseTime, models.DirectionBuy, models.QualityVeryGood)

	require.NoError(t, store.SaveSignal(ctx, sig))
	err := store.SaveSignal(ctx, sig)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateSignal))

	all, err := store.GetSignals(ctx, SignalFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, sig.Reasons, all[0].Reasons)
	assert.Equal(t, sig.EntryZone, all[0].EntryZone)
	assert.True(t, all[0].GeneratedAt.Equal(sig.GeneratedAt))

	got, err := store.GetSignal(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, sig.Confidence, got.Confidence)

	_, err = store.GetSignal(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrDataNotFound))
}

func TestGetSignalsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSignal(ctx, testSignal("s1", baseTime, models.DirectionBuy, models.QualityExcellent)))
	require.NoError(t, store.SaveSignal(ctx, testSignal("s2", baseTime.Add(time.Hour), models.DirectionHold, models.QualityPoor)))
	require.NoError(t, store.SaveSignal(ctx, testSignal("s3", baseTime.Add(2*time.Hour), models.DirectionSell, models.QualityExcellent)))

	recent, err := store.GetSignals(ctx, SignalFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "s3", recent[0].ID)
	assert.Equal(t, "s2", recent[1].ID)

	excellent, err := store.GetSignals(ctx, SignalFilter{Quality: models.QualityExcellent})
	require.NoError(t, err)
	assert.Len(t, excellent, 2)

	holds, err := store.GetSignals(ctx, SignalFilter{Direction: models.DirectionHold})
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, "s2", holds[0].ID)

	since, err := store.GetSignals(ctx, SignalFilter{Since: baseTime.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "s3", since[0].ID)

	other, err := store.GetSignals(ctx, SignalFilter{Symbol: "BANKNIFTY"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestBarsMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Bars(context.Background(), "NIFTY", models.TF1h)
	assert.True(t, errors.Is(err, apperrors.ErrDataNotFound))
}

func TestBarSync(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	calls := 0
	provider := marketdata.ProviderFunc(func(_ context.Context, _ string, tf models.Timeframe) (models.BarSeries, error) {
		calls++
		if tf == models.TF1d {
			return models.BarSeries{}, errors.New("daily unavailable")
		}
		return generateTestBars(tf, 30, 100, 1000), nil
	})

	syncer := NewBarSync(store, provider, time.Hour, zerolog.Nop())
	now := baseTime
	syncer.now = func() time.Time { return now }

	statuses := syncer.Sync(ctx, "NIFTY", []models.Timeframe{models.TF1h, models.TF1d}, false)
	require.Len(t, statuses, 2)
	assert.Equal(t, 30, statuses[0].Bars)
	assert.NoError(t, statuses[0].Error)
	assert.Error(t, statuses[1].Error)
	assert.True(t, statuses[1].IsStale)
	assert.Equal(t, 2, calls)

	assert.False(t, syncer.IsStale("NIFTY", models.TF1h))
	assert.True(t, syncer.IsStale("NIFTY", models.TF1d))

	// The fresh timeframe is skipped; only the failed one is retried.
	syncer.Sync(ctx, "NIFTY", []models.Timeframe{models.TF1h, models.TF1d}, false)
	assert.Equal(t, 3, calls)

	now = now.Add(2 * time.Hour)
	assert.True(t, syncer.IsStale("NIFTY", models.TF1h))

	series, err := store.Bars(ctx, "NIFTY", models.TF1h)
	require.NoError(t, err)
	assert.Equal(t, 30, series.Len())
	assert.Contains(t, FormatSyncStatus(statuses[0]), "30 bars synced")
}

func TestStoreFeedsEngineOffline(t *testing.T) {
	store := newTestStore(t).WithBarLimit(10)
	ctx := context.Background()
	require.NoError(t, store.SaveBars(ctx, "NIFTY", generateTestBars(models.TF1h, 25, 100, 1000)))

	var p marketdata.Provider = store
	set, err := marketdata.FetchSet(ctx, p, "NIFTY", []models.Timeframe{models.TF1h}, marketdata.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 10, set[models.TF1h].Len())
	assert.True(t, set[models.TF1h].Last().Timestamp.Equal(baseTime.Add(24*time.Hour)))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"})
	assert.True(t, errors.Is(err, apperrors.ErrConfigInvalid))

	_, err = Open(context.Background(), Config{Driver: "postgres"})
	assert.True(t, errors.Is(err, apperrors.ErrConfigInvalid))
}
