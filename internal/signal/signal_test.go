package signal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ict-signals/internal/analysis"
	"ict-signals/internal/marketdata"
	"ict-signals/internal/models"
)

var baseTime = time.Date(2024, 1, 2, 3, 30, 0, 0, time.UTC)

// zigzag builds n bars of a triangle wave with the given period riding on a
// linear drift per bar.
func zigzag(tf models.Timeframe, n, period int, drift float64) models.BarSeries {
	half := period / 2
	bars := make([]models.Bar, n)
	prev := 100.0
	for i := range bars {
		p := i % period
		tri := p
		if p > half {
			tri = period - p
		}
		c := 100 + drift*float64(i) + 2*float64(tri)
		o := c - 0.2
		if c < prev {
			o = c + 0.2
		}
		bars[i] = models.Bar{
			Timestamp: baseTime.Add(time.Duration(i) * tf.Duration()),
			Open:      o,
			High:      max(o, c) + 0.3,
			Low:       min(o, c) - 0.3,
			Close:     c,
			Volume:    1000 + float64(i%7)*50,
		}
		prev = c
	}
	return models.BarSeries{Timeframe: tf, Bars: bars}
}

func newTestEngine() *Engine {
	return NewEngine("NIFTY", DefaultConfig()).
		WithClock(func() time.Time { return baseTime.Add(48 * time.Hour) })
}

func TestGenerateIsDeterministic(t *testing.T) {
	e := newTestEngine()
	set := models.BarSet{
		models.TF1h: zigzag(models.TF1h, 120, 12, 0.3),
		models.TF1d: zigzag(models.TF1d, 40, 10, 0.5),
	}

	first := e.Generate(set)
	second := e.Generate(set)
	assert.True(t, reflect.DeepEqual(first, second))
	assert.Equal(t, SignalID("NIFTY", set[models.TF1h].Last().Timestamp, first.Direction), first.ID)
	assert.Equal(t, set[models.TF1h].Last().Timestamp, first.GeneratedAt)
}

func TestGenerateBullishStructure(t *testing.T) {
	e := newTestEngine()
	set := models.BarSet{models.TF1h: zigzag(models.TF1h, 80, 12, 0.3)}

	sig := e.Generate(set)
	assert.Equal(t, models.DataReal, sig.DataQuality)
	assert.Equal(t, string(analysis.StructureBullish), sig.Structure.Classification)
	assert.GreaterOrEqual(t, sig.Structure.Strength, 75.0)
	assert.False(t, sig.Indicators.Minimal)
}

func TestGeneratePrimaryOnlyIsNeutral(t *testing.T) {
	e := newTestEngine()
	sig := e.Generate(models.BarSet{models.TF1h: zigzag(models.TF1h, 80, 12, 0.3)})

	assert.Equal(t, models.DataReal, sig.DataQuality)
	assert.Equal(t, "NEUTRAL", sig.MultiTimeframe.OverallBias)
	assert.Equal(t, 0.0, sig.MultiTimeframe.Strength)
	assert.Equal(t, 50.0, sig.MultiTimeframe.Score)
}

func TestGenerateFallback(t *testing.T) {
	e := newTestEngine()
	cases := map[string]models.BarSet{
		"nil set":         nil,
		"empty set":       {},
		"missing primary": {models.TF1d: zigzag(models.TF1d, 40, 10, 0.5)},
		"empty primary":   {models.TF1h: {Timeframe: models.TF1h}},
	}

	for name, set := range cases {
		t.Run(name, func(t *testing.T) {
			sig := e.Generate(set)
			assert.Equal(t, models.DataFallback, sig.DataQuality)
			assert.Equal(t, models.DirectionHold, sig.Direction)
			assert.Equal(t, 50.0, sig.Confidence)
			assert.Equal(t, models.QualityPoor, sig.Quality)
			assert.Equal(t, []string{ReasonDataUnavailable}, sig.Reasons)
			assert.Equal(t, e.now().UTC(), sig.GeneratedAt)
			assert.Equal(t, sig, e.Generate(set), "same clock and input must give the same fallback")
			assert.Equal(t, string(analysis.StructureUnknown), sig.Structure.Classification)
			assert.False(t, sig.IsActionable())
		})
	}
}

func TestGenerateShortSeries(t *testing.T) {
	e := newTestEngine()
	sig := e.Generate(models.BarSet{models.TF1h: zigzag(models.TF1h, 10, 4, 0.3)})

	assert.Equal(t, models.DataReal, sig.DataQuality)
	assert.Equal(t, string(analysis.StructureUnknown), sig.Structure.Classification)
	assert.Zero(t, sig.Structure.OrderBlocks)
	assert.Zero(t, sig.Structure.FairValueGaps)
	assert.Zero(t, sig.Structure.LiquidityPools)
	assert.True(t, sig.Indicators.Minimal)
	assert.Equal(t, 50.0, sig.Indicators.RSI)
}

func TestGenerateInvariants(t *testing.T) {
	e := newTestEngine()
	sets := []models.BarSet{
		{models.TF1h: zigzag(models.TF1h, 80, 12, 0.3)},
		{models.TF1h: zigzag(models.TF1h, 150, 10, -0.4), models.TF4h: zigzag(models.TF4h, 40, 8, -1)},
		{models.TF1h: zigzag(models.TF1h, 60, 6, 0), models.TF1d: zigzag(models.TF1d, 30, 6, 2)},
	}

	for i, set := range sets {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			sig := e.Generate(set)
			assert.GreaterOrEqual(t, sig.Confidence, 0.0)
			assert.LessOrEqual(t, sig.Confidence, 95.0)
			assert.LessOrEqual(t, len(sig.Reasons), e.Config().Scoring.MaxReasons)
			assert.NotEmpty(t, sig.Reasons)
			assert.Equal(t, len(sig.Factors), sig.ConfluenceCount)
			assert.LessOrEqual(t, sig.EntryZone.Low, sig.EntryZone.High)

			switch sig.Direction {
			case models.DirectionBuy:
				assert.Less(t, sig.StopLoss, sig.EntryZone.Low)
				assert.Greater(t, sig.TakeProfit1, sig.EntryZone.High)
				assert.GreaterOrEqual(t, sig.Confidence, 40.0)
			case models.DirectionSell:
				assert.Greater(t, sig.StopLoss, sig.EntryZone.High)
				assert.Less(t, sig.TakeProfit1, sig.EntryZone.Low)
				assert.GreaterOrEqual(t, sig.Confidence, 40.0)
			}
		})
	}
}

func TestSignalIDStable(t *testing.T) {
	at := baseTime.In(time.FixedZone("IST", 19800))
	a := SignalID("NIFTY", at, models.DirectionBuy)
	assert.Equal(t, a, SignalID("NIFTY", baseTime, models.DirectionBuy))
	assert.NotEqual(t, a, SignalID("NIFTY", baseTime, models.DirectionSell))
	assert.NotEqual(t, a, SignalID("BANKNIFTY", baseTime, models.DirectionBuy))
}

func excellent(id string) models.TradeSignal {
	return models.TradeSignal{ID: id, Quality: models.QualityExcellent, DataQuality: models.DataReal, Direction: models.DirectionBuy}
}

func TestQueue(t *testing.T) {
	q := NewQueue(2)

	assert.False(t, q.Offer(models.TradeSignal{ID: "good", Quality: models.QualityVeryGood, DataQuality: models.DataReal}))
	fallback := excellent("fb")
	fallback.DataQuality = models.DataFallback
	assert.False(t, q.Offer(fallback))

	assert.True(t, q.Offer(excellent("a")))
	assert.False(t, q.Offer(excellent("a")))
	assert.True(t, q.Offer(excellent("b")))
	assert.True(t, q.Offer(excellent("c")))
	require.Equal(t, 2, q.Len())

	peeked := q.Peek(0)
	assert.Equal(t, "b", peeked[0].ID)
	assert.Equal(t, "c", peeked[1].ID)
	assert.Len(t, q.Peek(1), 1)

	// "a" was evicted, so it may be queued again.
	assert.True(t, q.Offer(excellent("a")))

	drained := q.Drain()
	assert.Len(t, drained, 2)
	assert.Zero(t, q.Len())
	assert.True(t, q.Offer(excellent("c")))
}

func TestRequiredTimeframes(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []models.Timeframe{models.TF1m, models.TF5m, models.TF15m, models.TF1h, models.TF4h, models.TF1d}, RequiredTimeframes(cfg))

	cfg.MTF.Weights = map[models.Timeframe]float64{models.TF1d: 3}
	cfg.Primary = models.TF15m
	assert.Equal(t, []models.Timeframe{models.TF15m, models.TF1d}, RequiredTimeframes(cfg))
}

func TestServiceGenerate(t *testing.T) {
	hourly := zigzag(models.TF1h, 96, 12, 0.3)
	provider := marketdata.ProviderFunc(func(_ context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error) {
		assert.Equal(t, "NIFTY", symbol)
		if tf == models.TF1h {
			return hourly, nil
		}
		return models.BarSeries{}, errors.New("not subscribed")
	})

	svc := NewService(newTestEngine(), provider, zerolog.Nop())
	sig := svc.Generate(context.Background())
	assert.Equal(t, models.DataReal, sig.DataQuality)
	assert.Equal(t, hourly.Last().Close, sig.CurrentPrice)

	// 4h is resampled from 1h, so it is the only other timeframe scored.
	require.Len(t, sig.MultiTimeframe.Timeframes, 2)
	assert.Equal(t, models.TF4h, sig.MultiTimeframe.Timeframes[0].Timeframe)
}

func TestServiceFallsBackWhenProviderFails(t *testing.T) {
	provider := marketdata.ProviderFunc(func(context.Context, string, models.Timeframe) (models.BarSeries, error) {
		return models.BarSeries{}, errors.New("offline")
	})

	svc := NewService(newTestEngine(), provider, zerolog.Nop())
	sig := svc.Generate(context.Background())
	assert.Equal(t, models.DataFallback, sig.DataQuality)
	assert.Equal(t, []string{ReasonDataUnavailable}, sig.Reasons)
}
