package patterns

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ict-signals/internal/analysis"
	"ict-signals/internal/models"
)

var baseTime = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func barGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Bar{}), map[string]gopter.Gen{
		"Open":   gen.Float64Range(100.0, 200.0),
		"High":   gen.Float64Range(100.0, 200.0),
		"Low":    gen.Float64Range(100.0, 200.0),
		"Close":  gen.Float64Range(100.0, 200.0),
		"Volume": gen.Float64Range(1000, 100000),
	}).Map(func(b models.Bar) models.Bar {
		b.High = math.Max(b.High, math.Max(b.Open, b.Close))
		b.Low = math.Min(b.Low, math.Min(b.Open, b.Close))
		return b
	})
}

func seriesGen(n int) gopter.Gen {
	return gen.SliceOfN(n, barGen()).Map(func(bars []models.Bar) models.BarSeries {
		for i := range bars {
			bars[i].Timestamp = baseTime.Add(time.Duration(i) * time.Hour)
		}
		return models.BarSeries{Timeframe: models.TF1h, Bars: bars}
	})
}

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	return gopter.NewProperties(parameters)
}

// zigzag is a triangle wave of the given period riding on a per-bar drift.
func zigzag(n, period int, drift float64) models.BarSeries {
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
			Timestamp: baseTime.Add(time.Duration(i) * time.Hour),
			Open:      o,
			High:      max(o, c) + 0.3,
			Low:       min(o, c) - 0.3,
			Close:     c,
			Volume:    1000,
		}
		prev = c
	}
	return models.BarSeries{Timeframe: models.TF1h, Bars: bars}
}

func TestProperty_ZonesAreOrdered(t *testing.T) {
	properties := newProperties()
	cfg := DefaultConfig()
	obs := NewOrderBlockDetector(cfg)
	gaps := NewFVGDetector(cfg)

	properties.Property("order blocks and gaps have low <= high and respect their caps", prop.ForAll(
		func(series models.BarSeries) bool {
			blocks := obs.Detect(series)
			if len(blocks) > cfg.MaxOrderBlocks {
				return false
			}
			for _, ob := range blocks {
				if ob.Low > ob.High || ob.Strength < 0 || ob.Strength > 100 {
					return false
				}
			}

			found := gaps.Detect(series, 1)
			if len(found) > cfg.MaxGaps {
				return false
			}
			for _, g := range found {
				if g.Lower > g.Upper || g.FillPercent < 0 || g.FillPercent > 100 {
					return false
				}
			}
			return true
		},
		seriesGen(60),
	))

	properties.TestingRun(t)
}

func TestProperty_FillPercentBoundedAndMonotonic(t *testing.T) {
	properties := newProperties()

	properties.Property("fill is within [0, 100] and moves with price", prop.ForAll(
		func(lower, size, a, b float64, bullish bool) bool {
			gap := analysis.FairValueGap{Type: analysis.Bearish, Lower: lower, Upper: lower + size}
			if bullish {
				gap.Type = analysis.Bullish
			}
			lo, hi := math.Min(a, b), math.Max(a, b)
			fLo, fHi := FillPercent(gap, lo), FillPercent(gap, hi)
			if fLo < 0 || fLo > 100 || fHi < 0 || fHi > 100 {
				return false
			}
			if bullish {
				return fHi >= fLo
			}
			return fHi <= fLo
		},
		gen.Float64Range(100, 200),
		gen.Float64Range(0.01, 20),
		gen.Float64Range(80, 240),
		gen.Float64Range(80, 240),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_ShortSeriesIsUnknown(t *testing.T) {
	properties := newProperties()
	cfg := DefaultConfig()
	structure := NewStructureAnalyzer(cfg)
	obs := NewOrderBlockDetector(cfg)
	gaps := NewFVGDetector(cfg)
	pools := NewLiquidityDetector(cfg)

	properties.Property("fewer than MinBars bars yield no structure and no zones", prop.ForAll(
		func(series models.BarSeries) bool {
			return structure.Analyze(series).Classification == analysis.StructureUnknown &&
				structure.BreakOfStructure(series).Kind == analysis.BreakNone &&
				len(obs.Detect(series)) == 0 &&
				len(gaps.Detect(series, 1)) == 0 &&
				len(pools.Detect(series)) == 0 &&
				!OptimalTradeEntry(series, cfg).InZone
		},
		gen.IntRange(0, MinBars-1).FlatMap(func(n interface{}) gopter.Gen {
			return seriesGen(n.(int))
		}, reflect.TypeOf(models.BarSeries{})),
	))

	properties.TestingRun(t)
}

func TestStructureZigzag(t *testing.T) {
	analyzer := NewStructureAnalyzer(DefaultConfig())

	up := analyzer.Analyze(zigzag(80, 12, 0.3))
	assert.Equal(t, analysis.StructureBullish, up.Classification)
	assert.GreaterOrEqual(t, up.Strength, 75.0)

	down := analyzer.Analyze(zigzag(80, 12, -0.3))
	assert.Equal(t, analysis.StructureBearish, down.Classification)
	assert.GreaterOrEqual(t, down.Strength, 75.0)

	flat := analyzer.Analyze(zigzag(80, 12, 0))
	assert.Equal(t, analysis.StructureRanging, flat.Classification)
}

func TestLiquidityEqualHighs(t *testing.T) {
	pools := NewLiquidityDetector(DefaultConfig()).Detect(zigzag(80, 12, 0))
	require.NotEmpty(t, pools)

	var buySide, sellSide bool
	for _, p := range pools {
		assert.GreaterOrEqual(t, p.Touches, 2)
		switch p.Type {
		case analysis.BuySide:
			buySide = true
		case analysis.SellSide:
			sellSide = true
		}
	}
	assert.True(t, buySide)
	assert.True(t, sellSide)
}

func TestKillZoneAt(t *testing.T) {
	cases := []struct {
		hour    int
		name    string
		quality string
	}{
		{13, "new_york_open", QualityPremium},
		{8, "london_open", QualityHigh},
		{23, "asian", QualityLow},
		{1, "asian", QualityLow},
		{5, "off_session", QualityMedium},
		{18, "off_session", QualityMedium},
	}
	for _, c := range cases {
		zone := KillZoneAt(baseTime.Add(time.Duration(c.hour) * time.Hour))
		assert.Equal(t, c.name, zone.Name, "hour %d", c.hour)
		assert.Equal(t, c.quality, zone.Quality, "hour %d", c.hour)
	}

	ist := time.FixedZone("IST", 5*3600+1800)
	assert.Equal(t, "new_york_open", KillZoneAt(time.Date(2024, 1, 2, 18, 30, 0, 0, ist)).Name)
}

func TestOptimalTradeEntry(t *testing.T) {
	bars := make([]models.Bar, 30)
	for i := range bars {
		price := 100 + float64(min(i, 14))*100/14
		if i > 14 {
			price = 200 - float64(i-14)*(61.8/15)
		}
		bars[i] = models.Bar{
			Timestamp: baseTime.Add(time.Duration(i) * time.Hour),
			Open:      price, High: price, Low: price, Close: price,
		}
	}
	zone := OptimalTradeEntry(models.BarSeries{Timeframe: models.TF1h, Bars: bars}, DefaultConfig())

	assert.InDelta(t, 200, zone.RangeHigh, 1e-9)
	assert.InDelta(t, 100, zone.RangeLow, 1e-9)
	assert.InDelta(t, 138.2, zone.Levels["61.8%"], 1e-9)
	assert.True(t, zone.InZone)
	assert.Equal(t, "61.8%", zone.Level)
}
