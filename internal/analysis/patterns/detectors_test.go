package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ict-signals/internal/analysis"
	"ict-signals/internal/models"
)

func flatBar(i int, price, spread, volume float64) models.Bar {
	return models.Bar{
		Timestamp: baseTime.Add(time.Duration(i) * time.Hour),
		Open:      price, High: price + spread, Low: price - spread, Close: price, Volume: volume,
	}
}

// blockSeries places a bearish candle at obIndex, a bullish displacement at
// bar 21 and flat bars at follow afterwards. With push a second bullish bar
// extends the move before the flat tail.
func blockSeries(obIndex int, obVolume float64, push bool, follow float64) models.BarSeries {
	var bars []models.Bar
	for i := 0; i < 21; i++ {
		if i == obIndex {
			bars = append(bars, models.Bar{
				Timestamp: baseTime.Add(time.Duration(i) * time.Hour),
				Open:      100.5, High: 100.6, Low: 99.5, Close: 99.6, Volume: obVolume,
			})
			continue
		}
		bars = append(bars, flatBar(i, 100, 0.2, 1000))
	}
	bars = append(bars, models.Bar{
		Timestamp: baseTime.Add(21 * time.Hour),
		Open:      99.6, High: 102.1, Low: 99.5, Close: 102, Volume: 1000,
	})
	if push {
		bars = append(bars, models.Bar{
			Timestamp: baseTime.Add(22 * time.Hour),
			Open:      102, High: 103.1, Low: 101.9, Close: 103, Volume: 1000,
		})
	}
	for len(bars) < 26 {
		bars = append(bars, flatBar(len(bars), follow, 0.2, 1000))
	}
	return models.BarSeries{Timeframe: models.TF1h, Bars: bars}
}

func TestOrderBlockDetected(t *testing.T) {
	detector := NewOrderBlockDetector(DefaultConfig())

	blocks := detector.Detect(blockSeries(20, 1000, true, 103))
	require.Len(t, blocks, 1)
	ob := blocks[0]
	assert.Equal(t, analysis.Bullish, ob.Type)
	assert.Equal(t, 99.5, ob.Low)
	assert.Equal(t, 100.6, ob.High)
	assert.Equal(t, 20, ob.OriginIndex)
	// base 50, +15 for its own body, +15 for the displacement body
	assert.Equal(t, 80.0, ob.Strength)
	assert.False(t, ob.Tested)
	assert.False(t, ob.Filled)
}

func TestOrderBlockVolumeBonus(t *testing.T) {
	blocks := NewOrderBlockDetector(DefaultConfig()).Detect(blockSeries(20, 1600, true, 103))
	require.Len(t, blocks, 1)
	assert.Equal(t, 100.0, blocks[0].Strength)
}

func TestOrderBlockRejections(t *testing.T) {
	detector := NewOrderBlockDetector(DefaultConfig())

	// The move tops out at 102.1, only 1.5 above a block 1.1 wide.
	assert.Empty(t, detector.Detect(blockSeries(20, 1000, false, 101.5)), "travel below twice the range")

	// The scan looks back 15 bars from the displacement at 21.
	assert.Empty(t, detector.Detect(blockSeries(5, 1000, true, 103)), "origin beyond the scan window")
	blocks := detector.Detect(blockSeries(6, 1000, true, 103))
	require.Len(t, blocks, 1)
	assert.Equal(t, 6, blocks[0].OriginIndex)
}

func TestOrderBlockFilledIsDropped(t *testing.T) {
	series := blockSeries(20, 1000, true, 103)
	series.Bars = append(series.Bars, flatBar(len(series.Bars), 99, 0.2, 1000))
	assert.Empty(t, NewOrderBlockDetector(DefaultConfig()).Detect(series))
}

// gapSeries drops from 110 to 105 in one bar, leaving 109.8..105 untraded.
func gapSeries() models.BarSeries {
	var bars []models.Bar
	for i := 0; i < 21; i++ {
		bars = append(bars, flatBar(i, 110, 0.2, 1000))
	}
	bars = append(bars,
		models.Bar{Timestamp: baseTime.Add(21 * time.Hour), Open: 109.8, High: 109.8, Low: 105, Close: 105.2, Volume: 1000},
		models.Bar{Timestamp: baseTime.Add(22 * time.Hour), Open: 105, High: 105, Low: 104.3, Close: 104.5, Volume: 1000},
	)
	for len(bars) < 26 {
		bars = append(bars, models.Bar{
			Timestamp: baseTime.Add(time.Duration(len(bars)) * time.Hour),
			Open:      104.8, High: 105, Low: 104.6, Close: 104.8, Volume: 1000,
		})
	}
	return models.BarSeries{Timeframe: models.TF1h, Bars: bars}
}

func TestFVGDetected(t *testing.T) {
	detector := NewFVGDetector(DefaultConfig())

	gaps := detector.Detect(gapSeries(), 1)
	require.Len(t, gaps, 1)
	g := gaps[0]
	assert.Equal(t, analysis.Bullish, g.Type)
	assert.InDelta(t, 109.8, g.Upper, 1e-9)
	assert.Equal(t, 105.0, g.Lower)
	assert.InDelta(t, 4.8, g.Size, 1e-9)
	assert.Equal(t, 21, g.Index)
	assert.Zero(t, g.FillPercent)
	assert.False(t, g.Filled)
	// two of seven window bars fall and the window drops 4.7%, capping the move term
	assert.InDelta(t, 60*2.0/7+40, g.MomentumStrength, 1e-9)
}

func TestFVGMinimumSize(t *testing.T) {
	detector := NewFVGDetector(DefaultConfig())

	// 0.1 x ATR 47 = 4.7 keeps the 4.8 gap; 0.1 x ATR 49 = 4.9 discards it.
	assert.Len(t, detector.Detect(gapSeries(), 47), 1)
	assert.Empty(t, detector.Detect(gapSeries(), 49))
}

// poolSeries has equal highs at bars 10 and 20 and a near touch at bar 11.
// When closeAt is positive bar 28 closes there.
func poolSeries(closeAt float64) models.BarSeries {
	bars := make([]models.Bar, 30)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: baseTime.Add(time.Duration(i) * time.Hour),
			Open:      100, High: 100.5, Low: 99.5, Close: 100, Volume: 1000,
		}
	}
	bars[10].High, bars[10].Volume = 105, 3000
	bars[11].High, bars[11].Volume = 104.98, 0
	bars[20].High, bars[20].Volume = 105.05, 3000
	if closeAt > 0 {
		bars[28].Close = closeAt
		bars[28].High = closeAt + 0.1
	}
	return models.BarSeries{Timeframe: models.TF1h, Bars: bars}
}

func TestLiquidityPoolDetected(t *testing.T) {
	detector := NewLiquidityDetector(DefaultConfig())

	pools := detector.Detect(poolSeries(0))
	require.Len(t, pools, 1)
	p := pools[0]
	assert.Equal(t, analysis.BuySide, p.Type)
	assert.Equal(t, 2, p.Touches)
	assert.InDelta(t, 105.025, p.Level, 1e-9)
	assert.InDelta(t, 40+10.0/24, p.Strength, 1e-9)
	// the non-swing bar at 104.98 counts towards the touch volume
	assert.InDelta(t, 2000, p.AvgVolume, 1e-9)
	assert.Equal(t, analysis.VolumeHigh, p.VolumeProfile)
	assert.False(t, p.Swept)
}

func TestLiquiditySweep(t *testing.T) {
	detector := NewLiquidityDetector(DefaultConfig())

	// 105.025 x 1.001 = 105.13
	assert.Len(t, detector.Detect(poolSeries(105.1)), 1, "a close inside the threshold leaves the pool")
	assert.Empty(t, detector.Detect(poolSeries(105.2)), "a close beyond the threshold sweeps the pool")
}
