package marketdata

import (
	"ict-signals/internal/models"
)

// Resample aggregates a series into buckets of tf aligned to UTC. Only source
// series of a shorter timeframe can be resampled; anything else is returned as is.
func Resample(series models.BarSeries, tf models.Timeframe) models.BarSeries {
	width := tf.Duration()
	if width == 0 || series.Empty() || series.Timeframe.Duration() >= width {
		return series
	}

	var out []models.Bar
	for _, b := range series.Bars {
		bucket := b.Timestamp.UTC().Truncate(width)
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(bucket) {
			agg := &out[n-1]
			agg.High = max(agg.High, b.High)
			agg.Low = min(agg.Low, b.Low)
			agg.Close = b.Close
			agg.Volume += b.Volume
			continue
		}
		out = append(out, models.Bar{
			Timestamp: bucket,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return models.BarSeries{Timeframe: tf, Bars: out}
}
