package patterns

import (
	"time"

	"ict-signals/internal/analysis"
	"ict-signals/internal/models"
)

// Session quality labels.
const (
	QualityPremium = "PREMIUM"
	QualityHigh    = "HIGH"
	QualityMedium  = "MEDIUM"
	QualityLow     = "LOW"
)

// killZone is a UTC hour window [start, end). Windows with start > end wrap midnight.
type killZone struct {
	name    string
	start   int
	end     int
	quality string
}

var killZones = []killZone{
	{name: "new_york_open", start: 12, end: 15, quality: QualityPremium},
	{name: "london_open", start: 7, end: 10, quality: QualityHigh},
	{name: "asian", start: 23, end: 2, quality: QualityLow},
}

// KillZoneAt returns the session window containing ts.
func KillZoneAt(ts time.Time) analysis.KillZone {
	hour := ts.UTC().Hour()
	for _, kz := range killZones {
		in := hour >= kz.start && hour < kz.end
		if kz.start > kz.end {
			in = hour >= kz.start || hour < kz.end
		}
		if in {
			return analysis.KillZone{Name: kz.name, Quality: kz.quality}
		}
	}
	return analysis.KillZone{Name: "off_session", Quality: QualityMedium}
}

var oteRatios = []struct {
	name  string
	ratio float64
}{
	{"61.8%", 0.618},
	{"70.5%", 0.705},
	{"78.6%", 0.786},
}

// OptimalTradeEntry measures the retracement levels of the recent range and
// reports whether the last close sits near one of them.
func OptimalTradeEntry(series models.BarSeries, cfg Config) analysis.OTEZone {
	zone := analysis.OTEZone{Levels: make(map[string]float64, len(oteRatios))}
	if series.Len() < MinBars {
		return zone
	}

	window := series.Tail(cfg.OTELookback).Bars
	zone.RangeHigh, zone.RangeLow = window[0].High, window[0].Low
	for _, b := range window[1:] {
		zone.RangeHigh = max(zone.RangeHigh, b.High)
		zone.RangeLow = min(zone.RangeLow, b.Low)
	}
	span := zone.RangeHigh - zone.RangeLow
	price := series.Last().Close

	for _, r := range oteRatios {
		level := zone.RangeHigh - span*r.ratio
		zone.Levels[r.name] = level
		if !zone.InZone && price > 0 && abs(price-level)/price < cfg.OTEProximity {
			zone.InZone = true
			zone.Level = r.name
		}
	}

	return zone
}
