package patterns

import (
	"sort"

	"ict-signals/internal/analysis"
	"ict-signals/internal/models"
)

const fallbackATRPeriod = 14

// FVGDetector finds three-bar imbalances and grades their fill against the current price.
type FVGDetector struct {
	cfg Config
}

// NewFVGDetector creates a fair value gap detector from cfg.
func NewFVGDetector(cfg Config) *FVGDetector {
	return &FVGDetector{cfg: cfg}
}

func (d *FVGDetector) Name() string {
	return "FVGDetector"
}

// Detect returns the most recent unfilled gaps ranked by momentum strength.
// atr is the 14-period ATR of the series; a non-positive value is recomputed locally.
func (d *FVGDetector) Detect(series models.BarSeries, atr float64) []analysis.FairValueGap {
	if series.Len() < MinBars {
		return nil
	}
	bars := series.Bars
	price := series.Last().Close
	if atr <= 0 {
		atr = meanTrueRange(bars, fallbackATRPeriod)
	}
	minGap := d.cfg.MinGapATRMultiple * atr

	var gaps []analysis.FairValueGap
	for i := 1; i < len(bars)-1; i++ {
		prev, next := bars[i-1], bars[i+1]

		var gap analysis.FairValueGap
		switch {
		case prev.Low > next.High:
			gap = analysis.FairValueGap{Type: analysis.Bullish, Upper: prev.Low, Lower: next.High}
		case prev.High < next.Low:
			gap = analysis.FairValueGap{Type: analysis.Bearish, Upper: next.Low, Lower: prev.High}
		default:
			continue
		}

		gap.Size = gap.Upper - gap.Lower
		if gap.Size < minGap {
			continue
		}
		gap.Index = i
		gap.Timestamp = bars[i].Timestamp
		gap.MomentumStrength = d.momentum(bars, i, gap.Type)
		gap.FillPercent = FillPercent(gap, price)
		gap.Filled = gap.FillPercent >= 100

		if !gap.Filled {
			gaps = append(gaps, gap)
		}
	}

	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Index > gaps[j].Index })
	if len(gaps) > d.cfg.MaxGaps {
		gaps = gaps[:d.cfg.MaxGaps]
	}
	sort.SliceStable(gaps, func(i, j int) bool {
		return gaps[i].MomentumStrength > gaps[j].MomentumStrength
	})

	return gaps
}

// FillPercent grades how far price has travelled through the gap.
// A bullish gap sits above the bars that followed it and fills as price rises;
// a bearish gap sits below and fills as price falls.
func FillPercent(gap analysis.FairValueGap, price float64) float64 {
	size := gap.Upper - gap.Lower
	if size <= 0 {
		if (gap.Type == analysis.Bullish && price >= gap.Upper) || (gap.Type == analysis.Bearish && price <= gap.Lower) {
			return 100
		}
		return 0
	}

	var travelled float64
	if gap.Type == analysis.Bullish {
		travelled = price - gap.Lower
	} else {
		travelled = gap.Upper - price
	}
	return clamp(travelled/size*100, 0, 100)
}

// momentum scores the displacement that opened the gap at mid from the net move
// and the share of bars moving with it across the surrounding window.
func (d *FVGDetector) momentum(bars []models.Bar, mid int, side analysis.Side) float64 {
	lo := max(0, mid-d.cfg.MomentumWindow)
	hi := min(len(bars)-1, mid+d.cfg.MomentumWindow)
	window := bars[lo : hi+1]

	// A bullish gap is left by falling bars, a bearish gap by rising ones.
	falling := side == analysis.Bullish

	var with int
	for _, b := range window {
		if (falling && b.IsBearish()) || (!falling && b.IsBullish()) {
			with++
		}
	}
	frac := float64(with) / float64(len(window))

	first := window[0].Open
	if first <= 0 {
		return clamp(frac*60, 0, 100)
	}
	move := (window[len(window)-1].Close - first) / first * 100
	if falling {
		move = -move
	}
	move = max(0, move)

	return clamp(frac*60+min(move*20, 40), 0, 100)
}

// meanTrueRange is a plain average of the last period true ranges.
func meanTrueRange(bars []models.Bar, period int) float64 {
	if len(bars) < 2 {
		return 0
	}
	start := max(1, len(bars)-period)
	var sum float64
	for i := start; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := abs(bars[i].High - bars[i-1].Close)
		lc := abs(bars[i].Low - bars[i-1].Close)
		sum += max(hl, hc, lc)
	}
	return sum / float64(len(bars)-start)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
