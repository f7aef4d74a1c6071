package patterns

import (
	"sort"

	"ict-signals/internal/analysis"
	"ict-signals/internal/models"
)

const (
	touchScore       = 20.0
	maxSpanDays      = 10.0
	highVolumeRatio  = 1.3
	lowVolumeRatio   = 0.7
	minTouchesInPool = 2
)

// LiquidityDetector finds clusters of equal highs and lows.
type LiquidityDetector struct {
	cfg Config
}

// NewLiquidityDetector creates a liquidity pool detector from cfg.
func NewLiquidityDetector(cfg Config) *LiquidityDetector {
	return &LiquidityDetector{cfg: cfg}
}

func (d *LiquidityDetector) Name() string {
	return "LiquidityDetector"
}

// cluster is a group of swing points priced within tolerance of their running mean.
type cluster struct {
	price   float64
	members []analysis.SwingPoint
}

// Detect returns the strongest unswept pools.
func (d *LiquidityDetector) Detect(series models.BarSeries) []analysis.LiquidityPool {
	if series.Len() < MinBars {
		return nil
	}
	bars := series.Bars
	highs, lows := FindSwings(bars, d.cfg.LiquidityRadius)

	var seriesVolume float64
	for _, b := range bars {
		seriesVolume += b.Volume
	}
	seriesVolume /= float64(len(bars))

	var pools []analysis.LiquidityPool
	for _, c := range d.clusterSwings(highs) {
		if len(c.members) >= minTouchesInPool {
			pools = append(pools, d.buildPool(bars, c, analysis.BuySide, seriesVolume))
		}
	}
	for _, c := range d.clusterSwings(lows) {
		if len(c.members) >= minTouchesInPool {
			pools = append(pools, d.buildPool(bars, c, analysis.SellSide, seriesVolume))
		}
	}

	active := pools[:0]
	for _, p := range pools {
		if !p.Swept {
			active = append(active, p)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].Strength != active[j].Strength {
			return active[i].Strength > active[j].Strength
		}
		if !active[i].LastTouch.Equal(active[j].LastTouch) {
			return active[i].LastTouch.After(active[j].LastTouch)
		}
		return active[i].Level > active[j].Level
	})
	if len(active) > d.cfg.MaxPools {
		active = active[:d.cfg.MaxPools]
	}

	return active
}

func (d *LiquidityDetector) clusterSwings(points []analysis.SwingPoint) []cluster {
	if len(points) == 0 {
		return nil
	}

	sorted := make([]analysis.SwingPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	var clusters []cluster
	current := cluster{price: sorted[0].Price, members: []analysis.SwingPoint{sorted[0]}}
	for _, p := range sorted[1:] {
		if current.price > 0 && abs(p.Price-current.price)/current.price <= d.cfg.LiquidityTolerance {
			n := float64(len(current.members))
			current.price = (current.price*n + p.Price) / (n + 1)
			current.members = append(current.members, p)
			continue
		}
		clusters = append(clusters, current)
		current = cluster{price: p.Price, members: []analysis.SwingPoint{p}}
	}
	return append(clusters, current)
}

func (d *LiquidityDetector) buildPool(bars []models.Bar, c cluster, side analysis.PoolSide, seriesVolume float64) analysis.LiquidityPool {
	first, last := c.members[0], c.members[0]
	for _, m := range c.members {
		if m.Index < first.Index {
			first = m
		}
		if m.Index > last.Index {
			last = m
		}
	}
	volume := d.touchVolume(bars, c, side, first.Index, last.Index)

	spanDays := last.Timestamp.Sub(first.Timestamp).Hours() / 24
	pool := analysis.LiquidityPool{
		Type:       side,
		Level:      c.price,
		Touches:    len(c.members),
		FirstTouch: first.Timestamp,
		LastTouch:  last.Timestamp,
		Strength:   min(100, float64(len(c.members))*touchScore+clamp(spanDays, 0, maxSpanDays)),
		AvgVolume:  volume,
	}

	switch ratio := safeRatio(volume, seriesVolume); {
	case ratio > highVolumeRatio:
		pool.VolumeProfile = analysis.VolumeHigh
	case ratio < lowVolumeRatio:
		pool.VolumeProfile = analysis.VolumeLow
	default:
		pool.VolumeProfile = analysis.VolumeMedium
	}

	for _, b := range bars[last.Index+1:] {
		if side == analysis.BuySide && b.Close > pool.Level*(1+d.cfg.SweepThreshold) {
			pool.Swept = true
			break
		}
		if side == analysis.SellSide && b.Close < pool.Level*(1-d.cfg.SweepThreshold) {
			pool.Swept = true
			break
		}
	}

	return pool
}

// touchVolume averages the volume of every bar between the first and last
// touch whose high (buy side) or low (sell side) came within tolerance of the
// level, swing or not.
func (d *LiquidityDetector) touchVolume(bars []models.Bar, c cluster, side analysis.PoolSide, from, to int) float64 {
	members := make(map[int]bool, len(c.members))
	for _, m := range c.members {
		members[m.Index] = true
	}

	var sum float64
	var n int
	for i := from; i <= to; i++ {
		extreme := bars[i].High
		if side == analysis.SellSide {
			extreme = bars[i].Low
		}
		if members[i] || (c.price > 0 && abs(extreme-c.price)/c.price <= d.cfg.LiquidityTolerance) {
			sum += bars[i].Volume
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func safeRatio(a, b float64) float64 {
	if b == 0 {
		return 1
	}
	return a / b
}
