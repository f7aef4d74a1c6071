package patterns

import (
	"sort"

	"ict-signals/internal/analysis"
	"ict-signals/internal/models"
)

const (
	obBaseScore         = 50.0
	obVolumeBonus       = 20.0
	obBodyBonus         = 15.0
	obDisplacementBonus = 15.0
	obVolumeFactor      = 1.5
	obBodyRatio         = 0.7
	obDisplacementRatio = 0.8
	volumeAvgPeriod     = 20
)

// OrderBlockDetector finds order blocks behind displacement bars.
type OrderBlockDetector struct {
	cfg Config
}

// NewOrderBlockDetector creates an order block detector from cfg.
func NewOrderBlockDetector(cfg Config) *OrderBlockDetector {
	return &OrderBlockDetector{cfg: cfg}
}

func (d *OrderBlockDetector) Name() string {
	return "OrderBlockDetector"
}

// Detect returns the strongest unfilled order blocks, most recent first.
func (d *OrderBlockDetector) Detect(series models.BarSeries) []analysis.OrderBlock {
	if series.Len() < MinBars {
		return nil
	}
	bars := series.Bars

	byOrigin := make(map[int]analysis.OrderBlock)
	for _, disp := range d.displacements(bars) {
		ob, ok := d.candidate(bars, disp)
		if !ok {
			continue
		}
		if prev, seen := byOrigin[ob.OriginIndex]; !seen || ob.Strength > prev.Strength {
			byOrigin[ob.OriginIndex] = ob
		}
	}

	var active []analysis.OrderBlock
	for _, ob := range byOrigin {
		if !ob.Filled {
			active = append(active, ob)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].Strength != active[j].Strength {
			return active[i].Strength > active[j].Strength
		}
		return active[i].OriginIndex > active[j].OriginIndex
	})
	if len(active) > d.cfg.MaxOrderBlocks {
		active = active[:d.cfg.MaxOrderBlocks]
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].OriginIndex > active[j].OriginIndex
	})

	return active
}

// displacements returns indexes of bars with a dominant body that ranks in the
// top share of recent bodies.
func (d *OrderBlockDetector) displacements(bars []models.Bar) []int {
	var out []int
	for i := 1; i < len(bars); i++ {
		if bars[i].BodyRatio() <= d.cfg.DisplacementRatio {
			continue
		}

		start := max(0, i-d.cfg.DisplacementLookback+1)
		bodies := make([]float64, 0, i-start+1)
		for _, b := range bars[start : i+1] {
			bodies = append(bodies, b.Body())
		}
		if bars[i].Body() >= quantile(bodies, 1-d.cfg.DisplacementTopShare) {
			out = append(out, i)
		}
	}
	return out
}

// candidate validates and scores the order block preceding displacement bar disp.
func (d *OrderBlockDetector) candidate(bars []models.Bar, disp int) (analysis.OrderBlock, bool) {
	db := bars[disp]
	var side analysis.Side
	switch {
	case db.IsBullish():
		side = analysis.Bullish
	case db.IsBearish():
		side = analysis.Bearish
	default:
		return analysis.OrderBlock{}, false
	}

	origin := -1
	for j := disp - 1; j >= max(0, disp-d.cfg.OrderBlockScanBack); j-- {
		if (side == analysis.Bullish && bars[j].IsBearish()) || (side == analysis.Bearish && bars[j].IsBullish()) {
			origin = j
			break
		}
	}
	if origin < 0 {
		return analysis.OrderBlock{}, false
	}
	if sep := disp - origin; sep < 1 || sep > d.cfg.OrderBlockMaxDistance {
		return analysis.OrderBlock{}, false
	}

	ob := bars[origin]
	width := ob.Range()
	if width <= 0 {
		return analysis.OrderBlock{}, false
	}

	var travel float64
	if side == analysis.Bullish {
		top := db.High
		for _, b := range bars[disp:] {
			top = max(top, b.High)
		}
		travel = top - ob.High
	} else {
		bottom := db.Low
		for _, b := range bars[disp:] {
			bottom = min(bottom, b.Low)
		}
		travel = ob.Low - bottom
	}
	if travel < d.cfg.OrderBlockMoveFactor*width {
		return analysis.OrderBlock{}, false
	}

	block := analysis.OrderBlock{
		Type:             side,
		Low:              ob.Low,
		High:             ob.High,
		OriginIndex:      origin,
		OriginTime:       ob.Timestamp,
		DisplacementTime: db.Timestamp,
		Strength:         scoreOrderBlock(ob, db, averageVolume(bars, origin, volumeAvgPeriod)),
	}

	for _, b := range bars[disp+1:] {
		if side == analysis.Bullish {
			if b.Low <= block.High {
				block.Tested = true
			}
			if b.Close < block.Low {
				block.Filled = true
				break
			}
		} else {
			if b.High >= block.Low {
				block.Tested = true
			}
			if b.Close > block.High {
				block.Filled = true
				break
			}
		}
	}

	return block, true
}

// scoreOrderBlock rates a block by volume and body conviction.
func scoreOrderBlock(ob, displacement models.Bar, avgVolume float64) float64 {
	score := obBaseScore
	if avgVolume > 0 && ob.Volume > obVolumeFactor*avgVolume {
		score += obVolumeBonus
	}
	if ob.BodyRatio() > obBodyRatio {
		score += obBodyBonus
	}
	if displacement.BodyRatio() > obDisplacementRatio {
		score += obDisplacementBonus
	}
	return min(100, score)
}

// averageVolume is the mean volume of up to period bars before idx.
func averageVolume(bars []models.Bar, idx, period int) float64 {
	start := max(0, idx-period)
	if idx <= start {
		return 0
	}
	var sum float64
	for _, b := range bars[start:idx] {
		sum += b.Volume
	}
	return sum / float64(idx-start)
}

// quantile returns the q-th quantile of values by linear interpolation.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
