package patterns

import (
	"ict-signals/internal/analysis"
	"ict-signals/internal/models"
)

// structureDepth is how many recent swings of each kind get compared.
const structureDepth = 4

// StructureAnalyzer classifies market structure from swing points.
type StructureAnalyzer struct {
	radius       int
	bosThreshold float64
}

// NewStructureAnalyzer creates a structure analyzer from cfg.
func NewStructureAnalyzer(cfg Config) *StructureAnalyzer {
	return &StructureAnalyzer{
		radius:       cfg.SwingRadius,
		bosThreshold: cfg.BOSThreshold,
	}
}

func (s *StructureAnalyzer) Name() string {
	return "StructureAnalyzer"
}

// Analyze classifies the series as bullish, bearish or ranging.
func (s *StructureAnalyzer) Analyze(series models.BarSeries) analysis.MarketStructure {
	result := analysis.MarketStructure{Classification: analysis.StructureUnknown}
	if series.Len() < MinBars {
		return result
	}

	radius := min(series.Len()/2, s.radius)
	highs, lows := FindSwings(series.Bars, radius)
	result.SwingHighs = lastSwings(highs, structureDepth)
	result.SwingLows = lastSwings(lows, structureDepth)

	for i := 1; i < len(result.SwingHighs); i++ {
		switch prev, cur := result.SwingHighs[i-1].Price, result.SwingHighs[i].Price; {
		case cur > prev:
			result.BullishVotes++
		case cur < prev:
			result.BearishVotes++
		}
	}
	for i := 1; i < len(result.SwingLows); i++ {
		switch prev, cur := result.SwingLows[i-1].Price, result.SwingLows[i].Price; {
		case cur > prev:
			result.BullishVotes++
		case cur < prev:
			result.BearishVotes++
		}
	}

	switch {
	case result.BullishVotes > result.BearishVotes && result.BullishVotes >= 2:
		result.Classification = analysis.StructureBullish
		result.Strength = voteStrength(result.BullishVotes)
	case result.BearishVotes > result.BullishVotes && result.BearishVotes >= 2:
		result.Classification = analysis.StructureBearish
		result.Strength = voteStrength(result.BearishVotes)
	default:
		result.Classification = analysis.StructureRanging
		result.Strength = voteStrength(max(result.BullishVotes, result.BearishVotes))
	}

	return result
}

// BreakOfStructure reports a last close beyond the most recent swing by more than the threshold.
func (s *StructureAnalyzer) BreakOfStructure(series models.BarSeries) analysis.StructureBreak {
	none := analysis.StructureBreak{Kind: analysis.BreakNone}
	if series.Len() < MinBars {
		return none
	}

	highs, lows := FindSwings(series.Bars, min(series.Len()/2, s.radius))
	last := series.Last().Close

	if len(highs) > 0 {
		swing := highs[len(highs)-1].Price
		if swing > 0 && last > swing*(1+s.bosThreshold) {
			return analysis.StructureBreak{
				Kind:       analysis.BreakBullish,
				SwingPrice: swing,
				Close:      last,
				Distance:   (last - swing) / swing * 100,
			}
		}
	}
	if len(lows) > 0 {
		swing := lows[len(lows)-1].Price
		if swing > 0 && last < swing*(1-s.bosThreshold) {
			return analysis.StructureBreak{
				Kind:       analysis.BreakBearish,
				SwingPrice: swing,
				Close:      last,
				Distance:   (swing - last) / swing * 100,
			}
		}
	}

	return none
}

// FindSwings returns strict local extremes within +-radius bars.
func FindSwings(bars []models.Bar, radius int) (highs, lows []analysis.SwingPoint) {
	if radius < 1 {
		return nil, nil
	}

	for i := radius; i < len(bars)-radius; i++ {
		isHigh, isLow := true, true
		for j := 1; j <= radius && (isHigh || isLow); j++ {
			if bars[i].High <= bars[i-j].High || bars[i].High <= bars[i+j].High {
				isHigh = false
			}
			if bars[i].Low >= bars[i-j].Low || bars[i].Low >= bars[i+j].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, analysis.SwingPoint{
				Index:     i,
				Timestamp: bars[i].Timestamp,
				Price:     bars[i].High,
				Kind:      analysis.SwingHigh,
			})
		}
		if isLow {
			lows = append(lows, analysis.SwingPoint{
				Index:     i,
				Timestamp: bars[i].Timestamp,
				Price:     bars[i].Low,
				Kind:      analysis.SwingLow,
			})
		}
	}

	return highs, lows
}

func lastSwings(points []analysis.SwingPoint, n int) []analysis.SwingPoint {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

func voteStrength(votes int) float64 {
	return float64(min(100, votes*25))
}
