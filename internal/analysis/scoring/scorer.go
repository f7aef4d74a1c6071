package scoring

import (
	"fmt"
	"math"
	"sort"

	"ict-signals/internal/analysis"
	"ict-signals/internal/analysis/indicators"
	"ict-signals/internal/analysis/mtf"
)

// Factor tags.
const (
	FactorStructure     = "structure"
	FactorOrderBlock    = "order_block"
	FactorFVG           = "fvg"
	FactorEMAAlignment  = "ema_alignment"
	FactorMACD          = "macd"
	FactorRSI           = "rsi"
	FactorMTFBias       = "mtf_bias"
	FactorMTFOpposition = "mtf_opposition"
	FactorVolume        = "volume"
)

// Inputs is everything the scorer reads about the current market.
type Inputs struct {
	Price       float64
	Structure   analysis.MarketStructure
	OrderBlocks []analysis.OrderBlock
	FVGs        []analysis.FairValueGap
	Indicators  indicators.Snapshot
	Bias        mtf.Bias
}

// Contribution is one signed adjustment to the score.
type Contribution struct {
	Factor string
	Points float64
	Reason string
}

// ConfluenceResult is the clamped score and the factors behind it.
type ConfluenceResult struct {
	Score         float64
	Contributions []Contribution
	// Factors lists the distinct tags agreeing with the final lean, in first-seen order.
	Factors []string
}

// Count returns the confluence count.
func (r ConfluenceResult) Count() int {
	return len(r.Factors)
}

// Lean returns the score's offset from neutral.
func (r ConfluenceResult) Lean() float64 {
	return r.Score - 50
}

// Scorer applies the confluence rules.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score runs the contributions in a fixed order starting from 50.
func (s *Scorer) Score(in Inputs) ConfluenceResult {
	var contribs []Contribution
	score := 50.0
	add := func(factor string, points float64, reason string) {
		if points == 0 {
			return
		}
		score += points
		contribs = append(contribs, Contribution{Factor: factor, Points: points, Reason: reason})
	}

	switch in.Structure.Classification {
	case analysis.StructureBullish:
		add(FactorStructure, in.Structure.Strength*s.cfg.StructureWeight,
			fmt.Sprintf("bullish market structure (strength %.0f)", in.Structure.Strength))
	case analysis.StructureBearish:
		add(FactorStructure, -in.Structure.Strength*s.cfg.StructureWeight,
			fmt.Sprintf("bearish market structure (strength %.0f)", in.Structure.Strength))
	}

	for _, ob := range in.OrderBlocks {
		if !ob.Contains(in.Price) {
			continue
		}
		points := math.Min(ob.Strength*s.cfg.OrderBlockWeight, s.cfg.OrderBlockCap)
		add(FactorOrderBlock, ob.Type.Sign()*points,
			fmt.Sprintf("price inside %s order block %.2f-%.2f (strength %.0f)", lower(ob.Type), ob.Low, ob.High, ob.Strength))
	}

	for _, gap := range in.FVGs {
		if !gap.Contains(in.Price) {
			continue
		}
		points := math.Min(gap.MomentumStrength*s.cfg.FVGWeight, s.cfg.FVGCap)
		add(FactorFVG, gap.Type.Sign()*points,
			fmt.Sprintf("price inside %s fair value gap %.2f-%.2f", lower(gap.Type), gap.Lower, gap.Upper))
	}

	ind := in.Indicators
	switch {
	case in.Price > ind.EMA12 && ind.EMA12 > ind.EMA26:
		add(FactorEMAAlignment, s.cfg.EMAPoints, "bullish EMA alignment (close > EMA12 > EMA26)")
	case in.Price < ind.EMA12 && ind.EMA12 < ind.EMA26:
		add(FactorEMAAlignment, -s.cfg.EMAPoints, "bearish EMA alignment (close < EMA12 < EMA26)")
	}

	switch ind.MACDSign() {
	case 1:
		add(FactorMACD, s.cfg.MACDPoints, "MACD histogram positive")
	case -1:
		add(FactorMACD, -s.cfg.MACDPoints, "MACD histogram negative")
	}

	switch {
	case ind.RSI14 < 30:
		add(FactorRSI, s.cfg.RSIExtremePoints, fmt.Sprintf("RSI oversold (%.1f)", ind.RSI14))
	case ind.RSI14 > 70:
		add(FactorRSI, -s.cfg.RSIExtremePoints, fmt.Sprintf("RSI overbought (%.1f)", ind.RSI14))
	case ind.RSI14 >= 40 && ind.RSI14 <= 60:
		add(FactorRSI, s.cfg.RSINeutralPoints, fmt.Sprintf("RSI neutral (%.1f)", ind.RSI14))
	}

	bias := in.Bias
	if sign := bias.Label.Sign(); sign != 0 {
		add(FactorMTFBias, float64(sign)*bias.Strength*s.cfg.MTFWeight,
			fmt.Sprintf("multi-timeframe bias %s (strength %.0f)", bias.Label, bias.Strength))
	}

	if sign := bias.Label.Sign(); sign != 0 && bias.Strength > s.cfg.MTFOppositionStrength {
		if lean := score - 50; (lean > 0 && sign < 0) || (lean < 0 && sign > 0) {
			add(FactorMTFOpposition, float64(sign)*s.cfg.MTFOppositionPenalty,
				fmt.Sprintf("strong %s higher-timeframe bias opposes the setup", bias.Label))
		}
	}

	switch {
	case ind.VolumeRatio > 1.5:
		add(FactorVolume, s.cfg.VolumeBonus, fmt.Sprintf("volume %.1fx average", ind.VolumeRatio))
	case ind.VolumeRatio < 0.7:
		add(FactorVolume, -s.cfg.VolumePenalty, fmt.Sprintf("volume below average (%.1fx)", ind.VolumeRatio))
	}

	score = math.Max(0, math.Min(100, score))
	return ConfluenceResult{
		Score:         score,
		Contributions: contribs,
		Factors:       agreeingFactors(contribs, score-50),
	}
}

// agreeingFactors returns the distinct tags whose contribution shares the
// final lean. A volume bonus always counts.
func agreeingFactors(contribs []Contribution, lean float64) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range contribs {
		agrees := (c.Points > 0 && lean > 0) || (c.Points < 0 && lean < 0)
		if c.Factor == FactorVolume {
			agrees = c.Points > 0
		}
		if agrees && !seen[c.Factor] {
			seen[c.Factor] = true
			out = append(out, c.Factor)
		}
	}
	return out
}

// TopReasons returns up to n reasons ordered by absolute contribution.
func (r ConfluenceResult) TopReasons(n int) []string {
	ranked := make([]Contribution, len(r.Contributions))
	copy(ranked, r.Contributions)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Points) > math.Abs(ranked[j].Points)
	})
	out := make([]string, 0, min(n, len(ranked)))
	for _, c := range ranked {
		if len(out) == n {
			break
		}
		out = append(out, c.Reason)
	}
	return out
}

func lower(s analysis.Side) string {
	if s == analysis.Bullish {
		return "bullish"
	}
	return "bearish"
}
