// Package mtf aggregates a directional bias across timeframes.
package mtf

import (
	"math"
	"sort"

	"ict-signals/internal/models"
)

// BiasLabel is the aggregated multi-timeframe direction.
type BiasLabel string

const (
	Bullish BiasLabel = "BULLISH"
	Bearish BiasLabel = "BEARISH"
	Neutral BiasLabel = "NEUTRAL"
)

// Sign returns +1 for BULLISH, -1 for BEARISH and 0 for NEUTRAL.
func (b BiasLabel) Sign() int {
	switch b {
	case Bullish:
		return 1
	case Bearish:
		return -1
	default:
		return 0
	}
}

// ConfluenceLevel describes how many timeframes lean the same way.
type ConfluenceLevel string

const (
	ConfluenceStrong   ConfluenceLevel = "STRONG"
	ConfluenceModerate ConfluenceLevel = "MODERATE"
	ConfluenceWeak     ConfluenceLevel = "WEAK"
	ConfluenceNone     ConfluenceLevel = "NONE"
)

// Config controls the aggregator.
type Config struct {
	Primary       models.Timeframe             `mapstructure:"primary"`
	MinBars       int                          `mapstructure:"min_bars"`
	SMAPeriod     int                          `mapstructure:"sma_period"`
	DistanceScale float64                      `mapstructure:"distance_scale"`
	MaxDeviation  float64                      `mapstructure:"max_deviation"`
	BullishAbove  float64                      `mapstructure:"bullish_above"`
	BearishBelow  float64                      `mapstructure:"bearish_below"`
	Weights       map[models.Timeframe]float64 `mapstructure:"weights"`
}

// DefaultConfig returns the standard weighting, favouring higher timeframes.
func DefaultConfig() Config {
	return Config{
		Primary:       models.TF1h,
		MinBars:       10,
		SMAPeriod:     20,
		DistanceScale: 1,
		MaxDeviation:  30,
		BullishAbove:  60,
		BearishBelow:  40,
		Weights: map[models.Timeframe]float64{
			models.TF1d:  3,
			models.TF4h:  2.5,
			models.TF1h:  2,
			models.TF15m: 1.5,
			models.TF5m:  1,
			models.TF1m:  0.5,
		},
	}
}

// TimeframeBias is the score of a single timeframe.
type TimeframeBias struct {
	Timeframe models.Timeframe
	Score     float64
	Weight    float64
	Bars      int
}

// Bias is the weighted result across every usable timeframe.
type Bias struct {
	Label        BiasLabel
	Strength     float64
	Score        float64
	Timeframes   []TimeframeBias
	Confluence   ConfluenceLevel
	BullishCount int
	BearishCount int
	NeutralCount int
}

// NeutralBias is the single-timeframe fallback.
func NeutralBias() Bias {
	return Bias{Label: Neutral, Score: 50, Confluence: ConfluenceNone}
}

// Aggregator scores each timeframe by its distance from a moving average.
type Aggregator struct {
	cfg Config
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Aggregate returns the weighted bias. Timeframes with too few bars are
// skipped, and a set without any usable timeframe besides the primary is NEUTRAL.
func (a *Aggregator) Aggregate(set models.BarSet) Bias {
	var scored []TimeframeBias
	others := 0
	for _, tf := range set.Timeframes() {
		series := set[tf]
		weight := a.cfg.Weights[tf]
		if series.Len() < a.cfg.MinBars || weight <= 0 {
			continue
		}
		score, ok := a.timeframeScore(series)
		if !ok {
			continue
		}
		scored = append(scored, TimeframeBias{Timeframe: tf, Score: score, Weight: weight, Bars: series.Len()})
		if tf != a.cfg.Primary {
			others++
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Timeframe.Rank() > scored[j].Timeframe.Rank()
	})

	if others == 0 {
		bias := NeutralBias()
		bias.Timeframes = scored
		return bias
	}

	var weighted, totalWeight float64
	bias := Bias{Timeframes: scored}
	for _, tb := range scored {
		weighted += tb.Score * tb.Weight
		totalWeight += tb.Weight
		switch {
		case tb.Score > 50:
			bias.BullishCount++
		case tb.Score < 50:
			bias.BearishCount++
		default:
			bias.NeutralCount++
		}
	}
	bias.Score = weighted / totalWeight

	switch {
	case bias.Score > a.cfg.BullishAbove:
		bias.Label = Bullish
	case bias.Score < a.cfg.BearishBelow:
		bias.Label = Bearish
	default:
		bias.Label = Neutral
	}
	bias.Strength = math.Min(100, math.Abs(bias.Score-50)*2)
	bias.Confluence = confluenceLevel(max(bias.BullishCount, bias.BearishCount), len(scored))

	return bias
}

// timeframeScore is 50 plus the close's percentage distance from its SMA,
// scaled by DistanceScale and capped at MaxDeviation.
func (a *Aggregator) timeframeScore(series models.BarSeries) (float64, bool) {
	n := min(a.cfg.SMAPeriod, series.Len())
	var sum float64
	for _, b := range series.Bars[series.Len()-n:] {
		sum += b.Close
	}
	sma := sum / float64(n)
	if sma <= 0 {
		return 0, false
	}
	dist := (series.Last().Close - sma) / sma * 100 * a.cfg.DistanceScale
	dist = math.Max(-a.cfg.MaxDeviation, math.Min(a.cfg.MaxDeviation, dist))
	if math.IsNaN(dist) {
		return 0, false
	}
	return 50 + dist, true
}

// confluenceLevel grades agreement as a share of usable timeframes.
func confluenceLevel(agree, total int) ConfluenceLevel {
	if total == 0 || agree < 2 {
		return ConfluenceNone
	}
	share := float64(agree) / float64(total)
	switch {
	case share == 1:
		return ConfluenceStrong
	case share >= 0.75:
		return ConfluenceModerate
	default:
		return ConfluenceWeak
	}
}
