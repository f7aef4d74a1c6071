package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ict-signals/internal/analysis"
	"ict-signals/internal/analysis/indicators"
	"ict-signals/internal/analysis/mtf"
	"ict-signals/internal/analysis/patterns"
	"ict-signals/internal/analysis/scoring"
	"ict-signals/internal/models"
)

// ReasonDataUnavailable is the single reason carried by a fallback signal.
const ReasonDataUnavailable = "market data unavailable"

var signalNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ict-signals/trade-signal"))

// Engine is pure and synchronous; one instance may serve concurrent callers.
type Engine struct {
	symbol string
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	structure   *patterns.StructureAnalyzer
	orderBlocks *patterns.OrderBlockDetector
	gaps        *patterns.FVGDetector
	liquidity   *patterns.LiquidityDetector
	bank        *indicators.Bank
	aggregator  *mtf.Aggregator
	scorer      *scoring.Scorer
}

// NewEngine creates an engine for one instrument.
func NewEngine(symbol string, cfg Config) *Engine {
	if cfg.Primary == "" {
		cfg.Primary = models.TF1h
	}
	cfg.MTF.Primary = cfg.Primary
	return &Engine{
		symbol:      symbol,
		cfg:         cfg,
		logger:      zerolog.Nop(),
		now:         time.Now,
		structure:   patterns.NewStructureAnalyzer(cfg.Patterns),
		orderBlocks: patterns.NewOrderBlockDetector(cfg.Patterns),
		gaps:        patterns.NewFVGDetector(cfg.Patterns),
		liquidity:   patterns.NewLiquidityDetector(cfg.Patterns),
		bank:        indicators.NewBank(),
		aggregator:  mtf.NewAggregator(cfg.MTF),
		scorer:      scoring.NewScorer(cfg.Scoring),
	}
}

// WithLogger sets a debug logger.
func (e *Engine) WithLogger(logger zerolog.Logger) *Engine {
	e.logger = logger
	return e
}

// Symbol returns the instrument the engine scores.
func (e *Engine) Symbol() string {
	return e.symbol
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// WithClock sets the clock that stamps fallback signals built without any
// primary bar to date them.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Generate scores the bar set. It never fails: missing data and any panic
// inside the pipeline yield the fallback signal. A fallback is dated by the
// last primary bar when there is one and by the engine clock otherwise.
func (e *Engine) Generate(set models.BarSet) (sig models.TradeSignal) {
	var lastBar time.Time
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug().Interface("panic", r).Msg("signal pipeline recovered")
			at := lastBar
			if at.IsZero() {
				at = e.now()
			}
			sig = Fallback(e.symbol, at)
		}
	}()

	primary, ok := set[e.cfg.Primary]
	if len(set.Timeframes()) == 0 || !ok || primary.Empty() {
		e.logger.Debug().Str("primary", string(e.cfg.Primary)).Msg("no primary bars, using fallback")
		return Fallback(e.symbol, e.now())
	}

	last := primary.Last()
	lastBar = last.Timestamp
	price := last.Close

	structure := e.structure.Analyze(primary)
	bos := e.structure.BreakOfStructure(primary)
	snap := e.bank.Compute(primary)

	atr := snap.ATR14
	if snap.Minimal {
		atr = 0
	}
	blocks := e.orderBlocks.Detect(primary)
	gaps := e.gaps.Detect(primary, atr)
	pools := e.liquidity.Detect(primary)
	bias := e.aggregator.Aggregate(set)

	in := scoring.Inputs{
		Price:       price,
		Structure:   structure,
		OrderBlocks: blocks,
		FVGs:        gaps,
		Indicators:  snap,
		Bias:        bias,
	}
	result := e.scorer.Score(in)
	sig = scoring.Decide(result, in, e.cfg.Scoring)

	zone := patterns.KillZoneAt(last.Timestamp)
	ote := patterns.OptimalTradeEntry(primary, e.cfg.Patterns)
	if len(sig.Reasons) < e.cfg.Scoring.MaxReasons && zone.Quality != patterns.QualityMedium {
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("%s kill zone (%s)", zone.Name, zone.Quality))
	}

	sig.ID = SignalID(e.symbol, last.Timestamp, sig.Direction)
	sig.Symbol = e.symbol
	sig.GeneratedAt = last.Timestamp.UTC()
	sig.DataQuality = models.DataReal
	sig.Structure = structureSummary(price, structure, bos, blocks, gaps, pools, zone, ote)
	sig.Indicators = indicatorSummary(snap)
	sig.MultiTimeframe = mtfSummary(bias)

	e.logger.Debug().
		Float64("score", result.Score).
		Int("confluence", result.Count()).
		Str("candidate", string(sig.Direction)).
		Bool("minimal_indicators", snap.Minimal).
		Msg("signal scored")

	return sig
}

// SignalID derives a stable identifier from the instrument, the last bar time
// and the direction.
func SignalID(symbol string, at time.Time, direction models.Direction) string {
	key := fmt.Sprintf("%s|%s|%s", symbol, at.UTC().Format(time.RFC3339Nano), direction)
	return uuid.NewSHA1(signalNamespace, []byte(key)).String()
}

// Fallback returns the HOLD signal used when no market data is available.
func Fallback(symbol string, at time.Time) models.TradeSignal {
	at = at.UTC()
	return models.TradeSignal{
		ID:          SignalID(symbol, at, models.DirectionHold),
		Symbol:      symbol,
		GeneratedAt: at,
		Direction:   models.DirectionHold,
		Confidence:  50,
		Quality:     models.QualityPoor,
		Factors:     []string{},
		Reasons:     []string{ReasonDataUnavailable},
		Structure: models.StructureSummary{
			Classification:   string(analysis.StructureUnknown),
			BreakOfStructure: string(analysis.BreakNone),
		},
		Indicators: models.IndicatorSummary{
			TrendDirection: indicators.TrendSideways,
			Minimal:        true,
		},
		MultiTimeframe: models.MTFSummary{OverallBias: string(mtf.Neutral), Score: 50},
		DataQuality:    models.DataFallback,
	}
}

func structureSummary(
	price float64,
	ms analysis.MarketStructure,
	bos analysis.StructureBreak,
	blocks []analysis.OrderBlock,
	gaps []analysis.FairValueGap,
	pools []analysis.LiquidityPool,
	zone analysis.KillZone,
	ote analysis.OTEZone,
) models.StructureSummary {
	s := models.StructureSummary{
		Classification:   string(ms.Classification),
		Strength:         ms.Strength,
		BreakOfStructure: string(bos.Kind),
		OrderBlocks:      len(blocks),
		FairValueGaps:    len(gaps),
		LiquidityPools:   len(pools),
		KillZone:         zone.Name,
		SessionQuality:   zone.Quality,
		InOTE:            ote.InZone,
		OTELevel:         ote.Level,
	}

	best := math.Inf(1)
	for _, ob := range blocks {
		if d := zoneDistance(price, ob.Low, ob.High); d < best {
			best = d
			s.NearestOrderBlock = &models.ZoneRef{Type: string(ob.Type), Low: ob.Low, High: ob.High, Strength: ob.Strength}
		}
	}

	best = math.Inf(1)
	for _, g := range gaps {
		if d := zoneDistance(price, g.Lower, g.Upper); d < best {
			best = d
			s.NearestFVG = &models.ZoneRef{Type: string(g.Type), Low: g.Lower, High: g.Upper, Strength: g.MomentumStrength}
		}
	}

	best = math.Inf(1)
	for _, p := range pools {
		if d := math.Abs(price - p.Level); d < best {
			best = d
			s.NearestLiquidityPool = &models.ZoneRef{Type: string(p.Type), Low: p.Level, High: p.Level, Strength: p.Strength}
		}
	}

	return s
}

// zoneDistance is 0 inside the zone and the gap to the nearest edge outside it.
func zoneDistance(price, low, high float64) float64 {
	switch {
	case price < low:
		return low - price
	case price > high:
		return price - high
	default:
		return 0
	}
}

func indicatorSummary(s indicators.Snapshot) models.IndicatorSummary {
	return models.IndicatorSummary{
		TrendDirection:  s.TrendDirection,
		TrendStrength:   s.TrendStrength,
		RSI:             s.RSI14,
		MACDSign:        s.MACDSign(),
		MACDHistogram:   s.MACDHistogram,
		BBPosition:      s.BBPosition,
		VolumeStrength:  s.VolumeStrength,
		VolumeRatio:     s.VolumeRatio,
		ATR:             s.ATR14,
		VolatilityRank:  s.VolatilityRank,
		VolatilityScore: s.VolatilityScore,
		Minimal:         s.Minimal,
	}
}

func mtfSummary(b mtf.Bias) models.MTFSummary {
	out := models.MTFSummary{
		OverallBias: string(b.Label),
		Strength:    b.Strength,
		Score:       b.Score,
		Timeframes:  make([]models.TimeframeScore, 0, len(b.Timeframes)),
	}
	for _, tb := range b.Timeframes {
		out.Timeframes = append(out.Timeframes, models.TimeframeScore{
			Timeframe: tb.Timeframe, Score: tb.Score, Weight: tb.Weight, Bars: tb.Bars,
		})
	}
	return out
}
