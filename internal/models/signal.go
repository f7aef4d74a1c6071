package models

import "time"

// Direction is the directional call of a signal.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// SignalQuality grades a signal by confidence and confluence.
type SignalQuality string

const (
	QualityExcellent SignalQuality = "EXCELLENT"
	QualityVeryGood  SignalQuality = "VERY_GOOD"
	QualityGood      SignalQuality = "GOOD"
	QualityFair      SignalQuality = "FAIR"
	QualityPoor      SignalQuality = "POOR"
)

// DataQuality tells consumers whether a signal came from real bars.
type DataQuality string

const (
	DataReal     DataQuality = "REAL"
	DataFallback DataQuality = "FALLBACK"
)

// PriceZone is a closed price interval.
type PriceZone struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether price lies inside the zone.
func (z PriceZone) Contains(price float64) bool {
	return price >= z.Low && price <= z.High
}

// ZoneRef is a compact reference to a detected zone or level.
type ZoneRef struct {
	Type     string  `json:"type"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Strength float64 `json:"strength"`
}

// StructureSummary is the ICT part of a signal.
type StructureSummary struct {
	Classification       string   `json:"classification"`
	Strength             float64  `json:"strength"`
	BreakOfStructure     string   `json:"bos"`
	OrderBlocks          int      `json:"order_blocks"`
	FairValueGaps        int      `json:"fvgs"`
	LiquidityPools       int      `json:"liquidity_pools"`
	NearestOrderBlock    *ZoneRef `json:"nearest_order_block,omitempty"`
	NearestFVG           *ZoneRef `json:"nearest_fvg,omitempty"`
	NearestLiquidityPool *ZoneRef `json:"nearest_liquidity_pool,omitempty"`
	KillZone             string   `json:"kill_zone"`
	SessionQuality       string   `json:"session_quality"`
	InOTE                bool     `json:"in_ote"`
	OTELevel             string   `json:"ote_level,omitempty"`
}

// IndicatorSummary is the indicator part of a signal.
type IndicatorSummary struct {
	TrendDirection  string  `json:"trend_direction"`
	TrendStrength   float64 `json:"trend_strength"`
	RSI             float64 `json:"rsi"`
	MACDSign        int     `json:"macd_sign"`
	MACDHistogram   float64 `json:"macd_histogram"`
	BBPosition      string  `json:"bb_position"`
	VolumeStrength  string  `json:"volume_strength"`
	VolumeRatio     float64 `json:"volume_ratio"`
	ATR             float64 `json:"atr"`
	VolatilityRank  float64 `json:"volatility_rank"`
	VolatilityScore float64 `json:"volatility_score"`
	Minimal         bool    `json:"minimal"`
}

// TimeframeScore is one timeframe's contribution to the multi-timeframe bias.
type TimeframeScore struct {
	Timeframe Timeframe `json:"timeframe"`
	Score     float64   `json:"score"`
	Weight    float64   `json:"weight"`
	Bars      int       `json:"bars"`
}

// MTFSummary is the multi-timeframe part of a signal.
type MTFSummary struct {
	OverallBias string           `json:"overall_bias"`
	Strength    float64          `json:"strength"`
	Score       float64          `json:"score"`
	Timeframes  []TimeframeScore `json:"timeframes"`
}

// TradeSignal is the final output of the engine.
type TradeSignal struct {
	ID              string           `json:"id"`
	Symbol          string           `json:"symbol"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Direction       Direction        `json:"direction"`
	Confidence      float64          `json:"confidence"`
	CurrentPrice    float64          `json:"current_price"`
	EntryZone       PriceZone        `json:"entry_zone"`
	StopLoss        float64          `json:"stop_loss"`
	TakeProfit1     float64          `json:"take_profit_1"`
	TakeProfit2     float64          `json:"take_profit_2"`
	RiskReward      float64          `json:"risk_reward"`
	Quality         SignalQuality    `json:"signal_quality"`
	ConfluenceCount int              `json:"confluence_count"`
	Factors         []string         `json:"factors"`
	Reasons         []string         `json:"reasons"`
	Structure       StructureSummary `json:"structure"`
	Indicators      IndicatorSummary `json:"indicators"`
	MultiTimeframe  MTFSummary       `json:"multi_timeframe"`
	DataQuality     DataQuality      `json:"data_quality"`
}

// IsActionable reports a real, directional signal.
func (s TradeSignal) IsActionable() bool {
	return s.DataQuality == DataReal && s.Direction != DirectionHold
}

// Rank orders qualities from POOR (0) to EXCELLENT (4). Unknown labels rank -1.
func (q SignalQuality) Rank() int {
	switch q {
	case QualityPoor:
		return 0
	case QualityFair:
		return 1
	case QualityGood:
		return 2
	case QualityVeryGood:
		return 3
	case QualityExcellent:
		return 4
	default:
		return -1
	}
}

// ParseSignalQuality parses a quality label.
func ParseSignalQuality(s string) (SignalQuality, bool) {
	q := SignalQuality(s)
	return q, q.Rank() >= 0
}
