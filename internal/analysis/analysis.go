// Package analysis holds the value objects shared by the ICT detectors,
// the indicator bank and the confluence scorer.
package analysis

import (
	"time"
)

// SwingKind tells a swing high from a swing low.
type SwingKind string

const (
	SwingHigh SwingKind = "HIGH"
	SwingLow  SwingKind = "LOW"
)

// SwingPoint is a local extreme of a bar series.
type SwingPoint struct {
	Index     int
	Timestamp time.Time
	Price     float64
	Kind      SwingKind
}

// StructureKind classifies market structure.
type StructureKind string

const (
	StructureBullish StructureKind = "BULLISH"
	StructureBearish StructureKind = "BEARISH"
	StructureRanging StructureKind = "RANGING"
	StructureUnknown StructureKind = "UNKNOWN"
)

// MarketStructure is the swing-based read of the primary series.
type MarketStructure struct {
	Classification StructureKind
	Strength       float64
	BullishVotes   int
	BearishVotes   int
	SwingHighs     []SwingPoint
	SwingLows      []SwingPoint
}

// BreakKind labels a break of structure.
type BreakKind string

const (
	BreakNone    BreakKind = "NONE"
	BreakBullish BreakKind = "BULLISH_BOS"
	BreakBearish BreakKind = "BEARISH_BOS"
)

// StructureBreak is a close beyond the most recent swing.
type StructureBreak struct {
	Kind       BreakKind
	SwingPrice float64
	Close      float64
	Distance   float64 // percent beyond the swing
}

// Side is the direction a zone favors.
type Side string

const (
	Bullish Side = "BULLISH"
	Bearish Side = "BEARISH"
)

// Sign returns +1 for bullish and -1 for bearish.
func (s Side) Sign() float64 {
	if s == Bullish {
		return 1
	}
	return -1
}

// OrderBlock is the last opposite bar before a displacement.
type OrderBlock struct {
	Type             Side
	Low              float64
	High             float64
	OriginIndex      int
	OriginTime       time.Time
	DisplacementTime time.Time
	Strength         float64
	Tested           bool
	Filled           bool
}

// Contains reports whether price is inside the block.
func (ob OrderBlock) Contains(price float64) bool {
	return price >= ob.Low && price <= ob.High
}

// FairValueGap is a three-bar imbalance.
type FairValueGap struct {
	Type             Side
	Upper            float64
	Lower            float64
	Size             float64
	Index            int
	Timestamp        time.Time
	MomentumStrength float64
	FillPercent      float64
	Filled           bool
}

// Contains reports whether price is inside the gap.
func (g FairValueGap) Contains(price float64) bool {
	return price >= g.Lower && price <= g.Upper
}

// PoolSide names where resting orders sit.
type PoolSide string

const (
	BuySide  PoolSide = "BUY_SIDE"
	SellSide PoolSide = "SELL_SIDE"
)

// VolumeProfile grades volume at a level.
type VolumeProfile string

const (
	VolumeLow    VolumeProfile = "LOW"
	VolumeMedium VolumeProfile = "MEDIUM"
	VolumeHigh   VolumeProfile = "HIGH"
)

// LiquidityPool is a cluster of near-equal highs or lows.
type LiquidityPool struct {
	Type          PoolSide
	Level         float64
	Touches       int
	FirstTouch    time.Time
	LastTouch     time.Time
	Strength      float64
	AvgVolume     float64
	VolumeProfile VolumeProfile
	Swept         bool
}

// KillZone is a trading session window.
type KillZone struct {
	Name    string
	Quality string
}

// OTEZone is the optimal trade entry read over a recent range.
type OTEZone struct {
	RangeHigh float64
	RangeLow  float64
	Levels    map[string]float64
	InZone    bool
	Level     string
}
