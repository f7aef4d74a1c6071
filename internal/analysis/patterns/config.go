// Package patterns provides the ICT pattern detectors: swing structure,
// order blocks, fair value gaps, liquidity pools and session context.
package patterns

// MinBars is the smallest primary series the detectors work on.
const MinBars = 20

// Config holds detector thresholds.
type Config struct {
	// Structure
	SwingRadius  int     `mapstructure:"swing_radius"`
	BOSThreshold float64 `mapstructure:"bos_threshold"`

	// Order blocks
	DisplacementRatio     float64 `mapstructure:"displacement_ratio"`
	DisplacementTopShare  float64 `mapstructure:"displacement_top_share"`
	DisplacementLookback  int     `mapstructure:"displacement_lookback"`
	OrderBlockScanBack    int     `mapstructure:"order_block_scan_back"`
	OrderBlockMaxDistance int     `mapstructure:"order_block_max_distance"`
	OrderBlockMoveFactor  float64 `mapstructure:"order_block_move_factor"`
	MaxOrderBlocks        int     `mapstructure:"max_order_blocks"`

	// Fair value gaps
	MinGapATRMultiple float64 `mapstructure:"min_gap_atr_multiple"`
	MomentumWindow    int     `mapstructure:"momentum_window"`
	MaxGaps           int     `mapstructure:"max_gaps"`

	// Liquidity
	LiquidityRadius    int     `mapstructure:"liquidity_radius"`
	LiquidityTolerance float64 `mapstructure:"liquidity_tolerance"`
	SweepThreshold     float64 `mapstructure:"sweep_threshold"`
	MaxPools           int     `mapstructure:"max_pools"`

	// Optimal trade entry
	OTELookback  int     `mapstructure:"ote_lookback"`
	OTEProximity float64 `mapstructure:"ote_proximity"`
}

// DefaultConfig returns the standard detector thresholds.
func DefaultConfig() Config {
	return Config{
		SwingRadius:           5,
		BOSThreshold:          0.001,
		DisplacementRatio:     0.6,
		DisplacementTopShare:  0.3,
		DisplacementLookback:  50,
		OrderBlockScanBack:    15,
		OrderBlockMaxDistance: 20,
		OrderBlockMoveFactor:  2.0,
		MaxOrderBlocks:        5,
		MinGapATRMultiple:     0.1,
		MomentumWindow:        3,
		MaxGaps:               5,
		LiquidityRadius:       3,
		LiquidityTolerance:    0.001,
		SweepThreshold:        0.001,
		MaxPools:              6,
		OTELookback:           50,
		OTEProximity:          0.005,
	}
}
