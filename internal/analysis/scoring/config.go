// Package scoring turns detector and indicator output into a confluence score
// and a gated trade decision.
package scoring

// Config holds every scoring threshold. The zero value is not useful; start
// from DefaultConfig.
type Config struct {
	StructureWeight  float64 `mapstructure:"structure_weight"`
	OrderBlockWeight float64 `mapstructure:"order_block_weight"`
	OrderBlockCap    float64 `mapstructure:"order_block_cap"`
	FVGWeight        float64 `mapstructure:"fvg_weight"`
	FVGCap           float64 `mapstructure:"fvg_cap"`
	EMAPoints        float64 `mapstructure:"ema_points"`
	MACDPoints       float64 `mapstructure:"macd_points"`
	RSIExtremePoints float64 `mapstructure:"rsi_extreme_points"`
	RSINeutralPoints float64 `mapstructure:"rsi_neutral_points"`
	MTFWeight        float64 `mapstructure:"mtf_weight"`
	VolumeBonus      float64 `mapstructure:"volume_bonus"`
	VolumePenalty    float64 `mapstructure:"volume_penalty"`

	StrongBuyScore  float64 `mapstructure:"strong_buy_score"`
	StrongSellScore float64 `mapstructure:"strong_sell_score"`
	BuyScore        float64 `mapstructure:"buy_score"`
	SellScore       float64 `mapstructure:"sell_score"`
	MinConfluence   int     `mapstructure:"min_confluence"`
	StrongCap       float64 `mapstructure:"strong_cap"`
	WeakCap         float64 `mapstructure:"weak_cap"`
	MaxConfidence   float64 `mapstructure:"max_confidence"`

	MTFOppositionStrength float64 `mapstructure:"mtf_opposition_strength"`
	MTFOppositionPenalty  float64 `mapstructure:"mtf_opposition_penalty"`
	NeutralBiasPenalty    float64 `mapstructure:"neutral_bias_penalty"`
	OpposingBiasPenalty   float64 `mapstructure:"opposing_bias_penalty"`
	MinRiskReward         float64 `mapstructure:"min_risk_reward"`
	RiskRewardPenalty     float64 `mapstructure:"risk_reward_penalty"`
	ConfidenceFloor       float64 `mapstructure:"confidence_floor"`

	EntryBand  float64 `mapstructure:"entry_band"`
	StopATR    float64 `mapstructure:"stop_atr"`
	Target1ATR float64 `mapstructure:"target1_atr"`
	Target2ATR float64 `mapstructure:"target2_atr"`

	MaxReasons int `mapstructure:"max_reasons"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		StructureWeight:  0.2,
		OrderBlockWeight: 0.15,
		OrderBlockCap:    15,
		FVGWeight:        0.1,
		FVGCap:           10,
		EMAPoints:        8,
		MACDPoints:       5,
		RSIExtremePoints: 10,
		RSINeutralPoints: 2,
		MTFWeight:        0.25,
		VolumeBonus:      5,
		VolumePenalty:    3,

		StrongBuyScore:  65,
		StrongSellScore: 35,
		BuyScore:        60,
		SellScore:       40,
		MinConfluence:   3,
		StrongCap:       95,
		WeakCap:         85,
		MaxConfidence:   95,

		MTFOppositionStrength: 60,
		MTFOppositionPenalty:  20,
		NeutralBiasPenalty:    15,
		OpposingBiasPenalty:   30,
		MinRiskReward:         1.5,
		RiskRewardPenalty:     40,
		ConfidenceFloor:       40,

		EntryBand:  0.001,
		StopATR:    1.5,
		Target1ATR: 2.0,
		Target2ATR: 3.5,

		MaxReasons: 5,
	}
}
