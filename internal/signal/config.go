// Package signal orchestrates the detectors, the indicator bank, the
// multi-timeframe aggregator and the scorer into a TradeSignal.
package signal

import (
	"ict-signals/internal/analysis/mtf"
	"ict-signals/internal/analysis/patterns"
	"ict-signals/internal/analysis/scoring"
	"ict-signals/internal/models"
)

// Config is the full engine configuration, loaded from the [engine] table.
type Config struct {
	Primary  models.Timeframe `mapstructure:"primary"`
	Patterns patterns.Config  `mapstructure:"patterns"`
	MTF      mtf.Config       `mapstructure:"mtf"`
	Scoring  scoring.Config   `mapstructure:"scoring"`
}

// DefaultConfig returns the engine defaults with 1h as the primary timeframe.
func DefaultConfig() Config {
	return Config{
		Primary:  models.TF1h,
		Patterns: patterns.DefaultConfig(),
		MTF:      mtf.DefaultConfig(),
		Scoring:  scoring.DefaultConfig(),
	}
}
