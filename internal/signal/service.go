package signal

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ict-signals/internal/logging"
	"ict-signals/internal/marketdata"
	"ict-signals/internal/models"
)

// Service fetches bars for the engine's instrument and scores them.
type Service struct {
	engine     *Engine
	provider   marketdata.Provider
	timeframes []models.Timeframe
	opts       marketdata.FetchOptions
	logger     zerolog.Logger
}

// NewService creates a service fetching the primary timeframe and every
// timeframe the aggregator weighs.
func NewService(engine *Engine, provider marketdata.Provider, logger zerolog.Logger) *Service {
	return &Service{
		engine:     engine,
		provider:   provider,
		timeframes: RequiredTimeframes(engine.Config()),
		opts:       marketdata.FetchOptions{MaxConcurrency: 3, Logger: &logger},
		logger:     logging.WithSymbol(logger, engine.Symbol()),
	}
}

// RequiredTimeframes returns the primary timeframe plus each positively
// weighted one, lowest first.
func RequiredTimeframes(cfg Config) []models.Timeframe {
	var out []models.Timeframe
	for _, tf := range models.AllTimeframes() {
		if tf == cfg.Primary || cfg.MTF.Weights[tf] > 0 {
			out = append(out, tf)
		}
	}
	return out
}

// Engine returns the wrapped engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Timeframes returns the timeframes fetched per run.
func (s *Service) Timeframes() []models.Timeframe {
	return s.timeframes
}

// Generate fetches the bar set and scores it. Fetch failures only degrade the
// set; a set without primary bars yields the fallback signal.
func (s *Service) Generate(ctx context.Context) models.TradeSignal {
	start := time.Now()
	set, err := marketdata.FetchSet(ctx, s.provider, s.engine.Symbol(), s.timeframes, s.opts)
	if err != nil {
		s.logger.Warn().Err(err).Int("timeframes", len(set)).Msg("partial market data")
	}

	sig := s.engine.Generate(set)
	s.logger.Debug().Dur("duration", time.Since(start)).Str("data_quality", string(sig.DataQuality)).Msg("signal generated")
	return sig
}

// Analyze scores an already loaded bar set.
func (s *Service) Analyze(set models.BarSet) models.TradeSignal {
	return s.engine.Generate(set)
}
