package marketdata

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
	"ict-signals/pkg/utils"
)

// ResilienceConfig bounds calls to an upstream provider.
type ResilienceConfig struct {
	Name            string
	RatePerSecond   float64
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	FetchTimeout    time.Duration
	Retry           utils.RetryConfig
}

// DefaultResilienceConfig returns conservative limits for a broker API.
func DefaultResilienceConfig(name string) ResilienceConfig {
	return ResilienceConfig{
		Name:            name,
		RatePerSecond:   3,
		Burst:           3,
		BreakerFailures: 5,
		BreakerTimeout:  60 * time.Second,
		FetchTimeout:    10 * time.Second,
		Retry:           utils.DefaultRetryConfig(),
	}
}

// ResilientProvider rate limits, retries and circuit-breaks an upstream provider.
type ResilientProvider struct {
	inner   Provider
	cfg     ResilienceConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewResilientProvider wraps p.
func NewResilientProvider(p Provider, cfg ResilienceConfig) *ResilientProvider {
	settings := gobreaker.Settings{
		Name:     cfg.Name,
		Interval: 60 * time.Second,
		Timeout:  cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperrors.Is(err, apperrors.ErrDataNotFound)
		},
	}

	cfg.Retry.PermanentErrors = append(cfg.Retry.PermanentErrors,
		apperrors.ErrCircuitOpen, apperrors.ErrDataNotFound, context.Canceled)

	return &ResilientProvider{
		inner:   p,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(1, cfg.Burst)),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State reports the breaker state.
func (r *ResilientProvider) State() string {
	return r.breaker.State().String()
}

// Bars fetches through the limiter and breaker, retrying transient failures.
func (r *ResilientProvider) Bars(ctx context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error) {
	return utils.RetryWithResult(ctx, r.cfg.Retry, func() (models.BarSeries, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return models.BarSeries{}, apperrors.Wrap(apperrors.ErrRateLimited, err.Error())
		}

		out, err := r.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
			defer cancel()
			return r.inner.Bars(callCtx, symbol, tf)
		})
		switch {
		case err == gobreaker.ErrOpenState, err == gobreaker.ErrTooManyRequests:
			return models.BarSeries{}, apperrors.NewProviderError(r.cfg.Name, "bars", apperrors.ErrCircuitOpen)
		case err != nil:
			return models.BarSeries{}, err
		}
		return out.(models.BarSeries), nil
	})
}
