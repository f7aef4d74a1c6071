// Package marketdata supplies bar series to the signal engine: providers for
// CSV files and Kite Connect, a resilient fetch wrapper, bar caches and
// concurrent multi-timeframe loading.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/logging"
	"ict-signals/internal/models"
)

// Provider returns the bars of one timeframe. An empty series or an error
// means the timeframe is absent.
type Provider interface {
	Bars(ctx context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error)

// Bars calls f.
func (f ProviderFunc) Bars(ctx context.Context, symbol string, tf models.Timeframe) (models.BarSeries, error) {
	return f(ctx, symbol, tf)
}

// FetchOptions tunes FetchSet.
type FetchOptions struct {
	MaxConcurrency int
	Logger         *zerolog.Logger
}

type fetchResult struct {
	tf     models.Timeframe
	series models.BarSeries
	err    error
}

// FetchSet loads every requested timeframe concurrently. Invalid bars are
// dropped, failed timeframes are left out of the set, and 4h is resampled
// from 1h when the provider has none. The returned error lists the failed
// timeframes and is informational: the set is usable whenever it is non-empty.
func FetchSet(ctx context.Context, p Provider, symbol string, tfs []models.Timeframe, opts FetchOptions) (models.BarSet, error) {
	workers := opts.MaxConcurrency
	if workers <= 0 {
		workers = len(tfs)
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	results := pool.NewWithResults[fetchResult]().
		WithContext(ctx).
		WithMaxGoroutines(max(1, workers))

	for _, tf := range tfs {
		results.Go(func(ctx context.Context) (fetchResult, error) {
			start := time.Now()
			series, err := p.Bars(ctx, symbol, tf)
			if err == nil {
				series, err = sanitize(symbol, tf, series)
			}
			logging.LogFetch(logger, symbol, tf, series.Len(), time.Since(start), err)
			return fetchResult{tf: tf, series: series, err: err}, nil
		})
	}
	fetched, _ := results.Wait()

	set := make(models.BarSet, len(tfs))
	failed := make(map[models.Timeframe]error)
	for _, r := range fetched {
		if r.err != nil {
			failed[r.tf] = r.err
			continue
		}
		if !r.series.Empty() {
			set[r.tf] = r.series
		}
	}

	if wants(tfs, models.TF4h) && !set.Has(models.TF4h, 1) && set.Has(models.TF1h, 1) {
		set[models.TF4h] = Resample(set[models.TF1h], models.TF4h)
		delete(failed, models.TF4h)
	}

	var errs []error
	for _, tf := range tfs {
		if err, ok := failed[tf]; ok {
			errs = append(errs, err)
		}
	}
	if len(set) == 0 && len(errs) == 0 {
		errs = append(errs, apperrors.NewDataError(symbol, "", "no bars for any timeframe", apperrors.ErrDataNotFound))
	}
	return set, apperrors.Join(errs...)
}

// sanitize drops bars that fail validation. A series left empty is an error.
func sanitize(symbol string, tf models.Timeframe, series models.BarSeries) (models.BarSeries, error) {
	valid := make([]models.Bar, 0, series.Len())
	var firstErr error
	for _, b := range series.Bars {
		if err := b.Validate(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) == 0 && firstErr != nil {
		return models.BarSeries{Timeframe: tf}, apperrors.NewDataError(symbol, tf, "every bar failed validation",
			apperrors.NewValidationError("bar", firstErr.Error(), "OHLC envelope violated", apperrors.ErrInvalidBar))
	}
	return models.NewBarSeries(tf, valid), nil
}

func wants(tfs []models.Timeframe, tf models.Timeframe) bool {
	for _, t := range tfs {
		if t == tf {
			return true
		}
	}
	return false
}

// cacheKey is the bar cache key for one symbol and timeframe.
func cacheKey(symbol string, tf models.Timeframe) string {
	return fmt.Sprintf("bars:%s:%s", symbol, tf)
}
