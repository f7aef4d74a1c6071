// Package indicators provides technical indicator calculations, a worker-pool
// engine for running them in parallel and the Indicator Bank used by the signal engine.
package indicators

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"ict-signals/internal/models"
)

// Indicator defines the interface for single-value technical indicators.
type Indicator interface {
	Name() string
	Calculate(bars []models.Bar) ([]float64, error)
	Period() int
}

// MultiValueIndicator defines the interface for indicators that return multiple values.
type MultiValueIndicator interface {
	Name() string
	Calculate(bars []models.Bar) (map[string][]float64, error)
	Period() int
}

// Results holds the output of an engine run. Failed indicators are listed in Errors.
type Results struct {
	Single map[string][]float64
	Multi  map[string]map[string][]float64
	Errors map[string]error
}

// Engine provides parallel indicator calculation using a worker pool.
type Engine struct {
	workers     int
	indicators  map[string]Indicator
	multiIndics map[string]MultiValueIndicator
	mu          sync.RWMutex
}

// NewEngine creates a new indicator engine with the specified number of workers.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		workers:     workers,
		indicators:  make(map[string]Indicator),
		multiIndics: make(map[string]MultiValueIndicator),
	}
}

// NewDefaultEngine creates an engine with the standard catalogue registered.
func NewDefaultEngine(workers int) *Engine {
	e := NewEngine(workers)
	for _, ind := range []Indicator{
		NewSMA(20), NewSMA(50), NewEMA(12), NewEMA(26), NewEMA(50),
		NewRSI(14), NewRSI(21), NewWilliamsR(14), NewROC(10), NewCCI(20),
		NewATR(14), NewATR(21), NewOBV(), NewVPT(), NewADLine(), NewCMF(20), NewVWAP(20),
	} {
		e.RegisterIndicator(ind)
	}
	for _, ind := range []MultiValueIndicator{
		NewMACD(12, 26, 9), NewADX(14), NewStochastic(14, 3, 3),
		NewBollingerBands(20, 2), NewKeltnerChannels(20, 10, 2), NewDonchianChannels(20),
	} {
		e.RegisterMultiIndicator(ind)
	}
	return e
}

// RegisterIndicator registers a single-value indicator.
func (e *Engine) RegisterIndicator(ind Indicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indicators[ind.Name()] = ind
}

// RegisterMultiIndicator registers a multi-value indicator.
func (e *Engine) RegisterMultiIndicator(ind MultiValueIndicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiIndics[ind.Name()] = ind
}

// job is one unit of work for the pool.
type job struct {
	name  string
	run   func() error
	store func()
}

// CalculateAll calculates all registered indicators in parallel.
func (e *Engine) CalculateAll(ctx context.Context, bars []models.Bar) (*Results, error) {
	e.mu.RLock()
	singles := make([]Indicator, 0, len(e.indicators))
	for _, ind := range e.indicators {
		singles = append(singles, ind)
	}
	multis := make([]MultiValueIndicator, 0, len(e.multiIndics))
	for _, ind := range e.multiIndics {
		multis = append(multis, ind)
	}
	e.mu.RUnlock()

	res := &Results{
		Single: make(map[string][]float64),
		Multi:  make(map[string]map[string][]float64),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex

	jobs := make([]job, 0, len(singles)+len(multis))
	for _, ind := range singles {
		var values []float64
		jobs = append(jobs, job{
			name:  ind.Name(),
			run:   func() (err error) { values, err = ind.Calculate(bars); return err },
			store: func() { res.Single[ind.Name()] = values },
		})
	}
	for _, ind := range multis {
		var values map[string][]float64
		jobs = append(jobs, job{
			name:  ind.Name(),
			run:   func() (err error) { values, err = ind.Calculate(bars); return err },
			store: func() { res.Multi[ind.Name()] = values },
		})
	}

	e.runPool(ctx, jobs, func(j job, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Errors[j.name] = err
			return
		}
		j.store()
	})

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// CalculateSelected calculates only the named single-value indicators in parallel.
func (e *Engine) CalculateSelected(ctx context.Context, bars []models.Bar, names []string) (map[string][]float64, error) {
	e.mu.RLock()
	var jobs []job
	results := make(map[string][]float64)
	var mu sync.Mutex
	for _, name := range names {
		ind, ok := e.indicators[name]
		if !ok {
			continue
		}
		var values []float64
		jobs = append(jobs, job{
			name:  name,
			run:   func() (err error) { values, err = ind.Calculate(bars); return err },
			store: func() { results[ind.Name()] = values },
		})
	}
	e.mu.RUnlock()

	e.runPool(ctx, jobs, func(j job, err error) {
		if err == nil {
			mu.Lock()
			j.store()
			mu.Unlock()
		}
	})

	return results, ctx.Err()
}

// runPool runs jobs on at most e.workers goroutines and reports each outcome.
// Jobs not yet started when ctx ends are skipped.
func (e *Engine) runPool(ctx context.Context, jobs []job, done func(job, error)) {
	p := pool.New().WithMaxGoroutines(e.workers)
	for _, j := range jobs {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			done(j, j.run())
		})
	}
	p.Wait()
}

// Calculate calculates a specific indicator by name.
func (e *Engine) Calculate(ctx context.Context, name string, bars []models.Bar) ([]float64, error) {
	e.mu.RLock()
	ind, ok := e.indicators[name]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("indicator %s not found", name)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return ind.Calculate(bars)
	}
}

// List returns the sorted names of every registered indicator.
func (e *Engine) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indicators)+len(e.multiIndics))
	for name := range e.indicators {
		names = append(names, name)
	}
	for name := range e.multiIndics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
