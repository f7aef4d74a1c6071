// Package scheduler refreshes the signal on a cron schedule and distributes it.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/logging"
	"ict-signals/internal/models"
	"ict-signals/internal/performance"
	"ict-signals/internal/signal"
	"ict-signals/internal/store"
	"ict-signals/pkg/utils"
)

// Config configures the background refresher.
type Config struct {
	Enabled    bool          `mapstructure:"enabled"`
	Spec       string        `mapstructure:"spec"`
	RunOnStart bool          `mapstructure:"run_on_start"`
	Timeout    time.Duration `mapstructure:"timeout"`
	QueueSize  int           `mapstructure:"queue_size"`

	// MarketHoursOnly skips scheduled runs outside the NSE cash session.
	MarketHoursOnly bool `mapstructure:"market_hours_only"`
}

// DefaultConfig refreshes every five minutes.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Spec:       "@every 5m",
		RunOnStart: true,
		Timeout:    60 * time.Second,
		QueueSize:  100,
	}
}

// Generator produces the current signal. signal.Service implements it.
type Generator interface {
	Generate(ctx context.Context) models.TradeSignal
}

// Publisher distributes a signal to live subscribers.
type Publisher interface {
	Publish(sig models.TradeSignal) bool
}

// Refresher runs Generator on a schedule, then stores, publishes and queues
// the result. Runs never overlap; a tick arriving mid-run is skipped.
type Refresher struct {
	cfg       Config
	cron      *cron.Cron
	generator Generator
	store     store.SignalStore
	publisher Publisher
	queue     *signal.Queue
	metrics   *performance.Metrics
	logger    zerolog.Logger

	running sync.Mutex
	now     func() time.Time

	mu      sync.RWMutex
	last    models.TradeSignal
	hasLast bool
	runs    int
	skipped int
}

// NewRefresher creates a refresher. store, publisher and metrics may be nil.
func NewRefresher(cfg Config, generator Generator, st store.SignalStore, publisher Publisher, queue *signal.Queue, metrics *performance.Metrics, logger zerolog.Logger) *Refresher {
	if cfg.Spec == "" {
		cfg.Spec = DefaultConfig().Spec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if queue == nil {
		queue = signal.NewQueue(cfg.QueueSize)
	}
	return &Refresher{
		cfg:       cfg,
		cron:      cron.New(),
		generator: generator,
		store:     st,
		publisher: publisher,
		queue:     queue,
		metrics:   metrics,
		logger:    logging.WithOperation(logger, "refresh"),
		now:       time.Now,
	}
}

// Queue returns the EXCELLENT signal queue.
func (r *Refresher) Queue() *signal.Queue {
	return r.queue
}

// Start registers the job and starts the cron loop.
func (r *Refresher) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.cfg.Spec, func() { r.Tick(ctx) }); err != nil {
		return apperrors.NewValidationError("scheduler.spec", r.cfg.Spec, "invalid cron spec", apperrors.Join(apperrors.ErrConfigInvalid, err))
	}
	r.cron.Start()
	r.logger.Info().Str("spec", r.cfg.Spec).Msg("refresher started")

	if r.cfg.RunOnStart {
		go r.RunOnce(ctx)
	}
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("refresher stopped")
}

// Tick is the scheduled job: it refreshes unless market hours are enforced
// and the session is closed.
func (r *Refresher) Tick(ctx context.Context) bool {
	if r.cfg.MarketHoursOnly && !utils.IsMarketOpenAt(r.now()) {
		r.logger.Debug().Time("next_open", utils.NextMarketOpen(r.now())).Msg("market closed, skipping refresh")
		return false
	}
	_, ran := r.RunOnce(ctx)
	return ran
}

// RunOnce performs one refresh. It reports false when a previous run is
// still in progress.
func (r *Refresher) RunOnce(ctx context.Context) (models.TradeSignal, bool) {
	if !r.running.TryLock() {
		r.mu.Lock()
		r.skipped++
		r.mu.Unlock()
		r.logger.Warn().Msg("previous refresh still running, skipping")
		return models.TradeSignal{}, false
	}
	defer r.running.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	timer := r.startStep("generate")
	sig := r.generator.Generate(ctx)
	r.stopStep(timer, string(sig.DataQuality))

	stored := r.save(ctx, sig)

	if r.publisher != nil {
		r.publisher.Publish(sig)
	}
	queued := r.queue.Offer(sig)

	if r.metrics != nil {
		r.metrics.RecordSignal(sig)
		r.metrics.QueueDepth.Set(float64(r.queue.Len()))
		result := "ok"
		if sig.DataQuality == models.DataFallback {
			result = "fallback"
		}
		r.metrics.RecordRefresh(result)
	}

	r.mu.Lock()
	r.last = sig
	r.hasLast = true
	r.runs++
	r.mu.Unlock()

	logging.LogRefresh(r.logger, sig, stored, queued, time.Since(start))
	return sig, true
}

func (r *Refresher) save(ctx context.Context, sig models.TradeSignal) bool {
	if r.store == nil {
		return false
	}
	timer := r.startStep("store")
	err := r.store.SaveSignal(ctx, sig)
	switch {
	case err == nil:
		r.stopStep(timer, "ok")
		return true
	case apperrors.Is(err, apperrors.ErrDuplicateSignal):
		r.stopStep(timer, "duplicate")
		return false
	default:
		r.stopStep(timer, "error")
		if r.metrics != nil {
			r.metrics.StoreErrors.Inc()
		}
		r.logger.Error().Err(err).Str("id", sig.ID).Msg("failed to store signal")
		return false
	}
}

func (r *Refresher) startStep(step string) *performance.StepTimer {
	if r.metrics == nil {
		return nil
	}
	return r.metrics.StartStepTimer(step)
}

func (r *Refresher) stopStep(t *performance.StepTimer, result string) {
	if t != nil {
		t.Stop(result)
	}
}

// Last returns the most recent refreshed signal.
func (r *Refresher) Last() (models.TradeSignal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.hasLast
}

// Stats reports completed and skipped runs.
func (r *Refresher) Stats() (runs, skipped int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runs, r.skipped
}

// String describes the schedule.
func (r *Refresher) String() string {
	return fmt.Sprintf("refresher(%s)", r.cfg.Spec)
}
