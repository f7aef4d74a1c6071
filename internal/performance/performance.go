// Package performance records refresh and request metrics for Prometheus.
package performance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"ict-signals/internal/models"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	StepDuration  *prometheus.HistogramVec
	Refreshes     *prometheus.CounterVec
	Signals       *prometheus.CounterVec
	Confidence    prometheus.Gauge
	QueueDepth    prometheus.Gauge
	StoreErrors   prometheus.Counter
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	WSSubscribers prometheus.Gauge

	logger zerolog.Logger
}

// NewMetrics creates and registers every collector.
func NewMetrics(logger zerolog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   logger,

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ictsignal_step_duration_seconds",
				Help:    "Duration of each refresh step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictsignal_refreshes_total",
				Help: "Refresh runs by outcome",
			},
			[]string{"result"},
		),
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictsignal_signals_total",
				Help: "Generated signals by direction, quality and data quality",
			},
			[]string{"direction", "quality", "data_quality"},
		),
		Confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ictsignal_last_confidence",
			Help: "Confidence of the most recent signal",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ictsignal_queue_depth",
			Help: "Signals waiting in the EXCELLENT queue",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ictsignal_store_errors_total",
			Help: "Failed signal writes",
		}),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ictsignal_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ictsignal_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		WSSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ictsignal_ws_subscribers",
			Help: "Connected websocket clients",
		}),
	}

	m.registry.MustRegister(
		m.StepDuration,
		m.Refreshes,
		m.Signals,
		m.Confidence,
		m.QueueDepth,
		m.StoreErrors,
		m.HTTPRequests,
		m.HTTPDuration,
		m.WSSubscribers,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StepTimer tracks execution time for one refresh step.
type StepTimer struct {
	metrics *Metrics
	step    string
	start   time.Time
}

// StartStepTimer begins timing a step.
func (m *Metrics) StartStepTimer(step string) *StepTimer {
	return &StepTimer{metrics: m, step: step, start: time.Now()}
}

// Stop records the step duration under result.
func (st *StepTimer) Stop(result string) time.Duration {
	d := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(d.Seconds())
	st.metrics.logger.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", d).
		Msg("refresh step completed")
	return d
}

// RecordSignal counts sig and tracks its confidence.
func (m *Metrics) RecordSignal(sig models.TradeSignal) {
	m.Signals.WithLabelValues(string(sig.Direction), string(sig.Quality), string(sig.DataQuality)).Inc()
	m.Confidence.Set(sig.Confidence)
}

// RecordRefresh counts a finished refresh run.
func (m *Metrics) RecordRefresh(result string) {
	m.Refreshes.WithLabelValues(result).Inc()
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(route string, code int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, httpCode(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
