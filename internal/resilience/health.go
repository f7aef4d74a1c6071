// Package resilience reports the health of the long-running signal service.
package resilience

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	LastCheck time.Time              `json:"last_check"`
	Latency   time.Duration          `json:"latency_ns"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck probes one component.
type HealthCheck func(ctx context.Context) ComponentHealth

// HealthMonitorConfig holds health monitor configuration.
type HealthMonitorConfig struct {
	CheckTimeout       time.Duration
	GoroutineThreshold int
}

// DefaultHealthMonitorConfig returns default configuration.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckTimeout:       5 * time.Second,
		GoroutineThreshold: 1000,
	}
}

// HealthMonitor runs registered checks on demand.
type HealthMonitor struct {
	mu sync.RWMutex

	checkTimeout       time.Duration
	goroutineThreshold int

	startTime       time.Time
	components      map[string]HealthCheck
	componentHealth map[string]ComponentHealth
	overallStatus   HealthStatus

	totalChecks     int64
	failedChecks    int64
	panicRecoveries int64
}

// NewHealthMonitor creates a monitor.
func NewHealthMonitor(config HealthMonitorConfig) *HealthMonitor {
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = DefaultHealthMonitorConfig().CheckTimeout
	}
	if config.GoroutineThreshold <= 0 {
		config.GoroutineThreshold = DefaultHealthMonitorConfig().GoroutineThreshold
	}
	return &HealthMonitor{
		checkTimeout:       config.CheckTimeout,
		goroutineThreshold: config.GoroutineThreshold,
		startTime:          time.Now(),
		components:         make(map[string]HealthCheck),
		componentHealth:    make(map[string]ComponentHealth),
		overallStatus:      HealthStatusUnknown,
	}
}

// RegisterComponent adds a named check.
func (m *HealthMonitor) RegisterComponent(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = check
}

// Check runs every check concurrently and returns the resulting snapshot.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.mu.RLock()
	components := make(map[string]HealthCheck, len(m.components))
	for k, v := range m.components {
		components[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	var wg conc.WaitGroup
	results := make(chan ComponentHealth, len(components)+1)

	for name, check := range components {
		wg.Go(func() {
			results <- m.runCheck(ctx, name, check)
		})
	}
	wg.Go(func() {
		results <- m.checkGoroutines()
	})

	wg.Wait()
	close(results)

	m.mu.Lock()
	m.totalChecks++
	hasUnhealthy, hasDegraded := false, false
	for health := range results {
		m.componentHealth[health.Name] = health
		switch health.Status {
		case HealthStatusUnhealthy:
			hasUnhealthy = true
			m.failedChecks++
		case HealthStatusDegraded:
			hasDegraded = true
		}
	}

	switch {
	case hasUnhealthy:
		m.overallStatus = HealthStatusUnhealthy
	case hasDegraded:
		m.overallStatus = HealthStatusDegraded
	default:
		m.overallStatus = HealthStatusHealthy
	}
	m.mu.Unlock()

	return m.GetHealth()
}

func (m *HealthMonitor) runCheck(ctx context.Context, name string, check HealthCheck) (health ComponentHealth) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.mu.Lock()
			m.panicRecoveries++
			m.mu.Unlock()
			health = ComponentHealth{
				Status:  HealthStatusUnhealthy,
				Message: fmt.Sprintf("panic recovered: %v", r),
			}
		}
		health.Name = name
		health.LastCheck = time.Now()
		health.Latency = time.Since(start)
	}()
	return check(ctx)
}

func (m *HealthMonitor) checkGoroutines() ComponentHealth {
	n := runtime.NumGoroutine()
	health := ComponentHealth{
		Name:      "goroutines",
		Status:    HealthStatusHealthy,
		Message:   fmt.Sprintf("goroutine count: %d", n),
		LastCheck: time.Now(),
		Details:   map[string]interface{}{"count": n},
	}
	if n > m.goroutineThreshold {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("high goroutine count: %d", n)
	}
	return health
}

// GetHealth returns the last snapshot without running checks.
func (m *HealthMonitor) GetHealth() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	components := make([]ComponentHealth, 0, len(m.componentHealth))
	for _, h := range m.componentHealth {
		components = append(components, h)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return SystemHealth{
		Status:          m.overallStatus,
		Uptime:          time.Since(m.startTime).Round(time.Second).String(),
		StartTime:       m.startTime,
		Components:      components,
		Goroutines:      runtime.NumGoroutine(),
		MemoryAllocMB:   memStats.Alloc / 1024 / 1024,
		TotalChecks:     m.totalChecks,
		FailedChecks:    m.failedChecks,
		PanicRecoveries: m.panicRecoveries,
	}
}

// GetComponentHealth returns the last result of one check.
func (m *HealthMonitor) GetComponentHealth(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	health, ok := m.componentHealth[name]
	return health, ok
}

// IsHealthy reports whether the last check passed everywhere.
func (m *HealthMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overallStatus == HealthStatusHealthy
}

// SystemHealth is the /healthz payload.
type SystemHealth struct {
	Status          HealthStatus      `json:"status"`
	Uptime          string            `json:"uptime"`
	StartTime       time.Time         `json:"start_time"`
	Components      []ComponentHealth `json:"components"`
	Goroutines      int               `json:"goroutines"`
	MemoryAllocMB   uint64            `json:"memory_alloc_mb"`
	TotalChecks     int64             `json:"total_checks"`
	FailedChecks    int64             `json:"failed_checks"`
	PanicRecoveries int64             `json:"panic_recoveries"`
}

// BreakerCheck reports a circuit breaker state: open is unhealthy, half-open degraded.
func BreakerCheck(state func() string) HealthCheck {
	return func(context.Context) ComponentHealth {
		s := state()
		health := ComponentHealth{Status: HealthStatusHealthy, Message: "breaker " + s}
		switch s {
		case "open":
			health.Status = HealthStatusUnhealthy
		case "half-open":
			health.Status = HealthStatusDegraded
		}
		return health
	}
}

// PingCheck turns a probe error into an unhealthy status.
func PingCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: err.Error()}
		}
		return ComponentHealth{Status: HealthStatusHealthy, Message: "ok"}
	}
}
