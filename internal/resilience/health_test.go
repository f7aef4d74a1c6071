package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthMonitorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		breaker string
		pingErr error
		want    HealthStatus
	}{
		{"all healthy", "closed", nil, HealthStatusHealthy},
		{"half-open breaker", "half-open", nil, HealthStatusDegraded},
		{"open breaker", "open", nil, HealthStatusUnhealthy},
		{"store down", "closed", errors.New("database is locked"), HealthStatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewHealthMonitor(DefaultHealthMonitorConfig())
			m.RegisterComponent("provider", BreakerCheck(func() string { return tt.breaker }))
			m.RegisterComponent("store", PingCheck(func(context.Context) error { return tt.pingErr }))

			h := m.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Equal(t, tt.want == HealthStatusHealthy, m.IsHealthy())
			require.Len(t, h.Components, 3)
			assert.Equal(t, "goroutines", h.Components[0].Name)
			assert.Equal(t, "provider", h.Components[1].Name)
			assert.Equal(t, int64(1), h.TotalChecks)
		})
	}
}

func TestHealthMonitorRecoversPanics(t *testing.T) {
	m := NewHealthMonitor(HealthMonitorConfig{})
	m.RegisterComponent("bad", func(context.Context) ComponentHealth { panic("boom") })

	h := m.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, h.Status)
	assert.Equal(t, int64(1), h.PanicRecoveries)

	c, ok := m.GetComponentHealth("bad")
	require.True(t, ok)
	assert.Contains(t, c.Message, "boom")
}

func TestHealthMonitorUnknownBeforeCheck(t *testing.T) {
	m := NewHealthMonitor(DefaultHealthMonitorConfig())
	assert.Equal(t, HealthStatusUnknown, m.GetHealth().Status)
	assert.False(t, m.IsHealthy())
}
