package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{0.123456, "0.12346"},
		{1.23456, "1.2346"},
		{2345.678, "2,345.68"},
		{-1234567.891, "-1,234,567.89"},
		{100, "100.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(tt.in), "FormatPrice(%v)", tt.in)
	}
}

func TestFormatCompact(t *testing.T) {
	assert.Equal(t, "950", FormatCompact(950))
	assert.Equal(t, "1.50K", FormatCompact(1500))
	assert.Equal(t, "2.00M", FormatCompact(2e6))
	assert.Equal(t, "3.10B", FormatCompact(3.1e9))
	assert.Equal(t, "+1.25%", FormatPercent(1.25))
	assert.Equal(t, "1:2.00", FormatRiskReward(2))
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

func TestRetryWithResult_EventualSuccess(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetry(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_PermanentErrorStops(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := fastRetry()
	cfg.PermanentErrors = []error{permanent}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	calls := 0
	_, err := RetryWithResult(ctx, cfg, func() (string, error) {
		calls++
		cancel()
		return "", errors.New("fail")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, CalculateBackoff(5, 100*time.Millisecond, time.Second, 2))
}

func TestMarketStatusAt(t *testing.T) {
	ist := func(day, hour, min int) time.Time {
		return time.Date(2024, 3, day, hour, min, 0, 0, IndiaLocation)
	}
	tests := []struct {
		at   time.Time
		want MarketStatus
	}{
		{ist(4, 8, 59), MarketClosed},
		{ist(4, 9, 0), MarketPreOpen},
		{ist(4, 9, 15), MarketOpen},
		{ist(4, 15, 29), MarketOpen},
		{ist(4, 15, 30), MarketClosed},
		{ist(2, 11, 0), MarketClosed}, // Saturday
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MarketStatusAt(tt.at), tt.at.String())
	}
	assert.True(t, IsMarketOpenAt(time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC)))

	// Friday after the close opens on Monday.
	assert.Equal(t, ist(4, 9, 15), NextMarketOpen(ist(1, 16, 0)))
	assert.Equal(t, ist(4, 9, 15), NextMarketOpen(ist(4, 8, 0)))
	assert.Equal(t, ist(5, 9, 15), NextMarketOpen(ist(4, 9, 15)))
}
