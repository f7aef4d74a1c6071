// Package models provides domain models for the signal engine.
package models

import (
	"fmt"
	"sort"
	"time"
)

// Timeframe is a bar interval tag.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// AllTimeframes returns every supported timeframe, lowest first.
func AllTimeframes() []Timeframe {
	return []Timeframe{TF1m, TF5m, TF15m, TF1h, TF4h, TF1d}
}

// ParseTimeframe parses a timeframe tag.
func ParseTimeframe(s string) (Timeframe, error) {
	for _, tf := range AllTimeframes() {
		if string(tf) == s {
			return tf, nil
		}
	}
	return "", fmt.Errorf("unknown timeframe: %q", s)
}

// Duration returns the length of one bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Rank orders timeframes from 1m (0) to 1d (5). Unknown tags rank -1.
func (tf Timeframe) Rank() int {
	for i, t := range AllTimeframes() {
		if t == tf {
			return i
		}
	}
	return -1
}

// Bar represents OHLCV data for one interval.
type Bar struct {
	Timestamp time.Time `json:"timestamp" csv:"timestamp"`
	Open      float64   `json:"open" csv:"open"`
	High      float64   `json:"high" csv:"high"`
	Low       float64   `json:"low" csv:"low"`
	Close     float64   `json:"close" csv:"close"`
	Volume    float64   `json:"volume" csv:"volume"`
}

// Validate checks the OHLC envelope.
func (b Bar) Validate() error {
	if b.High < max(b.Open, b.Close) {
		return fmt.Errorf("bar %s: high %.5f below body", b.Timestamp.Format(time.RFC3339), b.High)
	}
	if b.Low > min(b.Open, b.Close) {
		return fmt.Errorf("bar %s: low %.5f above body", b.Timestamp.Format(time.RFC3339), b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s: negative volume", b.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Body returns the absolute open-close distance.
func (b Bar) Body() float64 {
	if b.Close > b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Range returns high minus low.
func (b Bar) Range() float64 { return b.High - b.Low }

// BodyRatio returns body over range, 0 for a flat bar.
func (b Bar) BodyRatio() float64 {
	r := b.Range()
	if r <= 0 {
		return 0
	}
	return b.Body() / r
}

// IsBullish reports a close above the open.
func (b Bar) IsBullish() bool { return b.Close > b.Open }

// IsBearish reports a close below the open.
func (b Bar) IsBearish() bool { return b.Close < b.Open }

// BarSeries is an ordered sequence of bars for one timeframe.
type BarSeries struct {
	Timeframe Timeframe `json:"timeframe"`
	Bars      []Bar     `json:"bars"`
}

// NewBarSeries sorts bars by timestamp and keeps the last bar for duplicate timestamps.
func NewBarSeries(tf Timeframe, bars []Bar) BarSeries {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := sorted[:0]
	for _, b := range sorted {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return BarSeries{Timeframe: tf, Bars: out}
}

// Len returns the number of bars.
func (s BarSeries) Len() int { return len(s.Bars) }

// Empty reports whether the series has no bars.
func (s BarSeries) Empty() bool { return len(s.Bars) == 0 }

// Last returns the most recent bar. It panics on an empty series.
func (s BarSeries) Last() Bar { return s.Bars[len(s.Bars)-1] }

// Tail returns the last n bars, or all of them when n exceeds the length.
func (s BarSeries) Tail(n int) BarSeries {
	if n >= len(s.Bars) || n < 0 {
		return s
	}
	return BarSeries{Timeframe: s.Timeframe, Bars: s.Bars[len(s.Bars)-n:]}
}

// BarSet holds one series per timeframe for a single instrument.
type BarSet map[Timeframe]BarSeries

// Has reports whether tf is present with at least n bars.
func (s BarSet) Has(tf Timeframe, n int) bool {
	series, ok := s[tf]
	return ok && series.Len() >= n
}

// Timeframes returns the non-empty timeframes, lowest first.
func (s BarSet) Timeframes() []Timeframe {
	var out []Timeframe
	for _, tf := range AllTimeframes() {
		if s.Has(tf, 1) {
			out = append(out, tf)
		}
	}
	return out
}
