package indicators

import (
	"ict-signals/internal/models"
)

// fibRatios are the retracement ratios followed by the extensions.
var fibRatios = []struct {
	key   string
	ratio float64
}{
	{"0.0", 0},
	{"23.6", 0.236},
	{"38.2", 0.382},
	{"50.0", 0.5},
	{"61.8", 0.618},
	{"78.6", 0.786},
	{"100.0", 1},
	{"127.2", 1.272},
	{"161.8", 1.618},
}

// FibonacciLevels holds retracement and extension levels of a swing range.
type FibonacciLevels struct {
	SwingHigh float64
	SwingLow  float64
	IsUptrend bool
	Levels    map[string]float64
}

// FibonacciRetracement measures the swing range of the lookback window.
type FibonacciRetracement struct {
	lookback int
}

// NewFibonacciRetracement creates a new Fibonacci calculator.
func NewFibonacciRetracement(lookback int) *FibonacciRetracement {
	return &FibonacciRetracement{lookback: lookback}
}

func (f *FibonacciRetracement) Name() string {
	return "FibonacciRetracement"
}

func (f *FibonacciRetracement) Period() int {
	return f.lookback
}

// Calculate finds the window's swing high and low. The range is an uptrend when
// the low printed first, and levels are then measured down from the high.
func (f *FibonacciRetracement) Calculate(bars []models.Bar) (*FibonacciLevels, error) {
	if err := checkInput(bars, f.lookback, f.lookback); err != nil {
		return nil, err
	}

	window := bars[len(bars)-f.lookback:]
	hi, lo := 0, 0
	for i, b := range window {
		if b.High > window[hi].High {
			hi = i
		}
		if b.Low < window[lo].Low {
			lo = i
		}
	}

	return LevelsFromRange(window[hi].High, window[lo].Low, lo < hi), nil
}

// LevelsFromRange builds Fibonacci levels from explicit swing points.
func LevelsFromRange(swingHigh, swingLow float64, isUptrend bool) *FibonacciLevels {
	span := swingHigh - swingLow
	levels := &FibonacciLevels{
		SwingHigh: swingHigh,
		SwingLow:  swingLow,
		IsUptrend: isUptrend,
		Levels:    make(map[string]float64, len(fibRatios)),
	}
	for _, r := range fibRatios {
		if isUptrend {
			levels.Levels[r.key] = swingHigh - span*r.ratio
		} else {
			levels.Levels[r.key] = swingLow + span*r.ratio
		}
	}
	return levels
}

// PivotPoints represents classic pivot levels.
type PivotPoints struct {
	Pivot float64
	R1    float64
	R2    float64
	R3    float64
	S1    float64
	S2    float64
	S3    float64
}

// ClassicPivots derives pivots from the session that precedes the current bar.
type ClassicPivots struct {
	session int
}

// NewClassicPivots creates a pivot calculator over a session of the given bar count.
func NewClassicPivots(session int) *ClassicPivots {
	return &ClassicPivots{session: session}
}

func (c *ClassicPivots) Name() string {
	return "ClassicPivots"
}

func (c *ClassicPivots) Period() int {
	return c.session + 1
}

// Calculate uses the high, low and close of the completed session before the last bar.
func (c *ClassicPivots) Calculate(bars []models.Bar) (*PivotPoints, error) {
	if err := checkInput(bars, c.session, c.Period()); err != nil {
		return nil, err
	}

	session := bars[len(bars)-1-c.session : len(bars)-1]
	high, low := session[0].High, session[0].Low
	for _, b := range session[1:] {
		high = max(high, b.High)
		low = min(low, b.Low)
	}
	return PivotsFrom(high, low, session[len(session)-1].Close), nil
}

// PivotsFrom computes classic floor pivots.
func PivotsFrom(high, low, close float64) *PivotPoints {
	pivot := (high + low + close) / 3
	return &PivotPoints{
		Pivot: pivot,
		R1:    2*pivot - low,
		R2:    pivot + (high - low),
		R3:    high + 2*(pivot-low),
		S1:    2*pivot - high,
		S2:    pivot - (high - low),
		S3:    low - 2*(high-pivot),
	}
}
