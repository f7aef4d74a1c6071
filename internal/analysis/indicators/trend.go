package indicators

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"ict-signals/internal/models"
)

// SMA calculates Simple Moving Average.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA_%d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

func (s *SMA) Calculate(bars []models.Bar) ([]float64, error) {
	if err := checkInput(bars, s.period, s.period); err != nil {
		return nil, err
	}
	return talib.Sma(closePrices(bars), s.period), nil
}

// EMA calculates Exponential Moving Average.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

func (e *EMA) Name() string {
	return fmt.Sprintf("EMA_%d", e.period)
}

func (e *EMA) Period() int {
	return e.period
}

func (e *EMA) Calculate(bars []models.Bar) ([]float64, error) {
	if err := checkInput(bars, e.period, e.period); err != nil {
		return nil, err
	}
	return talib.Ema(closePrices(bars), e.period), nil
}

// MACD calculates Moving Average Convergence Divergence.
type MACD struct {
	fast   int
	slow   int
	signal int
}

// NewMACD creates a new MACD indicator.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{fast: fast, slow: slow, signal: signal}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fast, m.slow, m.signal)
}

func (m *MACD) Period() int {
	return m.slow + m.signal - 1
}

// Calculate returns the "macd", "signal" and "histogram" series.
func (m *MACD) Calculate(bars []models.Bar) (map[string][]float64, error) {
	if m.fast <= 0 || m.signal <= 0 || m.fast >= m.slow {
		return nil, ErrInvalidPeriod
	}
	if err := checkInput(bars, m.slow, m.Period()); err != nil {
		return nil, err
	}

	line, signal, hist := talib.Macd(closePrices(bars), m.fast, m.slow, m.signal)
	return map[string][]float64{
		"macd":      line,
		"signal":    signal,
		"histogram": hist,
	}, nil
}

// ADX calculates Average Directional Index with its directional components.
type ADX struct {
	period int
}

// NewADX creates a new ADX indicator.
func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Name() string {
	return fmt.Sprintf("ADX_%d", a.period)
}

func (a *ADX) Period() int {
	return a.period * 2
}

// Calculate returns the "adx", "plus_di" and "minus_di" series.
func (a *ADX) Calculate(bars []models.Bar) (map[string][]float64, error) {
	if err := checkInput(bars, a.period, a.Period()+1); err != nil {
		return nil, err
	}

	s := split(bars)
	return map[string][]float64{
		"adx":      talib.Adx(s.high, s.low, s.close, a.period),
		"plus_di":  talib.PlusDI(s.high, s.low, s.close, a.period),
		"minus_di": talib.MinusDI(s.high, s.low, s.close, a.period),
	}, nil
}
