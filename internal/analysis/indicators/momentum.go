package indicators

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"ict-signals/internal/models"
)

// RSI calculates Relative Strength Index.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI_%d", r.period)
}

func (r *RSI) Period() int {
	return r.period
}

func (r *RSI) Calculate(bars []models.Bar) ([]float64, error) {
	if err := checkInput(bars, r.period, r.period+1); err != nil {
		return nil, err
	}
	values := talib.Rsi(closePrices(bars), r.period)
	for i, v := range values {
		values[i] = clamp(v, 0, 100)
	}
	return values, nil
}

// Stochastic calculates the slow stochastic oscillator.
type Stochastic struct {
	kPeriod int
	dPeriod int
	smooth  int
}

// NewStochastic creates a new Stochastic indicator.
func NewStochastic(kPeriod, dPeriod, smooth int) *Stochastic {
	return &Stochastic{kPeriod: kPeriod, dPeriod: dPeriod, smooth: smooth}
}

func (s *Stochastic) Name() string {
	return fmt.Sprintf("STOCH_%d_%d_%d", s.kPeriod, s.dPeriod, s.smooth)
}

func (s *Stochastic) Period() int {
	return s.kPeriod + s.smooth + s.dPeriod - 2
}

// Calculate returns the "percent_k" and "percent_d" series.
func (s *Stochastic) Calculate(bars []models.Bar) (map[string][]float64, error) {
	if s.dPeriod <= 0 || s.smooth <= 0 {
		return nil, ErrInvalidPeriod
	}
	if err := checkInput(bars, s.kPeriod, s.Period()); err != nil {
		return nil, err
	}

	d := split(bars)
	k, dl := talib.Stoch(d.high, d.low, d.close, s.kPeriod, s.smooth, talib.SMA, s.dPeriod, talib.SMA)
	for i := range k {
		k[i] = clamp(k[i], 0, 100)
		dl[i] = clamp(dl[i], 0, 100)
	}
	return map[string][]float64{
		"percent_k": k,
		"percent_d": dl,
	}, nil
}

// WilliamsR calculates Williams %R on a -100..0 scale.
type WilliamsR struct {
	period int
}

// NewWilliamsR creates a new Williams %R indicator.
func NewWilliamsR(period int) *WilliamsR {
	return &WilliamsR{period: period}
}

func (w *WilliamsR) Name() string {
	return fmt.Sprintf("WILLR_%d", w.period)
}

func (w *WilliamsR) Period() int {
	return w.period
}

func (w *WilliamsR) Calculate(bars []models.Bar) ([]float64, error) {
	if err := checkInput(bars, w.period, w.period); err != nil {
		return nil, err
	}
	d := split(bars)
	values := talib.WillR(d.high, d.low, d.close, w.period)
	for i, v := range values {
		values[i] = clamp(v, -100, 0)
	}
	return values, nil
}

// ROC calculates Rate of Change in percent.
type ROC struct {
	period int
}

// NewROC creates a new ROC indicator.
func NewROC(period int) *ROC {
	return &ROC{period: period}
}

func (r *ROC) Name() string {
	return fmt.Sprintf("ROC_%d", r.period)
}

func (r *ROC) Period() int {
	return r.period
}

func (r *ROC) Calculate(bars []models.Bar) ([]float64, error) {
	if err := checkInput(bars, r.period, r.period+1); err != nil {
		return nil, err
	}
	return talib.Roc(closePrices(bars), r.period), nil
}

// CCI calculates Commodity Channel Index.
type CCI struct {
	period int
}

// NewCCI creates a new CCI indicator.
func NewCCI(period int) *CCI {
	return &CCI{period: period}
}

func (c *CCI) Name() string {
	return fmt.Sprintf("CCI_%d", c.period)
}

func (c *CCI) Period() int {
	return c.period
}

func (c *CCI) Calculate(bars []models.Bar) ([]float64, error) {
	if err := checkInput(bars, c.period, c.period); err != nil {
		return nil, err
	}
	d := split(bars)
	return talib.Cci(d.high, d.low, d.close, c.period), nil
}
