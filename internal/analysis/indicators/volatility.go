package indicators

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"ict-signals/internal/models"
)

// ATR calculates Average True Range with Wilder smoothing.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(bars []models.Bar) ([]float64, error) {
	if err := checkInput(bars, a.period, a.period+1); err != nil {
		return nil, err
	}
	d := split(bars)
	return talib.Atr(d.high, d.low, d.close, a.period), nil
}

// BollingerBands calculates Bollinger Bands with bandwidth and %b.
type BollingerBands struct {
	period    int
	stdDevMul float64
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(period int, stdDevMul float64) *BollingerBands {
	return &BollingerBands{period: period, stdDevMul: stdDevMul}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BB_%d_%.1f", b.period, b.stdDevMul)
}

func (b *BollingerBands) Period() int {
	return b.period
}

// Calculate returns "upper", "middle", "lower", "bandwidth" and "percent_b".
func (b *BollingerBands) Calculate(bars []models.Bar) (map[string][]float64, error) {
	if err := checkInput(bars, b.period, b.period); err != nil {
		return nil, err
	}

	closes := closePrices(bars)
	upper, middle, lower := talib.BBands(closes, b.period, b.stdDevMul, b.stdDevMul, talib.SMA)

	width := make([]float64, len(bars))
	pctB := make([]float64, len(bars))
	for i := b.period - 1; i < len(bars); i++ {
		width[i] = safeDiv(upper[i]-lower[i], middle[i]) * 100
		if band := upper[i] - lower[i]; band > 0 {
			pctB[i] = (closes[i] - lower[i]) / band
		} else {
			pctB[i] = 0.5
		}
	}

	return map[string][]float64{
		"upper":     upper,
		"middle":    middle,
		"lower":     lower,
		"bandwidth": width,
		"percent_b": pctB,
	}, nil
}

// KeltnerChannels calculates an EMA centre line with ATR envelopes.
type KeltnerChannels struct {
	emaPeriod  int
	atrPeriod  int
	multiplier float64
}

// NewKeltnerChannels creates a new Keltner Channels indicator.
func NewKeltnerChannels(emaPeriod, atrPeriod int, multiplier float64) *KeltnerChannels {
	return &KeltnerChannels{emaPeriod: emaPeriod, atrPeriod: atrPeriod, multiplier: multiplier}
}

func (k *KeltnerChannels) Name() string {
	return fmt.Sprintf("KC_%d_%d_%.1f", k.emaPeriod, k.atrPeriod, k.multiplier)
}

func (k *KeltnerChannels) Period() int {
	return max(k.emaPeriod, k.atrPeriod+1)
}

// Calculate returns "upper", "middle" and "lower".
func (k *KeltnerChannels) Calculate(bars []models.Bar) (map[string][]float64, error) {
	if k.atrPeriod <= 0 {
		return nil, ErrInvalidPeriod
	}
	if err := checkInput(bars, k.emaPeriod, k.Period()); err != nil {
		return nil, err
	}

	d := split(bars)
	middle := talib.Ema(d.close, k.emaPeriod)
	atr := talib.Atr(d.high, d.low, d.close, k.atrPeriod)

	upper := make([]float64, len(bars))
	lower := make([]float64, len(bars))
	for i := k.Period() - 1; i < len(bars); i++ {
		upper[i] = middle[i] + k.multiplier*atr[i]
		lower[i] = middle[i] - k.multiplier*atr[i]
	}

	return map[string][]float64{
		"upper":  upper,
		"middle": zeroWarmup(middle, k.Period()-1),
		"lower":  lower,
	}, nil
}

// DonchianChannels calculates the highest high and lowest low over a window.
type DonchianChannels struct {
	period int
}

// NewDonchianChannels creates a new Donchian Channels indicator.
func NewDonchianChannels(period int) *DonchianChannels {
	return &DonchianChannels{period: period}
}

func (d *DonchianChannels) Name() string {
	return fmt.Sprintf("DC_%d", d.period)
}

func (d *DonchianChannels) Period() int {
	return d.period
}

// Calculate returns "upper", "middle" and "lower".
func (d *DonchianChannels) Calculate(bars []models.Bar) (map[string][]float64, error) {
	if err := checkInput(bars, d.period, d.period); err != nil {
		return nil, err
	}

	s := split(bars)
	upper := talib.Max(s.high, d.period)
	lower := talib.Min(s.low, d.period)
	middle := make([]float64, len(bars))
	for i := d.period - 1; i < len(bars); i++ {
		middle[i] = (upper[i] + lower[i]) / 2
	}

	return map[string][]float64{
		"upper":  upper,
		"middle": middle,
		"lower":  lower,
	}, nil
}
