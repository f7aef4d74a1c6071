package indicators

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"ict-signals/internal/models"
)

// VWAP calculates a volume-weighted average price over a trailing window.
type VWAP struct {
	period int
}

// NewVWAP creates a new trailing VWAP indicator.
func NewVWAP(period int) *VWAP {
	return &VWAP{period: period}
}

func (v *VWAP) Name() string {
	return fmt.Sprintf("VWAP_%d", v.period)
}

func (v *VWAP) Period() int {
	return v.period
}

func (v *VWAP) Calculate(bars []models.Bar) ([]float64, error) {
	if err := checkInput(bars, v.period, v.period); err != nil {
		return nil, err
	}

	result := make([]float64, len(bars))
	var pv, vol float64
	for i, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * b.Volume
		vol += b.Volume
		if i >= v.period {
			old := bars[i-v.period]
			pv -= (old.High + old.Low + old.Close) / 3 * old.Volume
			vol -= old.Volume
		}
		if i >= v.period-1 {
			if vol > 0 {
				result[i] = pv / vol
			} else {
				result[i] = typical
			}
		}
	}
	return result, nil
}

// OBV calculates On-Balance Volume.
type OBV struct{}

// NewOBV creates a new OBV indicator.
func NewOBV() *OBV {
	return &OBV{}
}

func (o *OBV) Name() string {
	return "OBV"
}

func (o *OBV) Period() int {
	return 1
}

func (o *OBV) Calculate(bars []models.Bar) ([]float64, error) {
	if len(bars) < 2 {
		return nil, ErrInsufficientData
	}
	d := split(bars)
	return talib.Obv(d.close, d.volume), nil
}

// VPT calculates Volume-Price Trend.
type VPT struct{}

// NewVPT creates a new VPT indicator.
func NewVPT() *VPT {
	return &VPT{}
}

func (v *VPT) Name() string {
	return "VPT"
}

func (v *VPT) Period() int {
	return 1
}

func (v *VPT) Calculate(bars []models.Bar) ([]float64, error) {
	if len(bars) < 2 {
		return nil, ErrInsufficientData
	}
	result := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		change := safeDiv(bars[i].Close-bars[i-1].Close, bars[i-1].Close)
		result[i] = result[i-1] + bars[i].Volume*change
	}
	return result, nil
}

// ADLine calculates the Accumulation/Distribution line.
type ADLine struct{}

// NewADLine creates a new A/D line indicator.
func NewADLine() *ADLine {
	return &ADLine{}
}

func (a *ADLine) Name() string {
	return "AD"
}

func (a *ADLine) Period() int {
	return 1
}

func (a *ADLine) Calculate(bars []models.Bar) ([]float64, error) {
	if len(bars) == 0 {
		return nil, ErrInsufficientData
	}
	d := split(bars)
	return talib.Ad(d.high, d.low, d.close, d.volume), nil
}

// CMF calculates Chaikin Money Flow.
type CMF struct {
	period int
}

// NewCMF creates a new CMF indicator.
func NewCMF(period int) *CMF {
	return &CMF{period: period}
}

func (c *CMF) Name() string {
	return fmt.Sprintf("CMF_%d", c.period)
}

func (c *CMF) Period() int {
	return c.period
}

func (c *CMF) Calculate(bars []models.Bar) ([]float64, error) {
	if err := checkInput(bars, c.period, c.period); err != nil {
		return nil, err
	}

	flow := make([]float64, len(bars))
	for i, b := range bars {
		if r := b.Range(); r > 0 {
			flow[i] = ((b.Close - b.Low) - (b.High - b.Close)) / r * b.Volume
		}
	}

	result := make([]float64, len(bars))
	var mfv, vol float64
	for i, b := range bars {
		mfv += flow[i]
		vol += b.Volume
		if i >= c.period {
			mfv -= flow[i-c.period]
			vol -= bars[i-c.period].Volume
		}
		if i >= c.period-1 {
			result[i] = clamp(safeDiv(mfv, vol), -1, 1)
		}
	}
	return result, nil
}
