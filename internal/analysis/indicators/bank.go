package indicators

import (
	"errors"
	"fmt"

	"ict-signals/internal/models"
)

// BankMinBars is the series length below which the bank reports a minimal snapshot.
const BankMinBars = 50

const (
	volatilityWindow   = 30
	volatilityScoreLen = 20
	volumeWindow       = 20
	pivotSession       = 24
	fibLookback        = 50
	minimalATRFraction = 0.005
)

// Trend direction labels.
const (
	TrendUp       = "UP"
	TrendDown     = "DOWN"
	TrendSideways = "SIDEWAYS"
)

// errNonFinite flags a calculation that produced NaN or Inf.
var errNonFinite = errors.New("indicator produced a non-finite value")

// Snapshot holds the latest value of every indicator in the catalogue.
type Snapshot struct {
	Price float64

	SMA20, SMA50        float64
	EMA12, EMA26, EMA50 float64
	MACD, MACDSignal    float64
	MACDHistogram       float64
	ADX, PlusDI         float64
	MinusDI             float64

	RSI14, RSI21   float64
	StochK, StochD float64
	WilliamsR      float64
	ROC            float64
	CCI            float64

	BBUpper, BBMiddle, BBLower   float64
	BBWidth, BBPercentB          float64
	ATR14, ATR21                 float64
	KeltnerUpper, KeltnerLower   float64
	KeltnerMiddle                float64
	DonchianUpper, DonchianLower float64
	DonchianMiddle               float64

	OBV, VPT, AD, CMF float64
	VWAP              float64
	VolumeRatio       float64

	Pivots    PivotPoints
	Fibonacci FibonacciLevels

	StructureScore   float64
	MomentumStrength float64
	VolatilityRank   float64
	VolatilityScore  float64
	TrendStrength    float64

	TrendDirection string
	BBPosition     string
	VolumeStrength string

	// Minimal is set when the snapshot was substituted with defaults.
	Minimal bool
}

// MACDSign returns +1, -1 or 0 from the histogram.
func (s Snapshot) MACDSign() int {
	switch {
	case s.MACDHistogram > 0:
		return 1
	case s.MACDHistogram < 0:
		return -1
	default:
		return 0
	}
}

// MinimalSnapshot returns the fixed defaults used when indicators cannot be computed:
// the current price for every level, 50 for oscillators and 0 for MACD.
func MinimalSnapshot(price float64) Snapshot {
	levels := make(map[string]float64, len(fibRatios))
	for _, r := range fibRatios {
		levels[r.key] = price
	}
	return Snapshot{
		Price: price,
		SMA20: price, SMA50: price,
		EMA12: price, EMA26: price, EMA50: price,
		RSI14: 50, RSI21: 50,
		StochK: 50, StochD: 50,
		WilliamsR: -50,
		BBUpper:   price, BBMiddle: price, BBLower: price,
		BBPercentB: 0.5,
		ATR14:      price * minimalATRFraction, ATR21: price * minimalATRFraction,
		KeltnerUpper: price, KeltnerMiddle: price, KeltnerLower: price,
		DonchianUpper: price, DonchianMiddle: price, DonchianLower: price,
		VWAP:        price,
		VolumeRatio: 1,
		Pivots: PivotPoints{
			Pivot: price, R1: price, R2: price, R3: price, S1: price, S2: price, S3: price,
		},
		Fibonacci:        FibonacciLevels{SwingHigh: price, SwingLow: price, Levels: levels},
		StructureScore:   50,
		MomentumStrength: 50,
		VolatilityRank:   50,
		VolatilityScore:  1,
		TrendDirection:   TrendSideways,
		BBPosition:       "MIDDLE",
		VolumeStrength:   "AVERAGE",
		Minimal:          true,
	}
}

// Bank computes the indicator catalogue on the primary timeframe.
type Bank struct {
	minBars int
}

// NewBank creates an indicator bank.
func NewBank() *Bank {
	return &Bank{minBars: BankMinBars}
}

// Compute returns the latest indicator values. Short series and any failed
// calculation yield MinimalSnapshot for the current price.
func (b *Bank) Compute(series models.BarSeries) (snap Snapshot) {
	if series.Empty() {
		return MinimalSnapshot(0)
	}
	price := series.Last().Close
	if series.Len() < b.minBars {
		return MinimalSnapshot(price)
	}

	defer func() {
		if r := recover(); r != nil {
			snap = MinimalSnapshot(price)
		}
	}()

	full, err := b.compute(series.Bars)
	if err != nil {
		return MinimalSnapshot(price)
	}
	return full
}

func (b *Bank) compute(bars []models.Bar) (Snapshot, error) {
	s := Snapshot{Price: bars[len(bars)-1].Close}

	single := []struct {
		ind Indicator
		dst *float64
	}{
		{NewSMA(20), &s.SMA20},
		{NewSMA(50), &s.SMA50},
		{NewEMA(12), &s.EMA12},
		{NewEMA(26), &s.EMA26},
		{NewEMA(50), &s.EMA50},
		{NewRSI(14), &s.RSI14},
		{NewRSI(21), &s.RSI21},
		{NewWilliamsR(14), &s.WilliamsR},
		{NewROC(10), &s.ROC},
		{NewCCI(20), &s.CCI},
		{NewATR(21), &s.ATR21},
		{NewOBV(), &s.OBV},
		{NewVPT(), &s.VPT},
		{NewADLine(), &s.AD},
		{NewCMF(20), &s.CMF},
		{NewVWAP(20), &s.VWAP},
	}
	for _, item := range single {
		values, err := item.ind.Calculate(bars)
		if err != nil {
			return s, fmt.Errorf("%s: %w", item.ind.Name(), err)
		}
		*item.dst = last(values)
	}

	multi := []struct {
		ind  MultiValueIndicator
		keys map[string]*float64
	}{
		{NewMACD(12, 26, 9), map[string]*float64{"macd": &s.MACD, "signal": &s.MACDSignal, "histogram": &s.MACDHistogram}},
		{NewADX(14), map[string]*float64{"adx": &s.ADX, "plus_di": &s.PlusDI, "minus_di": &s.MinusDI}},
		{NewStochastic(14, 3, 3), map[string]*float64{"percent_k": &s.StochK, "percent_d": &s.StochD}},
		{NewBollingerBands(20, 2), map[string]*float64{
			"upper": &s.BBUpper, "middle": &s.BBMiddle, "lower": &s.BBLower,
			"bandwidth": &s.BBWidth, "percent_b": &s.BBPercentB,
		}},
		{NewKeltnerChannels(20, 10, 2), map[string]*float64{"upper": &s.KeltnerUpper, "middle": &s.KeltnerMiddle, "lower": &s.KeltnerLower}},
		{NewDonchianChannels(20), map[string]*float64{"upper": &s.DonchianUpper, "middle": &s.DonchianMiddle, "lower": &s.DonchianLower}},
	}
	for _, item := range multi {
		values, err := item.ind.Calculate(bars)
		if err != nil {
			return s, fmt.Errorf("%s: %w", item.ind.Name(), err)
		}
		for key, dst := range item.keys {
			*dst = last(values[key])
		}
	}

	atr, err := NewATR(14).Calculate(bars)
	if err != nil {
		return s, fmt.Errorf("ATR_14: %w", err)
	}
	s.ATR14 = last(atr)
	s.VolatilityRank = percentileRank(atr[max(14, len(atr)-volatilityWindow):], s.ATR14)
	if avg := mean(atr[max(14, len(atr)-volatilityScoreLen):]); avg > 0 {
		s.VolatilityScore = min(2, s.ATR14/avg)
	} else {
		s.VolatilityScore = 1
	}

	pivots, err := NewClassicPivots(pivotSession).Calculate(bars)
	if err != nil {
		return s, fmt.Errorf("pivots: %w", err)
	}
	s.Pivots = *pivots

	fib, err := NewFibonacciRetracement(fibLookback).Calculate(bars)
	if err != nil {
		return s, fmt.Errorf("fibonacci: %w", err)
	}
	s.Fibonacci = *fib

	var volSum float64
	for _, bar := range bars[len(bars)-volumeWindow:] {
		volSum += bar.Volume
	}
	if avg := volSum / volumeWindow; avg > 0 {
		s.VolumeRatio = bars[len(bars)-1].Volume / avg
	} else {
		s.VolumeRatio = 1
	}

	s.deriveComposites()

	if !finite(s.SMA20, s.SMA50, s.EMA12, s.EMA26, s.MACDHistogram, s.ADX, s.RSI14, s.RSI21,
		s.StochK, s.WilliamsR, s.CCI, s.ROC, s.BBPercentB, s.ATR14, s.ATR21, s.CMF, s.VWAP,
		s.VolumeRatio, s.TrendStrength, s.MomentumStrength, s.VolatilityRank) {
		return s, errNonFinite
	}

	return s, nil
}

// deriveComposites fills the composite scores and labels from the raw values.
func (s *Snapshot) deriveComposites() {
	if span := s.DonchianUpper - s.DonchianLower; span > 0 {
		s.StructureScore = clamp((s.Price-s.DonchianLower)/span*100, 0, 100)
	} else {
		s.StructureScore = 50
	}

	s.MomentumStrength = clamp((s.RSI14+s.StochK+(s.WilliamsR+100))/3, 0, 100)

	var trend float64
	switch {
	case s.Price > s.EMA12 && s.EMA12 > s.EMA26:
		trend += 30
	case s.Price < s.EMA12 && s.EMA12 < s.EMA26:
		trend -= 30
	}
	trend += 25 * float64(s.MACDSign())
	switch {
	case s.PlusDI > s.MinusDI:
		trend += 25
	case s.PlusDI < s.MinusDI:
		trend -= 25
	}
	switch {
	case s.RSI14 > 55:
		trend += 20
	case s.RSI14 < 45:
		trend -= 20
	}
	s.TrendStrength = trend

	switch {
	case trend > 20:
		s.TrendDirection = TrendUp
	case trend < -20:
		s.TrendDirection = TrendDown
	default:
		s.TrendDirection = TrendSideways
	}

	switch {
	case s.BBPercentB > 0.8:
		s.BBPosition = "UPPER"
	case s.BBPercentB < 0.2:
		s.BBPosition = "LOWER"
	default:
		s.BBPosition = "MIDDLE"
	}

	switch {
	case s.VolumeRatio > 1.5:
		s.VolumeStrength = "HIGH"
	case s.VolumeRatio > 1.2:
		s.VolumeStrength = "ABOVE_AVERAGE"
	case s.VolumeRatio < 0.8:
		s.VolumeStrength = "LOW"
	default:
		s.VolumeStrength = "AVERAGE"
	}
}

// percentileRank returns the share of values at or below v, in percent.
func percentileRank(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 50
	}
	var below int
	for _, x := range values {
		if x <= v {
			below++
		}
	}
	return float64(below) / float64(len(values)) * 100
}
