package scoring

import (
	"fmt"
	"math"

	apperrors "ict-signals/internal/errors"
	"ict-signals/internal/models"
)

// Levels are the trade prices for one direction.
type Levels struct {
	Entry       models.PriceZone
	StopLoss    float64
	TakeProfit1 float64
	TakeProfit2 float64
	RiskReward  float64
}

// Decision is the gated outcome of a confluence result.
type Decision struct {
	Direction models.Direction
	// Candidate is the direction before the risk and confidence gates.
	Candidate  models.Direction
	Confidence float64
	// RawConfidence is the confidence before the risk and confidence gates.
	RawConfidence float64
	Levels        Levels
	Quality       models.SignalQuality
	RiskRejected  bool
	BelowFloor    bool
	// Gates lists the gates that fired, in order.
	Gates   []*apperrors.RiskError
	Reasons []string
}

// Evaluate classifies the score, derives confidence and levels, then applies
// the risk/reward gate followed by the confidence floor.
func Evaluate(result ConfluenceResult, in Inputs, cfg Config) Decision {
	direction, confCap := classify(result, cfg)
	d := Decision{Direction: direction, Candidate: direction}

	conf := math.Min(50+math.Abs(result.Lean()), confCap)
	switch sign := in.Bias.Label.Sign(); {
	case sign == 0:
		conf -= cfg.NeutralBiasPenalty
	case direction == models.DirectionBuy && sign < 0,
		direction == models.DirectionSell && sign > 0:
		conf -= cfg.OpposingBiasPenalty
	}
	conf = clamp(conf, 0, cfg.MaxConfidence)
	d.RawConfidence = conf

	long := direction == models.DirectionBuy || (direction == models.DirectionHold && result.Score >= 50)
	d.Levels = tradeLevels(in.Price, in.Indicators.ATR14, long, cfg)

	if d.Direction != models.DirectionHold && d.Levels.RiskReward < cfg.MinRiskReward {
		d.Direction = models.DirectionHold
		d.RiskRejected = true
		conf = math.Max(0, conf-cfg.RiskRewardPenalty)
		d.Gates = append(d.Gates, apperrors.NewRiskError("min_risk_reward", d.Levels.RiskReward, cfg.MinRiskReward,
			fmt.Sprintf("risk/reward %.2f below minimum %.2f", d.Levels.RiskReward, cfg.MinRiskReward)))
	}
	if d.Direction != models.DirectionHold && conf < cfg.ConfidenceFloor {
		d.Direction = models.DirectionHold
		d.BelowFloor = true
		d.Gates = append(d.Gates, apperrors.NewRiskError("confidence_floor", conf, cfg.ConfidenceFloor,
			fmt.Sprintf("confidence %.0f below floor %.0f", conf, cfg.ConfidenceFloor)))
	}

	gateReasons := make([]string, 0, len(d.Gates))
	for _, g := range d.Gates {
		gateReasons = append(gateReasons, g.Message)
	}

	d.Confidence = conf
	d.Quality = QualityFor(conf, result.Count())
	d.Reasons = append(gateReasons, result.TopReasons(cfg.MaxReasons)...)
	if len(d.Reasons) > cfg.MaxReasons {
		d.Reasons = d.Reasons[:cfg.MaxReasons]
	}
	if len(d.Reasons) == 0 {
		d.Reasons = []string{"no confluence factors present"}
	}
	return d
}

// Decide evaluates a result and returns the trade fields of a signal.
func Decide(result ConfluenceResult, in Inputs, cfg Config) models.TradeSignal {
	d := Evaluate(result, in, cfg)
	factors := make([]string, len(result.Factors))
	copy(factors, result.Factors)
	return models.TradeSignal{
		Direction:       d.Direction,
		Confidence:      d.Confidence,
		CurrentPrice:    in.Price,
		EntryZone:       d.Levels.Entry,
		StopLoss:        d.Levels.StopLoss,
		TakeProfit1:     d.Levels.TakeProfit1,
		TakeProfit2:     d.Levels.TakeProfit2,
		RiskReward:      d.Levels.RiskReward,
		Quality:         d.Quality,
		ConfluenceCount: result.Count(),
		Factors:         factors,
		Reasons:         d.Reasons,
	}
}

// classify maps the score and confluence count to a direction and its confidence cap.
func classify(result ConfluenceResult, cfg Config) (models.Direction, float64) {
	score, count := result.Score, result.Count()
	switch {
	case score >= cfg.StrongBuyScore && count >= cfg.MinConfluence:
		return models.DirectionBuy, cfg.StrongCap
	case score <= cfg.StrongSellScore && count >= cfg.MinConfluence:
		return models.DirectionSell, cfg.StrongCap
	case score >= cfg.BuyScore:
		return models.DirectionBuy, cfg.WeakCap
	case score <= cfg.SellScore:
		return models.DirectionSell, cfg.WeakCap
	default:
		return models.DirectionHold, cfg.WeakCap
	}
}

// tradeLevels places stop and targets at ATR multiples around price.
func tradeLevels(price, atr float64, long bool, cfg Config) Levels {
	sign := 1.0
	if !long {
		sign = -1
	}
	lv := Levels{
		Entry:       models.PriceZone{Low: price * (1 - cfg.EntryBand), High: price * (1 + cfg.EntryBand)},
		StopLoss:    price - sign*cfg.StopATR*atr,
		TakeProfit1: price + sign*cfg.Target1ATR*atr,
		TakeProfit2: price + sign*cfg.Target2ATR*atr,
	}
	if risk := math.Abs(price - lv.StopLoss); risk > 0 {
		lv.RiskReward = math.Abs(lv.TakeProfit1-price) / risk
	}
	return lv
}

// QualityFor grades a signal by confidence and confluence count.
func QualityFor(confidence float64, factors int) models.SignalQuality {
	switch {
	case confidence >= 85 && factors >= 5:
		return models.QualityExcellent
	case confidence >= 75 && factors >= 4:
		return models.QualityVeryGood
	case confidence >= 65 && factors >= 3:
		return models.QualityGood
	case confidence >= 55 && factors >= 2:
		return models.QualityFair
	default:
		return models.QualityPoor
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
