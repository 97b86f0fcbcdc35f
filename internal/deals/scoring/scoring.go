// Package scoring computes the decaying priority score used to rank deals.
// Scores are derived on demand from deal state and are never an input to
// lifecycle decisions.
package scoring

import (
	"math"
	"time"

	"handlit_backend/internal/deals/domain"

	"github.com/shopspring/decimal"
)

const (
	// Version identifies the scoring model. Bump it when the formula changes.
	Version = "2026-v1"

	valueCeiling           = 100_000.0
	defaultStageMultiplier = 0.3
	untouchedDays          = 30.0
	decayDays              = 10.0
)

var stageMultipliers = map[domain.Stage]float64{
	domain.StageProspecting:   0.2,
	domain.StageQualification: 0.4,
	domain.StageProposal:      0.6,
	domain.StageNegotiation:   0.8,
	domain.StageClosedWon:     1.0,
	domain.StageClosedLost:    0.0,
}

// Breakdown exposes every factor of a score.
type Breakdown struct {
	ValueWeighted   float64 `json:"valueWeighted"`
	StageMultiplier float64 `json:"stageMultiplier"`
	TouchBonus      float64 `json:"touchBonus"`
	CloseLikelihood float64 `json:"closeLikelihood"`
	DaysSinceTouch  float64 `json:"daysSinceTouch"`
	UrgencyDecay    float64 `json:"urgencyDecay"`
	Score           float64 `json:"score"`
	Version         string  `json:"version"`
}

// StageMultiplier returns the weight of a stage, 0.3 when unmapped.
func StageMultiplier(stage domain.Stage) float64 {
	if m, ok := stageMultipliers[stage]; ok {
		return m
	}
	return defaultStageMultiplier
}

// Score returns the deal's priority at now.
func Score(d domain.Deal, now time.Time) float64 {
	return Explain(d, now).Score
}

// Explain computes the score and its factors.
func Explain(d domain.Deal, now time.Time) Breakdown {
	b := Breakdown{Version: Version}

	amount := d.Value.Estimate()
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	b.ValueWeighted = math.Min(amount.InexactFloat64()/valueCeiling, 1.0)

	b.StageMultiplier = StageMultiplier(d.Stage)
	b.TouchBonus = math.Min(float64(max(d.TouchCount, 0))/10.0, 1.0) * 0.2
	probability := clampFloat(float64(d.Probability), 0, 100)
	b.CloseLikelihood = b.StageMultiplier*0.6 + (probability/100.0)*0.2 + b.TouchBonus

	b.DaysSinceTouch = daysSince(d.LastTouchAt, now)
	b.UrgencyDecay = math.Exp(-b.DaysSinceTouch / decayDays)

	b.Score = b.ValueWeighted * b.CloseLikelihood * b.UrgencyDecay * 100
	return b
}

func daysSince(t *time.Time, now time.Time) float64 {
	if t == nil {
		return untouchedDays
	}
	days := now.Sub(*t).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

func clampFloat(value float64, min float64, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
