package scoring

import (
	"math"
	"testing"
	"time"

	"handlit_backend/internal/deals/domain"

	"github.com/shopspring/decimal"
)

var now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func dealAt(stage domain.Stage, daysAgo float64) domain.Deal {
	touched := now.Add(-time.Duration(daysAgo * 24 * float64(time.Hour)))
	return domain.Deal{
		Stage:       stage,
		Value:       domain.RangeValue(decimal.NewFromInt(40000), decimal.NewFromInt(60000)),
		LastTouchAt: &touched,
	}
}

func TestScoreReferenceScenario(t *testing.T) {
	b := Explain(dealAt(domain.StageQualification, 30), now)

	if math.Abs(b.ValueWeighted-0.5) > 1e-9 {
		t.Fatalf("expected value weight 0.5, got %v", b.ValueWeighted)
	}
	if math.Abs(b.CloseLikelihood-0.24) > 1e-9 {
		t.Fatalf("expected close likelihood 0.24, got %v", b.CloseLikelihood)
	}
	if math.Abs(b.UrgencyDecay-math.Exp(-3)) > 1e-9 {
		t.Fatalf("expected decay e^-3, got %v", b.UrgencyDecay)
	}
	if math.Abs(b.Score-0.5974) > 0.001 {
		t.Fatalf("expected score ~0.598, got %v", b.Score)
	}
}

func TestScoreStrictlyDecreasesWithTime(t *testing.T) {
	prev := math.Inf(1)
	for _, days := range []float64{0, 0.5, 1, 3, 7, 14, 30, 90} {
		s := Score(dealAt(domain.StageProposal, days), now)
		if !(s < prev) {
			t.Fatalf("score did not decrease at %v days: %v >= %v", days, s, prev)
		}
		prev = s
	}
}

func TestScoreIncreasesWithStageMultiplier(t *testing.T) {
	stages := []domain.Stage{
		domain.StageProspecting,
		domain.StageQualification,
		domain.StageProposal,
		domain.StageNegotiation,
		domain.StageClosedWon,
	}
	prev := -1.0
	for _, stage := range stages {
		s := Score(dealAt(stage, 2), now)
		if !(s > prev) {
			t.Fatalf("score for %s (%v) not above previous (%v)", stage, s, prev)
		}
		prev = s
	}
}

func TestScoreIsBounded(t *testing.T) {
	d := domain.Deal{
		Stage:       domain.StageClosedWon,
		Value:       domain.BindingValue(decimal.NewFromInt(10_000_000)),
		Probability: 250,
		TouchCount:  99,
		LastTouchAt: &now,
	}
	if s := Score(d, now); s < 0 || s > 100 {
		t.Fatalf("score out of bounds: %v", s)
	}

	future := now.Add(48 * time.Hour)
	d.LastTouchAt = &future
	if b := Explain(d, now); b.DaysSinceTouch != 0 {
		t.Fatalf("touches in the future count as now, got %v days", b.DaysSinceTouch)
	}

	negative := domain.Deal{Stage: domain.StageProposal, Value: domain.BindingValue(decimal.NewFromInt(-500))}
	if s := Score(negative, now); s != 0 {
		t.Fatalf("negative amounts must score 0, got %v", s)
	}
}

func TestUntouchedDealsUseThirtyDays(t *testing.T) {
	d := dealAt(domain.StageQualification, 0)
	d.LastTouchAt = nil
	if b := Explain(d, now); b.DaysSinceTouch != 30 {
		t.Fatalf("expected 30 days for untouched deal, got %v", b.DaysSinceTouch)
	}
	if m := StageMultiplier(domain.Stage("unmapped")); m != 0.3 {
		t.Fatalf("expected default multiplier 0.3, got %v", m)
	}
}
