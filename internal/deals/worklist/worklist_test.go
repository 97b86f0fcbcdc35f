package worklist

import (
	"testing"
	"time"

	"handlit_backend/internal/deals/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func openDeal(mutate func(*domain.Deal)) domain.Deal {
	d := domain.NewDeal(domain.NewDealParams{
		AccountRef: "acc",
		ContactRef: "con",
		OwnerRef:   "rep-1",
		Stage:      domain.StageQualification,
		Now:        now.Add(-30 * 24 * time.Hour),
	})
	d.TotalContactAttempts = 1
	d.LastTouchAt = at(-24 * time.Hour)
	if mutate != nil {
		mutate(&d)
	}
	return d
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()
	day := 24 * time.Hour

	tests := []struct {
		name    string
		deal    domain.Deal
		tier    Tier
		reasons []Reason
	}{
		{
			name:    "second strike",
			deal:    openDeal(func(d *domain.Deal) { d.NoContactStreak = 2 }),
			tier:    TierCritical,
			reasons: []Reason{ReasonLastStrike},
		},
		{
			name:    "overdue follow up",
			deal:    openDeal(func(d *domain.Deal) { d.NextActionAt = at(-time.Hour) }),
			tier:    TierCritical,
			reasons: []Reason{ReasonFollowUpOverdue},
		},
		{
			name: "first strike",
			deal: openDeal(func(d *domain.Deal) {
				d.NoContactStreak = 1
				d.NextActionAt = at(time.Hour)
			}),
			tier:    TierWarm,
			reasons: []Reason{ReasonOneStrike},
		},
		{
			name:    "walkthrough accepted without follow-on quote",
			deal:    openDeal(func(d *domain.Deal) { d.WalkthroughAcceptedAt = at(-10 * day); d.LastQuoteSentAt = at(-12 * day) }),
			tier:    TierWarm,
			reasons: []Reason{ReasonWalkthroughAccepted},
		},
		{
			name:    "quote sent after walkthrough acceptance outside warm window",
			deal:    openDeal(func(d *domain.Deal) { d.WalkthroughAcceptedAt = at(-12 * day); d.LastQuoteSentAt = at(-10 * day) }),
			tier:    TierRest,
			reasons: nil,
		},
		{
			name:    "warm quote",
			deal:    openDeal(func(d *domain.Deal) { d.LastQuoteSentAt = at(-3 * day) }),
			tier:    TierWarm,
			reasons: []Reason{ReasonQuoteWarm},
		},
		{
			name:    "idle",
			deal:    openDeal(func(d *domain.Deal) { d.LastTouchAt = at(-8 * day) }),
			tier:    TierStale,
			reasons: []Reason{ReasonIdle},
		},
		{
			name: "never contacted",
			deal: openDeal(func(d *domain.Deal) {
				d.TotalContactAttempts = 0
				d.LastTouchAt = nil
			}),
			tier:    TierStale,
			reasons: []Reason{ReasonIdle, ReasonNeverContacted},
		},
		{
			name:    "recently touched",
			deal:    openDeal(nil),
			tier:    TierRest,
			reasons: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, reasons := Classify(tt.deal, now, cfg)
			assert.Equal(t, tt.tier, tier)
			assert.Equal(t, tt.reasons, reasons)
		})
	}
}

func TestClassifyLastStrikeFollowsThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoContactThreshold = 5

	tests := []struct {
		streak  int
		tier    Tier
		reasons []Reason
	}{
		{streak: 4, tier: TierCritical, reasons: []Reason{ReasonLastStrike}},
		{streak: 3, tier: TierWarm, reasons: []Reason{ReasonOneStrike}},
		{streak: 2, tier: TierWarm, reasons: []Reason{ReasonOneStrike}},
	}
	for _, tt := range tests {
		deal := openDeal(func(d *domain.Deal) { d.NoContactStreak = tt.streak })
		tier, reasons := Classify(deal, now, cfg)
		assert.Equal(t, tt.tier, tier, "streak %d", tt.streak)
		assert.Equal(t, tt.reasons, reasons, "streak %d", tt.streak)
	}

	cfg.NoContactThreshold = 1
	tier, reasons := Classify(openDeal(nil), now, cfg)
	assert.Equal(t, TierRest, tier, "a threshold of one has no last strike")
	assert.Empty(t, reasons)
}

func TestAssembleOrdering(t *testing.T) {
	cfg := DefaultConfig()
	valued := func(amount int64) func(*domain.Deal) {
		return func(d *domain.Deal) {
			d.NoContactStreak = 1
			d.Value = domain.BindingValue(decimal.NewFromInt(amount))
		}
	}

	small := openDeal(valued(10_000))
	big := openDeal(valued(90_000))
	critical := openDeal(func(d *domain.Deal) { d.NoContactStreak = 2 })

	staleAttempt := openDeal(func(d *domain.Deal) {
		d.NoContactStreak = 1
		d.LastContactAttemptAt = at(-5 * 24 * time.Hour)
	})
	freshAttempt := openDeal(func(d *domain.Deal) {
		d.NoContactStreak = 1
		d.LastContactAttemptAt = at(-time.Hour)
	})
	closed := openDeal(func(d *domain.Deal) {
		d.NoContactStreak = 2
		d.IsClosed = true
		d.Stage = domain.StageClosedLost
	})
	hidden := openDeal(nil)

	items := Assemble([]domain.Deal{small, freshAttempt, hidden, big, closed, staleAttempt, critical}, now, cfg, false)
	require.Len(t, items, 5)

	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.Deal.ID
	}
	assert.Equal(t, []uuid.UUID{critical.ID, big.ID, small.ID, staleAttempt.ID, freshAttempt.ID}, ids)
	assert.Greater(t, items[1].Score.Score, items[2].Score.Score)

	all := Assemble([]domain.Deal{hidden, closed}, now, cfg, true)
	require.Len(t, all, 1)
	assert.Equal(t, TierRest, all[0].Tier)
}

func TestAssembleIsReadOnly(t *testing.T) {
	d := openDeal(func(d *domain.Deal) { d.NoContactStreak = 2; d.PriorityScore = 1.5 })
	input := []domain.Deal{d}

	_ = Assemble(input, now, DefaultConfig(), true)
	assert.Equal(t, d, input[0])
}
