// Package worklist ranks an owner's open deals into follow-up tiers.
// It is read-only: nothing here mutates a deal.
package worklist

import (
	"sort"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/scoring"
)

// Tier groups deals by follow-up urgency. Lower is more urgent.
type Tier int

const (
	TierCritical Tier = 1
	TierWarm     Tier = 2
	TierStale    Tier = 3
	TierRest     Tier = 4
)

// Reason names a rule that placed a deal in its tier.
type Reason string

const (
	ReasonLastStrike          Reason = "one_failure_from_auto_close"
	ReasonFollowUpOverdue     Reason = "follow_up_overdue"
	ReasonOneStrike           Reason = "one_failed_attempt"
	ReasonWalkthroughAccepted Reason = "walkthrough_accepted_awaiting_quote"
	ReasonQuoteWarm           Reason = "quote_sent_recently"
	ReasonIdle                Reason = "idle"
	ReasonNeverContacted      Reason = "never_contacted"
)

// Config holds the time windows of the tier rules and the cadence threshold
// the last-strike rule is measured against.
type Config struct {
	WarmQuoteWindow    time.Duration
	IdleWindow         time.Duration
	NoContactThreshold int
}

// DefaultConfig uses seven days for both windows and the default cadence.
func DefaultConfig() Config {
	return Config{
		WarmQuoteWindow:    7 * 24 * time.Hour,
		IdleWindow:         7 * 24 * time.Hour,
		NoContactThreshold: domain.DefaultNoContactThreshold,
	}
}

// lastStrike is the streak one failure short of auto-close. A threshold of
// one has no such streak.
func (c Config) lastStrike() int {
	threshold := c.NoContactThreshold
	if threshold < 1 {
		threshold = domain.DefaultNoContactThreshold
	}
	if threshold == 1 {
		return -1
	}
	return threshold - 1
}

// Item is one ranked deal.
type Item struct {
	Deal    domain.Deal
	Tier    Tier
	Reasons []Reason
	Score   scoring.Breakdown
}

// Classify places an open deal in a tier and reports the rules that matched.
func Classify(d domain.Deal, now time.Time, cfg Config) (Tier, []Reason) {
	var reasons []Reason

	if d.NoContactStreak == cfg.lastStrike() {
		reasons = append(reasons, ReasonLastStrike)
	}
	if d.NextActionAt != nil && d.NextActionAt.Before(now) {
		reasons = append(reasons, ReasonFollowUpOverdue)
	}
	if len(reasons) > 0 {
		return TierCritical, reasons
	}

	if d.NoContactStreak >= 1 {
		reasons = append(reasons, ReasonOneStrike)
	}
	if awaitingQuoteAfterWalkthrough(d) {
		reasons = append(reasons, ReasonWalkthroughAccepted)
	}
	if d.LastQuoteSentAt != nil && now.Sub(*d.LastQuoteSentAt) <= cfg.WarmQuoteWindow {
		reasons = append(reasons, ReasonQuoteWarm)
	}
	if len(reasons) > 0 {
		return TierWarm, reasons
	}

	if d.LastTouchAt == nil || now.Sub(*d.LastTouchAt) > cfg.IdleWindow {
		reasons = append(reasons, ReasonIdle)
	}
	if d.TotalContactAttempts == 0 {
		reasons = append(reasons, ReasonNeverContacted)
	}
	if len(reasons) > 0 {
		return TierStale, reasons
	}

	return TierRest, nil
}

func awaitingQuoteAfterWalkthrough(d domain.Deal) bool {
	if d.WalkthroughAcceptedAt == nil {
		return false
	}
	return d.LastQuoteSentAt == nil || !d.LastQuoteSentAt.After(*d.WalkthroughAcceptedAt)
}

// Assemble classifies and orders deals: by tier, then by score descending,
// then stalest contact attempt first. Closed deals are skipped and tier 4 is
// only returned when includeAll is set.
func Assemble(deals []domain.Deal, now time.Time, cfg Config, includeAll bool) []Item {
	items := make([]Item, 0, len(deals))
	for _, d := range deals {
		if d.IsClosed {
			continue
		}
		tier, reasons := Classify(d, now, cfg)
		if tier == TierRest && !includeAll {
			continue
		}
		items = append(items, Item{
			Deal:    d,
			Tier:    tier,
			Reasons: reasons,
			Score:   scoring.Explain(d, now),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Score.Score != b.Score.Score {
			return a.Score.Score > b.Score.Score
		}
		if c := compareAttempt(a.Deal.LastContactAttemptAt, b.Deal.LastContactAttemptAt); c != 0 {
			return c < 0
		}
		return a.Deal.ID.String() < b.Deal.ID.String()
	})
	return items
}

// compareAttempt orders never-attempted deals first, then oldest attempt first.
func compareAttempt(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	default:
		return 0
	}
}
