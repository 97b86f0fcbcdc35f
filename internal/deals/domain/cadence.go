package domain

import (
	"fmt"
	"time"
)

// DefaultNoContactThreshold is the number of consecutive failed attempts that
// disqualifies a deal.
const DefaultNoContactThreshold = 3

// CadencePolicy is the "three strikes" rule for contact attempts.
type CadencePolicy struct {
	Threshold int
	Reason    string
}

// DefaultCadencePolicy returns the policy used when nothing is configured.
func DefaultCadencePolicy() CadencePolicy {
	return NewCadencePolicy(DefaultNoContactThreshold, "")
}

// NewCadencePolicy builds a policy, deriving the reason from the threshold
// when none is given.
func NewCadencePolicy(threshold int, reason string) CadencePolicy {
	if threshold < 1 {
		threshold = DefaultNoContactThreshold
	}
	if reason == "" {
		reason = fmt.Sprintf("no response after %d attempts", threshold)
	}
	return CadencePolicy{Threshold: threshold, Reason: reason}
}

// StreakAfter returns the no-contact streak after an attempt with outcome.
func StreakAfter(streak int, outcome ContactOutcome) int {
	switch outcome {
	case OutcomeContactMade, OutcomeCompleted, OutcomeScheduled:
		return 0
	case OutcomeNoContact, OutcomeVoicemail:
		return streak + 1
	default:
		return streak
	}
}

// ContactAttempt is one logged attempt to reach the deal's contact.
type ContactAttempt struct {
	Outcome     ContactOutcome
	AttemptedAt time.Time
}

// ApplyContactAttempt updates the cadence counters and closes the deal once
// the no-contact streak reaches the policy threshold. A closed deal is left
// untouched, so the closure is reported exactly once.
func ApplyContactAttempt(d Deal, attempt ContactAttempt, policy CadencePolicy, meta EventMeta) Change {
	if d.IsClosed {
		return noOp(d)
	}
	c := Change{Deal: d}
	old := ContactValue{
		Outcome:         d.LastContactResult,
		NoContactStreak: d.NoContactStreak,
		TotalAttempts:   d.TotalContactAttempts,
		TouchCount:      d.TouchCount,
		AttemptedAt:     copyTime(d.LastContactAttemptAt),
	}

	attemptedAt := attempt.AttemptedAt
	if attemptedAt.IsZero() {
		attemptedAt = meta.Now
	}
	outcome := attempt.Outcome

	c.Deal.NoContactStreak = StreakAfter(d.NoContactStreak, outcome)
	c.Deal.TotalContactAttempts++
	c.Deal.TouchCount++
	c.Deal.LastContactResult = &outcome
	c.Deal.LastContactAttemptAt = timePtr(attemptedAt)
	c.Deal.LastTouchAt = timePtr(meta.Now)
	c.Deal.LastActivityAt = timePtr(meta.Now)
	c.Deal.UpdatedAt = meta.Now

	c.emit(meta, EventContactAttemptLogged, old, ContactValue{
		Outcome:         c.Deal.LastContactResult,
		NoContactStreak: c.Deal.NoContactStreak,
		TotalAttempts:   c.Deal.TotalContactAttempts,
		TouchCount:      c.Deal.TouchCount,
		AttemptedAt:     c.Deal.LastContactAttemptAt,
	})

	if c.Deal.NoContactStreak >= policy.Threshold {
		oldClosure, closed := c.close(meta, StageClosedLost, ClosedReason(policy.Reason), nil)
		c.emit(meta, EventAutoClosed, oldClosure, closed)
		c.AutoClosed = true
	}
	return c
}
