// Package domain provides core business rules for the deals bounded context.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a position in the sales pipeline.
type Stage string

const (
	StageProspecting   Stage = "prospecting"
	StageQualification Stage = "qualification"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageClosedWon     Stage = "closed_won"
	StageClosedLost    Stage = "closed_lost"
)

// stageRanks orders the open stages. Both closed stages share the last rank
// so neither counts as "later" than the other.
var stageRanks = map[Stage]int{
	StageProspecting:   0,
	StageQualification: 1,
	StageProposal:      2,
	StageNegotiation:   3,
	StageClosedWon:     4,
	StageClosedLost:    4,
}

// Rank returns the stage's position in the pipeline, or -1 for unknown stages.
func (s Stage) Rank() int {
	rank, ok := stageRanks[s]
	if !ok {
		return -1
	}
	return rank
}

// IsTerminal reports whether no lifecycle transition may leave s.
func (s Stage) IsTerminal() bool {
	return s == StageClosedWon || s == StageClosedLost
}

func (s Stage) Valid() bool {
	_, ok := stageRanks[s]
	return ok
}

// ShouldAdvance reports whether a deal at current moves to target.
// Stages never regress and terminal stages never move.
func ShouldAdvance(current, target Stage) bool {
	if current.IsTerminal() || !target.Valid() {
		return false
	}
	return target.Rank() > current.Rank()
}

// Source records how a deal came to exist.
type Source string

const (
	SourceQuoteAuto Source = "quote_auto"
	SourceManual    Source = "manual"
)

// ClosedReason explains why a deal left the pipeline. Besides the fixed
// values below it can carry a configured disqualification text.
type ClosedReason string

const (
	ClosedReasonWon       ClosedReason = "won"
	ClosedReasonLost      ClosedReason = "lost"
	ClosedReasonAbandoned ClosedReason = "abandoned"
	ClosedReasonOther     ClosedReason = "other"
)

// ContactOutcome is the result reported for a contact attempt.
type ContactOutcome string

const (
	OutcomeContactMade ContactOutcome = "contact_made"
	OutcomeCompleted   ContactOutcome = "completed"
	OutcomeScheduled   ContactOutcome = "scheduled"
	OutcomeNoContact   ContactOutcome = "no_contact"
	OutcomeVoicemail   ContactOutcome = "voicemail"
)

// Deal is a tracked sales opportunity.
type Deal struct {
	ID         uuid.UUID
	AccountRef string
	ContactRef string
	OwnerRef   string
	Stage      Stage
	Value      DealValue
	Source     Source

	IsClosed     bool
	ClosedReason *ClosedReason
	ClosedNote   *string
	ClosedAt     *time.Time

	Probability int

	TouchCount     int
	LastTouchAt    *time.Time
	LastActivityAt *time.Time
	NextActionAt   *time.Time
	AtRisk         bool

	NoContactStreak      int
	TotalContactAttempts int
	LastContactResult    *ContactOutcome
	LastContactAttemptAt *time.Time

	WalkthroughAcceptedAt *time.Time
	LastQuoteSentAt       *time.Time

	PriorityScore float64

	CreatedAt      time.Time
	StageEnteredAt time.Time
	UpdatedAt      time.Time
}

// NewDealParams holds the facts needed to open a deal from quote activity.
type NewDealParams struct {
	AccountRef string
	ContactRef string
	OwnerRef   string
	Stage      Stage
	Source     Source
	Now        time.Time
}

// NewDeal opens a deal at the given stage with an unknown value.
func NewDeal(p NewDealParams) Deal {
	stage := p.Stage
	if !stage.Valid() || stage.IsTerminal() {
		stage = StageProspecting
	}
	source := p.Source
	if source == "" {
		source = SourceManual
	}
	return Deal{
		ID:             uuid.New(),
		AccountRef:     p.AccountRef,
		ContactRef:     p.ContactRef,
		OwnerRef:       p.OwnerRef,
		Stage:          stage,
		Value:          UnknownValue(),
		Source:         source,
		CreatedAt:      p.Now,
		StageEnteredAt: p.Now,
		UpdatedAt:      p.Now,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
