package domain

import (
	"time"

	"github.com/google/uuid"
)

// RevisionType classifies a quote revision.
type RevisionType string

const (
	RevisionWalkthroughProposal RevisionType = "walkthrough_proposal"
	RevisionFinalQuote          RevisionType = "final_quote"
)

// TargetStageForRevision maps a revision type to the stage a deal should reach
// when that revision is sent. Unrecognized types map to qualification.
func TargetStageForRevision(t RevisionType) Stage {
	switch t {
	case RevisionWalkthroughProposal:
		return StageProspecting
	case RevisionFinalQuote:
		return StageProposal
	default:
		return StageQualification
	}
}

// RevisionStatus tracks the last customer-facing state of a revision.
type RevisionStatus string

const (
	RevisionStatusSent     RevisionStatus = "sent"
	RevisionStatusViewed   RevisionStatus = "viewed"
	RevisionStatusAccepted RevisionStatus = "accepted"
	RevisionStatusDeclined RevisionStatus = "declined"
	RevisionStatusExpired  RevisionStatus = "expired"
)

// QuoteRevision is the locally tracked snapshot of an externally owned quote
// revision. DealID moves from nil to a deal exactly once.
type QuoteRevision struct {
	RevisionID     string
	RevisionNumber int
	Type           RevisionType
	Status         RevisionStatus
	Value          DealValue
	DealID         *uuid.UUID
	SentAt         *time.Time
	ViewedAt       *time.Time
	AcceptedAt     *time.Time
	DeclinedAt     *time.Time
	ExpiredAt      *time.Time
	DeclineReason  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsLinked reports whether the revision already belongs to a deal.
func (r QuoteRevision) IsLinked() bool {
	return r.DealID != nil
}
