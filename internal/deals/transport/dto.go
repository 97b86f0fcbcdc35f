package transport

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// ValueInput is a quoted value as reported by the quoting system.
type ValueInput struct {
	Kind      string           `json:"kind" validate:"omitempty,oneof=binding non_binding_range unknown"`
	Amount    *decimal.Decimal `json:"amount,omitempty" validate:"required_if=Kind binding"`
	RangeLow  *decimal.Decimal `json:"rangeLow,omitempty" validate:"required_if=Kind non_binding_range"`
	RangeHigh *decimal.Decimal `json:"rangeHigh,omitempty" validate:"required_if=Kind non_binding_range"`
}

// RevisionRef names the revision an event is about. Together with the event
// type it forms the event's idempotency key.
type RevisionRef struct {
	RevisionID     string `json:"revisionId" validate:"required,max=200"`
	RevisionNumber int    `json:"revisionNumber" validate:"min=0"`
}

// QuoteSentRequest reports that a revision was transmitted to a prospect.
// AccountRef, ContactRef and OwnerRef are required unless the revision is
// already linked to a deal.
type QuoteSentRequest struct {
	RevisionRef
	RevisionType string     `json:"revisionType" validate:"required,max=64"`
	AccountRef   string     `json:"accountRef" validate:"max=200"`
	ContactRef   string     `json:"contactRef" validate:"max=200"`
	OwnerRef     string     `json:"ownerRef" validate:"max=200"`
	Value        ValueInput `json:"value"`
}

// QuoteViewedRequest reports that a prospect opened a revision.
type QuoteViewedRequest struct {
	RevisionRef
}

// QuoteAcceptedRequest reports an accepted revision with an optional final total.
type QuoteAcceptedRequest struct {
	RevisionRef
	BindingTotal *decimal.Decimal `json:"bindingTotal,omitempty"`
}

// QuoteDeclinedRequest reports a declined revision.
type QuoteDeclinedRequest struct {
	RevisionRef
	Reason string `json:"reason" validate:"max=2000"`
}

// QuoteExpiredRequest reports that a revision passed its validity date.
type QuoteExpiredRequest struct {
	RevisionRef
}

// ContactAttemptRequest logs one attempt to reach a deal's contact. The deal
// is addressed directly or through the contact's open deal.
type ContactAttemptRequest struct {
	AttemptID  string     `json:"attemptId" validate:"required,max=200"`
	DealID     *uuid.UUID `json:"dealId,omitempty" validate:"required_without=ContactRef"`
	ContactRef string     `json:"contactRef,omitempty" validate:"max=200"`
	Outcome    string     `json:"outcome" validate:"required,max=64"`
	OccurredAt *time.Time `json:"occurredAt,omitempty"`
}

// Canonical returns the request with OccurredAt in UTC.
func (r ContactAttemptRequest) Canonical() any {
	if r.OccurredAt != nil {
		at := r.OccurredAt.UTC()
		r.OccurredAt = &at
	}
	return r
}

// WorklistRequest selects an owner's worklist.
type WorklistRequest struct {
	OwnerRef   string `form:"owner" validate:"required,max=200"`
	IncludeAll bool   `form:"includeAll"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// ValueResponse is a deal value.
type ValueResponse struct {
	Kind      string           `json:"kind"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	RangeLow  *decimal.Decimal `json:"rangeLow,omitempty"`
	RangeHigh *decimal.Decimal `json:"rangeHigh,omitempty"`
}

// DealResponse is the public view of a deal.
type DealResponse struct {
	ID                    uuid.UUID     `json:"id"`
	AccountRef            string        `json:"accountRef"`
	ContactRef            string        `json:"contactRef"`
	OwnerRef              string        `json:"ownerRef"`
	Stage                 string        `json:"stage"`
	Value                 ValueResponse `json:"value"`
	Source                string        `json:"source"`
	IsClosed              bool          `json:"isClosed"`
	ClosedReason          *string       `json:"closedReason,omitempty"`
	ClosedNote            *string       `json:"closedNote,omitempty"`
	ClosedAt              *time.Time    `json:"closedAt,omitempty"`
	Probability           int           `json:"probability"`
	TouchCount            int           `json:"touchCount"`
	LastTouchAt           *time.Time    `json:"lastTouchAt,omitempty"`
	LastActivityAt        *time.Time    `json:"lastActivityAt,omitempty"`
	NextActionAt          *time.Time    `json:"nextActionAt,omitempty"`
	AtRisk                bool          `json:"atRisk"`
	NoContactStreak       int           `json:"noContactStreak"`
	TotalContactAttempts  int           `json:"totalContactAttempts"`
	LastContactResult     *string       `json:"lastContactResult,omitempty"`
	LastContactAttemptAt  *time.Time    `json:"lastContactAttemptAt,omitempty"`
	WalkthroughAcceptedAt *time.Time    `json:"walkthroughAcceptedAt,omitempty"`
	LastQuoteSentAt       *time.Time    `json:"lastQuoteSentAt,omitempty"`
	PriorityScore         float64       `json:"priorityScore"`
	CreatedAt             time.Time     `json:"createdAt"`
	StageEnteredAt        time.Time     `json:"stageEnteredAt"`
	UpdatedAt             time.Time     `json:"updatedAt"`
}

// EventResultResponse is returned for every ingested event.
type EventResultResponse struct {
	Deal       *DealResponse `json:"deal,omitempty"`
	Replayed   bool          `json:"replayed"`
	NoOp       bool          `json:"noOp"`
	Created    bool          `json:"created"`
	AutoClosed bool          `json:"autoClosed"`
}

// DealEventResponse is one ledger entry. OldValue and NewValue keep their
// {"kind","data"} envelope so clients can switch on the payload kind.
type DealEventResponse struct {
	ID            uuid.UUID `json:"id"`
	DealID        uuid.UUID `json:"dealId"`
	EventType     string    `json:"eventType"`
	OldValue      any       `json:"oldValue"`
	NewValue      any       `json:"newValue"`
	ActorRef      string    `json:"actorRef"`
	SourceEventID string    `json:"sourceEventId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// DealEventListResponse wraps a deal's ledger.
type DealEventListResponse struct {
	Items []DealEventResponse `json:"items"`
}

// ScoreBreakdownResponse explains a priority score.
type ScoreBreakdownResponse struct {
	ValueWeighted   float64 `json:"valueWeighted"`
	StageMultiplier float64 `json:"stageMultiplier"`
	TouchBonus      float64 `json:"touchBonus"`
	CloseLikelihood float64 `json:"closeLikelihood"`
	DaysSinceTouch  float64 `json:"daysSinceTouch"`
	UrgencyDecay    float64 `json:"urgencyDecay"`
	Score           float64 `json:"score"`
	Version         string  `json:"version"`
}

// WorklistItemResponse is one ranked deal on a worklist.
type WorklistItemResponse struct {
	Deal    DealResponse           `json:"deal"`
	Tier    int                    `json:"tier"`
	Reasons []string               `json:"reasons"`
	Score   ScoreBreakdownResponse `json:"score"`
}

// WorklistResponse is an owner's ranked worklist.
type WorklistResponse struct {
	OwnerRef    string                 `json:"ownerRef"`
	GeneratedAt time.Time              `json:"generatedAt"`
	Items       []WorklistItemResponse `json:"items"`
}

// RescoreResponse is the result of recomputing a deal's score.
type RescoreResponse struct {
	Deal  DealResponse           `json:"deal"`
	Score ScoreBreakdownResponse `json:"score"`
}

// AcceptedResponse is returned when an event was queued instead of applied.
type AcceptedResponse struct {
	TaskID string `json:"taskId"`
	Queue  string `json:"queue"`
}
