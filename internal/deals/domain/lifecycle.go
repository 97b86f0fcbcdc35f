package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventMeta identifies who caused a transition and which inbound event it
// came from. Every ledger entry produced by one inbound event shares it.
type EventMeta struct {
	ActorRef      string
	SourceEventID string
	Now           time.Time
}

// Change is the result of applying one inbound event to a deal.
type Change struct {
	Deal         Deal
	Events       []DealEvent
	NoOp         bool
	StageChanged bool
	Closed       bool
	AutoClosed   bool
	BecameAtRisk bool
}

func noOp(d Deal) Change {
	return Change{Deal: d, NoOp: true}
}

func (c *Change) emit(meta EventMeta, t EventType, old, next EventValue) {
	c.Events = append(c.Events, DealEvent{
		ID:            uuid.New(),
		DealID:        c.Deal.ID,
		Type:          t,
		Old:           old,
		New:           next,
		ActorRef:      meta.ActorRef,
		SourceEventID: meta.SourceEventID,
		OccurredAt:    meta.Now,
	})
}

func (c *Change) moveStage(meta EventMeta, target Stage) {
	old := StageValue{Stage: c.Deal.Stage, EnteredAt: c.Deal.StageEnteredAt}
	c.Deal.Stage = target
	c.Deal.StageEnteredAt = meta.Now
	c.StageChanged = true
	c.emit(meta, EventStageChanged, old, StageValue{Stage: target, EnteredAt: meta.Now})
}

func (c *Change) applyValue(meta EventMeta, incoming DealValue) {
	next, changed := ApplyValuePrecedence(c.Deal.Value, incoming)
	if !changed {
		return
	}
	old := SnapshotValue(c.Deal.Value)
	c.Deal.Value = next
	c.emit(meta, EventValueChanged, old, SnapshotValue(next))
}

// close moves the deal to a terminal stage. The caller emits the event that
// explains the closure; close returns its old and new payloads.
func (c *Change) close(meta EventMeta, stage Stage, reason ClosedReason, note *string) (ClosureValue, ClosureValue) {
	old := ClosureValue{Stage: c.Deal.Stage, IsClosed: c.Deal.IsClosed, Reason: c.Deal.ClosedReason, Note: c.Deal.ClosedNote}
	c.moveStage(meta, stage)
	c.Deal.IsClosed = true
	c.Deal.ClosedReason = &reason
	c.Deal.ClosedNote = note
	c.Deal.ClosedAt = timePtr(meta.Now)
	c.Deal.NextActionAt = nil
	c.Closed = true
	return old, ClosureValue{Stage: stage, IsClosed: true, Reason: &reason, Note: note}
}

// OpenDealFromQuote creates a deal for a first quote on an account/contact pair.
// The deal starts at the revision's target stage.
func OpenDealFromQuote(p NewDealParams, revisionID string, meta EventMeta) Change {
	p.Source = SourceQuoteAuto
	p.Now = meta.Now
	c := Change{Deal: NewDeal(p)}
	c.emit(meta, EventDealCreated, nil, CreationValue{
		AccountRef: c.Deal.AccountRef,
		ContactRef: c.Deal.ContactRef,
		OwnerRef:   c.Deal.OwnerRef,
		Source:     c.Deal.Source,
		Stage:      c.Deal.Stage,
		RevisionID: revisionID,
	})
	return c
}

// QuoteSent carries the facts of a transmitted revision.
type QuoteSent struct {
	RevisionID     string
	RevisionNumber int
	RevisionType   RevisionType
	Value          DealValue
	FollowUpDelay  time.Duration
}

// ApplyQuoteSent advances the stage if the revision maps to a later one,
// merges the revision value and schedules the follow-up.
func ApplyQuoteSent(d Deal, in QuoteSent, meta EventMeta) Change {
	if d.IsClosed {
		return noOp(d)
	}
	c := Change{Deal: d}
	old := ActivityValue{LastActivityAt: copyTime(d.LastActivityAt), NextActionAt: copyTime(d.NextActionAt)}

	c.Deal.LastActivityAt = timePtr(meta.Now)
	c.Deal.NextActionAt = timePtr(meta.Now.Add(in.FollowUpDelay))
	c.Deal.LastQuoteSentAt = timePtr(meta.Now)
	c.emit(meta, EventQuoteSent, old, ActivityValue{
		RevisionID:     in.RevisionID,
		RevisionNumber: in.RevisionNumber,
		RevisionType:   in.RevisionType,
		LastActivityAt: c.Deal.LastActivityAt,
		NextActionAt:   c.Deal.NextActionAt,
	})

	if target := TargetStageForRevision(in.RevisionType); ShouldAdvance(c.Deal.Stage, target) {
		c.moveStage(meta, target)
	}
	c.applyValue(meta, in.Value)

	c.Deal.UpdatedAt = meta.Now
	return c
}

// ApplyQuoteViewed records customer activity without touching the stage.
func ApplyQuoteViewed(d Deal, rev QuoteRevision, meta EventMeta) Change {
	if d.IsClosed {
		return noOp(d)
	}
	c := Change{Deal: d}
	old := ActivityValue{LastActivityAt: copyTime(d.LastActivityAt)}
	c.Deal.LastActivityAt = timePtr(meta.Now)
	c.Deal.UpdatedAt = meta.Now
	c.emit(meta, EventQuoteViewed, old, ActivityValue{
		RevisionID:     rev.RevisionID,
		RevisionNumber: rev.RevisionNumber,
		RevisionType:   rev.Type,
		LastActivityAt: c.Deal.LastActivityAt,
	})
	return c
}

// QuoteAccepted carries the accepted revision and an optional binding total.
type QuoteAccepted struct {
	Revision     QuoteRevision
	BindingTotal *decimal.Decimal
}

// ApplyQuoteAccepted closes the deal as won, overwriting the value with the
// binding total when one is known. Accepting a walkthrough proposal is a
// commitment to proceed rather than a sale: it records the acceptance and
// moves the deal to qualification without closing it.
func ApplyQuoteAccepted(d Deal, in QuoteAccepted, meta EventMeta) Change {
	if d.IsClosed {
		return noOp(d)
	}
	c := Change{Deal: d}
	c.Deal.LastActivityAt = timePtr(meta.Now)

	if in.Revision.Type == RevisionWalkthroughProposal {
		old := ActivityValue{AcceptedAt: copyTime(d.WalkthroughAcceptedAt), NextActionAt: copyTime(d.NextActionAt)}
		c.Deal.WalkthroughAcceptedAt = timePtr(meta.Now)
		c.emit(meta, EventQuoteAccepted, old, ActivityValue{
			RevisionID:     in.Revision.RevisionID,
			RevisionNumber: in.Revision.RevisionNumber,
			RevisionType:   in.Revision.Type,
			LastActivityAt: c.Deal.LastActivityAt,
			AcceptedAt:     c.Deal.WalkthroughAcceptedAt,
			NextActionAt:   c.Deal.NextActionAt,
		})
		if ShouldAdvance(c.Deal.Stage, StageQualification) {
			c.moveStage(meta, StageQualification)
		}
		c.Deal.UpdatedAt = meta.Now
		return c
	}

	binding := in.BindingTotal
	if binding == nil && in.Revision.Value.Kind == ValueBinding && in.Revision.Value.Amount.Valid {
		binding = &in.Revision.Value.Amount.Decimal
	}
	if binding != nil {
		c.applyValue(meta, BindingValue(*binding))
	}

	old, closed := c.close(meta, StageClosedWon, ClosedReasonWon, nil)
	c.emit(meta, EventQuoteAccepted, old, closed)
	c.Deal.UpdatedAt = meta.Now
	return c
}

// ApplyQuoteDeclined closes the deal as lost and keeps the customer's reason.
func ApplyQuoteDeclined(d Deal, reason string, meta EventMeta) Change {
	if d.IsClosed {
		return noOp(d)
	}
	c := Change{Deal: d}
	var note *string
	if reason != "" {
		note = &reason
	}
	c.Deal.LastActivityAt = timePtr(meta.Now)
	old, closed := c.close(meta, StageClosedLost, ClosedReasonLost, note)
	c.emit(meta, EventQuoteDeclined, old, closed)
	c.Deal.UpdatedAt = meta.Now
	return c
}

// ApplyQuoteExpired flags the deal at risk and demands an immediate follow-up.
// Expiry never closes a deal.
func ApplyQuoteExpired(d Deal, meta EventMeta) Change {
	if d.IsClosed {
		return noOp(d)
	}
	c := Change{Deal: d, BecameAtRisk: !d.AtRisk}
	old := RiskValue{AtRisk: d.AtRisk, NextActionAt: copyTime(d.NextActionAt)}
	c.Deal.AtRisk = true
	c.Deal.NextActionAt = timePtr(meta.Now)
	c.Deal.UpdatedAt = meta.Now
	c.emit(meta, EventQuoteExpired, old, RiskValue{AtRisk: true, NextActionAt: c.Deal.NextActionAt})
	return c
}
