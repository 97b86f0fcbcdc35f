package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names an entry in the deal ledger.
type EventType string

const (
	EventDealCreated          EventType = "deal_created"
	EventQuoteSent            EventType = "quote_sent"
	EventQuoteViewed          EventType = "quote_viewed"
	EventQuoteAccepted        EventType = "quote_accepted"
	EventQuoteDeclined        EventType = "quote_declined"
	EventQuoteExpired         EventType = "quote_expired"
	EventStageChanged         EventType = "stage_changed"
	EventValueChanged         EventType = "value_changed"
	EventContactAttemptLogged EventType = "contact_attempt_logged"
	EventAutoClosed           EventType = "auto_closed"
)

// DealEvent is one append-only ledger entry.
type DealEvent struct {
	ID            uuid.UUID
	DealID        uuid.UUID
	Type          EventType
	Old           EventValue
	New           EventValue
	ActorRef      string
	SourceEventID string
	OccurredAt    time.Time
}

// EventValue is the typed payload stored in DealEvent.Old and DealEvent.New.
// The set of implementations is closed to this package.
type EventValue interface {
	eventValueKind() string
}

// StageValue captures a stage and when it was entered.
type StageValue struct {
	Stage     Stage     `json:"stage"`
	EnteredAt time.Time `json:"enteredAt"`
}

// ValueSnapshot captures a deal value.
type ValueSnapshot struct {
	Kind      ValueKind           `json:"kind"`
	Amount    decimal.NullDecimal `json:"amount"`
	RangeLow  decimal.NullDecimal `json:"rangeLow"`
	RangeHigh decimal.NullDecimal `json:"rangeHigh"`
}

// ClosureValue captures the open/closed state of a deal.
type ClosureValue struct {
	Stage    Stage         `json:"stage"`
	IsClosed bool          `json:"isClosed"`
	Reason   *ClosedReason `json:"reason,omitempty"`
	Note     *string       `json:"note,omitempty"`
}

// ActivityValue captures quote activity on a deal.
type ActivityValue struct {
	RevisionID     string       `json:"revisionId,omitempty"`
	RevisionNumber int          `json:"revisionNumber,omitempty"`
	RevisionType   RevisionType `json:"revisionType,omitempty"`
	LastActivityAt *time.Time   `json:"lastActivityAt,omitempty"`
	NextActionAt   *time.Time   `json:"nextActionAt,omitempty"`
	AcceptedAt     *time.Time   `json:"acceptedAt,omitempty"`
}

// ContactValue captures cadence counters around a contact attempt.
type ContactValue struct {
	Outcome         *ContactOutcome `json:"outcome,omitempty"`
	NoContactStreak int             `json:"noContactStreak"`
	TotalAttempts   int             `json:"totalAttempts"`
	TouchCount      int             `json:"touchCount"`
	AttemptedAt     *time.Time      `json:"attemptedAt,omitempty"`
}

// RiskValue captures the at-risk flag and the forced follow-up.
type RiskValue struct {
	AtRisk       bool       `json:"atRisk"`
	NextActionAt *time.Time `json:"nextActionAt,omitempty"`
}

// CreationValue captures the facts a deal was opened with.
type CreationValue struct {
	AccountRef string `json:"accountRef"`
	ContactRef string `json:"contactRef"`
	OwnerRef   string `json:"ownerRef"`
	Source     Source `json:"source"`
	Stage      Stage  `json:"stage"`
	RevisionID string `json:"revisionId,omitempty"`
}

const (
	kindStage    = "stage"
	kindValue    = "value"
	kindClosure  = "closure"
	kindActivity = "activity"
	kindContact  = "contact"
	kindRisk     = "risk"
	kindCreation = "creation"
)

func (StageValue) eventValueKind() string    { return kindStage }
func (ValueSnapshot) eventValueKind() string { return kindValue }
func (ClosureValue) eventValueKind() string  { return kindClosure }
func (ActivityValue) eventValueKind() string { return kindActivity }
func (ContactValue) eventValueKind() string  { return kindContact }
func (RiskValue) eventValueKind() string     { return kindRisk }
func (CreationValue) eventValueKind() string { return kindCreation }

// SnapshotValue converts a DealValue into its ledger form.
func SnapshotValue(v DealValue) ValueSnapshot {
	return ValueSnapshot{Kind: v.normalizedKind(), Amount: v.Amount, RangeLow: v.RangeLow, RangeHigh: v.RangeHigh}
}

// DealValue converts the snapshot back into a DealValue.
func (s ValueSnapshot) DealValue() DealValue {
	return DealValue{Kind: s.Kind, Amount: s.Amount, RangeLow: s.RangeLow, RangeHigh: s.RangeHigh}
}

type valueEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeEventValue serializes v as a {"kind","data"} envelope. A nil value encodes to nil.
func EncodeEventValue(v EventValue) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s event value: %w", v.eventValueKind(), err)
	}
	return json.Marshal(valueEnvelope{Kind: v.eventValueKind(), Data: data})
}

// DecodeEventValue restores a value written by EncodeEventValue.
func DecodeEventValue(raw []byte) (EventValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env valueEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode event value envelope: %w", err)
	}

	var target EventValue
	switch env.Kind {
	case kindStage:
		var v StageValue
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		target = v
	case kindValue:
		var v ValueSnapshot
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		target = v
	case kindClosure:
		var v ClosureValue
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		target = v
	case kindActivity:
		var v ActivityValue
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		target = v
	case kindContact:
		var v ContactValue
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		target = v
	case kindRisk:
		var v RiskValue
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		target = v
	case kindCreation:
		var v CreationValue
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, err
		}
		target = v
	default:
		return nil, fmt.Errorf("unknown event value kind %q", env.Kind)
	}
	return target, nil
}
