// Package events defines the deal notifications published after a committed
// transition, and re-exports the bus from platform/events.
package events

import (
	"time"

	"handlit_backend/platform/events"
	"handlit_backend/platform/logger"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEventAt = events.NewBaseEventAt
	SubscribeAll   = events.SubscribeAll
)

// NewInMemoryBus creates the process-local bus used by the api and scheduler.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Deals Domain Events
// =============================================================================

// DealCreated is published when a first quote opens a new deal.
type DealCreated struct {
	BaseEvent
	DealID     uuid.UUID `json:"dealId"`
	AccountRef string    `json:"accountRef"`
	ContactRef string    `json:"contactRef"`
	OwnerRef   string    `json:"ownerRef"`
	Stage      string    `json:"stage"`
	RevisionID string    `json:"revisionId"`
	ActorRef   string    `json:"actorRef"`
}

func (e DealCreated) EventName() string { return "deals.deal.created" }

// DealStageChanged is published whenever a deal moves to another stage,
// including the move into a terminal stage.
type DealStageChanged struct {
	BaseEvent
	DealID   uuid.UUID `json:"dealId"`
	OwnerRef string    `json:"ownerRef"`
	OldStage string    `json:"oldStage"`
	NewStage string    `json:"newStage"`
	Trigger  string    `json:"trigger"` // ledger event type that caused the move
	ActorRef string    `json:"actorRef"`
}

func (e DealStageChanged) EventName() string { return "deals.deal.stage_changed" }

// DealClosed is published once when a deal reaches closed_won or closed_lost.
type DealClosed struct {
	BaseEvent
	DealID       uuid.UUID `json:"dealId"`
	OwnerRef     string    `json:"ownerRef"`
	Stage        string    `json:"stage"`
	ClosedReason string    `json:"closedReason"`
	Note         *string   `json:"note,omitempty"`
	ActorRef     string    `json:"actorRef"`
}

func (e DealClosed) EventName() string { return "deals.deal.closed" }

// DealAtRisk is published when an expired quote flags a deal for immediate follow-up.
type DealAtRisk struct {
	BaseEvent
	DealID       uuid.UUID `json:"dealId"`
	OwnerRef     string    `json:"ownerRef"`
	RevisionID   string    `json:"revisionId"`
	NextActionAt time.Time `json:"nextActionAt"`
}

func (e DealAtRisk) EventName() string { return "deals.deal.at_risk" }

// DealAutoDisqualified is published when the contact cadence closes a deal.
// Used for transparency and downstream handlers (e.g. notifications).
type DealAutoDisqualified struct {
	BaseEvent
	DealID        uuid.UUID `json:"dealId"`
	OwnerRef      string    `json:"ownerRef"`
	ContactRef    string    `json:"contactRef"`
	Reason        string    `json:"reason"` // e.g. "no response after 3 attempts"
	TotalAttempts int       `json:"totalAttempts"`
}

func (e DealAutoDisqualified) EventName() string { return "deals.deal.auto_disqualified" }
