package deals

import (
	"context"

	"handlit_backend/internal/events"
	"handlit_backend/platform/logger"
)

// activityLog writes an audit line for the deal events owners act on.
type activityLog struct {
	log *logger.Logger
}

func (a activityLog) Handle(ctx context.Context, event events.Event) error {
	log := a.log.WithContext(ctx).With("eventId", event.EventID().String())
	switch e := event.(type) {
	case events.DealClosed:
		log.Info("deal closed", "dealId", e.DealID, "owner", e.OwnerRef, "stage", e.Stage, "reason", e.ClosedReason)
	case events.DealAutoDisqualified:
		log.Info("deal auto-disqualified", "dealId", e.DealID, "owner", e.OwnerRef, "contact", e.ContactRef, "attempts", e.TotalAttempts)
	case events.DealAtRisk:
		log.Info("deal at risk", "dealId", e.DealID, "owner", e.OwnerRef, "revisionId", e.RevisionID, "nextActionAt", e.NextActionAt)
	}
	return nil
}

// RegisterHandlers subscribes the module's observers to the bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	events.SubscribeAll(bus, activityLog{log: m.log}, events.DealClosed{}, events.DealAutoDisqualified{}, events.DealAtRisk{})
}
