package service

import (
	"context"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/idempotency"
	"handlit_backend/internal/deals/ports"
	"handlit_backend/internal/deals/scoring"
	"handlit_backend/internal/deals/transport"
	"handlit_backend/platform/apperr"
)

// LogContactAttempt applies the contact cadence to the addressed deal. When
// only a contact is given, its most recently active open deal is used.
func (s *Service) LogContactAttempt(ctx context.Context, actorRef string, req transport.ContactAttemptRequest) (Outcome, error) {
	if err := s.validate(actorRef, req); err != nil {
		return Outcome{}, err
	}

	return s.process(ctx, ingest{
		event: domain.EventContactAttemptLogged,
		key:   idempotency.ContactAttemptKey(req.AttemptID),
		facts: req,
		actor: actorRef,
		apply: func(ctx context.Context, tx ports.DealTx, meta domain.EventMeta) (applied, error) {
			deal, err := s.contactDeal(ctx, tx, req)
			if err != nil {
				return applied{}, err
			}

			attempt := domain.ContactAttempt{Outcome: domain.ContactOutcome(req.Outcome)}
			if req.OccurredAt != nil {
				attempt.AttemptedAt = req.OccurredAt.UTC()
			}
			change := domain.ApplyContactAttempt(deal, attempt, s.cfg.Cadence, meta)
			if change.NoOp {
				return applied{change: change, before: deal}, nil
			}
			change.Deal.PriorityScore = scoring.Score(change.Deal, meta.Now)

			if err := tx.UpdateDeal(ctx, change.Deal); err != nil {
				return applied{}, err
			}
			if err := tx.AppendEvents(ctx, change.Events); err != nil {
				return applied{}, err
			}
			return applied{change: change, before: deal}, nil
		},
	})
}

func (s *Service) contactDeal(ctx context.Context, tx ports.DealTx, req transport.ContactAttemptRequest) (domain.Deal, error) {
	if req.DealID != nil {
		return tx.GetDealForUpdate(ctx, *req.DealID)
	}
	deal, err := tx.FindOpenByContact(ctx, req.ContactRef)
	if err != nil {
		return domain.Deal{}, err
	}
	if deal == nil {
		return domain.Deal{}, apperr.NotFound("no open deal for contact")
	}
	return tx.GetDealForUpdate(ctx, deal.ID)
}
