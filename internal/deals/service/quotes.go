package service

import (
	"context"
	"errors"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/idempotency"
	"handlit_backend/internal/deals/ports"
	"handlit_backend/internal/deals/scoring"
	"handlit_backend/internal/deals/transport"
	"handlit_backend/platform/apperr"
	"handlit_backend/platform/sanitize"
)

// QuoteSent links a transmitted revision to a deal, creating the deal when
// neither the revision nor the resolver knows one.
func (s *Service) QuoteSent(ctx context.Context, actorRef string, req transport.QuoteSentRequest) (Outcome, error) {
	if err := s.validate(actorRef, req); err != nil {
		return Outcome{}, err
	}
	value, err := valueFromInput(req.Value)
	if err != nil {
		return Outcome{}, err
	}

	return s.process(ctx, ingest{
		event: domain.EventQuoteSent,
		key:   idempotency.QuoteEventKey(req.RevisionID, req.RevisionNumber, string(domain.EventQuoteSent)),
		facts: req,
		actor: actorRef,
		apply: func(ctx context.Context, tx ports.DealTx, meta domain.EventMeta) (applied, error) {
			return s.applyQuoteSent(ctx, tx, req, value, meta)
		},
	})
}

func (s *Service) applyQuoteSent(ctx context.Context, tx ports.DealTx, req transport.QuoteSentRequest, value domain.DealValue, meta domain.EventMeta) (applied, error) {
	revType := domain.RevisionType(req.RevisionType)

	rev, err := tx.GetRevision(ctx, req.RevisionID)
	known := err == nil
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return applied{}, err
	}

	var (
		deal    domain.Deal
		opening []domain.DealEvent
		created bool
	)
	if known && rev.IsLinked() {
		deal, err = tx.GetDealForUpdate(ctx, *rev.DealID)
		if err != nil {
			return applied{}, err
		}
		if deal.IsClosed {
			return applied{change: domain.Change{Deal: deal, NoOp: true}, before: deal, revisionID: req.RevisionID}, nil
		}
	} else {
		if req.AccountRef == "" || req.ContactRef == "" || req.OwnerRef == "" {
			return applied{}, apperr.Validation("accountRef, contactRef and ownerRef are required for a revision without a deal")
		}
		found, err := s.resolver.Resolve(ctx, tx, ResolveRequest{
			AccountRef: req.AccountRef,
			ContactRef: req.ContactRef,
			OwnerRef:   req.OwnerRef,
		}, meta.Now)
		if err != nil {
			return applied{}, err
		}
		if found != nil {
			deal = *found
		} else {
			open := domain.OpenDealFromQuote(domain.NewDealParams{
				AccountRef: req.AccountRef,
				ContactRef: req.ContactRef,
				OwnerRef:   req.OwnerRef,
				Stage:      domain.TargetStageForRevision(revType),
			}, req.RevisionID, meta)
			deal, opening, created = open.Deal, open.Events, true
		}
	}

	before := deal
	change := domain.ApplyQuoteSent(deal, domain.QuoteSent{
		RevisionID:     req.RevisionID,
		RevisionNumber: req.RevisionNumber,
		RevisionType:   revType,
		Value:          value,
		FollowUpDelay:  s.cfg.FollowUpDelay,
	}, meta)
	change.Events = append(opening, change.Events...)
	change.Deal.PriorityScore = scoring.Score(change.Deal, meta.Now)

	if created {
		err = tx.CreateDeal(ctx, change.Deal)
	} else {
		err = tx.UpdateDeal(ctx, change.Deal)
	}
	if err != nil {
		return applied{}, err
	}

	sent := rev
	if !known {
		sent = domain.QuoteRevision{RevisionID: req.RevisionID, CreatedAt: meta.Now}
	}
	sent.RevisionNumber = req.RevisionNumber
	sent.Type = revType
	sent.Status = domain.RevisionStatusSent
	sent.Value = value
	sent.SentAt = &meta.Now
	sent.UpdatedAt = meta.Now
	if err := tx.UpsertRevision(ctx, sent); err != nil {
		return applied{}, err
	}
	if err := tx.LinkRevision(ctx, req.RevisionID, change.Deal.ID); err != nil {
		return applied{}, err
	}
	if err := tx.AppendEvents(ctx, change.Events); err != nil {
		return applied{}, err
	}

	return applied{change: change, before: before, created: created, revisionID: req.RevisionID}, nil
}

// QuoteViewed records that the prospect opened a linked revision.
func (s *Service) QuoteViewed(ctx context.Context, actorRef string, req transport.QuoteViewedRequest) (Outcome, error) {
	if err := s.validate(actorRef, req); err != nil {
		return Outcome{}, err
	}
	return s.process(ctx, ingest{
		event: domain.EventQuoteViewed,
		key:   idempotency.QuoteEventKey(req.RevisionID, req.RevisionNumber, string(domain.EventQuoteViewed)),
		facts: req,
		actor: actorRef,
		apply: s.linkedRevisionStep(req.RevisionID, func(deal domain.Deal, rev *domain.QuoteRevision, meta domain.EventMeta) domain.Change {
			rev.Status = domain.RevisionStatusViewed
			rev.ViewedAt = &meta.Now
			return domain.ApplyQuoteViewed(deal, *rev, meta)
		}),
	})
}

// QuoteAccepted closes the deal of an accepted revision as won. A walkthrough
// proposal acceptance only advances the deal.
func (s *Service) QuoteAccepted(ctx context.Context, actorRef string, req transport.QuoteAcceptedRequest) (Outcome, error) {
	if err := s.validate(actorRef, req); err != nil {
		return Outcome{}, err
	}
	if req.BindingTotal != nil && req.BindingTotal.IsNegative() {
		return Outcome{}, apperr.Validation("bindingTotal must not be negative")
	}
	return s.process(ctx, ingest{
		event: domain.EventQuoteAccepted,
		key:   idempotency.QuoteEventKey(req.RevisionID, req.RevisionNumber, string(domain.EventQuoteAccepted)),
		facts: req,
		actor: actorRef,
		apply: s.linkedRevisionStep(req.RevisionID, func(deal domain.Deal, rev *domain.QuoteRevision, meta domain.EventMeta) domain.Change {
			change := domain.ApplyQuoteAccepted(deal, domain.QuoteAccepted{Revision: *rev, BindingTotal: req.BindingTotal}, meta)
			rev.Status = domain.RevisionStatusAccepted
			rev.AcceptedAt = &meta.Now
			if req.BindingTotal != nil {
				rev.Value = domain.BindingValue(*req.BindingTotal)
			}
			return change
		}),
	})
}

// QuoteDeclined closes the deal of a declined revision as lost.
func (s *Service) QuoteDeclined(ctx context.Context, actorRef string, req transport.QuoteDeclinedRequest) (Outcome, error) {
	if err := s.validate(actorRef, req); err != nil {
		return Outcome{}, err
	}
	return s.process(ctx, ingest{
		event: domain.EventQuoteDeclined,
		key:   idempotency.QuoteEventKey(req.RevisionID, req.RevisionNumber, string(domain.EventQuoteDeclined)),
		facts: req,
		actor: actorRef,
		apply: s.linkedRevisionStep(req.RevisionID, func(deal domain.Deal, rev *domain.QuoteRevision, meta domain.EventMeta) domain.Change {
			rev.Status = domain.RevisionStatusDeclined
			rev.DeclinedAt = &meta.Now
			reason := sanitize.NotePtr(req.Reason)
			rev.DeclineReason = reason
			if reason == nil {
				return domain.ApplyQuoteDeclined(deal, "", meta)
			}
			return domain.ApplyQuoteDeclined(deal, *reason, meta)
		}),
	})
}

// QuoteExpired flags the deal of an expired revision at risk.
func (s *Service) QuoteExpired(ctx context.Context, actorRef string, req transport.QuoteExpiredRequest) (Outcome, error) {
	if err := s.validate(actorRef, req); err != nil {
		return Outcome{}, err
	}
	return s.process(ctx, ingest{
		event: domain.EventQuoteExpired,
		key:   idempotency.QuoteEventKey(req.RevisionID, req.RevisionNumber, string(domain.EventQuoteExpired)),
		facts: req,
		actor: actorRef,
		apply: s.linkedRevisionStep(req.RevisionID, func(deal domain.Deal, rev *domain.QuoteRevision, meta domain.EventMeta) domain.Change {
			rev.Status = domain.RevisionStatusExpired
			rev.ExpiredAt = &meta.Now
			return domain.ApplyQuoteExpired(deal, meta)
		}),
	})
}

// transition applies an event to the deal and updates the revision in place.
type transition func(deal domain.Deal, rev *domain.QuoteRevision, meta domain.EventMeta) domain.Change

// linkedRevisionStep loads a linked revision and its deal, applies the
// transition and persists the result. Closed deals are left untouched.
func (s *Service) linkedRevisionStep(revisionID string, apply transition) func(context.Context, ports.DealTx, domain.EventMeta) (applied, error) {
	return func(ctx context.Context, tx ports.DealTx, meta domain.EventMeta) (applied, error) {
		rev, err := tx.GetRevision(ctx, revisionID)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				return applied{}, apperr.NotFound("revision not found")
			}
			return applied{}, err
		}
		if !rev.IsLinked() {
			return applied{}, apperr.NotFound("revision is not linked to a deal")
		}

		deal, err := tx.GetDealForUpdate(ctx, *rev.DealID)
		if err != nil {
			return applied{}, err
		}

		change := apply(deal, &rev, meta)
		if change.NoOp {
			return applied{change: change, before: deal, revisionID: revisionID}, nil
		}
		change.Deal.PriorityScore = scoring.Score(change.Deal, meta.Now)
		rev.UpdatedAt = meta.Now

		if err := tx.UpdateDeal(ctx, change.Deal); err != nil {
			return applied{}, err
		}
		if err := tx.UpsertRevision(ctx, rev); err != nil {
			return applied{}, err
		}
		if err := tx.AppendEvents(ctx, change.Events); err != nil {
			return applied{}, err
		}
		return applied{change: change, before: deal, revisionID: revisionID}, nil
	}
}

func valueFromInput(in transport.ValueInput) (domain.DealValue, error) {
	var value domain.DealValue
	switch domain.ValueKind(in.Kind) {
	case domain.ValueBinding:
		if in.Amount == nil {
			return domain.DealValue{}, apperr.Validation("binding value requires an amount")
		}
		value = domain.BindingValue(*in.Amount)
	case domain.ValueNonBindingRange:
		if in.RangeLow == nil || in.RangeHigh == nil {
			return domain.DealValue{}, apperr.Validation("non-binding value requires rangeLow and rangeHigh")
		}
		value = domain.RangeValue(*in.RangeLow, *in.RangeHigh)
	default:
		value = domain.UnknownValue()
	}
	if msg := value.Check(); msg != "" {
		return domain.DealValue{}, apperr.Validation(msg)
	}
	return value, nil
}
