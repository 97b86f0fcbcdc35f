package service

import (
	"context"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/ports"
	"handlit_backend/internal/deals/scoring"
	"handlit_backend/internal/deals/worklist"
	"handlit_backend/platform/apperr"

	"github.com/google/uuid"
)

// GetDeal returns the current state of a deal.
func (s *Service) GetDeal(ctx context.Context, id uuid.UUID) (domain.Deal, error) {
	deal, err := s.store.GetDeal(ctx, id)
	if err != nil {
		return domain.Deal{}, mapStoreError(err)
	}
	return deal, nil
}

// ListEvents returns a deal's ledger in append order.
func (s *Service) ListEvents(ctx context.Context, id uuid.UUID) ([]domain.DealEvent, error) {
	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return events, nil
}

// WorklistView is an owner's ranked worklist at one instant.
type WorklistView struct {
	OwnerRef    string
	GeneratedAt time.Time
	Items       []worklist.Item
}

// Worklist ranks the owner's open deals. Concurrent requests for the same
// view share one read.
func (s *Service) Worklist(ctx context.Context, ownerRef string, includeAll bool) (WorklistView, error) {
	if ownerRef == "" {
		return WorklistView{}, apperr.Validation("owner is required")
	}

	key := ownerRef
	if includeAll {
		key += "|all"
	}
	// The read is shared, so one caller going away must not fail the others.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.worklists.Do(key, func() (any, error) {
		deals, err := s.store.ListOpenDealsByOwner(loadCtx, ownerRef)
		if err != nil {
			return nil, mapStoreError(err)
		}
		now := s.clock.Now()
		return WorklistView{
			OwnerRef:    ownerRef,
			GeneratedAt: now,
			Items:       worklist.Assemble(deals, now, s.cfg.Worklist, includeAll),
		}, nil
	})
	if err != nil {
		return WorklistView{}, err
	}
	return v.(WorklistView), nil
}

// Rescore recomputes a deal's decayed score and stores it. Closed deals are
// scored but not written. Writing an open deal also marks it fresh for
// StaleDeals.
func (s *Service) Rescore(ctx context.Context, id uuid.UUID) (domain.Deal, scoring.Breakdown, error) {
	var (
		deal      domain.Deal
		breakdown scoring.Breakdown
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx ports.DealTx) error {
		current, err := tx.GetDealForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		breakdown = scoring.Explain(current, now)
		deal = current
		if current.IsClosed {
			return nil
		}
		deal.PriorityScore = breakdown.Score
		deal.UpdatedAt = now
		return tx.UpdateDeal(ctx, deal)
	})
	if err != nil {
		return domain.Deal{}, scoring.Breakdown{}, mapStoreError(err)
	}
	return deal, breakdown, nil
}

// StaleDeals returns open deals whose stored score is older than maxAge.
func (s *Service) StaleDeals(ctx context.Context, maxAge time.Duration, limit int) ([]uuid.UUID, error) {
	ids, err := s.store.ListStaleOpenDeals(ctx, s.clock.Now().Add(-maxAge), limit)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return ids, nil
}
