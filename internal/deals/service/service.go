// Package service applies inbound quote and contact events to deals.
// Every ingestion follows the same path: validate, admit through the
// idempotency guard, apply inside one store transaction, then complete the
// guard and notify observers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/idempotency"
	"handlit_backend/internal/deals/ports"
	"handlit_backend/internal/deals/worklist"
	"handlit_backend/internal/events"
	"handlit_backend/platform/apperr"
	"handlit_backend/platform/clock"
	"handlit_backend/platform/config"
	"handlit_backend/platform/logger"
	"handlit_backend/platform/metrics"
	"handlit_backend/platform/validator"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// maxCreateAttempts bounds how often a transaction is rerun after losing a
// race to a concurrent writer.
const maxCreateAttempts = 3

// Config holds the engine's business tunables.
type Config struct {
	DedupeWindow  time.Duration
	FollowUpDelay time.Duration
	Cadence       domain.CadencePolicy
	Worklist      worklist.Config
}

// DefaultConfig returns a 30 day dedupe window, a 24h follow-up and three strikes.
func DefaultConfig() Config {
	return Config{
		DedupeWindow:  30 * 24 * time.Hour,
		FollowUpDelay: 24 * time.Hour,
		Cadence:       domain.DefaultCadencePolicy(),
		Worklist:      worklist.DefaultConfig(),
	}
}

// ConfigFrom builds the engine config from the application config.
func ConfigFrom(lc config.LifecycleConfig, cc config.CadenceConfig, wc config.WorklistConfig) Config {
	cadence := domain.NewCadencePolicy(cc.GetNoContactThreshold(), cc.GetDisqualificationReason())
	return Config{
		DedupeWindow:  lc.GetDedupeWindow(),
		FollowUpDelay: lc.GetFollowUpDelay(),
		Cadence:       cadence,
		Worklist: worklist.Config{
			WarmQuoteWindow:    wc.GetWarmQuoteWindow(),
			IdleWindow:         wc.GetIdleWindow(),
			NoContactThreshold: cadence.Threshold,
		},
	}
}

// Outcome reports what an ingested event did.
type Outcome struct {
	Deal       domain.Deal
	Replayed   bool
	NoOp       bool
	Created    bool
	AutoClosed bool
}

// Service is the deal engine.
type Service struct {
	store    ports.DealStore
	guard    *idempotency.Guard
	val      *validator.Validator
	log      *logger.Logger
	cfg      Config
	resolver Resolver

	clock   clock.Clock
	bus     events.Bus
	metrics *metrics.DealMetrics

	worklists singleflight.Group
}

// New creates a new deals service
func New(store ports.DealStore, guard *idempotency.Guard, val *validator.Validator, log *logger.Logger, cfg Config) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:    store,
		guard:    guard,
		val:      val,
		log:      log,
		cfg:      cfg,
		resolver: Resolver{Window: cfg.DedupeWindow},
		clock:    clock.System(),
	}
}

// SetEventBus injects the bus observers subscribe to.
func (s *Service) SetEventBus(bus events.Bus) {
	s.bus = bus
}

// SetMetrics injects the Prometheus instruments.
func (s *Service) SetMetrics(m *metrics.DealMetrics) {
	s.metrics = m
}

// SetClock replaces the wall clock. Used by tests.
func (s *Service) SetClock(c clock.Clock) {
	s.clock = c
}

// applied is what a transaction produced.
type applied struct {
	change     domain.Change
	before     domain.Deal
	created    bool
	revisionID string
}

// ingest describes one inbound event on its way through the engine.
type ingest struct {
	event domain.EventType
	key   string
	facts any
	actor string
	apply func(ctx context.Context, tx ports.DealTx, meta domain.EventMeta) (applied, error)
}

func (s *Service) validate(actorRef string, req any) error {
	if actorRef == "" {
		return apperr.Validation("actor is required")
	}
	if err := s.val.Struct(req); err != nil {
		return apperr.Validation("validation failed").WithDetails(validator.FieldErrors(err))
	}
	return nil
}

func (s *Service) process(ctx context.Context, in ingest) (Outcome, error) {
	start := time.Now()
	log := s.log.WithContext(ctx)

	fingerprint, err := idempotency.Fingerprint(in.facts)
	if err != nil {
		return Outcome{}, err
	}

	admission, err := s.guard.Admit(ctx, in.key, fingerprint)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.metrics.IdempotencyConflict()
		}
		s.metrics.ObserveEvent(string(in.event), metrics.ResultRejected, time.Since(start))
		return Outcome{}, err
	}
	if !admission.Fresh {
		return s.replay(ctx, in, *admission.Cached, start)
	}

	meta := domain.EventMeta{ActorRef: in.actor, SourceEventID: in.key, Now: s.clock.Now()}
	var (
		res        applied
		ledgerDeal *uuid.UUID
	)
	err = s.inTx(ctx, func(ctx context.Context, tx ports.DealTx) error {
		res, ledgerDeal = applied{}, nil

		// The guard can lose a completed record to expiry or a store outage;
		// the ledger still remembers which deal the event went to.
		id, found, err := tx.DealForSourceEvent(ctx, in.key)
		if err != nil {
			return err
		}
		if found {
			ledgerDeal = &id
			return nil
		}

		res, err = in.apply(ctx, tx, meta)
		return err
	})
	if err != nil {
		if relErr := s.guard.Release(ctx, in.key, admission.Token); relErr != nil {
			log.Warn("idempotency_release_failed", slog.String("key", in.key), slog.String("error", relErr.Error()))
		}
		err = mapStoreError(err)
		result := metrics.ResultFailed
		if !apperr.IsRetryable(err) {
			result = metrics.ResultRejected
		}
		s.metrics.ObserveEvent(string(in.event), result, time.Since(start))
		return Outcome{}, err
	}

	if ledgerDeal != nil {
		cached := idempotency.Result{DealID: ledgerDeal}
		s.complete(ctx, in.key, admission.Token, cached)
		return s.replay(ctx, in, cached, start)
	}

	deal := res.change.Deal
	s.complete(ctx, in.key, admission.Token, idempotency.Result{DealID: &deal.ID, NoOp: res.change.NoOp})

	if res.change.NoOp {
		s.metrics.ObserveEvent(string(in.event), metrics.ResultNoOp, time.Since(start))
		return Outcome{Deal: deal, NoOp: true}, nil
	}

	s.publish(ctx, in, res, meta)
	if res.created {
		s.metrics.DealCreated()
	}
	if res.change.AutoClosed {
		s.metrics.AutoClosed()
	}
	s.metrics.ObserveEvent(string(in.event), metrics.ResultApplied, time.Since(start))
	log.DealTransition(deal.ID.String(), string(in.event), string(res.before.Stage), string(deal.Stage), res.change.Closed)

	return Outcome{
		Deal:       deal,
		Created:    res.created,
		AutoClosed: res.change.AutoClosed,
	}, nil
}

// complete stores the result under the key. The writes are already
// committed, so a failure here only costs a later replay a ledger lookup.
func (s *Service) complete(ctx context.Context, key, token string, result idempotency.Result) {
	if err := s.guard.Complete(ctx, key, token, result); err != nil {
		s.log.WithContext(ctx).Warn("idempotency_complete_failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Service) replay(ctx context.Context, in ingest, cached idempotency.Result, start time.Time) (Outcome, error) {
	out := Outcome{Replayed: true, NoOp: cached.NoOp}
	dealID := ""
	if cached.DealID != nil {
		deal, err := s.store.GetDeal(ctx, *cached.DealID)
		if err != nil {
			return Outcome{}, mapStoreError(err)
		}
		out.Deal = deal
		dealID = deal.ID.String()
	}
	s.metrics.ObserveEvent(string(in.event), metrics.ResultReplayed, time.Since(start))
	s.log.WithContext(ctx).IdempotencyReplay(in.key, dealID)
	return out, nil
}

// inTx reruns the transaction when a concurrent writer committed first:
// either the open deal this one tried to create, or the ledger entries of
// the same source event. The rerun resolves to that deal or replays.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx ports.DealTx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.store.InTx(ctx, fn)
		if attempt >= maxCreateAttempts {
			return err
		}
		switch {
		case errors.Is(err, ports.ErrOpenDealExists):
			s.metrics.DedupeRetry()
			s.log.WithContext(ctx).Debug("deal_create_conflict_retry", slog.Int("attempt", attempt))
		case errors.Is(err, ports.ErrEventApplied):
			s.log.WithContext(ctx).Debug("source_event_applied_retry", slog.Int("attempt", attempt))
		default:
			return err
		}
	}
}

func mapStoreError(err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, ports.ErrNotFound):
		return apperr.NotFound("deal not found")
	case errors.Is(err, ports.ErrRevisionLinked):
		return apperr.Conflict("revision is already linked to another deal")
	case errors.Is(err, ports.ErrOpenDealExists):
		return apperr.Wrap(apperr.KindBusy, "deal creation kept conflicting", err)
	case errors.Is(err, ports.ErrEventApplied):
		return apperr.Wrap(apperr.KindBusy, "event is being applied concurrently", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("deal engine: %w", err)
	}
}

func (s *Service) publish(ctx context.Context, in ingest, res applied, meta domain.EventMeta) {
	if s.bus == nil {
		return
	}
	deal := res.change.Deal

	if res.created {
		s.bus.Publish(ctx, events.DealCreated{
			BaseEvent:  events.NewBaseEventAt(meta.Now),
			DealID:     deal.ID,
			AccountRef: deal.AccountRef,
			ContactRef: deal.ContactRef,
			OwnerRef:   deal.OwnerRef,
			Stage:      string(deal.Stage),
			RevisionID: res.revisionID,
			ActorRef:   meta.ActorRef,
		})
	}

	if res.change.StageChanged {
		s.bus.Publish(ctx, events.DealStageChanged{
			BaseEvent: events.NewBaseEventAt(meta.Now),
			DealID:    deal.ID,
			OwnerRef:  deal.OwnerRef,
			OldStage:  string(res.before.Stage),
			NewStage:  string(deal.Stage),
			Trigger:   string(in.event),
			ActorRef:  meta.ActorRef,
		})
	}

	if res.change.Closed {
		reason := ""
		if deal.ClosedReason != nil {
			reason = string(*deal.ClosedReason)
		}
		s.bus.Publish(ctx, events.DealClosed{
			BaseEvent:    events.NewBaseEventAt(meta.Now),
			DealID:       deal.ID,
			OwnerRef:     deal.OwnerRef,
			Stage:        string(deal.Stage),
			ClosedReason: reason,
			Note:         deal.ClosedNote,
			ActorRef:     meta.ActorRef,
		})
		if res.change.AutoClosed {
			s.bus.Publish(ctx, events.DealAutoDisqualified{
				BaseEvent:     events.NewBaseEventAt(meta.Now),
				DealID:        deal.ID,
				OwnerRef:      deal.OwnerRef,
				ContactRef:    deal.ContactRef,
				Reason:        reason,
				TotalAttempts: deal.TotalContactAttempts,
			})
		}
	}

	if res.change.BecameAtRisk && deal.NextActionAt != nil {
		s.bus.Publish(ctx, events.DealAtRisk{
			BaseEvent:    events.NewBaseEventAt(meta.Now),
			DealID:       deal.ID,
			OwnerRef:     deal.OwnerRef,
			RevisionID:   res.revisionID,
			NextActionAt: *deal.NextActionAt,
		})
	}
}
