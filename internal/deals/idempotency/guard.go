package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"handlit_backend/platform/apperr"
	"handlit_backend/platform/clock"
	"handlit_backend/platform/logger"

	"github.com/google/uuid"
)

// Options tunes a Guard.
type Options struct {
	// Retention is how long a key is remembered.
	Retention time.Duration
	// Lease bounds how long a pending reservation blocks others before it
	// can be taken over.
	Lease time.Duration
	// Wait is how long Admit polls a pending reservation before giving up.
	Wait         time.Duration
	PollInterval time.Duration
}

// DefaultOptions returns a 7 day retention, a 30s lease and a 2s wait.
func DefaultOptions() Options {
	return Options{
		Retention:    7 * 24 * time.Hour,
		Lease:        30 * time.Second,
		Wait:         2 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Retention <= 0 {
		o.Retention = def.Retention
	}
	if o.Lease <= 0 {
		o.Lease = def.Lease
	}
	if o.Wait < 0 {
		o.Wait = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	return o
}

// Admission is the answer to Admit. Fresh admissions carry the token that
// must be passed to Complete or Release; replays carry the stored result.
type Admission struct {
	Fresh  bool
	Token  string
	Cached *Result
}

// Guard implements insert-if-absent admission with block-and-poll for
// callers that lose the reservation race.
type Guard struct {
	store Store
	clock clock.Clock
	log   *logger.Logger
	opts  Options
}

func NewGuard(store Store, clk clock.Clock, log *logger.Logger, opts Options) *Guard {
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Guard{store: store, clock: clk, log: log, opts: opts.withDefaults()}
}

// Admit reserves key for the caller or returns the result stored under it.
// A key already used with a different fingerprint is a Conflict. A key still
// pending after the wait budget is Busy and the sender should retry later.
func (g *Guard) Admit(ctx context.Context, key, fingerprint string) (Admission, error) {
	if key == "" {
		return Admission{}, apperr.Validation("idempotency key is required")
	}

	deadline := time.Now().Add(g.opts.Wait)
	for {
		now := g.clock.Now()
		token := uuid.NewString()
		existing, reserved, err := g.store.Reserve(ctx, Record{
			Key:         key,
			Fingerprint: fingerprint,
			Status:      StatusPending,
			Token:       token,
			LockedUntil: now.Add(g.opts.Lease),
			ExpiresAt:   now.Add(g.opts.Retention),
			CreatedAt:   now,
		}, now)
		if err != nil {
			return Admission{}, apperr.Wrap(apperr.KindInternal, "failed to reserve idempotency key", err).WithOp("idempotency.Admit")
		}
		if reserved {
			return Admission{Fresh: true, Token: token}, nil
		}

		if existing.Fingerprint != fingerprint {
			g.log.WithContext(ctx).Error("idempotency_key_reused",
				slog.String("key", key),
				slog.String("stored_fingerprint", existing.Fingerprint),
				slog.String("fingerprint", fingerprint),
			)
			return Admission{}, apperr.Conflict("idempotency key was already used with a different payload").WithOp("idempotency.Admit")
		}

		if existing.Status == StatusCompleted {
			result := existing.Result
			return Admission{Cached: &result}, nil
		}

		if !time.Now().Before(deadline) {
			return Admission{}, apperr.Busy("event is still being processed").WithOp("idempotency.Admit")
		}

		timer := time.NewTimer(g.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Admission{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// Complete records the result of a fresh admission.
func (g *Guard) Complete(ctx context.Context, key, token string, result Result) error {
	if err := g.store.Complete(ctx, key, token, result, g.clock.Now()); err != nil {
		if errors.Is(err, ErrNotOwner) {
			g.log.WithContext(ctx).Warn("idempotency_lease_lost", slog.String("key", key))
		}
		return err
	}
	return nil
}

// Release drops a fresh admission so a corrected retry can proceed.
func (g *Guard) Release(ctx context.Context, key, token string) error {
	return g.store.Release(ctx, key, token)
}

// Purge deletes expired records and returns how many were removed.
func (g *Guard) Purge(ctx context.Context) (int64, error) {
	return g.store.DeleteExpired(ctx, g.clock.Now())
}
