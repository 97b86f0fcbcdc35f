// Package idempotency maps an inbound event's natural key to the result of
// its first successful application, so redelivered events cause no new writes.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of a reservation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ErrNotOwner is returned when a reservation is completed or released with a
// token that no longer owns it, typically after its lease was taken over.
var ErrNotOwner = errors.New("idempotency reservation is owned by another caller")

// Result is what a completed key resolves to: the deal the event was applied
// to, or a no-op marker.
type Result struct {
	DealID *uuid.UUID
	NoOp   bool
}

// Record is one stored idempotency key.
type Record struct {
	Key         string
	Fingerprint string
	Status      Status
	Token       string
	Result      Result
	LockedUntil time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// claimable reports whether a new reservation with fingerprint may replace r at now.
func (r Record) claimable(fingerprint string, now time.Time) bool {
	if !r.ExpiresAt.After(now) {
		return true
	}
	return r.Status == StatusPending && !r.LockedUntil.After(now) && r.Fingerprint == fingerprint
}

// Store persists idempotency records.
type Store interface {
	// Reserve inserts rec unless a live record holds the key. An expired
	// record, or a pending one whose lease ran out and whose fingerprint
	// matches, is replaced. When the key is held, the holder is returned.
	Reserve(ctx context.Context, rec Record, now time.Time) (Record, bool, error)
	// Complete stores the result of a reservation still owned by token.
	Complete(ctx context.Context, key, token string, result Result, now time.Time) error
	// Release drops a reservation still owned by token.
	Release(ctx context.Context, key, token string) error
	// DeleteExpired removes records that expired at or before before.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
