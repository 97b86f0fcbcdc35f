// Package ports defines the storage contract the deals engine depends on.
// The Postgres repository and the in-memory store both implement it, so the
// engine never knows which one it runs against.
package ports

import (
	"context"
	"errors"
	"time"

	"handlit_backend/internal/deals/domain"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a deal or revision does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOpenDealExists is returned by CreateDeal when another open deal for the
	// same account and contact was committed first. The caller re-resolves.
	ErrOpenDealExists = errors.New("an open deal already exists for this account and contact")
	// ErrRevisionLinked is returned when a revision is already linked to a different deal.
	ErrRevisionLinked = errors.New("revision is already linked to another deal")
	// ErrEventApplied is returned by AppendEvents when a concurrent writer
	// already committed ledger entries for the same source event. The caller
	// rolls back and answers from the ledger.
	ErrEventApplied = errors.New("source event was already applied")
)

// DealStore runs engine work atomically and serves read models.
type DealStore interface {
	DealReader
	// InTx runs fn in one transaction. The transaction commits when fn returns
	// nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx DealTx) error) error
}

// DealReader is the read side used by queries and the worklist.
type DealReader interface {
	GetDeal(ctx context.Context, id uuid.UUID) (domain.Deal, error)
	// ListEvents returns a deal's ledger in append order.
	ListEvents(ctx context.Context, dealID uuid.UUID) ([]domain.DealEvent, error)
	ListOpenDealsByOwner(ctx context.Context, ownerRef string) ([]domain.Deal, error)
	// ListStaleOpenDeals returns up to limit open deals not written since
	// before, oldest first.
	ListStaleOpenDeals(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

// DealTx is the set of operations available inside a transaction.
// Finder methods lock the row they return until the transaction ends and
// return nil when nothing matches.
type DealTx interface {
	// LockAccount serializes deal creation for one account until the transaction ends.
	LockAccount(ctx context.Context, accountRef string) error
	FindOpenByAccountContact(ctx context.Context, accountRef, contactRef string) (*domain.Deal, error)
	// FindOpenByAccountSince returns the newest open deal of the account created at or after since.
	FindOpenByAccountSince(ctx context.Context, accountRef string, since time.Time) (*domain.Deal, error)
	// FindOpenByContact returns the open deal of the contact with the most recent activity.
	FindOpenByContact(ctx context.Context, contactRef string) (*domain.Deal, error)
	GetDealForUpdate(ctx context.Context, id uuid.UUID) (domain.Deal, error)
	CreateDeal(ctx context.Context, deal domain.Deal) error
	UpdateDeal(ctx context.Context, deal domain.Deal) error

	GetRevision(ctx context.Context, revisionID string) (domain.QuoteRevision, error)
	// UpsertRevision stores revision facts. It never changes the deal link.
	UpsertRevision(ctx context.Context, rev domain.QuoteRevision) error
	// LinkRevision sets the revision's deal once. Linking to the same deal again is a no-op.
	LinkRevision(ctx context.Context, revisionID string, dealID uuid.UUID) error

	// AppendEvents adds ledger entries. It fails with ErrEventApplied when an
	// entry's (source event, type) pair already exists.
	AppendEvents(ctx context.Context, events []domain.DealEvent) error
	// DealForSourceEvent reports which deal an inbound event was already applied to.
	DealForSourceEvent(ctx context.Context, sourceEventID string) (uuid.UUID, bool, error)
}
