// Package memory is an in-process implementation of the deals storage ports.
// Transactions are serialized and applied to a private copy of the state that
// replaces the committed state only when the transaction function succeeds.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/ports"

	"github.com/google/uuid"
)

type state struct {
	deals     map[uuid.UUID]domain.Deal
	revisions map[string]domain.QuoteRevision
	events    []domain.DealEvent
	sources   map[string]uuid.UUID // source event id -> deal
	seen      map[string]struct{}  // source event id + type
}

func newState() *state {
	return &state{
		deals:     make(map[uuid.UUID]domain.Deal),
		revisions: make(map[string]domain.QuoteRevision),
		sources:   make(map[string]uuid.UUID),
		seen:      make(map[string]struct{}),
	}
}

func (s *state) clone() *state {
	return &state{
		deals:     maps.Clone(s.deals),
		revisions: maps.Clone(s.revisions),
		events:    append([]domain.DealEvent(nil), s.events...),
		sources:   maps.Clone(s.sources),
		seen:      maps.Clone(s.seen),
	}
}

// Store keeps deals, revisions and the ledger in memory.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *state
}

// New creates an empty store.
func New() *Store {
	return &Store{data: newState()}
}

// InTx runs fn against a staged copy of the state.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ports.DealTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	staged := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &tx{data: staged}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = staged
	s.mu.Unlock()
	return nil
}

// Seed stores a deal outside any transaction. Tests use it to arrange state
// and to simulate a competing writer.
func (s *Store) Seed(deal domain.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.deals[deal.ID] = deal
}

// SeedRevision stores a revision outside any transaction.
func (s *Store) SeedRevision(rev domain.QuoteRevision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.revisions[rev.RevisionID] = rev
}

// SeedEvents appends ledger entries outside any transaction.
func (s *Store) SeedEvents(events ...domain.DealEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if e.SourceEventID != "" {
			s.data.seen[e.SourceEventID+"|"+string(e.Type)] = struct{}{}
			s.data.sources[e.SourceEventID] = e.DealID
		}
		s.data.events = append(s.data.events, e)
	}
}

func (s *Store) GetDeal(_ context.Context, id uuid.UUID) (domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deal, ok := s.data.deals[id]
	if !ok {
		return domain.Deal{}, ports.ErrNotFound
	}
	return deal, nil
}

func (s *Store) ListEvents(_ context.Context, dealID uuid.UUID) ([]domain.DealEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data.deals[dealID]; !ok {
		return nil, ports.ErrNotFound
	}
	out := make([]domain.DealEvent, 0)
	for _, e := range s.data.events {
		if e.DealID == dealID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListOpenDealsByOwner(_ context.Context, ownerRef string) ([]domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Deal, 0)
	for _, d := range s.data.deals {
		if !d.IsClosed && d.OwnerRef == ownerRef {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListStaleOpenDeals(_ context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stale := make([]domain.Deal, 0)
	for _, d := range s.data.deals {
		if !d.IsClosed && d.UpdatedAt.Before(before) {
			stale = append(stale, d)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	ids := make([]uuid.UUID, 0, len(stale))
	for _, d := range stale {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// CountDeals returns the number of stored deals.
func (s *Store) CountDeals() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.deals)
}

type tx struct {
	data *state
}

// LockAccount is satisfied by the store-wide transaction lock.
func (t *tx) LockAccount(context.Context, string) error {
	return nil
}

func (t *tx) FindOpenByAccountContact(_ context.Context, accountRef, contactRef string) (*domain.Deal, error) {
	return t.newest(func(d domain.Deal) bool {
		return d.AccountRef == accountRef && d.ContactRef == contactRef
	}, createdAt), nil
}

func (t *tx) FindOpenByAccountSince(_ context.Context, accountRef string, since time.Time) (*domain.Deal, error) {
	return t.newest(func(d domain.Deal) bool {
		return d.AccountRef == accountRef && !d.CreatedAt.Before(since)
	}, createdAt), nil
}

func (t *tx) FindOpenByContact(_ context.Context, contactRef string) (*domain.Deal, error) {
	return t.newest(func(d domain.Deal) bool {
		return d.ContactRef == contactRef
	}, lastActivity), nil
}

func createdAt(d domain.Deal) time.Time { return d.CreatedAt }

func lastActivity(d domain.Deal) time.Time {
	if d.LastActivityAt != nil {
		return *d.LastActivityAt
	}
	return d.CreatedAt
}

func (t *tx) newest(match func(domain.Deal) bool, key func(domain.Deal) time.Time) *domain.Deal {
	var found *domain.Deal
	for _, d := range t.data.deals {
		if d.IsClosed || !match(d) {
			continue
		}
		if found == nil || key(d).After(key(*found)) ||
			(key(d).Equal(key(*found)) && d.ID.String() < found.ID.String()) {
			candidate := d
			found = &candidate
		}
	}
	return found
}

func (t *tx) GetDealForUpdate(_ context.Context, id uuid.UUID) (domain.Deal, error) {
	deal, ok := t.data.deals[id]
	if !ok {
		return domain.Deal{}, ports.ErrNotFound
	}
	return deal, nil
}

func (t *tx) CreateDeal(_ context.Context, deal domain.Deal) error {
	if !deal.IsClosed {
		for _, d := range t.data.deals {
			if !d.IsClosed && d.AccountRef == deal.AccountRef && d.ContactRef == deal.ContactRef {
				return ports.ErrOpenDealExists
			}
		}
	}
	t.data.deals[deal.ID] = deal
	return nil
}

func (t *tx) UpdateDeal(_ context.Context, deal domain.Deal) error {
	if _, ok := t.data.deals[deal.ID]; !ok {
		return ports.ErrNotFound
	}
	t.data.deals[deal.ID] = deal
	return nil
}

func (t *tx) GetRevision(_ context.Context, revisionID string) (domain.QuoteRevision, error) {
	rev, ok := t.data.revisions[revisionID]
	if !ok {
		return domain.QuoteRevision{}, ports.ErrNotFound
	}
	return rev, nil
}

func (t *tx) UpsertRevision(_ context.Context, rev domain.QuoteRevision) error {
	if existing, ok := t.data.revisions[rev.RevisionID]; ok {
		rev.DealID = existing.DealID
		rev.CreatedAt = existing.CreatedAt
	} else {
		rev.DealID = nil
	}
	t.data.revisions[rev.RevisionID] = rev
	return nil
}

func (t *tx) LinkRevision(_ context.Context, revisionID string, dealID uuid.UUID) error {
	rev, ok := t.data.revisions[revisionID]
	if !ok {
		return ports.ErrNotFound
	}
	if rev.DealID != nil {
		if *rev.DealID != dealID {
			return ports.ErrRevisionLinked
		}
		return nil
	}
	if _, ok := t.data.deals[dealID]; !ok {
		return ports.ErrNotFound
	}
	rev.DealID = &dealID
	t.data.revisions[revisionID] = rev
	return nil
}

func (t *tx) AppendEvents(_ context.Context, events []domain.DealEvent) error {
	for _, e := range events {
		if _, ok := t.data.deals[e.DealID]; !ok {
			return ports.ErrNotFound
		}
		if e.SourceEventID != "" {
			key := e.SourceEventID + "|" + string(e.Type)
			if _, dup := t.data.seen[key]; dup {
				return ports.ErrEventApplied
			}
			t.data.seen[key] = struct{}{}
			t.data.sources[e.SourceEventID] = e.DealID
		}
		t.data.events = append(t.data.events, e)
	}
	return nil
}

func (t *tx) DealForSourceEvent(_ context.Context, sourceEventID string) (uuid.UUID, bool, error) {
	id, ok := t.data.sources[sourceEventID]
	return id, ok, nil
}

var (
	_ ports.DealStore = (*Store)(nil)
	_ ports.DealTx    = (*tx)(nil)
)
