package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func newDeal(account, contact string, createdAt time.Time) domain.Deal {
	return domain.NewDeal(domain.NewDealParams{
		AccountRef: account,
		ContactRef: contact,
		OwnerRef:   "rep-1",
		Stage:      domain.StageProspecting,
		Source:     domain.SourceQuoteAuto,
		Now:        createdAt,
	})
}

func TestInTxRollsBackOnError(t *testing.T) {
	store := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context, tx ports.DealTx) error {
		require.NoError(t, tx.CreateDeal(ctx, newDeal("acct", "c1", t0)))
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.CountDeals())
}

func TestCreateDealRejectsSecondOpenDealForPair(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.InTx(ctx, func(ctx context.Context, tx ports.DealTx) error {
		if err := tx.CreateDeal(ctx, newDeal("acct", "c1", t0)); err != nil {
			return err
		}
		return tx.CreateDeal(ctx, newDeal("acct", "c1", t0.Add(time.Minute)))
	})
	require.ErrorIs(t, err, ports.ErrOpenDealExists)

	closed := newDeal("acct", "c1", t0)
	closed.IsClosed = true
	store.Seed(closed)
	err = store.InTx(ctx, func(ctx context.Context, tx ports.DealTx) error {
		return tx.CreateDeal(ctx, newDeal("acct", "c1", t0.Add(time.Hour)))
	})
	require.NoError(t, err, "closed deals do not block a new open deal")
}

func TestFindersSkipClosedDealsAndRespectWindow(t *testing.T) {
	store := New()
	ctx := context.Background()

	old := newDeal("acct", "c1", t0)
	recent := newDeal("acct", "c2", t0.Add(20*24*time.Hour))
	closed := newDeal("acct", "c3", t0.Add(25*24*time.Hour))
	closed.IsClosed = true
	store.Seed(old)
	store.Seed(recent)
	store.Seed(closed)

	_ = store.InTx(ctx, func(ctx context.Context, tx ports.DealTx) error {
		got, err := tx.FindOpenByAccountContact(ctx, "acct", "c1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, old.ID, got.ID)

		got, err = tx.FindOpenByAccountSince(ctx, "acct", t0.Add(10*24*time.Hour))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, recent.ID, got.ID)

		got, err = tx.FindOpenByAccountContact(ctx, "acct", "c3")
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	})
}

func TestLinkRevisionIsMonotonic(t *testing.T) {
	store := New()
	ctx := context.Background()
	first := newDeal("acct", "c1", t0)
	second := newDeal("acct", "c2", t0)
	store.Seed(first)
	store.Seed(second)

	err := store.InTx(ctx, func(ctx context.Context, tx ports.DealTx) error {
		require.NoError(t, tx.UpsertRevision(ctx, domain.QuoteRevision{RevisionID: "rev-1", RevisionNumber: 1, CreatedAt: t0}))
		require.NoError(t, tx.LinkRevision(ctx, "rev-1", first.ID))
		require.NoError(t, tx.LinkRevision(ctx, "rev-1", first.ID))

		other := uuid.New()
		require.NoError(t, tx.UpsertRevision(ctx, domain.QuoteRevision{RevisionID: "rev-1", RevisionNumber: 1, DealID: &other}))
		rev, err := tx.GetRevision(ctx, "rev-1")
		require.NoError(t, err)
		require.NotNil(t, rev.DealID)
		assert.Equal(t, first.ID, *rev.DealID, "upsert must not move the link")

		return tx.LinkRevision(ctx, "rev-1", second.ID)
	})
	require.ErrorIs(t, err, ports.ErrRevisionLinked)
}

func TestAppendEventsRejectsDuplicateSourceEvents(t *testing.T) {
	store := New()
	ctx := context.Background()
	deal := newDeal("acct", "c1", t0)
	store.Seed(deal)

	event := domain.DealEvent{ID: uuid.New(), DealID: deal.ID, Type: domain.EventQuoteSent, SourceEventID: "quote:rev-1:1:quote_sent", OccurredAt: t0}
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ports.DealTx) error {
		return tx.AppendEvents(ctx, []domain.DealEvent{event})
	}))

	err := store.InTx(ctx, func(ctx context.Context, tx ports.DealTx) error {
		moved := deal
		moved.Stage = domain.StageProposal
		require.NoError(t, tx.UpdateDeal(ctx, moved))
		e := event
		e.ID = uuid.New()
		return tx.AppendEvents(ctx, []domain.DealEvent{e})
	})
	require.ErrorIs(t, err, ports.ErrEventApplied)

	got, err := store.GetDeal(ctx, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.Stage, got.Stage, "the rejected transaction must not commit")

	events, err := store.ListEvents(ctx, deal.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_ = store.InTx(ctx, func(ctx context.Context, tx ports.DealTx) error {
		id, ok, err := tx.DealForSourceEvent(ctx, event.SourceEventID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, deal.ID, id)
		return nil
	})
}
