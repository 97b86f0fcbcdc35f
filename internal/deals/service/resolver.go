package service

import (
	"context"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/ports"
)

// Resolver finds the open deal new quote activity for an account and contact
// belongs to.
type Resolver struct {
	// Window bounds how old an account-level match may be.
	Window time.Duration
}

// ResolveRequest names the parties of a quote.
type ResolveRequest struct {
	AccountRef string
	ContactRef string
	OwnerRef   string
}

// Resolve locks the account for the rest of tx and returns, in order of
// preference, the open deal of the same account and contact, the newest open
// deal of the account created inside the window, or nil. The caller creates
// the deal inside the same transaction when nil is returned.
func (r Resolver) Resolve(ctx context.Context, tx ports.DealTx, req ResolveRequest, now time.Time) (*domain.Deal, error) {
	if err := tx.LockAccount(ctx, req.AccountRef); err != nil {
		return nil, err
	}

	deal, err := tx.FindOpenByAccountContact(ctx, req.AccountRef, req.ContactRef)
	if err != nil || deal != nil {
		return deal, err
	}

	return tx.FindOpenByAccountSince(ctx, req.AccountRef, now.Add(-r.Window))
}
