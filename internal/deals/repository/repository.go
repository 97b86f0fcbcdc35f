// Package repository is the Postgres implementation of the deals storage ports.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	openDealConstraint = "idx_deals_open_account_contact"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository provides database operations for deals, revisions and the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new deals repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InTx runs fn inside a READ COMMITTED transaction. Row locks taken by the
// finders and the account advisory lock are released on commit or rollback.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx ports.DealTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &dealTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isOpenDealViolation(err) {
			return ports.ErrOpenDealExists
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetDeal loads a deal without locking it.
func (r *Repository) GetDeal(ctx context.Context, id uuid.UUID) (domain.Deal, error) {
	return getDeal(ctx, r.pool, id, false)
}

// ListEvents returns a deal's ledger in append order.
func (r *Repository) ListEvents(ctx context.Context, dealID uuid.UUID) ([]domain.DealEvent, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM deals WHERE id = $1)`, dealID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check deal: %w", err)
	}
	if !exists {
		return nil, ports.ErrNotFound
	}
	return listEvents(ctx, r.pool, dealID)
}

// ListOpenDealsByOwner returns the open deals assigned to ownerRef.
func (r *Repository) ListOpenDealsByOwner(ctx context.Context, ownerRef string) ([]domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals
		WHERE owner_ref = $1 AND is_closed = false
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, ownerRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list open deals: %w", err)
	}
	defer rows.Close()

	deals := make([]domain.Deal, 0)
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deal: %w", err)
		}
		deals = append(deals, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deals: %w", err)
	}
	return deals, nil
}

func (r *Repository) ListStaleOpenDeals(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM deals
		WHERE is_closed = false AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale deals: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale deals: %w", err)
	}
	return ids, nil
}

// dealTx implements ports.DealTx on top of a pgx transaction.
type dealTx struct {
	q querier
}

func isOpenDealViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == openDealConstraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	_ ports.DealStore = (*Repository)(nil)
	_ ports.DealTx    = (*dealTx)(nil)
)
