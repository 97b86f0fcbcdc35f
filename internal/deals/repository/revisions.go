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
	"github.com/shopspring/decimal"
)

const revisionColumns = `revision_id, revision_number, revision_type, status,
	value_kind, total, range_low, range_high, deal_id,
	sent_at, viewed_at, accepted_at, declined_at, expired_at, decline_reason,
	created_at, updated_at`

// QuoteRevision is the database model for a tracked quote revision.
type QuoteRevision struct {
	RevisionID     string              `db:"revision_id"`
	RevisionNumber int                 `db:"revision_number"`
	RevisionType   string              `db:"revision_type"`
	Status         string              `db:"status"`
	ValueKind      string              `db:"value_kind"`
	Total          decimal.NullDecimal `db:"total"`
	RangeLow       decimal.NullDecimal `db:"range_low"`
	RangeHigh      decimal.NullDecimal `db:"range_high"`
	DealID         *uuid.UUID          `db:"deal_id"`
	SentAt         *time.Time          `db:"sent_at"`
	ViewedAt       *time.Time          `db:"viewed_at"`
	AcceptedAt     *time.Time          `db:"accepted_at"`
	DeclinedAt     *time.Time          `db:"declined_at"`
	ExpiredAt      *time.Time          `db:"expired_at"`
	DeclineReason  *string             `db:"decline_reason"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
}

func (m QuoteRevision) toDomain() domain.QuoteRevision {
	return domain.QuoteRevision{
		RevisionID:     m.RevisionID,
		RevisionNumber: m.RevisionNumber,
		Type:           domain.RevisionType(m.RevisionType),
		Status:         domain.RevisionStatus(m.Status),
		Value: domain.DealValue{
			Kind:      domain.ValueKind(m.ValueKind),
			Amount:    m.Total,
			RangeLow:  m.RangeLow,
			RangeHigh: m.RangeHigh,
		},
		DealID:        m.DealID,
		SentAt:        m.SentAt,
		ViewedAt:      m.ViewedAt,
		AcceptedAt:    m.AcceptedAt,
		DeclinedAt:    m.DeclinedAt,
		ExpiredAt:     m.ExpiredAt,
		DeclineReason: m.DeclineReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// GetRevision loads a revision and locks it for the rest of the transaction.
func (t *dealTx) GetRevision(ctx context.Context, revisionID string) (domain.QuoteRevision, error) {
	query := `SELECT ` + revisionColumns + ` FROM quote_revisions WHERE revision_id = $1 FOR UPDATE`

	var m QuoteRevision
	err := t.q.QueryRow(ctx, query, revisionID).Scan(
		&m.RevisionID, &m.RevisionNumber, &m.RevisionType, &m.Status,
		&m.ValueKind, &m.Total, &m.RangeLow, &m.RangeHigh, &m.DealID,
		&m.SentAt, &m.ViewedAt, &m.AcceptedAt, &m.DeclinedAt, &m.ExpiredAt, &m.DeclineReason,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.QuoteRevision{}, ports.ErrNotFound
		}
		return domain.QuoteRevision{}, fmt.Errorf("failed to get revision: %w", err)
	}
	return m.toDomain(), nil
}

// UpsertRevision writes revision facts. deal_id and created_at are kept on conflict.
func (t *dealTx) UpsertRevision(ctx context.Context, rev domain.QuoteRevision) error {
	kind := rev.Value.Kind
	if kind == "" {
		kind = domain.ValueUnknown
	}
	query := `
		INSERT INTO quote_revisions (
			revision_id, revision_number, revision_type, status,
			value_kind, total, range_low, range_high,
			sent_at, viewed_at, accepted_at, declined_at, expired_at, decline_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (revision_id) DO UPDATE SET
			revision_number = EXCLUDED.revision_number,
			revision_type = EXCLUDED.revision_type,
			status = EXCLUDED.status,
			value_kind = EXCLUDED.value_kind,
			total = EXCLUDED.total,
			range_low = EXCLUDED.range_low,
			range_high = EXCLUDED.range_high,
			sent_at = EXCLUDED.sent_at,
			viewed_at = EXCLUDED.viewed_at,
			accepted_at = EXCLUDED.accepted_at,
			declined_at = EXCLUDED.declined_at,
			expired_at = EXCLUDED.expired_at,
			decline_reason = EXCLUDED.decline_reason,
			updated_at = EXCLUDED.updated_at`

	_, err := t.q.Exec(ctx, query,
		rev.RevisionID, rev.RevisionNumber, string(rev.Type), string(rev.Status),
		string(kind), rev.Value.Amount, rev.Value.RangeLow, rev.Value.RangeHigh,
		rev.SentAt, rev.ViewedAt, rev.AcceptedAt, rev.DeclinedAt, rev.ExpiredAt, rev.DeclineReason,
		rev.CreatedAt, rev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert revision: %w", err)
	}
	return nil
}

// LinkRevision sets deal_id once. A revision already linked elsewhere is rejected.
func (t *dealTx) LinkRevision(ctx context.Context, revisionID string, dealID uuid.UUID) error {
	result, err := t.q.Exec(ctx, `
		UPDATE quote_revisions SET deal_id = $2, updated_at = now()
		WHERE revision_id = $1 AND (deal_id IS NULL OR deal_id = $2)`,
		revisionID, dealID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ports.ErrNotFound
		}
		return fmt.Errorf("failed to link revision: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quote_revisions WHERE revision_id = $1)`, revisionID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check revision: %w", err)
	}
	if !exists {
		return ports.ErrNotFound
	}
	return ports.ErrRevisionLinked
}
