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

const dealColumns = `id, account_ref, contact_ref, owner_ref, stage,
	value_kind, value_amount, value_range_low, value_range_high, source,
	is_closed, closed_reason, closed_note, closed_at, probability,
	touch_count, last_touch_at, last_activity_at, next_action_at, at_risk,
	no_contact_streak, total_contact_attempts, last_contact_result, last_contact_attempt_at,
	walkthrough_accepted_at, last_quote_sent_at, priority_score,
	created_at, stage_entered_at, updated_at`

// Deal is the database model for a deal row.
type Deal struct {
	ID                    uuid.UUID           `db:"id"`
	AccountRef            string              `db:"account_ref"`
	ContactRef            string              `db:"contact_ref"`
	OwnerRef              string              `db:"owner_ref"`
	Stage                 string              `db:"stage"`
	ValueKind             string              `db:"value_kind"`
	ValueAmount           decimal.NullDecimal `db:"value_amount"`
	ValueRangeLow         decimal.NullDecimal `db:"value_range_low"`
	ValueRangeHigh        decimal.NullDecimal `db:"value_range_high"`
	Source                string              `db:"source"`
	IsClosed              bool                `db:"is_closed"`
	ClosedReason          *string             `db:"closed_reason"`
	ClosedNote            *string             `db:"closed_note"`
	ClosedAt              *time.Time          `db:"closed_at"`
	Probability           int                 `db:"probability"`
	TouchCount            int                 `db:"touch_count"`
	LastTouchAt           *time.Time          `db:"last_touch_at"`
	LastActivityAt        *time.Time          `db:"last_activity_at"`
	NextActionAt          *time.Time          `db:"next_action_at"`
	AtRisk                bool                `db:"at_risk"`
	NoContactStreak       int                 `db:"no_contact_streak"`
	TotalContactAttempts  int                 `db:"total_contact_attempts"`
	LastContactResult     *string             `db:"last_contact_result"`
	LastContactAttemptAt  *time.Time          `db:"last_contact_attempt_at"`
	WalkthroughAcceptedAt *time.Time          `db:"walkthrough_accepted_at"`
	LastQuoteSentAt       *time.Time          `db:"last_quote_sent_at"`
	PriorityScore         float64             `db:"priority_score"`
	CreatedAt             time.Time           `db:"created_at"`
	StageEnteredAt        time.Time           `db:"stage_entered_at"`
	UpdatedAt             time.Time           `db:"updated_at"`
}

func scanDeal(row pgx.Row) (domain.Deal, error) {
	var m Deal
	if err := row.Scan(
		&m.ID, &m.AccountRef, &m.ContactRef, &m.OwnerRef, &m.Stage,
		&m.ValueKind, &m.ValueAmount, &m.ValueRangeLow, &m.ValueRangeHigh, &m.Source,
		&m.IsClosed, &m.ClosedReason, &m.ClosedNote, &m.ClosedAt, &m.Probability,
		&m.TouchCount, &m.LastTouchAt, &m.LastActivityAt, &m.NextActionAt, &m.AtRisk,
		&m.NoContactStreak, &m.TotalContactAttempts, &m.LastContactResult, &m.LastContactAttemptAt,
		&m.WalkthroughAcceptedAt, &m.LastQuoteSentAt, &m.PriorityScore,
		&m.CreatedAt, &m.StageEnteredAt, &m.UpdatedAt,
	); err != nil {
		return domain.Deal{}, err
	}
	return m.toDomain(), nil
}

func (m Deal) toDomain() domain.Deal {
	d := domain.Deal{
		ID:         m.ID,
		AccountRef: m.AccountRef,
		ContactRef: m.ContactRef,
		OwnerRef:   m.OwnerRef,
		Stage:      domain.Stage(m.Stage),
		Value: domain.DealValue{
			Kind:      domain.ValueKind(m.ValueKind),
			Amount:    m.ValueAmount,
			RangeLow:  m.ValueRangeLow,
			RangeHigh: m.ValueRangeHigh,
		},
		Source:                domain.Source(m.Source),
		IsClosed:              m.IsClosed,
		ClosedNote:            m.ClosedNote,
		ClosedAt:              m.ClosedAt,
		Probability:           m.Probability,
		TouchCount:            m.TouchCount,
		LastTouchAt:           m.LastTouchAt,
		LastActivityAt:        m.LastActivityAt,
		NextActionAt:          m.NextActionAt,
		AtRisk:                m.AtRisk,
		NoContactStreak:       m.NoContactStreak,
		TotalContactAttempts:  m.TotalContactAttempts,
		LastContactAttemptAt:  m.LastContactAttemptAt,
		WalkthroughAcceptedAt: m.WalkthroughAcceptedAt,
		LastQuoteSentAt:       m.LastQuoteSentAt,
		PriorityScore:         m.PriorityScore,
		CreatedAt:             m.CreatedAt,
		StageEnteredAt:        m.StageEnteredAt,
		UpdatedAt:             m.UpdatedAt,
	}
	if m.ClosedReason != nil {
		reason := domain.ClosedReason(*m.ClosedReason)
		d.ClosedReason = &reason
	}
	if m.LastContactResult != nil {
		outcome := domain.ContactOutcome(*m.LastContactResult)
		d.LastContactResult = &outcome
	}
	return d
}

func dealArgs(d domain.Deal) []any {
	var closedReason, lastResult *string
	if d.ClosedReason != nil {
		v := string(*d.ClosedReason)
		closedReason = &v
	}
	if d.LastContactResult != nil {
		v := string(*d.LastContactResult)
		lastResult = &v
	}
	kind := d.Value.Kind
	if kind == "" {
		kind = domain.ValueUnknown
	}
	return []any{
		d.ID, d.AccountRef, d.ContactRef, d.OwnerRef, string(d.Stage),
		string(kind), d.Value.Amount, d.Value.RangeLow, d.Value.RangeHigh, string(d.Source),
		d.IsClosed, closedReason, d.ClosedNote, d.ClosedAt, d.Probability,
		d.TouchCount, d.LastTouchAt, d.LastActivityAt, d.NextActionAt, d.AtRisk,
		d.NoContactStreak, d.TotalContactAttempts, lastResult, d.LastContactAttemptAt,
		d.WalkthroughAcceptedAt, d.LastQuoteSentAt, d.PriorityScore,
		d.CreatedAt, d.StageEnteredAt, d.UpdatedAt,
	}
}

func getDeal(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	deal, err := scanDeal(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, ports.ErrNotFound
		}
		return domain.Deal{}, fmt.Errorf("failed to get deal: %w", err)
	}
	return deal, nil
}

// findOne runs a finder query and returns nil when no row matches.
func findOne(ctx context.Context, q querier, query string, args ...any) (*domain.Deal, error) {
	deal, err := scanDeal(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deal: %w", err)
	}
	return &deal, nil
}

func (t *dealTx) LockAccount(ctx context.Context, accountRef string) error {
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('deals:account:' || $1, 0))`, accountRef); err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

func (t *dealTx) FindOpenByAccountContact(ctx context.Context, accountRef, contactRef string) (*domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals
		WHERE account_ref = $1 AND contact_ref = $2 AND is_closed = false
		ORDER BY created_at DESC, id
		LIMIT 1
		FOR UPDATE`
	return findOne(ctx, t.q, query, accountRef, contactRef)
}

func (t *dealTx) FindOpenByAccountSince(ctx context.Context, accountRef string, since time.Time) (*domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals
		WHERE account_ref = $1 AND is_closed = false AND created_at >= $2
		ORDER BY created_at DESC, id
		LIMIT 1
		FOR UPDATE`
	return findOne(ctx, t.q, query, accountRef, since)
}

func (t *dealTx) FindOpenByContact(ctx context.Context, contactRef string) (*domain.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals
		WHERE contact_ref = $1 AND is_closed = false
		ORDER BY COALESCE(last_activity_at, created_at) DESC, id
		LIMIT 1
		FOR UPDATE`
	return findOne(ctx, t.q, query, contactRef)
}

func (t *dealTx) GetDealForUpdate(ctx context.Context, id uuid.UUID) (domain.Deal, error) {
	return getDeal(ctx, t.q, id, true)
}

func (t *dealTx) CreateDeal(ctx context.Context, deal domain.Deal) error {
	query := `INSERT INTO deals (` + dealColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`

	if _, err := t.q.Exec(ctx, query, dealArgs(deal)...); err != nil {
		if isOpenDealViolation(err) {
			return ports.ErrOpenDealExists
		}
		return fmt.Errorf("failed to insert deal: %w", err)
	}
	return nil
}

// UpdateDeal writes every mutable column. Identity, account, contact, source
// and created_at never change after creation.
func (t *dealTx) UpdateDeal(ctx context.Context, deal domain.Deal) error {
	query := `UPDATE deals SET
			owner_ref = $4, stage = $5,
			value_kind = $6, value_amount = $7, value_range_low = $8, value_range_high = $9,
			is_closed = $11, closed_reason = $12, closed_note = $13, closed_at = $14, probability = $15,
			touch_count = $16, last_touch_at = $17, last_activity_at = $18, next_action_at = $19, at_risk = $20,
			no_contact_streak = $21, total_contact_attempts = $22, last_contact_result = $23, last_contact_attempt_at = $24,
			walkthrough_accepted_at = $25, last_quote_sent_at = $26, priority_score = $27,
			stage_entered_at = $29, updated_at = $30
		WHERE id = $1 AND account_ref = $2 AND contact_ref = $3 AND source = $10 AND created_at = $28`

	result, err := t.q.Exec(ctx, query, dealArgs(deal)...)
	if err != nil {
		return fmt.Errorf("failed to update deal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
