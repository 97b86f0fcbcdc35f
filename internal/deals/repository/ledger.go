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
)

// DealEvent is the database model for a ledger entry.
type DealEvent struct {
	ID            uuid.UUID `db:"id"`
	DealID        uuid.UUID `db:"deal_id"`
	EventType     string    `db:"event_type"`
	OldValue      []byte    `db:"old_value"`
	NewValue      []byte    `db:"new_value"`
	ActorRef      string    `db:"actor_ref"`
	SourceEventID *string   `db:"source_event_id"`
	OccurredAt    time.Time `db:"occurred_at"`
}

// AppendEvents inserts ledger entries in order. The partial unique index on
// (source_event_id, event_type) rejects a second copy of an entry; that
// surfaces as ports.ErrEventApplied so the transaction rolls back.
func (t *dealTx) AppendEvents(ctx context.Context, events []domain.DealEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO deal_events (id, deal_id, event_type, old_value, new_value, actor_ref, source_event_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_event_id, event_type) WHERE source_event_id IS NOT NULL DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range events {
		oldValue, err := domain.EncodeEventValue(e.Old)
		if err != nil {
			return fmt.Errorf("failed to encode old value: %w", err)
		}
		newValue, err := domain.EncodeEventValue(e.New)
		if err != nil {
			return fmt.Errorf("failed to encode new value: %w", err)
		}
		batch.Queue(query, e.ID, e.DealID, string(e.Type), oldValue, newValue, e.ActorRef, nilIfEmpty(e.SourceEventID), e.OccurredAt)
	}

	results := t.q.SendBatch(ctx, batch)
	defer results.Close()
	for _, e := range events {
		tag, err := results.Exec()
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("failed to append event for unknown deal: %w", err)
			}
			return fmt.Errorf("failed to append event: %w", err)
		}
		if tag.RowsAffected() == 0 && e.SourceEventID != "" {
			return ports.ErrEventApplied
		}
	}
	return nil
}

func (t *dealTx) DealForSourceEvent(ctx context.Context, sourceEventID string) (uuid.UUID, bool, error) {
	var dealID uuid.UUID
	err := t.q.QueryRow(ctx, `SELECT deal_id FROM deal_events WHERE source_event_id = $1 LIMIT 1`, sourceEventID).Scan(&dealID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to look up source event: %w", err)
	}
	return dealID, true, nil
}

func listEvents(ctx context.Context, q querier, dealID uuid.UUID) ([]domain.DealEvent, error) {
	query := `
		SELECT id, deal_id, event_type, old_value, new_value, actor_ref, source_event_id, occurred_at
		FROM deal_events
		WHERE deal_id = $1
		ORDER BY seq ASC`

	rows, err := q.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deal events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.DealEvent, 0)
	for rows.Next() {
		var m DealEvent
		if err := rows.Scan(&m.ID, &m.DealID, &m.EventType, &m.OldValue, &m.NewValue, &m.ActorRef, &m.SourceEventID, &m.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan deal event: %w", err)
		}
		event, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deal events: %w", err)
	}
	return events, nil
}

func (m DealEvent) toDomain() (domain.DealEvent, error) {
	oldValue, err := domain.DecodeEventValue(m.OldValue)
	if err != nil {
		return domain.DealEvent{}, fmt.Errorf("failed to decode event %s: %w", m.ID, err)
	}
	newValue, err := domain.DecodeEventValue(m.NewValue)
	if err != nil {
		return domain.DealEvent{}, fmt.Errorf("failed to decode event %s: %w", m.ID, err)
	}
	e := domain.DealEvent{
		ID:         m.ID,
		DealID:     m.DealID,
		Type:       domain.EventType(m.EventType),
		Old:        oldValue,
		New:        newValue,
		ActorRef:   m.ActorRef,
		OccurredAt: m.OccurredAt,
	}
	if m.SourceEventID != nil {
		e.SourceEventID = *m.SourceEventID
	}
	return e, nil
}
