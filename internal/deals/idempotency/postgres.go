package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps records in the idempotency_records table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Reserve(ctx context.Context, rec Record, now time.Time) (Record, bool, error) {
	query := `
		INSERT INTO idempotency_records (key, fingerprint, status, token, locked_until, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			status = EXCLUDED.status,
			token = EXCLUDED.token,
			deal_id = NULL,
			no_op = false,
			locked_until = EXCLUDED.locked_until,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			completed_at = NULL
		WHERE idempotency_records.expires_at <= $8
			OR (idempotency_records.status = 'pending'
				AND idempotency_records.locked_until <= $8
				AND idempotency_records.fingerprint = EXCLUDED.fingerprint)
		RETURNING key`

	// The holder can disappear between the failed insert and the read, so
	// the pair is retried a few times before giving up.
	for attempt := 0; attempt < 3; attempt++ {
		var key string
		err := s.pool.QueryRow(ctx, query,
			rec.Key, rec.Fingerprint, string(StatusPending), rec.Token,
			rec.LockedUntil, rec.ExpiresAt, rec.CreatedAt, now,
		).Scan(&key)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
		}

		existing, err := s.get(ctx, rec.Key)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return Record{}, false, err
		}
		return existing, false, nil
	}
	return Record{}, false, fmt.Errorf("failed to reserve idempotency key %q: holder kept changing", rec.Key)
}

func (s *PostgresStore) get(ctx context.Context, key string) (Record, error) {
	query := `
		SELECT key, fingerprint, status, token, deal_id, no_op, locked_until, expires_at, created_at, completed_at
		FROM idempotency_records WHERE key = $1`

	var (
		rec    Record
		status string
		dealID *uuid.UUID
	)
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&rec.Key, &rec.Fingerprint, &status, &rec.Token, &dealID, &rec.Result.NoOp,
		&rec.LockedUntil, &rec.ExpiresAt, &rec.CreatedAt, &rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	rec.Status = Status(status)
	rec.Result.DealID = dealID
	return rec, nil
}

func (s *PostgresStore) Complete(ctx context.Context, key, token string, result Result, now time.Time) error {
	query := `
		UPDATE idempotency_records
		SET status = 'completed', deal_id = $3, no_op = $4, completed_at = $5
		WHERE key = $1 AND token = $2 AND status = 'pending'`

	tag, err := s.pool.Exec(ctx, query, key, token, result.DealID, result.NoOp, now)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotOwner
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, key, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1 AND token = $2 AND status = 'pending'`, key, token)
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired idempotency records: %w", err)
	}
	return tag.RowsAffected(), nil
}
