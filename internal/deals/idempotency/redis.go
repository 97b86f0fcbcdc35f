package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "deals:idempotency:"

// KEYS[1] record; ARGV fingerprint, token, now, locked_until, expires_at, ttl (ms).
const reserveScript = `
local cur = redis.call("HMGET", KEYS[1], "fingerprint", "status", "locked_until")
if cur[1] then
  local takeover = cur[2] == "pending" and cur[1] == ARGV[1] and tonumber(cur[3]) <= tonumber(ARGV[3])
  if not takeover then
    return 0
  end
  redis.call("DEL", KEYS[1])
end
redis.call("HSET", KEYS[1],
  "fingerprint", ARGV[1],
  "status", "pending",
  "token", ARGV[2],
  "locked_until", ARGV[4],
  "expires_at", ARGV[5],
  "created_at", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
return 1
`

// KEYS[1] record; ARGV token, deal_id, no_op, completed_at.
const completeScript = `
if redis.call("HGET", KEYS[1], "token") ~= ARGV[1] then
  return 0
end
if redis.call("HGET", KEYS[1], "status") ~= "pending" then
  return 0
end
redis.call("HSET", KEYS[1], "status", "completed", "deal_id", ARGV[2], "no_op", ARGV[3], "completed_at", ARGV[4])
return 1
`

const releaseScript = `
if redis.call("HGET", KEYS[1], "token") == ARGV[1] and redis.call("HGET", KEYS[1], "status") == "pending" then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisStore keeps records as Redis hashes that expire with their retention.
type RedisStore struct {
	client   redis.UniversalClient
	reserve  *redis.Script
	complete *redis.Script
	release  *redis.Script
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client:   client,
		reserve:  redis.NewScript(reserveScript),
		complete: redis.NewScript(completeScript),
		release:  redis.NewScript(releaseScript),
	}
}

func (s *RedisStore) Reserve(ctx context.Context, rec Record, now time.Time) (Record, bool, error) {
	ttl := rec.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return Record{}, false, errors.New("idempotency record expires before it is stored")
	}

	for attempt := 0; attempt < 3; attempt++ {
		ok, err := s.reserve.Run(ctx, s.client, []string{redisKeyPrefix + rec.Key},
			rec.Fingerprint, rec.Token, now.UnixMilli(), rec.LockedUntil.UnixMilli(),
			rec.ExpiresAt.UnixMilli(), ttl.Milliseconds(),
		).Int()
		if err != nil {
			return Record{}, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
		}
		if ok == 1 {
			return rec, true, nil
		}

		existing, found, err := s.get(ctx, rec.Key)
		if err != nil {
			return Record{}, false, err
		}
		if found {
			return existing, false, nil
		}
	}
	return Record{}, false, fmt.Errorf("failed to reserve idempotency key %q: holder kept changing", rec.Key)
}

func (s *RedisStore) get(ctx context.Context, key string) (Record, bool, error) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to get idempotency record: %w", err)
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}

	rec := Record{
		Key:         key,
		Fingerprint: fields["fingerprint"],
		Status:      Status(fields["status"]),
		Token:       fields["token"],
		LockedUntil: millis(fields["locked_until"]),
		ExpiresAt:   millis(fields["expires_at"]),
		CreatedAt:   millis(fields["created_at"]),
	}
	if raw := fields["deal_id"]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Record{}, false, fmt.Errorf("invalid deal id on idempotency record %q: %w", key, err)
		}
		rec.Result.DealID = &id
	}
	rec.Result.NoOp = fields["no_op"] == "1"
	if raw := fields["completed_at"]; raw != "" {
		completed := millis(raw)
		rec.CompletedAt = &completed
	}
	return rec, true, nil
}

func millis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (s *RedisStore) Complete(ctx context.Context, key, token string, result Result, now time.Time) error {
	dealID := ""
	if result.DealID != nil {
		dealID = result.DealID.String()
	}
	noOp := "0"
	if result.NoOp {
		noOp = "1"
	}

	ok, err := s.complete.Run(ctx, s.client, []string{redisKeyPrefix + key}, token, dealID, noOp, now.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	if ok == 0 {
		return ErrNotOwner
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key, token string) error {
	if err := s.release.Run(ctx, s.client, []string{redisKeyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires records on its own.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
