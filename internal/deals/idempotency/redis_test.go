package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func pendingRecord(key, fingerprint, token string, now time.Time) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		Token:       token,
		LockedUntil: now.Add(30 * time.Second),
		ExpiresAt:   now.Add(time.Hour),
		CreatedAt:   now,
	}
}

func TestRedisStoreReserveCompleteReplay(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, reserved, err := store.Reserve(ctx, pendingRecord("k", "fp", "t1", now), now)
	require.NoError(t, err)
	require.True(t, reserved)

	holder, reserved, err := store.Reserve(ctx, pendingRecord("k", "fp", "t2", now), now)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, StatusPending, holder.Status)
	assert.Equal(t, "t1", holder.Token)

	dealID := uuid.New()
	assert.ErrorIs(t, store.Complete(ctx, "k", "t2", Result{DealID: &dealID}, now), ErrNotOwner)
	require.NoError(t, store.Complete(ctx, "k", "t1", Result{DealID: &dealID}, now))

	holder, reserved, err = store.Reserve(ctx, pendingRecord("k", "fp", "t3", now), now)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, StatusCompleted, holder.Status)
	require.NotNil(t, holder.Result.DealID)
	assert.Equal(t, dealID, *holder.Result.DealID)
	assert.False(t, holder.Result.NoOp)
	assert.Equal(t, "fp", holder.Fingerprint)
}

func TestRedisStoreReleaseRequiresOwner(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, reserved, err := store.Reserve(ctx, pendingRecord("k", "fp", "owner", now), now)
	require.NoError(t, err)
	require.True(t, reserved)

	require.NoError(t, store.Release(ctx, "k", "someone-else"))
	assert.True(t, mr.Exists(redisKeyPrefix+"k"))

	require.NoError(t, store.Release(ctx, "k", "owner"))
	assert.False(t, mr.Exists(redisKeyPrefix+"k"))
}

func TestRedisStoreLeaseTakeoverAndExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, reserved, err := store.Reserve(ctx, pendingRecord("k", "fp", "t1", now), now)
	require.NoError(t, err)
	require.True(t, reserved)

	later := now.Add(time.Minute)
	_, reserved, err = store.Reserve(ctx, pendingRecord("k", "other", "t2", later), later)
	require.NoError(t, err)
	assert.False(t, reserved, "a different payload never takes over a reservation")

	_, reserved, err = store.Reserve(ctx, pendingRecord("k", "fp", "t2", later), later)
	require.NoError(t, err)
	assert.True(t, reserved)

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists(redisKeyPrefix+"k"))

	removed, err := store.DeleteExpired(ctx, later)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
