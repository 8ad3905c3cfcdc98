package coordination_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/coordination"
)

func newLocker(t *testing.T, ttl time.Duration) (*coordination.SourceLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return coordination.NewSourceLocker(client, coordination.Config{LockTTL: ttl}), mr
}

func TestSourceLocker_Exclusive(t *testing.T) {
	t.Parallel()

	locker, mr := newLocker(t, time.Minute)
	ctx := context.Background()

	first, err := locker.TryAcquire(ctx, "src-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, mr.Exists(first.Key()))

	second, err := locker.TryAcquire(ctx, "src-1")
	require.ErrorIs(t, err, coordination.ErrLockHeld)
	assert.Nil(t, second)

	other, err := locker.TryAcquire(ctx, "src-2")
	require.NoError(t, err)
	require.NotNil(t, other)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists(first.Key()))

	again, err := locker.TryAcquire(ctx, "src-1")
	require.NoError(t, err)
	require.NotNil(t, again)
	require.NoError(t, again.Release(ctx))
}

func TestLease_ReleaseAfterExpiry(t *testing.T) {
	t.Parallel()

	locker, mr := newLocker(t, time.Minute)
	ctx := context.Background()

	lease, err := locker.TryAcquire(ctx, "src-1")
	require.NoError(t, err)
	require.NotNil(t, lease)

	mr.FastForward(2 * time.Minute)

	err = lease.Release(ctx)
	assert.ErrorIs(t, err, coordination.ErrLockNotHeld)
}

func TestLease_Extend(t *testing.T) {
	t.Parallel()

	locker, mr := newLocker(t, time.Minute)
	ctx := context.Background()

	lease, err := locker.TryAcquire(ctx, "src-1")
	require.NoError(t, err)
	require.NotNil(t, lease)
	defer func() { _ = lease.Release(ctx) }()

	mr.FastForward(50 * time.Second)
	require.NoError(t, lease.Extend(ctx))
	assert.Greater(t, mr.TTL(lease.Key()), 50*time.Second)
}
