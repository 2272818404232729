package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "approval:lock", ttl), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, mr := newRedisLocker(t, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "application:app-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("approval:lock:application:app-1"))

	_, err = locker.Acquire(ctx, "application:app-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("approval:lock:application:app-1"))

	again, err := locker.Acquire(ctx, "application:app-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLockerExpiredHolderCannotReleaseNewOwner(t *testing.T) {
	locker, mr := newRedisLocker(t, time.Second)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "student:s1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "student:s1")
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("approval:lock:student:s1"))

	require.NoError(t, fresh(ctx))
	assert.False(t, mr.Exists("approval:lock:student:s1"))
}

func TestLocalLockerExclusive(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "k")
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))
	_, err = locker.Acquire(ctx, "k")
	assert.NoError(t, err)
}

func TestAcquireAllReleasesOnConflict(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "b")
	require.NoError(t, err)

	_, err = AcquireAll(ctx, locker, []string{"a", "b", "c"})
	require.ErrorIs(t, err, ErrLocked)

	// "a" must have been released again.
	relA, err := locker.Acquire(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, relA(ctx))
	require.NoError(t, held(ctx))

	all, err := AcquireAll(ctx, locker, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.NoError(t, all(ctx))
}
