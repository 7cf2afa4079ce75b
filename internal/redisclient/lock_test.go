package redisclient

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

func newTestLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLocker(client, 30*time.Second), mr
}

func TestWithLockRunsAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	ran := false
	err := locker.WithLock(ctx, "sweep", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:sweep"), "lock key held inside the section")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:sweep"), "lock key released after the section")
}

func TestWithLockContended(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "sweep", func(ctx context.Context) error {
		// A second acquisition of the same name must fail while held.
		inner := locker.WithLock(ctx, "sweep", func(ctx context.Context) error {
			t.Fatal("contended section must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)

	// Released now, so the same name can be taken again.
	err = locker.WithLock(ctx, "sweep", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithLockIndependentNames(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "sweep", func(ctx context.Context) error {
		return locker.WithLock(ctx, "reindex", func(ctx context.Context) error { return nil })
	})
	assert.NoError(t, err)
}

func TestWithLockPropagatesSectionError(t *testing.T) {
	locker, mr := newTestLocker(t)

	boom := errors.New("boom")
	err := locker.WithLock(context.Background(), "sweep", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:sweep"), "lock released even when the section fails")
}
