package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("skip: miniredis not available in this environment: %v", err)
	}
	t.Cleanup(srv.Close)

	prev := GetClient()
	cli := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	SetClient(cli)
	t.Cleanup(func() {
		_ = cli.Close()
		SetClient(prev)
	})
	return srv
}

func TestLocker_ExclusiveAndRelease(t *testing.T) {
	srv := startMiniRedis(t)
	locker := NewLocker("sweep", time.Minute, 0)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "deposit-1")
	require.NoError(t, err)
	assert.True(t, srv.Exists("sweep:deposit-1"))

	_, err = locker.Lock(ctx, "deposit-1")
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := locker.Lock(ctx, "deposit-2")
	require.NoError(t, err)
	other()

	release()
	assert.False(t, srv.Exists("sweep:deposit-1"))

	again, err := locker.Lock(ctx, "deposit-1")
	require.NoError(t, err)
	again()
}

func TestLocker_ReleaseDoesNotDropForeignToken(t *testing.T) {
	srv := startMiniRedis(t)
	locker := NewLocker("sweep", time.Second, 0)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "addr")
	require.NoError(t, err)

	// lease expired and another worker took over
	srv.FastForward(2 * time.Second)
	require.NoError(t, srv.Set("sweep:addr", "someone-else"))

	release()
	val, err := srv.Get("sweep:addr")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestLocker_ConcurrentCallersSingleWinner(t *testing.T) {
	startMiniRedis(t)
	locker := NewLocker("sweep", time.Minute, 0)
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := locker.Lock(ctx, "same"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestLocker_WaitsForRelease(t *testing.T) {
	startMiniRedis(t)
	locker := NewLocker("sweep", time.Minute, time.Second)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	go func() {
		time.Sleep(100 * time.Millisecond)
		release()
	}()

	second, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	second()
}

func TestCacheStore_GetSet(t *testing.T) {
	srv := startMiniRedis(t)
	store := NewCacheStore("price")
	ctx := context.Background()

	_, found, err := store.Get(ctx, "ETH")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "ETH", "3000.5", 10*time.Second))
	val, found, err := store.Get(ctx, "ETH")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "3000.5", val)

	srv.FastForward(11 * time.Second)
	_, found, err = store.Get(ctx, "ETH")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocker_LeaseRefreshExtendsOwnHold(t *testing.T) {
	srv := startMiniRedis(t)
	locker := NewLocker("sweep", 10*time.Second, 0)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "addr")
	require.NoError(t, err)
	defer lease.Release()

	deadline := lease.Deadline()
	assert.WithinDuration(t, time.Now().Add(8*time.Second), deadline, time.Second)

	srv.FastForward(6 * time.Second)
	require.NoError(t, lease.Refresh(ctx))
	assert.Equal(t, 10*time.Second, srv.TTL("sweep:addr"))
	assert.False(t, lease.Deadline().Before(deadline))
}

func TestLocker_LeaseRefreshFailsAfterExpiry(t *testing.T) {
	srv := startMiniRedis(t)
	locker := NewLocker("sweep", time.Second, 0)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "addr")
	require.NoError(t, err)

	srv.FastForward(2 * time.Second)
	assert.ErrorIs(t, lease.Refresh(ctx), ErrLockLost)

	// another worker holds it now
	other, err := locker.Acquire(ctx, "addr")
	require.NoError(t, err)
	assert.ErrorIs(t, lease.Refresh(ctx), ErrLockLost)
	require.NoError(t, other.Refresh(ctx))

	lease.Release()
	assert.True(t, srv.Exists("sweep:addr"))
	other.Release()
	assert.False(t, srv.Exists("sweep:addr"))
}
