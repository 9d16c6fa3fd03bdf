package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mikey/phishwatch/internal/core"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const window = 15 * time.Minute

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type ledgerCase struct {
	name string
	new  func(t *testing.T) core.CooldownLedger
}

func ledgers() []ledgerCase {
	return []ledgerCase{
		{
			name: "memory",
			new: func(t *testing.T) core.CooldownLedger {
				l := NewMemoryLedger(zap.NewNop(), window, 0)
				t.Cleanup(func() { l.Close() })
				return l
			},
		},
		{
			name: "redis",
			new: func(t *testing.T) core.CooldownLedger {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				l := NewRedisLedgerFromClient(client, "test:alert", window, zap.NewNop())
				t.Cleanup(func() { l.Close() })
				return l
			},
		},
	}
}

func TestLedgerCooldown(t *testing.T) {
	ctx := context.Background()

	for _, lc := range ledgers() {
		t.Run(lc.name, func(t *testing.T) {
			l := lc.new(t)

			ok, err := l.Reserve(ctx, "k", t0, window)
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, l.Commit(ctx, "k", t0))

			last, found, err := l.LastSent(ctx, "k")
			require.NoError(t, err)
			assert.True(t, found)
			assert.True(t, t0.Equal(last))

			ok, err = l.Reserve(ctx, "k", t0.Add(window-time.Second), window)
			require.NoError(t, err)
			assert.False(t, ok, "inside cooldown")

			ok, err = l.Reserve(ctx, "k", t0.Add(window), window)
			require.NoError(t, err)
			assert.True(t, ok, "exactly at the cooldown boundary")
		})
	}
}

func TestLedgerClockSkew(t *testing.T) {
	ctx := context.Background()

	for _, lc := range ledgers() {
		t.Run(lc.name, func(t *testing.T) {
			l := lc.new(t)

			ok, err := l.Reserve(ctx, "k", t0, window)
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, l.Commit(ctx, "k", t0))

			ok, err = l.Reserve(ctx, "k", t0.Add(-time.Hour), window)
			require.NoError(t, err)
			assert.False(t, ok, "clock moved backwards counts as zero elapsed")
		})
	}
}

func TestLedgerReleaseLeavesNoTrace(t *testing.T) {
	ctx := context.Background()

	for _, lc := range ledgers() {
		t.Run(lc.name, func(t *testing.T) {
			l := lc.new(t)

			ok, err := l.Reserve(ctx, "k", t0, window)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = l.Reserve(ctx, "k", t0, window)
			require.NoError(t, err)
			assert.False(t, ok, "second reservation while in flight")

			require.NoError(t, l.Release(ctx, "k"))

			_, found, err := l.LastSent(ctx, "k")
			require.NoError(t, err)
			assert.False(t, found)

			ok, err = l.Reserve(ctx, "k", t0, window)
			require.NoError(t, err)
			assert.True(t, ok, "released key can be reserved again")
		})
	}
}

func TestLedgerConcurrentReserve(t *testing.T) {
	ctx := context.Background()

	for _, lc := range ledgers() {
		t.Run(lc.name, func(t *testing.T) {
			l := lc.new(t)

			var granted int32
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := l.Reserve(ctx, "shared", t0, window)
					assert.NoError(t, err)
					if ok {
						atomic.AddInt32(&granted, 1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), granted)
		})
	}
}

func TestMemoryLedgerCommitWithoutReserve(t *testing.T) {
	l := NewMemoryLedger(zap.NewNop(), window, 0)
	defer l.Close()

	assert.ErrorIs(t, l.Commit(context.Background(), "k", t0), ErrNotReserved)
}

func TestMemoryLedgerCleanup(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(zap.NewNop(), window, 0)
	defer l.Close()

	for _, key := range []string{"old", "fresh"} {
		ok, err := l.Reserve(ctx, key, t0, window)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, l.Commit(ctx, "old", t0.Add(-2*window)))
	require.NoError(t, l.Commit(ctx, "fresh", t0))

	ok, err := l.Reserve(ctx, "pending", t0, window)
	require.NoError(t, err)
	require.True(t, ok)

	l.now = func() time.Time { return t0.Add(time.Minute) }
	require.NoError(t, l.Cleanup(ctx))

	assert.Equal(t, 2, l.Len())
	_, found, _ := l.LastSent(ctx, "old")
	assert.False(t, found)
	_, found, _ = l.LastSent(ctx, "fresh")
	assert.True(t, found)
}

func TestRedisLedgerExpiresLastSent(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewRedisLedgerFromClient(client, "test:alert", window, zap.NewNop())
	defer l.Close()

	ok, err := l.Reserve(ctx, "k", t0, window)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.Commit(ctx, "k", t0))

	assert.True(t, mr.Exists("test:alert:last:k"))
	assert.False(t, mr.Exists("test:alert:lock:k"))

	mr.FastForward(window + time.Second)
	assert.False(t, mr.Exists("test:alert:last:k"))
}
