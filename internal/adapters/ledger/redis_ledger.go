package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ core.CooldownLedger = (*RedisLedger)(nil)

// DefaultLockTTL bounds how long a crashed dispatcher can hold a key
const DefaultLockTTL = time.Minute

// RedisLedger shares the cooldown ledger between processes. The in-flight
// reservation is a SET NX key with a TTL; the last-sent time is stored as
// unix nanoseconds and expires after the retention window.
type RedisLedger struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewRedisLedger creates a ledger from a redis:// URL
func NewRedisLedger(ctx context.Context, redisURL, prefix string, retention time.Duration, logger *zap.Logger) (*RedisLedger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisLedgerFromClient(client, prefix, retention, logger), nil
}

// NewRedisLedgerFromClient wraps an existing client
func NewRedisLedgerFromClient(client *redis.Client, prefix string, retention time.Duration, logger *zap.Logger) *RedisLedger {
	return &RedisLedger{
		client:    client,
		prefix:    prefix,
		retention: retention,
		lockTTL:   DefaultLockTTL,
		logger:    logger,
	}
}

func (l *RedisLedger) lastKey(key string) string { return l.prefix + ":last:" + key }
func (l *RedisLedger) lockKey(key string) string { return l.prefix + ":lock:" + key }

// Reserve claims key when no send is in flight and the cooldown has passed
func (l *RedisLedger) Reserve(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.lockKey(key), now.UnixNano(), l.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve ledger key: %w", err)
	}
	if !ok {
		return false, nil
	}

	last, found, err := l.LastSent(ctx, key)
	if err != nil {
		l.release(ctx, key)
		return false, err
	}
	if found && elapsed(last, now) < window {
		l.release(ctx, key)
		return false, nil
	}

	return true, nil
}

// Commit records a successful send and drops the reservation
func (l *RedisLedger) Commit(ctx context.Context, key string, at time.Time) error {
	ttl := l.retention
	if ttl < 0 {
		ttl = 0
	}

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, l.lastKey(key), at.UnixNano(), ttl)
		pipe.Del(ctx, l.lockKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit ledger key: %w", err)
	}
	return nil
}

// Release drops the reservation without recording a send
func (l *RedisLedger) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release ledger key: %w", err)
	}
	return nil
}

// LastSent returns when an alert was last sent for key
func (l *RedisLedger) LastSent(ctx context.Context, key string) (time.Time, bool, error) {
	raw, err := l.client.Get(ctx, l.lastKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read ledger key: %w", err)
	}

	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed ledger value for %s: %w", key, err)
	}
	return time.Unix(0, nanos), true, nil
}

// Close closes the redis client
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

func (l *RedisLedger) release(ctx context.Context, key string) {
	if err := l.Release(ctx, key); err != nil {
		l.logger.Warn("Failed to release ledger reservation", zap.String("key", key), zap.Error(err))
	}
}
