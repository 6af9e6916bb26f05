package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fallbackLockTTL bounds how long a crashed holder can block sweeps when no
// TTL is configured. Long enough for the largest sweep, short enough that an
// orphaned lock clears before the next scheduled cycle.
const fallbackLockTTL = 2 * time.Hour

// Lock serializes reconciliation sweeps across processes. The scheduled
// worker and the operator-triggered endpoint contend for the same lock, so
// only one sweep ever runs at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// lockStore is the slice of the redis client the lock needs.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a single-holder lease on a redis key. Each successful Acquire
// stamps a fresh owner token so that Release after a TTL expiry cannot free
// a lock some other process has since taken.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

// NewRedisLock builds a lock on the given namespaced key.
func NewRedisLock(client lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = fallbackLockTTL
	}
	return &RedisLock{store: client, key: key, ttl: ttl}, nil
}

// Acquire claims the lease if nobody holds it. A false return with nil error
// means another sweep is in progress.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	claimed, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claiming sweep lock: %w", err)
	}
	if claimed {
		l.token = token
	}
	return claimed, nil
}

// Release frees the lease, but only while our token is still on the key.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	holder, err := l.store.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// The TTL already reclaimed it.
			l.token = ""
			return nil
		}
		return fmt.Errorf("reading sweep lock holder: %w", err)
	}
	if holder != l.token {
		l.token = ""
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("freeing sweep lock: %w", err)
	}
	l.token = ""
	return nil
}
