package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joseph3559/letrents-backend/pkg/redis"
)

// IdempotencyGuard is the fast-path duplicate filter for webhook deliveries.
// It only short-circuits obvious redeliveries; the unique index on the
// payment's transaction reference remains the correctness mechanism, so a
// redis miss or outage never risks double settlement.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// New builds a guard scoped to one gateway.
func New(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark returns true when the reference was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, reference string) (bool, error) {
	if reference == "" {
		return false, errors.New("reference is required")
	}
	key := g.store.IdempotencyKey(g.scope, reference)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete releases the mark so the gateway's retry can be processed after a
// failed settlement.
func (g *IdempotencyGuard) Delete(ctx context.Context, reference string) error {
	if reference == "" {
		return errors.New("reference is required")
	}
	key := g.store.IdempotencyKey(g.scope, reference)
	return g.store.Del(ctx, key)
}
