package domain

import (
	"context"
	"time"
)

// MarketCache provides fast market metadata lookups keyed by token ID, backed
// by the metadata source with a TTL. Resolution state must not be served
// stale, so implementations keep short TTLs for unresolved markets.
type MarketCache interface {
	Set(ctx context.Context, info MarketInfo) error
	GetByToken(ctx context.Context, tokenID string) (MarketInfo, error)
	Invalidate(ctx context.Context, tokenID string) error
}

// LockManager provides distributed locking, used to serialize resolution
// checks for the same position across concurrent pollers and restarts.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of decision and lifecycle events for
// dashboards and other consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
