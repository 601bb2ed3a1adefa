package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hfchan/whalebot/internal/domain"
)

// MarketCache implements domain.MarketCache using JSON-serialized MarketInfo
// keyed by token ID. Unresolved markets get a short TTL so resolution state
// is re-checked against the metadata source; resolved markets are immutable
// and may live longer.
type MarketCache struct {
	rdb         *redis.Client
	ttl         time.Duration
	resolvedTTL time.Duration
}

// NewMarketCache creates a MarketCache backed by the given Client. ttl bounds
// how stale unresolved metadata may be served; zero selects a default.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MarketCache{
		rdb:         c.Underlying(),
		ttl:         ttl,
		resolvedTTL: 24 * time.Hour,
	}
}

func marketTokenKey(tok string) string { return "market:token:" + tok }

// Set stores market metadata for its token ID.
func (mc *MarketCache) Set(ctx context.Context, info domain.MarketInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", info.MarketID, err)
	}

	ttl := mc.ttl
	if info.Resolved {
		ttl = mc.resolvedTTL
	}

	if err := mc.rdb.Set(ctx, marketTokenKey(info.TokenID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", info.MarketID, err)
	}
	return nil
}

// GetByToken returns cached metadata for a token ID, or domain.ErrNotFound on
// a cache miss.
func (mc *MarketCache) GetByToken(ctx context.Context, tokenID string) (domain.MarketInfo, error) {
	data, err := mc.rdb.Get(ctx, marketTokenKey(tokenID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MarketInfo{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("redis: get market by token %s: %w", tokenID, err)
	}

	var info domain.MarketInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.MarketInfo{}, fmt.Errorf("redis: unmarshal market for token %s: %w", tokenID, err)
	}
	return info, nil
}

// Invalidate drops the cached metadata for a token ID.
func (mc *MarketCache) Invalidate(ctx context.Context, tokenID string) error {
	if err := mc.rdb.Del(ctx, marketTokenKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market for token %s: %w", tokenID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
