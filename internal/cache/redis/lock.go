package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hfchan/whalebot/internal/domain"
)

// lockPrefix namespaces lock keys so they never collide with cached market
// data or rate-limiter buckets in the same database.
const lockPrefix = "whalebot:lock:"

// releaseTimeout bounds the unlock round trip. Unlock runs on a background
// context, so a cancelled caller still releases its lock.
const releaseTimeout = 5 * time.Second

// releaseScript deletes the key only while it still holds the caller's
// fencing token. Without the token check, a poller whose lock expired
// mid-check could delete a lock a second poller has since acquired.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockManager hands out per-position resolution locks backed by Redis.
// Acquire is SET NX with a TTL, so a crashed holder blocks others for at
// most the TTL rather than forever.
type LockManager struct {
	rdb *redis.Client
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.Underlying()}
}

// Acquire takes the lock for key, or returns domain.ErrLockHeld when another
// holder has it. The returned unlock is idempotent and only ever removes this
// caller's claim.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	redisKey := lockPrefix + key

	claimed, err := lm.rdb.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !claimed {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() { lm.release(redisKey, token) })
	}
	return unlock, nil
}

func (lm *LockManager) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	// Best effort: if the release fails the key expires on its own TTL.
	_ = releaseScript.Run(ctx, lm.rdb, []string{redisKey}, token).Err()
}

var _ domain.LockManager = (*LockManager)(nil)
