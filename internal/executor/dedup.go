package executor

import (
	"sync"
	"time"
)

// Dedup suppresses repeat submissions of the same logical trade within
// a TTL window. Candidate trade IDs are stable across restarts, so the
// window only needs to cover in-process replays (reconnect bursts,
// overlapping feed paths). Safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time
	ttl  time.Duration
	mu   sync.Mutex
}

func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate reports whether tradeID was seen within the TTL, and
// records it if not.
func (d *Dedup) IsDuplicate(tradeID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[tradeID]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[tradeID] = now
	return false
}

// Cleanup drops expired entries. Call periodically to bound memory.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
