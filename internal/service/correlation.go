package service

import (
	"sync"
	"time"

	"github.com/hfchan/whalebot/internal/domain"
)

// CorrelationTracker counts near-identical orders from roster wallets
// inside a sliding window: same token, same side, notional within
// tolerance of each other. Trades are recorded as the aggregator
// completes them and counted when the copier decides, so two
// simultaneous copies of the same order each see the other and both
// score lower than either would alone.
type CorrelationTracker struct {
	window    time.Duration
	tolerance float64 // relative notional difference treated as "the same order"

	mu      sync.Mutex
	entries []correlationEntry
}

type correlationEntry struct {
	tradeID  string
	wallet   string
	tokenID  string
	side     domain.TradeSide
	notional float64
	seenAt   time.Time
}

func NewCorrelationTracker(window time.Duration) *CorrelationTracker {
	return &CorrelationTracker{
		window:    window,
		tolerance: 0.2,
	}
}

// Record remembers the trade for the duration of the window. Recording
// the same trade ID again is a no-op, so the aggregator and the copier
// can both call it without inflating counts.
func (t *CorrelationTracker) Record(trade domain.CandidateTrade) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evict(trade.ObservedAt)
	for _, e := range t.entries {
		if e.tradeID == trade.TradeID {
			return
		}
	}
	t.entries = append(t.entries, correlationEntry{
		tradeID:  trade.TradeID,
		wallet:   trade.Wallet,
		tokenID:  trade.TokenID,
		side:     trade.Side,
		notional: trade.Notional,
		seenAt:   trade.ObservedAt,
	})
}

// Matches returns how many recorded entries inside the window look like
// the same order placed by a different wallet.
func (t *CorrelationTracker) Matches(trade domain.CandidateTrade) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evict(trade.ObservedAt)

	matches := 0
	for _, e := range t.entries {
		if e.wallet == trade.Wallet {
			continue
		}
		if e.tokenID != trade.TokenID || e.side != trade.Side {
			continue
		}
		if similarNotional(e.notional, trade.Notional, t.tolerance) {
			matches++
		}
	}
	return matches
}

func (t *CorrelationTracker) evict(now time.Time) {
	cutoff := now.Add(-t.window)
	keep := t.entries[:0]
	for _, e := range t.entries {
		if e.seenAt.After(cutoff) {
			keep = append(keep, e)
		}
	}
	t.entries = keep
}

func similarNotional(a, b, tolerance float64) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	larger := a
	if b > larger {
		larger = b
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff/larger <= tolerance
}
