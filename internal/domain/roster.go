package domain

import (
	"strings"
	"time"
)

// RosterMember is one active wallet inside a tier, with the stats snapshot
// it was admitted on.
type RosterMember struct {
	Wallet     string
	WinRate    float64
	TradeCount int
	Multiplier float64 // position-size multiplier inherited from the tier
}

// TierRoster is an immutable snapshot of the wallets monitored per timeframe
// tier, ordered by win rate within each tier. A wallet appears in at most one
// tier. Readers always see a whole snapshot; the tier engine publishes new
// snapshots atomically and never mutates a published one.
type TierRoster struct {
	Tiers      map[Timeframe][]RosterMember
	ComputedAt time.Time
}

// EmptyRoster returns a roster with no members, used before the first
// recompute completes.
func EmptyRoster() *TierRoster {
	return &TierRoster{Tiers: map[Timeframe][]RosterMember{}, ComputedAt: time.Time{}}
}

// TierOf returns the tier a wallet currently belongs to, or TimeframeUnknown
// when the wallet is not on the roster.
func (r *TierRoster) TierOf(wallet string) (Timeframe, RosterMember, bool) {
	w := strings.ToLower(wallet)
	for _, tf := range Timeframes {
		for _, m := range r.Tiers[tf] {
			if strings.ToLower(m.Wallet) == w {
				return tf, m, true
			}
		}
	}
	return TimeframeUnknown, RosterMember{}, false
}

// Contains reports whether the wallet is on any tier.
func (r *TierRoster) Contains(wallet string) bool {
	_, _, ok := r.TierOf(wallet)
	return ok
}

// Wallets returns every monitored wallet address across all tiers.
func (r *TierRoster) Wallets() []string {
	var out []string
	for _, tf := range Timeframes {
		for _, m := range r.Tiers[tf] {
			out = append(out, m.Wallet)
		}
	}
	return out
}

// Size returns the total member count.
func (r *TierRoster) Size() int {
	n := 0
	for _, members := range r.Tiers {
		n += len(members)
	}
	return n
}
