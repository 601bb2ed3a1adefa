package domain

import "time"

// LedgerEntry is one realized P&L delta applied to tracked capital. Entries
// are keyed by position ID so a resolution can never apply twice.
type LedgerEntry struct {
	PositionID string
	Delta      float64
	Outcome    Outcome
	AppliedAt  time.Time
}

// LedgerSummary is the current capital picture. The core invariant is
// Current == Starting + sum of all entry deltas, exact at all times.
type LedgerSummary struct {
	Starting  float64
	Current   float64
	Wins      int
	Losses    int
	UpdatedAt time.Time
}

// RealizedPnL returns total profit or loss since the ledger was seeded.
func (s LedgerSummary) RealizedPnL() float64 {
	return s.Current - s.Starting
}

// DrawdownFraction returns realized losses as a fraction of starting capital,
// zero when the ledger is at or above its starting level.
func (s LedgerSummary) DrawdownFraction() float64 {
	if s.Starting <= 0 || s.Current >= s.Starting {
		return 0
	}
	return (s.Starting - s.Current) / s.Starting
}
