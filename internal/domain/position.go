package domain

import "time"

// PositionStatus is the lifecycle state of a mirrored position.
type PositionStatus string

const (
	PositionStatusPending   PositionStatus = "PENDING"
	PositionStatusResolved  PositionStatus = "RESOLVED"
	PositionStatusCancelled PositionStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s PositionStatus) Terminal() bool {
	return s == PositionStatusResolved || s == PositionStatusCancelled
}

// Outcome is the resolved result of a position's market relative to our side.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// Position is the durable record of a decision to mirror a whale trade.
// Once RESOLVED or CANCELLED a position is immutable; only the resolution
// path writes Status.
type Position struct {
	ID            string
	MarketID      string
	TokenID       string
	Side          TradeSide
	Quantity      float64
	EntryPrice    float64
	TotalCost     float64
	Whale         string
	Confidence    float64 // score at entry
	Tier          Timeframe
	Timeframe     Timeframe // the market's timeframe, may differ from Tier
	Status        PositionStatus
	Outcome       *Outcome
	PnL           *float64
	NeedsReview   bool // staleness flag: resolution overdue past the bound
	OpenedAt      time.Time
	EstResolution time.Time
	ResolvedAt    *time.Time
}

// ResolutionPnL computes the deterministic P&L for the given outcome: winning
// tokens redeem at $1 each, losing tokens are worthless.
func ResolutionPnL(outcome Outcome, quantity, totalCost float64) float64 {
	if outcome == OutcomeWin {
		return quantity*1.0 - totalCost
	}
	return -totalCost
}
