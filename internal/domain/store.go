package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// TopQuery filters QueryTop results. Wallets must clear both floors.
type TopQuery struct {
	Timeframe  Timeframe
	MinTrades  int
	MinWinRate float64
	Limit      int
}

// WalletStatsStore persists per-wallet, per-timeframe performance aggregates
// and the observed trades behind them.
//
// Both record operations must be idempotent: trade IDs are deterministic and
// fill events replay after restarts. RecordPending returns first == false
// when the trade was already recorded; RecordResolved returns
// applied == false when the trade was already resolved or unknown. Neither
// case double counts.
type WalletStatsStore interface {
	RecordPending(ctx context.Context, obs ObservedTrade) (first bool, err error)
	RecordResolved(ctx context.Context, tradeID string, won bool, profit float64) (applied bool, err error)
	Query(ctx context.Context, wallet string, tf Timeframe) (WalletStats, error)
	QueryTop(ctx context.Context, q TopQuery) ([]WalletStats, error)
	ListPendingByMarket(ctx context.Context, marketID string) ([]ObservedTrade, error)
}

// RosterStore persists tier roster snapshots. Replace rewrites the roster
// wholesale in one transaction; Load re-derives the in-memory snapshot on
// restart.
type RosterStore interface {
	Replace(ctx context.Context, roster *TierRoster) error
	Load(ctx context.Context) (*TierRoster, error)
}

// PositionStore persists positions. MarkResolved and MarkCancelled are
// conditional on the position still being PENDING and report whether the
// transition applied; this is the terminal-state gate.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	MarkResolved(ctx context.Context, id string, outcome Outcome, pnl float64, at time.Time) (applied bool, err error)
	MarkCancelled(ctx context.Context, id string) (applied bool, err error)
	MarkNeedsReview(ctx context.Context, id string) error
	ListPending(ctx context.Context) ([]Position, error)
	ListPendingDue(ctx context.Context, dueBy time.Time) ([]Position, error)
	CountPending(ctx context.Context) (int, error)
	ListResolvedBefore(ctx context.Context, cutoff time.Time, opts ListOpts) ([]Position, error)
}

// LedgerStore persists the capital ledger. ApplyDelta is keyed by position ID
// and reports applied == false if a delta for that position already exists,
// so a replayed resolution can never move capital twice.
type LedgerStore interface {
	Seed(ctx context.Context, starting float64) error
	ApplyDelta(ctx context.Context, entry LedgerEntry) (applied bool, err error)
	Summary(ctx context.Context) (LedgerSummary, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of decisions and lifecycle
// events, and supports pruning after cold-storage archival.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	ListBefore(ctx context.Context, cutoff time.Time, opts ListOpts) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
