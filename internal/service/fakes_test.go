package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hfchan/whalebot/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memStatsStore is an in-memory WalletStatsStore.
type memStatsStore struct {
	mu     sync.Mutex
	stats  map[string]domain.WalletStats // wallet|timeframe
	trades map[string]domain.ObservedTrade
}

func newMemStatsStore() *memStatsStore {
	return &memStatsStore{
		stats:  make(map[string]domain.WalletStats),
		trades: make(map[string]domain.ObservedTrade),
	}
}

func statsKey(wallet string, tf domain.Timeframe) string {
	return wallet + "|" + string(tf)
}

func (m *memStatsStore) seed(s domain.WalletStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[statsKey(s.Wallet, s.Timeframe)] = s
}

func (m *memStatsStore) RecordPending(_ context.Context, obs domain.ObservedTrade) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.trades[obs.TradeID]; exists {
		return false, nil
	}
	m.trades[obs.TradeID] = obs

	key := statsKey(obs.Wallet, obs.Timeframe)
	s := m.stats[key]
	s.Wallet, s.Timeframe = obs.Wallet, obs.Timeframe
	s.PendingCount++
	if obs.Side == domain.TradeSideBuy {
		s.BuyCount++
	} else {
		s.SellCount++
	}
	m.stats[key] = s
	return true, nil
}

func (m *memStatsStore) RecordResolved(_ context.Context, tradeID string, won bool, profit float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs, ok := m.trades[tradeID]
	if !ok || obs.Status != domain.ObservedPending {
		return false, nil
	}
	obs.Status = domain.ObservedResolved
	obs.Won = &won
	m.trades[tradeID] = obs

	key := statsKey(obs.Wallet, obs.Timeframe)
	s := m.stats[key]
	s.PendingCount--
	s.TradeCount++
	if won {
		s.WinCount++
	}
	s.Profit += profit
	m.stats[key] = s
	return true, nil
}

func (m *memStatsStore) Query(_ context.Context, wallet string, tf domain.Timeframe) (domain.WalletStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stats[statsKey(wallet, tf)]; ok {
		return s, nil
	}
	return domain.WalletStats{Wallet: wallet, Timeframe: tf}, nil
}

func (m *memStatsStore) QueryTop(_ context.Context, q domain.TopQuery) ([]domain.WalletStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WalletStats
	for _, s := range m.stats {
		if s.Timeframe != q.Timeframe {
			continue
		}
		if s.TradeCount < q.MinTrades || s.WinRate() < q.MinWinRate {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WinRate() > out[j].WinRate() })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStatsStore) ListPendingByMarket(_ context.Context, marketID string) ([]domain.ObservedTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ObservedTrade
	for _, obs := range m.trades {
		if obs.MarketID == marketID && obs.Status == domain.ObservedPending {
			out = append(out, obs)
		}
	}
	return out, nil
}

// memRosterStore is an in-memory RosterStore.
type memRosterStore struct {
	mu     sync.Mutex
	roster *domain.TierRoster
}

func (m *memRosterStore) Replace(_ context.Context, roster *domain.TierRoster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = roster
	return nil
}

func (m *memRosterStore) Load(_ context.Context) (*domain.TierRoster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roster == nil {
		return domain.EmptyRoster(), nil
	}
	return m.roster, nil
}

// memPositionStore is an in-memory PositionStore enforcing the
// terminal-state gate the way the SQL store does.
type memPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.Position)}
}

func (m *memPositionStore) Create(_ context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[pos.ID]; exists {
		return domain.ErrAlreadyExists
	}
	m.positions[pos.ID] = pos
	return nil
}

func (m *memPositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (m *memPositionStore) MarkResolved(_ context.Context, id string, outcome domain.Outcome, pnl float64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok || pos.Status != domain.PositionStatusPending {
		return false, nil
	}
	pos.Status = domain.PositionStatusResolved
	pos.Outcome = &outcome
	pos.PnL = &pnl
	pos.ResolvedAt = &at
	m.positions[id] = pos
	return true, nil
}

func (m *memPositionStore) MarkCancelled(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok || pos.Status != domain.PositionStatusPending {
		return false, nil
	}
	pos.Status = domain.PositionStatusCancelled
	m.positions[id] = pos
	return true, nil
}

func (m *memPositionStore) MarkNeedsReview(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return domain.ErrNotFound
	}
	pos.NeedsReview = true
	m.positions[id] = pos
	return nil
}

func (m *memPositionStore) ListPending(_ context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, pos := range m.positions {
		if pos.Status == domain.PositionStatusPending {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *memPositionStore) ListPendingDue(_ context.Context, dueBy time.Time) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, pos := range m.positions {
		if pos.Status == domain.PositionStatusPending && !pos.EstResolution.After(dueBy) {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *memPositionStore) CountPending(ctx context.Context) (int, error) {
	pending, _ := m.ListPending(ctx)
	return len(pending), nil
}

func (m *memPositionStore) ListResolvedBefore(_ context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, pos := range m.positions {
		if pos.Status == domain.PositionStatusResolved && pos.ResolvedAt != nil && pos.ResolvedAt.Before(cutoff) {
			out = append(out, pos)
		}
	}
	return out, nil
}

// memLedgerStore is an in-memory LedgerStore keyed by position ID.
type memLedgerStore struct {
	mu       sync.Mutex
	starting float64
	seeded   bool
	entries  map[string]domain.LedgerEntry
}

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{entries: make(map[string]domain.LedgerEntry)}
}

func (m *memLedgerStore) Seed(_ context.Context, starting float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seeded {
		m.starting = starting
		m.seeded = true
	}
	return nil
}

func (m *memLedgerStore) ApplyDelta(_ context.Context, entry domain.LedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[entry.PositionID]; exists {
		return false, nil
	}
	m.entries[entry.PositionID] = entry
	return true, nil
}

func (m *memLedgerStore) Summary(_ context.Context) (domain.LedgerSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := domain.LedgerSummary{Starting: m.starting, Current: m.starting}
	for _, e := range m.entries {
		sum.Current += e.Delta
		if e.Outcome == domain.OutcomeWin {
			sum.Wins++
		} else {
			sum.Losses++
		}
	}
	return sum, nil
}

// memAuditStore records events for assertions.
type memAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{
		ID:        int64(len(m.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *memAuditStore) ListBefore(_ context.Context, cutoff time.Time, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAuditStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.AuditEntry
	var deleted int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return deleted, nil
}

func (m *memAuditStore) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Event)
	}
	return out
}

// noopLocks satisfies domain.LockManager without real locking.
type noopLocks struct{}

func (noopLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// stubPlacer fills or rejects every order per configuration.
type stubPlacer struct {
	reject bool
	placed []domain.OrderRequest
	mu     sync.Mutex
}

func (p *stubPlacer) Place(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, req)
	if p.reject {
		return domain.OrderResult{Reason: "no liquidity"}, nil
	}
	return domain.OrderResult{Filled: true, FillPrice: req.MaxPrice, Quantity: req.Size}, nil
}

// captureBus records every published payload.
type captureBus struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (b *captureBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, payload)
	return nil
}

func (b *captureBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *captureBus) payloads() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.msgs...)
}
