package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfchan/whalebot/internal/config"
	"github.com/hfchan/whalebot/internal/domain"
	"github.com/hfchan/whalebot/internal/executor"
)

type stubMarkets struct {
	info domain.MarketInfo
}

func (s *stubMarkets) InfoByToken(context.Context, string) (domain.MarketInfo, error) {
	return s.info, nil
}

type copierFixture struct {
	copier    *Copier
	stats     *memStatsStore
	positions *memPositionStore
	placer    *stubPlacer
	tiers     *TierService
	markets   *stubMarkets
	bus       *captureBus
}

func newCopierFixture(t *testing.T) *copierFixture {
	t.Helper()
	cfg := config.Defaults()

	f := &copierFixture{
		stats:     newMemStatsStore(),
		positions: newMemPositionStore(),
		placer:    &stubPlacer{},
		markets:   &stubMarkets{},
		bus:       &captureBus{},
	}
	f.tiers = NewTierService(f.stats, &memRosterStore{}, &memAuditStore{}, cfg.Tiers, discard())

	lifecycle := NewLifecycleService(f.positions, newMemLedgerStore(), &memAuditStore{},
		f.placer, noopLocks{}, nil, cfg.Copier, discard())
	require.NoError(t, lifecycle.Init(context.Background()))

	f.copier = NewCopier(
		f.markets,
		f.tiers,
		NewStatsService(f.stats, discard()),
		NewScorer(cfg.Copier, cfg.Tiers),
		NewCorrelationTracker(cfg.Copier.CorrelationWindow.Duration),
		lifecycle,
		f.bus,
		nil, // notifier
		cfg.Copier,
		discard())
	return f
}

// decisionScores extracts the published confidence score of every
// decision in publish order.
func (f *copierFixture) decisionScores(t *testing.T) []float64 {
	t.Helper()
	var out []float64
	for _, msg := range f.bus.payloads() {
		var d struct {
			Score float64 `json:"score"`
		}
		require.NoError(t, json.Unmarshal(msg, &d))
		out = append(out, d.Score)
	}
	return out
}

func (f *copierFixture) putOnRoster(tier domain.Timeframe, wallet string) {
	f.tiers.current.Store(&domain.TierRoster{Tiers: map[domain.Timeframe][]domain.RosterMember{
		tier: {{Wallet: wallet, WinRate: 0.9, TradeCount: 50, Multiplier: 1.0}},
	}})
}

func hourlyMarket() domain.MarketInfo {
	end := time.Now().Add(40 * time.Minute)
	return domain.MarketInfo{
		MarketID:  "mkt1",
		TokenID:   "tok1",
		Question:  "Bitcoin Up or Down this hour",
		Timeframe: domain.TimeframeHourly,
		EndTime:   &end,
	}
}

// strongStats yields a shrunk win rate of 0.96, scoring 96.
func strongStats(wallet string, tf domain.Timeframe) domain.WalletStats {
	return domain.WalletStats{
		Wallet: wallet, Timeframe: tf,
		TradeCount: 144, WinCount: 141, BuyCount: 144,
	}
}

func TestCopierCopiesAboveThreshold(t *testing.T) {
	f := newCopierFixture(t)
	f.putOnRoster(domain.TimeframeHourly, "0xwhale")
	f.stats.seed(strongStats("0xwhale", domain.TimeframeHourly))
	f.markets.info = hourlyMarket()

	require.NoError(t, f.copier.HandleCandidate(context.Background(), candidate()))

	// Hourly specialist in an hourly market: 96 clears the 90 bar.
	pending, _ := f.positions.ListPending(context.Background())
	require.Len(t, pending, 1)

	// The observation is recorded as copied.
	obs := f.stats.trades[candidate().TradeID]
	assert.True(t, obs.Copied)
}

func TestCopierOffSpecialtyAcrossTiers(t *testing.T) {
	f := newCopierFixture(t)
	// Daily specialist trading a 15min market: bar is 93+6 = 99.
	f.putOnRoster(domain.TimeframeDaily, "0xwhale")
	f.stats.seed(strongStats("0xwhale", domain.Timeframe15Min))

	end := time.Now().Add(10 * time.Minute)
	f.markets.info = domain.MarketInfo{
		MarketID: "mkt1", TokenID: "tok1",
		Timeframe: domain.Timeframe15Min, EndTime: &end,
	}

	require.NoError(t, f.copier.HandleCandidate(context.Background(), candidate()))

	// Score 96 minus the specialty penalty cannot clear 99: observed
	// but not copied.
	pending, _ := f.positions.ListPending(context.Background())
	assert.Empty(t, pending)

	obs, ok := f.stats.trades[candidate().TradeID]
	require.True(t, ok, "skipped trades still feed the stats store")
	assert.False(t, obs.Copied)
}

func TestCopierTracksSimulatedPositionsWithPaperPlacer(t *testing.T) {
	cfg := config.Defaults()
	stats := newMemStatsStore()
	positions := newMemPositionStore()
	tiers := NewTierService(stats, &memRosterStore{}, &memAuditStore{}, cfg.Tiers, discard())

	lifecycle := NewLifecycleService(positions, newMemLedgerStore(), &memAuditStore{},
		executor.NewPaperExecutor(discard()), noopLocks{}, nil, cfg.Copier, discard())
	require.NoError(t, lifecycle.Init(context.Background()))

	copier := NewCopier(
		&stubMarkets{info: hourlyMarket()},
		tiers,
		NewStatsService(stats, discard()),
		NewScorer(cfg.Copier, cfg.Tiers),
		NewCorrelationTracker(cfg.Copier.CorrelationWindow.Duration),
		lifecycle,
		nil, // bus
		nil, // notifier
		cfg.Copier,
		discard())

	tiers.current.Store(&domain.TierRoster{Tiers: map[domain.Timeframe][]domain.RosterMember{
		domain.TimeframeHourly: {{Wallet: "0xwhale", WinRate: 0.9, TradeCount: 50, Multiplier: 1.0}},
	}})
	stats.seed(strongStats("0xwhale", domain.TimeframeHourly))

	require.NoError(t, copier.HandleCandidate(context.Background(), candidate()))

	// The paper placer fills at the whale's entry price; the simulated
	// position then rides the normal lifecycle to resolution.
	pending, err := positions.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 0.65, pending[0].EntryPrice)

	obs := stats.trades[candidate().TradeID]
	assert.True(t, obs.Copied)
}

func TestCopierCorrelatedPairBothPenalized(t *testing.T) {
	f := newCopierFixture(t)
	f.markets.info = hourlyMarket()
	f.tiers.current.Store(&domain.TierRoster{Tiers: map[domain.Timeframe][]domain.RosterMember{
		domain.TimeframeHourly: {
			{Wallet: "0xaaa", WinRate: 0.9, TradeCount: 50, Multiplier: 1.0},
			{Wallet: "0xbbb", WinRate: 0.9, TradeCount: 50, Multiplier: 1.0},
		},
	}})
	f.stats.seed(strongStats("0xaaa", domain.TimeframeHourly))
	f.stats.seed(strongStats("0xbbb", domain.TimeframeHourly))

	a := candidate()
	a.TradeID, a.Wallet = "0xaaa:tok1:BUY:1", "0xaaa"
	b := candidate()
	b.TradeID, b.Wallet = "0xbbb:tok1:BUY:2", "0xbbb"
	b.Notional = 340

	// The aggregator registers a flushed batch before any member is
	// decided, so each trade sees the other.
	f.copier.correlation.Record(a)
	f.copier.correlation.Record(b)

	require.NoError(t, f.copier.HandleCandidate(context.Background(), a))
	require.NoError(t, f.copier.HandleCandidate(context.Background(), b))

	scores := f.decisionScores(t)
	require.Len(t, scores, 2)

	// Alone either wallet scores 96; seen together each pays the
	// herding penalty.
	for _, score := range scores {
		assert.Less(t, score, 96.0)
		assert.InDelta(t, 92.0, score, 0.01)
	}
}

func TestCopierSkipsOversizedWhaleOrders(t *testing.T) {
	f := newCopierFixture(t)
	f.putOnRoster(domain.TimeframeHourly, "0xwhale")
	f.stats.seed(strongStats("0xwhale", domain.TimeframeHourly))
	f.markets.info = hourlyMarket()

	big := candidate()
	big.Notional = 50000

	require.NoError(t, f.copier.HandleCandidate(context.Background(), big))
	assert.Empty(t, f.placer.placed)
}

func TestCopierResolvedMarketRecordsOnly(t *testing.T) {
	f := newCopierFixture(t)
	f.putOnRoster(domain.TimeframeHourly, "0xwhale")
	f.stats.seed(strongStats("0xwhale", domain.TimeframeHourly))

	info := hourlyMarket()
	info.Resolved = true
	winner := domain.TradeSideBuy
	info.WinningSide = &winner
	f.markets.info = info

	require.NoError(t, f.copier.HandleCandidate(context.Background(), candidate()))

	assert.Empty(t, f.placer.placed)
	_, ok := f.stats.trades[candidate().TradeID]
	assert.True(t, ok)
}

func TestCopierIgnoresOffRosterWallet(t *testing.T) {
	f := newCopierFixture(t)
	f.markets.info = hourlyMarket()

	require.NoError(t, f.copier.HandleCandidate(context.Background(), candidate()))

	assert.Empty(t, f.placer.placed)
	assert.Empty(t, f.stats.trades)
}

func TestCopierReplayedCandidateDoesNotDoubleCount(t *testing.T) {
	f := newCopierFixture(t)
	f.putOnRoster(domain.TimeframeHourly, "0xwhale")
	f.stats.seed(strongStats("0xwhale", domain.TimeframeHourly))
	f.markets.info = hourlyMarket()

	require.NoError(t, f.copier.HandleCandidate(context.Background(), candidate()))
	before := f.stats.stats[statsKey("0xwhale", domain.TimeframeHourly)]

	// Same logical trade replayed (restart, reconnect): stable trade ID
	// makes the second observation a no-op.
	require.NoError(t, f.copier.HandleCandidate(context.Background(), candidate()))
	after := f.stats.stats[statsKey("0xwhale", domain.TimeframeHourly)]

	assert.Equal(t, before.PendingCount, after.PendingCount)

	// And no duplicate position.
	pending, _ := f.positions.ListPending(context.Background())
	assert.Len(t, pending, 1)
}
