package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfchan/whalebot/internal/config"
	"github.com/hfchan/whalebot/internal/domain"
	"github.com/hfchan/whalebot/internal/service"
)

type pollerFixture struct {
	poller    *ResolutionPoller
	positions *memPositionStore
	ledger    *memLedgerStore
	stats     *memStatsStore
	audit     *memAuditStore
	source    *fakeSource
}

func newPollerFixture(t *testing.T) *pollerFixture {
	t.Helper()
	cfg := config.Defaults()

	f := &pollerFixture{
		positions: newMemPositionStore(),
		ledger:    newMemLedgerStore(),
		stats:     newMemStatsStore(),
		audit:     &memAuditStore{},
		source:    newFakeSource(),
	}
	lifecycle := service.NewLifecycleService(f.positions, f.ledger, f.audit,
		noopPlacer{}, noopLocks{}, nil, cfg.Copier, discard())
	require.NoError(t, lifecycle.Init(context.Background()))

	f.poller = NewResolutionPoller(f.positions, f.source, lifecycle,
		service.NewStatsService(f.stats, discard()), f.audit, nil, cfg.Poller, discard())
	return f
}

func (f *pollerFixture) addPosition(t *testing.T, id, tokenID string, est time.Time) {
	t.Helper()
	require.NoError(t, f.positions.Create(context.Background(), domain.Position{
		ID:            id,
		MarketID:      "mkt1",
		TokenID:       tokenID,
		Side:          domain.TradeSideBuy,
		Quantity:      100,
		EntryPrice:    0.65,
		TotalCost:     65,
		Whale:         "0xwhale",
		Tier:          domain.TimeframeHourly,
		Timeframe:     domain.TimeframeHourly,
		Status:        domain.PositionStatusPending,
		OpenedAt:      time.Now().Add(-time.Hour),
		EstResolution: est,
	}))
}

func side(s domain.TradeSide) *domain.TradeSide { return &s }

func TestPollerSettlesResolvedMarket(t *testing.T) {
	f := newPollerFixture(t)
	f.addPosition(t, "pos1", "tok1", time.Now().Add(-time.Minute))
	f.source.set("tok1", sourceResult{resolved: true, winner: side(domain.TradeSideBuy)})

	// A pending observation on the same market settles in the same pass.
	_, err := f.stats.RecordPending(context.Background(), domain.ObservedTrade{
		TradeID:   "0xother:tok1:BUY:7",
		Wallet:    "0xother",
		MarketID:  "mkt1",
		Side:      domain.TradeSideBuy,
		Timeframe: domain.TimeframeHourly,
		Status:    domain.ObservedPending,
	})
	require.NoError(t, err)

	require.NoError(t, f.poller.poll(context.Background()))

	pos, err := f.positions.GetByID(context.Background(), "pos1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusResolved, pos.Status)
	require.NotNil(t, pos.PnL)
	assert.InDelta(t, 35.0, *pos.PnL, 1e-9)

	sum, _ := f.ledger.Summary(context.Background())
	assert.Equal(t, 1, sum.Wins)

	obs := f.stats.trades["0xother:tok1:BUY:7"]
	assert.Equal(t, domain.ObservedResolved, obs.Status)
	require.NotNil(t, obs.Won)
	assert.True(t, *obs.Won)
}

func TestPollerTransientFailureLeavesPositionAlone(t *testing.T) {
	f := newPollerFixture(t)
	// Long past its estimate, but the oracle is down: an error must not
	// be read as a staleness signal.
	f.addPosition(t, "pos1", "tok1", time.Now().Add(-24*time.Hour))
	f.source.set("tok1", sourceResult{err: errors.New("gateway timeout")})

	require.NoError(t, f.poller.poll(context.Background()))

	pos, _ := f.positions.GetByID(context.Background(), "pos1")
	assert.Equal(t, domain.PositionStatusPending, pos.Status)
	assert.False(t, pos.NeedsReview)
	assert.Empty(t, f.audit.events())
}

func TestPollerFlagsStaleUnresolvedPosition(t *testing.T) {
	f := newPollerFixture(t)
	f.addPosition(t, "pos1", "tok1", time.Now().Add(-24*time.Hour))
	f.source.set("tok1", sourceResult{resolved: false})

	require.NoError(t, f.poller.poll(context.Background()))

	pos, _ := f.positions.GetByID(context.Background(), "pos1")
	assert.Equal(t, domain.PositionStatusPending, pos.Status, "flagging keeps the position pending")
	assert.True(t, pos.NeedsReview)
	assert.Contains(t, f.audit.events(), "position_needs_review")

	// A second pass does not re-flag or re-audit.
	before := len(f.audit.events())
	require.NoError(t, f.poller.poll(context.Background()))
	assert.Len(t, f.audit.events(), before)
}

func TestPollerRecentUnresolvedStaysQuiet(t *testing.T) {
	f := newPollerFixture(t)
	// Due (inside the lead window) but barely past its estimate.
	f.addPosition(t, "pos1", "tok1", time.Now().Add(-time.Minute))
	f.source.set("tok1", sourceResult{resolved: false})

	require.NoError(t, f.poller.poll(context.Background()))

	pos, _ := f.positions.GetByID(context.Background(), "pos1")
	assert.False(t, pos.NeedsReview)
}

func TestPollerSkipsPositionsNotYetDue(t *testing.T) {
	f := newPollerFixture(t)
	f.addPosition(t, "pos1", "tok1", time.Now().Add(12*time.Hour))

	require.NoError(t, f.poller.poll(context.Background()))

	assert.Zero(t, f.source.calls["tok1"])
}

func TestPollerChecksSharedMarketOnce(t *testing.T) {
	f := newPollerFixture(t)
	f.addPosition(t, "pos1", "tok1", time.Now().Add(-time.Minute))
	f.addPosition(t, "pos2", "tok1", time.Now().Add(-time.Minute))
	f.source.set("tok1", sourceResult{resolved: true, winner: side(domain.TradeSideSell)})

	require.NoError(t, f.poller.poll(context.Background()))

	assert.Equal(t, 1, f.source.calls["tok1"])

	for _, id := range []string{"pos1", "pos2"} {
		pos, _ := f.positions.GetByID(context.Background(), id)
		require.Equal(t, domain.PositionStatusResolved, pos.Status)
		require.NotNil(t, pos.PnL)
		// We held BUY tokens and SELL won.
		assert.InDelta(t, -65.0, *pos.PnL, 1e-9)
	}
}
