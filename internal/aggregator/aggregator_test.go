package aggregator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfchan/whalebot/internal/domain"
)

type staticRoster struct {
	roster *domain.TierRoster
}

func (s *staticRoster) Roster() *domain.TierRoster { return s.roster }

func rosterWith(wallets ...string) *staticRoster {
	members := make([]domain.RosterMember, 0, len(wallets))
	for _, w := range wallets {
		members = append(members, domain.RosterMember{Wallet: w, Multiplier: 1})
	}
	return &staticRoster{roster: &domain.TierRoster{
		Tiers: map[domain.Timeframe][]domain.RosterMember{
			domain.Timeframe15Min: members,
		},
	}}
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func fill(wallet string, seq int64, size, price float64, at time.Time) domain.RawFill {
	return domain.RawFill{
		Wallet:    wallet,
		TokenID:   "tok1",
		MarketID:  "mkt1",
		Side:      domain.TradeSideBuy,
		Price:     price,
		Size:      size,
		Sequence:  seq,
		Timestamp: at,
	}
}

func TestAggregatorMergesPartialFills(t *testing.T) {
	a := New(rosterWith("0xwhale"), time.Second, nil, nil, discard())
	now := time.Now()

	a.ingest(fill("0xwhale", 1, 100, 0.60, now))
	a.ingest(fill("0xwhale", 2, 50, 0.62, now))
	a.ingest(fill("0xwhale", 3, 50, 0.64, now))

	a.flushExpired(now.Add(2 * time.Second))
	require.Len(t, a.queue, 1)

	trade := a.queue[0]
	assert.Equal(t, "0xwhale", trade.Wallet)
	assert.Equal(t, 3, trade.FillCount)
	assert.InDelta(t, 200.0, trade.Size, 1e-9)
	// 100*0.60 + 50*0.62 + 50*0.64 = 123
	assert.InDelta(t, 123.0, trade.Notional, 1e-9)
	assert.InDelta(t, 0.615, trade.AvgPrice, 1e-9)
	assert.Equal(t, int64(1), trade.FirstSeq)
}

func TestAggregatorSeparatesSides(t *testing.T) {
	a := New(rosterWith("0xwhale"), time.Second, nil, nil, discard())
	now := time.Now()

	buy := fill("0xwhale", 1, 100, 0.60, now)
	sell := fill("0xwhale", 2, 100, 0.60, now)
	sell.Side = domain.TradeSideSell

	a.ingest(buy)
	a.ingest(sell)
	a.flushExpired(now.Add(2 * time.Second))

	assert.Len(t, a.queue, 2)
}

func TestAggregatorWindowBoundary(t *testing.T) {
	a := New(rosterWith("0xwhale"), time.Second, nil, nil, discard())
	now := time.Now()

	a.ingest(fill("0xwhale", 1, 100, 0.60, now))
	// Inside the window: nothing flushes.
	a.flushExpired(now.Add(500 * time.Millisecond))
	assert.Empty(t, a.queue)

	// A late fill for the same bucket still merges.
	a.ingest(fill("0xwhale", 2, 100, 0.60, now.Add(600*time.Millisecond)))
	a.flushExpired(now.Add(2 * time.Second))
	require.Len(t, a.queue, 1)
	assert.Equal(t, 2, a.queue[0].FillCount)
}

func TestAggregatorFiltersNonRosterAndSelf(t *testing.T) {
	a := New(rosterWith("0xwhale"), time.Second, []string{"0xself"}, nil, discard())
	now := time.Now()

	a.ingest(fill("0xother", 1, 100, 0.60, now)) // not on roster
	a.ingest(fill("0xself", 2, 100, 0.60, now))  // own wallet
	a.flushExpired(now.Add(2 * time.Second))

	assert.Empty(t, a.queue)
	assert.Empty(t, a.buckets)
}

func TestAggregatorDropsInvalidFills(t *testing.T) {
	a := New(rosterWith("0xwhale"), time.Second, nil, nil, discard())
	now := time.Now()

	a.ingest(fill("0xwhale", 1, 0, 0.60, now))
	a.ingest(fill("0xwhale", 2, 100, 0, now))
	assert.Empty(t, a.buckets)
}

type captureRecorder struct {
	trades []domain.CandidateTrade
}

func (r *captureRecorder) Record(trade domain.CandidateTrade) {
	r.trades = append(r.trades, trade)
}

func TestAggregatorRecordsFlushedBatch(t *testing.T) {
	rec := &captureRecorder{}
	a := New(rosterWith("0xaaa", "0xbbb"), time.Second, nil, rec, discard())
	now := time.Now()

	f1 := fill("0xaaa", 1, 500, 0.65, now)
	f2 := fill("0xbbb", 2, 520, 0.65, now)
	a.ingest(f1)
	a.ingest(f2)

	a.flushExpired(now.Add(2 * time.Second))

	// Both trades of the batch reach the recorder before either is
	// delivered downstream, so simultaneous copies see each other.
	require.Len(t, rec.trades, 2)
	require.Len(t, a.queue, 2)
	wallets := []string{rec.trades[0].Wallet, rec.trades[1].Wallet}
	assert.ElementsMatch(t, []string{"0xaaa", "0xbbb"}, wallets)
}

func TestTradeIDDeterministic(t *testing.T) {
	id1 := TradeID("0xwhale", "tok1", domain.TradeSideBuy, 42)
	id2 := TradeID("0xwhale", "tok1", domain.TradeSideBuy, 42)
	id3 := TradeID("0xwhale", "tok1", domain.TradeSideSell, 42)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestAggregatorRunDeliversTrades(t *testing.T) {
	a := New(rosterWith("0xwhale"), 50*time.Millisecond, nil, nil, discard())
	fills := make(chan domain.RawFill, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, fills) }()

	fills <- fill("0xwhale", 1, 100, 0.60, time.Now())

	select {
	case trade := <-a.Trades():
		assert.Equal(t, "0xwhale", trade.Wallet)
	case <-ctx.Done():
		t.Fatal("no trade delivered before timeout")
	}

	close(fills)
	require.NoError(t, <-done)
}
