package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hfchan/whalebot/internal/config"
	"github.com/hfchan/whalebot/internal/domain"
)

func newTestScorer() *Scorer {
	cfg := config.Defaults()
	return NewScorer(cfg.Copier, cfg.Tiers)
}

func statsWith(wins, trades int) domain.WalletStats {
	return domain.WalletStats{
		Wallet:     "0xwhale",
		Timeframe:  domain.Timeframe15Min,
		TradeCount: trades,
		WinCount:   wins,
		BuyCount:   trades,
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := newTestScorer()
	in := ScoreInput{
		Stats:    statsWith(40, 50),
		Tier:     domain.Timeframe15Min,
		MarketTF: domain.Timeframe15Min,
	}
	assert.Equal(t, s.Score(in), s.Score(in))
}

func TestScoreShrinksSmallSamples(t *testing.T) {
	s := newTestScorer()

	// 3-0 looks perfect but carries almost no information; 40-6 is a
	// real record. Shrinkage must rank the larger sample higher.
	hot := s.Score(ScoreInput{Stats: statsWith(3, 3), Tier: domain.Timeframe15Min, MarketTF: domain.Timeframe15Min})
	proven := s.Score(ScoreInput{Stats: statsWith(40, 46), Tier: domain.Timeframe15Min, MarketTF: domain.Timeframe15Min})

	assert.Greater(t, proven, hot)
}

func TestScoreNeutralWithNoHistory(t *testing.T) {
	s := newTestScorer()
	score := s.Score(ScoreInput{Stats: statsWith(0, 0), Tier: domain.Timeframe15Min, MarketTF: domain.Timeframe15Min})
	assert.InDelta(t, 50.0, score, 1e-9)
}

func TestScoreOffSpecialtyPenalty(t *testing.T) {
	s := newTestScorer()
	stats := statsWith(45, 50)

	on := s.Score(ScoreInput{Stats: stats, Tier: domain.Timeframe15Min, MarketTF: domain.Timeframe15Min})
	off := s.Score(ScoreInput{Stats: stats, Tier: domain.Timeframe15Min, MarketTF: domain.TimeframeDaily})

	assert.InDelta(t, 6.0, on-off, 1e-9)
}

func TestScoreCorrelationPenalty(t *testing.T) {
	s := newTestScorer()
	stats := statsWith(45, 50)

	alone := s.Score(ScoreInput{Stats: stats, Tier: domain.Timeframe15Min, MarketTF: domain.Timeframe15Min})
	crowded := s.Score(ScoreInput{Stats: stats, Tier: domain.Timeframe15Min, MarketTF: domain.Timeframe15Min, Correlated: 2})

	assert.Less(t, crowded, alone)

	// The penalty caps out.
	herd := s.Score(ScoreInput{Stats: stats, Tier: domain.Timeframe15Min, MarketTF: domain.Timeframe15Min, Correlated: 50})
	assert.InDelta(t, alone-correlationCap, herd, 1e-9)
}

func TestScoreMarketMakerFingerprint(t *testing.T) {
	s := newTestScorer()

	directional := domain.WalletStats{TradeCount: 50, WinCount: 45, BuyCount: 45, SellCount: 5}
	flat := domain.WalletStats{TradeCount: 50, WinCount: 45, BuyCount: 26, SellCount: 24}

	assert.Greater(t,
		s.Score(ScoreInput{Stats: directional, Tier: domain.Timeframe15Min, MarketTF: domain.Timeframe15Min}),
		s.Score(ScoreInput{Stats: flat, Tier: domain.Timeframe15Min, MarketTF: domain.Timeframe15Min}))

	// Balanced ratio over a tiny sample is not a fingerprint.
	smallFlat := domain.WalletStats{TradeCount: 5, WinCount: 4, BuyCount: 3, SellCount: 2}
	assert.False(t, s.looksLikeMarketMaker(smallFlat))
}

func TestScoreBounds(t *testing.T) {
	s := newTestScorer()

	floor := s.Score(ScoreInput{
		Stats:      domain.WalletStats{TradeCount: 30, WinCount: 0, BuyCount: 15, SellCount: 15},
		Tier:       domain.Timeframe15Min,
		MarketTF:   domain.TimeframeDaily,
		Correlated: 10,
	})
	assert.GreaterOrEqual(t, floor, 0.0)

	ceiling := s.Score(ScoreInput{
		Stats:    statsWith(500, 500),
		Tier:     domain.Timeframe15Min,
		MarketTF: domain.Timeframe15Min,
	})
	assert.LessOrEqual(t, ceiling, 100.0)
}

func TestCorrelationTrackerCountsSimilarOrders(t *testing.T) {
	tracker := NewCorrelationTracker(15 * time.Minute)
	now := time.Now()

	trade := func(id, wallet string, notional float64, at time.Time) domain.CandidateTrade {
		return domain.CandidateTrade{
			TradeID:    id,
			Wallet:     wallet,
			TokenID:    "tok1",
			Side:       domain.TradeSideBuy,
			Notional:   notional,
			ObservedAt: at,
		}
	}

	a := trade("t1", "0xaaa", 1000, now)
	b := trade("t2", "0xbbb", 1100, now.Add(time.Minute))
	c := trade("t3", "0xccc", 1050, now.Add(2*time.Minute))
	tracker.Record(a)
	tracker.Record(b)
	tracker.Record(c)

	// All three look like the same order: each sees the other two.
	assert.Equal(t, 2, tracker.Matches(a))
	assert.Equal(t, 2, tracker.Matches(b))
	assert.Equal(t, 2, tracker.Matches(c))

	// Re-recording the same trade ID never inflates the count.
	tracker.Record(a)
	assert.Equal(t, 2, tracker.Matches(b))
}

func TestCorrelationTrackerIgnoresDissimilar(t *testing.T) {
	tracker := NewCorrelationTracker(15 * time.Minute)
	now := time.Now()

	tracker.Record(domain.CandidateTrade{TradeID: "t1", Wallet: "0xaaa", TokenID: "tok1", Side: domain.TradeSideBuy, Notional: 1000, ObservedAt: now})

	// Different token.
	assert.Equal(t, 0, tracker.Matches(domain.CandidateTrade{
		Wallet: "0xbbb", TokenID: "tok2", Side: domain.TradeSideBuy, Notional: 1000, ObservedAt: now}))
	// Different side.
	assert.Equal(t, 0, tracker.Matches(domain.CandidateTrade{
		Wallet: "0xccc", TokenID: "tok1", Side: domain.TradeSideSell, Notional: 1000, ObservedAt: now}))
	// Wildly different size.
	assert.Equal(t, 0, tracker.Matches(domain.CandidateTrade{
		Wallet: "0xddd", TokenID: "tok1", Side: domain.TradeSideBuy, Notional: 50, ObservedAt: now}))
	// Same wallet never correlates with itself.
	assert.Equal(t, 0, tracker.Matches(domain.CandidateTrade{
		Wallet: "0xaaa", TokenID: "tok1", Side: domain.TradeSideBuy, Notional: 1000, ObservedAt: now}))
}

func TestCorrelationTrackerWindowEviction(t *testing.T) {
	tracker := NewCorrelationTracker(15 * time.Minute)
	now := time.Now()

	tracker.Record(domain.CandidateTrade{TradeID: "t1", Wallet: "0xaaa", TokenID: "tok1", Side: domain.TradeSideBuy, Notional: 1000, ObservedAt: now})

	// Past the window the earlier order no longer counts.
	assert.Equal(t, 0, tracker.Matches(domain.CandidateTrade{
		Wallet: "0xbbb", TokenID: "tok1", Side: domain.TradeSideBuy, Notional: 1000, ObservedAt: now.Add(16 * time.Minute)}))
}
