// Package aggregator merges the raw fill stream into whole logical
// trades. Exchanges report one whale order as many partial fills; the
// copier must see it once, at its full size, before deciding.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hfchan/whalebot/internal/domain"
)

// RosterView exposes the current tier roster snapshot. The aggregator
// only buckets fills from wallets present in some tier.
type RosterView interface {
	Roster() *domain.TierRoster
}

// TradeRecorder learns about completed trades before they reach the
// consumer. A whole flush batch is recorded up front, so simultaneous
// near-identical trades can see each other at decision time.
type TradeRecorder interface {
	Record(trade domain.CandidateTrade)
}

type bucketKey struct {
	wallet  string
	tokenID string
	side    domain.TradeSide
}

type bucket struct {
	marketID  string
	totalSize float64
	totalCost float64
	firstSeq  int64
	fills     int
	openedAt  time.Time
}

// Aggregator windows fills per (wallet, token, side) and flushes each
// bucket when its window elapses. Fill arrival never blocks on the
// consumer: completed trades queue internally without bound so a burst
// cannot stall the feed reader.
type Aggregator struct {
	roster   RosterView
	window   time.Duration
	self     map[string]struct{} // own trading wallets, never copied
	recorder TradeRecorder       // optional
	logger   *slog.Logger

	buckets map[bucketKey]*bucket
	queue   []domain.CandidateTrade
	out     chan domain.CandidateTrade
}

func New(roster RosterView, window time.Duration, selfWallets []string, recorder TradeRecorder, logger *slog.Logger) *Aggregator {
	self := make(map[string]struct{}, len(selfWallets))
	for _, w := range selfWallets {
		self[w] = struct{}{}
	}
	return &Aggregator{
		roster:   roster,
		window:   window,
		self:     self,
		recorder: recorder,
		logger:   logger.With("component", "aggregator"),
		buckets:  make(map[bucketKey]*bucket),
		out:      make(chan domain.CandidateTrade, 64),
	}
}

// Trades returns the stream of completed candidate trades.
func (a *Aggregator) Trades() <-chan domain.CandidateTrade { return a.out }

// Run consumes fills until ctx is cancelled, flushing expired buckets
// on a sub-window tick.
func (a *Aggregator) Run(ctx context.Context, fills <-chan domain.RawFill) error {
	tick := a.window / 4
	if tick < 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	defer close(a.out)

	for {
		// Drain the internal queue first so flushed trades reach the
		// consumer even when no new fills arrive.
		for len(a.queue) > 0 {
			select {
			case a.out <- a.queue[0]:
				a.queue = a.queue[1:]
				continue
			case <-ctx.Done():
				return ctx.Err()
			case fill, ok := <-fills:
				if !ok {
					return a.drain(ctx)
				}
				a.ingest(fill)
				continue
			case now := <-ticker.C:
				a.flushExpired(now)
				continue
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fill, ok := <-fills:
			if !ok {
				return a.drain(ctx)
			}
			a.ingest(fill)
		case now := <-ticker.C:
			a.flushExpired(now)
		}
	}
}

func (a *Aggregator) ingest(fill domain.RawFill) {
	if _, own := a.self[fill.Wallet]; own {
		return
	}
	roster := a.roster.Roster()
	if roster == nil || !roster.Contains(fill.Wallet) {
		return
	}
	if fill.Size <= 0 || fill.Price <= 0 {
		return
	}

	key := bucketKey{wallet: fill.Wallet, tokenID: fill.TokenID, side: fill.Side}
	b, ok := a.buckets[key]
	if !ok {
		b = &bucket{
			marketID: fill.MarketID,
			firstSeq: fill.Sequence,
			openedAt: fill.Timestamp,
		}
		a.buckets[key] = b
	}
	b.totalSize += fill.Size
	b.totalCost += fill.Size * fill.Price
	b.fills++
}

func (a *Aggregator) flushExpired(now time.Time) {
	for key, b := range a.buckets {
		if now.Sub(b.openedAt) < a.window {
			continue
		}
		delete(a.buckets, key)
		a.queue = append(a.queue, a.finish(key, b))
	}
}

// Flush force-completes every open bucket so partial windows are not
// silently dropped.
func (a *Aggregator) Flush() {
	for key, b := range a.buckets {
		delete(a.buckets, key)
		a.queue = append(a.queue, a.finish(key, b))
	}
}

// drain runs when the fill stream closes: open buckets are flushed and
// the queue is delivered before the output channel closes.
func (a *Aggregator) drain(ctx context.Context) error {
	a.Flush()
	for _, trade := range a.queue {
		select {
		case a.out <- trade:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a.queue = nil
	return nil
}

func (a *Aggregator) finish(key bucketKey, b *bucket) domain.CandidateTrade {
	trade := domain.CandidateTrade{
		TradeID:    TradeID(key.wallet, key.tokenID, key.side, b.firstSeq),
		Wallet:     key.wallet,
		TokenID:    key.tokenID,
		MarketID:   b.marketID,
		Side:       key.side,
		Size:       b.totalSize,
		AvgPrice:   b.totalCost / b.totalSize,
		Notional:   b.totalCost,
		FirstSeq:   b.firstSeq,
		FillCount:  b.fills,
		ObservedAt: b.openedAt,
	}
	if a.recorder != nil {
		a.recorder.Record(trade)
	}
	a.logger.Debug("trade aggregated",
		"wallet", trade.Wallet,
		"side", trade.Side,
		"size", trade.Size,
		"fills", trade.FillCount)
	return trade
}

// TradeID derives a stable identifier for a logical trade. The same
// fill sequence always yields the same ID, so replayed fills after a
// restart dedupe at the store layer instead of double-counting.
func TradeID(wallet, tokenID string, side domain.TradeSide, firstSeq int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", wallet, tokenID, side, firstSeq)
}
