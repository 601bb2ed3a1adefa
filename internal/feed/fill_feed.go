package feed

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hfchan/whalebot/internal/domain"
	"github.com/hfchan/whalebot/internal/platform/polymarket"
)

// FillFeed delivers fills for the watched wallet set. It prefers the
// websocket activity feed; if the socket stays down past a grace
// period it polls the Data API per wallet until the socket recovers.
// Either path emits domain.RawFill on the output channel.
type FillFeed struct {
	ws     *polymarket.WSClient
	data   *polymarket.DataClient
	logger *slog.Logger

	pollInterval time.Duration

	mu      sync.Mutex
	wallets []string

	wsHealthy atomic.Bool
	seq       atomic.Int64

	out chan domain.RawFill

	// per-wallet high-water mark for the polling fallback
	lastSeen map[string]int64
}

func NewFillFeed(ws *polymarket.WSClient, data *polymarket.DataClient, pollInterval time.Duration, logger *slog.Logger) *FillFeed {
	return &FillFeed{
		ws:           ws,
		data:         data,
		logger:       logger.With("component", "fill_feed"),
		pollInterval: pollInterval,
		out:          make(chan domain.RawFill, 512),
		lastSeen:     make(map[string]int64),
	}
}

// Fills returns the merged fill stream.
func (f *FillFeed) Fills() <-chan domain.RawFill { return f.out }

// Watch replaces the watched wallet set. New roster snapshots call this
// on every recompute; the websocket subscription follows immediately.
func (f *FillFeed) Watch(wallets []string) {
	normalized := make([]string, 0, len(wallets))
	for _, w := range wallets {
		normalized = append(normalized, NormalizeWallet(w))
	}
	f.mu.Lock()
	f.wallets = normalized
	f.mu.Unlock()

	if err := f.ws.SetUsers(normalized); err != nil {
		f.logger.Warn("resubscribe failed, will restore on reconnect", "error", err)
	}
}

// NormalizeWallet lower-cases and checksums-strips an address so the
// same wallet always keys the same stats row.
func NormalizeWallet(addr string) string {
	if !common.IsHexAddress(addr) {
		return strings.ToLower(addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex())
}

// Run pumps fills until ctx is cancelled. The websocket reader and the
// polling fallback run concurrently; the fallback only fires while the
// socket is down.
func (f *FillFeed) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- f.ws.Run(ctx) }()

	go f.pollLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		case msg, ok := <-f.ws.Trades():
			if !ok {
				return <-done
			}
			f.wsHealthy.Store(true)
			f.emit(ctx, domain.RawFill{
				Wallet:    NormalizeWallet(msg.ProxyWallet),
				TokenID:   msg.Asset,
				MarketID:  msg.ConditionID,
				Side:      domain.TradeSide(strings.ToUpper(msg.Side)),
				Price:     msg.Price,
				Size:      msg.Size,
				Sequence:  f.seq.Add(1),
				Timestamp: time.Unix(msg.Timestamp, 0),
			})
		}
	}
}

func (f *FillFeed) emit(ctx context.Context, fill domain.RawFill) {
	select {
	case f.out <- fill:
	case <-ctx.Done():
	}
}

func (f *FillFeed) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	// Misses two consecutive ws messages worth of silence before
	// polling kicks in.
	downSince := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if f.wsHealthy.Swap(false) {
			downSince = time.Time{}
			continue
		}
		if downSince.IsZero() {
			downSince = time.Now()
			continue
		}

		f.mu.Lock()
		wallets := make([]string, len(f.wallets))
		copy(wallets, f.wallets)
		f.mu.Unlock()

		for _, w := range wallets {
			f.pollWallet(ctx, w)
		}
	}
}

func (f *FillFeed) pollWallet(ctx context.Context, wallet string) {
	after := f.lastSeen[wallet]
	trades, err := f.data.GetUserTrades(ctx, wallet, after, 100)
	if err != nil {
		f.logger.Warn("poll fallback failed", "wallet", wallet, "error", err)
		return
	}
	// Data API returns newest first; emit oldest first so the
	// aggregator sees fills in order.
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.Timestamp <= after {
			continue
		}
		f.lastSeen[wallet] = t.Timestamp
		f.emit(ctx, domain.RawFill{
			Wallet:    NormalizeWallet(t.ProxyWallet),
			TokenID:   t.Asset,
			MarketID:  t.ConditionID,
			Side:      domain.TradeSide(strings.ToUpper(t.Side)),
			Price:     t.Price,
			Size:      t.Size,
			Sequence:  f.seq.Add(1),
			Timestamp: time.Unix(t.Timestamp, 0),
		})
	}
}
