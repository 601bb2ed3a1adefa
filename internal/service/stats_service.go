package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hfchan/whalebot/internal/domain"
)

// StatsService records observed whale trades and folds market
// resolutions back into the per-wallet aggregates. Every roster trade
// is recorded whether or not it was copied; skipped trades still teach
// the tier engine about the wallet.
type StatsService struct {
	stats  domain.WalletStatsStore
	logger *slog.Logger
}

func NewStatsService(stats domain.WalletStatsStore, logger *slog.Logger) *StatsService {
	return &StatsService{
		stats:  stats,
		logger: logger.With("component", "stats_service"),
	}
}

// RecordObserved writes the pending observation for a candidate trade
// and reports whether this is the first sighting. The trade ID is
// stable, so a replayed fill after a restart is a no-op returning
// false; callers use that to avoid acting on the same trade twice.
func (s *StatsService) RecordObserved(ctx context.Context, trade domain.CandidateTrade, tf domain.Timeframe, copied bool) (bool, error) {
	obs := domain.ObservedTrade{
		TradeID:    trade.TradeID,
		Wallet:     trade.Wallet,
		Timeframe:  tf,
		MarketID:   trade.MarketID,
		Side:       trade.Side,
		Notional:   trade.Notional,
		Copied:     copied,
		Status:     domain.ObservedPending,
		RecordedAt: trade.ObservedAt,
	}
	first, err := s.stats.RecordPending(ctx, obs)
	if err != nil {
		return false, fmt.Errorf("stats_service: record observed trade: %w", err)
	}
	return first, nil
}

// ResolveMarket settles every pending observation on a concluded
// market. A trade won if its side matches the winning side. Each
// settlement is individually idempotent; a crash partway through is
// repaired by the next poller pass over the same market.
func (s *StatsService) ResolveMarket(ctx context.Context, marketID string, winner domain.TradeSide) (int, error) {
	pending, err := s.stats.ListPendingByMarket(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("stats_service: list pending for market %s: %w", marketID, err)
	}

	settled := 0
	for _, obs := range pending {
		won := obs.Side == winner
		profit := obs.Notional // informational; stake-relative
		if !won {
			profit = -obs.Notional
		}
		applied, err := s.stats.RecordResolved(ctx, obs.TradeID, won, profit)
		if err != nil {
			return settled, fmt.Errorf("stats_service: resolve trade %s: %w", obs.TradeID, err)
		}
		if applied {
			settled++
		}
	}
	if settled > 0 {
		s.logger.Info("market observations settled",
			"market", marketID,
			"winner", winner,
			"settled", settled)
	}
	return settled, nil
}

// WalletStats returns the aggregate for a wallet in a timeframe.
func (s *StatsService) WalletStats(ctx context.Context, wallet string, tf domain.Timeframe) (domain.WalletStats, error) {
	st, err := s.stats.Query(ctx, wallet, tf)
	if err != nil {
		return domain.WalletStats{}, fmt.Errorf("stats_service: query %s/%s: %w", wallet, tf, err)
	}
	return st, nil
}
