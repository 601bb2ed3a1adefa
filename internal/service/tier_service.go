package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hfchan/whalebot/internal/config"
	"github.com/hfchan/whalebot/internal/domain"
)

// TierService owns the tier rosters: which wallets are monitored per
// timeframe, the confidence threshold each tier demands, and the
// promotion / pruning cycle that keeps rosters current.
//
// The live roster is an immutable snapshot behind an atomic pointer.
// Readers on the hot path (aggregator, copier) never take a lock and
// never observe a partially rebuilt roster.
type TierService struct {
	stats   domain.WalletStatsStore
	rosters domain.RosterStore
	audit   domain.AuditStore
	cfg     config.TiersConfig
	logger  *slog.Logger

	current atomic.Pointer[domain.TierRoster]
}

func NewTierService(
	stats domain.WalletStatsStore,
	rosters domain.RosterStore,
	audit domain.AuditStore,
	cfg config.TiersConfig,
	logger *slog.Logger,
) *TierService {
	s := &TierService{
		stats:   stats,
		rosters: rosters,
		audit:   audit,
		cfg:     cfg,
		logger:  logger.With("component", "tier_service"),
	}
	s.current.Store(domain.EmptyRoster())
	return s
}

// Roster returns the current snapshot. Never nil.
func (s *TierService) Roster() *domain.TierRoster {
	return s.current.Load()
}

// Restore loads the last persisted roster so monitoring resumes
// immediately after a restart instead of waiting for the first
// recompute.
func (s *TierService) Restore(ctx context.Context) error {
	roster, err := s.rosters.Load(ctx)
	if err != nil {
		return fmt.Errorf("tier_service: restore roster: %w", err)
	}
	s.current.Store(roster)
	s.logger.Info("roster restored", "wallets", roster.Size())
	return nil
}

// BaseThreshold is the confidence bar for a tier before any adjustment.
func (s *TierService) BaseThreshold(tier domain.Timeframe) float64 {
	if tc, ok := s.cfg.TierFor(string(tier)); ok {
		return tc.BaseThreshold
	}
	return s.highestThreshold()
}

// RequiredThreshold is the bar a candidate trade must clear: the base
// threshold of the whale's tier, raised by the off-specialty penalty
// when the market's timeframe differs from the tier. A market whose
// timeframe cannot be determined demands the highest configured bar.
func (s *TierService) RequiredThreshold(tier, marketTF domain.Timeframe) float64 {
	if !marketTF.Known() {
		return s.highestThreshold()
	}
	base := s.BaseThreshold(tier)
	if marketTF != tier {
		base += s.cfg.OffSpecialtyPenalty
	}
	if max := s.highestThreshold(); base > max {
		return max
	}
	return base
}

// SizeMultiplier is the tier's stake multiplier, scaled down when the
// whale trades outside its specialty.
func (s *TierService) SizeMultiplier(tier, marketTF domain.Timeframe) float64 {
	tc, ok := s.cfg.TierFor(string(tier))
	if !ok {
		return 0
	}
	m := tc.Multiplier
	if marketTF != tier {
		m *= s.cfg.OffSpecialtyMultiplier
	}
	return m
}

func (s *TierService) highestThreshold() float64 {
	max := 0.0
	for _, tf := range domain.Timeframes {
		if tc, ok := s.cfg.TierFor(string(tf)); ok && tc.BaseThreshold+s.cfg.OffSpecialtyPenalty > max {
			max = tc.BaseThreshold + s.cfg.OffSpecialtyPenalty
		}
	}
	return max
}

// RecomputeRosters rebuilds every tier from the stats store and
// publishes the new snapshot. Tiers are filled in fixed timeframe
// order; a wallet qualifying for several tiers lands in the shortest
// one, so each wallet is monitored under exactly one specialty.
func (s *TierService) RecomputeRosters(ctx context.Context) (*domain.TierRoster, error) {
	roster := &domain.TierRoster{
		Tiers:      make(map[domain.Timeframe][]domain.RosterMember, len(domain.Timeframes)),
		ComputedAt: time.Now().UTC(),
	}
	claimed := make(map[string]struct{})

	for _, tf := range domain.Timeframes {
		tc, ok := s.cfg.TierFor(string(tf))
		if !ok {
			continue
		}
		rows, err := s.stats.QueryTop(ctx, domain.TopQuery{
			Timeframe:  tf,
			MinTrades:  tc.MinTrades,
			MinWinRate: tc.MinWinRate,
			Limit:      tc.MaxWhales * 2, // headroom for cross-tier dedupe
		})
		if err != nil {
			return nil, fmt.Errorf("tier_service: query top for %s: %w", tf, err)
		}

		members := make([]domain.RosterMember, 0, tc.MaxWhales)
		for _, row := range rows {
			if len(members) >= tc.MaxWhales {
				break
			}
			if _, taken := claimed[row.Wallet]; taken {
				continue
			}
			claimed[row.Wallet] = struct{}{}
			members = append(members, domain.RosterMember{
				Wallet:     row.Wallet,
				WinRate:    row.WinRate(),
				TradeCount: row.TradeCount,
				Multiplier: tc.Multiplier,
			})
		}
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].WinRate > members[j].WinRate
		})
		roster.Tiers[tf] = members
	}

	if err := s.rosters.Replace(ctx, roster); err != nil {
		return nil, fmt.Errorf("tier_service: persist roster: %w", err)
	}
	s.current.Store(roster)

	s.logger.Info("rosters recomputed", "wallets", roster.Size())
	if s.audit != nil {
		_ = s.audit.Log(ctx, "roster_recomputed", map[string]any{
			"wallets": roster.Size(),
		})
	}
	return roster, nil
}

// PromoteAndPrune runs the fast roster cadence between full recomputes.
// Pruning is evaluated first: members whose stats have slipped below
// their tier's floors leave before any newcomer is admitted, so a
// degraded wallet cannot hold a slot a qualifying one deserves.
//
// Promotion uses the stricter bar: the promotion win rate over at least
// the promotion trade count, and the tier floors, all at once.
func (s *TierService) PromoteAndPrune(ctx context.Context) (*domain.TierRoster, error) {
	prev := s.current.Load()
	next := &domain.TierRoster{
		Tiers:      make(map[domain.Timeframe][]domain.RosterMember, len(domain.Timeframes)),
		ComputedAt: time.Now().UTC(),
	}
	claimed := make(map[string]struct{})
	var pruned, promoted int

	for _, tf := range domain.Timeframes {
		tc, ok := s.cfg.TierFor(string(tf))
		if !ok {
			continue
		}

		// Prune pass: re-check every incumbent against the tier floors.
		kept := make([]domain.RosterMember, 0, len(prev.Tiers[tf]))
		for _, m := range prev.Tiers[tf] {
			if _, taken := claimed[m.Wallet]; taken {
				continue
			}
			st, err := s.stats.Query(ctx, m.Wallet, tf)
			if err != nil {
				return nil, fmt.Errorf("tier_service: query %s: %w", m.Wallet, err)
			}
			if st.TradeCount < tc.MinTrades || st.WinRate() < tc.MinWinRate {
				pruned++
				s.logger.Info("wallet pruned",
					"wallet", m.Wallet,
					"tier", tf,
					"win_rate", st.WinRate(),
					"trades", st.TradeCount)
				continue
			}
			claimed[m.Wallet] = struct{}{}
			kept = append(kept, domain.RosterMember{
				Wallet:     m.Wallet,
				WinRate:    st.WinRate(),
				TradeCount: st.TradeCount,
				Multiplier: tc.Multiplier,
			})
		}

		// Promotion pass: fill freed slots with wallets clearing the
		// stricter promotion bar.
		if len(kept) < tc.MaxWhales {
			candidates, err := s.stats.QueryTop(ctx, domain.TopQuery{
				Timeframe:  tf,
				MinTrades:  s.cfg.PromotionMinTrades,
				MinWinRate: s.cfg.PromotionWinRate,
				Limit:      tc.MaxWhales * 2,
			})
			if err != nil {
				return nil, fmt.Errorf("tier_service: promotion query for %s: %w", tf, err)
			}
			for _, row := range candidates {
				if len(kept) >= tc.MaxWhales {
					break
				}
				if _, taken := claimed[row.Wallet]; taken {
					continue
				}
				if row.TradeCount < s.cfg.PromotionMinTrades || row.WinRate() < s.cfg.PromotionWinRate {
					continue
				}
				// Promotion never waives the tier's own floors: a hot
				// streak over too small a sample stays out.
				if row.TradeCount < tc.MinTrades || row.WinRate() < tc.MinWinRate {
					continue
				}
				claimed[row.Wallet] = struct{}{}
				promoted++
				s.logger.Info("wallet promoted",
					"wallet", row.Wallet,
					"tier", tf,
					"win_rate", row.WinRate(),
					"trades", row.TradeCount)
				kept = append(kept, domain.RosterMember{
					Wallet:     row.Wallet,
					WinRate:    row.WinRate(),
					TradeCount: row.TradeCount,
					Multiplier: tc.Multiplier,
				})
			}
		}

		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].WinRate > kept[j].WinRate
		})
		next.Tiers[tf] = kept
	}

	if pruned == 0 && promoted == 0 {
		return prev, nil
	}

	if err := s.rosters.Replace(ctx, next); err != nil {
		return nil, fmt.Errorf("tier_service: persist roster: %w", err)
	}
	s.current.Store(next)

	if s.audit != nil {
		_ = s.audit.Log(ctx, "roster_adjusted", map[string]any{
			"pruned":   pruned,
			"promoted": promoted,
			"wallets":  next.Size(),
		})
	}
	return next, nil
}
