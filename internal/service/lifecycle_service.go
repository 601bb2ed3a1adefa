package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hfchan/whalebot/internal/config"
	"github.com/hfchan/whalebot/internal/domain"
	"github.com/hfchan/whalebot/internal/notify"
)

// LifecycleService drives positions through open → resolved/cancelled
// and keeps the capital ledger in lockstep. It also owns the drawdown
// breaker: once realized losses exceed the configured fraction of
// starting capital, new copies are refused until an operator clears it.
type LifecycleService struct {
	positions domain.PositionStore
	ledger    domain.LedgerStore
	audit     domain.AuditStore
	placer    domain.OrderPlacer
	locks     domain.LockManager
	notifier  *notify.Notifier // optional
	cfg       config.CopierConfig
	logger    *slog.Logger

	breakerTripped atomic.Bool
}

func NewLifecycleService(
	positions domain.PositionStore,
	ledger domain.LedgerStore,
	audit domain.AuditStore,
	placer domain.OrderPlacer,
	locks domain.LockManager,
	notifier *notify.Notifier,
	cfg config.CopierConfig,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		positions: positions,
		ledger:    ledger,
		audit:     audit,
		placer:    placer,
		locks:     locks,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With("component", "lifecycle"),
	}
}

// Init seeds the ledger (idempotent) and re-evaluates the breaker from
// the persisted ledger, so a restart does not forget a tripped breaker.
func (s *LifecycleService) Init(ctx context.Context) error {
	if err := s.ledger.Seed(ctx, s.cfg.StartingCapital); err != nil {
		return fmt.Errorf("lifecycle: seed ledger: %w", err)
	}
	sum, err := s.ledger.Summary(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: read ledger: %w", err)
	}
	if sum.DrawdownFraction() > s.cfg.BreakerDrawdownPct {
		s.breakerTripped.Store(true)
		s.logger.Warn("drawdown breaker tripped at startup",
			"drawdown", sum.DrawdownFraction())
	}
	return nil
}

// BreakerTripped reports whether new copies are currently suspended.
func (s *LifecycleService) BreakerTripped() bool {
	return s.breakerTripped.Load()
}

// ClearBreaker re-arms copying after operator review.
func (s *LifecycleService) ClearBreaker(ctx context.Context) {
	if !s.breakerTripped.Swap(false) {
		return
	}
	s.logger.Info("drawdown breaker cleared")
	if s.audit != nil {
		_ = s.audit.Log(ctx, "breaker_cleared", nil)
	}
}

// Stake computes the notional to commit for a copy given the tier
// multiplier. The result is capped so one trade cannot exceed the
// configured per-copy maximum.
func (s *LifecycleService) Stake(multiplier float64) float64 {
	stake := s.cfg.BaseStakeUSD * multiplier
	if stake > s.cfg.MaxCopyUSD {
		stake = s.cfg.MaxCopyUSD
	}
	return stake
}

// OpenPosition places the mirroring order and records the position.
// The position is only created for a filled order; a rejection returns
// ErrOrderRejected and leaves no trace beyond the audit log.
func (s *LifecycleService) OpenPosition(
	ctx context.Context,
	trade domain.CandidateTrade,
	tier, marketTF domain.Timeframe,
	confidence, stake float64,
	estResolution time.Time,
) (domain.Position, error) {
	if s.breakerTripped.Load() {
		return domain.Position{}, domain.ErrBreakerTripped
	}

	result, err := s.placer.Place(ctx, domain.OrderRequest{
		MarketID: trade.MarketID,
		TokenID:  trade.TokenID,
		Side:     trade.Side,
		MaxPrice: trade.AvgPrice,
		Size:     stake / trade.AvgPrice,
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("lifecycle: place order: %w", err)
	}
	if !result.Filled {
		if s.audit != nil {
			_ = s.audit.Log(ctx, "order_rejected", map[string]any{
				"trade_id": trade.TradeID,
				"reason":   result.Reason,
			})
		}
		return domain.Position{}, fmt.Errorf("lifecycle: order not filled: %s: %w", result.Reason, domain.ErrOrderRejected)
	}

	pos := domain.Position{
		ID:            uuid.NewString(),
		MarketID:      trade.MarketID,
		TokenID:       trade.TokenID,
		Side:          trade.Side,
		Quantity:      result.Quantity,
		EntryPrice:    result.FillPrice,
		TotalCost:     result.Quantity * result.FillPrice,
		Whale:         trade.Wallet,
		Confidence:    confidence,
		Tier:          tier,
		Timeframe:     marketTF,
		Status:        domain.PositionStatusPending,
		OpenedAt:      time.Now().UTC(),
		EstResolution: estResolution,
	}
	if err := s.positions.Create(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("lifecycle: create position: %w", err)
	}

	s.logger.Info("position opened",
		"position_id", pos.ID,
		"whale", pos.Whale,
		"side", pos.Side,
		"cost", pos.TotalCost,
		"confidence", pos.Confidence)
	if s.audit != nil {
		_ = s.audit.Log(ctx, "position_opened", map[string]any{
			"position_id": pos.ID,
			"whale":       pos.Whale,
			"market":      pos.MarketID,
			"cost":        pos.TotalCost,
			"confidence":  pos.Confidence,
		})
	}
	return pos, nil
}

// Resolve settles a pending position against the market outcome. The
// sequence is three independently idempotent steps under a per-position
// lock: flip the position to RESOLVED, apply the ledger delta keyed by
// position ID, re-evaluate the breaker. A crash between any two steps
// is repaired by the next poller pass; no step can apply twice.
func (s *LifecycleService) Resolve(ctx context.Context, pos domain.Position, winner domain.TradeSide) error {
	unlock, err := s.locks.Acquire(ctx, "resolve:"+pos.ID, 30*time.Second)
	if err != nil {
		return fmt.Errorf("lifecycle: lock position %s: %w", pos.ID, err)
	}
	defer unlock()

	outcome := domain.OutcomeLoss
	if pos.Side == winner {
		outcome = domain.OutcomeWin
	}
	pnl := domain.ResolutionPnL(outcome, pos.Quantity, pos.TotalCost)
	now := time.Now().UTC()

	applied, err := s.positions.MarkResolved(ctx, pos.ID, outcome, pnl, now)
	if err != nil {
		return fmt.Errorf("lifecycle: mark resolved %s: %w", pos.ID, err)
	}
	if !applied {
		// Already terminal. A cancelled position never moves capital;
		// an already-resolved one replays its stored delta so a crash
		// between the two steps heals.
		stored, err := s.positions.GetByID(ctx, pos.ID)
		if err != nil {
			return fmt.Errorf("lifecycle: reload position %s: %w", pos.ID, err)
		}
		if stored.Status != domain.PositionStatusResolved || stored.Outcome == nil || stored.PnL == nil {
			return nil
		}
		outcome = *stored.Outcome
		pnl = *stored.PnL
	}

	deltaApplied, err := s.ledger.ApplyDelta(ctx, domain.LedgerEntry{
		PositionID: pos.ID,
		Delta:      pnl,
		Outcome:    outcome,
		AppliedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("lifecycle: apply ledger delta %s: %w", pos.ID, err)
	}

	if applied || deltaApplied {
		s.logger.Info("position resolved",
			"position_id", pos.ID,
			"outcome", outcome,
			"pnl", pnl)
		if s.audit != nil {
			_ = s.audit.Log(ctx, "position_resolved", map[string]any{
				"position_id": pos.ID,
				"outcome":     string(outcome),
				"pnl":         pnl,
			})
		}
		if s.notifier != nil {
			_ = s.notifier.Notify(ctx, "position_resolved",
				"Position resolved",
				fmt.Sprintf("%s %s: %s %+.2f", pos.Side, pos.MarketID, outcome, pnl))
		}
	}

	return s.evaluateBreaker(ctx)
}

// Cancel voids a pending position that will never resolve, without any
// ledger movement. Already-terminal positions are left untouched.
func (s *LifecycleService) Cancel(ctx context.Context, positionID, reason string) error {
	applied, err := s.positions.MarkCancelled(ctx, positionID)
	if err != nil {
		return fmt.Errorf("lifecycle: cancel position %s: %w", positionID, err)
	}
	if !applied {
		return nil
	}
	s.logger.Info("position cancelled", "position_id", positionID, "reason", reason)
	if s.audit != nil {
		_ = s.audit.Log(ctx, "position_cancelled", map[string]any{
			"position_id": positionID,
			"reason":      reason,
		})
	}
	return nil
}

func (s *LifecycleService) evaluateBreaker(ctx context.Context) error {
	sum, err := s.ledger.Summary(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: read ledger: %w", err)
	}
	if sum.DrawdownFraction() > s.cfg.BreakerDrawdownPct && !s.breakerTripped.Swap(true) {
		s.logger.Warn("drawdown breaker tripped",
			"drawdown", sum.DrawdownFraction(),
			"capital", sum.Current)
		if s.audit != nil {
			_ = s.audit.Log(ctx, "breaker_tripped", map[string]any{
				"drawdown": sum.DrawdownFraction(),
				"capital":  sum.Current,
			})
		}
		if s.notifier != nil {
			_ = s.notifier.Notify(ctx, "breaker_tripped",
				"Drawdown breaker tripped",
				fmt.Sprintf("drawdown %.1f%%, capital $%.2f, copying suspended",
					sum.DrawdownFraction()*100, sum.Current))
		}
	}
	return nil
}
