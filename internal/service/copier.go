package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hfchan/whalebot/internal/config"
	"github.com/hfchan/whalebot/internal/domain"
	"github.com/hfchan/whalebot/internal/notify"
)

// MarketInfoSource supplies market metadata for a clob token.
// *MarketService is the production implementation.
type MarketInfoSource interface {
	InfoByToken(ctx context.Context, tokenID string) (domain.MarketInfo, error)
}

// Copier is the decision engine: for each aggregated whale trade it
// classifies the market, scores the whale's conviction, and either
// mirrors the trade or records it as observed-only. The decision runs
// identically in monitor and trade mode; only the order placer behind
// the lifecycle differs, so monitor mode still carries simulated
// positions through to resolution. Every roster trade feeds the stats
// store regardless of the decision, so the tier engine learns from
// skipped trades too.
type Copier struct {
	markets     MarketInfoSource
	tiers       *TierService
	stats       *StatsService
	scorer      *Scorer
	correlation *CorrelationTracker
	lifecycle   *LifecycleService
	bus         domain.SignalBus
	notifier    *notify.Notifier
	cfg         config.CopierConfig
	logger      *slog.Logger
}

func NewCopier(
	markets MarketInfoSource,
	tiers *TierService,
	stats *StatsService,
	scorer *Scorer,
	correlation *CorrelationTracker,
	lifecycle *LifecycleService,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	cfg config.CopierConfig,
	logger *slog.Logger,
) *Copier {
	return &Copier{
		markets:     markets,
		tiers:       tiers,
		stats:       stats,
		scorer:      scorer,
		correlation: correlation,
		lifecycle:   lifecycle,
		bus:         bus,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.With("component", "copier"),
	}
}

// HandleCandidate runs the full decision for one aggregated trade.
// Errors are returned only for infrastructure failures; a "skip"
// decision is a normal outcome, not an error.
func (c *Copier) HandleCandidate(ctx context.Context, trade domain.CandidateTrade) error {
	tier, _, onRoster := c.tiers.Roster().TierOf(trade.Wallet)
	if !onRoster {
		// Roster changed between aggregation and decision.
		return nil
	}

	info, err := c.markets.InfoByToken(ctx, trade.TokenID)
	if err != nil {
		return fmt.Errorf("copier: market info for trade %s: %w", trade.TradeID, err)
	}
	if info.Resolved {
		// Whale traded a market that concluded before we decided.
		_, err := c.stats.RecordObserved(ctx, trade, info.Timeframe, false)
		return err
	}

	stats, err := c.stats.WalletStats(ctx, trade.Wallet, info.Timeframe)
	if err != nil {
		return err
	}

	// Record before counting: when a batch of simultaneous trades is
	// pre-registered by the aggregator, every member of the batch sees
	// the others and all of them score lower than any would alone.
	c.correlation.Record(trade)
	correlated := c.correlation.Matches(trade)
	score := c.scorer.Score(ScoreInput{
		Stats:      stats,
		Tier:       tier,
		MarketTF:   info.Timeframe,
		Correlated: correlated,
	})
	required := c.tiers.RequiredThreshold(tier, info.Timeframe)

	decision := c.decide(trade, info, score, required)

	first, err := c.stats.RecordObserved(ctx, trade, info.Timeframe, decision.copy)
	if err != nil {
		return err
	}
	if !first && decision.copy {
		// Replayed trade (reconnect, restart): the decision stands but
		// the position was already opened on first sight.
		c.logger.Debug("trade already handled", "trade_id", trade.TradeID)
		return nil
	}

	if decision.copy {
		if err := c.open(ctx, trade, tier, info, score); err != nil {
			if errors.Is(err, domain.ErrBreakerTripped) || errors.Is(err, domain.ErrOrderRejected) {
				c.logger.Warn("copy aborted", "trade_id", trade.TradeID, "error", err)
			} else {
				return err
			}
		}
	}

	c.publishDecision(ctx, trade, info, score, required, decision)
	return nil
}

type decision struct {
	copy   bool
	reason string
}

func (c *Copier) decide(trade domain.CandidateTrade, info domain.MarketInfo, score, required float64) decision {
	switch {
	case c.lifecycle.BreakerTripped():
		return decision{reason: "breaker_tripped"}
	case trade.Notional > c.cfg.MaxCopyUSD:
		// Oversized whale orders move the market they bet on; mirroring
		// them buys a worse price than the whale got.
		return decision{reason: "whale_order_too_large"}
	case info.EndTime == nil && !info.Timeframe.Known():
		return decision{reason: "no_resolution_horizon"}
	case score < required:
		return decision{reason: "below_threshold"}
	default:
		return decision{copy: true, reason: "copied"}
	}
}

func (c *Copier) open(ctx context.Context, trade domain.CandidateTrade, tier domain.Timeframe, info domain.MarketInfo, score float64) error {
	stake := c.lifecycle.Stake(c.tiers.SizeMultiplier(tier, info.Timeframe))

	est := trade.ObservedAt.Add(info.Timeframe.Duration())
	if info.EndTime != nil {
		est = *info.EndTime
	}

	pos, err := c.lifecycle.OpenPosition(ctx, trade, tier, info.Timeframe, score, stake, est)
	if err != nil {
		return err
	}

	if c.notifier != nil {
		_ = c.notifier.Notify(ctx, "position_opened",
			"Position opened",
			fmt.Sprintf("%s %s $%.2f @ %.3f copying %s (confidence %.1f)",
				pos.Side, info.Question, pos.TotalCost, pos.EntryPrice, trade.Wallet, score))
	}
	return nil
}

func (c *Copier) publishDecision(ctx context.Context, trade domain.CandidateTrade, info domain.MarketInfo, score, required float64, d decision) {
	if c.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"event":     "copy_decision",
		"trade_id":  trade.TradeID,
		"wallet":    trade.Wallet,
		"market":    trade.MarketID,
		"timeframe": string(info.Timeframe),
		"score":     score,
		"required":  required,
		"copied":    d.copy,
		"reason":    d.reason,
		"at":        time.Now().UTC().Format(time.RFC3339),
	})
	if err := c.bus.Publish(ctx, "decisions", payload); err != nil {
		c.logger.Debug("decision publish failed", "error", err)
	}
}

// Run consumes candidate trades until the channel closes or ctx ends.
func (c *Copier) Run(ctx context.Context, trades <-chan domain.CandidateTrade) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case trade, ok := <-trades:
			if !ok {
				return nil
			}
			if err := c.HandleCandidate(ctx, trade); err != nil {
				c.logger.Error("candidate handling failed",
					"trade_id", trade.TradeID,
					"error", err)
			}
		}
	}
}
