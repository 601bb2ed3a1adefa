package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hfchan/whalebot/internal/config"
	"github.com/hfchan/whalebot/internal/domain"
	"github.com/hfchan/whalebot/internal/notify"
	"github.com/hfchan/whalebot/internal/service"
)

// ResolutionSource answers whether a market has concluded and which
// side of the token won. *service.MarketService is the production
// implementation.
type ResolutionSource interface {
	CheckResolution(ctx context.Context, tokenID string) (bool, *domain.TradeSide, error)
}

// ResolutionPoller watches pending positions and settles them once
// their markets conclude. Positions are only polled from a lead window
// before their estimated resolution, so short-lived markets get checked
// promptly without hammering the API for day-long ones.
//
// Observed-only trades settle here too: once a market with any pending
// observation resolves, every observation on it is folded into the
// wallet aggregates.
type ResolutionPoller struct {
	positions domain.PositionStore
	markets   ResolutionSource
	lifecycle *service.LifecycleService
	stats     *service.StatsService
	audit     domain.AuditStore
	notifier  *notify.Notifier // optional
	cfg       config.PollerConfig
	logger    *slog.Logger
}

func NewResolutionPoller(
	positions domain.PositionStore,
	markets ResolutionSource,
	lifecycle *service.LifecycleService,
	stats *service.StatsService,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	cfg config.PollerConfig,
	logger *slog.Logger,
) *ResolutionPoller {
	return &ResolutionPoller{
		positions: positions,
		markets:   markets,
		lifecycle: lifecycle,
		stats:     stats,
		audit:     audit,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With("component", "resolution_poller"),
	}
}

// Run polls on the configured interval until ctx is cancelled.
func (p *ResolutionPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.logger.Error("poll pass failed", "error", err)
			}
		}
	}
}

func (p *ResolutionPoller) poll(ctx context.Context) error {
	now := time.Now().UTC()
	due, err := p.positions.ListPendingDue(ctx, now.Add(p.cfg.Lead.Duration))
	if err != nil {
		return err
	}

	// Markets already checked this pass; several positions can share one.
	checked := make(map[string]resolutionResult)

	for _, pos := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.checkPosition(ctx, pos, now, checked)
	}
	return nil
}

type resolutionResult struct {
	resolved bool
	winner   *domain.TradeSide
	failed   bool
}

func (p *ResolutionPoller) checkPosition(ctx context.Context, pos domain.Position, now time.Time, checked map[string]resolutionResult) {
	res, seen := checked[pos.TokenID]
	if !seen {
		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout.Duration)
		resolved, winner, err := p.markets.CheckResolution(reqCtx, pos.TokenID)
		cancel()
		if err != nil {
			// Transient oracle failure: the position stays pending and
			// the next pass retries. Not a resolution signal.
			p.logger.Warn("resolution check failed",
				"position_id", pos.ID,
				"token", pos.TokenID,
				"error", err)
			res = resolutionResult{failed: true}
		} else {
			res = resolutionResult{resolved: resolved, winner: winner}
		}
		checked[pos.TokenID] = res
	}

	switch {
	case res.failed:
		return
	case res.resolved && res.winner != nil:
		if err := p.lifecycle.Resolve(ctx, pos, *res.winner); err != nil {
			p.logger.Error("resolution failed", "position_id", pos.ID, "error", err)
			return
		}
		if _, err := p.stats.ResolveMarket(ctx, pos.MarketID, *res.winner); err != nil {
			p.logger.Error("observation settlement failed", "market", pos.MarketID, "error", err)
		}
	default:
		p.flagIfStale(ctx, pos, now)
	}
}

// flagIfStale marks positions whose estimated resolution is long past
// but whose market still reports unresolved. They stay pending, capital
// untouched, but surface for manual reconciliation instead of sitting
// invisible forever.
func (p *ResolutionPoller) flagIfStale(ctx context.Context, pos domain.Position, now time.Time) {
	if pos.NeedsReview {
		return
	}
	if now.Sub(pos.EstResolution) <= p.cfg.MaxStaleness.Duration {
		return
	}
	if err := p.positions.MarkNeedsReview(ctx, pos.ID); err != nil {
		p.logger.Error("needs-review flag failed", "position_id", pos.ID, "error", err)
		return
	}
	p.logger.Warn("position overdue for resolution",
		"position_id", pos.ID,
		"est_resolution", pos.EstResolution,
		"overdue", now.Sub(pos.EstResolution))
	if p.audit != nil {
		_ = p.audit.Log(ctx, "position_needs_review", map[string]any{
			"position_id":    pos.ID,
			"est_resolution": pos.EstResolution,
		})
	}
	if p.notifier != nil {
		_ = p.notifier.Notify(ctx, "position_needs_review",
			"Position overdue",
			fmt.Sprintf("position %s expected to resolve %s ago, market still open",
				pos.ID, now.Sub(pos.EstResolution).Round(time.Minute)))
	}
}
