package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hfchan/whalebot/internal/aggregator"
	"github.com/hfchan/whalebot/internal/config"
	"github.com/hfchan/whalebot/internal/feed"
	"github.com/hfchan/whalebot/internal/service"
)

// Orchestrator runs every long-lived goroutine: the fill feed, the
// aggregator, the copier loop, the roster cadences, the resolution
// poller, and the archiver. One failing subsystem cancels the shared
// context and brings the rest down for a clean restart.
type Orchestrator struct {
	feed       *feed.FillFeed
	aggregator *aggregator.Aggregator
	copier     *service.Copier
	tiers      *service.TierService
	poller     *ResolutionPoller
	archiver   *Archiver // nil when archival is disabled
	tiersCfg   config.TiersConfig
	logger     *slog.Logger
}

func NewOrchestrator(
	fillFeed *feed.FillFeed,
	agg *aggregator.Aggregator,
	copier *service.Copier,
	tiers *service.TierService,
	poller *ResolutionPoller,
	archiver *Archiver,
	tiersCfg config.TiersConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		feed:       fillFeed,
		aggregator: agg,
		copier:     copier,
		tiers:      tiers,
		poller:     poller,
		archiver:   archiver,
		tiersCfg:   tiersCfg,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Run starts all subsystems and blocks until ctx is cancelled or a
// subsystem fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	// Restore the roster before anything consumes it, then point the
	// fill feed at the restored wallet set.
	if err := o.tiers.Restore(ctx); err != nil {
		o.logger.Warn("roster restore failed, starting empty", "error", err)
	}
	o.feed.Watch(o.tiers.Roster().Wallets())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.feed.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("fill feed: %w", err)
	})

	g.Go(func() error {
		err := o.aggregator.Run(ctx, o.feed.Fills())
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("aggregator: %w", err)
	})

	g.Go(func() error {
		err := o.copier.Run(ctx, o.aggregator.Trades())
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("copier: %w", err)
	})

	g.Go(func() error {
		err := o.poller.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("resolution poller: %w", err)
	})

	g.Go(func() error {
		o.rosterLoop(ctx)
		return nil
	})

	if o.archiver != nil {
		g.Go(func() error {
			err := o.archiver.RunLoop(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	o.logger.Info("pipeline started")
	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline stopped", "error", err)
		return err
	}
	o.logger.Info("pipeline stopped cleanly")
	return nil
}

// rosterLoop runs the slow full recompute and the fast promote/prune
// cadence. Every roster change re-points the fill feed so the
// subscription set tracks the roster.
func (o *Orchestrator) rosterLoop(ctx context.Context) {
	recompute := time.NewTicker(o.tiersCfg.RecomputeInterval.Duration)
	defer recompute.Stop()
	promote := time.NewTicker(o.tiersCfg.PromotionInterval.Duration)
	defer promote.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-recompute.C:
			roster, err := o.tiers.RecomputeRosters(ctx)
			if err != nil {
				o.logger.Error("roster recompute failed", "error", err)
				continue
			}
			o.feed.Watch(roster.Wallets())
		case <-promote.C:
			roster, err := o.tiers.PromoteAndPrune(ctx)
			if err != nil {
				o.logger.Error("promote/prune failed", "error", err)
				continue
			}
			o.feed.Watch(roster.Wallets())
		}
	}
}
