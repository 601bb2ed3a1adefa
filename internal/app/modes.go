package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hfchan/whalebot/internal/aggregator"
	"github.com/hfchan/whalebot/internal/domain"
	"github.com/hfchan/whalebot/internal/executor"
	"github.com/hfchan/whalebot/internal/feed"
	"github.com/hfchan/whalebot/internal/pipeline"
	"github.com/hfchan/whalebot/internal/platform/polymarket"
	"github.com/hfchan/whalebot/internal/server"
	"github.com/hfchan/whalebot/internal/server/handler"
	"github.com/hfchan/whalebot/internal/service"
	"github.com/hfchan/whalebot/internal/timeframe"
)

// runMode assembles the full pipeline and runs it. Monitor and trade
// mode differ only in the order placer: monitor paper-fills, trade
// submits to the CLOB.
func (a *App) runMode(ctx context.Context, deps *Dependencies, live bool) error {
	cfg := a.cfg

	// Platform clients
	gamma := polymarket.NewGammaClient(
		cfg.Polymarket.GammaHost,
		cfg.Polymarket.GammaRPS,
		cfg.Poller.RequestTimeout.Duration)
	data := polymarket.NewDataClient(cfg.Polymarket.DataHost, cfg.Poller.RequestTimeout.Duration)
	ws := polymarket.NewWSClient(cfg.Polymarket.WsHost, a.logger)

	// Order placement
	var placer domain.OrderPlacer
	if live {
		clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, polymarket.ClobCredentials{
			APIKey:     cfg.Polymarket.APIKey,
			APISecret:  cfg.Polymarket.APISecret,
			Passphrase: cfg.Polymarket.APIPassphrase,
			Address:    cfg.Polymarket.WalletAddress,
		})
		placer = executor.NewLiveExecutor(clob, executor.NewDedup(10*time.Minute), a.logger)
	} else {
		placer = executor.NewPaperExecutor(a.logger)
	}

	// Services
	classifier := timeframe.NewKeywordClassifier()
	markets := service.NewMarketService(gamma, deps.MarketCache, classifier, a.logger)
	tiers := service.NewTierService(deps.StatsStore, deps.RosterStore, deps.AuditStore, cfg.Tiers, a.logger)
	stats := service.NewStatsService(deps.StatsStore, a.logger)
	scorer := service.NewScorer(cfg.Copier, cfg.Tiers)
	correlation := service.NewCorrelationTracker(cfg.Copier.CorrelationWindow.Duration)
	lifecycle := service.NewLifecycleService(
		deps.PositionStore, deps.LedgerStore, deps.AuditStore,
		placer, deps.LockManager, deps.Notifier, cfg.Copier, a.logger)
	if err := lifecycle.Init(ctx); err != nil {
		return fmt.Errorf("app: init lifecycle: %w", err)
	}

	copier := service.NewCopier(
		markets, tiers, stats, scorer, correlation, lifecycle,
		deps.SignalBus, deps.Notifier, cfg.Copier, a.logger)

	// Pipeline
	var selfWallets []string
	if cfg.Polymarket.WalletAddress != "" {
		selfWallets = []string{feed.NormalizeWallet(cfg.Polymarket.WalletAddress)}
	}
	fillFeed := feed.NewFillFeed(ws, data, cfg.Copier.FillPollInterval.Duration, a.logger)
	agg := aggregator.New(tiers, cfg.Copier.AggregationWindow.Duration, selfWallets, correlation, a.logger)
	poller := pipeline.NewResolutionPoller(
		deps.PositionStore, markets, lifecycle, stats, deps.AuditStore,
		deps.Notifier, cfg.Poller, a.logger)

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, cfg.Archive, a.logger)
	}

	orch := pipeline.NewOrchestrator(
		fillFeed, agg, copier, tiers, poller, archiver, cfg.Tiers, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })

	if cfg.Server.Enabled {
		handlers := server.Handlers{
			Health: handler.NewHealthHandler(),
			Status: handler.NewStatusHandler(
				deps.LedgerStore, deps.PositionStore, tiers, lifecycle, a.logger),
		}
		if deps.BlobReader != nil {
			handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
		}
		srv := server.NewServer(
			server.Config{Port: cfg.Server.Port, APIKey: cfg.Server.APIKey},
			handlers,
			a.logger)

		g.Go(func() error { return srv.Start() })
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
