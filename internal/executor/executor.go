// Package executor provides the order placement implementations: a
// paper executor for monitor/backtest use and a live executor backed by
// the CLOB REST API.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hfchan/whalebot/internal/domain"
	"github.com/hfchan/whalebot/internal/platform/polymarket"
)

// PaperExecutor fills every order instantly at the requested price.
// Slippage-free fills overstate paper performance slightly; the price
// cap still rejects orders that would exceed the whale's entry.
type PaperExecutor struct {
	logger *slog.Logger
}

func NewPaperExecutor(logger *slog.Logger) *PaperExecutor {
	return &PaperExecutor{logger: logger.With("component", "paper_executor")}
}

var _ domain.OrderPlacer = (*PaperExecutor)(nil)

func (e *PaperExecutor) Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Size <= 0 {
		return domain.OrderResult{Reason: "zero size"}, nil
	}
	if req.MaxPrice <= 0 || req.MaxPrice >= 1 {
		return domain.OrderResult{Reason: fmt.Sprintf("price %.3f out of range", req.MaxPrice)}, nil
	}
	e.logger.Debug("paper fill",
		"token", req.TokenID,
		"side", req.Side,
		"size", req.Size,
		"price", req.MaxPrice)
	return domain.OrderResult{
		Filled:    true,
		FillPrice: req.MaxPrice,
		Quantity:  req.Size,
	}, nil
}

// LiveExecutor places real orders through the CLOB client, with a dedup
// guard so a replayed candidate cannot buy twice.
type LiveExecutor struct {
	clob   *polymarket.ClobClient
	dedup  *Dedup
	logger *slog.Logger
}

func NewLiveExecutor(clob *polymarket.ClobClient, dedup *Dedup, logger *slog.Logger) *LiveExecutor {
	return &LiveExecutor{
		clob:   clob,
		dedup:  dedup,
		logger: logger.With("component", "live_executor"),
	}
}

var _ domain.OrderPlacer = (*LiveExecutor)(nil)

func (e *LiveExecutor) Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	key := fmt.Sprintf("%s:%s:%f", req.TokenID, req.Side, req.Size)
	if e.dedup != nil && e.dedup.IsDuplicate(key) {
		return domain.OrderResult{Reason: "duplicate order suppressed"}, nil
	}

	result, err := e.clob.PostOrder(ctx, req)
	if err != nil {
		return result, fmt.Errorf("executor: live order: %w", err)
	}
	e.logger.Info("live fill",
		"token", req.TokenID,
		"side", req.Side,
		"quantity", result.Quantity,
		"price", result.FillPrice)
	return result, nil
}
