package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hfchan/whalebot/internal/domain"
	"github.com/hfchan/whalebot/internal/platform/polymarket"
)

// MarketService is a cache-aside layer over the Gamma metadata API.
// The hot path asks for market info once per candidate trade; the
// cache keeps that off the rate limiter.
type MarketService struct {
	gamma      *polymarket.GammaClient
	cache      domain.MarketCache
	classifier domain.TimeframeClassifier
	logger     *slog.Logger
}

func NewMarketService(
	gamma *polymarket.GammaClient,
	cache domain.MarketCache,
	classifier domain.TimeframeClassifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		gamma:      gamma,
		cache:      cache,
		classifier: classifier,
		logger:     logger.With("component", "market_service"),
	}
}

// InfoByToken returns market metadata for a clob token, from cache when
// fresh, otherwise from the API (and repopulates the cache).
func (s *MarketService) InfoByToken(ctx context.Context, tokenID string) (domain.MarketInfo, error) {
	info, err := s.cache.GetByToken(ctx, tokenID)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("market cache read failed", "token", tokenID, "error", err)
	}

	info, err = s.gamma.GetMarketInfo(ctx, tokenID, s.classifier)
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market_service: fetch market for token %s: %w", tokenID, err)
	}
	if err := s.cache.Set(ctx, info); err != nil {
		s.logger.Warn("market cache write failed", "token", tokenID, "error", err)
	}
	return info, nil
}

// CheckResolution bypasses the cache and asks the API directly, then
// refreshes the cache entry. Resolution state must never be stale.
func (s *MarketService) CheckResolution(ctx context.Context, tokenID string) (bool, *domain.TradeSide, error) {
	m, err := s.gamma.GetMarketByToken(ctx, tokenID)
	if err != nil {
		return false, nil, fmt.Errorf("market_service: check resolution for token %s: %w", tokenID, err)
	}
	info := m.Info(tokenID, s.classifier)
	if err := s.cache.Set(ctx, info); err != nil {
		s.logger.Warn("market cache write failed", "token", tokenID, "error", err)
	}
	return info.Resolved, info.WinningSide, nil
}
