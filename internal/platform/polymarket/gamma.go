package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/hfchan/whalebot/internal/domain"
)

// GammaClient fetches market metadata and resolution state from the
// Gamma API. All requests pass through a shared rate limiter so the
// resolution poller and the cache-miss path cannot stampede the API.
type GammaClient struct {
	host    string
	http    *http.Client
	limiter *rate.Limiter
}

func NewGammaClient(host string, rps float64, timeout time.Duration) *GammaClient {
	if rps <= 0 {
		rps = 5
	}
	return &GammaClient{
		host:    host,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

func (c *GammaClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("polymarket: rate limiter: %w", err)
	}
	u := c.host + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("polymarket: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket: gamma request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("polymarket: gamma %s returned %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("polymarket: decode %s response: %w", path, err)
	}
	return nil
}

// GetMarketByToken looks up the market that a clob token belongs to.
func (c *GammaClient) GetMarketByToken(ctx context.Context, tokenID string) (*APIMarket, error) {
	q := url.Values{}
	q.Set("clob_token_ids", tokenID)

	var markets []APIMarket
	if err := c.get(ctx, "/markets", q, &markets); err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("polymarket: market for token %s: %w", tokenID, domain.ErrNotFound)
	}
	return &markets[0], nil
}

// GetMarketInfo fetches and converts a market in one step.
func (c *GammaClient) GetMarketInfo(ctx context.Context, tokenID string, classifier domain.TimeframeClassifier) (domain.MarketInfo, error) {
	m, err := c.GetMarketByToken(ctx, tokenID)
	if err != nil {
		return domain.MarketInfo{}, err
	}
	return m.Info(tokenID, classifier), nil
}

// CheckResolution re-fetches a market and reports whether it has
// concluded. A transient API failure returns the error so callers can
// distinguish "not resolved yet" from "could not check".
func (c *GammaClient) CheckResolution(ctx context.Context, tokenID string) (resolved bool, winner *domain.TradeSide, err error) {
	m, err := c.GetMarketByToken(ctx, tokenID)
	if err != nil {
		return false, nil, err
	}
	resolved, winner = m.Resolution(tokenID)
	return resolved, winner, nil
}
