package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DataClient polls the Data API /trades endpoint. It backs the fill
// feed's degraded mode when the websocket is down.
type DataClient struct {
	host string
	http *http.Client
}

func NewDataClient(host string, timeout time.Duration) *DataClient {
	return &DataClient{
		host: host,
		http: &http.Client{Timeout: timeout},
	}
}

// GetUserTrades returns trades for a single wallet newer than the given
// unix timestamp, most recent first.
func (c *DataClient) GetUserTrades(ctx context.Context, wallet string, after int64, limit int) ([]APITrade, error) {
	q := url.Values{}
	q.Set("user", wallet)
	q.Set("limit", strconv.Itoa(limit))
	if after > 0 {
		q.Set("after", strconv.FormatInt(after, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/trades?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket: build trades request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket: data api trades: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("polymarket: data api returned %d: %s", resp.StatusCode, string(body))
	}

	var trades []APITrade
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		return nil, fmt.Errorf("polymarket: decode trades: %w", err)
	}
	return trades, nil
}
