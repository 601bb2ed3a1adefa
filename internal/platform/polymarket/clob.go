package polymarket

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hfchan/whalebot/internal/domain"
)

// ClobCredentials are the L2 API credentials for the CLOB REST API.
type ClobCredentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
	Address    string
}

// ClobClient places and cancels orders on the CLOB REST API using
// HMAC-authenticated requests.
type ClobClient struct {
	baseURL string
	http    *http.Client
	creds   ClobCredentials
}

func NewClobClient(baseURL string, creds ClobCredentials) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		creds:   creds,
	}
}

func (c *ClobClient) sign(timestamp, method, path string, body []byte) (string, error) {
	secret, err := base64.URLEncoding.DecodeString(c.creds.APISecret)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: decode api secret: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + method + path))
	mac.Write(body)
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (c *ClobClient) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("polymarket/clob: marshal payload: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: build request: %w", err)
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := c.sign(ts, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_ADDRESS", c.creds.Address)
	req.Header.Set("POLY_API_KEY", c.creds.APIKey)
	req.Header.Set("POLY_PASSPHRASE", c.creds.Passphrase)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_SIGNATURE", sig)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("polymarket/clob: %s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// PostOrder submits a marketable limit order and reports the fill.
func (c *ClobClient) PostOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	payload := map[string]any{
		"order": map[string]any{
			"tokenID": req.TokenID,
			"side":    string(req.Side),
			"size":    strconv.FormatFloat(req.Size, 'f', -1, 64),
			"price":   strconv.FormatFloat(req.MaxPrice, 'f', -1, 64),
		},
		"owner":     c.creds.Address,
		"orderType": "FAK",
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/order", payload)
	if err != nil {
		return domain.OrderResult{}, err
	}

	var api struct {
		Success      bool   `json:"success"`
		ErrorMsg     string `json:"errorMsg"`
		OrderID      string `json:"orderID"`
		TakingAmount string `json:"takingAmount"`
		MakingAmount string `json:"makingAmount"`
	}
	if err := json.Unmarshal(respBody, &api); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !api.Success {
		return domain.OrderResult{Reason: api.ErrorMsg}, fmt.Errorf("polymarket/clob: order rejected: %s: %w", api.ErrorMsg, domain.ErrOrderRejected)
	}

	filled, _ := strconv.ParseFloat(api.TakingAmount, 64)
	cost, _ := strconv.ParseFloat(api.MakingAmount, 64)
	result := domain.OrderResult{
		Filled:   filled > 0,
		Quantity: filled,
	}
	if filled > 0 {
		result.FillPrice = cost / filled
	}
	return result, nil
}
