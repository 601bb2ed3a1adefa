package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/hfchan/whalebot/internal/domain"
)

// flexBool unmarshals booleans that the Gamma API sometimes encodes as
// strings ("true"/"false") and sometimes as JSON booleans.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseBool(s)
	if err != nil {
		*b = false
		return nil
	}
	*b = flexBool(v)
	return nil
}

// APIMarket is the Gamma market payload, limited to the fields the
// copier cares about.
type APIMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	ConditionID   string    `json:"conditionId"`
	Slug          string    `json:"slug"`
	EndDate       time.Time `json:"endDate"`
	Closed        flexBool  `json:"closed"`
	Active        flexBool  `json:"active"`
	ClobTokenIDs  string    `json:"clobTokenIds"`
	Outcomes      string    `json:"outcomes"`
	OutcomePrices string    `json:"outcomePrices"`
	UMAResolution string    `json:"umaResolutionStatus"`
}

// TokenIDs decodes the clobTokenIds field, which Gamma returns as a
// JSON array encoded inside a string.
func (m *APIMarket) TokenIDs() []string {
	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return nil
	}
	return ids
}

func (m *APIMarket) outcomePrices() []float64 {
	var raw []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &raw); err != nil {
		return nil
	}
	prices := make([]float64, 0, len(raw))
	for _, s := range raw {
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		prices = append(prices, p)
	}
	return prices
}

// Resolution reports whether the market has concluded and, if so,
// which side of the given token won. The first clob token is the YES
// token by Polymarket convention; a winning price of 1 on that token
// means BUY positions on it won.
func (m *APIMarket) Resolution(tokenID string) (resolved bool, winner *domain.TradeSide) {
	if !bool(m.Closed) {
		return false, nil
	}
	prices := m.outcomePrices()
	ids := m.TokenIDs()
	if len(prices) != len(ids) {
		return false, nil
	}
	for i, id := range ids {
		if id != tokenID {
			continue
		}
		switch {
		case prices[i] >= 0.999:
			s := domain.TradeSideBuy
			return true, &s
		case prices[i] <= 0.001:
			s := domain.TradeSideSell
			return true, &s
		default:
			// Closed but prices not settled yet (UMA dispute window).
			return false, nil
		}
	}
	return false, nil
}

// Info converts the market payload into the domain representation,
// classifying its timeframe with the supplied classifier.
func (m *APIMarket) Info(tokenID string, classifier domain.TimeframeClassifier) domain.MarketInfo {
	var end *time.Time
	if !m.EndDate.IsZero() {
		e := m.EndDate
		end = &e
	}
	resolved, winner := m.Resolution(tokenID)
	return domain.MarketInfo{
		MarketID:    m.ConditionID,
		TokenID:     tokenID,
		Question:    m.Question,
		Timeframe:   classifier.Classify(m.Question, end),
		EndTime:     end,
		Resolved:    resolved,
		WinningSide: winner,
	}
}

// APITrade is a single fill from the Data API /trades endpoint.
type APITrade struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	TransactionHash string  `json:"transactionHash"`
}

// WSCommand is the subscribe/unsubscribe frame for the user-activity feed.
type WSCommand struct {
	Type  string   `json:"type"`
	Users []string `json:"users,omitempty"`
}

// WSTradeMessage is a fill event pushed over the websocket activity feed.
type WSTradeMessage struct {
	Type            string  `json:"type"`
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	TransactionHash string  `json:"transactionHash"`
}
