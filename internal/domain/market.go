package domain

import "time"

// MarketInfo is the metadata the core needs about a prediction market:
// its timeframe bucket, when it should conclude, and (after conclusion)
// which side won.
type MarketInfo struct {
	MarketID    string
	TokenID     string
	Question    string
	Timeframe   Timeframe
	EndTime     *time.Time
	Resolved    bool
	WinningSide *TradeSide // nil until Resolved
}
