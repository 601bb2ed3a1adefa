package domain

import "time"

// TradeSide is the direction of a fill relative to the outcome token.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// RawFill is a single fill notification from the exchange feed. One logical
// order may be reported as several partial fills with the same wallet, token
// and side in quick succession.
type RawFill struct {
	Wallet    string
	TokenID   string
	MarketID  string
	Side      TradeSide
	Price     float64
	Size      float64
	Sequence  int64 // block number or feed sequence, monotonic per source
	Timestamp time.Time
}

// NotionalUSD returns the fill's dollar value.
func (f RawFill) NotionalUSD() float64 {
	return f.Price * f.Size
}

// CandidateTrade is one logical whale order, merged from one or more raw
// fills for the same (wallet, token, side) within the aggregation window.
// It lives only long enough to be scored.
type CandidateTrade struct {
	TradeID    string // deterministic: wallet + token + side + first sequence
	Wallet     string
	TokenID    string
	MarketID   string
	Side       TradeSide
	Size       float64 // total token quantity across merged fills
	AvgPrice   float64 // size-weighted
	Notional   float64 // total USD across merged fills
	FirstSeq   int64
	FillCount  int
	ObservedAt time.Time
}
