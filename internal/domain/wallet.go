package domain

import "time"

// WalletStats is the per-(wallet, timeframe) rolling performance aggregate.
// Only resolved trades contribute to TradeCount and WinRate; pending trades
// are tracked separately and never affect the win rate.
type WalletStats struct {
	Wallet       string
	Timeframe    Timeframe
	TradeCount   int // resolved trades
	WinCount     int
	PendingCount int
	Profit       float64 // cumulative realized profit across resolved trades
	BuyCount     int     // side balance over all observed trades, for
	SellCount    int     // market-maker fingerprinting
	UpdatedAt    time.Time
}

// WinRate returns the resolved win rate in [0,1], or 0 when no trades have
// resolved yet.
func (s WalletStats) WinRate() float64 {
	if s.TradeCount == 0 {
		return 0
	}
	return float64(s.WinCount) / float64(s.TradeCount)
}

// BuyRatio returns the fraction of observed trades that were buys. Wallets
// hovering around 0.5 over a large sample fingerprint as liquidity providers
// rather than directional bettors.
func (s WalletStats) BuyRatio() float64 {
	total := s.BuyCount + s.SellCount
	if total == 0 {
		return 0.5
	}
	return float64(s.BuyCount) / float64(total)
}

// ObservedTradeStatus tracks an observed whale trade through resolution.
type ObservedTradeStatus string

const (
	ObservedPending  ObservedTradeStatus = "pending"
	ObservedResolved ObservedTradeStatus = "resolved"
)

// ObservedTrade is one whale trade recorded against the statistics store,
// whether or not it was copied. Resolution of the underlying market turns it
// into a win or loss for the wallet's aggregate.
type ObservedTrade struct {
	TradeID    string
	Wallet     string
	Timeframe  Timeframe
	MarketID   string
	Side       TradeSide
	Notional   float64
	Copied     bool
	Status     ObservedTradeStatus
	Won        *bool
	RecordedAt time.Time
	ResolvedAt *time.Time
}
