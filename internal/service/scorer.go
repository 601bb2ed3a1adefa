package service

import (
	"github.com/hfchan/whalebot/internal/config"
	"github.com/hfchan/whalebot/internal/domain"
)

// ScoreInput carries everything the scorer looks at for one candidate
// trade. The scorer itself is pure: same input, same score.
type ScoreInput struct {
	Stats      domain.WalletStats // whale's aggregate in the market's timeframe
	Tier       domain.Timeframe   // tier the whale belongs to
	MarketTF   domain.Timeframe   // timeframe of the market being traded
	Correlated int                // near-identical roster orders inside the window
}

// Scorer turns a whale's track record and the trade's context into a
// confidence score on a 0-100 scale.
//
// The score starts from a shrunk win rate: the observed rate pulled
// toward a neutral 50% prior by a configured pseudo-sample, so a 3-0
// streak does not outrank a 40-6 record. Specialty fit, herd
// correlation, and a market-maker fingerprint adjust from there.
type Scorer struct {
	prior      int     // pseudo-trades at the neutral prior
	offPenalty float64 // subtracted when trading outside the tier specialty
}

func NewScorer(cfg config.CopierConfig, tiers config.TiersConfig) *Scorer {
	return &Scorer{
		prior:      cfg.ShrinkagePriorTrades,
		offPenalty: tiers.OffSpecialtyPenalty,
	}
}

const (
	neutralWinRate = 0.5

	// Correlation: each additional near-identical order inside the
	// window costs this much. Crowds of copies are a herding signal,
	// not extra conviction.
	correlationPenalty = 4.0
	correlationCap     = 12.0

	// Market-maker fingerprint: a balanced buy/sell ratio over a large
	// sample means the wallet provides liquidity rather than betting.
	mmMinSample   = 20
	mmLowerRatio  = 0.4
	mmUpperRatio  = 0.6
	mmFlatPenalty = 15.0
)

// Score computes the confidence for one candidate trade.
func (s *Scorer) Score(in ScoreInput) float64 {
	score := s.shrunkWinRate(in.Stats) * 100

	if in.MarketTF.Known() && in.MarketTF != in.Tier {
		score -= s.offPenalty
	}

	if in.Correlated > 0 {
		penalty := float64(in.Correlated) * correlationPenalty
		if penalty > correlationCap {
			penalty = correlationCap
		}
		score -= penalty
	}

	if s.looksLikeMarketMaker(in.Stats) {
		score -= mmFlatPenalty
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (s *Scorer) shrunkWinRate(st domain.WalletStats) float64 {
	n := float64(st.TradeCount)
	k := float64(s.prior)
	if n+k == 0 {
		return neutralWinRate
	}
	return (float64(st.WinCount) + neutralWinRate*k) / (n + k)
}

func (s *Scorer) looksLikeMarketMaker(st domain.WalletStats) bool {
	if st.BuyCount+st.SellCount < mmMinSample {
		return false
	}
	r := st.BuyRatio()
	return r >= mmLowerRatio && r <= mmUpperRatio
}
