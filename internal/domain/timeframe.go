package domain

import "time"

// Timeframe buckets markets by how quickly they resolve. Wallets are tiered
// by the timeframe they specialize in.
type Timeframe string

const (
	Timeframe15Min   Timeframe = "15min"
	TimeframeHourly  Timeframe = "hourly"
	Timeframe4Hour   Timeframe = "4hour"
	TimeframeDaily   Timeframe = "daily"
	TimeframeUnknown Timeframe = "unknown"
)

// Timeframes lists the known tiers in ascending resolution-duration order.
// This is also the deterministic iteration order for roster assignment.
var Timeframes = []Timeframe{Timeframe15Min, TimeframeHourly, Timeframe4Hour, TimeframeDaily}

// Known reports whether the timeframe is one of the tiered buckets.
func (tf Timeframe) Known() bool {
	switch tf {
	case Timeframe15Min, TimeframeHourly, Timeframe4Hour, TimeframeDaily:
		return true
	default:
		return false
	}
}

// Duration returns the nominal lifetime of a market in this timeframe. It is
// used to estimate resolution times when the metadata source carries no
// explicit end time.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe15Min:
		return 15 * time.Minute
	case TimeframeHourly:
		return time.Hour
	case Timeframe4Hour:
		return 4 * time.Hour
	case TimeframeDaily:
		return 24 * time.Hour
	default:
		return 15 * time.Minute
	}
}

// TimeframeClassifier infers a market's timeframe from its free-text question
// and optional end time. Implementations are best-effort: failure mode is
// TimeframeUnknown, never an error.
type TimeframeClassifier interface {
	Classify(question string, endTime *time.Time) Timeframe
}
