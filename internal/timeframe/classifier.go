// Package timeframe classifies markets into the horizon buckets the
// tier engine keys on.
package timeframe

import (
	"regexp"
	"strings"
	"time"

	"github.com/hfchan/whalebot/internal/domain"
)

// Question phrasing checked before falling back to end-time distance.
// Patterns are matched against the lower-cased question.
var patterns = []struct {
	re *regexp.Regexp
	tf domain.Timeframe
}{
	{regexp.MustCompile(`15[\s-]?min|next 15|:15|:30|:45`), domain.Timeframe15Min},
	{regexp.MustCompile(`\bhourly\b|this hour|next hour|\b\d{1,2}(am|pm)\b`), domain.TimeframeHourly},
	{regexp.MustCompile(`4[\s-]?hour|4h\b`), domain.Timeframe4Hour},
	{regexp.MustCompile(`\btoday\b|\bdaily\b|by midnight|end of day`), domain.TimeframeDaily},
}

// KeywordClassifier implements domain.TimeframeClassifier with question
// keyword matching plus an end-time distance fallback.
type KeywordClassifier struct {
	now func() time.Time
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{now: time.Now}
}

var _ domain.TimeframeClassifier = (*KeywordClassifier)(nil)

func (c *KeywordClassifier) Classify(question string, endTime *time.Time) domain.Timeframe {
	q := strings.ToLower(question)
	for _, p := range patterns {
		if p.re.MatchString(q) {
			return p.tf
		}
	}

	if endTime == nil {
		return domain.TimeframeUnknown
	}
	remaining := endTime.Sub(c.now())
	switch {
	case remaining <= 0:
		return domain.TimeframeUnknown
	case remaining <= 15*time.Minute:
		return domain.Timeframe15Min
	case remaining <= time.Hour:
		return domain.TimeframeHourly
	case remaining <= 4*time.Hour:
		return domain.Timeframe4Hour
	case remaining <= 24*time.Hour:
		return domain.TimeframeDaily
	default:
		return domain.TimeframeUnknown
	}
}
