package md

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Granularity string

const (
	OneMinute Granularity = "ONE_MINUTE"
)

func (g Granularity) Duration() time.Duration {
	switch g {
	case OneMinute:
		return time.Minute
	default:
		return 0
	}
}

type Candle struct {
	Start  time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// Tier names the fallback level that produced a series.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSynthetic Tier = "synthetic"
	TierBasic     Tier = "basic"
)

type Series struct {
	Product string
	Candles []Candle
	Tier    Tier
}

func (s Series) Len() int {
	return len(s.Candles)
}

func (s Series) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Degraded reports whether the series was synthesized rather than fetched.
func (s Series) Degraded() bool {
	return s.Tier != TierPrimary
}

// Normalize returns a copy of candles sorted ascending by start time with
// duplicate timestamps collapsed to their last occurrence.
func Normalize(candles []Candle) []Candle {
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	result := sorted[:0]
	for _, c := range sorted {
		if n := len(result); n > 0 && result[n-1].Start.Equal(c.Start) {
			result[n-1] = c
			continue
		}
		result = append(result, c)
	}
	return result
}
