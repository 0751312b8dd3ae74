package md

import (
	"time"

	"github.com/shopspring/decimal"
)

// Synthetic series only keep the indicator pipeline alive during outages.
// They are flagged by their Tier and must not drive live orders.

var (
	// DefaultReferencePrice seeds the basic series when no price is reachable.
	DefaultReferencePrice = decimal.NewFromInt(196)

	syntheticBand   = decimal.NewFromFloat(0.01)
	basicStep       = decimal.NewFromFloat(0.01)
	wickUp          = decimal.NewFromFloat(1.002)
	wickDown        = decimal.NewFromFloat(0.998)
	openRatio       = decimal.NewFromFloat(0.999)
	syntheticVolume = decimal.NewFromInt(100)
)

const basicPoints = 50

// SyntheticSeries builds points one-minute candles ending at the minute of
// end whose closes drift upward from spot*(1-1%) to exactly spot.
func SyntheticSeries(product string, spot decimal.Decimal, points int, end time.Time) Series {
	if points < 2 {
		points = 2
	}
	floor := spot.Mul(decimal.NewFromInt(1).Sub(syntheticBand))
	spread := spot.Sub(floor)
	last := end.UTC().Truncate(time.Minute)
	steps := decimal.NewFromInt(int64(points - 1))

	candles := make([]Candle, 0, points)
	for i := 0; i < points; i++ {
		remaining := int64(points - 1 - i)
		price := spot.Sub(spread.Mul(decimal.NewFromInt(remaining)).Div(steps))
		candles = append(candles, Candle{
			Start:  last.Add(-time.Duration(remaining) * time.Minute),
			Open:   price.Mul(openRatio),
			High:   price.Mul(wickUp),
			Low:    price.Mul(wickDown),
			Close:  price,
			Volume: syntheticVolume,
		})
	}
	return Series{Product: product, Candles: candles, Tier: TierSynthetic}
}

// BasicSeries builds a deterministic uptrend of at least 50 candles from a
// fixed reference price.
func BasicSeries(product string, reference decimal.Decimal, points int, end time.Time) Series {
	if points < basicPoints {
		points = basicPoints
	}
	last := end.UTC().Truncate(time.Minute)

	candles := make([]Candle, 0, points)
	for i := 0; i < points; i++ {
		price := reference.Add(basicStep.Mul(decimal.NewFromInt(int64(i))))
		candles = append(candles, Candle{
			Start:  last.Add(-time.Duration(points-1-i) * time.Minute),
			Open:   price,
			High:   price.Mul(wickUp),
			Low:    price.Mul(wickDown),
			Close:  price,
			Volume: syntheticVolume,
		})
	}
	return Series{Product: product, Candles: candles, Tier: TierBasic}
}
