// Package indicator computes the moving averages the crossover strategy
// compares. Only the value at the most recent candle is produced.
package indicator

import (
	"errors"
	"fmt"
	"time"

	"mabot/internal/md"

	"github.com/shopspring/decimal"
)

// ErrInsufficientData means the series is shorter than the slow period.
var ErrInsufficientData = errors.New("insufficient candle data")

type Indicators struct {
	Fast       decimal.Decimal
	Slow       decimal.Decimal
	FastPeriod int
	SlowPeriod int
	Close      decimal.Decimal
	At         time.Time
}

// Compute returns the fast and slow simple moving averages of closing
// prices taken at the last candle of series.
func Compute(series md.Series, fast, slow int) (Indicators, error) {
	if fast <= 0 || slow <= 0 {
		return Indicators{}, fmt.Errorf("invalid periods fast=%d slow=%d", fast, slow)
	}
	longest := max(fast, slow)
	n := series.Len()
	if n < longest {
		return Indicators{}, fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientData, n, longest)
	}

	closes := make([]decimal.Decimal, 0, longest)
	for _, c := range series.Candles[n-longest:] {
		closes = append(closes, c.Close)
	}
	fastMA, err := SMA(closes, fast)
	if err != nil {
		return Indicators{}, err
	}
	slowMA, err := SMA(closes, slow)
	if err != nil {
		return Indicators{}, err
	}

	last := series.Candles[n-1]
	return Indicators{
		Fast:       fastMA,
		Slow:       slowMA,
		FastPeriod: fast,
		SlowPeriod: slow,
		Close:      last.Close,
		At:         last.Start,
	}, nil
}

// SMA averages the last period values.
func SMA(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, errors.New("period must be positive")
	}
	if len(values) < period {
		return decimal.Zero, ErrInsufficientData
	}
	tail := values[len(values)-period:]
	return decimal.Avg(tail[0], tail[1:]...), nil
}
