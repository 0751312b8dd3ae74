package indicator

import (
	"errors"
	"testing"
	"time"

	"mabot/internal/md"

	"github.com/shopspring/decimal"
)

func seriesOf(closes ...int64) md.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]md.Candle, 0, len(closes))
	for i, c := range closes {
		candles = append(candles, md.Candle{
			Start: start.Add(time.Duration(i) * time.Minute),
			Close: decimal.NewFromInt(c),
		})
	}
	return md.Series{Product: "SOL-USD", Candles: candles, Tier: md.TierPrimary}
}

func TestComputeUsesTrailingWindows(t *testing.T) {
	series := seriesOf(100, 1, 2, 3, 4, 5, 6)

	got, err := Compute(series, 2, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Fast.Equal(decimal.NewFromFloat(5.5)) {
		t.Fatalf("expected fast 5.5, got %s", got.Fast)
	}
	if !got.Slow.Equal(decimal.NewFromFloat(4.5)) {
		t.Fatalf("expected slow 4.5, got %s", got.Slow)
	}
	if !got.Close.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("expected close 6, got %s", got.Close)
	}
	if !got.At.Equal(series.Candles[6].Start) {
		t.Fatalf("expected indicator time of last candle")
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	series := seriesOf(3, 9, 4, 7, 1, 8, 2, 6)

	first, err := Compute(series, 3, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Compute(series, 3, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !again.Fast.Equal(first.Fast) || !again.Slow.Equal(first.Slow) {
			t.Fatalf("compute not deterministic: %v vs %v", again, first)
		}
	}
	if !series.Candles[0].Close.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("compute must not mutate its input")
	}
}

func TestComputeInsufficientData(t *testing.T) {
	_, err := Compute(seriesOf(1, 2, 3), 2, 4)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestComputeRejectsInvalidPeriods(t *testing.T) {
	if _, err := Compute(seriesOf(1, 2, 3), 0, 2); err == nil {
		t.Fatalf("expected error for zero period")
	}
}
