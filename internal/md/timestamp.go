package md

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Integer epochs at or above this magnitude are milliseconds. Seconds stay
// below it until the year 5138.
const millisThreshold = 100_000_000_000

var nanosPerSecond = decimal.NewFromInt(int64(time.Second))

// ParseTimestamp accepts RFC3339 strings, integer epochs in seconds or
// milliseconds, fractional epoch seconds and integers suffixed with "ms".
// The result is always UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if digits, ok := strings.CutSuffix(value, "ms"); ok {
		ms, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid millisecond timestamp %q: %w", raw, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return FromEpoch(n), nil
	}

	if secs, err := decimal.NewFromString(value); err == nil {
		whole := secs.Truncate(0)
		nanos := secs.Sub(whole).Mul(nanosPerSecond).IntPart()
		return time.Unix(whole.IntPart(), nanos).UTC(), nil
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func FromEpoch(n int64) time.Time {
	if n >= millisThreshold || n <= -millisThreshold {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
