package md

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	cases := map[string]string{
		"epoch seconds":      "1700000000",
		"epoch milliseconds": "1700000000000",
		"ms suffix":          "1700000000000ms",
		"rfc3339":            "2023-11-14T22:13:20Z",
		"rfc3339 offset":     "2023-11-14T23:13:20+01:00",
		"padded":             "  1700000000 ",
	}
	for name, raw := range cases {
		got, err := ParseTimestamp(raw)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("%s: expected %s, got %s", name, want, got)
		}
	}
}

func TestParseTimestampFractionalSeconds(t *testing.T) {
	got, err := ParseTimestamp("1700000000.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2023, 11, 14, 22, 13, 20, 500_000_000, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "yesterday", "12ms34"} {
		if _, err := ParseTimestamp(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
