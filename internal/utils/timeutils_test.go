package utils

import (
	"testing"
	"time"
)

func TestParseRequestTime(t *testing.T) {
	got, err := ParseRequestTime("2025-03-04")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %v", got)
	}

	got, err = ParseRequestTime("2025-03-04T10:30:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour() != 10 || got.Minute() != 30 {
		t.Fatalf("unexpected instant: %v", got)
	}

	if _, err := ParseRequestTime("03/04/2025"); err == nil {
		t.Fatalf("expected error for unsupported layout")
	}
	if _, err := ParseRequestTime("  "); err == nil {
		t.Fatalf("expected error for empty value")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                            "0s",
		500 * time.Millisecond:       "0s",
		90 * time.Second:             "1m 30s",
		26*time.Hour + 4*time.Second: "1d 2h 4s",
		48 * time.Hour:               "2d",
	}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
