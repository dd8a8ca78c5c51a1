package dispatch

import (
	"testing"
	"time"
)

func TestCalculateBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, 1 * time.Minute},
		{3, 5 * time.Minute},
		{4, 15 * time.Minute},
		{5, 1 * time.Hour},
		{6, 3 * time.Hour},
		{7, 8 * time.Hour},
		{8, 24 * time.Hour},
		{9, 24 * time.Hour},
		{100, 24 * time.Hour},
		{0, 0},
		{-1, 0},
	}

	for _, tc := range cases {
		if got := CalculateBackoffDelay(tc.attempt); got != tc.want {
			t.Errorf("CalculateBackoffDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestParseRetryAfterHeader(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   time.Duration
		ok     bool
	}{
		{"empty", "", 0, false},
		{"seconds", "120", 2 * time.Minute, true},
		{"zero", "0", 0, true},
		{"negative", "-5", 0, false},
		{"http date", "Wed, 21 Oct 2026 07:28:00 GMT", 0, false},
		{"garbage", "soon", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseRetryAfterHeader(tc.header)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("ParseRetryAfterHeader(%q) = (%v, %v), want (%v, %v)",
					tc.header, got, ok, tc.want, tc.ok)
			}
		})
	}
}
