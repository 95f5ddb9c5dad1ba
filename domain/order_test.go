package domain

import (
	"math"
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func TestComputeOrderBetweenNeighbours(t *testing.T) {
	now := time.UnixMilli(5_000_000)
	got := ComputeOrder(f(1000), f(2000), now)
	if got != 1500 {
		t.Fatalf("expected 1500, got %v", got)
	}
	if !(got > 1000 && got < 2000) {
		t.Fatalf("expected key strictly between neighbours, got %v", got)
	}
}

func TestComputeOrderHeadAndTail(t *testing.T) {
	now := time.UnixMilli(5_000_000)
	if got := ComputeOrder(nil, f(3000), now); got != 2000 {
		t.Fatalf("expected head key 2000, got %v", got)
	}
	if got := ComputeOrder(f(3000), nil, now); got != 4000 {
		t.Fatalf("expected tail key 4000, got %v", got)
	}
}

func TestComputeOrderEmptyColumnUsesClock(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	if got := ComputeOrder(nil, nil, now); got != 1_700_000_000_123 {
		t.Fatalf("expected clock millis, got %v", got)
	}
	later := ComputeOrder(nil, nil, now.Add(time.Second))
	if later <= ComputeOrder(nil, nil, now) {
		t.Fatalf("expected later drop to sort after earlier one")
	}
}

func TestComputeOrderIgnoresNonFiniteNeighbours(t *testing.T) {
	now := time.UnixMilli(42)
	if got := ComputeOrder(f(math.NaN()), f(3000), now); got != 2000 {
		t.Fatalf("expected NaN prev to be treated as absent, got %v", got)
	}
	if got := ComputeOrder(f(1000), f(math.Inf(1)), now); got != 2000 {
		t.Fatalf("expected Inf next to be treated as absent, got %v", got)
	}
	if got := ComputeOrder(f(math.Inf(-1)), f(math.NaN()), now); got != 42 {
		t.Fatalf("expected clock fallback, got %v", got)
	}
}

func TestRepeatedBisectionExhaustsPrecision(t *testing.T) {
	lo, hi := 1000.0, 2000.0
	splits := 0
	for OrderGap(lo, hi) {
		hi = ComputeOrder(f(lo), f(hi), time.Time{})
		splits++
		if splits > 200 {
			t.Fatalf("expected float64 precision to run out")
		}
	}
	if splits < 30 {
		t.Fatalf("expected many bisections before exhaustion, got %d", splits)
	}
	mid := ComputeOrder(f(lo), f(hi), time.Time{})
	if mid > lo && mid < hi {
		t.Fatalf("expected no room left between %v and %v", lo, hi)
	}
}

func TestComputeOrderStrictlyBetweenAcrossRanges(t *testing.T) {
	cases := []struct {
		name       string
		prev, next float64
	}{
		{"adjacent thousands", 1000, 2000},
		{"negative", -5000, -4999},
		{"straddles zero", -1, 1},
		{"small fractions", 0.001, 0.002},
		{"epoch millis", 1_700_000_000_000, 1_700_000_000_001},
		{"large positive", 1.5e308, 1.7e308},
		{"large negative", -1.7e308, -1.5e308},
		{"full range", -math.MaxFloat64, math.MaxFloat64},
		{"near max", math.Nextafter(math.MaxFloat64, 0) / 2, math.MaxFloat64},
	}
	for _, tc := range cases {
		got := ComputeOrder(f(tc.prev), f(tc.next), time.Time{})
		if !IsFinite(got) || !(got > tc.prev && got < tc.next) {
			t.Fatalf("%s: expected key strictly between %v and %v, got %v", tc.name, tc.prev, tc.next, got)
		}
		if !OrderGap(tc.prev, tc.next) {
			t.Fatalf("%s: expected a gap between %v and %v", tc.name, tc.prev, tc.next)
		}
	}

	for x := 1e-300; x < 1e300; x *= 1e10 {
		for _, pair := range [][2]float64{{x, 2 * x}, {-2 * x, -x}, {-x, x}} {
			lo, hi := pair[0], pair[1]
			if got := ComputeOrder(f(lo), f(hi), time.Time{}); !(got > lo && got < hi) {
				t.Fatalf("expected key strictly between %v and %v, got %v", lo, hi, got)
			}
		}
	}
}
