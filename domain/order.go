package domain

import (
	"math"
	"time"
)

// OrderHeadroom is the distance kept between a new head or tail key and its
// only neighbour.
const OrderHeadroom = 1000

// ComputeOrder returns a key that sorts strictly between prev and next.
// A nil or non-finite neighbour counts as absent. With no neighbours at all
// the key is now in milliseconds, which sorts after any earlier time-based
// key.
//
// Keys are never renormalised: bisecting the same gap repeatedly eventually
// runs out of float64 precision (see OrderGap).
func ComputeOrder(prev, next *float64, now time.Time) float64 {
	hasPrev := prev != nil && IsFinite(*prev)
	hasNext := next != nil && IsFinite(*next)
	switch {
	case hasPrev && hasNext:
		return midpoint(*prev, *next)
	case hasNext:
		return *next - OrderHeadroom
	case hasPrev:
		return *prev + OrderHeadroom
	default:
		return UnixMillis(now)
	}
}

// OrderGap reports whether another key still fits strictly between a and b.
func OrderGap(a, b float64) bool {
	if a > b {
		a, b = b, a
	}
	mid := midpoint(a, b)
	return mid > a && mid < b
}

// midpoint halves the gap instead of the sum so keys near ±MaxFloat64 stay
// finite.
func midpoint(a, b float64) float64 {
	d := b - a
	if math.IsInf(d, 0) {
		return a/2 + b/2
	}
	return a + d/2
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
