package formulas

import "math"

// RoundToThousand rounds a monetary amount to the nearest ₹1,000.
// All amounts emitted by the planner pass through this.
func RoundToThousand(amount float64) float64 {
	return math.Round(amount/1000.0) * 1000.0
}

// RoundUpToThousand rounds a monetary amount up to the next ₹1,000.
// Used for solver outputs (required contributions) so the recommendation
// never undershoots the solved minimum.
func RoundUpToThousand(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	return math.Ceil(amount/1000.0) * 1000.0
}

// FloorToThousand rounds a monetary amount down to the previous ₹1,000.
// Used where the rounded figures must never exceed a budget they are
// drawn from.
func FloorToThousand(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	return math.Floor(amount/1000.0) * 1000.0
}

// RoundPercent rounds a percentage to the nearest integer and clamps it
// to [0, 100].
func RoundPercent(pct float64) int {
	p := int(math.Round(pct))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
