// Package assets provides asset-class statistics: the per-class return and
// risk numbers every projection engine in the planner consumes, keyed by
// class name and coarse horizon bucket.
package assets

import (
	"fmt"
	"strings"
)

// HorizonBucket is the coarse investment-horizon bucket statistics are
// keyed by. Short-horizon goals use more conservative statistics than
// long-horizon ones.
type HorizonBucket string

const (
	// BucketShortTerm covers horizons up to 3 years.
	BucketShortTerm HorizonBucket = "short_term"
	// BucketMediumTerm covers horizons up to 5 years.
	BucketMediumTerm HorizonBucket = "medium_term"
	// BucketLongTerm covers horizons beyond 5 years.
	BucketLongTerm HorizonBucket = "long_term"
)

// ShortHorizonYears is the horizon below which a goal is funded from
// corpus only and never receives a contribution.
const ShortHorizonYears = 3.0

// BucketForHorizon maps a goal horizon in years onto its statistics bucket.
func BucketForHorizon(years float64) HorizonBucket {
	switch {
	case years <= 3:
		return BucketShortTerm
	case years <= 5:
		return BucketMediumTerm
	default:
		return BucketLongTerm
	}
}

// ClassStats holds the summary statistics for one asset class within one
// horizon bucket. Percentages are expressed as 12.5 for 12.5%.
type ClassStats struct {
	AvgReturnPct         float64  `json:"avg_return_pct"`
	ProbNegativeYearPct  float64  `json:"prob_negative_year_pct"`
	ExpectedShortfallPct float64  `json:"expected_shortfall_pct"`
	MaxDrawdownPct       float64  `json:"max_drawdown_pct"`
	VolatilityPct        *float64 `json:"volatility_pct,omitempty"`
}

// Validate checks the documented ranges of the statistics.
func (s ClassStats) Validate() error {
	if s.ProbNegativeYearPct < 0 || s.ProbNegativeYearPct > 100 {
		return fmt.Errorf("prob_negative_year_pct must be in [0,100], got %v", s.ProbNegativeYearPct)
	}
	if s.ExpectedShortfallPct > 0 {
		return fmt.Errorf("expected_shortfall_pct must be <= 0, got %v", s.ExpectedShortfallPct)
	}
	if s.MaxDrawdownPct > 0 {
		return fmt.Errorf("max_drawdown_pct must be <= 0, got %v", s.MaxDrawdownPct)
	}
	if s.VolatilityPct != nil && *s.VolatilityPct < 0 {
		return fmt.Errorf("volatility_pct must be >= 0, got %v", *s.VolatilityPct)
	}
	return nil
}

// StatsGrid holds class statistics for every horizon bucket.
type StatsGrid map[HorizonBucket]map[string]ClassStats

// For returns the class statistics for a bucket. The returned map is the
// grid's own; callers must not mutate it.
func (g StatsGrid) For(bucket HorizonBucket) map[string]ClassStats {
	return g[bucket]
}

// Lookup resolves the statistics for an asset class at a goal horizon.
func (g StatsGrid) Lookup(class string, horizonYears float64) (ClassStats, bool) {
	stats, ok := g[BucketForHorizon(horizonYears)][class]
	return stats, ok
}

// Validate checks every cell of the grid.
func (g StatsGrid) Validate() error {
	for bucket, classes := range g {
		for class, stats := range classes {
			if err := stats.Validate(); err != nil {
				return fmt.Errorf("invalid stats for %s/%s: %w", class, bucket, err)
			}
		}
	}
	return nil
}

// IsCash reports whether the class is the cash sleeve. Cash is excluded
// from return/risk weighting and from volatility requirements.
func IsCash(class string) bool {
	return strings.EqualFold(class, "cash")
}

// IsBond reports whether the class is a bond sleeve, the target of the
// maturity glide path.
func IsBond(class string) bool {
	return strings.Contains(strings.ToLower(class), "bond")
}

// MissingStatisticError reports an input contract violation: a required
// statistic is absent for an asset class. It is a hard error, never a
// silent default.
type MissingStatisticError struct {
	AssetClass string
	Statistic  string
}

func (e *MissingStatisticError) Error() string {
	return fmt.Sprintf("missing required statistic %q for asset class %q", e.Statistic, e.AssetClass)
}
