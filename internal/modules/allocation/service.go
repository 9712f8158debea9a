// Package allocation turns a set of allowed asset classes into target
// percentages using Sharpe-ratio weighting, and applies the maturity
// glide path that de-risks basic-tier allocations near a goal's due date.
package allocation

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/goalplanner/internal/modules/assets"
)

const (
	// minClassWeightPct is the floor each weighted class receives before
	// normalization, out of 100.
	minClassWeightPct = 5.0

	// minNegativeYearProb and maxNegativeYearProb clamp p when
	// approximating volatility, keeping sqrt(p/(1-p)) positive and
	// finite at both extremes.
	minNegativeYearProb = 0.01
	maxNegativeYearProb = 0.99

	// glideBondTargetPct is the bond share the glide path moves a
	// basic-tier allocation to in the goal's final year.
	glideBondTargetPct = 80

	// glideWindowMonths is how long before maturity the glide path engages.
	glideWindowMonths = 12
)

// Service computes target allocations.
type Service struct {
	log zerolog.Logger
}

// NewService creates a new allocation service.
func NewService(log zerolog.Logger) *Service {
	return &Service{
		log: log.With().Str("component", "allocation").Logger(),
	}
}

// ApproxVolatility approximates an annualized volatility from the stated
// negative-year probability and expected shortfall:
// |shortfall| * sqrt(p/(1-p)). The probability is clamped away from both
// 0 and 1, so a never-negative class keeps a small but positive
// volatility and its Sharpe ratio stays finite instead of collapsing to
// the floor weight.
func ApproxVolatility(stats assets.ClassStats) float64 {
	p := stats.ProbNegativeYearPct / 100.0
	if p < minNegativeYearProb {
		p = minNegativeYearProb
	}
	if p > maxNegativeYearProb {
		p = maxNegativeYearProb
	}
	return math.Abs(stats.ExpectedShortfallPct) * math.Sqrt(p/(1-p))
}

// OptimalAllocation builds target percentages for the allowed classes
// using per-class Sharpe ratios (avgReturn / approximated volatility).
// Cash is excluded from return/risk weighting; percentages are integers
// summing to exactly 100.
func (s *Service) OptimalAllocation(allowedClasses []string, stats map[string]assets.ClassStats) (map[string]int, error) {
	invested := make([]string, 0, len(allowedClasses))
	for _, class := range allowedClasses {
		if assets.IsCash(class) {
			continue
		}
		if _, ok := stats[class]; !ok {
			return nil, &assets.MissingStatisticError{AssetClass: class, Statistic: "class_stats"}
		}
		invested = append(invested, class)
	}

	if len(invested) == 0 {
		// Nothing to weight; park everything in cash if it is allowed.
		for _, class := range allowedClasses {
			if assets.IsCash(class) {
				return map[string]int{class: 100}, nil
			}
		}
		return map[string]int{}, nil
	}

	// deterministic iteration order for the rounding residual
	sort.Strings(invested)

	sharpes := make(map[string]float64, len(invested))
	totalSharpe := 0.0
	for _, class := range invested {
		st := stats[class]
		vol := ApproxVolatility(st)
		sharpe := 0.0
		if vol > 0 && st.AvgReturnPct > 0 {
			sharpe = st.AvgReturnPct / vol
		}
		sharpes[class] = sharpe
		totalSharpe += sharpe
	}

	weights := make(map[string]float64, len(invested))
	if totalSharpe <= 0 {
		// No usable risk-adjusted signal; split equally.
		for _, class := range invested {
			weights[class] = 100.0 / float64(len(invested))
		}
	} else {
		floored := 0.0
		for _, class := range invested {
			w := sharpes[class] / totalSharpe * 100.0
			if w < minClassWeightPct {
				w = minClassWeightPct
			}
			weights[class] = w
			floored += w
		}
		// Renormalize after flooring.
		for class := range weights {
			weights[class] = weights[class] / floored * 100.0
		}
	}

	allocation := make(map[string]int, len(invested))
	sum := 0
	largest := invested[0]
	for _, class := range invested {
		pct := int(math.Round(weights[class]))
		allocation[class] = pct
		sum += pct
		if weights[class] > weights[largest] {
			largest = class
		}
	}
	// Absorb rounding residual in the heaviest sleeve.
	allocation[largest] += 100 - sum

	s.log.Debug().
		Interface("allocation", allocation).
		Msg("Computed optimal allocation")

	return allocation, nil
}

// ApplyGlidePath shifts an allocation toward bonds once the goal enters
// its final year. currentMonth is zero-based from the start of the plan;
// totalMonths is the goal's full horizon. Outside the glide window the
// allocation is returned unchanged (as a copy).
//
// The caller applies this to basic tiers only; ambitious tiers never glide.
func (s *Service) ApplyGlidePath(allocation map[string]int, currentMonth, totalMonths int) map[string]int {
	out := make(map[string]int, len(allocation))
	for class, pct := range allocation {
		out[class] = pct
	}

	if currentMonth < totalMonths-glideWindowMonths {
		return out
	}

	// Glide into the heaviest bond sleeve; name breaks ties so repeated
	// calls pick the same sleeve.
	bondClass := ""
	bondPct := 0
	for class, pct := range out {
		if !assets.IsBond(class) {
			continue
		}
		bondPct += pct
		if bondClass == "" || pct > out[bondClass] || (pct == out[bondClass] && class < bondClass) {
			bondClass = class
		}
	}

	if bondPct >= glideBondTargetPct {
		return out
	}
	if bondClass == "" {
		// Synthesize a bond sleeve to glide into.
		bondClass = "bonds"
		out[bondClass] = 0
	}

	nonBondTotal := 0
	for class, pct := range out {
		if class == bondClass {
			continue
		}
		nonBondTotal += pct
	}
	if nonBondTotal == 0 {
		out[bondClass] = 100
		return out
	}

	factor := float64(100-glideBondTargetPct) / float64(nonBondTotal)
	classes := make([]string, 0, len(out))
	for class := range out {
		if class != bondClass {
			classes = append(classes, class)
		}
	}
	sort.Strings(classes)

	remaining := 100
	for _, class := range classes {
		scaled := int(math.Round(float64(out[class]) * factor))
		out[class] = scaled
		remaining -= scaled
	}
	// Bonds absorb the rounding so the total is exactly 100.
	out[bondClass] = remaining

	s.log.Debug().
		Int("current_month", currentMonth).
		Int("total_months", totalMonths).
		Interface("allocation", out).
		Msg("Applied maturity glide path")

	return out
}
