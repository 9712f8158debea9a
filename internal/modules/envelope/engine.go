// Package envelope implements the deterministic projection engine: a
// closed-form lower/mean growth envelope for corpus plus contributions,
// a piecewise confidence score, and bisection-based inverse solves.
package envelope

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/goalplanner/internal/modules/assets"
	"github.com/aristath/goalplanner/internal/modules/planning/domain"
	"github.com/aristath/goalplanner/pkg/formulas"
)

const (
	// DefaultConfidenceTarget is the funding threshold basic tiers must
	// reach before surplus flows to ambitious tiers.
	DefaultConfidenceTarget = 90

	// contributionTolerance is the bisection tolerance for contribution
	// solves, in rupees.
	contributionTolerance = 100.0

	// corpusTolerance is the bisection tolerance for corpus solves.
	corpusTolerance = 1000.0

	// maxBisectIterations caps every bisection loop.
	maxBisectIterations = 50
)

// Engine computes deterministic projection envelopes.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new envelope engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "envelope").Logger()}
}

// Bounds projects a corpus and monthly contribution over the horizon and
// returns the deterministic envelope.
//
// The mean path compounds at the class's stated average annual return,
// which is already net of negative years. The lower path replaces the
// average shortfall with the stated max drawdown in the negative-year
// mix, trusting the stated probability as the pessimistic scenario rather
// than inflating it.
func (e *Engine) Bounds(corpus, contribution float64, stats assets.ClassStats, horizonYears, stepUpPct float64) domain.Bounds {
	months := int(math.Round(horizonYears * 12))

	meanRate := formulas.MonthlyRate(stats.AvgReturnPct / 100)
	mean := formulas.CompoundCorpus(corpus, meanRate, months) +
		formulas.AnnuityFutureValue(contribution, meanRate, months, stepUpPct)

	p := math.Min(math.Max(stats.ProbNegativeYearPct/100, 0), 1)
	lowerAnnual := (p*stats.MaxDrawdownPct + (1-p)*assets.AvgPositiveReturn(stats)) / 100
	lowerRate := formulas.MonthlyRate(lowerAnnual)
	lower := formulas.CompoundCorpus(corpus, lowerRate, months) +
		formulas.AnnuityFutureValue(contribution, lowerRate, months, stepUpPct)

	if lower > mean {
		lower = mean
	}
	return domain.Bounds{Lower: lower, Mean: mean}
}

// BoundsForAllocation projects a multi-class position by first collapsing
// the allocation into percentage-weighted statistics (skipping cash) and
// reusing the single-class envelope.
func (e *Engine) BoundsForAllocation(corpus, contribution float64, allocation map[string]int, stats map[string]assets.ClassStats, horizonYears, stepUpPct float64) (domain.Bounds, error) {
	weighted, err := assets.WeightedStats(allocation, stats)
	if err != nil {
		return domain.Bounds{}, err
	}
	return e.Bounds(corpus, contribution, weighted, horizonYears, stepUpPct), nil
}

// Confidence maps a target against an envelope onto a 0-100 score:
// exactly 100 at the lower bound, falling linearly to 90 at the mean,
// then to 0 at 1.5x the mean. Monotone non-increasing in the target.
func (e *Engine) Confidence(target float64, b domain.Bounds) int {
	switch {
	case target <= b.Lower:
		return 100
	case b.Mean <= 0:
		// Degenerate envelope; anything above the lower bound is unfunded.
		return 0
	case target <= b.Mean:
		if b.Mean == b.Lower {
			return 90
		}
		frac := (target - b.Lower) / (b.Mean - b.Lower)
		return formulas.RoundPercent(100 - 10*frac)
	case target < 1.5*b.Mean:
		frac := (target - b.Mean) / (0.5 * b.Mean)
		return formulas.RoundPercent(90 * (1 - frac))
	default:
		return 0
	}
}

// RequiredContribution solves for the monthly contribution whose mean
// path exactly reaches the target. Closed form without step-up; bisection
// when the annual step-up bends the annuity.
func (e *Engine) RequiredContribution(target, corpus float64, stats assets.ClassStats, horizonYears, stepUpPct float64) float64 {
	months := int(math.Round(horizonYears * 12))
	if months <= 0 {
		return 0
	}

	meanRate := formulas.MonthlyRate(stats.AvgReturnPct / 100)
	shortfall := target - formulas.CompoundCorpus(corpus, meanRate, months)
	if shortfall <= 0 {
		return 0
	}

	if stepUpPct == 0 {
		return shortfall / formulas.AnnuityFactor(meanRate, months)
	}

	// Step-up has no closed form; bisect the contribution.
	reaches := func(c float64) bool {
		fv := formulas.CompoundCorpus(corpus, meanRate, months) +
			formulas.AnnuityFutureValue(c, meanRate, months, stepUpPct)
		return fv >= target
	}

	lo, hi := 0.0, math.Max(shortfall/float64(months), 1000)
	for i := 0; i < maxBisectIterations && !reaches(hi); i++ {
		hi *= 2
	}
	for i := 0; i < maxBisectIterations && hi-lo > contributionTolerance; i++ {
		mid := (lo + hi) / 2
		if reaches(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// MinimumContributionForConfidence bisects the monthly contribution until
// the envelope confidence for the target reaches confidenceTarget. The
// result is rounded up to the nearest ₹1,000 so the recommendation never
// undershoots.
func (e *Engine) MinimumContributionForConfidence(target, corpus float64, allocation map[string]int, stats map[string]assets.ClassStats, horizonYears, stepUpPct float64, confidenceTarget int) (float64, error) {
	weighted, err := assets.WeightedStats(allocation, stats)
	if err != nil {
		return 0, err
	}

	confidenceAt := func(c float64) int {
		return e.Confidence(target, e.Bounds(corpus, c, weighted, horizonYears, stepUpPct))
	}

	if confidenceAt(0) >= confidenceTarget {
		return 0, nil
	}

	hi := math.Max(e.RequiredContribution(target, corpus, weighted, horizonYears, stepUpPct), 1000)
	grew := false
	for i := 0; i < maxBisectIterations; i++ {
		if confidenceAt(hi) >= confidenceTarget {
			grew = true
			break
		}
		hi *= 2
	}
	if !grew {
		// No finite contribution reaches the threshold (degenerate stats);
		// return the last probe as best effort.
		e.log.Warn().
			Float64("target", target).
			Int("confidence_target", confidenceTarget).
			Msg("Contribution search did not reach confidence target")
		return formulas.RoundUpToThousand(hi), nil
	}

	lo := 0.0
	for i := 0; i < maxBisectIterations && hi-lo > contributionTolerance; i++ {
		mid := (lo + hi) / 2
		if confidenceAt(mid) >= confidenceTarget {
			hi = mid
		} else {
			lo = mid
		}
	}
	return formulas.RoundUpToThousand(hi), nil
}

// MinimumCorpusForConfidence bisects the starting corpus until the
// envelope confidence for the target reaches confidenceTarget.
func (e *Engine) MinimumCorpusForConfidence(target, contribution float64, allocation map[string]int, stats map[string]assets.ClassStats, horizonYears, stepUpPct float64, confidenceTarget int) (float64, error) {
	weighted, err := assets.WeightedStats(allocation, stats)
	if err != nil {
		return 0, err
	}

	confidenceAt := func(corpus float64) int {
		return e.Confidence(target, e.Bounds(corpus, contribution, weighted, horizonYears, stepUpPct))
	}

	if confidenceAt(0) >= confidenceTarget {
		return 0, nil
	}

	hi := math.Max(target, corpusTolerance)
	grew := false
	for i := 0; i < maxBisectIterations; i++ {
		if confidenceAt(hi) >= confidenceTarget {
			grew = true
			break
		}
		hi *= 2
	}
	if !grew {
		e.log.Warn().
			Float64("target", target).
			Int("confidence_target", confidenceTarget).
			Msg("Corpus search did not reach confidence target")
		return hi, nil
	}

	lo := 0.0
	for i := 0; i < maxBisectIterations && hi-lo > corpusTolerance; i++ {
		mid := (lo + hi) / 2
		if confidenceAt(mid) >= confidenceTarget {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// PresentValueOfTarget discounts a target back to today at the
// allocation's weighted mean return. Used to rank goals by corpus need,
// never for confidence.
func (e *Engine) PresentValueOfTarget(target float64, allocation map[string]int, stats map[string]assets.ClassStats, horizonYears float64) (float64, error) {
	if horizonYears <= 0 {
		return target, nil
	}
	weighted, err := assets.WeightedStats(allocation, stats)
	if err != nil {
		return 0, err
	}
	rate := weighted.AvgReturnPct / 100
	if rate <= -1 {
		return target, nil
	}
	return target / math.Pow(1+rate, horizonYears), nil
}
