package planner

import (
	"github.com/aristath/goalplanner/internal/modules/assets"
	"github.com/aristath/goalplanner/internal/modules/envelope"
	"github.com/aristath/goalplanner/internal/modules/montecarlo"
	"github.com/aristath/goalplanner/internal/modules/planning/domain"
)

// sizer abstracts how a tier's funding requirement and outcome are
// computed: deterministically (method 1) or by simulation (methods 2/3).
// Corpus is a total; every sizer spreads it by the tier's allocation.
type sizer interface {
	// MinimumContribution solves for the monthly contribution reaching
	// the default confidence target.
	MinimumContribution(target, corpus float64, allocation map[string]int, horizonYears, stepUpPct float64) (float64, error)
	// MinimumCorpus solves for the starting corpus reaching the default
	// confidence target.
	MinimumCorpus(target, contribution float64, allocation map[string]int, horizonYears, stepUpPct float64) (float64, error)
	// Evaluate returns the projection bounds and the confidence for the
	// target under the given funding.
	Evaluate(target, corpus, contribution float64, allocation map[string]int, horizonYears, stepUpPct float64) (domain.Bounds, int, error)
}

// envelopeSizer sizes tiers with the deterministic envelope engine.
type envelopeSizer struct {
	engine *envelope.Engine
	grid   assets.StatsGrid
}

func (s *envelopeSizer) statsFor(horizonYears float64) map[string]assets.ClassStats {
	return s.grid.For(assets.BucketForHorizon(horizonYears))
}

func (s *envelopeSizer) MinimumContribution(target, corpus float64, allocation map[string]int, horizonYears, stepUpPct float64) (float64, error) {
	return s.engine.MinimumContributionForConfidence(
		target, corpus, allocation, s.statsFor(horizonYears), horizonYears, stepUpPct, envelope.DefaultConfidenceTarget)
}

func (s *envelopeSizer) MinimumCorpus(target, contribution float64, allocation map[string]int, horizonYears, stepUpPct float64) (float64, error) {
	return s.engine.MinimumCorpusForConfidence(
		target, contribution, allocation, s.statsFor(horizonYears), horizonYears, stepUpPct, envelope.DefaultConfidenceTarget)
}

func (s *envelopeSizer) Evaluate(target, corpus, contribution float64, allocation map[string]int, horizonYears, stepUpPct float64) (domain.Bounds, int, error) {
	bounds, err := s.engine.BoundsForAllocation(corpus, contribution, allocation, s.statsFor(horizonYears), horizonYears, stepUpPct)
	if err != nil {
		return domain.Bounds{}, 0, err
	}
	return bounds, s.engine.Confidence(target, bounds), nil
}

// monteCarloSizer sizes tiers with the lognormal simulation engine.
type monteCarloSizer struct {
	engine *montecarlo.Engine
	grid   assets.StatsGrid
	paths  int
}

func (s *monteCarloSizer) config(corpus, contribution float64, allocation map[string]int, horizonYears, stepUpPct float64) montecarlo.SimulationConfig {
	return montecarlo.SimulationConfig{
		Corpus:              splitCorpus(corpus, allocation),
		MonthlyContribution: contribution,
		Allocation:          allocation,
		Stats:               s.grid.For(assets.BucketForHorizon(horizonYears)),
		HorizonYears:        horizonYears,
		StepUpPct:           stepUpPct,
		Paths:               s.paths,
		Model:               montecarlo.ModelLognormal,
	}
}

func (s *monteCarloSizer) MinimumContribution(target, corpus float64, allocation map[string]int, horizonYears, stepUpPct float64) (float64, error) {
	return s.engine.MinimumContributionForConfidence(
		target, s.config(corpus, 0, allocation, horizonYears, stepUpPct), envelope.DefaultConfidenceTarget)
}

func (s *monteCarloSizer) MinimumCorpus(target, contribution float64, allocation map[string]int, horizonYears, stepUpPct float64) (float64, error) {
	return s.engine.MinimumCorpusForConfidence(
		target, s.config(0, contribution, allocation, horizonYears, stepUpPct), envelope.DefaultConfidenceTarget)
}

func (s *monteCarloSizer) Evaluate(target, corpus, contribution float64, allocation map[string]int, horizonYears, stepUpPct float64) (domain.Bounds, int, error) {
	finals, err := s.engine.SimulateGoal(s.config(corpus, contribution, allocation, horizonYears, stepUpPct))
	if err != nil {
		return domain.Bounds{}, 0, err
	}
	bounds := s.engine.Bounds(finals)
	return bounds, s.engine.Confidence(finals, target), nil
}

// splitCorpus spreads a lump sum across classes by integer percentages.
func splitCorpus(total float64, allocation map[string]int) map[string]float64 {
	out := make(map[string]float64, len(allocation))
	if total <= 0 {
		return out
	}
	for class, pct := range allocation {
		if pct > 0 {
			out[class] = total * float64(pct) / 100.0
		}
	}
	return out
}
