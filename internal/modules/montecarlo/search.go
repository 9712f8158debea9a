package montecarlo

import (
	"math"

	"github.com/aristath/goalplanner/internal/modules/planning/domain"
	"github.com/aristath/goalplanner/pkg/formulas"
)

// RequiredContribution bisects the monthly contribution until the mean of
// the simulated final corpus reaches the target. Every probe re-runs the
// full simulation; this is the dominant cost of the stochastic planning
// methods.
func (e *Engine) RequiredContribution(target float64, cfg SimulationConfig) (float64, error) {
	meanAt := func(contribution float64) (float64, error) {
		probe := cfg
		probe.MonthlyContribution = contribution
		finals, err := e.SimulateGoal(probe)
		if err != nil {
			return 0, err
		}
		mean, _ := formulas.MeanStd(finals)
		return mean, nil
	}

	base, err := meanAt(0)
	if err != nil {
		return 0, err
	}
	if base >= target {
		return 0, nil
	}

	months := int(math.Round(cfg.HorizonYears * 12))
	if months <= 0 {
		return 0, nil
	}

	lo, hi := 0.0, math.Max((target-base)/float64(months), 1000)
	for i := 0; i < maxBisectIterations; i++ {
		mean, err := meanAt(hi)
		if err != nil {
			return 0, err
		}
		if mean >= target {
			break
		}
		hi *= 2
	}

	for i := 0; i < maxBisectIterations && hi-lo > contributionTolerance; i++ {
		mid := (lo + hi) / 2
		mean, err := meanAt(mid)
		if err != nil {
			return 0, err
		}
		if mean >= target {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// MinimumContributionForConfidence bisects the monthly contribution until
// the simulated confidence for the target reaches confidenceTarget. The
// result is rounded up to the nearest ₹1,000.
func (e *Engine) MinimumContributionForConfidence(target float64, cfg SimulationConfig, confidenceTarget int) (float64, error) {
	confidenceAt := func(contribution float64) (int, error) {
		probe := cfg
		probe.MonthlyContribution = contribution
		finals, err := e.SimulateGoal(probe)
		if err != nil {
			return 0, err
		}
		return e.Confidence(finals, target), nil
	}

	conf, err := confidenceAt(0)
	if err != nil {
		return 0, err
	}
	if conf >= confidenceTarget {
		return 0, nil
	}

	required, err := e.RequiredContribution(target, cfg)
	if err != nil {
		return 0, err
	}
	hi := math.Max(required, 1000)
	reached := false
	for i := 0; i < maxBisectIterations; i++ {
		conf, err = confidenceAt(hi)
		if err != nil {
			return 0, err
		}
		if conf >= confidenceTarget {
			reached = true
			break
		}
		hi *= 2
	}
	if !reached {
		e.log.Warn().
			Float64("target", target).
			Int("confidence_target", confidenceTarget).
			Msg("Simulated contribution search did not reach confidence target")
		return formulas.RoundUpToThousand(hi), nil
	}

	lo := 0.0
	for i := 0; i < maxBisectIterations && hi-lo > contributionTolerance; i++ {
		mid := (lo + hi) / 2
		conf, err = confidenceAt(mid)
		if err != nil {
			return 0, err
		}
		if conf >= confidenceTarget {
			hi = mid
		} else {
			lo = mid
		}
	}
	return formulas.RoundUpToThousand(hi), nil
}

// MinimumCorpusForConfidence bisects the starting corpus (spread across
// classes by the allocation percentages) until the simulated confidence
// reaches confidenceTarget.
func (e *Engine) MinimumCorpusForConfidence(target float64, cfg SimulationConfig, confidenceTarget int) (float64, error) {
	confidenceAt := func(corpus float64) (int, error) {
		probe := cfg
		probe.Corpus = splitByAllocation(corpus, cfg.Allocation)
		finals, err := e.SimulateGoal(probe)
		if err != nil {
			return 0, err
		}
		return e.Confidence(finals, target), nil
	}

	conf, err := confidenceAt(0)
	if err != nil {
		return 0, err
	}
	if conf >= confidenceTarget {
		return 0, nil
	}

	hi := math.Max(target, corpusSearchTolerance)
	reached := false
	for i := 0; i < maxBisectIterations; i++ {
		conf, err = confidenceAt(hi)
		if err != nil {
			return 0, err
		}
		if conf >= confidenceTarget {
			reached = true
			break
		}
		hi *= 2
	}
	if !reached {
		e.log.Warn().
			Float64("target", target).
			Int("confidence_target", confidenceTarget).
			Msg("Simulated corpus search did not reach confidence target")
		return hi, nil
	}

	lo := 0.0
	for i := 0; i < maxBisectIterations && hi-lo > corpusSearchTolerance; i++ {
		mid := (lo + hi) / 2
		conf, err = confidenceAt(mid)
		if err != nil {
			return 0, err
		}
		if conf >= confidenceTarget {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// ValidateEnvelope runs a reduced lognormal simulation and checks that
// the stochastic outcomes are consistent with a deterministic envelope:
// containment is the percent of paths finishing at or above the envelope
// lower bound, the simulated z-score lower bound should land within 15%
// of the envelope's, and the simulated mean within 10% of the envelope
// mean.
func (e *Engine) ValidateEnvelope(cfg SimulationConfig, bounds domain.Bounds) (domain.EnvelopeValidation, error) {
	cfg.Model = ModelLognormal
	if cfg.Paths <= 0 {
		cfg.Paths = LitePaths
	}

	finals, err := e.SimulateGoal(cfg)
	if err != nil {
		return domain.EnvelopeValidation{}, err
	}

	containment := e.Confidence(finals, bounds.Lower)
	simulated := e.Bounds(finals)

	validation := domain.EnvelopeValidation{
		ContainmentPercent: containment,
		LowerTailAligned:   withinRelative(simulated.Lower, bounds.Lower, 0.15),
		MeanAligned:        withinRelative(simulated.Mean, bounds.Mean, 0.10),
	}
	validation.IsValid = validation.ContainmentPercent >= 85 && validation.MeanAligned

	e.log.Debug().
		Int("containment_pct", validation.ContainmentPercent).
		Bool("lower_tail_aligned", validation.LowerTailAligned).
		Bool("mean_aligned", validation.MeanAligned).
		Msg("Validated envelope against simulation")

	return validation, nil
}

func withinRelative(actual, reference, tolerance float64) bool {
	if reference == 0 {
		return math.Abs(actual) <= tolerance
	}
	return math.Abs(actual-reference) <= tolerance*math.Abs(reference)
}

// splitByAllocation spreads a lump sum across classes by integer
// percentages.
func splitByAllocation(total float64, allocation map[string]int) map[string]float64 {
	out := make(map[string]float64, len(allocation))
	for class, pct := range allocation {
		if pct > 0 {
			out[class] = total * float64(pct) / 100.0
		}
	}
	return out
}
