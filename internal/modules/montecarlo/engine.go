// Package montecarlo implements the stochastic projection engine: per
// asset-class path simulation under a lognormal (primary) or
// negative-year-probability (validation) return model, simulated bounds
// and confidence, the inverse solves, and the multi-goal portfolio
// simulation.
package montecarlo

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/goalplanner/internal/modules/assets"
	"github.com/aristath/goalplanner/internal/modules/planning/domain"
	"github.com/aristath/goalplanner/pkg/formulas"
)

// ReturnModel selects how monthly returns are sampled.
type ReturnModel string

const (
	// ModelProbability draws Bernoulli negative months from the stated
	// negative-year probability. Legacy/validation path.
	ModelProbability ReturnModel = "probability"
	// ModelLognormal draws log(1+r) ~ N(log(1+mu/12), (sigma/sqrt(12))^2).
	// Primary model; requires volatility on every non-cash class.
	ModelLognormal ReturnModel = "lognormal"
)

const (
	// DefaultPaths is the path count for the primary planning pass.
	DefaultPaths = 1000
	// LitePaths is the reduced path count for validation passes and the
	// multi-goal portfolio simulation.
	LitePaths = 75

	// lowerBoundZ is the one-sided 90% z-score used for the simulated
	// lower bound: lower = mean - 1.65*std.
	lowerBoundZ = 1.65

	maxBisectIterations   = 50
	contributionTolerance = 100.0
	corpusSearchTolerance = 1000.0
)

// Engine runs Monte Carlo projections. The random source is injected at
// construction so tests can seed it and concurrent planning calls never
// share generator state.
type Engine struct {
	log zerolog.Logger
	rng *rand.Rand
}

// NewEngine creates an engine with its own seeded generator.
func NewEngine(log zerolog.Logger, seed uint64) *Engine {
	return &Engine{
		log: log.With().Str("component", "montecarlo").Logger(),
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// SimulationConfig describes one goal-level simulation.
type SimulationConfig struct {
	// Corpus by asset class at the start of the projection.
	Corpus map[string]float64
	// MonthlyContribution is split across classes by Allocation.
	MonthlyContribution float64
	Allocation          map[string]int
	Stats               map[string]assets.ClassStats
	HorizonYears        float64
	StepUpPct           float64
	Paths               int
	Model               ReturnModel
}

// classState is the per-class sampling setup shared by every path.
type classState struct {
	name         string
	startCorpus  float64
	contribution float64
	// lognormal parameters
	logMu    float64
	logSigma float64
	// probability-model parameters (monthly fractions)
	probNegMonthly  float64
	negMonthReturn  float64
	posMonthReturn  float64
	deterministic   bool
	monthlyConstant float64
}

// buildClassStates validates the config and precomputes per-class
// sampling parameters. Volatility is a hard requirement for the
// lognormal model on every non-cash class.
func (e *Engine) buildClassStates(cfg SimulationConfig) ([]classState, error) {
	names := map[string]bool{}
	for class, pct := range cfg.Allocation {
		if pct > 0 {
			names[class] = true
		}
	}
	for class, amount := range cfg.Corpus {
		if amount != 0 {
			names[class] = true
		}
	}

	ordered := make([]string, 0, len(names))
	for class := range names {
		ordered = append(ordered, class)
	}
	sort.Strings(ordered)

	states := make([]classState, 0, len(ordered))
	for _, class := range ordered {
		stats, ok := cfg.Stats[class]
		if !ok {
			return nil, &assets.MissingStatisticError{AssetClass: class, Statistic: "class_stats"}
		}

		cs := classState{
			name:         class,
			startCorpus:  cfg.Corpus[class],
			contribution: cfg.MonthlyContribution * float64(cfg.Allocation[class]) / 100.0,
		}

		muMonthly := stats.AvgReturnPct / 100.0 / 12.0

		if assets.IsCash(class) {
			// Cash compounds deterministically at its stated mean return.
			cs.deterministic = true
			cs.monthlyConstant = muMonthly
			states = append(states, cs)
			continue
		}

		switch cfg.Model {
		case ModelLognormal:
			if stats.VolatilityPct == nil {
				return nil, &assets.MissingStatisticError{AssetClass: class, Statistic: "volatility_pct"}
			}
			sigma := *stats.VolatilityPct / 100.0
			cs.logMu = math.Log(1 + muMonthly)
			cs.logSigma = sigma / math.Sqrt(12)
			if cs.logSigma == 0 {
				cs.deterministic = true
				cs.monthlyConstant = muMonthly
			}
		case ModelProbability:
			p := math.Min(math.Max(stats.ProbNegativeYearPct/100.0, 0), 1)
			cs.probNegMonthly = 1 - math.Pow(1-p, 1.0/12.0)
			cs.negMonthReturn = stats.ExpectedShortfallPct / 100.0 / 12.0
			cs.posMonthReturn = assets.AvgPositiveReturn(stats) / 100.0 / 12.0
			if p == 0 {
				cs.deterministic = true
				cs.monthlyConstant = cs.posMonthReturn
			}
		default:
			cs.deterministic = true
			cs.monthlyConstant = muMonthly
		}

		states = append(states, cs)
	}

	return states, nil
}

// sampleMonthlyReturn draws one month's return for a class.
func (e *Engine) sampleMonthlyReturn(cs *classState, model ReturnModel) float64 {
	if cs.deterministic {
		return cs.monthlyConstant
	}
	if model == ModelLognormal {
		draw := distuv.Normal{Mu: cs.logMu, Sigma: cs.logSigma, Src: e.rng}.Rand()
		return math.Exp(draw) - 1
	}
	if e.rng.Float64() < cs.probNegMonthly {
		return cs.negMonthReturn
	}
	return cs.posMonthReturn
}

// SimulateGoal runs the configured number of paths and returns the final
// corpus of each path. Corpus is tracked separately by asset class so
// every class compounds at its own sampled return; the contribution is
// split by allocation and added after growth each month, with the annual
// step-up applied at 12-month boundaries.
func (e *Engine) SimulateGoal(cfg SimulationConfig) ([]float64, error) {
	states, err := e.buildClassStates(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Paths <= 0 {
		cfg.Paths = DefaultPaths
	}
	months := int(math.Round(cfg.HorizonYears * 12))

	finals := make([]float64, cfg.Paths)
	corpus := make([]float64, len(states))
	contributions := make([]float64, len(states))

	for path := 0; path < cfg.Paths; path++ {
		for i, cs := range states {
			corpus[i] = cs.startCorpus
			contributions[i] = cs.contribution
		}

		for m := 0; m < months; m++ {
			if m > 0 && m%12 == 0 && cfg.StepUpPct > 0 {
				for i := range contributions {
					contributions[i] *= 1 + cfg.StepUpPct/100.0
				}
			}
			for i := range states {
				r := e.sampleMonthlyReturn(&states[i], cfg.Model)
				corpus[i] = corpus[i]*(1+r) + contributions[i]
			}
		}

		total := 0.0
		for _, amount := range corpus {
			total += amount
		}
		finals[path] = total
	}

	return finals, nil
}

// Bounds collapses path finals into a projection envelope: the mean of
// the final corpus and a one-sided 90% normal lower bound
// (mean - 1.65*std). This is a z-score bound, not a percentile.
func (e *Engine) Bounds(finals []float64) domain.Bounds {
	mean, std := formulas.MeanStd(finals)
	return domain.Bounds{Lower: mean - lowerBoundZ*std, Mean: mean}
}

// Confidence is the integer percent of paths whose final corpus meets the
// target.
func (e *Engine) Confidence(finals []float64, target float64) int {
	if len(finals) == 0 {
		return 0
	}
	met := 0
	for _, v := range finals {
		if v >= target {
			met++
		}
	}
	return formulas.RoundPercent(float64(met) / float64(len(finals)) * 100)
}
