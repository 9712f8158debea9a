// Package planner orchestrates goal planning: it combines the
// allocation, envelope, Monte Carlo and rebalancing engines into the
// three planning methods and produces the feasibility table and the
// contribution plan.
package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/goalplanner/internal/modules/allocation"
	"github.com/aristath/goalplanner/internal/modules/assets"
	"github.com/aristath/goalplanner/internal/modules/envelope"
	"github.com/aristath/goalplanner/internal/modules/montecarlo"
	"github.com/aristath/goalplanner/internal/modules/planning/domain"
	"github.com/aristath/goalplanner/internal/modules/rebalancing"
)

// Planning methods. They differ in how the corpus is allocated and in
// the projection engine used to size contributions.
const (
	// MethodCurrentHoldings keeps the customer's existing asset mix and
	// a fixed corpus split, sized with the deterministic envelope.
	MethodCurrentHoldings = "current_holdings"
	// MethodOptimalRebalance seeds the corpus split by discounted
	// target need, rebalances each goal's slice into the optimal asset
	// mix and sizes with Monte Carlo simulation.
	MethodOptimalRebalance = "optimal_rebalance"
	// MethodOptimalFresh starts the corpus split empty and follows the
	// contribution grants with the corpus each iteration, so the split
	// is discovered from contribution needs alone.
	MethodOptimalFresh = "optimal_fresh"
)

const (
	// DefaultMaxIterations bounds the contribution convergence loop.
	DefaultMaxIterations = 20
	// contributionConvergenceTolerance is the largest per-goal monthly
	// contribution change still considered converged.
	contributionConvergenceTolerance = 1000.0
	// statusToleranceFraction and statusToleranceCap define how far the
	// lower bound may fall below the target before a confident tier is
	// downgraded from can_be_met.
	statusToleranceFraction = 0.10
	statusToleranceCap      = 500_000.0
	// atRiskConfidencePct separates at_risk from cannot_be_met.
	atRiskConfidencePct = 50
)

// Planner runs full planning passes. Safe for concurrent use; every
// call builds its own working state.
type Planner struct {
	alloc      *allocation.Service
	envelope   *envelope.Engine
	rebalancer *rebalancing.Service
	log        zerolog.Logger
}

// New wires a planner from its engines.
func New(alloc *allocation.Service, env *envelope.Engine, rebalancer *rebalancing.Service, log zerolog.Logger) *Planner {
	return &Planner{
		alloc:      alloc,
		envelope:   env,
		rebalancer: rebalancer,
		log:        log.With().Str("component", "planner").Logger(),
	}
}

// Request carries the inputs of one planning call.
type Request struct {
	Goals        []domain.Goal
	Holdings     domain.Holdings
	Stats        assets.StatsGrid
	Contribution domain.ContributionInput

	// MaxIterations caps the convergence loop; 0 means DefaultMaxIterations.
	MaxIterations int
	// MonteCarloPaths is the path count for methods 2 and 3; 0 means the
	// engine default.
	MonteCarloPaths int
	// Seed makes simulation-backed plans reproducible.
	Seed uint64
}

func (r Request) validate() error {
	if len(r.Goals) == 0 {
		return fmt.Errorf("at least one goal is required")
	}
	seen := make(map[string]bool, len(r.Goals))
	for _, g := range r.Goals {
		if err := g.Validate(); err != nil {
			return err
		}
		if seen[g.ID] {
			return fmt.Errorf("duplicate goal id %s", g.ID)
		}
		seen[g.ID] = true
	}
	if err := r.Contribution.Validate(); err != nil {
		return err
	}
	if err := r.Stats.Validate(); err != nil {
		return err
	}
	return nil
}

// goalPlan is the planner's per-goal working record.
type goalPlan struct {
	goal  domain.Goal
	short bool

	basicAlloc map[string]int
	ambAlloc   map[string]int

	basic     *domain.GoalTierState
	ambitious *domain.GoalTierState
}

// PlanCurrentHoldings plans against the customer's existing asset mix
// with deterministic envelope sizing.
func (p *Planner) PlanCurrentHoldings(req Request) (*domain.PlanningResult, error) {
	return p.Plan(req, MethodCurrentHoldings)
}

// PlanOptimalRebalance plans with an optimal allocation and iterative
// corpus rebalancing, sized by simulation.
func (p *Planner) PlanOptimalRebalance(req Request) (*domain.PlanningResult, error) {
	return p.Plan(req, MethodOptimalRebalance)
}

// PlanOptimalFresh plans like PlanOptimalRebalance but discovers the
// corpus split from a zero start.
func (p *Planner) PlanOptimalFresh(req Request) (*domain.PlanningResult, error) {
	return p.Plan(req, MethodOptimalFresh)
}

// Plan runs a full planning pass with the given method.
func (p *Planner) Plan(req Request, method string) (*domain.PlanningResult, error) {
	switch method {
	case MethodCurrentHoldings, MethodOptimalRebalance, MethodOptimalFresh:
	default:
		return nil, fmt.Errorf("unknown planning method %q", method)
	}
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid planning request: %w", err)
	}

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	var mc *montecarlo.Engine
	var size sizer
	if method == MethodCurrentHoldings {
		size = &envelopeSizer{engine: p.envelope, grid: req.Stats}
	} else {
		mc = montecarlo.NewEngine(p.log, req.Seed)
		size = &monteCarloSizer{engine: mc, grid: req.Stats, paths: req.MonteCarloPaths}
	}

	plans, err := p.buildGoalPlans(req, method)
	if err != nil {
		return nil, err
	}

	shortPlans, longPlans := splitByHorizon(plans)

	remainingCorpus, err := p.fundShortGoals(shortPlans, req.Holdings, size)
	if err != nil {
		return nil, fmt.Errorf("failed to fund short-horizon goals: %w", err)
	}

	iterations, converged, err := p.convergeContributions(longPlans, remainingCorpus, req, method, size, maxIterations)
	if err != nil {
		return nil, fmt.Errorf("failed to converge contributions: %w", err)
	}

	stepUp := req.Contribution.AnnualStepUpPercent
	for _, gp := range plans {
		bounds, confidence, err := size.Evaluate(
			gp.basic.Target, gp.basic.CorpusTotal(), gp.basic.Contribution,
			gp.basic.Allocation, gp.goal.HorizonYears, stepUp)
		if err != nil {
			return nil, fmt.Errorf("failed to project goal %s: %w", gp.goal.ID, err)
		}
		gp.basic.Bounds = bounds
		gp.basic.Confidence = confidence
	}

	if err := p.grantAmbitious(longPlans, req, size); err != nil {
		return nil, fmt.Errorf("failed to allocate ambitious surplus: %w", err)
	}
	for _, gp := range plans {
		if gp.ambitious == nil {
			continue
		}
		bounds, confidence, err := size.Evaluate(
			gp.ambitious.Target, gp.basic.CorpusTotal(), gp.basic.Contribution+gp.ambitious.Contribution,
			gp.ambitious.Allocation, gp.goal.HorizonYears, stepUp)
		if err != nil {
			return nil, fmt.Errorf("failed to project goal %s ambitious tier: %w", gp.goal.ID, err)
		}
		gp.ambitious.Bounds = bounds
		gp.ambitious.Confidence = confidence
	}

	result, err := p.buildResult(req, method, plans, mc)
	if err != nil {
		return nil, err
	}
	result.Converged = converged
	result.Iterations = iterations

	p.log.Info().
		Str("method", method).
		Int("goals", len(plans)).
		Int("iterations", iterations).
		Bool("converged", converged).
		Msg("planning pass complete")
	return result, nil
}

// buildGoalPlans resolves each goal's asset allocation and seeds empty
// tier states.
func (p *Planner) buildGoalPlans(req Request, method string) ([]*goalPlan, error) {
	plans := make([]*goalPlan, 0, len(req.Goals))
	for _, g := range req.Goals {
		stats := req.Stats.For(assets.BucketForHorizon(g.HorizonYears))

		var base map[string]int
		if method == MethodCurrentHoldings {
			base = req.Holdings.MixPercents()
		}
		if base == nil {
			optimal, err := p.alloc.OptimalAllocation(p.allowedClasses(req, stats), stats)
			if err != nil {
				return nil, fmt.Errorf("failed to allocate goal %s: %w", g.ID, err)
			}
			base = optimal
		}

		gp := &goalPlan{
			goal:       g,
			short:      g.HorizonYears < assets.ShortHorizonYears,
			basicAlloc: p.alloc.ApplyGlidePath(base, 0, g.HorizonMonths()),
			ambAlloc:   base,
		}
		basicTier := g.Tier(domain.TierBasic)
		gp.basic = &domain.GoalTierState{
			GoalID:       g.ID,
			Tier:         domain.TierBasic,
			Priority:     basicTier.Priority,
			Target:       basicTier.TargetAmount,
			HorizonYears: g.HorizonYears,
			Allocation:   gp.basicAlloc,
		}
		if ambitiousTier := g.Tier(domain.TierAmbitious); ambitiousTier.TargetAmount > 0 {
			gp.ambitious = &domain.GoalTierState{
				GoalID:       g.ID,
				Tier:         domain.TierAmbitious,
				Priority:     ambitiousTier.Priority,
				Target:       ambitiousTier.TargetAmount,
				HorizonYears: g.HorizonYears,
				Allocation:   gp.ambAlloc,
			}
		}
		plans = append(plans, gp)
	}
	return plans, nil
}

func (p *Planner) allowedClasses(req Request, stats map[string]assets.ClassStats) []string {
	if len(req.Holdings.AllowedClasses) > 0 {
		return req.Holdings.AllowedClasses
	}
	classes := make([]string, 0, len(stats))
	for class := range stats {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

func splitByHorizon(plans []*goalPlan) (short, long []*goalPlan) {
	for _, gp := range plans {
		if gp.short {
			short = append(short, gp)
		} else {
			long = append(long, gp)
		}
	}
	return short, long
}

// byBasicPriority orders plans by basic tier priority, goal id as the
// tie-break so the order is deterministic.
func byBasicPriority(plans []*goalPlan) []*goalPlan {
	ordered := make([]*goalPlan, len(plans))
	copy(ordered, plans)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].basic.Priority != ordered[j].basic.Priority {
			return ordered[i].basic.Priority < ordered[j].basic.Priority
		}
		return ordered[i].goal.ID < ordered[j].goal.ID
	})
	return ordered
}

// fundShortGoals reserves corpus for goals due inside the short horizon.
// They never receive monthly contributions; the target must be covered
// by existing corpus or the gap is simply reported. Returns the corpus
// left for longer goals.
func (p *Planner) fundShortGoals(shortPlans []*goalPlan, holdings domain.Holdings, size sizer) (float64, error) {
	totalCorpus := holdings.Total()
	if len(shortPlans) == 0 {
		return totalCorpus, nil
	}

	ordered := byBasicPriority(shortPlans)
	requirements := make([]rebalancing.GoalRequirement, 0, len(ordered))
	for _, gp := range ordered {
		required, err := size.MinimumCorpus(gp.basic.Target, 0, gp.basicAlloc, gp.goal.HorizonYears, 0)
		if err != nil {
			return 0, fmt.Errorf("failed to size corpus for goal %s: %w", gp.goal.ID, err)
		}
		requirements = append(requirements, rebalancing.GoalRequirement{GoalID: gp.goal.ID, Required: required})
	}

	grants := p.rebalancer.AcrossGoals(totalCorpus, requirements)
	remaining := totalCorpus
	for _, gp := range ordered {
		grant := grants[gp.goal.ID]
		gp.basic.Corpus = p.corpusSleeves(holdings, grant, gp.basicAlloc)
		gp.basic.Contribution = 0
		remaining -= grant
	}
	return remaining, nil
}

// corpusSleeves carves the given amount out of the customer's holdings
// proportionally, then rebalances the carved slice into the target
// allocation. The slice total is preserved exactly.
func (p *Planner) corpusSleeves(holdings domain.Holdings, amount float64, target map[string]int) map[string]float64 {
	total := holdings.Total()
	if amount <= 0 || total <= 0 {
		return map[string]float64{}
	}
	fraction := amount / total
	slice := make(map[string]float64, len(holdings.ByClass))
	for class, held := range holdings.ByClass {
		slice[class] = held * fraction
	}
	return p.rebalancer.ToAllocation(slice, target)
}

/// contributionState is the convergence loop's value: per-goal monthly
// contribution and corpus totals for long-horizon goals.
type contributionState struct {
	contribution map[string]float64
	corpus       map[string]float64
}

func (s contributionState) clone() contributionState {
	out := contributionState{
		contribution: make(map[string]float64, len(s.contribution)),
		corpus:       make(map[string]float64, len(s.corpus)),
	}
	for id, v := range s.contribution {
		out.contribution[id] = v
	}
	for id, v := range s.corpus {
		out.corpus[id] = v
	}
	return out
}

// convergeContributions is the core loop: size each long-horizon basic
// tier's minimum contribution against its current corpus and grant in
// priority order from the available budget. The zero-start method also
// follows the grants with the corpus itself each iteration; the loop
// repeats until the grants settle.
func (p *Planner) convergeContributions(longPlans []*goalPlan, availableCorpus float64, req Request, method string, size sizer, maxIterations int) (int, bool, error) {
	if len(longPlans) == 0 {
		return 0, true, nil
	}

	ordered := byBasicPriority(longPlans)
	available := req.Contribution.Available()
	stepUp := req.Contribution.AnnualStepUpPercent

	sizeRound := func(corpus map[string]float64) (map[string]float64, error) {
		grants := make(map[string]float64, len(ordered))
		remaining := available
		for _, gp := range ordered {
			required, err := size.MinimumContribution(
				gp.basic.Target, corpus[gp.goal.ID], gp.basicAlloc, gp.goal.HorizonYears, stepUp)
			if err != nil {
				return nil, fmt.Errorf("failed to size contribution for goal %s: %w", gp.goal.ID, err)
			}
			grant := math.Min(required, remaining)
			if grant < 0 {
				grant = 0
			}
			grants[gp.goal.ID] = grant
			remaining -= grant
		}
		return grants, nil
	}

	initial := contributionState{
		contribution: make(map[string]float64, len(ordered)),
		corpus:       make(map[string]float64, len(ordered)),
	}
	if method != MethodOptimalFresh {
		split, err := p.corpusByPresentValue(ordered, req.Stats, availableCorpus)
		if err != nil {
			return 0, false, err
		}
		initial.corpus = split
	}

	step := func(s contributionState) (contributionState, error) {
		next := s.clone()
		grants, err := sizeRound(s.corpus)
		if err != nil {
			return s, err
		}
		next.contribution = grants

		if method == MethodOptimalFresh {
			totalGrant := 0.0
			for _, v := range grants {
				totalGrant += v
			}
			if totalGrant > 0 {
				for _, gp := range ordered {
					next.corpus[gp.goal.ID] = availableCorpus * grants[gp.goal.ID] / totalGrant
				}
			}
		}
		return next, nil
	}

	distance := func(prev, next contributionState) float64 {
		worst := 0.0
		for id, v := range next.contribution {
			worst = math.Max(worst, math.Abs(v-prev.contribution[id]))
		}
		return worst
	}

	final, iterations, converged, err := Converge(initial, step, distance, contributionConvergenceTolerance, maxIterations)
	if err != nil {
		return iterations, false, err
	}

	// The last step may have moved the corpus after the contributions
	// were sized, so settle them against the corpus split actually kept.
	settled, err := sizeRound(final.corpus)
	if err != nil {
		return iterations, false, err
	}

	for _, gp := range ordered {
		gp.basic.Contribution = settled[gp.goal.ID]
		gp.basic.Corpus = p.corpusSleeves(req.Holdings, final.corpus[gp.goal.ID], gp.basicAlloc)
	}
	return iterations, converged, nil
}

// corpusByPresentValue seeds the corpus split: each goal asks for the
// present value of its basic target and the corpus is granted in
// priority order.
func (p *Planner) corpusByPresentValue(ordered []*goalPlan, grid assets.StatsGrid, availableCorpus float64) (map[string]float64, error) {
	requirements := make([]rebalancing.GoalRequirement, 0, len(ordered))
	for _, gp := range ordered {
		stats := grid.For(assets.BucketForHorizon(gp.goal.HorizonYears))
		pv, err := p.envelope.PresentValueOfTarget(gp.basic.Target, gp.basicAlloc, stats, gp.goal.HorizonYears)
		if err != nil {
			return nil, fmt.Errorf("failed to discount goal %s target: %w", gp.goal.ID, err)
		}
		requirements = append(requirements, rebalancing.GoalRequirement{GoalID: gp.goal.ID, Required: pv})
	}
	return p.rebalancer.AcrossGoals(availableCorpus, requirements), nil
}

// grantAmbitious splits whatever contribution budget the basic tiers
// left over across ambitious tiers, weighted by inverse priority, but
// only for goals whose basic tier already projects at the confidence
// target. Each grant is capped at the tier's incremental need.
func (p *Planner) grantAmbitious(longPlans []*goalPlan, req Request, size sizer) error {
	basicTotal := 0.0
	for _, gp := range longPlans {
		basicTotal += gp.basic.Contribution
	}
	surplus := req.Contribution.Available() - basicTotal
	if surplus <= 0 {
		return nil
	}

	eligible := make([]*goalPlan, 0, len(longPlans))
	totalWeight := 0.0
	for _, gp := range longPlans {
		if gp.ambitious == nil || gp.basic.Confidence < envelope.DefaultConfidenceTarget {
			continue
		}
		eligible = append(eligible, gp)
		totalWeight += 1.0 / float64(gp.ambitious.Priority)
	}
	if len(eligible) == 0 || totalWeight <= 0 {
		return nil
	}

	stepUp := req.Contribution.AnnualStepUpPercent
	for _, gp := range eligible {
		share := surplus * (1.0 / float64(gp.ambitious.Priority)) / totalWeight

		required, err := size.MinimumContribution(
			gp.ambitious.Target, gp.basic.CorpusTotal(), gp.ambAlloc, gp.goal.HorizonYears, stepUp)
		if err != nil {
			return fmt.Errorf("failed to size goal %s ambitious tier: %w", gp.goal.ID, err)
		}
		additional := math.Max(0, required-gp.basic.Contribution)
		gp.ambitious.Contribution = math.Min(share, additional)
	}
	return nil
}
