package planner

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/aristath/goalplanner/internal/modules/assets"
	"github.com/aristath/goalplanner/internal/modules/envelope"
	"github.com/aristath/goalplanner/internal/modules/montecarlo"
	"github.com/aristath/goalplanner/internal/modules/planning/domain"
	"github.com/aristath/goalplanner/pkg/formulas"
)

// tierStatus maps a tier's projection to its feasibility verdict. A
// confident tier is still only at_risk when its lower bound trails the
// target by more than the tolerance band.
func tierStatus(target float64, bounds domain.Bounds, confidence int) domain.TierStatus {
	tolerance := math.Min(statusToleranceFraction*target, statusToleranceCap)
	switch {
	case confidence >= envelope.DefaultConfidenceTarget && bounds.Lower >= target-tolerance:
		return domain.StatusCanBeMet
	case confidence >= atRiskConfidencePct:
		return domain.StatusAtRisk
	default:
		return domain.StatusCannotBeMet
	}
}

func roundBounds(b domain.Bounds) domain.Bounds {
	return domain.Bounds{
		Lower: formulas.RoundToThousand(b.Lower),
		Mean:  formulas.RoundToThousand(b.Mean),
	}
}

// buildResult turns the solved tier states into the rounded, presentable
// plan. Corpus and contribution figures are rounded down so their sums
// never exceed what the customer actually has.
func (p *Planner) buildResult(req Request, method string, plans []*goalPlan, mc *montecarlo.Engine) (*domain.PlanningResult, error) {
	portfolio, err := p.portfolioBounds(req, method, plans, mc)
	if err != nil {
		return nil, fmt.Errorf("failed to project portfolio bounds: %w", err)
	}

	result := &domain.PlanningResult{
		PlanID:           uuid.NewString(),
		Method:           method,
		CorpusAllocation: make(map[string]map[string]float64),
	}

	totalMonthly := 0.0
	maxHorizonYears := 0.0
	for _, gp := range plans {
		maxHorizonYears = math.Max(maxHorizonYears, gp.goal.HorizonYears)

		tiers := []*domain.GoalTierState{gp.basic}
		if gp.ambitious != nil {
			tiers = append(tiers, gp.ambitious)
		}
		for _, tier := range tiers {
			result.FeasibilityTable = append(result.FeasibilityTable, domain.FeasibilityRow{
				GoalID:          tier.GoalID,
				Tier:            tier.Tier,
				Status:          tierStatus(tier.Target, tier.Bounds, tier.Confidence),
				ConfidencePct:   tier.Confidence,
				TargetAmount:    tier.Target,
				GoalBounds:      roundBounds(tier.Bounds),
				PortfolioBounds: roundBounds(portfolio[tier.GoalID]),
			})

			totalMonthly += tier.Contribution
			monthly := formulas.FloorToThousand(tier.Contribution)
			if monthly <= 0 {
				continue
			}
			line := domain.ContributionLine{
				GoalID:         tier.GoalID,
				Tier:           tier.Tier,
				MonthlyAmount:  monthly,
				AllocationPcts: make(map[string]int, len(tier.Allocation)),
				ByClass:        splitCorpus(monthly, tier.Allocation),
			}
			for class, pct := range tier.Allocation {
				line.AllocationPcts[class] = pct
			}
			result.ContributionPlan = append(result.ContributionPlan, line)
		}

		byClass := make(map[string]float64, len(gp.basic.Corpus))
		for class, amount := range gp.basic.Corpus {
			if rounded := formulas.FloorToThousand(amount); rounded > 0 {
				byClass[class] = rounded
			}
		}
		if len(byClass) > 0 {
			result.CorpusAllocation[gp.goal.ID] = byClass
		}
	}

	base := formulas.FloorToThousand(totalMonthly)
	stepUp := req.Contribution.AnnualStepUpPercent
	for year := 1; year <= int(math.Ceil(maxHorizonYears)); year++ {
		amount := base * math.Pow(1+stepUp/100.0, float64(year-1))
		result.ContributionSchedule = append(result.ContributionSchedule, domain.YearlyContribution{
			Year:          year,
			MonthlyAmount: formulas.FloorToThousand(amount),
		})
	}

	return result, nil
}

// portfolioBounds projects the whole household portfolio to each goal's
// due date, so a goal's row shows both its own trajectory and the
// context it lives in. The deterministic method aggregates into a single
// envelope; the simulation methods run the shared multi-goal portfolio
// with sequential withdrawals.
func (p *Planner) portfolioBounds(req Request, method string, plans []*goalPlan, mc *montecarlo.Engine) (map[string]domain.Bounds, error) {
	out := make(map[string]domain.Bounds, len(plans))
	stepUp := req.Contribution.AnnualStepUpPercent

	if method == MethodCurrentHoldings {
		aggregate := make(map[string]float64)
		totalContribution := 0.0
		for _, gp := range plans {
			for class, amount := range gp.basic.Corpus {
				aggregate[class] += amount
			}
			totalContribution += gp.basic.Contribution
			if gp.ambitious != nil {
				totalContribution += gp.ambitious.Contribution
			}
		}
		totalCorpus := 0.0
		for _, amount := range aggregate {
			totalCorpus += amount
		}
		mix := domain.Holdings{ByClass: aggregate}.MixPercents()

		for _, gp := range plans {
			alloc := mix
			if alloc == nil {
				alloc = gp.basicAlloc
			}
			stats := req.Stats.For(assets.BucketForHorizon(gp.goal.HorizonYears))
			bounds, err := p.envelope.BoundsForAllocation(totalCorpus, totalContribution, alloc, stats, gp.goal.HorizonYears, stepUp)
			if err != nil {
				return nil, err
			}
			out[gp.goal.ID] = bounds
		}
		return out, nil
	}

	positions := make([]montecarlo.GoalPosition, 0, len(plans))
	for _, gp := range plans {
		contribution := gp.basic.Contribution
		if gp.ambitious != nil {
			contribution += gp.ambitious.Contribution
		}
		positions = append(positions, montecarlo.GoalPosition{
			GoalID:              gp.goal.ID,
			Target:              gp.basic.Target,
			DueMonth:            gp.goal.HorizonMonths(),
			Corpus:              gp.basic.Corpus,
			MonthlyContribution: contribution,
			Allocation:          gp.basicAlloc,
		})
	}
	for _, gp := range plans {
		finals, err := mc.RunMultiGoalPortfolio(montecarlo.MultiGoalConfig{
			Goals:       positions,
			Stats:       req.Stats.For(assets.BucketForHorizon(gp.goal.HorizonYears)),
			StepUpPct:   stepUp,
			Paths:       montecarlo.LitePaths,
			FocusGoalID: gp.goal.ID,
		})
		if err != nil {
			return nil, err
		}
		out[gp.goal.ID] = mc.Bounds(finals)
	}
	return out, nil
}
