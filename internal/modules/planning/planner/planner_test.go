package planner

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/goalplanner/internal/modules/allocation"
	"github.com/aristath/goalplanner/internal/modules/assets"
	"github.com/aristath/goalplanner/internal/modules/envelope"
	"github.com/aristath/goalplanner/internal/modules/planning/domain"
	"github.com/aristath/goalplanner/internal/modules/rebalancing"
)

func newTestPlanner() *Planner {
	log := zerolog.Nop()
	return New(allocation.NewService(log), envelope.NewEngine(log), rebalancing.NewService(log), log)
}

func basicRequest() Request {
	return Request{
		Goals: []domain.Goal{{
			ID:           "retirement",
			HorizonYears: 10,
			Basic:        domain.GoalTier{TargetAmount: 10_000_000, Priority: 1},
			Ambitious:    domain.GoalTier{TargetAmount: 15_000_000, Priority: 2},
		}},
		Holdings: domain.Holdings{ByClass: map[string]float64{"bonds": 1_000_000}},
		Stats:    assets.DefaultGrid(),
		Contribution: domain.ContributionInput{
			MonthlyAmount: 200_000,
		},
		Seed: 7,
	}
}

func findRow(t *testing.T, result *domain.PlanningResult, goalID string, tier domain.TierKind) domain.FeasibilityRow {
	t.Helper()
	for _, row := range result.FeasibilityTable {
		if row.GoalID == goalID && row.Tier == tier {
			return row
		}
	}
	t.Fatalf("no feasibility row for %s/%s", goalID, tier)
	return domain.FeasibilityRow{}
}

func totalPlannedContribution(result *domain.PlanningResult) float64 {
	total := 0.0
	for _, line := range result.ContributionPlan {
		total += line.MonthlyAmount
	}
	return total
}

func assertThousands(t *testing.T, label string, amount float64) {
	t.Helper()
	assert.Equal(t, 0.0, math.Mod(amount, 1000), "%s = %v is not a multiple of 1000", label, amount)
}

func TestPlanFundsSingleGoalAtConfidenceTarget(t *testing.T) {
	p := newTestPlanner()
	result, err := p.PlanCurrentHoldings(basicRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, result.PlanID)
	assert.Equal(t, MethodCurrentHoldings, result.Method)
	assert.True(t, result.Converged)
	assert.GreaterOrEqual(t, result.Iterations, 1)
	require.Len(t, result.FeasibilityTable, 2)

	basic := findRow(t, result, "retirement", domain.TierBasic)
	assert.GreaterOrEqual(t, basic.ConfidencePct, 90)
	assert.LessOrEqual(t, basic.ConfidencePct, 100)
	assert.NotEqual(t, domain.StatusCannotBeMet, basic.Status)

	// The budget is generous, so the surplus funds the ambitious tier too.
	var ambitiousFunded bool
	for _, line := range result.ContributionPlan {
		if line.Tier == domain.TierAmbitious {
			ambitiousFunded = true
		}
	}
	assert.True(t, ambitiousFunded, "expected an ambitious contribution line")
}

func TestPlanEmitsRoundedMoney(t *testing.T) {
	p := newTestPlanner()
	result, err := p.Plan(basicRequest(), MethodCurrentHoldings)
	require.NoError(t, err)

	for _, row := range result.FeasibilityTable {
		assertThousands(t, "goal lower bound", row.GoalBounds.Lower)
		assertThousands(t, "goal mean bound", row.GoalBounds.Mean)
		assertThousands(t, "portfolio lower bound", row.PortfolioBounds.Lower)
		assertThousands(t, "portfolio mean bound", row.PortfolioBounds.Mean)
	}
	for _, line := range result.ContributionPlan {
		assertThousands(t, "monthly contribution", line.MonthlyAmount)
	}
	for _, year := range result.ContributionSchedule {
		assertThousands(t, "scheduled contribution", year.MonthlyAmount)
	}
	for goalID, byClass := range result.CorpusAllocation {
		for class, amount := range byClass {
			assertThousands(t, goalID+"/"+class+" corpus", amount)
		}
	}
}

func TestPlanContributionNeverExceedsAvailable(t *testing.T) {
	p := newTestPlanner()
	req := Request{
		Goals: []domain.Goal{
			{ID: "house", HorizonYears: 8, Basic: domain.GoalTier{TargetAmount: 8_000_000, Priority: 1}, Ambitious: domain.GoalTier{TargetAmount: 12_000_000, Priority: 4}},
			{ID: "education", HorizonYears: 12, Basic: domain.GoalTier{TargetAmount: 6_000_000, Priority: 2}, Ambitious: domain.GoalTier{TargetAmount: 9_000_000, Priority: 5}},
			{ID: "travel", HorizonYears: 5, Basic: domain.GoalTier{TargetAmount: 1_500_000, Priority: 3}, Ambitious: domain.GoalTier{TargetAmount: 2_500_000, Priority: 6}},
		},
		Holdings:     domain.Holdings{ByClass: map[string]float64{"equity": 1_200_000, "bonds": 800_000}},
		Stats:        assets.DefaultGrid(),
		Contribution: domain.ContributionInput{MonthlyAmount: 30_000, StretchPercent: 10},
		Seed:         11,
	}
	available := req.Contribution.Available()

	for _, method := range []string{MethodCurrentHoldings, MethodOptimalRebalance, MethodOptimalFresh} {
		result, err := p.Plan(req, method)
		require.NoError(t, err, method)
		assert.LessOrEqual(t, totalPlannedContribution(result), available, method)

		corpusTotal := 0.0
		for _, byClass := range result.CorpusAllocation {
			for _, amount := range byClass {
				corpusTotal += amount
			}
		}
		assert.LessOrEqual(t, corpusTotal, req.Holdings.Total(), method)
	}
}

func TestPlanImpossibleGoalCannotBeMet(t *testing.T) {
	p := newTestPlanner()
	req := Request{
		Goals: []domain.Goal{{
			ID:           "moonshot",
			HorizonYears: 4,
			Basic:        domain.GoalTier{TargetAmount: 1_000_000_000, Priority: 1},
			Ambitious:    domain.GoalTier{TargetAmount: 2_000_000_000, Priority: 2},
		}},
		Holdings:     domain.Holdings{ByClass: map[string]float64{"equity": 500_000}},
		Stats:        assets.DefaultGrid(),
		Contribution: domain.ContributionInput{MonthlyAmount: 10_000},
	}

	result, err := p.Plan(req, MethodCurrentHoldings)
	require.NoError(t, err)

	basic := findRow(t, result, "moonshot", domain.TierBasic)
	assert.Equal(t, domain.StatusCannotBeMet, basic.Status)
	assert.Less(t, basic.ConfidencePct, 50)

	// An unfunded basic tier blocks any ambitious grant.
	for _, line := range result.ContributionPlan {
		assert.NotEqual(t, domain.TierAmbitious, line.Tier)
	}
}

func TestShortHorizonGoalIsCorpusOnly(t *testing.T) {
	p := newTestPlanner()
	req := Request{
		Goals: []domain.Goal{{
			ID:           "car",
			HorizonYears: 2,
			Basic:        domain.GoalTier{TargetAmount: 500_000, Priority: 1},
			Ambitious:    domain.GoalTier{TargetAmount: 800_000, Priority: 2},
		}},
		Holdings:     domain.Holdings{ByClass: map[string]float64{"bonds": 2_000_000}},
		Stats:        assets.DefaultGrid(),
		Contribution: domain.ContributionInput{MonthlyAmount: 50_000},
	}

	result, err := p.Plan(req, MethodCurrentHoldings)
	require.NoError(t, err)

	assert.Empty(t, result.ContributionPlan, "a goal due within the short horizon must not receive monthly contributions")
	assert.NotEmpty(t, result.CorpusAllocation["car"], "the goal should be funded from corpus instead")
}

func TestOptimalMethodsIgnoreSkewedHoldingsMix(t *testing.T) {
	p := newTestPlanner()
	req := Request{
		Goals: []domain.Goal{{
			ID:           "retirement",
			HorizonYears: 15,
			Basic:        domain.GoalTier{TargetAmount: 10_000_000, Priority: 1},
			Ambitious:    domain.GoalTier{TargetAmount: 15_000_000, Priority: 2},
		}},
		Holdings:     domain.Holdings{ByClass: map[string]float64{"bonds": 2_000_000}},
		Stats:        assets.DefaultGrid(),
		Contribution: domain.ContributionInput{MonthlyAmount: 100_000},
		Seed:         13,
	}

	current, err := p.Plan(req, MethodCurrentHoldings)
	require.NoError(t, err)
	require.NotEmpty(t, current.ContributionPlan)
	for _, line := range current.ContributionPlan {
		assert.Equal(t, map[string]int{"bonds": 100}, line.AllocationPcts,
			"the current-holdings method keeps the customer's all-bond mix")
	}

	fresh, err := p.PlanOptimalFresh(req)
	require.NoError(t, err)
	require.NotEmpty(t, fresh.ContributionPlan)
	for _, line := range fresh.ContributionPlan {
		assert.Greater(t, line.AllocationPcts["equity"], 0,
			"the optimal methods should diversify out of the all-bond corpus")
		assert.Less(t, line.AllocationPcts["bonds"], 100)
	}
}

func TestContributionsSizedAgainstFinalCorpusSplit(t *testing.T) {
	// The zero-start method moves the corpus between goals on every
	// iteration. The emitted contributions must be sized against the
	// corpus split the plan actually keeps, not the previous iteration's.
	p := newTestPlanner()
	req := Request{
		Goals: []domain.Goal{
			{ID: "wedding", HorizonYears: 8, Basic: domain.GoalTier{TargetAmount: 6_000_000, Priority: 1}, Ambitious: domain.GoalTier{Priority: 2}},
			{ID: "retirement", HorizonYears: 20, Basic: domain.GoalTier{TargetAmount: 25_000_000, Priority: 2}, Ambitious: domain.GoalTier{Priority: 3}},
		},
		Holdings:     domain.Holdings{ByClass: map[string]float64{"bonds": 3_000_000}},
		Stats:        assets.DefaultGrid(),
		Contribution: domain.ContributionInput{MonthlyAmount: 80_000},
	}
	size := &envelopeSizer{engine: p.envelope, grid: req.Stats}

	plans, err := p.buildGoalPlans(req, MethodOptimalFresh)
	require.NoError(t, err)

	// A tight iteration budget stops the loop while the corpus is still
	// moving, so the consistency of the emitted pair is what is tested,
	// not the fixed point.
	_, _, err = p.convergeContributions(plans, req.Holdings.Total(), req, MethodOptimalFresh, size, 2)
	require.NoError(t, err)

	// Re-sizing against the emitted corpus, in priority order, must
	// reproduce the emitted grants.
	remaining := req.Contribution.Available()
	for _, gp := range byBasicPriority(plans) {
		required, err := size.MinimumContribution(
			gp.basic.Target, gp.basic.CorpusTotal(), gp.basicAlloc, gp.goal.HorizonYears, 0)
		require.NoError(t, err)
		want := math.Min(required, remaining)
		assert.InDelta(t, want, gp.basic.Contribution, 1.0,
			"goal %s contribution was not sized against its final corpus", gp.goal.ID)
		remaining -= gp.basic.Contribution
	}
}

func TestZeroStartMethodFundsCorpusStarvedGoal(t *testing.T) {
	// The discounted 20-year target swallows the whole corpus up front,
	// starving the nearer goal in the methods that keep that split. The
	// zero-start method follows the contribution grants with the corpus
	// and funds both.
	p := newTestPlanner()
	req := Request{
		Goals: []domain.Goal{
			{ID: "retirement", HorizonYears: 20, Basic: domain.GoalTier{TargetAmount: 22_000_000, Priority: 1}, Ambitious: domain.GoalTier{Priority: 2}},
			{ID: "house", HorizonYears: 6, Basic: domain.GoalTier{TargetAmount: 9_800_000, Priority: 2}, Ambitious: domain.GoalTier{Priority: 3}},
		},
		Holdings:     domain.Holdings{ByClass: map[string]float64{"bonds": 5_000_000}},
		Stats:        assets.DefaultGrid(),
		Contribution: domain.ContributionInput{MonthlyAmount: 100_000},
		Seed:         31,
	}

	current, err := p.PlanCurrentHoldings(req)
	require.NoError(t, err)
	rebalance, err := p.PlanOptimalRebalance(req)
	require.NoError(t, err)
	fresh, err := p.PlanOptimalFresh(req)
	require.NoError(t, err)

	currentHouse := findRow(t, current, "house", domain.TierBasic)
	assert.Less(t, currentHouse.ConfidencePct, 90)
	assert.NotEqual(t, domain.StatusCanBeMet, currentHouse.Status)

	rebalanceHouse := findRow(t, rebalance, "house", domain.TierBasic)
	assert.Less(t, rebalanceHouse.ConfidencePct, 90)
	assert.NotEqual(t, domain.StatusCanBeMet, rebalanceHouse.Status)

	freshHouse := findRow(t, fresh, "house", domain.TierBasic)
	assert.Greater(t, freshHouse.ConfidencePct, currentHouse.ConfidencePct)
	assert.Greater(t, freshHouse.ConfidencePct, rebalanceHouse.ConfidencePct)
	assert.GreaterOrEqual(t, freshHouse.ConfidencePct, 80)
	assert.NotEqual(t, domain.StatusCannotBeMet, freshHouse.Status)
	assert.NotEqual(t, domain.StatusCannotBeMet,
		findRow(t, fresh, "retirement", domain.TierBasic).Status)

	// Method 1 keeps the corpus where it is held; the zero-start corpus
	// is redistributed out of the all-bond mix.
	for goalID, byClass := range current.CorpusAllocation {
		for class := range byClass {
			assert.Equal(t, "bonds", class, "unexpected corpus class for %s", goalID)
		}
	}
	diversified := false
	for _, byClass := range fresh.CorpusAllocation {
		for class, amount := range byClass {
			if class != "bonds" && amount > 0 {
				diversified = true
			}
		}
	}
	assert.True(t, diversified, "the redistributed corpus should include non-bond classes")
}

func TestSeededPlansAreReproducible(t *testing.T) {
	p := newTestPlanner()
	req := basicRequest()
	req.Seed = 42

	first, err := p.PlanOptimalRebalance(req)
	require.NoError(t, err)
	second, err := p.PlanOptimalRebalance(req)
	require.NoError(t, err)

	assert.Equal(t, first.FeasibilityTable, second.FeasibilityTable)
	assert.Equal(t, first.ContributionPlan, second.ContributionPlan)
	assert.Equal(t, first.ContributionSchedule, second.ContributionSchedule)
	assert.Equal(t, first.CorpusAllocation, second.CorpusAllocation)
}

func TestSimulationMethodsRequireVolatility(t *testing.T) {
	grid := assets.StatsGrid{}
	for bucket, classes := range assets.DefaultGrid() {
		grid[bucket] = map[string]assets.ClassStats{}
		for class, stats := range classes {
			if class == "equity" {
				stats.VolatilityPct = nil
			}
			grid[bucket][class] = stats
		}
	}

	req := basicRequest()
	req.Stats = grid
	req.Holdings = domain.Holdings{ByClass: map[string]float64{"equity": 1_000_000}}

	p := newTestPlanner()

	// The deterministic envelope never needs volatility.
	_, err := p.Plan(req, MethodCurrentHoldings)
	require.NoError(t, err)

	_, err = p.Plan(req, MethodOptimalRebalance)
	require.Error(t, err)
	var missing *assets.MissingStatisticError
	assert.True(t, errors.As(err, &missing))
	assert.Equal(t, "equity", missing.AssetClass)
}

func TestPlanRejectsBadInput(t *testing.T) {
	p := newTestPlanner()

	_, err := p.Plan(basicRequest(), "alchemy")
	assert.Error(t, err)

	_, err = p.Plan(Request{Stats: assets.DefaultGrid()}, MethodCurrentHoldings)
	assert.Error(t, err)

	req := basicRequest()
	req.Goals = append(req.Goals, req.Goals[0])
	_, err = p.Plan(req, MethodCurrentHoldings)
	assert.Error(t, err)
}

func TestContributionScheduleStepsUp(t *testing.T) {
	p := newTestPlanner()
	req := basicRequest()
	req.Contribution.AnnualStepUpPercent = 10

	result, err := p.Plan(req, MethodCurrentHoldings)
	require.NoError(t, err)
	require.Len(t, result.ContributionSchedule, 10)

	for i := 1; i < len(result.ContributionSchedule); i++ {
		prev, cur := result.ContributionSchedule[i-1], result.ContributionSchedule[i]
		assert.Equal(t, prev.Year+1, cur.Year)
		assert.GreaterOrEqual(t, cur.MonthlyAmount, prev.MonthlyAmount)
	}
}
