package domain

// GoalTierState is the planner's per-(goal, tier) working record. A fresh
// set is built for every planning call and threaded through the phases as
// a value; it is never persisted or shared.
type GoalTierState struct {
	GoalID       string
	Tier         TierKind
	Priority     int
	Target       float64
	HorizonYears float64

	// Corpus allocated to this tier, by asset class.
	Corpus map[string]float64
	// Monthly contribution allocated to this tier.
	Contribution float64
	// Target asset allocation, integer percentages summing to 100.
	Allocation map[string]int

	Bounds     Bounds
	Confidence int
}

// CorpusTotal sums the tier's allocated corpus.
func (s GoalTierState) CorpusTotal() float64 {
	total := 0.0
	for _, amount := range s.Corpus {
		total += amount
	}
	return total
}

// FeasibilityRow is one row of the plan's feasibility table.
type FeasibilityRow struct {
	GoalID          string     `json:"goal_id"`
	Tier            TierKind   `json:"tier"`
	Status          TierStatus `json:"status"`
	ConfidencePct   int        `json:"confidence_pct"`
	TargetAmount    float64    `json:"target_amount"`
	GoalBounds      Bounds     `json:"goal_bounds"`
	PortfolioBounds Bounds     `json:"portfolio_bounds"`
}

// ContributionLine is one goal tier's share of the monthly contribution.
type ContributionLine struct {
	GoalID         string             `json:"goal_id"`
	Tier           TierKind           `json:"tier"`
	MonthlyAmount  float64            `json:"monthly_amount"`
	AllocationPcts map[string]int     `json:"allocation_pcts"`
	ByClass        map[string]float64 `json:"by_class"`
}

// YearlyContribution is one year of the step-up schedule.
type YearlyContribution struct {
	Year          int     `json:"year"`
	MonthlyAmount float64 `json:"monthly_amount"`
}

// PlanningResult is the output of one planning call. All monetary values
// are rounded to the nearest ₹1,000 and all percentages are integers.
type PlanningResult struct {
	PlanID string `json:"plan_id"`
	Method string `json:"method"`

	FeasibilityTable     []FeasibilityRow     `json:"feasibility_table"`
	ContributionPlan     []ContributionLine   `json:"contribution_plan"`
	ContributionSchedule []YearlyContribution `json:"contribution_schedule"`
	// CorpusAllocation maps goalId -> assetClass -> amount. The grand
	// total never exceeds the customer's corpus.
	CorpusAllocation map[string]map[string]float64 `json:"corpus_allocation"`

	Converged  bool `json:"converged"`
	Iterations int  `json:"iterations"`
}

// EnvelopeValidation is the result of the lightweight stochastic sanity
// check of a deterministic envelope.
type EnvelopeValidation struct {
	ContainmentPercent int  `json:"containment_percent"`
	LowerTailAligned   bool `json:"lower_tail_aligned"`
	MeanAligned        bool `json:"mean_aligned"`
	IsValid            bool `json:"is_valid"`
}
