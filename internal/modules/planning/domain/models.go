// Package domain holds the plain data structures the goal planner
// consumes and produces. Everything here is owned by a single planning
// invocation; nothing is shared across calls or persisted.
package domain

import (
	"fmt"
	"math"
)

// Bounds is a deterministic or simulated projection envelope.
// Invariant: Lower <= Mean.
type Bounds struct {
	Lower float64 `json:"lower"`
	Mean  float64 `json:"mean"`
}

// TierKind distinguishes a goal's minimum-acceptable target from its
// stretch target.
type TierKind string

const (
	TierBasic     TierKind = "basic"
	TierAmbitious TierKind = "ambitious"
)

// TierStatus is the feasibility verdict for one goal tier.
type TierStatus string

const (
	StatusCanBeMet    TierStatus = "can_be_met"
	StatusAtRisk      TierStatus = "at_risk"
	StatusCannotBeMet TierStatus = "cannot_be_met"
)

// GoalTier is one funding target within a goal. Priorities are not
// coupled across goals: an ambitious tier may outrank another goal's
// basic tier.
type GoalTier struct {
	TargetAmount float64 `json:"target_amount"`
	Priority     int     `json:"priority"`
}

// Goal is a household financial goal with exactly two tiers.
type Goal struct {
	ID           string   `json:"goal_id"`
	HorizonYears float64  `json:"horizon_years"`
	Basic        GoalTier `json:"basic"`
	Ambitious    GoalTier `json:"ambitious"`
}

// Validate checks the goal's input contract.
func (g Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("goal is missing an id")
	}
	if g.HorizonYears < 0 {
		return fmt.Errorf("goal %s has negative horizon %v", g.ID, g.HorizonYears)
	}
	for _, tier := range []struct {
		kind TierKind
		t    GoalTier
	}{{TierBasic, g.Basic}, {TierAmbitious, g.Ambitious}} {
		if tier.t.TargetAmount < 0 {
			return fmt.Errorf("goal %s %s tier has negative target", g.ID, tier.kind)
		}
		if tier.t.Priority <= 0 {
			return fmt.Errorf("goal %s %s tier has non-positive priority", g.ID, tier.kind)
		}
	}
	return nil
}

// Tier returns the named tier.
func (g Goal) Tier(kind TierKind) GoalTier {
	if kind == TierAmbitious {
		return g.Ambitious
	}
	return g.Basic
}

// HorizonMonths is the goal horizon rounded to whole months.
func (g Goal) HorizonMonths() int {
	return int(math.Round(g.HorizonYears * 12))
}

// Holdings is the customer's existing corpus, broken down by asset class,
// plus the classes the customer is allowed to invest in.
type Holdings struct {
	ByClass        map[string]float64 `json:"by_class"`
	AllowedClasses []string           `json:"allowed_classes"`
}

// Total is the total corpus across classes.
func (h Holdings) Total() float64 {
	total := 0.0
	for _, amount := range h.ByClass {
		total += amount
	}
	return total
}

// MixPercents expresses the current holdings as integer percentages of
// the total, summing to exactly 100 (the largest sleeve absorbs rounding).
// An empty corpus yields nil.
func (h Holdings) MixPercents() map[string]int {
	total := h.Total()
	if total <= 0 {
		return nil
	}

	mix := make(map[string]int, len(h.ByClass))
	sum := 0
	largest := ""
	for class, amount := range h.ByClass {
		pct := int(math.Round(amount / total * 100))
		mix[class] = pct
		sum += pct
		if largest == "" || h.ByClass[class] > h.ByClass[largest] {
			largest = class
		}
	}
	mix[largest] += 100 - sum
	if mix[largest] == 0 {
		delete(mix, largest)
	}
	return mix
}

// ContributionInput describes the customer's recurring investment
// capacity.
type ContributionInput struct {
	MonthlyAmount       float64 `json:"monthly_amount"`
	StretchPercent      float64 `json:"stretch_percent"`
	AnnualStepUpPercent float64 `json:"annual_step_up_percent"`
}

// Available is the contribution the planner may allocate:
// max(monthly, monthly*(1+stretch/100)).
func (c ContributionInput) Available() float64 {
	stretched := c.MonthlyAmount * (1 + c.StretchPercent/100)
	return math.Max(c.MonthlyAmount, stretched)
}

// Validate checks the input contract.
func (c ContributionInput) Validate() error {
	if c.MonthlyAmount < 0 {
		return fmt.Errorf("monthly amount must be >= 0, got %v", c.MonthlyAmount)
	}
	if c.StretchPercent < 0 || c.StretchPercent > 100 {
		return fmt.Errorf("stretch percent must be in [0,100], got %v", c.StretchPercent)
	}
	if c.AnnualStepUpPercent < 0 {
		return fmt.Errorf("annual step-up percent must be >= 0, got %v", c.AnnualStepUpPercent)
	}
	return nil
}
