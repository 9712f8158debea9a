package montecarlo

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/goalplanner/internal/modules/assets"
)

// GoalPosition is one goal's slice of the shared portfolio in the
// multi-goal simulation.
type GoalPosition struct {
	GoalID              string
	Target              float64
	DueMonth            int
	Corpus              map[string]float64
	MonthlyContribution float64
	Allocation          map[string]int
}

// MultiGoalConfig describes a multi-goal portfolio simulation.
type MultiGoalConfig struct {
	Goals     []GoalPosition
	Stats     map[string]assets.ClassStats
	StepUpPct float64
	Paths     int
	// FocusGoalID selects the due month at which the portfolio net worth
	// distribution is sampled.
	FocusGoalID string
}

// RunMultiGoalPortfolio simulates every goal concurrently month-by-month
// on one set of paths. All goals holding the same asset class see the
// same sampled return in a given month. At each goal's due month its
// target is withdrawn proportionally across its classes; if the goal's
// corpus falls short, its net worth goes negative and the unfunded
// shortfall persists for later months.
//
// Returns the distribution of total portfolio net worth at the focus
// goal's due month, one value per path. Runs with the lite path count by
// default; this is a validation-grade pass, not the primary planner.
func (e *Engine) RunMultiGoalPortfolio(cfg MultiGoalConfig) ([]float64, error) {
	if len(cfg.Goals) == 0 {
		return nil, fmt.Errorf("no goals to simulate")
	}
	if cfg.Paths <= 0 {
		cfg.Paths = LitePaths
	}

	focusMonth := -1
	horizon := 0
	for _, g := range cfg.Goals {
		if g.DueMonth > horizon {
			horizon = g.DueMonth
		}
		if g.GoalID == cfg.FocusGoalID {
			focusMonth = g.DueMonth
		}
	}
	if focusMonth < 0 {
		return nil, fmt.Errorf("focus goal %q not present in simulation", cfg.FocusGoalID)
	}

	// Shared per-class sampling setup across all goals.
	classSet := map[string]bool{}
	for _, g := range cfg.Goals {
		for class, pct := range g.Allocation {
			if pct > 0 {
				classSet[class] = true
			}
		}
		for class, amount := range g.Corpus {
			if amount != 0 {
				classSet[class] = true
			}
		}
	}
	classes := make([]string, 0, len(classSet))
	for class := range classSet {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	classStates := make([]classState, len(classes))
	classIndex := make(map[string]int, len(classes))
	for i, class := range classes {
		stats, ok := cfg.Stats[class]
		if !ok {
			return nil, &assets.MissingStatisticError{AssetClass: class, Statistic: "class_stats"}
		}
		cs := classState{name: class}
		muMonthly := stats.AvgReturnPct / 100.0 / 12.0
		if assets.IsCash(class) {
			cs.deterministic = true
			cs.monthlyConstant = muMonthly
		} else {
			if stats.VolatilityPct == nil {
				return nil, &assets.MissingStatisticError{AssetClass: class, Statistic: "volatility_pct"}
			}
			cs.logMu = math.Log(1 + muMonthly)
			cs.logSigma = *stats.VolatilityPct / 100.0 / math.Sqrt(12)
			if cs.logSigma == 0 {
				cs.deterministic = true
				cs.monthlyConstant = muMonthly
			}
		}
		classStates[i] = cs
		classIndex[class] = i
	}

	nGoals := len(cfg.Goals)
	finals := make([]float64, cfg.Paths)

	// corpus[goal][class], contribution[goal][class]
	corpus := make([][]float64, nGoals)
	contribution := make([][]float64, nGoals)
	for gi := range cfg.Goals {
		corpus[gi] = make([]float64, len(classes))
		contribution[gi] = make([]float64, len(classes))
	}
	monthReturns := make([]float64, len(classes))

	for path := 0; path < cfg.Paths; path++ {
		for gi, g := range cfg.Goals {
			for ci := range classes {
				corpus[gi][ci] = 0
				contribution[gi][ci] = g.MonthlyContribution * float64(g.Allocation[classes[ci]]) / 100.0
			}
			for class, amount := range g.Corpus {
				corpus[gi][classIndex[class]] = amount
			}
		}

		pathFinal := 0.0
		for m := 0; m <= horizon; m++ {
			if m > 0 {
				if m%12 == 0 && cfg.StepUpPct > 0 {
					for gi := range contribution {
						for ci := range contribution[gi] {
							contribution[gi][ci] *= 1 + cfg.StepUpPct/100.0
						}
					}
				}
				// One market draw per class per month, shared by all goals.
				for ci := range classStates {
					monthReturns[ci] = e.sampleMonthlyReturn(&classStates[ci], ModelLognormal)
				}
				for gi, g := range cfg.Goals {
					contributing := m <= g.DueMonth
					for ci := range classes {
						corpus[gi][ci] *= 1 + monthReturns[ci]
						if contributing {
							corpus[gi][ci] += contribution[gi][ci]
						}
					}
				}
			}

			// Withdrawals happen at the due month, after growth.
			for gi, g := range cfg.Goals {
				if m == g.DueMonth && g.Target > 0 {
					withdrawProportionally(corpus[gi], g.Target)
				}
			}

			if m == focusMonth {
				total := 0.0
				for gi := range corpus {
					for ci := range corpus[gi] {
						total += corpus[gi][ci]
					}
				}
				pathFinal = total
			}
		}
		finals[path] = pathFinal
	}

	return finals, nil
}

// withdrawProportionally removes amount from the sleeves in proportion to
// their current value. When the sleeves cannot cover the amount the
// remainder is taken from the largest sleeve, leaving it negative: the
// unfunded shortfall stays on the books.
func withdrawProportionally(sleeves []float64, amount float64) {
	total := 0.0
	for _, v := range sleeves {
		if v > 0 {
			total += v
		}
	}

	if total <= 0 {
		// Nothing positive to draw from; the shortfall lands on sleeve 0.
		if len(sleeves) > 0 {
			sleeves[0] -= amount
		}
		return
	}

	if total >= amount {
		factor := amount / total
		for i, v := range sleeves {
			if v > 0 {
				sleeves[i] = v - v*factor
			}
		}
		return
	}

	// Partial cover: drain every positive sleeve, then book the remainder
	// against the largest (now empty) sleeve.
	remainder := amount - total
	largest := 0
	for i, v := range sleeves {
		if v > sleeves[largest] {
			largest = i
		}
		if v > 0 {
			sleeves[i] = 0
		}
	}
	sleeves[largest] -= remainder
}
