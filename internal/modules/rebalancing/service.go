// Package rebalancing reallocates an existing corpus: across asset
// classes to match a target allocation, and across goals by priority.
package rebalancing

import (
	"sort"

	"github.com/rs/zerolog"
)

// Service performs corpus rebalancing. It moves amounts on paper only;
// execution is out of scope.
type Service struct {
	log zerolog.Logger
}

// NewService creates a new rebalancing service.
func NewService(log zerolog.Logger) *Service {
	return &Service{log: log.With().Str("component", "rebalancing").Logger()}
}

// ToAllocation scales the existing total corpus into the target
// percentages. The total is preserved exactly: the largest target sleeve
// absorbs any floating-point residual. Classes absent from the target
// receive zero.
func (s *Service) ToAllocation(holdings map[string]float64, target map[string]int) map[string]float64 {
	total := 0.0
	for _, amount := range holdings {
		total += amount
	}

	out := make(map[string]float64, len(target))
	if total <= 0 {
		return out
	}

	classes := make([]string, 0, len(target))
	for class, pct := range target {
		if pct > 0 {
			classes = append(classes, class)
		}
	}
	if len(classes) == 0 {
		return out
	}
	sort.Strings(classes)

	assigned := 0.0
	largest := classes[0]
	for _, class := range classes {
		amount := total * float64(target[class]) / 100.0
		out[class] = amount
		assigned += amount
		if target[class] > target[largest] {
			largest = class
		}
	}
	// Preserve the total to the rupee.
	out[largest] += total - assigned

	return out
}

// GoalRequirement is one goal's corpus need, in planner priority order.
type GoalRequirement struct {
	GoalID   string
	Required float64
}

// AcrossGoals allocates the available corpus goal-by-goal in the order
// given, up to each goal's stated requirement, never exceeding the total.
// A goal with zero requirement receives nothing.
func (s *Service) AcrossGoals(totalCorpus float64, requirements []GoalRequirement) map[string]float64 {
	out := make(map[string]float64, len(requirements))
	remaining := totalCorpus

	for _, req := range requirements {
		if req.Required <= 0 || remaining <= 0 {
			continue
		}
		grant := req.Required
		if grant > remaining {
			grant = remaining
		}
		out[req.GoalID] = grant
		remaining -= grant
	}

	s.log.Debug().
		Float64("total", totalCorpus).
		Float64("unallocated", remaining).
		Int("goals", len(out)).
		Msg("Allocated corpus across goals")

	return out
}
