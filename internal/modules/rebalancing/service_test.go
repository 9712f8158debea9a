package rebalancing

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAllocation_PreservesTotal(t *testing.T) {
	svc := NewService(zerolog.Nop())

	tests := []struct {
		name     string
		holdings map[string]float64
		target   map[string]int
	}{
		{
			name:     "simple move to new mix",
			holdings: map[string]float64{"bonds": 1000000},
			target:   map[string]int{"equity": 60, "bonds": 40},
		},
		{
			name:     "awkward percentages",
			holdings: map[string]float64{"equity": 333333.33, "gold": 111111.11, "cash": 55555.55},
			target:   map[string]int{"equity": 33, "gold": 33, "bonds": 34},
		},
		{
			name:     "single class target",
			holdings: map[string]float64{"equity": 250000, "bonds": 750000},
			target:   map[string]int{"equity": 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := 0.0
			for _, v := range tt.holdings {
				before += v
			}

			out := svc.ToAllocation(tt.holdings, tt.target)

			after := 0.0
			for _, v := range out {
				after += v
			}
			assert.InDelta(t, before, after, 1e-6, "total must be preserved to the rupee")
		})
	}
}

func TestToAllocation_OmittedClassesGetZero(t *testing.T) {
	svc := NewService(zerolog.Nop())
	out := svc.ToAllocation(map[string]float64{"gold": 500000}, map[string]int{"equity": 50, "bonds": 50})
	assert.NotContains(t, out, "gold")
	assert.InDelta(t, 250000, out["equity"], 1e-6)
	assert.InDelta(t, 250000, out["bonds"], 1e-6)
}

func TestToAllocation_EmptyInputs(t *testing.T) {
	svc := NewService(zerolog.Nop())
	assert.Empty(t, svc.ToAllocation(nil, map[string]int{"equity": 100}))
	assert.Empty(t, svc.ToAllocation(map[string]float64{"equity": 1000}, nil))
}

func TestAcrossGoals(t *testing.T) {
	svc := NewService(zerolog.Nop())

	t.Run("priority order greedy", func(t *testing.T) {
		out := svc.AcrossGoals(1000000, []GoalRequirement{
			{GoalID: "first", Required: 600000},
			{GoalID: "second", Required: 600000},
			{GoalID: "third", Required: 600000},
		})
		assert.Equal(t, 600000.0, out["first"])
		assert.Equal(t, 400000.0, out["second"], "second goal gets the remainder")
		assert.NotContains(t, out, "third")
	})

	t.Run("never exceeds total", func(t *testing.T) {
		out := svc.AcrossGoals(500000, []GoalRequirement{
			{GoalID: "a", Required: 200000},
			{GoalID: "b", Required: 200000},
			{GoalID: "c", Required: 200000},
		})
		sum := 0.0
		for _, v := range out {
			sum += v
		}
		assert.LessOrEqual(t, sum, 500000.0)
	})

	t.Run("zero requirement gets nothing", func(t *testing.T) {
		out := svc.AcrossGoals(math.MaxFloat64, []GoalRequirement{{GoalID: "a", Required: 0}})
		require.NotContains(t, out, "a")
	})

	t.Run("zero corpus allocates nothing", func(t *testing.T) {
		out := svc.AcrossGoals(0, []GoalRequirement{{GoalID: "a", Required: 100000}})
		assert.Empty(t, out)
	})
}
