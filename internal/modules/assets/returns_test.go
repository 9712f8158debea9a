package assets

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvgPositiveReturn(t *testing.T) {
	tests := []struct {
		name     string
		stats    ClassStats
		expected float64
	}{
		{
			name:     "no negative years returns avg",
			stats:    ClassStats{AvgReturnPct: 8, ProbNegativeYearPct: 0, ExpectedShortfallPct: -5},
			expected: 8,
		},
		{
			name:     "all years negative returns shortfall",
			stats:    ClassStats{AvgReturnPct: -3, ProbNegativeYearPct: 100, ExpectedShortfallPct: -10},
			expected: -10,
		},
		{
			name: "typical equity",
			// 12 = 0.25*(-10) + 0.75*x  =>  x = 14.5/0.75
			stats:    ClassStats{AvgReturnPct: 12, ProbNegativeYearPct: 25, ExpectedShortfallPct: -10},
			expected: 14.5 / 0.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AvgPositiveReturn(tt.stats)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestAvgPositiveReturn_Identity(t *testing.T) {
	// Re-mixing the positive return with the shortfall must recover the
	// stated average return.
	stats := ClassStats{AvgReturnPct: 10, ProbNegativeYearPct: 30, ExpectedShortfallPct: -12}
	p := stats.ProbNegativeYearPct / 100
	pos := AvgPositiveReturn(stats)
	mixed := p*stats.ExpectedShortfallPct + (1-p)*pos
	assert.InDelta(t, stats.AvgReturnPct, mixed, 1e-9)
}

func TestWeightedStats(t *testing.T) {
	stats := map[string]ClassStats{
		"equity": {AvgReturnPct: 12, ProbNegativeYearPct: 25, ExpectedShortfallPct: -10, MaxDrawdownPct: -35},
		"bonds":  {AvgReturnPct: 7, ProbNegativeYearPct: 5, ExpectedShortfallPct: -2, MaxDrawdownPct: -8},
		"cash":   {AvgReturnPct: 3.5},
	}

	t.Run("cash excluded and weights renormalized", func(t *testing.T) {
		// 40/40/20 with cash skipped behaves as 50/50 equity/bonds.
		got, err := WeightedStats(map[string]int{"equity": 40, "bonds": 40, "cash": 20}, stats)
		require.NoError(t, err)
		assert.InDelta(t, 9.5, got.AvgReturnPct, 1e-9)
		assert.InDelta(t, 15, got.ProbNegativeYearPct, 1e-9)
		assert.InDelta(t, -6, got.ExpectedShortfallPct, 1e-9)
	})

	t.Run("pure cash falls back to cash stats", func(t *testing.T) {
		got, err := WeightedStats(map[string]int{"cash": 100}, stats)
		require.NoError(t, err)
		assert.InDelta(t, 3.5, got.AvgReturnPct, 1e-9)
	})

	t.Run("missing class stats is an error", func(t *testing.T) {
		_, err := WeightedStats(map[string]int{"crypto": 100}, stats)
		require.Error(t, err)
		var missing *MissingStatisticError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "crypto", missing.AssetClass)
	})
}

func TestBucketForHorizon(t *testing.T) {
	assert.Equal(t, BucketShortTerm, BucketForHorizon(1))
	assert.Equal(t, BucketShortTerm, BucketForHorizon(3))
	assert.Equal(t, BucketMediumTerm, BucketForHorizon(4.5))
	assert.Equal(t, BucketMediumTerm, BucketForHorizon(5))
	assert.Equal(t, BucketLongTerm, BucketForHorizon(5.01))
	assert.Equal(t, BucketLongTerm, BucketForHorizon(20))
}

func TestClassStatsValidate(t *testing.T) {
	bad := ClassStats{ProbNegativeYearPct: 120}
	assert.Error(t, bad.Validate())

	bad = ClassStats{ExpectedShortfallPct: 2}
	assert.Error(t, bad.Validate())

	v := -1.0
	bad = ClassStats{VolatilityPct: &v}
	assert.Error(t, bad.Validate())

	good := ClassStats{AvgReturnPct: 10, ProbNegativeYearPct: 20, ExpectedShortfallPct: -8, MaxDrawdownPct: -20}
	assert.NoError(t, good.Validate())
}

func TestDefaultGridIsValid(t *testing.T) {
	grid := DefaultGrid()
	require.NoError(t, grid.Validate())

	// Every non-cash class must carry volatility so the lognormal engine
	// works out of the box.
	for bucket, classes := range grid {
		for class, stats := range classes {
			if IsCash(class) {
				continue
			}
			require.NotNil(t, stats.VolatilityPct, "%s/%s missing volatility", class, bucket)
			assert.False(t, math.IsNaN(*stats.VolatilityPct))
		}
	}
}
