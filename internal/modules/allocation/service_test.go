package allocation

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/goalplanner/internal/modules/assets"
)

func testStats() map[string]assets.ClassStats {
	return map[string]assets.ClassStats{
		"equity": {AvgReturnPct: 12, ProbNegativeYearPct: 25, ExpectedShortfallPct: -10, MaxDrawdownPct: -35},
		"gold":   {AvgReturnPct: 8, ProbNegativeYearPct: 24, ExpectedShortfallPct: -8, MaxDrawdownPct: -25},
		"bonds":  {AvgReturnPct: 7.5, ProbNegativeYearPct: 4, ExpectedShortfallPct: -2, MaxDrawdownPct: -8},
		"cash":   {AvgReturnPct: 3.5},
	}
}

func sumAllocation(alloc map[string]int) int {
	total := 0
	for _, pct := range alloc {
		total += pct
	}
	return total
}

func TestOptimalAllocation_SumsToHundred(t *testing.T) {
	svc := NewService(zerolog.Nop())

	alloc, err := svc.OptimalAllocation([]string{"equity", "gold", "bonds", "cash"}, testStats())
	require.NoError(t, err)

	assert.Equal(t, 100, sumAllocation(alloc))
	// Cash never receives a Sharpe weight.
	assert.NotContains(t, alloc, "cash")
	// Every invested class is present with at least the floor.
	for _, class := range []string{"equity", "gold", "bonds"} {
		assert.GreaterOrEqual(t, alloc[class], 5, "class %s below floor", class)
	}
}

func TestOptimalAllocation_BondsDominateOnSharpe(t *testing.T) {
	// Bonds have by far the best risk-adjusted return in the fixture
	// (7.5% return against ~0.4% approximated volatility).
	svc := NewService(zerolog.Nop())
	alloc, err := svc.OptimalAllocation([]string{"equity", "bonds"}, testStats())
	require.NoError(t, err)
	assert.Greater(t, alloc["bonds"], alloc["equity"])
}

func TestOptimalAllocation_ZeroSharpeSplitsEqually(t *testing.T) {
	svc := NewService(zerolog.Nop())
	stats := map[string]assets.ClassStats{
		"a": {AvgReturnPct: 0, ProbNegativeYearPct: 20, ExpectedShortfallPct: -5},
		"b": {AvgReturnPct: -2, ProbNegativeYearPct: 20, ExpectedShortfallPct: -5},
	}
	alloc, err := svc.OptimalAllocation([]string{"a", "b"}, stats)
	require.NoError(t, err)
	assert.Equal(t, 50, alloc["a"])
	assert.Equal(t, 50, alloc["b"])
}

func TestOptimalAllocation_CashOnly(t *testing.T) {
	svc := NewService(zerolog.Nop())
	alloc, err := svc.OptimalAllocation([]string{"cash"}, testStats())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cash": 100}, alloc)
}

func TestOptimalAllocation_MissingStats(t *testing.T) {
	svc := NewService(zerolog.Nop())
	_, err := svc.OptimalAllocation([]string{"crypto"}, testStats())
	require.Error(t, err)
	var missing *assets.MissingStatisticError
	assert.ErrorAs(t, err, &missing)
}

func TestApproxVolatility(t *testing.T) {
	// p = 0 is clamped up, so a never-negative class keeps a small but
	// positive volatility instead of an infinite Sharpe ratio.
	v := ApproxVolatility(assets.ClassStats{ProbNegativeYearPct: 0, ExpectedShortfallPct: -10})
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, 2.0)

	// p -> 1 must stay finite thanks to the clamp.
	v = ApproxVolatility(assets.ClassStats{ProbNegativeYearPct: 100, ExpectedShortfallPct: -10})
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, 1000.0)

	// Volatility grows with the negative-year probability.
	low := ApproxVolatility(assets.ClassStats{ProbNegativeYearPct: 5, ExpectedShortfallPct: -10})
	high := ApproxVolatility(assets.ClassStats{ProbNegativeYearPct: 40, ExpectedShortfallPct: -10})
	assert.Less(t, low, high)
}

func TestOptimalAllocation_NeverNegativeClassDominates(t *testing.T) {
	// A positive-return class that never has a negative year has the
	// best risk-adjusted return by far, so it takes most of the weight
	// rather than falling back to an equal split.
	svc := NewService(zerolog.Nop())
	stats := map[string]assets.ClassStats{
		"steady": {AvgReturnPct: 8, ProbNegativeYearPct: 0, ExpectedShortfallPct: -1},
		"equity": {AvgReturnPct: 12, ProbNegativeYearPct: 25, ExpectedShortfallPct: -10, MaxDrawdownPct: -35},
	}

	alloc, err := svc.OptimalAllocation([]string{"steady", "equity"}, stats)
	require.NoError(t, err)
	assert.Equal(t, 100, sumAllocation(alloc))
	assert.Greater(t, alloc["steady"], 80)
	assert.GreaterOrEqual(t, alloc["equity"], 5)
}

func TestApplyGlidePath(t *testing.T) {
	svc := NewService(zerolog.Nop())
	base := map[string]int{"equity": 60, "gold": 15, "bonds": 25}

	t.Run("no-op outside final year", func(t *testing.T) {
		out := svc.ApplyGlidePath(base, 0, 60)
		assert.Equal(t, base, out)
	})

	t.Run("raises bonds to eighty in final year", func(t *testing.T) {
		out := svc.ApplyGlidePath(base, 49, 60)
		assert.Equal(t, 100, sumAllocation(out))
		assert.GreaterOrEqual(t, out["bonds"], 80)
		assert.Less(t, out["equity"], base["equity"])
	})

	t.Run("synthesizes bond sleeve when absent", func(t *testing.T) {
		out := svc.ApplyGlidePath(map[string]int{"equity": 70, "gold": 30}, 50, 60)
		assert.Equal(t, 100, sumAllocation(out))
		assert.GreaterOrEqual(t, out["bonds"], 80)
	})

	t.Run("already bond heavy is untouched", func(t *testing.T) {
		heavy := map[string]int{"equity": 10, "bonds": 90}
		out := svc.ApplyGlidePath(heavy, 55, 60)
		assert.Equal(t, heavy, out)
	})

	t.Run("short goals glide from the start", func(t *testing.T) {
		// A 12-month goal is inside the window at month zero.
		out := svc.ApplyGlidePath(base, 0, 12)
		assert.GreaterOrEqual(t, out["bonds"], 80)
	})

	t.Run("heaviest bond sleeve absorbs the glide deterministically", func(t *testing.T) {
		mixed := map[string]int{"bonds": 25, "govt_bonds": 10, "equity": 65}
		want := svc.ApplyGlidePath(mixed, 55, 60)

		assert.Equal(t, 100, sumAllocation(want))
		assert.Equal(t, 80, want["bonds"], "the larger bond sleeve should receive the glide")
		for i := 0; i < 20; i++ {
			assert.Equal(t, want, svc.ApplyGlidePath(mixed, 55, 60))
		}
	})

	t.Run("input map is not mutated", func(t *testing.T) {
		orig := map[string]int{"equity": 60, "gold": 15, "bonds": 25}
		_ = svc.ApplyGlidePath(orig, 59, 60)
		assert.Equal(t, 60, orig["equity"])
	})
}
