package assets

// AvgPositiveReturn derives the average positive-year return (percent)
// from the class's average return, its probability of a negative year and
// its expected shortfall in those years.
//
// It solves  avgReturn = p*shortfall + (1-p)*avgPositiveReturn  for the
// positive-year term, where p = probNegativeYearPct/100.
func AvgPositiveReturn(s ClassStats) float64 {
	p := s.ProbNegativeYearPct / 100.0
	if p <= 0 {
		return s.AvgReturnPct
	}
	if p >= 1 {
		// Every year is a bad year; the "positive" return collapses to the loss.
		return s.ExpectedShortfallPct
	}
	return (s.AvgReturnPct - p*s.ExpectedShortfallPct) / (1 - p)
}

// WeightedStats collapses a multi-class allocation into a single synthetic
// ClassStats by percentage-weighting avgReturn, negative-year probability,
// shortfall and drawdown across the non-cash classes. The single-class
// projection formulas are then reused on the result.
//
// Cash carries no return/risk weighting: its percentage is excluded and
// the remaining weights are renormalized. A pure-cash allocation falls
// back to the cash class's own statistics.
func WeightedStats(allocation map[string]int, stats map[string]ClassStats) (ClassStats, error) {
	var investedPct int
	for class, pct := range allocation {
		if pct <= 0 || IsCash(class) {
			continue
		}
		if _, ok := stats[class]; !ok {
			return ClassStats{}, &MissingStatisticError{AssetClass: class, Statistic: "class_stats"}
		}
		investedPct += pct
	}

	if investedPct == 0 {
		// Nothing but cash (or an empty allocation).
		for class, pct := range allocation {
			if pct > 0 && IsCash(class) {
				if s, ok := stats[class]; ok {
					return s, nil
				}
			}
		}
		return ClassStats{}, nil
	}

	var out ClassStats
	for class, pct := range allocation {
		if pct <= 0 || IsCash(class) {
			continue
		}
		w := float64(pct) / float64(investedPct)
		s := stats[class]
		out.AvgReturnPct += w * s.AvgReturnPct
		out.ProbNegativeYearPct += w * s.ProbNegativeYearPct
		out.ExpectedShortfallPct += w * s.ExpectedShortfallPct
		out.MaxDrawdownPct += w * s.MaxDrawdownPct
	}
	return out, nil
}
