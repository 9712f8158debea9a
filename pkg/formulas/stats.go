package formulas

import (
	"gonum.org/v1/gonum/stat"
)

// MeanStd returns the mean and population-adjusted standard deviation of
// the sample. Empty input yields (0, 0); a single observation has zero
// spread by definition.
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean = stat.Mean(values, nil)
	if len(values) < 2 {
		return mean, 0
	}
	std = stat.StdDev(values, nil)
	return mean, std
}
