package formulas

import "math"

// MonthlyRate converts an annual return (as a fraction, e.g. 0.12 for 12%)
// to the equivalent compounding monthly rate.
func MonthlyRate(annual float64) float64 {
	if annual <= -1 {
		// A -100% (or worse) year wipes the corpus; cap at full monthly loss.
		return -1
	}
	return math.Pow(1+annual, 1.0/12.0) - 1
}

// CompoundCorpus grows a lump sum at the given monthly rate for n months.
func CompoundCorpus(corpus, monthlyRate float64, months int) float64 {
	if months <= 0 {
		return corpus
	}
	return corpus * math.Pow(1+monthlyRate, float64(months))
}

// AnnuityFutureValue computes the future value of a monthly contribution
// invested at monthlyRate for the given number of months, with the
// contribution stepped up by stepUpPct percent at every 12-month boundary.
//
// The contribution is treated as an ordinary annuity: each deposit earns
// growth for the months remaining after it is made.
func AnnuityFutureValue(monthlyContribution, monthlyRate float64, months int, stepUpPct float64) float64 {
	if months <= 0 || monthlyContribution <= 0 {
		return 0
	}

	if stepUpPct == 0 {
		// Closed form for the ordinary annuity.
		if monthlyRate == 0 {
			return monthlyContribution * float64(months)
		}
		return monthlyContribution * (math.Pow(1+monthlyRate, float64(months)) - 1) / monthlyRate
	}

	// Step-up changes the deposit once a year, so accumulate month by month.
	contribution := monthlyContribution
	total := 0.0
	for m := 0; m < months; m++ {
		if m > 0 && m%12 == 0 {
			contribution *= 1 + stepUpPct/100.0
		}
		total = total*(1+monthlyRate) + contribution
	}
	return total
}

// AnnuityFactor returns the future-value factor of a unit ordinary annuity:
// FV of ₹1/month over the given months at monthlyRate.
func AnnuityFactor(monthlyRate float64, months int) float64 {
	if months <= 0 {
		return 0
	}
	if monthlyRate == 0 {
		return float64(months)
	}
	return (math.Pow(1+monthlyRate, float64(months)) - 1) / monthlyRate
}
