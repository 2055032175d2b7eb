package formulas

import (
	"errors"
	"math"
	"sort"
	"time"
)

// Flow is a signed cash amount at a date. Purchases are negative, the
// terminal portfolio value is a single positive flow dated "now".
type Flow struct {
	Amount float64
	Date   time.Time
}

const (
	xirrTolerance  = 1e-7
	xirrMaxNewton  = 50
	xirrMaxBisect  = 200
	daysPerYear    = 365.0
	xirrLowerBound = -0.999999 // rates below -100% are meaningless
	xirrUpperBound = 1e6
)

// ErrNoSolution means the cash-flow pattern admits no internal rate of
// return within the searchable bracket (e.g., all flows of one sign).
var ErrNoSolution = errors.New("xirr: no solution")

// XIRR solves for the money-weighted annual return of irregularly dated
// cash flows: the rate r with sum(cf_i / (1+r)^years_i) == 0, where years_i
// is the actual-day-count fraction of a 365-day year from the earliest flow.
//
// Newton iteration converges fast for well-behaved flows but diverges for
// near-degenerate patterns (all flows on almost the same date, single
// in/out pair with a huge rate), so any Newton failure falls back to
// bisection over a sign-changing bracket.
func XIRR(flows []Flow) (float64, error) {
	if len(flows) < 2 {
		return 0, ErrNoSolution
	}

	sorted := make([]Flow, len(flows))
	copy(sorted, flows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	hasPositive, hasNegative := false, false
	for _, f := range sorted {
		if f.Amount > 0 {
			hasPositive = true
		}
		if f.Amount < 0 {
			hasNegative = true
		}
	}
	if !hasPositive || !hasNegative {
		return 0, ErrNoSolution
	}

	t0 := sorted[0].Date
	years := make([]float64, len(sorted))
	for i, f := range sorted {
		years[i] = f.Date.Sub(t0).Hours() / 24 / daysPerYear
	}

	npv := func(rate float64) float64 {
		var sum float64
		for i, f := range sorted {
			sum += f.Amount / math.Pow(1+rate, years[i])
		}
		return sum
	}
	dnpv := func(rate float64) float64 {
		var sum float64
		for i, f := range sorted {
			if years[i] == 0 {
				continue
			}
			sum -= years[i] * f.Amount / math.Pow(1+rate, years[i]+1)
		}
		return sum
	}

	// Newton from a mild initial guess.
	rate := 0.1
	for i := 0; i < xirrMaxNewton; i++ {
		value := npv(rate)
		if math.Abs(value) < xirrTolerance {
			return rate, nil
		}
		deriv := dnpv(rate)
		if deriv == 0 || math.IsNaN(deriv) || math.IsInf(deriv, 0) {
			break
		}
		next := rate - value/deriv
		if next <= xirrLowerBound || next > xirrUpperBound || math.IsNaN(next) {
			break
		}
		if math.Abs(next-rate) < xirrTolerance {
			return next, nil
		}
		rate = next
	}

	return bisectXIRR(npv)
}

// bisectXIRR brackets a sign change by expanding the upper bound, then
// halves the interval. Slower than Newton but cannot diverge.
func bisectXIRR(npv func(float64) float64) (float64, error) {
	lo, hi := xirrLowerBound, 10.0
	fLo := npv(lo)

	for npv(hi)*fLo > 0 {
		hi *= 2
		if hi > xirrUpperBound {
			return 0, ErrNoSolution
		}
	}

	for i := 0; i < xirrMaxBisect; i++ {
		mid := (lo + hi) / 2
		fMid := npv(mid)
		if math.Abs(fMid) < xirrTolerance || (hi-lo)/2 < xirrTolerance {
			return mid, nil
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo = mid
			fLo = fMid
		}
	}

	return (lo + hi) / 2, nil
}
