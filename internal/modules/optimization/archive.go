package optimization

import "math"

// NonDominated filters a population down to the individuals not dominated by
// any other member. The result indexes the same individuals; it never owns
// separate copies.
func NonDominated(pop Population) Population {
	var front Population
	for i, p := range pop {
		dominated := false
		for j, q := range pop {
			if i != j && dominates(q, p) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, p)
		}
	}
	return front
}

// BestCompromise picks a single recommendation from a Pareto front when a
// caller needs one answer instead of the trade-off curve. Both objectives
// are framed as costs (return is negated), min-max normalized across the
// front with a zero range guarded by a denominator of 1, and the individual
// with the smallest normalized sum wins. Returns -1 for an empty front.
func BestCompromise(front Population) int {
	if len(front) == 0 {
		return -1
	}

	costs := [2]func(*Individual) float64{
		func(ind *Individual) float64 { return -ind.AnnualReturn },
		func(ind *Individual) float64 { return ind.AnnualCVaR },
	}

	sums := make([]float64, len(front))
	for _, cost := range costs {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, ind := range front {
			v := cost(ind)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		denom := hi - lo
		if denom == 0 {
			denom = 1
		}
		for i, ind := range front {
			sums[i] += (cost(ind) - lo) / denom
		}
	}

	best := 0
	for i, s := range sums {
		if s < sums[best] {
			best = i
		}
	}
	return best
}
