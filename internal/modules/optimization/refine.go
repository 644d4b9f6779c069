package optimization

import (
	"gonum.org/v1/gonum/optimize"
)

// simplexPenalty scales the constraint-violation penalty in the refinement
// objective. Large enough that leaving the simplex always hurts more than
// any achievable fitness gain.
const simplexPenalty = 1e3

// RefineWeights polishes a candidate allocation with a local gradient-free
// search. The scalarized objective uses the deterministic CVaR path (no
// bootstrap noise) so the optimizer sees a smooth surface. Simplex
// constraints are enforced by penalty: negative weights and deviation of the
// sum from one are charged quadratically, and the result is projected and
// renormalized. Falls back to the input weights when the search fails.
//
// This is an optional post-step on top of the evolutionary result; the
// engines never call it themselves.
func (e *Evaluator) RefineWeights(weights []float64) []float64 {
	objective := func(x []float64) float64 {
		penalty := 0.0
		sum := 0.0
		for _, v := range x {
			if v < 0 {
				penalty += v * v * simplexPenalty
			}
			sum += v
		}
		penalty += (sum - 1) * (sum - 1) * simplexPenalty

		w := make([]float64, len(x))
		copy(w, x)
		Repair(w)

		annualReturn, annualCVaR, annualVariance := e.ObjectivesDeterministic(w)
		return -e.Fitness(annualReturn, annualCVaR, annualVariance) + penalty
	}

	problem := optimize.Problem{Func: objective}

	initial := make([]float64, len(weights))
	copy(initial, weights)

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
	if err != nil || !refineSucceeded(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
		if err != nil || !refineSucceeded(result.Status) {
			return weights
		}
	}

	refined := make([]float64, len(result.X))
	copy(refined, result.X)
	return Repair(refined)
}

// refineSucceeded reports whether an optimize status counts as convergence.
func refineSucceeded(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}
