package optimization

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ArithmeticCrossover blends two parents with a random convex coefficient
// beta ~ U(0,1): childA = beta*a + (1-beta)*b, childB the complement. Both
// children are repaired back onto the simplex.
func ArithmeticCrossover(a, b []float64, rng *rand.Rand) ([]float64, []float64) {
	beta := rng.Float64()
	childA := make([]float64, len(a))
	childB := make([]float64, len(a))
	for i := range a {
		childA[i] = beta*a[i] + (1-beta)*b[i]
		childB[i] = (1-beta)*a[i] + beta*b[i]
	}
	return Repair(childA), Repair(childB)
}

// GaussianMutation returns a mutated copy of w. With the given probability
// the whole vector is perturbed with Normal(0, sigma) noise per component,
// then repaired back onto the simplex; otherwise the copy is unchanged.
func GaussianMutation(w []float64, sigma, probability float64, rng *rand.Rand) []float64 {
	out := make([]float64, len(w))
	copy(out, w)

	if rng.Float64() >= probability || sigma <= 0 {
		return out
	}

	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}
	for i := range out {
		out[i] += noise.Rand()
	}
	return Repair(out)
}
