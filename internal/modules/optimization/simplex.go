package optimization

import "math/rand/v2"

// weightTolerance is the acceptable deviation of a weight-vector sum from 1.
const weightTolerance = 1e-9

// UniformWeights returns the equal-weight allocation for n assets.
func UniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// RandomWeights draws a random point on the probability simplex by
// normalizing i.i.d. non-negative draws. A zero-sum draw (vanishingly rare)
// falls back to uniform weights.
func RandomWeights(n int, rng *rand.Rand) []float64 {
	w := make([]float64, n)
	var sum float64
	for i := range w {
		w[i] = rng.Float64()
		sum += w[i]
	}
	if sum <= 0 {
		return UniformWeights(n)
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// Repair projects a weight vector back onto the simplex in place: negative
// entries are clipped to zero and the rest renormalized. A degenerate
// all-zero vector is reset to uniform weights rather than erroring - this is
// an expected numerical edge case, not caller error.
func Repair(w []float64) []float64 {
	var sum float64
	for i, v := range w {
		if v < 0 {
			w[i] = 0
		} else {
			sum += v
		}
	}
	if sum <= 0 {
		copy(w, UniformWeights(len(w)))
		return w
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}
