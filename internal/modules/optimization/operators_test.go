package optimization

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArithmeticCrossoverChildrenOnSimplex(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	a := []float64{0.7, 0.2, 0.1}
	b := []float64{0.1, 0.1, 0.8}

	for i := 0; i < 50; i++ {
		childA, childB := ArithmeticCrossover(a, b, rng)
		assertOnSimplex(t, childA)
		assertOnSimplex(t, childB)
	}
}

func TestArithmeticCrossoverDoesNotMutateParents(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	a := []float64{0.5, 0.5}
	b := []float64{0.9, 0.1}
	ArithmeticCrossover(a, b, rng)
	assert.Equal(t, []float64{0.5, 0.5}, a)
	assert.Equal(t, []float64{0.9, 0.1}, b)
}

func TestGaussianMutationZeroProbabilityIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	w := []float64{0.3, 0.3, 0.4}
	out := GaussianMutation(w, 0.05, 0, rng)
	assert.Equal(t, w, out)
	// The result is a copy, never the same backing array.
	out[0] = 99
	assert.Equal(t, 0.3, w[0])
}

func TestGaussianMutationAlwaysFiresOnSimplex(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	w := []float64{0.25, 0.25, 0.25, 0.25}
	changed := false
	for i := 0; i < 50; i++ {
		out := GaussianMutation(w, 0.05, 1, rng)
		assertOnSimplex(t, out)
		for j := range out {
			if out[j] != w[j] {
				changed = true
			}
		}
	}
	assert.True(t, changed, "mutation with probability 1 must perturb weights")
}

func TestGaussianMutationDeterministic(t *testing.T) {
	w := []float64{0.6, 0.4}
	a := GaussianMutation(w, 0.05, 0.2, rand.New(rand.NewPCG(5, 5)))
	b := GaussianMutation(w, 0.05, 0.2, rand.New(rand.NewPCG(5, 5)))
	assert.Equal(t, a, b)
}
