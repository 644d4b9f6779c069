package optimization

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

// assertOnSimplex checks the simplex invariants: non-negative weights
// summing to one within tolerance.
func assertOnSimplex(t *testing.T, w []float64) {
	t.Helper()
	var sum float64
	for i, v := range w {
		assert.GreaterOrEqual(t, v, 0.0, "weight %d is negative", i)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestUniformWeights(t *testing.T) {
	w := UniformWeights(4)
	assertOnSimplex(t, w)
	for _, v := range w {
		assert.InDelta(t, 0.25, v, 1e-12)
	}
}

func TestRandomWeightsOnSimplex(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	for i := 0; i < 100; i++ {
		assertOnSimplex(t, RandomWeights(5, rng))
	}
}

func TestRepairClipsNegatives(t *testing.T) {
	w := Repair([]float64{0.6, -0.2, 0.6})
	assertOnSimplex(t, w)
	assert.Equal(t, 0.0, w[1])
	assert.InDelta(t, 0.5, w[0], 1e-12)
	assert.InDelta(t, 0.5, w[2], 1e-12)
}

func TestRepairRenormalizes(t *testing.T) {
	w := Repair([]float64{2, 2})
	assertOnSimplex(t, w)
	assert.InDelta(t, 0.5, w[0], 1e-12)
}

func TestRepairDegenerateFallsBackToUniform(t *testing.T) {
	w := Repair([]float64{-1, -2, 0})
	assertOnSimplex(t, w)
	for _, v := range w {
		assert.InDelta(t, 1.0/3.0, v, 1e-12)
	}
}
