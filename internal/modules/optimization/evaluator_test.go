package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluatorValidation(t *testing.T) {
	rm, tickers := testMatrix(t)

	_, err := NewEvaluator(rm, tickers[:2], fastParams())
	require.Error(t, err)
	assert.True(t, IsValidation(err), "ticker mismatch must be a validation error")

	bad := fastParams()
	bad.PopulationSize = 1
	_, err = NewEvaluator(rm, tickers, bad)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestEvaluatePopulationDeterministic(t *testing.T) {
	rm, tickers := testMatrix(t)
	params := fastParams()
	params.UseBootstrapCVaR = true
	params.BootstrapSimulations = 200

	eval, err := NewEvaluator(rm, tickers, params)
	require.NoError(t, err)

	build := func() Population {
		rng := newRunRNG(params.Seed)
		pop := make(Population, 16)
		for i := range pop {
			pop[i] = &Individual{Weights: RandomWeights(3, rng)}
		}
		eval.EvaluatePopulation(pop, rng)
		return pop
	}

	// Evaluation is parallel but seeded per individual before dispatch, so
	// two identical runs must agree exactly, objective by objective.
	a := build()
	b := build()
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Weights, b[i].Weights, "individual %d weights", i)
		assert.Equal(t, a[i].AnnualReturn, b[i].AnnualReturn, "individual %d return", i)
		assert.Equal(t, a[i].AnnualCVaR, b[i].AnnualCVaR, "individual %d cvar", i)
		assert.Equal(t, a[i].AnnualVariance, b[i].AnnualVariance, "individual %d variance", i)
		assert.Equal(t, a[i].Fitness, b[i].Fitness, "individual %d fitness", i)
	}
}

func TestFitnessScalarization(t *testing.T) {
	rm, tickers := testMatrix(t)
	params := fastParams()
	params.RiskWeight = 2.0
	params.VarianceWeight = 0.5

	eval, err := NewEvaluator(rm, tickers, params)
	require.NoError(t, err)

	f := eval.Fitness(0.10, 0.03, 0.02)
	assert.InDelta(t, 0.10-2.0*0.03-0.5*0.02, f, 1e-15)
}

func TestObjectivesDeterministicIgnoresBootstrap(t *testing.T) {
	rm, tickers := testMatrix(t)
	params := fastParams()
	params.UseBootstrapCVaR = true

	eval, err := NewEvaluator(rm, tickers, params)
	require.NoError(t, err)

	w := UniformWeights(3)
	r1, c1, v1 := eval.ObjectivesDeterministic(w)
	r2, c2, v2 := eval.ObjectivesDeterministic(w)
	assert.Equal(t, r1, r2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, v1, v2)
}

func TestRefineWeightsStaysOnSimplex(t *testing.T) {
	rm, tickers := testMatrix(t)
	eval, err := NewEvaluator(rm, tickers, fastParams())
	require.NoError(t, err)

	start := []float64{0.4, 0.35, 0.25}
	refined := eval.RefineWeights(start)
	assertOnSimplex(t, refined)

	// Refinement must not make the deterministic fitness worse.
	r0, c0, v0 := eval.ObjectivesDeterministic(start)
	r1, c1, v1 := eval.ObjectivesDeterministic(refined)
	assert.GreaterOrEqual(t, eval.Fitness(r1, c1, v1)+1e-9, eval.Fitness(r0, c0, v0))
}
