package optimization

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleObjectiveRunDeterministic(t *testing.T) {
	rm, tickers := testMatrix(t)

	run := func() *SingleResult {
		eval, err := NewEvaluator(rm, tickers, fastParams())
		require.NoError(t, err)
		out, err := NewSingleObjectiveEngine(eval, nil, zerolog.Nop()).Run()
		require.NoError(t, err)
		return out
	}

	a := run()
	b := run()
	assert.Equal(t, a.Results, b.Results, "same seed must reproduce results")
	assert.Equal(t, a.History, b.History)
}

func TestSingleObjectiveResultShape(t *testing.T) {
	rm, tickers := testMatrix(t)
	params := fastParams()
	params.TopK = 5

	eval, err := NewEvaluator(rm, tickers, params)
	require.NoError(t, err)
	out, err := NewSingleObjectiveEngine(eval, nil, zerolog.Nop()).Run()
	require.NoError(t, err)

	require.Len(t, out.Results, 5)
	assert.Len(t, out.History, params.Generations)

	for _, rec := range out.Results {
		assert.Equal(t, tickers, rec.Tickers)
		var sum float64
		for _, pct := range rec.WeightsPct {
			assert.GreaterOrEqual(t, pct, 0.0)
			sum += pct
		}
		assert.InDelta(t, 100.0, sum, 1e-6)
	}
}

func TestSingleObjectiveConcentratesOnDominantAsset(t *testing.T) {
	// One asset strictly outperforms with lower volatility; the optimizer
	// should put most of the weight on it.
	const periods = 80
	values := make([]float64, 0, periods*3)
	for i := 0; i < periods; i++ {
		good := 0.002
		flat := 0.0
		bad := -0.002
		// Small deterministic wiggle so covariance is not NaN.
		wiggle := 0.0005 * float64(i%3)
		values = append(values, good+wiggle, flat-wiggle, bad+wiggle)
	}
	rm, err := NewReturnMatrix(periods, 3, values)
	require.NoError(t, err)

	params := fastParams()
	params.PopulationSize = 40
	params.Generations = 40
	eval, err := NewEvaluator(rm, []string{"GOOD", "FLAT", "BAD"}, params)
	require.NoError(t, err)

	out, err := NewSingleObjectiveEngine(eval, nil, zerolog.Nop()).Run()
	require.NoError(t, err)

	best := out.Results[0]
	assert.Greater(t, best.WeightsPct[0], 60.0, "dominant asset should carry most weight, got %v", best.WeightsPct)
}

func TestSingleObjectivePopulationOfTwo(t *testing.T) {
	// The minimum population still runs: elites clamp to the whole
	// population and the loop must not hang or panic.
	rm, tickers := testMatrix(t)
	params := fastParams()
	params.PopulationSize = 2
	params.Generations = 3
	params.TopK = 10 // clamped down to population size

	eval, err := NewEvaluator(rm, tickers, params)
	require.NoError(t, err)
	out, err := NewSingleObjectiveEngine(eval, nil, zerolog.Nop()).Run()
	require.NoError(t, err)

	assert.Len(t, out.Results, 2)
	assert.Len(t, out.History, 3)
}

func TestSingleObjectiveFitnessMonotoneHistory(t *testing.T) {
	// With elitism and deterministic objectives the recorded best fitness
	// never decreases between generations.
	rm, tickers := testMatrix(t)
	params := fastParams()
	params.Generations = 20

	eval, err := NewEvaluator(rm, tickers, params)
	require.NoError(t, err)
	out, err := NewSingleObjectiveEngine(eval, nil, zerolog.Nop()).Run()
	require.NoError(t, err)

	for i := 1; i < len(out.History); i++ {
		assert.GreaterOrEqual(t, out.History[i].Fitness+1e-12, out.History[i-1].Fitness,
			"fitness regressed at generation %d", i)
	}
}
