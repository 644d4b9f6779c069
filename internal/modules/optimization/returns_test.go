package optimization

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnualizedReturnGeometricConstantSeries(t *testing.T) {
	// A constant daily return must annualize to exactly (1+r)^252 - 1.
	r := 0.001
	series := make([]float64, 500)
	for i := range series {
		series[i] = r
	}

	got := AnnualizedReturnGeometric(series, 252)
	want := math.Pow(1+r, 252) - 1
	assert.InDelta(t, want, got, 1e-6)
}

func TestAnnualizedReturnGeometricEmpty(t *testing.T) {
	assert.Equal(t, 0.0, AnnualizedReturnGeometric(nil, 252))
}

func TestAnnualizedReturnGeometricTotalLossFallback(t *testing.T) {
	// A -100% period would make log1p blow up; the arithmetic fallback must
	// produce a finite value.
	series := []float64{0.01, -1.0, 0.02}
	got := AnnualizedReturnGeometric(series, 252)
	assert.False(t, math.IsNaN(got))
	assert.False(t, math.IsInf(got, 0))

	// Mean below -100% floors at total loss.
	assert.Equal(t, -1.0, AnnualizedReturnGeometric([]float64{-1.5, -1.2}, 252))
}

func TestCVaRHistoricalTailMean(t *testing.T) {
	// 100 returns: 0.01 everywhere except five crash days. At alpha=0.95 the
	// VaR threshold sits at the edge of the worst 5%, and CVaR averages the
	// tail at or below it.
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = 0.01
	}
	crashes := []float64{-0.10, -0.09, -0.08, -0.07, -0.06}
	copy(returns, crashes)

	cvar := CVaRHistorical(returns, 0.95)
	assert.Greater(t, cvar, 0.0, "losses must be reported as positive CVaR")
	assert.GreaterOrEqual(t, cvar, 0.06)
	assert.LessOrEqual(t, cvar, 0.10)
}

func TestCVaRHistoricalAllGains(t *testing.T) {
	// With uniformly positive returns CVaR is negative: the "worst case" is
	// still a gain.
	returns := []float64{0.01, 0.02, 0.03, 0.04, 0.05}
	cvar := CVaRHistorical(returns, 0.95)
	assert.Less(t, cvar, 0.0)
}

func TestCVaRHistoricalEmpty(t *testing.T) {
	assert.Equal(t, 0.0, CVaRHistorical(nil, 0.95))
}

func TestCVaRAnnualBootstrapReproducible(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.005, 0.03, -0.015, 0.002, -0.04, 0.01}

	a := CVaRAnnualBootstrap(returns, 0.95, 500, 252, rand.New(rand.NewPCG(7, 7)))
	b := CVaRAnnualBootstrap(returns, 0.95, 500, 252, rand.New(rand.NewPCG(7, 7)))
	assert.Equal(t, a, b, "same seed must give identical bootstrap CVaR")

	c := CVaRAnnualBootstrap(returns, 0.95, 500, 252, rand.New(rand.NewPCG(8, 8)))
	assert.NotEqual(t, a, c, "different seeds should differ")
}

func TestCVaRAnnualBootstrapDegenerateInputs(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	assert.Equal(t, 0.0, CVaRAnnualBootstrap(nil, 0.95, 100, 252, rng))
	assert.Equal(t, 0.0, CVaRAnnualBootstrap([]float64{0.01}, 0.95, 0, 252, rng))
}

func TestPortfolioVariance(t *testing.T) {
	// Two uncorrelated assets with unit variance: w'Σw = w1²+w2², annualized.
	rm := mustMatrix(t, 4, 2, []float64{
		1, -1,
		-1, 1,
		1, 1,
		-1, -1,
	})
	cov, err := CovarianceFromReturns(rm)
	require.NoError(t, err)

	// Sample variance of each column is 4/3 (n-1 denominator), covariance 0.
	v := PortfolioVariance([]float64{0.5, 0.5}, cov, 1)
	assert.InDelta(t, 0.5*0.5*4.0/3.0*2, v, 1e-12)

	// Annualization scales linearly.
	v252 := PortfolioVariance([]float64{0.5, 0.5}, cov, 252)
	assert.InDelta(t, v*252, v252, 1e-9)
}

func TestCovarianceRejectsDegenerate(t *testing.T) {
	// A single period row cannot happen via NewReturnMatrix; NaN covariance
	// is guarded at construction level instead. Sanity-check a valid case.
	rm := mustMatrix(t, 3, 2, []float64{
		0.01, 0.02,
		0.03, -0.01,
		-0.02, 0.005,
	})
	cov, err := CovarianceFromReturns(rm)
	require.NoError(t, err)
	assert.Equal(t, 2, cov.SymmetricDim())
}

func mustMatrix(t *testing.T, periods, assets int, values []float64) *ReturnMatrix {
	t.Helper()
	rm, err := NewReturnMatrix(periods, assets, values)
	require.NoError(t, err)
	return rm
}
