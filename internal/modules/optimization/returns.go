package optimization

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// AnnualizedReturnGeometric computes the geometric annualized return from a
// period-return series: expm1(mean(log1p(r)) * periodsPerYear).
//
// If any period return is at or below -1 (total loss) the log-based formula
// would produce NaN, so an arithmetic-mean compounding approximation is used
// instead. Fails closed rather than propagating non-finite values.
func AnnualizedReturnGeometric(periodReturns []float64, periodsPerYear int) float64 {
	if len(periodReturns) == 0 {
		return 0
	}

	usable := true
	for _, r := range periodReturns {
		if r <= -1 {
			usable = false
			break
		}
	}

	if !usable {
		mean := stat.Mean(periodReturns, nil)
		base := 1 + mean
		if base <= 0 {
			return -1
		}
		return math.Pow(base, float64(periodsPerYear)) - 1
	}

	var sum float64
	for _, r := range periodReturns {
		sum += math.Log1p(r)
	}
	mean := sum / float64(len(periodReturns))
	return math.Expm1(mean * float64(periodsPerYear))
}

// CovarianceFromReturns estimates the per-period covariance matrix of the
// asset return columns. NaN entries (constant or corrupt input) surface as a
// ValidationError since downstream variance would silently poison fitness.
func CovarianceFromReturns(rm *ReturnMatrix) (*mat.SymDense, error) {
	cov := mat.NewSymDense(rm.Assets(), nil)
	stat.CovarianceMatrix(cov, rm.Dense(), nil)

	n := rm.Assets()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if math.IsNaN(cov.At(i, j)) {
				return nil, &ValidationError{Field: "covariance", Reason: "covariance matrix contains NaN"}
			}
		}
	}
	return cov, nil
}

// PortfolioVariance computes the annualized Markowitz variance
// w' * (periodCov * periodsPerYear) * w.
func PortfolioVariance(weights []float64, periodCov *mat.SymDense, periodsPerYear int) float64 {
	w := mat.NewVecDense(len(weights), weights)
	var tmp mat.VecDense
	tmp.MulVec(periodCov, w)
	return mat.Dot(w, &tmp) * float64(periodsPerYear)
}

// CVaRHistorical estimates Conditional Value at Risk from a return series.
// The (1-alpha) quantile of the series is the VaR threshold; CVaR is the
// negated mean of all returns at or below it, so losses come out positive.
// An empty tail falls back to the VaR value itself.
func CVaRHistorical(returns []float64, alpha float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	threshold := stat.Quantile(1-alpha, stat.LinInterp, sorted, nil)

	var sum float64
	var count int
	for _, r := range sorted {
		if r > threshold {
			break
		}
		sum += r
		count++
	}

	if count == 0 {
		return -threshold
	}
	return -(sum / float64(count))
}

// CVaRAnnualBootstrap estimates annual-horizon CVaR by block resampling.
// Each simulation draws blockSize period returns with replacement, compounds
// them into one annual scenario return, and the historical CVaR of the
// simulated annual distribution is returned.
//
// Scaling a daily CVaR by sqrt(252) understates tail risk for fat-tailed,
// autocorrelated series; resampling at the annual horizon avoids that at the
// cost of Monte Carlo noise controlled by simulations and the rng seed.
func CVaRAnnualBootstrap(returns []float64, alpha float64, simulations, blockSize int, rng *rand.Rand) float64 {
	if len(returns) == 0 || simulations < 1 || blockSize < 1 {
		return 0
	}

	annual := make([]float64, simulations)
	for s := range annual {
		compounded := 1.0
		for i := 0; i < blockSize; i++ {
			compounded *= 1 + returns[rng.IntN(len(returns))]
		}
		annual[s] = compounded - 1
	}
	return CVaRHistorical(annual, alpha)
}
