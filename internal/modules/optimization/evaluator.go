package optimization

import (
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Evaluator maps weight vectors to objective values. It owns the return
// matrix and a covariance matrix cached once per run, and performs all input
// validation up front so the engines can assume clean data.
type Evaluator struct {
	matrix  *ReturnMatrix
	tickers []string
	cov     *mat.SymDense
	params  Parameters
}

// NewEvaluator validates the inputs and caches the covariance matrix.
// Structural errors (ticker/column mismatch, too few rows, NaN covariance)
// surface as ValidationError before any generation runs.
func NewEvaluator(rm *ReturnMatrix, tickers []string, params Parameters) (*Evaluator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(tickers) != rm.Assets() {
		return nil, &ValidationError{Field: "tickers", Reason: "ticker count does not match return matrix columns"}
	}

	cov, err := CovarianceFromReturns(rm)
	if err != nil {
		return nil, err
	}

	return &Evaluator{
		matrix:  rm,
		tickers: tickers,
		cov:     cov,
		params:  params,
	}, nil
}

// Tickers returns the asset identifiers in matrix-column order.
func (e *Evaluator) Tickers() []string {
	return e.tickers
}

// Params returns the run parameters bound to this evaluator.
func (e *Evaluator) Params() Parameters {
	return e.params
}

// Objectives computes (annual return, annual CVaR, annual variance) for one
// weight vector. The rng drives the bootstrap resampler when enabled.
func (e *Evaluator) Objectives(weights []float64, rng *rand.Rand) (annualReturn, annualCVaR, annualVariance float64) {
	series := e.matrix.PortfolioReturns(weights)

	annualReturn = AnnualizedReturnGeometric(series, e.params.PeriodsPerYear)
	annualVariance = PortfolioVariance(weights, e.cov, e.params.PeriodsPerYear)

	if e.params.UseBootstrapCVaR {
		annualCVaR = CVaRAnnualBootstrap(
			series,
			e.params.CVaRAlpha,
			e.params.BootstrapSimulations,
			e.params.PeriodsPerYear,
			rng,
		)
	} else {
		annualCVaR = CVaRHistorical(series, e.params.CVaRAlpha) * math.Sqrt(float64(e.params.PeriodsPerYear))
	}
	return annualReturn, annualCVaR, annualVariance
}

// ObjectivesDeterministic computes the objectives using the deterministic
// CVaR path (historical CVaR scaled by sqrt of periods per year) regardless
// of the bootstrap setting. Used where Monte-Carlo noise is unwanted, such
// as scoring refined weights.
func (e *Evaluator) ObjectivesDeterministic(weights []float64) (annualReturn, annualCVaR, annualVariance float64) {
	series := e.matrix.PortfolioReturns(weights)
	annualReturn = AnnualizedReturnGeometric(series, e.params.PeriodsPerYear)
	annualCVaR = CVaRHistorical(series, e.params.CVaRAlpha) * math.Sqrt(float64(e.params.PeriodsPerYear))
	annualVariance = PortfolioVariance(weights, e.cov, e.params.PeriodsPerYear)
	return annualReturn, annualCVaR, annualVariance
}

// Fitness scalarizes the objectives:
// return - riskWeight*CVaR - varianceWeight*variance.
func (e *Evaluator) Fitness(annualReturn, annualCVaR, annualVariance float64) float64 {
	return annualReturn - e.params.RiskWeight*annualCVaR - e.params.VarianceWeight*annualVariance
}

// EvaluatePopulation scores every individual, writing objectives
// index-aligned with the population. Evaluation is parallel across
// individuals but deterministic: a bootstrap seed is drawn per individual
// from the run rng before dispatch, so results do not depend on goroutine
// completion order.
func (e *Evaluator) EvaluatePopulation(pop Population, rng *rand.Rand) {
	seeds := make([]uint64, len(pop))
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range pop {
		g.Go(func() error {
			local := rand.New(rand.NewPCG(seeds[i], seeds[i]))
			ind := pop[i]
			ind.AnnualReturn, ind.AnnualCVaR, ind.AnnualVariance = e.Objectives(ind.Weights, local)
			ind.Fitness = e.Fitness(ind.AnnualReturn, ind.AnnualCVaR, ind.AnnualVariance)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
}

// newRunRNG builds the per-run random generator. A zero seed means the run
// is not required to be reproducible, but the generator is still explicit
// and per-run - there is no process-wide shared state.
func newRunRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}
