// Package optimization implements the evolutionary portfolio optimizer.
//
// Two engines share one set of types and operators: a scalarized
// single-objective GA and an NSGA-II multi-objective engine trading
// annualized return against tail risk (CVaR). Weight vectors live on the
// probability simplex (non-negative, summing to one).
package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultPeriodsPerYear is the number of trading periods assumed per year.
const DefaultPeriodsPerYear = 252

// ReturnMatrix holds period returns: rows are trading periods, columns are
// assets. The matrix is validated on construction and never mutated.
type ReturnMatrix struct {
	data *mat.Dense
}

// NewReturnMatrix builds a ReturnMatrix from row-major values.
// It requires at least 2 periods, at least 1 asset, and finite entries.
func NewReturnMatrix(periods, assets int, values []float64) (*ReturnMatrix, error) {
	if periods < 2 {
		return nil, &ValidationError{Field: "returns", Reason: "need at least 2 return periods"}
	}
	if assets < 1 {
		return nil, &ValidationError{Field: "returns", Reason: "need at least 1 asset"}
	}
	if len(values) != periods*assets {
		return nil, &ValidationError{Field: "returns", Reason: "value count does not match dimensions"}
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ValidationError{Field: "returns", Reason: "return matrix contains non-finite values"}
		}
	}
	return &ReturnMatrix{data: mat.NewDense(periods, assets, values)}, nil
}

// Periods returns the number of return periods (rows).
func (rm *ReturnMatrix) Periods() int {
	r, _ := rm.data.Dims()
	return r
}

// Assets returns the number of assets (columns).
func (rm *ReturnMatrix) Assets() int {
	_, c := rm.data.Dims()
	return c
}

// Column returns a copy of the return series for one asset.
func (rm *ReturnMatrix) Column(j int) []float64 {
	out := make([]float64, rm.Periods())
	mat.Col(out, j, rm.data)
	return out
}

// PortfolioReturns computes the weighted period-return series for the given
// weight vector.
func (rm *ReturnMatrix) PortfolioReturns(weights []float64) []float64 {
	periods, assets := rm.data.Dims()
	out := make([]float64, periods)
	for t := 0; t < periods; t++ {
		var sum float64
		for j := 0; j < assets; j++ {
			sum += rm.data.At(t, j) * weights[j]
		}
		out[t] = sum
	}
	return out
}

// Dense exposes the underlying matrix for covariance estimation.
func (rm *ReturnMatrix) Dense() *mat.Dense {
	return rm.data
}

// Individual is one candidate allocation with its evaluated objectives.
// Individuals are replaced, not mutated in place: reproduction always
// allocates fresh ones so objectives can never go stale.
type Individual struct {
	Weights []float64

	// Objectives, set once per evaluation.
	Fitness        float64
	AnnualReturn   float64
	AnnualCVaR     float64
	AnnualVariance float64

	// NSGA-II bookkeeping, transient per generation.
	rank     int
	crowding float64
}

// clone returns a deep copy of the individual.
func (ind *Individual) clone() *Individual {
	w := make([]float64, len(ind.Weights))
	copy(w, ind.Weights)
	return &Individual{
		Weights:        w,
		Fitness:        ind.Fitness,
		AnnualReturn:   ind.AnnualReturn,
		AnnualCVaR:     ind.AnnualCVaR,
		AnnualVariance: ind.AnnualVariance,
		rank:           ind.rank,
		crowding:       ind.crowding,
	}
}

// Population is an ordered, fixed-size collection of individuals.
type Population []*Individual

// GenerationRecord is a per-generation convergence snapshot.
type GenerationRecord struct {
	Generation     int     `json:"generation"`
	Fitness        float64 `json:"fitness,omitempty"`
	AnnualReturn   float64 `json:"annual_return"`
	AnnualCVaR     float64 `json:"annual_cvar"`
	AnnualVariance float64 `json:"annual_variance,omitempty"`
	FrontSize      int     `json:"front_size,omitempty"`
}

// AllocationResult is the fixed result-record shape shared by both engines.
// Percentages are scaled to [0..100]; variance is reported raw.
type AllocationResult struct {
	Tickers         []string  `json:"tickers"`
	WeightsPct      []float64 `json:"weights_pct"`
	AnnualReturnPct float64   `json:"annual_return_pct"`
	AnnualCVaRPct   float64   `json:"annual_cvar_pct"`
	AnnualVariance  float64   `json:"annual_variance"`
}

// Parameters configures an optimizer run.
type Parameters struct {
	PopulationSize       int     `json:"population_size"`
	Generations          int     `json:"generations"`
	RiskWeight           float64 `json:"risk_weight"`
	VarianceWeight       float64 `json:"variance_weight"`
	CVaRAlpha            float64 `json:"cvar_alpha"`
	UseBootstrapCVaR     bool    `json:"use_bootstrap_cvar"`
	BootstrapSimulations int     `json:"bootstrap_simulations"`
	Seed                 int64   `json:"seed"`
	EliteFraction        float64 `json:"elite_fraction"`
	MutationSigma        float64 `json:"mutation_sigma"`
	MutationProb         float64 `json:"mutation_prob"`
	TopK                 int     `json:"top_k"`
	FrontLimit           int     `json:"front_limit"`
	PeriodsPerYear       int     `json:"periods_per_year"`
}

// DefaultParameters returns the standard run configuration.
func DefaultParameters() Parameters {
	return Parameters{
		PopulationSize:       120,
		Generations:          80,
		RiskWeight:           1.0,
		VarianceWeight:       0.0,
		CVaRAlpha:            0.95,
		UseBootstrapCVaR:     true,
		BootstrapSimulations: 1000,
		EliteFraction:        0.10,
		MutationSigma:        0.05,
		MutationProb:         0.20,
		TopK:                 10,
		FrontLimit:           20,
		PeriodsPerYear:       DefaultPeriodsPerYear,
	}
}

// Validate checks parameter sanity before a run.
func (p *Parameters) Validate() error {
	if p.PopulationSize < 2 {
		return &ValidationError{Field: "population_size", Reason: "must be at least 2"}
	}
	if p.Generations < 1 {
		return &ValidationError{Field: "generations", Reason: "must be at least 1"}
	}
	if p.CVaRAlpha <= 0 || p.CVaRAlpha >= 1 {
		return &ValidationError{Field: "cvar_alpha", Reason: "must be in (0, 1)"}
	}
	if p.UseBootstrapCVaR && p.BootstrapSimulations < 1 {
		return &ValidationError{Field: "bootstrap_simulations", Reason: "must be at least 1"}
	}
	if p.EliteFraction < 0 || p.EliteFraction > 1 {
		return &ValidationError{Field: "elite_fraction", Reason: "must be in [0, 1]"}
	}
	if p.MutationSigma < 0 {
		return &ValidationError{Field: "mutation_sigma", Reason: "must be non-negative"}
	}
	if p.MutationProb < 0 || p.MutationProb > 1 {
		return &ValidationError{Field: "mutation_prob", Reason: "must be in [0, 1]"}
	}
	if p.PeriodsPerYear < 1 {
		return &ValidationError{Field: "periods_per_year", Reason: "must be at least 1"}
	}
	return nil
}

// toResult converts an evaluated individual into the shared result record.
func toResult(ind *Individual, tickers []string) AllocationResult {
	weightsPct := make([]float64, len(ind.Weights))
	for i, w := range ind.Weights {
		weightsPct[i] = w * 100
	}
	return AllocationResult{
		Tickers:         tickers,
		WeightsPct:      weightsPct,
		AnnualReturnPct: ind.AnnualReturn * 100,
		AnnualCVaRPct:   ind.AnnualCVaR * 100,
		AnnualVariance:  ind.AnnualVariance,
	}
}
