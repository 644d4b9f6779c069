package optimization

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// SingleResult is the output of a single-objective run: the top-K
// individuals by fitness plus the per-generation convergence history.
type SingleResult struct {
	Results []AllocationResult `json:"results"`
	History []GenerationRecord `json:"history"`
}

// SingleObjectiveEngine runs an elitist generational GA over the scalarized
// objective return - riskWeight*CVaR - varianceWeight*variance.
type SingleObjectiveEngine struct {
	eval     *Evaluator
	observer ProgressObserver
	log      zerolog.Logger
}

// NewSingleObjectiveEngine creates the engine. The observer may be nil.
func NewSingleObjectiveEngine(eval *Evaluator, observer ProgressObserver, log zerolog.Logger) *SingleObjectiveEngine {
	return &SingleObjectiveEngine{
		eval:     eval,
		observer: observer,
		log:      log.With().Str("engine", "single_objective").Logger(),
	}
}

// Run executes the fixed-generation loop and returns the ranked results.
// There is no early stopping: the generation count is the only terminator.
func (e *SingleObjectiveEngine) Run() (*SingleResult, error) {
	params := e.eval.Params()
	rng := newRunRNG(params.Seed)
	n := e.eval.matrix.Assets()

	pop := make(Population, params.PopulationSize)
	for i := range pop {
		pop[i] = &Individual{Weights: RandomWeights(n, rng)}
	}
	e.eval.EvaluatePopulation(pop, rng)
	notify(e.observer, StageInitialized, 0, params.Generations)

	// Elites always survive unchanged; clamp keeps crossover meaningful
	// even for the minimum population of 2.
	eliteCount := int(math.Ceil(params.EliteFraction * float64(params.PopulationSize)))
	if eliteCount < 2 {
		eliteCount = 2
	}
	if eliteCount > params.PopulationSize {
		eliteCount = params.PopulationSize
	}

	history := make([]GenerationRecord, 0, params.Generations)

	for gen := 0; gen < params.Generations; gen++ {
		sortByFitness(pop)

		best := pop[0]
		history = append(history, GenerationRecord{
			Generation:     gen,
			Fitness:        best.Fitness,
			AnnualReturn:   best.AnnualReturn,
			AnnualCVaR:     best.AnnualCVaR,
			AnnualVariance: best.AnnualVariance,
		})

		next := make(Population, 0, params.PopulationSize)
		for i := 0; i < eliteCount; i++ {
			next = append(next, pop[i].clone())
		}

		for len(next) < params.PopulationSize {
			a := pop[rng.IntN(len(pop))]
			b := pop[rng.IntN(len(pop))]
			childA, childB := ArithmeticCrossover(a.Weights, b.Weights, rng)

			childA = GaussianMutation(childA, params.MutationSigma, params.MutationProb, rng)
			next = append(next, &Individual{Weights: childA})
			if len(next) < params.PopulationSize {
				childB = GaussianMutation(childB, params.MutationSigma, params.MutationProb, rng)
				next = append(next, &Individual{Weights: childB})
			}
		}

		pop = next
		e.eval.EvaluatePopulation(pop, rng)
		notify(e.observer, StageGeneration, gen+1, params.Generations)
	}

	sortByFitness(pop)

	topK := params.TopK
	if topK <= 0 || topK > len(pop) {
		topK = len(pop)
	}
	results := make([]AllocationResult, 0, topK)
	for i := 0; i < topK; i++ {
		results = append(results, toResult(pop[i], e.eval.Tickers()))
	}

	notify(e.observer, StageCompleted, params.Generations, params.Generations)
	e.log.Debug().
		Int("generations", params.Generations).
		Int("population", params.PopulationSize).
		Float64("best_fitness", pop[0].Fitness).
		Msg("Single-objective run finished")

	return &SingleResult{Results: results, History: history}, nil
}

// sortByFitness orders a population by descending fitness. The sort is
// stable so equal-fitness ties keep population order, which preserves
// determinism under a fixed seed.
func sortByFitness(pop Population) {
	sort.SliceStable(pop, func(i, j int) bool {
		return pop[i].Fitness > pop[j].Fitness
	})
}
