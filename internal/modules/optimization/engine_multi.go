package optimization

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// MultiResult is the output of an NSGA-II run: the final Pareto front
// (capped and sorted by return for display), a best-compromise pick, and the
// per-generation history.
type MultiResult struct {
	Front          []AllocationResult `json:"front"`
	BestCompromise *AllocationResult  `json:"best_compromise,omitempty"`
	History        []GenerationRecord `json:"history"`
}

// MultiObjectiveEngine implements NSGA-II over two objectives: maximize
// annual return, minimize annual CVaR.
type MultiObjectiveEngine struct {
	eval     *Evaluator
	observer ProgressObserver
	log      zerolog.Logger
}

// NewMultiObjectiveEngine creates the engine. The observer may be nil.
func NewMultiObjectiveEngine(eval *Evaluator, observer ProgressObserver, log zerolog.Logger) *MultiObjectiveEngine {
	return &MultiObjectiveEngine{
		eval:     eval,
		observer: observer,
		log:      log.With().Str("engine", "nsga2").Logger(),
	}
}

// dominates reports whether a Pareto-dominates b: at least as good on both
// objectives and strictly better on at least one. The relation is
// irreflexive and asymmetric by construction.
func dominates(a, b *Individual) bool {
	if a.AnnualReturn < b.AnnualReturn || a.AnnualCVaR > b.AnnualCVaR {
		return false
	}
	return a.AnnualReturn > b.AnnualReturn || a.AnnualCVaR < b.AnnualCVaR
}

// fastNonDominatedSort partitions the population into Pareto fronts using
// the standard two-pass algorithm: count dominators per individual and track
// whom each dominates, then peel fronts by decrementing domination counts.
// Ranks are written onto the individuals as a side effect.
func fastNonDominatedSort(pop Population) []Population {
	dominationCount := make([]int, len(pop))
	dominatedSet := make([][]int, len(pop))

	var current []int
	for i, p := range pop {
		for j, q := range pop {
			if i == j {
				continue
			}
			if dominates(p, q) {
				dominatedSet[i] = append(dominatedSet[i], j)
			} else if dominates(q, p) {
				dominationCount[i]++
			}
		}
		if dominationCount[i] == 0 {
			p.rank = 0
			current = append(current, i)
		}
	}

	var fronts []Population
	rank := 0
	for len(current) > 0 {
		front := make(Population, len(current))
		for k, idx := range current {
			front[k] = pop[idx]
		}
		fronts = append(fronts, front)

		var next []int
		for _, idx := range current {
			for _, dominated := range dominatedSet[idx] {
				dominationCount[dominated]--
				if dominationCount[dominated] == 0 {
					pop[dominated].rank = rank + 1
					next = append(next, dominated)
				}
			}
		}
		current = next
		rank++
	}
	return fronts
}

// crowdingDistance assigns the diversity metric to every member of a front.
// For each objective the front is sorted, the two extremes get +Inf, and
// interior individuals accumulate the normalized gap between their sorted
// neighbors. A zero objective range contributes nothing.
func crowdingDistance(front Population) {
	for _, ind := range front {
		ind.crowding = 0
	}
	if len(front) <= 2 {
		for _, ind := range front {
			ind.crowding = math.Inf(1)
		}
		return
	}

	objectives := []func(*Individual) float64{
		func(ind *Individual) float64 { return ind.AnnualReturn },
		func(ind *Individual) float64 { return ind.AnnualCVaR },
	}

	sorted := make(Population, len(front))
	copy(sorted, front)

	for _, obj := range objectives {
		sort.SliceStable(sorted, func(i, j int) bool {
			return obj(sorted[i]) < obj(sorted[j])
		})

		sorted[0].crowding = math.Inf(1)
		sorted[len(sorted)-1].crowding = math.Inf(1)

		objRange := obj(sorted[len(sorted)-1]) - obj(sorted[0])
		if objRange == 0 {
			continue
		}
		for i := 1; i < len(sorted)-1; i++ {
			sorted[i].crowding += (obj(sorted[i+1]) - obj(sorted[i-1])) / objRange
		}
	}
}

// tournamentSelect picks the better of two random individuals by rank
// ascending, then crowding distance descending.
func tournamentSelect(pop Population, rng interface{ IntN(int) int }) *Individual {
	a := pop[rng.IntN(len(pop))]
	b := pop[rng.IntN(len(pop))]
	if a.rank != b.rank {
		if a.rank < b.rank {
			return a
		}
		return b
	}
	if a.crowding > b.crowding {
		return a
	}
	return b
}

// Run executes NSGA-II for the fixed generation count and returns the final
// first front.
func (e *MultiObjectiveEngine) Run() (*MultiResult, error) {
	params := e.eval.Params()
	rng := newRunRNG(params.Seed)
	n := e.eval.matrix.Assets()

	pop := make(Population, params.PopulationSize)
	for i := range pop {
		pop[i] = &Individual{Weights: RandomWeights(n, rng)}
	}
	e.eval.EvaluatePopulation(pop, rng)
	notify(e.observer, StageInitialized, 0, params.Generations)

	history := make([]GenerationRecord, 0, params.Generations)

	for gen := 0; gen < params.Generations; gen++ {
		fronts := fastNonDominatedSort(pop)
		for _, front := range fronts {
			crowdingDistance(front)
		}

		first := fronts[0]
		best := first[0]
		for _, ind := range first[1:] {
			if ind.AnnualReturn > best.AnnualReturn {
				best = ind
			}
		}
		history = append(history, GenerationRecord{
			Generation:   gen,
			AnnualReturn: best.AnnualReturn,
			AnnualCVaR:   best.AnnualCVaR,
			FrontSize:    len(first),
		})

		// Offspring via binary tournament on (rank, crowding), then the
		// shared crossover/mutation operators.
		offspring := make(Population, 0, params.PopulationSize)
		for len(offspring) < params.PopulationSize {
			a := tournamentSelect(pop, rng)
			b := tournamentSelect(pop, rng)
			childA, childB := ArithmeticCrossover(a.Weights, b.Weights, rng)

			childA = GaussianMutation(childA, params.MutationSigma, params.MutationProb, rng)
			offspring = append(offspring, &Individual{Weights: childA})
			if len(offspring) < params.PopulationSize {
				childB = GaussianMutation(childB, params.MutationSigma, params.MutationProb, rng)
				offspring = append(offspring, &Individual{Weights: childB})
			}
		}
		e.eval.EvaluatePopulation(offspring, rng)

		// Environmental selection over the combined parent+offspring pool:
		// fill by front rank, truncating the overflowing front by descending
		// crowding distance to preserve boundary diversity.
		combined := append(append(Population{}, pop...), offspring...)
		combinedFronts := fastNonDominatedSort(combined)
		for _, front := range combinedFronts {
			crowdingDistance(front)
		}

		next := make(Population, 0, params.PopulationSize)
		for _, front := range combinedFronts {
			if len(next)+len(front) <= params.PopulationSize {
				next = append(next, front...)
				continue
			}
			truncated := make(Population, len(front))
			copy(truncated, front)
			sort.SliceStable(truncated, func(i, j int) bool {
				return truncated[i].crowding > truncated[j].crowding
			})
			next = append(next, truncated[:params.PopulationSize-len(next)]...)
			break
		}
		pop = next

		notify(e.observer, StageGeneration, gen+1, params.Generations)
	}

	finalFronts := fastNonDominatedSort(pop)
	front := finalFronts[0]
	sort.SliceStable(front, func(i, j int) bool {
		return front[i].AnnualReturn > front[j].AnnualReturn
	})

	limit := params.FrontLimit
	if limit <= 0 || limit > len(front) {
		limit = len(front)
	}

	results := make([]AllocationResult, 0, limit)
	for _, ind := range front[:limit] {
		results = append(results, toResult(ind, e.eval.Tickers()))
	}

	var best *AllocationResult
	if idx := BestCompromise(front); idx >= 0 {
		r := toResult(front[idx], e.eval.Tickers())
		best = &r
	}

	notify(e.observer, StageCompleted, params.Generations, params.Generations)
	e.log.Debug().
		Int("generations", params.Generations).
		Int("front_size", len(front)).
		Msg("NSGA-II run finished")

	return &MultiResult{Front: results, BestCompromise: best, History: history}, nil
}
