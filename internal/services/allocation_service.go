// Package services contains cross-module orchestration: services that tie
// price data, the optimization engines and the run archive together.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/events"
	"github.com/skourlis/allocator/internal/modules/optimization"
	"github.com/skourlis/allocator/internal/modules/prices"
	"github.com/skourlis/allocator/internal/modules/results"
)

// Run modes.
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// AllocationRequest describes one optimization run.
type AllocationRequest struct {
	Symbols      []string                `json:"symbols"`
	PortfolioID  *int64                  `json:"portfolio_id,omitempty"`
	Mode         string                  `json:"mode"`
	LookbackDays int                     `json:"lookback_days,omitempty"`
	Params       optimization.Parameters `json:"params"`
	Refine       bool                    `json:"refine,omitempty"`
	SkipFetch    bool                    `json:"skip_fetch,omitempty"`
}

// AllocationService runs optimizations end to end: it assembles the return
// matrix from local price history, executes the requested engine, optionally
// refines the headline weights, and archives the run.
type AllocationService struct {
	prices  *prices.Service
	archive *results.Repository
	em      *events.Manager
	log     zerolog.Logger
}

// NewAllocationService creates the service. The archive and event manager
// may be nil in tests; archiving and events are then skipped.
func NewAllocationService(priceService *prices.Service, archive *results.Repository, em *events.Manager, log zerolog.Logger) *AllocationService {
	return &AllocationService{
		prices:  priceService,
		archive: archive,
		em:      em,
		log:     log.With().Str("service", "allocation").Logger(),
	}
}

// Run executes one optimization. The observer (may be nil) receives
// generation progress.
func (s *AllocationService) Run(ctx context.Context, req AllocationRequest, observer optimization.ProgressObserver) (*results.Run, error) {
	if req.Mode != ModeSingle && req.Mode != ModeMulti {
		return nil, &optimization.ValidationError{Field: "mode", Reason: "must be \"single\" or \"multi\""}
	}
	if len(req.Symbols) < 1 {
		return nil, &optimization.ValidationError{Field: "symbols", Reason: "at least one symbol required"}
	}

	params := req.Params
	if params.PopulationSize == 0 && params.Generations == 0 {
		params = optimization.DefaultParameters()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if !req.SkipFetch {
		if err := s.prices.EnsureHistory(ctx, req.Symbols); err != nil {
			return nil, fmt.Errorf("failed to ensure price history: %w", err)
		}
	}

	matrix, tickers, err := s.prices.ReturnMatrix(req.Symbols, req.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to build return matrix: %w", err)
	}

	eval, err := optimization.NewEvaluator(matrix, tickers, params)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	run := &results.Run{
		ID:          uuid.NewString(),
		PortfolioID: req.PortfolioID,
		Mode:        req.Mode,
		Tickers:     tickers,
		Params:      params,
		CreatedAt:   started.UTC(),
	}

	switch req.Mode {
	case ModeSingle:
		engine := optimization.NewSingleObjectiveEngine(eval, observer, s.log)
		out, err := engine.Run()
		if err != nil {
			return nil, err
		}
		run.Records = out.Results
		run.History = out.History
	case ModeMulti:
		engine := optimization.NewMultiObjectiveEngine(eval, observer, s.log)
		out, err := engine.Run()
		if err != nil {
			return nil, err
		}
		run.Records = out.Front
		run.History = out.History
		if out.BestCompromise != nil {
			// Headline allocation first, so clients can take Records[0].
			run.Records = append([]optimization.AllocationResult{*out.BestCompromise}, run.Records...)
		}
	}

	if req.Refine && len(run.Records) > 0 {
		run.Records[0] = s.refineRecord(eval, run.Records[0], tickers)
	}

	run.DurationMS = time.Since(started).Milliseconds()

	if s.archive != nil {
		if err := s.archive.Store(run); err != nil {
			return nil, err
		}
	}
	if s.em != nil {
		s.em.EmitTyped(events.RunArchived, "optimization", &events.RunArchivedData{
			RunID:   run.ID,
			Mode:    run.Mode,
			Records: len(run.Records),
		})
	}

	s.log.Info().
		Str("run_id", run.ID).
		Str("mode", run.Mode).
		Int("assets", len(tickers)).
		Int64("duration_ms", run.DurationMS).
		Msg("Optimization run finished")
	return run, nil
}

// refineRecord polishes a record's weights with the local optimizer and
// recomputes its objectives. Refinement is best-effort: on any failure the
// original record is returned unchanged.
func (s *AllocationService) refineRecord(eval *optimization.Evaluator, rec optimization.AllocationResult, tickers []string) optimization.AllocationResult {
	weights := make([]float64, len(rec.WeightsPct))
	for i, pct := range rec.WeightsPct {
		weights[i] = pct / 100
	}

	refined := eval.RefineWeights(weights)
	annualReturn, annualCVaR, annualVariance := eval.ObjectivesDeterministic(refined)

	weightsPct := make([]float64, len(refined))
	for i, w := range refined {
		weightsPct[i] = w * 100
	}
	return optimization.AllocationResult{
		Tickers:         tickers,
		WeightsPct:      weightsPct,
		AnnualReturnPct: annualReturn * 100,
		AnnualCVaRPct:   annualCVaR * 100,
		AnnualVariance:  annualVariance,
	}
}
