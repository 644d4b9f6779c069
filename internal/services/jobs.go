package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skourlis/allocator/internal/modules/optimization"
	"github.com/skourlis/allocator/internal/modules/portfolio"
	"github.com/skourlis/allocator/internal/modules/prices"
	"github.com/skourlis/allocator/internal/queue"
)

// RegisterJobHandlers binds the queue job types that the core services
// execute. Backup and maintenance jobs are registered separately by their
// owning services.
func RegisterJobHandlers(m *queue.Manager, allocation *AllocationService, priceService *prices.Service, portfolios *portfolio.Repository) {
	m.RegisterHandler(queue.JobTypeOptimizeSingle, optimizeHandler(allocation, ModeSingle))
	m.RegisterHandler(queue.JobTypeOptimizeMulti, optimizeHandler(allocation, ModeMulti))
	m.RegisterHandler(queue.JobTypePriceRefresh, priceRefreshHandler(priceService, portfolios))
}

// optimizeHandler adapts an optimization run to the queue's handler shape,
// bridging generation progress to the job's progress reporter.
func optimizeHandler(allocation *AllocationService, mode string) queue.HandlerFunc {
	return func(ctx context.Context, job *queue.Job) (interface{}, error) {
		req, err := payloadToRequest(job.Payload)
		if err != nil {
			return nil, err
		}
		req.Mode = mode

		pr := job.Progress()
		observer := optimization.ObserverFunc(func(stage string, generation, total int) {
			pr.Report(stage, generation, total)
		})

		run, err := allocation.Run(ctx, req, observer)
		if err != nil {
			return nil, err
		}
		return run, nil
	}
}

// priceRefreshHandler refreshes history for the requested symbols, for a
// portfolio's symbols, or for every known symbol when neither is given.
func priceRefreshHandler(priceService *prices.Service, portfolios *portfolio.Repository) queue.HandlerFunc {
	return func(ctx context.Context, job *queue.Job) (interface{}, error) {
		if symbols := payloadSymbols(job.Payload); len(symbols) > 0 {
			if err := priceService.EnsureHistory(ctx, symbols); err != nil {
				return nil, err
			}
			return map[string]interface{}{"symbols": symbols}, nil
		}

		if id, ok := payloadPortfolioID(job.Payload); ok && portfolios != nil {
			p, err := portfolios.Get(id)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve portfolio %d: %w", id, err)
			}
			if err := priceService.EnsureHistory(ctx, p.Symbols); err != nil {
				return nil, err
			}
			return map[string]interface{}{"symbols": p.Symbols}, nil
		}

		if err := priceService.RefreshAll(ctx); err != nil {
			return nil, err
		}
		return map[string]interface{}{"refreshed": "all"}, nil
	}
}

// payloadToRequest decodes the generic job payload into an allocation
// request via a JSON round trip.
func payloadToRequest(payload map[string]interface{}) (AllocationRequest, error) {
	var req AllocationRequest
	raw, err := json.Marshal(payload)
	if err != nil {
		return req, fmt.Errorf("invalid job payload: %w", err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("invalid job payload: %w", err)
	}
	return req, nil
}

func payloadSymbols(payload map[string]interface{}) []string {
	raw, ok := payload["symbols"].([]interface{})
	if !ok {
		return nil
	}
	symbols := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func payloadPortfolioID(payload map[string]interface{}) (int64, bool) {
	switch v := payload["portfolio_id"].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}
