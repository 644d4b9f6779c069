package prices

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skourlis/allocator/internal/events"
	"github.com/skourlis/allocator/internal/modules/optimization"
)

// maxConcurrentFetches bounds parallel provider requests during a refresh.
const maxConcurrentFetches = 4

// Service keeps the local history warm and builds return matrices from it.
type Service struct {
	historyDB *HistoryDB
	provider  Provider
	lookback  int // trading days kept warm per symbol
	em        *events.Manager
	log       zerolog.Logger
}

// NewService creates the price service. The event manager may be nil;
// PriceUpdated events are then skipped.
func NewService(historyDB *HistoryDB, provider Provider, lookbackDays int, em *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		historyDB: historyDB,
		provider:  provider,
		lookback:  lookbackDays,
		em:        em,
		log:       log.With().Str("service", "prices").Logger(),
	}
}

// EnsureHistory fetches missing history for each symbol, in parallel across
// symbols. Symbols that already have data up to the previous trading day are
// skipped.
func (s *Service) EnsureHistory(ctx context.Context, symbols []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for _, symbol := range symbols {
		g.Go(func() error {
			return s.refreshSymbol(ctx, symbol)
		})
	}
	return g.Wait()
}

// RefreshAll refreshes every symbol already present in the history database.
func (s *Service) RefreshAll(ctx context.Context) error {
	symbols, err := s.historyDB.Symbols()
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		s.log.Debug().Msg("No symbols to refresh")
		return nil
	}
	s.log.Info().Int("symbols", len(symbols)).Msg("Refreshing price history")
	return s.EnsureHistory(ctx, symbols)
}

// refreshSymbol fetches the date range missing from local history.
func (s *Service) refreshSymbol(ctx context.Context, symbol string) error {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -calendarDaysFor(s.lookback))

	latest, err := s.historyDB.LatestDate(symbol)
	if err != nil {
		return err
	}
	if !latest.IsZero() {
		if now.Sub(latest) < 24*time.Hour {
			return nil // already current
		}
		from = latest.AddDate(0, 0, 1)
	}

	prices, err := s.provider.FetchDaily(ctx, symbol, from, now)
	if err != nil {
		return fmt.Errorf("refresh failed for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		s.log.Warn().Str("symbol", symbol).Msg("Provider returned no prices")
		return nil
	}
	if err := s.historyDB.UpsertDailyPrices(symbol, prices); err != nil {
		return err
	}
	if s.em != nil {
		s.em.EmitTyped(events.PriceUpdated, "prices", &events.PriceUpdatedData{
			Symbols:      []string{symbol},
			RowsUpserted: len(prices),
		})
	}
	return nil
}

// ReturnMatrix aligns the stored close series of the requested symbols on
// their common dates and converts them to simple period returns
// (p[t]/p[t-1] - 1). Returns the matrix plus the tickers in column order.
func (s *Service) ReturnMatrix(symbols []string, lookbackDays int) (*optimization.ReturnMatrix, []string, error) {
	if len(symbols) == 0 {
		return nil, nil, &optimization.ValidationError{Field: "symbols", Reason: "no symbols given"}
	}
	if lookbackDays <= 0 {
		lookbackDays = s.lookback
	}

	closesBySymbol := make(map[string]map[string]float64, len(symbols))
	for _, symbol := range symbols {
		prices, err := s.historyDB.GetDailyPrices(symbol, lookbackDays+1)
		if err != nil {
			return nil, nil, err
		}
		if len(prices) < 3 {
			return nil, nil, &optimization.ValidationError{
				Field:  "symbols",
				Reason: fmt.Sprintf("not enough price history for %s", symbol),
			}
		}
		byDate := make(map[string]float64, len(prices))
		for _, p := range prices {
			if p.Close > 0 {
				byDate[p.Date] = p.Close
			}
		}
		closesBySymbol[symbol] = byDate
	}

	// Intersect the date sets so every row is complete; the optimizer
	// requires a gap-free matrix.
	var common []string
	for date := range closesBySymbol[symbols[0]] {
		onAll := true
		for _, symbol := range symbols[1:] {
			if _, ok := closesBySymbol[symbol][date]; !ok {
				onAll = false
				break
			}
		}
		if onAll {
			common = append(common, date)
		}
	}
	sort.Strings(common)

	if len(common) < 3 {
		return nil, nil, &optimization.ValidationError{
			Field:  "symbols",
			Reason: "fewer than 3 common trading days across symbols",
		}
	}

	periods := len(common) - 1
	values := make([]float64, 0, periods*len(symbols))
	for t := 1; t < len(common); t++ {
		for _, symbol := range symbols {
			prev := closesBySymbol[symbol][common[t-1]]
			curr := closesBySymbol[symbol][common[t]]
			values = append(values, curr/prev-1)
		}
	}

	matrix, err := optimization.NewReturnMatrix(periods, len(symbols), values)
	if err != nil {
		return nil, nil, err
	}

	tickers := make([]string, len(symbols))
	copy(tickers, symbols)

	s.log.Debug().
		Int("periods", periods).
		Int("assets", len(symbols)).
		Msg("Built return matrix")
	return matrix, tickers, nil
}

// calendarDaysFor pads a trading-day lookback into calendar days (markets
// trade roughly 5 of 7 days, plus holidays).
func calendarDaysFor(tradingDays int) int {
	return tradingDays*7/5 + 10
}
