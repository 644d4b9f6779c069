// Package reports assembles read-only views over the run archive and price
// history: a dashboard for the latest allocation and run-to-run comparisons.
package reports

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/modules/prices"
	"github.com/skourlis/allocator/internal/modules/results"
	"github.com/skourlis/allocator/pkg/formulas"
)

// SymbolStats bundles the technical snapshot of one asset.
type SymbolStats struct {
	Symbol               string                   `json:"symbol"`
	LastClose            float64                  `json:"last_close"`
	SMA50                *float64                 `json:"sma_50,omitempty"`
	EMA200               *float64                 `json:"ema_200,omitempty"`
	RSI14                *float64                 `json:"rsi_14,omitempty"`
	Bollinger            *formulas.BollingerBands `json:"bollinger,omitempty"`
	AnnualizedVolatility float64                  `json:"annualized_volatility"`
	MaxDrawdown          float64                  `json:"max_drawdown"`
}

// Dashboard is the landing view: the latest archived run plus per-symbol
// technicals for its tickers.
type Dashboard struct {
	LatestRun *results.Run  `json:"latest_run,omitempty"`
	Symbols   []SymbolStats `json:"symbols"`
}

// WeightDrift is the change of one ticker's weight between two runs.
type WeightDrift struct {
	Ticker   string  `json:"ticker"`
	FromPct  float64 `json:"from_pct"`
	ToPct    float64 `json:"to_pct"`
	DeltaPct float64 `json:"delta_pct"`
}

// Comparison contrasts the headline allocations of two runs.
type Comparison struct {
	FromRunID string        `json:"from_run_id"`
	ToRunID   string        `json:"to_run_id"`
	Drift     []WeightDrift `json:"drift"`
}

// Service builds the report views.
type Service struct {
	archive   *results.Repository
	historyDB *prices.HistoryDB
	log       zerolog.Logger
}

// NewService creates the reports service.
func NewService(archive *results.Repository, historyDB *prices.HistoryDB, log zerolog.Logger) *Service {
	return &Service{
		archive:   archive,
		historyDB: historyDB,
		log:       log.With().Str("service", "reports").Logger(),
	}
}

// Dashboard builds the landing view. An empty archive yields a dashboard
// with no run and no symbols rather than an error.
func (s *Service) Dashboard(lookbackDays int) (*Dashboard, error) {
	dash := &Dashboard{Symbols: []SymbolStats{}}

	run, err := s.archive.Latest()
	if err == results.ErrNotFound {
		return dash, nil
	}
	if err != nil {
		return nil, err
	}
	dash.LatestRun = run

	for _, symbol := range run.Tickers {
		stats, err := s.symbolStats(symbol, lookbackDays)
		if err != nil {
			// A symbol with missing history should not break the whole view.
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol stats")
			continue
		}
		dash.Symbols = append(dash.Symbols, *stats)
	}
	return dash, nil
}

// Compare contrasts the headline records of two archived runs.
func (s *Service) Compare(fromID, toID string) (*Comparison, error) {
	from, err := s.archive.Get(fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.archive.Get(toID)
	if err != nil {
		return nil, err
	}
	if len(from.Records) == 0 || len(to.Records) == 0 {
		return nil, fmt.Errorf("cannot compare runs without records")
	}

	fromRec := from.Records[0]
	toRec := to.Records[0]

	fromW := weightsByTicker(fromRec.Tickers, fromRec.WeightsPct)
	toW := weightsByTicker(toRec.Tickers, toRec.WeightsPct)

	seen := make(map[string]struct{})
	var drift []WeightDrift
	appendDrift := func(ticker string) {
		if _, ok := seen[ticker]; ok {
			return
		}
		seen[ticker] = struct{}{}
		d := WeightDrift{
			Ticker:  ticker,
			FromPct: fromW[ticker],
			ToPct:   toW[ticker],
		}
		d.DeltaPct = d.ToPct - d.FromPct
		drift = append(drift, d)
	}
	for _, ticker := range fromRec.Tickers {
		appendDrift(ticker)
	}
	for _, ticker := range toRec.Tickers {
		appendDrift(ticker)
	}

	return &Comparison{FromRunID: fromID, ToRunID: toID, Drift: drift}, nil
}

// symbolStats computes the technical snapshot for one symbol from stored
// history. Closes come back newest-first from storage and are reversed into
// chronological order for the indicators.
func (s *Service) symbolStats(symbol string, lookbackDays int) (*SymbolStats, error) {
	if lookbackDays <= 0 {
		lookbackDays = 252
	}
	rows, err := s.historyDB.GetDailyPrices(symbol, lookbackDays)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("not enough history for %s", symbol)
	}

	closes := make([]float64, len(rows))
	for i, p := range rows {
		closes[len(rows)-1-i] = p.Close
	}
	returns := formulas.CalculateReturns(closes)

	return &SymbolStats{
		Symbol:               symbol,
		LastClose:            closes[len(closes)-1],
		SMA50:                formulas.CalculateSMA(closes, 50),
		EMA200:               formulas.CalculateEMA(closes, 200),
		RSI14:                formulas.CalculateRSI(closes, 14),
		Bollinger:            formulas.CalculateBollingerBands(closes, 20, 2),
		AnnualizedVolatility: formulas.AnnualizedVolatility(returns),
		MaxDrawdown:          formulas.MaxDrawdown(closes),
	}, nil
}

// weightsByTicker zips parallel ticker/weight slices into a lookup map.
func weightsByTicker(tickers []string, weightsPct []float64) map[string]float64 {
	m := make(map[string]float64, len(tickers))
	for i, t := range tickers {
		if i < len(weightsPct) {
			m[t] = weightsPct[i]
		}
	}
	return m
}
