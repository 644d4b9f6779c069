package reports

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/skourlis/allocator/internal/modules/optimization"
	"github.com/skourlis/allocator/internal/modules/prices"
	"github.com/skourlis/allocator/internal/modules/results"
)

func newTestService(t *testing.T) (*Service, *results.Repository, *prices.HistoryDB) {
	t.Helper()

	resultsDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { resultsDB.Close() })
	archive, err := results.NewRepository(resultsDB, zerolog.Nop())
	require.NoError(t, err)

	historyDB, err := prices.OpenHistoryDB(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { historyDB.Close() })

	return NewService(archive, historyDB, zerolog.Nop()), archive, historyDB
}

func storeRun(t *testing.T, archive *results.Repository, tickers []string, weights []float64, createdAt time.Time) *results.Run {
	t.Helper()
	run := &results.Run{
		ID:      uuid.NewString(),
		Mode:    "single",
		Tickers: tickers,
		Params:  optimization.DefaultParameters(),
		Records: []optimization.AllocationResult{
			{Tickers: tickers, WeightsPct: weights, AnnualReturnPct: 9.5, AnnualCVaRPct: 15.0},
		},
		CreatedAt: createdAt,
	}
	require.NoError(t, archive.Store(run))
	return run
}

func seedCloses(t *testing.T, db *prices.HistoryDB, symbol string, days int) {
	t.Helper()
	series := make([]prices.DailyPrice, 0, days)
	start := time.Now().UTC().AddDate(0, 0, -days)
	for i := 0; i < days; i++ {
		c := 100 + float64(i)*0.1
		series = append(series, prices.DailyPrice{
			Date:  start.AddDate(0, 0, i+1).Format("2006-01-02"),
			Close: c,
		})
	}
	require.NoError(t, db.UpsertDailyPrices(symbol, series))
}

func TestDashboardEmptyArchive(t *testing.T) {
	svc, _, _ := newTestService(t)
	dash, err := svc.Dashboard(0)
	require.NoError(t, err)
	assert.Nil(t, dash.LatestRun)
	assert.Empty(t, dash.Symbols)
}

func TestDashboardWithLatestRun(t *testing.T) {
	svc, archive, historyDB := newTestService(t)
	seedCloses(t, historyDB, "AAPL", 80)
	seedCloses(t, historyDB, "MSFT", 80)

	run := storeRun(t, archive, []string{"AAPL", "MSFT"}, []float64{60, 40}, time.Now().UTC())

	dash, err := svc.Dashboard(0)
	require.NoError(t, err)
	require.NotNil(t, dash.LatestRun)
	assert.Equal(t, run.ID, dash.LatestRun.ID)
	require.Len(t, dash.Symbols, 2)

	aapl := dash.Symbols[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Greater(t, aapl.LastClose, 100.0)
	require.NotNil(t, aapl.SMA50, "80 closes are enough for SMA50")
	require.NotNil(t, aapl.Bollinger, "bollinger needs only 20 closes")
	require.NotNil(t, aapl.RSI14)
	// Monotonically rising series pins RSI at 100.
	assert.InDelta(t, 100.0, *aapl.RSI14, 1e-6)
	assert.Equal(t, 0.0, aapl.MaxDrawdown)
}

func TestDashboardSkipsSymbolsWithoutHistory(t *testing.T) {
	svc, archive, historyDB := newTestService(t)
	seedCloses(t, historyDB, "AAPL", 60)
	storeRun(t, archive, []string{"AAPL", "GHOST"}, []float64{50, 50}, time.Now().UTC())

	dash, err := svc.Dashboard(0)
	require.NoError(t, err)
	require.Len(t, dash.Symbols, 1)
	assert.Equal(t, "AAPL", dash.Symbols[0].Symbol)
}

func TestCompareWeightDrift(t *testing.T) {
	svc, archive, _ := newTestService(t)

	from := storeRun(t, archive, []string{"AAPL", "MSFT"}, []float64{70, 30},
		time.Now().UTC().Add(-time.Hour))
	to := storeRun(t, archive, []string{"AAPL", "GOOG"}, []float64{40, 60},
		time.Now().UTC())

	cmp, err := svc.Compare(from.ID, to.ID)
	require.NoError(t, err)
	require.Len(t, cmp.Drift, 3)

	byTicker := make(map[string]WeightDrift)
	for _, d := range cmp.Drift {
		byTicker[d.Ticker] = d
	}
	assert.InDelta(t, -30.0, byTicker["AAPL"].DeltaPct, 1e-12)
	assert.InDelta(t, -30.0, byTicker["MSFT"].DeltaPct, 1e-12, "dropped ticker drifts to zero")
	assert.InDelta(t, 60.0, byTicker["GOOG"].DeltaPct, 1e-12, "new ticker drifts from zero")
}

func TestCompareMissingRun(t *testing.T) {
	svc, archive, _ := newTestService(t)
	run := storeRun(t, archive, []string{"AAPL"}, []float64{100}, time.Now().UTC())

	_, err := svc.Compare(run.ID, "missing")
	assert.ErrorIs(t, err, results.ErrNotFound)
}
