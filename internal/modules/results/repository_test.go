package results

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/skourlis/allocator/internal/modules/optimization"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository(db, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

func sampleRun(mode string, createdAt time.Time) *Run {
	return &Run{
		ID:      uuid.NewString(),
		Mode:    mode,
		Tickers: []string{"AAPL", "MSFT"},
		Params:  optimization.DefaultParameters(),
		Records: []optimization.AllocationResult{
			{
				Tickers:         []string{"AAPL", "MSFT"},
				WeightsPct:      []float64{62.5, 37.5},
				AnnualReturnPct: 11.2,
				AnnualCVaRPct:   18.4,
				AnnualVariance:  0.031,
			},
		},
		History: []optimization.GenerationRecord{
			{Generation: 0, AnnualReturn: 0.08, AnnualCVaR: 0.22},
			{Generation: 1, AnnualReturn: 0.10, AnnualCVaR: 0.20},
		},
		DurationMS: 1250,
		CreatedAt:  createdAt,
	}
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	run := sampleRun("multi", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, repo.Store(run))

	got, err := repo.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Mode, got.Mode)
	assert.Equal(t, run.Tickers, got.Tickers)
	assert.Equal(t, run.Params, got.Params)
	assert.Equal(t, run.Records, got.Records)
	assert.Equal(t, run.History, got.History)
	assert.Equal(t, run.DurationMS, got.DurationMS)
}

func TestGetMissing(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSummariesOnly(t *testing.T) {
	repo := newTestRepo(t)
	old := sampleRun("single", time.Now().UTC().Add(-time.Hour).Truncate(time.Second))
	recent := sampleRun("multi", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, repo.Store(old))
	require.NoError(t, repo.Store(recent))

	runs, err := repo.List(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, recent.ID, runs[0].ID, "newest first")
	assert.Empty(t, runs[0].Records, "list omits snapshots")
	assert.Empty(t, runs[0].History)
}

func TestLatest(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Latest()
	assert.ErrorIs(t, err, ErrNotFound)

	old := sampleRun("single", time.Now().UTC().Add(-time.Hour).Truncate(time.Second))
	recent := sampleRun("multi", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, repo.Store(old))
	require.NoError(t, repo.Store(recent))

	got, err := repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, recent.ID, got.ID)
	assert.NotEmpty(t, got.Records, "latest includes the snapshot")
}

func TestDeleteRun(t *testing.T) {
	repo := newTestRepo(t)
	run := sampleRun("single", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, repo.Store(run))

	require.NoError(t, repo.Delete(run.ID))
	_, err := repo.Get(run.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(run.ID), ErrNotFound)
}
