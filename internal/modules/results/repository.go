// Package results archives completed optimizer runs: queryable summary rows
// plus a compact msgpack snapshot of the full front and history.
package results

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/skourlis/allocator/internal/database"
	"github.com/skourlis/allocator/internal/modules/optimization"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run is an archived optimization run.
type Run struct {
	ID          string                  `json:"id"`
	PortfolioID *int64                  `json:"portfolio_id,omitempty"`
	Mode        string                  `json:"mode"` // "single" or "multi"
	Tickers     []string                `json:"tickers"`
	Params      optimization.Parameters `json:"params"`
	DurationMS  int64                   `json:"duration_ms"`
	CreatedAt   time.Time               `json:"created_at"`

	// Snapshot payload, loaded on Get only.
	Records []optimization.AllocationResult `json:"records,omitempty"`
	History []optimization.GenerationRecord `json:"history,omitempty"`
}

// snapshot is the msgpack blob stored beside the summary columns.
type snapshot struct {
	Records []optimization.AllocationResult `msgpack:"records"`
	History []optimization.GenerationRecord `msgpack:"history"`
}

// Repository persists runs in the results database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a results repository and runs migrations.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("repository", "results").Logger(),
	}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

// migrate creates the runs table if it does not exist.
func (r *Repository) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			portfolio_id INTEGER,
			mode         TEXT NOT NULL,
			tickers      TEXT NOT NULL,
			params       TEXT NOT NULL,
			duration_ms  INTEGER NOT NULL,
			created_at   INTEGER NOT NULL,
			snapshot     BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate results tables: %w", err)
	}
	return nil
}

// Store archives a completed run. The summary columns stay queryable; the
// full front and history travel in one msgpack blob.
func (r *Repository) Store(run *Run) error {
	tickersJSON, err := json.Marshal(run.Tickers)
	if err != nil {
		return fmt.Errorf("failed to marshal tickers: %w", err)
	}
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	blob, err := msgpack.Marshal(snapshot{Records: run.Records, History: run.History})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, portfolio_id, mode, tickers, params, duration_ms, created_at, snapshot)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, run.PortfolioID, run.Mode, string(tickersJSON), string(paramsJSON),
			run.DurationMS, run.CreatedAt.Unix(), blob)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	r.log.Info().
		Str("run_id", run.ID).
		Str("mode", run.Mode).
		Int("records", len(run.Records)).
		Msg("Archived optimization run")
	return nil
}

// Get fetches one run including its snapshot payload.
func (r *Repository) Get(id string) (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, portfolio_id, mode, tickers, params, duration_ms, created_at, snapshot
		FROM runs WHERE id = ?
	`, id)

	run, blob, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var snap snapshot
	if err := msgpack.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for run %s: %w", id, err)
	}
	run.Records = snap.Records
	run.History = snap.History
	return run, nil
}

// List returns run summaries (without snapshots), newest first.
func (r *Repository) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, portfolio_id, mode, tickers, params, duration_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var portfolioID sql.NullInt64
		var tickersJSON, paramsJSON string
		var createdAt int64

		err := rows.Scan(&run.ID, &portfolioID, &run.Mode, &tickersJSON, &paramsJSON,
			&run.DurationMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if portfolioID.Valid {
			run.PortfolioID = &portfolioID.Int64
		}
		if err := json.Unmarshal([]byte(tickersJSON), &run.Tickers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tickers: %w", err)
		}
		if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
		run.CreatedAt = time.Unix(createdAt, 0).UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Latest returns the most recent run including its snapshot, or ErrNotFound
// when the archive is empty.
func (r *Repository) Latest() (*Run, error) {
	var id string
	err := r.db.QueryRow("SELECT id FROM runs ORDER BY created_at DESC LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest run: %w", err)
	}
	return r.Get(id)
}

// Delete removes an archived run.
func (r *Repository) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	r.log.Info().Str("run_id", id).Msg("Deleted run")
	return nil
}

// scanRun scans the common run columns plus the snapshot blob.
func scanRun(row *sql.Row) (*Run, []byte, error) {
	run := &Run{}
	var portfolioID sql.NullInt64
	var tickersJSON, paramsJSON string
	var createdAt int64
	var blob []byte

	err := row.Scan(&run.ID, &portfolioID, &run.Mode, &tickersJSON, &paramsJSON,
		&run.DurationMS, &createdAt, &blob)
	if err != nil {
		return nil, nil, err
	}
	if portfolioID.Valid {
		run.PortfolioID = &portfolioID.Int64
	}
	if err := json.Unmarshal([]byte(tickersJSON), &run.Tickers); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal tickers: %w", err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &run.Params); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	return run, blob, nil
}
