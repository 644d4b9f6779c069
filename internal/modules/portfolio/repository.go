package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skourlis/allocator/internal/database"
)

// Sentinel errors for portfolio validation and lookup.
var (
	ErrEmptyName       = errors.New("portfolio name must not be empty")
	ErrNoAssets        = errors.New("portfolio must contain at least one asset")
	ErrEmptySymbol     = errors.New("asset symbol must not be empty")
	ErrDuplicateSymbol = errors.New("portfolio contains duplicate symbols")
	ErrNotFound        = errors.New("portfolio not found")
)

// Repository provides portfolio persistence in the config database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio repository and runs migrations.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("repository", "portfolio").Logger(),
	}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

// migrate creates the portfolio tables if they do not exist.
func (r *Repository) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS portfolios (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS portfolio_assets (
			portfolio_id INTEGER NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
			symbol       TEXT NOT NULL,
			position     INTEGER NOT NULL,
			PRIMARY KEY (portfolio_id, symbol)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate portfolio tables: %w", err)
	}
	return nil
}

// Create stores a new portfolio with its asset list.
func (r *Repository) Create(p *Portfolio) (*Portfolio, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			"INSERT INTO portfolios (name, created_at, updated_at) VALUES (?, ?, ?)",
			p.Name, now.Unix(), now.Unix(),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		p.ID = id
		return insertAssets(tx, id, p.Symbols)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}

	p.CreatedAt = now
	p.UpdatedAt = now
	r.log.Info().Str("name", p.Name).Int64("id", p.ID).Msg("Created portfolio")
	return p, nil
}

// Update replaces a portfolio's name and asset list.
func (r *Repository) Update(p *Portfolio) error {
	if err := p.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			"UPDATE portfolios SET name = ?, updated_at = ? WHERE id = ?",
			p.Name, now.Unix(), p.ID,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec("DELETE FROM portfolio_assets WHERE portfolio_id = ?", p.ID); err != nil {
			return err
		}
		return insertAssets(tx, p.ID, p.Symbols)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// Get fetches one portfolio by ID.
func (r *Repository) Get(id int64) (*Portfolio, error) {
	p := &Portfolio{ID: id}
	var createdAt, updatedAt int64

	err := r.db.QueryRow(
		"SELECT name, created_at, updated_at FROM portfolios WHERE id = ?", id,
	).Scan(&p.Name, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	symbols, err := r.assets(id)
	if err != nil {
		return nil, err
	}
	p.Symbols = symbols
	return p, nil
}

// List returns all portfolios with their asset lists, ordered by name.
func (r *Repository) List() ([]*Portfolio, error) {
	rows, err := r.db.Query("SELECT id, name, created_at, updated_at FROM portfolios ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*Portfolio
	for rows.Next() {
		p := &Portfolio{}
		var createdAt, updatedAt int64
		if err := rows.Scan(&p.ID, &p.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	for _, p := range portfolios {
		symbols, err := r.assets(p.ID)
		if err != nil {
			return nil, err
		}
		p.Symbols = symbols
	}
	return portfolios, nil
}

// Delete removes a portfolio and its assets.
func (r *Repository) Delete(id int64) error {
	res, err := r.db.Exec("DELETE FROM portfolios WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	// Cascade is enabled via foreign_keys pragma, but clean up explicitly in
	// case the connection was opened without it.
	_, _ = r.db.Exec("DELETE FROM portfolio_assets WHERE portfolio_id = ?", id)
	r.log.Info().Int64("id", id).Msg("Deleted portfolio")
	return nil
}

// assets fetches a portfolio's symbols in stored order.
func (r *Repository) assets(portfolioID int64) ([]string, error) {
	rows, err := r.db.Query(
		"SELECT symbol FROM portfolio_assets WHERE portfolio_id = ? ORDER BY position", portfolioID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio assets: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return symbols, nil
}

// insertAssets writes the asset list inside an open transaction.
func insertAssets(tx *sql.Tx, portfolioID int64, symbols []string) error {
	stmt, err := tx.Prepare(
		"INSERT INTO portfolio_assets (portfolio_id, symbol, position) VALUES (?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, symbol := range symbols {
		if _, err := stmt.Exec(portfolioID, symbol, i); err != nil {
			return err
		}
	}
	return nil
}
