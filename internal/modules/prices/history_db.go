// Package prices maintains the local daily price history and turns it into
// the return matrix the optimizer consumes.
package prices

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the price history database
	"github.com/rs/zerolog"
)

// DailyPrice represents a daily OHLCV price point.
type DailyPrice struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume *int64  `json:"volume,omitempty"`
}

// HistoryDB stores daily close prices per symbol. It keeps its own
// connection on the cgo sqlite3 driver, separate from the core databases.
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenHistoryDB opens (and migrates) the price history database, creating
// the parent directory if needed.
func OpenHistoryDB(path string, log zerolog.Logger) (*HistoryDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	h := &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// migrate creates the daily_prices table if it does not exist.
func (h *HistoryDB) migrate() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT NOT NULL,
			date   INTEGER NOT NULL,
			open   REAL,
			high   REAL,
			low    REAL,
			close  REAL NOT NULL,
			volume INTEGER,
			PRIMARY KEY (symbol, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_symbol ON daily_prices(symbol, date DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate history database: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Conn exposes the raw connection for health checks.
func (h *HistoryDB) Conn() *sql.DB {
	return h.db
}

// WALCheckpoint forces a WAL checkpoint. Modes: PASSIVE, FULL, RESTART,
// TRUNCATE.
func (h *HistoryDB) WALCheckpoint(mode string) error {
	if mode == "" {
		mode = "TRUNCATE"
	}
	if _, err := h.db.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
		return fmt.Errorf("WAL checkpoint failed for history: %w", err)
	}
	return nil
}

// SnapshotTo writes a consistent, defragmented copy of the history database
// to dest using VACUUM INTO. The destination must not already exist.
func (h *HistoryDB) SnapshotTo(dest string) error {
	if _, err := h.db.Exec("VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("snapshot of history to %s failed: %w", dest, err)
	}
	return nil
}

// UpsertDailyPrices inserts or replaces daily prices for a symbol in one
// transaction.
func (h *HistoryDB) UpsertDailyPrices(symbol string, prices []DailyPrice) error {
	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO daily_prices (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		dateUnix, err := dateToUnix(p.Date)
		if err != nil {
			return fmt.Errorf("failed to parse date %s: %w", p.Date, err)
		}

		volume := sql.NullInt64{}
		if p.Volume != nil {
			volume.Int64 = *p.Volume
			volume.Valid = true
		}

		if _, err := stmt.Exec(symbol, dateUnix, p.Open, p.High, p.Low, p.Close, volume); err != nil {
			return fmt.Errorf("failed to insert price for %s: %w", p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	h.log.Debug().
		Str("symbol", symbol).
		Int("count", len(prices)).
		Msg("Upserted daily prices")
	return nil
}

// GetDailyPrices fetches up to limit daily prices for a symbol, newest
// first.
func (h *HistoryDB) GetDailyPrices(symbol string, limit int) ([]DailyPrice, error) {
	rows, err := h.db.Query(`
		SELECT date, open, high, low, close, volume
		FROM daily_prices
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		var dateUnix int64
		var volume sql.NullInt64

		if err := rows.Scan(&dateUnix, &p.Open, &p.High, &p.Low, &p.Close, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC().Format("2006-01-02")
		if volume.Valid {
			p.Volume = &volume.Int64
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}
	return prices, nil
}

// LatestDate returns the most recent stored price date for a symbol, or the
// zero time when no history exists.
func (h *HistoryDB) LatestDate(symbol string) (time.Time, error) {
	var dateUnix sql.NullInt64
	err := h.db.QueryRow(
		"SELECT MAX(date) FROM daily_prices WHERE symbol = ?", symbol,
	).Scan(&dateUnix)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest date: %w", err)
	}
	if !dateUnix.Valid {
		return time.Time{}, nil
	}
	return time.Unix(dateUnix.Int64, 0).UTC(), nil
}

// Symbols lists every symbol with stored history.
func (h *HistoryDB) Symbols() ([]string, error) {
	rows, err := h.db.Query("SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}
	return symbols, nil
}

// dateToUnix converts a YYYY-MM-DD string to a UTC unix timestamp.
func dateToUnix(date string) (int64, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, err
	}
	return t.UTC().Unix(), nil
}
