package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"market-twin/internal/analysis/scoring"
	apperrors "market-twin/internal/errors"
	"market-twin/internal/models"
)

// SQLiteStore reads and writes the stock_prices table.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ BarSource  = (*SQLiteStore)(nil)
	_ QueryStore = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the tables if they do not exist. The stock_prices
// layout matches databases written by the ingestion scripts, so existing
// files can be read as they are.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stock_prices (
		Date TEXT,
		Open REAL,
		High REAL,
		Low REAL,
		Close REAL,
		Adj_Close REAL,
		Volume INTEGER,
		Symbol TEXT,
		PRIMARY KEY (Date, Symbol)
	);

	CREATE INDEX IF NOT EXISTS idx_stock_prices_symbol ON stock_prices(Symbol, Date);

	-- Saved screener filter sets
	CREATE TABLE IF NOT EXISTS screener_queries (
		name TEXT PRIMARY KEY,
		filters TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Bars
// ============================================================================

// SaveBars writes raw bars for symbol, replacing rows with the same date.
// Adj_Close is stored equal to Close.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol string, bars models.Series) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO stock_prices (Date, Open, High, Low, Close, Adj_Close, Volume, Symbol)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, b.Timestamp.UTC().Format(dateFormat), b.Open, b.High, b.Low, b.Close, b.Close, b.Volume, symbol)
		if err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadBars reads the bars of symbol inside r, oldest first. NULL prices
// come back as NaN and NULL volume as zero so that sanitisation can repair
// them downstream.
func (s *SQLiteStore) LoadBars(ctx context.Context, symbol string, r DateRange) (models.Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT Date, Open, High, Low, Close, Volume
		FROM stock_prices
		WHERE Symbol = ?
		ORDER BY Date ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars models.Series
	seen := false
	for rows.Next() {
		seen = true
		var (
			date           sql.NullString
			op, hi, lo, cl sql.NullFloat64
			volume         sql.NullInt64
		)
		if err := rows.Scan(&date, &op, &hi, &lo, &cl, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		if !date.Valid {
			continue
		}

		ts, err := ParseDate(date.String)
		if err != nil {
			return nil, apperrors.NewDataError("stock_prices", symbol, len(bars), "bad Date column", err)
		}
		if !r.Contains(ts) {
			continue
		}

		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      nullFloat(op),
			High:      nullFloat(hi),
			Low:       nullFloat(lo),
			Close:     nullFloat(cl),
			Volume:    volume.Int64,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}
	if !seen {
		return nil, apperrors.Wrapf(apperrors.ErrSymbolNotFound, "%s", symbol)
	}

	return bars, nil
}

// ListSymbols returns every symbol with at least one row.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT Symbol FROM stock_prices WHERE Symbol IS NOT NULL ORDER BY Symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// LatestDate returns the most recent bar time of symbol, or the zero time
// when it has none.
func (s *SQLiteStore) LatestDate(ctx context.Context, symbol string) (time.Time, error) {
	var date sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(Date) FROM stock_prices WHERE Symbol = ?
	`, symbol).Scan(&date)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get latest date: %w", err)
	}
	if !date.Valid {
		return time.Time{}, nil
	}
	return ParseDate(date.String)
}

func nullFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// ============================================================================
// Screener Queries
// ============================================================================

// SaveScreenerQuery stores a named filter set, replacing any previous one.
func (s *SQLiteStore) SaveScreenerQuery(ctx context.Context, name string, filters []scoring.Filter) error {
	data, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("failed to encode filters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO screener_queries (name, filters, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`, name, string(data))
	if err != nil {
		return fmt.Errorf("failed to save screener query: %w", err)
	}
	return nil
}

// GetScreenerQuery loads a named filter set.
func (s *SQLiteStore) GetScreenerQuery(ctx context.Context, name string) ([]scoring.Filter, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT filters FROM screener_queries WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "screener query %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get screener query: %w", err)
	}

	var filters []scoring.Filter
	if err := json.Unmarshal([]byte(data), &filters); err != nil {
		return nil, fmt.Errorf("failed to decode filters: %w", err)
	}
	return filters, nil
}

// ListScreenerQueries returns the names of all saved filter sets.
func (s *SQLiteStore) ListScreenerQueries(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM screener_queries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list screener queries: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan screener query: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
