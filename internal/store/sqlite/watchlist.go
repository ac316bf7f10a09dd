// Package sqlite holds the watchlist database: one row per (symbol, date)
// with the pre-computed reference levels the classifier trades against.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"breakout-trader/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when an update or delete names a row that does
// not exist.
var ErrNotFound = errors.New("watchlist row not found")

// Config configures the watchlist store.
type Config struct {
	Path string // path to the SQLite database file, e.g. "data/stocks.db"

	// OnChange runs after every successful mutation. The caller wires it
	// to the session-state watchlist timestamp so eligibility caching can
	// detect edits.
	OnChange func()
}

// Store is the watchlist database handle.
type Store struct {
	db       *sql.DB
	onChange func()
}

// New opens (creating if needed) the watchlist database with WAL mode and
// the schema in place.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; the CRUD surface is low-volume.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened watchlist database at %s", cfg.Path)
	return &Store{db: db, onChange: cfg.OnChange}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS watchlist (
			symbol           TEXT    NOT NULL,
			instrument_token INTEGER NOT NULL,
			high             REAL    NOT NULL,
			low              REAL    NOT NULL,
			date             TEXT    NOT NULL,
			updated_at       TEXT    NOT NULL,
			PRIMARY KEY (symbol, date)
		);

		CREATE INDEX IF NOT EXISTS idx_watchlist_date ON watchlist(date);
	`)
	return err
}

// DB returns the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// NormalizeDate validates and canonicalises a YYYY-MM-DD date string.
func NormalizeDate(v string) (string, error) {
	v = strings.TrimSpace(v)
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return "", fmt.Errorf("date must be YYYY-MM-DD, got %q", v)
	}
	return t.Format("2006-01-02"), nil
}

// Add upserts a row by (symbol, date). Returns true when a new row was
// created, false when an existing one was updated.
func (s *Store) Add(row model.WatchlistRow) (bool, error) {
	date, err := NormalizeDate(row.Date)
	if err != nil {
		return false, err
	}

	var exists int
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM watchlist WHERE symbol = ? AND date = ?`,
		row.Symbol, date,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite check existing: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO watchlist (symbol, instrument_token, high, low, date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, row.Symbol, row.Token, row.High, row.Low, date, nowStamp())
	if err != nil {
		return false, fmt.Errorf("sqlite upsert: %w", err)
	}

	s.changed()
	return exists == 0, nil
}

// Update rewrites the row identified by the original (symbol, date),
// allowing any field to change including the identifiers themselves.
func (s *Store) Update(origSymbol, origDate string, row model.WatchlistRow) error {
	origDate, err := NormalizeDate(origDate)
	if err != nil {
		return err
	}
	date, err := NormalizeDate(row.Date)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM watchlist WHERE symbol = ? AND date = ?`, origSymbol, origDate)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite delete original: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		tx.Rollback()
		return fmt.Errorf("%w: %s on %s", ErrNotFound, origSymbol, origDate)
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO watchlist (symbol, instrument_token, high, low, date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, row.Symbol, row.Token, row.High, row.Low, date, nowStamp())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite insert updated: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	s.changed()
	return nil
}

// Delete removes the row for (symbol, date).
func (s *Store) Delete(symbol, date string) error {
	date, err := NormalizeDate(date)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`DELETE FROM watchlist WHERE symbol = ? AND date = ?`, symbol, date)
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s on %s", ErrNotFound, symbol, date)
	}

	s.changed()
	return nil
}

// List returns rows in insertion order, optionally filtered to one date.
func (s *Store) List(dateFilter string) ([]model.WatchlistRow, error) {
	query := `SELECT symbol, instrument_token, high, low, date FROM watchlist`
	var args []any
	if dateFilter != "" {
		date, err := NormalizeDate(dateFilter)
		if err != nil {
			return nil, err
		}
		query += ` WHERE date = ?`
		args = append(args, date)
	}
	query += ` ORDER BY rowid`

	return s.scanRows(query, args, false)
}

// RowsForDate returns the validated watchlist for one session date. Rows
// whose numeric fields do not convert, or whose levels are unusable, are
// dropped with a warning; they never fail the batch.
func (s *Store) RowsForDate(date string) ([]model.WatchlistRow, error) {
	date, err := NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	return s.scanRows(
		`SELECT symbol, instrument_token, high, low, date FROM watchlist WHERE date = ? ORDER BY rowid`,
		[]any{date}, true,
	)
}

func (s *Store) scanRows(query string, args []any, validate bool) ([]model.WatchlistRow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query watchlist: %w", err)
	}
	defer rows.Close()

	var out []model.WatchlistRow
	for rows.Next() {
		// Scan loosely: SQLite columns are dynamically typed, and a junk
		// value in one row must not sink the whole batch.
		var symbol, date string
		var tokenRaw, highRaw, lowRaw any
		if err := rows.Scan(&symbol, &tokenRaw, &highRaw, &lowRaw, &date); err != nil {
			log.Printf("[watchlist] dropping unreadable row: %v", err)
			continue
		}

		row := model.WatchlistRow{Symbol: strings.TrimSpace(symbol), Date: strings.TrimSpace(date)}
		token, err1 := toUint32(tokenRaw)
		high, err2 := toFloat(highRaw)
		low, err3 := toFloat(lowRaw)
		if err := errors.Join(err1, err2, err3); err != nil {
			log.Printf("[watchlist] dropping row %s (%s): %v", row.Symbol, row.Date, err)
			continue
		}
		row.Token, row.High, row.Low = token, high, low

		if validate && !row.Valid() {
			log.Printf("[watchlist] dropping row %s (%s): unusable levels high=%v low=%v token=%d",
				row.Symbol, row.Date, row.High, row.Low, row.Token)
			continue
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func toUint32(v any) (uint32, error) {
	switch t := v.(type) {
	case int64:
		if t <= 0 {
			return 0, fmt.Errorf("token %d out of range", t)
		}
		return uint32(t), nil
	case float64:
		return toUint32(int64(t))
	case string:
		n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("token %q: %w", t, err)
		}
		return toUint32(n)
	case []byte:
		return toUint32(string(t))
	default:
		return 0, fmt.Errorf("token has unexpected type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		if err != nil {
			return 0, fmt.Errorf("number %q: %w", t, err)
		}
		return f, nil
	case []byte:
		return toFloat(string(t))
	default:
		return 0, fmt.Errorf("number has unexpected type %T", v)
	}
}
